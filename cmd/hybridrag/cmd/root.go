// Package cmd provides the CLI commands for hybridrag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/logging"
	"github.com/Aman-CERP/hybridrag/internal/profiling"
	"github.com/Aman-CERP/hybridrag/pkg/version"
)

// Profiling flags
var (
	profileOpts profiling.Options
	profiler    *profiling.Profiler
)

// Global flags
var (
	configDir string
	debugMode bool
)

// NewRootCmd creates the root command for the hybridrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hybridrag",
		Short: "Hybrid retrieval over the HAProxy documentation",
		Long: `hybridrag answers questions about HAProxy with ranked documentation chunks.

Each query runs dense (embedding) and lexical (BM25) search in parallel,
fuses both rankings with Reciprocal Rank Fusion, optionally rescores the
candidates with a cross-encoder and boosts them with chunk metadata.

Run 'hybridrag serve' to expose the engine to MCP clients over stdio
or as a JSON HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("hybridrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configDir, "dir", "", "Directory holding .hybridrag.yaml, .env and relative index paths (default: current directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also mirrored to stderr)")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newContextCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if !profileOpts.Enabled() {
		return nil
	}
	p, err := profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	profiler = p
	return nil
}

func stopProfiling(_ *cobra.Command, _ []string) error {
	if profiler == nil {
		return nil
	}
	err := profiler.Stop()
	profiler = nil
	return err
}

// loadConfig loads the configuration for --dir or the working directory.
func loadConfig() (*config.Config, error) {
	dir := configDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = wd
	}
	return config.Load(dir)
}

// setupLogging installs the default logger for a command. Records go to
// the log file; stderr only gets a copy in debug mode and never when
// stdout carries the MCP stream.
func setupLogging(cfg *config.Config, mcpStdio bool) (func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	if cfg.Logging.MaxSizeMB > 0 {
		logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxFiles > 0 {
		logCfg.MaxFiles = cfg.Logging.MaxFiles
	}
	logCfg.WriteToStderr = debugMode && !mcpStdio
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.Debug("logging_ready",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Short()))
	return cleanup, nil
}
