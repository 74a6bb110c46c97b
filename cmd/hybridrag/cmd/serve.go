package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/httpapi"
	"github.com/Aman-CERP/hybridrag/internal/mcp"
	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

// Transports accepted by serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

func newServeCmd() *cobra.Command {
	var transport string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the retrieval engine to MCP or HTTP clients",
		Long: `Load the indices once and serve queries until interrupted.

Transports:
  stdio  MCP over stdin/stdout (tools: retrieve, retrieve_context, index_stats)
  http   JSON API: POST /v1/retrieve, POST /v1/context, GET /v1/stats, GET /healthz

With stdio, stdout carries JSON-RPC only; logs go to the log file.`,
		Example: `  # MCP server for an AI client
  hybridrag serve

  # HTTP API on port 9000
  hybridrag serve --transport http --addr :9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio, http (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for the http transport (default from config)")

	return cmd
}

func runServe(ctx context.Context, transport, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.Server.Transport
	}
	if transport != TransportStdio && transport != TransportHTTP {
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	cleanupLogging, err := setupLogging(cfg, transport == TransportStdio)
	if err != nil {
		return err
	}
	defer cleanupLogging()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := search.Open(ctx, cfg)
	if err != nil {
		slog.Error("engine_load_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = engine.Close() }()

	switch transport {
	case TransportStdio:
		if output.IsTTY(os.Stdin) {
			slog.Warn("stdin_is_terminal",
				slog.String("hint", "the stdio transport expects an MCP client on stdin"))
		}
		server, err := mcp.NewServer(engine)
		if err != nil {
			return err
		}
		err = server.Serve(ctx, TransportStdio)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	default:
		server, err := httpapi.New(engine, httpapi.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			Logger:       slog.Default(),
		})
		if err != nil {
			return err
		}
		return server.Start(ctx)
	}
}
