package preflight

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Aman-CERP/hybridrag/internal/logging"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

const mb = 1024 * 1024

// CheckDiskSpace checks that the volume holding dir has room for the
// rotating log: the live file plus every kept backup. The size of the
// index files is reported as details.
func (c *Checker) CheckDiskSpace(dir string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	free, err := freeBytes(existingParent(dir))
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	budget := c.logBudget()
	result.Message = fmt.Sprintf("%s free, rotated logs need %s", formatBytes(free), formatBytes(budget))
	if free < budget {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	if size := c.indexFootprint(); size > 0 {
		result.Details = fmt.Sprintf("index files use %s", formatBytes(size))
	}
	return result
}

// logBudget is the most space the rotating log writer keeps on disk.
func (c *Checker) logBudget() uint64 {
	defaults := logging.DefaultConfig()
	size := c.cfg.Logging.MaxSizeMB
	if size <= 0 {
		size = defaults.MaxSizeMB
	}
	files := c.cfg.Logging.MaxFiles
	if files <= 0 {
		files = defaults.MaxFiles
	}
	return uint64(size) * uint64(files+1) * mb
}

// indexFootprint sums the sizes of the local index artifacts. Missing
// files count as zero; the index checks report them.
func (c *Checker) indexFootprint() uint64 {
	var total uint64
	add := func(path string) {
		if path == "" {
			return
		}
		_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if info, ierr := d.Info(); ierr == nil && info.Mode().IsRegular() {
				total += uint64(info.Size())
			}
			return nil
		})
	}

	add(c.cfg.Chunks.Path)
	add(c.cfg.Lexical.Path)
	if b := strings.ToLower(c.cfg.Dense.Backend); b == "" || b == store.BackendHNSW {
		add(c.cfg.Dense.Path)
	}
	return total
}

// existingParent returns dir or its closest existing ancestor. The log
// directory is created on first write, so it may not exist yet.
func existingParent(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
