// Package startup provides utilities for application startup tasks.
package startup

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tgcircle/tgcircle/internal/config"
	"github.com/tgcircle/tgcircle/internal/pipeline"
)

// EnsureDirectories creates the working directories the service needs.
func EnsureDirectories(cfg config.StorageConfig) error {
	for _, dir := range []string{cfg.TempDir, cfg.AssetsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// SweepWorkFiles removes per-job input and output files left behind by a
// previous run. In-memory job state is lost on restart, so anything in the
// temp dir with a job prefix is orphaned.
func SweepWorkFiles(cfg config.StorageConfig, logger *slog.Logger) (int, error) {
	removed, err := pipeline.SweepTempDir(cfg.TempDir, logger)
	if err != nil {
		return 0, fmt.Errorf("sweeping temp dir: %w", err)
	}
	if removed > 0 {
		logger.Info("removed orphaned work files",
			slog.Int("count", removed),
			slog.String("dir", cfg.TempDir),
		)
	}
	return removed, nil
}
