// Package pipeline orchestrates a video submission end to end: admission
// checks, download, probe, effect command assembly, supervised transcode
// and delivery of the finished circle note.
package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Temp file prefixes. Startup cleanup sweeps leftovers by these.
const (
	InputPrefix  = "input_"
	OutputPrefix = "circle_"
)

// Job holds the working files of one conversion.
type Job struct {
	InputPath  string
	OutputPath string
}

// NewJob allocates unique working paths under tempDir.
func NewJob(tempDir string) *Job {
	id := uuid.New().String()
	return &Job{
		InputPath:  filepath.Join(tempDir, InputPrefix+id+".mp4"),
		OutputPath: filepath.Join(tempDir, OutputPrefix+id+".mp4"),
	}
}

// Cleanup removes the working files. Missing files are fine.
func (j *Job) Cleanup(logger *slog.Logger) {
	for _, path := range []string{j.InputPath, j.OutputPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("removing temp file failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// SweepTempDir removes orphaned working files left behind by a previous
// run, returning how many were removed.
func SweepTempDir(tempDir string, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading temp dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, InputPrefix) && !strings.HasPrefix(name, OutputPrefix) {
			continue
		}
		path := filepath.Join(tempDir, name)
		if err := os.Remove(path); err != nil {
			logger.Warn("removing orphaned temp file failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}
	return removed, nil
}
