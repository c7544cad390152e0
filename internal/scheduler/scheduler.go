// Package scheduler runs the recurring maintenance tasks: the metrics
// event retention sweep and the metrics store backup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tgcircle/tgcircle/internal/config"
)

// MetricsPruner removes metrics events older than a cutoff.
type MetricsPruner interface {
	PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BackupCreator snapshots the metrics store.
type BackupCreator interface {
	CreateBackup(ctx context.Context) (string, error)
}

// Scheduler wires the retention and backup tasks onto cron schedules.
type Scheduler struct {
	mu sync.Mutex

	retention config.RetentionConfig
	backup    config.BackupConfig

	pruner  MetricsPruner
	backups BackupCreator

	logger *slog.Logger
	parser cron.Parser
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler.
func NewScheduler(retention config.RetentionConfig, backup config.BackupConfig, pruner MetricsPruner, backups BackupCreator) *Scheduler {
	return &Scheduler{
		retention: retention,
		backup:    backup,
		pruner:    pruner,
		backups:   backups,
		logger:    slog.Default(),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Start registers the enabled tasks and begins running them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithParser(s.parser))

	if s.retention.Enabled && s.pruner != nil {
		if _, err := s.cron.AddFunc(s.retention.Cron, func() { s.RunRetention(s.ctx) }); err != nil {
			return fmt.Errorf("scheduling retention sweep: %w", err)
		}
		s.logger.Info("retention sweep scheduled",
			slog.String("cron", s.retention.Cron),
			slog.Duration("max_age", s.retention.MaxAge),
		)
	}

	if s.backup.Enabled && s.backups != nil {
		if _, err := s.cron.AddFunc(s.backup.Cron, func() { s.RunBackup(s.ctx) }); err != nil {
			return fmt.Errorf("scheduling backup: %w", err)
		}
		s.logger.Info("backup scheduled", slog.String("cron", s.backup.Cron))
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler, waiting for a running task to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunRetention deletes metrics events older than the retention window.
func (s *Scheduler) RunRetention(ctx context.Context) {
	if s.pruner == nil {
		return
	}

	cutoff := time.Now().Add(-s.retention.MaxAge)
	deleted, err := s.pruner.PruneEventsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
		return
	}

	s.logger.Info("retention sweep finished",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff),
	)
}

// RunBackup snapshots the metrics store.
func (s *Scheduler) RunBackup(ctx context.Context) {
	if s.backups == nil {
		return
	}

	path, err := s.backups.CreateBackup(ctx)
	if err != nil {
		s.logger.Error("backup failed", slog.String("error", err.Error()))
		return
	}

	s.logger.Info("backup finished", slog.String("path", path))
}

// ParseCron validates a cron expression and returns the next run time.
func (s *Scheduler) ParseCron(expr string) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(time.Now()), nil
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}
