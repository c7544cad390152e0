package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgcircle/tgcircle/internal/config"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) PruneEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

type fakeBackups struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeBackups) CreateBackup(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "/backups/metrics-x.db.xz", f.err
}

func TestRunRetention(t *testing.T) {
	pruner := &fakePruner{}
	s := NewScheduler(
		config.RetentionConfig{Enabled: true, MaxAge: 90 * 24 * time.Hour},
		config.BackupConfig{},
		pruner, nil,
	)

	s.RunRetention(context.Background())

	require.Len(t, pruner.cutoffs, 1)
	expected := time.Now().Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, expected, pruner.cutoffs[0], time.Minute)
}

func TestRunRetention_ErrorLogged(t *testing.T) {
	pruner := &fakePruner{err: errors.New("locked")}
	s := NewScheduler(config.RetentionConfig{MaxAge: time.Hour}, config.BackupConfig{}, pruner, nil)

	// Must not panic; the error is logged and swallowed.
	s.RunRetention(context.Background())
	assert.Len(t, pruner.cutoffs, 1)
}

func TestRunBackup(t *testing.T) {
	backups := &fakeBackups{}
	s := NewScheduler(config.RetentionConfig{}, config.BackupConfig{Enabled: true}, nil, backups)

	s.RunBackup(context.Background())
	assert.Equal(t, 1, backups.calls)
}

func TestStart_InvalidCron(t *testing.T) {
	s := NewScheduler(
		config.RetentionConfig{Enabled: true, Cron: "not a cron", MaxAge: time.Hour},
		config.BackupConfig{},
		&fakePruner{}, nil,
	)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention sweep")
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(
		config.RetentionConfig{Enabled: true, Cron: "30 3 * * *", MaxAge: time.Hour},
		config.BackupConfig{Enabled: true, Cron: "0 2 * * *"},
		&fakePruner{}, &fakeBackups{},
	)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start must fail")
	s.Stop()

	// Restart after stop works.
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestValidateCron(t *testing.T) {
	s := NewScheduler(config.RetentionConfig{}, config.BackupConfig{}, nil, nil)

	assert.NoError(t, s.ValidateCron("*/5 * * * *"))
	assert.Error(t, s.ValidateCron("banana"))

	next, err := s.ParseCron("0 2 * * *")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))
}
