package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tgcircle/tgcircle/internal/models"
	"github.com/tgcircle/tgcircle/internal/repository"
)

func setupMetricsService(t *testing.T) (*MetricsService, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Event{}))

	svc := NewMetricsService(
		repository.NewUserRepository(db),
		repository.NewEventRepository(db),
		nil,
	)
	return svc, db
}

func TestMetricsService_UpsertUserSeen(t *testing.T) {
	svc, db := setupMetricsService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpsertUserSeen(ctx, 100, "alice", "Alice A."))

	var user models.User
	require.NoError(t, db.First(&user, "user_id = ?", 100).Error)
	assert.Equal(t, "alice", *user.Username)

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Where("event = ?", models.EventUserSeen).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMetricsService_RecordEvent(t *testing.T) {
	svc, db := setupMetricsService(t)
	ctx := context.Background()

	svc.RecordEvent(ctx, 100, models.EventVideoSuccess,
		WithMessageID(42),
		WithEffect("meme"),
		WithVideoDuration(12.5),
		WithVideoFileSize(1<<20),
	)

	var event models.Event
	require.NoError(t, db.First(&event).Error)
	assert.Equal(t, models.EventVideoSuccess, event.Event)
	assert.Equal(t, int64(42), *event.MessageID)
	assert.Equal(t, "meme", *event.Effect)
	assert.Equal(t, 12.5, *event.VideoDuration)
	assert.Equal(t, int64(1<<20), *event.VideoFileSize)
}

func TestMetricsService_StatsToday(t *testing.T) {
	svc, _ := setupMetricsService(t)
	ctx := context.Background()

	now := time.Now()
	svc.WithClock(func() time.Time { return now })

	require.NoError(t, svc.UpsertUserSeen(ctx, 1, "a", "A"))
	require.NoError(t, svc.UpsertUserSeen(ctx, 2, "b", "B"))
	svc.RecordEvent(ctx, 1, models.EventVideoStart)
	svc.RecordEvent(ctx, 1, models.EventVideoSuccess, WithEffect("normal"))
	svc.RecordEvent(ctx, 2, models.EventVideoStart)
	svc.RecordEvent(ctx, 2, models.EventVideoError, WithError("boom"))
	svc.RecordEvent(ctx, 2, models.EventVideoRejected, WithError("file_size_limit"))

	stats, err := svc.StatsToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.NewUsersToday)
	assert.Equal(t, int64(2), stats.ActiveToday)
	assert.Equal(t, int64(2), stats.VideosStarted)
	assert.Equal(t, int64(1), stats.VideosSucceeded)
	assert.Equal(t, int64(1), stats.VideosFailed)
	assert.Equal(t, int64(1), stats.VideosRejected)
}

func TestMetricsService_VideosToday_ExcludesYesterday(t *testing.T) {
	svc, _ := setupMetricsService(t)
	ctx := context.Background()

	now := time.Now()

	svc.WithClock(func() time.Time { return now.Add(-48 * time.Hour) })
	svc.RecordEvent(ctx, 1, models.EventVideoStart)

	svc.WithClock(func() time.Time { return now })
	svc.RecordEvent(ctx, 1, models.EventVideoStart)
	svc.RecordEvent(ctx, 1, models.EventVideoError, WithError("boom"))

	videos, err := svc.VideosToday(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, videos, 2)

	errors, err := svc.ErrorsToday(ctx, 50)
	require.NoError(t, err)
	require.Len(t, errors, 1)
	assert.Equal(t, "boom", *errors[0].Error)
}

func TestMetricsService_BanLifecycle(t *testing.T) {
	svc, _ := setupMetricsService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpsertUserSeen(ctx, 7, "mallory", "Mallory"))

	banned, err := svc.IsBanned(ctx, 7)
	require.NoError(t, err)
	assert.False(t, banned)

	ok, err := svc.SetBanned(ctx, 7, true)
	require.NoError(t, err)
	assert.True(t, ok)

	banned, err = svc.IsBanned(ctx, 7)
	require.NoError(t, err)
	assert.True(t, banned)

	users, err := svc.BannedUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(7), users[0].UserID)

	// Unknown users cannot be banned.
	ok, err = svc.SetBanned(ctx, 999, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetricsService_GetUserCard(t *testing.T) {
	svc, _ := setupMetricsService(t)
	ctx := context.Background()

	card, err := svc.GetUserCard(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, card)

	require.NoError(t, svc.UpsertUserSeen(ctx, 5, "carol", "Carol"))
	svc.RecordEvent(ctx, 5, models.EventVideoSuccess)
	svc.RecordEvent(ctx, 5, models.EventVideoSuccess)
	svc.RecordEvent(ctx, 5, models.EventVideoError, WithError("x"))

	card, err = svc.GetUserCard(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, int64(2), card.SuccessCount)
	assert.Equal(t, int64(1), card.ErrorCount)
}

func TestMetricsService_PruneEventsBefore(t *testing.T) {
	svc, db := setupMetricsService(t)
	ctx := context.Background()

	now := time.Now()
	svc.WithClock(func() time.Time { return now.Add(-100 * 24 * time.Hour) })
	svc.RecordEvent(ctx, 1, models.EventVideoStart)

	svc.WithClock(func() time.Time { return now })
	svc.RecordEvent(ctx, 1, models.EventVideoStart)

	deleted, err := svc.PruneEventsBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
