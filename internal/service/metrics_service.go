// Package service provides the business logic layer for tgcircle operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tgcircle/tgcircle/internal/models"
	"github.com/tgcircle/tgcircle/internal/repository"
)

// DailyStats summarises today's activity.
type DailyStats struct {
	TotalUsers      int64 `json:"total_users"`
	NewUsersToday   int64 `json:"new_users_today"`
	ActiveToday     int64 `json:"active_today"`
	VideosStarted   int64 `json:"videos_started"`
	VideosSucceeded int64 `json:"videos_succeeded"`
	VideosFailed    int64 `json:"videos_failed"`
	VideosRejected  int64 `json:"videos_rejected"`
}

// UserCard combines a user row with their lifetime conversion counts.
type UserCard struct {
	User         *models.User `json:"user"`
	SuccessCount int64        `json:"success_count"`
	ErrorCount   int64        `json:"error_count"`
}

// MetricsService records pipeline events and answers the admin queries.
type MetricsService struct {
	users  repository.UserRepository
	events repository.EventRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewMetricsService creates a new MetricsService.
func NewMetricsService(users repository.UserRepository, events repository.EventRepository, logger *slog.Logger) *MetricsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsService{
		users:  users,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *MetricsService) WithClock(now func() time.Time) *MetricsService {
	s.now = now
	return s
}

// startOfToday returns the unix timestamp of local midnight.
func (s *MetricsService) startOfToday() int64 {
	t := s.now()
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Unix()
}

// UpsertUserSeen records contact with a user and appends a user_seen event.
func (s *MetricsService) UpsertUserSeen(ctx context.Context, userID int64, username, fullName string) error {
	nowTS := s.now().Unix()
	if err := s.users.UpsertSeen(ctx, userID, username, fullName, nowTS); err != nil {
		return err
	}
	return s.events.Create(ctx, &models.Event{
		TS:     nowTS,
		UserID: userID,
		Event:  models.EventUserSeen,
	})
}

// EventField sets an optional attribute on a recorded event.
type EventField func(*models.Event)

// WithMessageID attaches the originating message ID.
func WithMessageID(id int64) EventField {
	return func(e *models.Event) { e.MessageID = models.Int64Ptr(id) }
}

// WithEffect attaches the requested effect name.
func WithEffect(effect string) EventField {
	return func(e *models.Event) { e.Effect = models.StringPtr(effect) }
}

// WithVideoDuration attaches the probed duration in seconds.
func WithVideoDuration(seconds float64) EventField {
	return func(e *models.Event) { e.VideoDuration = models.Float64Ptr(seconds) }
}

// WithVideoFileSize attaches the submission size in bytes.
func WithVideoFileSize(bytes int64) EventField {
	return func(e *models.Event) { e.VideoFileSize = models.Int64Ptr(bytes) }
}

// WithError attaches diagnostic text. Long text keeps its tail.
func WithError(text string) EventField {
	return func(e *models.Event) { e.Error = models.StringPtr(text) }
}

// RecordEvent appends a named event for a user. Recording failures are
// logged and swallowed so metrics can never break the pipeline.
func (s *MetricsService) RecordEvent(ctx context.Context, userID int64, name string, fields ...EventField) {
	event := &models.Event{
		TS:     s.now().Unix(),
		UserID: userID,
		Event:  name,
	}
	for _, f := range fields {
		f(event)
	}
	if err := s.events.Create(ctx, event); err != nil {
		s.logger.Error("recording event failed",
			slog.String("event", name),
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// IsBanned reports whether the user is banned.
func (s *MetricsService) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return s.users.IsBanned(ctx, userID)
}

// SetBanned sets or clears the ban flag. Returns false when the user is unknown.
func (s *MetricsService) SetBanned(ctx context.Context, userID int64, banned bool) (bool, error) {
	return s.users.SetBanned(ctx, userID, banned)
}

// StatsToday assembles today's activity summary.
func (s *MetricsService) StatsToday(ctx context.Context) (*DailyStats, error) {
	dayStart := s.startOfToday()
	stats := &DailyStats{}

	var err error
	if stats.TotalUsers, err = s.users.CountTotal(ctx); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if stats.NewUsersToday, err = s.users.CountFirstSeenSince(ctx, dayStart); err != nil {
		return nil, fmt.Errorf("counting new users: %w", err)
	}
	if stats.ActiveToday, err = s.events.CountDistinctUsersByNameSince(ctx, models.EventUserSeen, dayStart); err != nil {
		return nil, fmt.Errorf("counting active users: %w", err)
	}

	counts, err := s.events.CountByNamesSince(ctx, []string{
		models.EventVideoStart,
		models.EventVideoSuccess,
		models.EventVideoError,
		models.EventVideoRejected,
	}, dayStart)
	if err != nil {
		return nil, fmt.Errorf("counting video events: %w", err)
	}
	for _, c := range counts {
		switch c.Event {
		case models.EventVideoStart:
			stats.VideosStarted = c.Count
		case models.EventVideoSuccess:
			stats.VideosSucceeded = c.Count
		case models.EventVideoError:
			stats.VideosFailed = c.Count
		case models.EventVideoRejected:
			stats.VideosRejected = c.Count
		}
	}
	return stats, nil
}

// UsersToday returns users seen since local midnight, newest first.
func (s *MetricsService) UsersToday(ctx context.Context) ([]*models.User, error) {
	return s.users.GetSeenSince(ctx, s.startOfToday())
}

// VideosToday returns today's video lifecycle events, newest first.
func (s *MetricsService) VideosToday(ctx context.Context, limit int) ([]*models.Event, error) {
	return s.events.GetByNamesSince(ctx, []string{
		models.EventVideoStart,
		models.EventVideoSuccess,
		models.EventVideoError,
	}, s.startOfToday(), limit)
}

// ErrorsToday returns today's failed conversions, newest first.
func (s *MetricsService) ErrorsToday(ctx context.Context, limit int) ([]*models.Event, error) {
	return s.events.GetByNamesSince(ctx, []string{models.EventVideoError}, s.startOfToday(), limit)
}

// GetUserCard returns a user's profile plus lifetime conversion counts.
// Returns nil when the user is unknown.
func (s *MetricsService) GetUserCard(ctx context.Context, userID int64) (*UserCard, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	card := &UserCard{User: user}
	if card.SuccessCount, err = s.events.CountForUser(ctx, userID, models.EventVideoSuccess); err != nil {
		return nil, fmt.Errorf("counting successes: %w", err)
	}
	if card.ErrorCount, err = s.events.CountForUser(ctx, userID, models.EventVideoError); err != nil {
		return nil, fmt.Errorf("counting errors: %w", err)
	}
	return card, nil
}

// BannedUsers returns all banned users.
func (s *MetricsService) BannedUsers(ctx context.Context) ([]*models.User, error) {
	return s.users.GetBanned(ctx)
}

// PruneEventsBefore removes events older than the cutoff and returns how many.
func (s *MetricsService) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.events.DeleteBefore(ctx, cutoff.Unix())
}
