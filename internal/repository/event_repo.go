package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tgcircle/tgcircle/internal/models"
)

// eventRepo implements EventRepository using GORM.
type eventRepo struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) *eventRepo {
	return &eventRepo{db: db}
}

// Create appends an event record.
func (r *eventRepo) Create(ctx context.Context, event *models.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("creating event: %w", err)
	}
	return nil
}

// CountByNameSince returns the number of events with the given name at or after ts.
func (r *eventRepo) CountByNameSince(ctx context.Context, name string, ts int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("event = ? AND ts >= ?", name, ts).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// CountByNamesSince returns per-name counts for events at or after ts.
// Names with no occurrences are absent from the result.
func (r *eventRepo) CountByNamesSince(ctx context.Context, names []string, ts int64) ([]EventCountResult, error) {
	var results []EventCountResult
	if err := r.db.WithContext(ctx).Model(&models.Event{}).
		Select("event, COUNT(*) as count").
		Where("event IN ? AND ts >= ?", names, ts).
		Group("event").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("counting events by name: %w", err)
	}
	return results, nil
}

// CountForUser returns the number of events with the given name for a user.
func (r *eventRepo) CountForUser(ctx context.Context, userID int64, name string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("user_id = ? AND event = ?", userID, name).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting user events: %w", err)
	}
	return count, nil
}

// CountDistinctUsersByNameSince returns how many distinct users produced
// events with the given name at or after ts.
func (r *eventRepo) CountDistinctUsersByNameSince(ctx context.Context, name string, ts int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("event = ? AND ts >= ?", name, ts).
		Distinct("user_id").
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting distinct users: %w", err)
	}
	return count, nil
}

// GetByNamesSince retrieves events with the given names at or after ts,
// newest first, bounded by limit.
func (r *eventRepo) GetByNamesSince(ctx context.Context, names []string, ts int64, limit int) ([]*models.Event, error) {
	var events []*models.Event
	if err := r.db.WithContext(ctx).
		Where("event IN ? AND ts >= ?", names, ts).
		Order("ts DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("getting events: %w", err)
	}
	return events, nil
}

// DeleteBefore deletes events older than ts and returns the number removed.
func (r *eventRepo) DeleteBefore(ctx context.Context, ts int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("ts < ?", ts).Delete(&models.Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
