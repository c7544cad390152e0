// Package repository defines data access interfaces for the tgcircle metrics
// store. All database access goes through these interfaces, enabling easy
// testing and database backend switching.
package repository

import (
	"context"

	"github.com/tgcircle/tgcircle/internal/models"
)

// EventCountResult represents an event name with its occurrence count.
type EventCountResult struct {
	Event string `json:"event"`
	Count int64  `json:"count"`
}

// UserRepository defines operations for user persistence.
type UserRepository interface {
	// UpsertSeen creates the user on first contact and refreshes the
	// username, full name and last-seen timestamp on every later one.
	UpsertSeen(ctx context.Context, userID int64, username, fullName string, nowTS int64) error
	// GetByID retrieves a user by platform ID. Returns nil when unknown.
	GetByID(ctx context.Context, userID int64) (*models.User, error)
	// IsBanned reports whether the user is banned. Unknown users are not banned.
	IsBanned(ctx context.Context, userID int64) (bool, error)
	// SetBanned sets or clears the ban flag. Returns false when the user is unknown.
	SetBanned(ctx context.Context, userID int64, banned bool) (bool, error)
	// GetBanned retrieves all banned users ordered by last seen, newest first.
	GetBanned(ctx context.Context) ([]*models.User, error)
	// CountTotal returns the total number of known users.
	CountTotal(ctx context.Context) (int64, error)
	// CountFirstSeenSince returns the number of users first seen at or after ts.
	CountFirstSeenSince(ctx context.Context, ts int64) (int64, error)
	// GetSeenSince retrieves users last seen at or after ts, newest first.
	GetSeenSince(ctx context.Context, ts int64) ([]*models.User, error)
}

// EventRepository defines operations for metrics event persistence.
type EventRepository interface {
	// Create appends an event record.
	Create(ctx context.Context, event *models.Event) error
	// CountByNameSince returns the number of events with the given name at or after ts.
	CountByNameSince(ctx context.Context, name string, ts int64) (int64, error)
	// CountByNamesSince returns per-name counts for events at or after ts.
	CountByNamesSince(ctx context.Context, names []string, ts int64) ([]EventCountResult, error)
	// CountForUser returns the number of events with the given name for a user.
	CountForUser(ctx context.Context, userID int64, name string) (int64, error)
	// CountDistinctUsersByNameSince returns how many distinct users produced
	// events with the given name at or after ts.
	CountDistinctUsersByNameSince(ctx context.Context, name string, ts int64) (int64, error)
	// GetByNamesSince retrieves events with the given names at or after ts,
	// newest first, bounded by limit.
	GetByNamesSince(ctx context.Context, names []string, ts int64, limit int) ([]*models.Event, error)
	// DeleteBefore deletes events older than ts and returns the number removed.
	DeleteBefore(ctx context.Context, ts int64) (int64, error)
}
