package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tgcircle/tgcircle/internal/models"
)

// userRepo implements UserRepository using GORM.
type userRepo struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *userRepo {
	return &userRepo{db: db}
}

// UpsertSeen creates the user on first contact and refreshes the profile
// fields and last-seen timestamp on every later one. The first-seen
// timestamp and ban flag are never touched by the upsert.
func (r *userRepo) UpsertSeen(ctx context.Context, userID int64, username, fullName string, nowTS int64) error {
	user := &models.User{
		UserID:      userID,
		Username:    models.StringPtr(username),
		FullName:    models.StringPtr(fullName),
		FirstSeenTS: nowTS,
		LastSeenTS:  nowTS,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "full_name", "last_seen_ts"}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by platform ID.
func (r *userRepo) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting user by ID: %w", err)
	}
	return &user, nil
}

// IsBanned reports whether the user is banned.
func (r *userRepo) IsBanned(ctx context.Context, userID int64) (bool, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil && user.IsBanned, nil
}

// SetBanned sets or clears the ban flag.
func (r *userRepo) SetBanned(ctx context.Context, userID int64, banned bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("is_banned", banned)
	if res.Error != nil {
		return false, fmt.Errorf("setting ban flag: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetBanned retrieves all banned users, most recently seen first.
func (r *userRepo) GetBanned(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := r.db.WithContext(ctx).Where("is_banned = ?", true).Order("last_seen_ts DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("getting banned users: %w", err)
	}
	return users, nil
}

// CountTotal returns the total number of known users.
func (r *userRepo) CountTotal(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// CountFirstSeenSince returns the number of users first seen at or after ts.
func (r *userRepo) CountFirstSeenSince(ctx context.Context, ts int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("first_seen_ts >= ?", ts).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting new users: %w", err)
	}
	return count, nil
}

// GetSeenSince retrieves users last seen at or after ts, newest first.
func (r *userRepo) GetSeenSince(ctx context.Context, ts int64) ([]*models.User, error) {
	var users []*models.User
	if err := r.db.WithContext(ctx).Where("last_seen_ts >= ?", ts).Order("last_seen_ts DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("getting recently seen users: %w", err)
	}
	return users, nil
}
