package models

import "gorm.io/gorm"

// User is a messaging-platform user seen by the bot.
// UserID is the platform identity, not a generated key.
type User struct {
	UserID      int64   `gorm:"primarykey" json:"user_id"`
	Username    *string `json:"username"`
	FullName    *string `json:"full_name"`
	FirstSeenTS int64   `gorm:"not null" json:"first_seen_ts"`
	LastSeenTS  int64   `gorm:"not null" json:"last_seen_ts"`
	IsBanned    bool    `gorm:"not null;default:false" json:"is_banned"`
}

// TableName overrides the GORM table name.
func (User) TableName() string {
	return "users"
}

// DisplayName returns the best available human-readable name.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return "(no name)"
}

// BeforeSave keeps last_seen monotonic.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.LastSeenTS < u.FirstSeenTS {
		u.LastSeenTS = u.FirstSeenTS
	}
	return nil
}
