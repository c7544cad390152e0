package models

import "gorm.io/gorm"

// Lifecycle event names recorded by the pipeline.
const (
	EventUserSeen      = "user_seen"
	EventVideoStart    = "video_start"
	EventVideoSuccess  = "video_success"
	EventVideoError    = "video_error"
	EventVideoRejected = "video_rejected"
	EventBannedBlock   = "banned_block"
)

// MaxEventErrorLen bounds the error column; longer diagnostics keep their tail.
const MaxEventErrorLen = 2000

// Event is one append-only metrics record.
type Event struct {
	ID            ULID     `gorm:"primarykey;type:varchar(26)" json:"id"`
	TS            int64    `gorm:"not null;index;index:idx_events_user_ts,priority:2" json:"ts"`
	UserID        int64    `gorm:"not null;index:idx_events_user_ts,priority:1" json:"user_id"`
	Event         string   `gorm:"not null" json:"event"`
	MessageID     *int64   `json:"message_id,omitempty"`
	Effect        *string  `json:"effect,omitempty"`
	VideoDuration *float64 `json:"video_duration,omitempty"`
	VideoFileSize *int64   `json:"video_file_size,omitempty"`
	Error         *string  `json:"error,omitempty"`
}

// TableName overrides the GORM table name.
func (Event) TableName() string {
	return "events"
}

// BeforeCreate generates a ULID if not already set and bounds the error text.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID.IsZero() {
		e.ID = NewULID()
	}
	if e.Error != nil && len(*e.Error) > MaxEventErrorLen {
		tail := (*e.Error)[len(*e.Error)-MaxEventErrorLen:]
		e.Error = &tail
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
