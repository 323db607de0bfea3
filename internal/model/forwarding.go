package model

import "time"

// ForwardingConfig pairs a source and a destination channel for one user.
// Channel ids are kept in their external "-100..." form.
type ForwardingConfig struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	User                 User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	SourceChannelID      int64     `json:"source_channel_id"`
	SourceTitle          string    `json:"source_title,omitempty"`
	DestinationChannelID int64     `json:"destination_channel_id"`
	DestinationTitle     string    `json:"destination_title,omitempty"`
	IsActive             bool      `gorm:"not null" json:"is_active"`
	ReplacementsEnabled  bool      `gorm:"not null" json:"replacements_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Configured reports whether both ends of the route are set.
func (c ForwardingConfig) Configured() bool {
	return c.SourceChannelID != 0 && c.DestinationChannelID != 0
}

// TextReplacement is one original/replacement pair applied to relayed text.
type TextReplacement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_replacement_user_original" json:"user_id"`
	User        User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Original    string    `gorm:"size:1024;not null;uniqueIndex:idx_replacement_user_original" json:"original"`
	Replacement string    `gorm:"size:1024" json:"replacement"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Forwarding actions recorded in ForwardingLog.
const (
	ActionForward = "forward"
	ActionCopy    = "copy"
	ActionEdit    = "edit"
)

// ForwardingLog records one relayed message and doubles as the
// source-to-destination message id mapping used for edits.
type ForwardingLog struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               uint      `gorm:"not null;index" json:"user_id"`
	ConfigID             uint      `gorm:"not null;index:idx_log_route_msg,priority:1" json:"config_id"`
	SourceChannelID      int64     `gorm:"index:idx_log_route_msg,priority:2" json:"source_channel_id"`
	SourceMessageID      int       `gorm:"index:idx_log_route_msg,priority:3" json:"source_message_id"`
	DestinationChannelID int64     `json:"destination_channel_id"`
	DestinationMessageID int       `json:"destination_message_id"`
	Action               string    `gorm:"size:16;not null" json:"action"`
	CreatedAt            time.Time `gorm:"index" json:"created_at"`
}
