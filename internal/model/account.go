package model

import "time"

// TelegramAccount is one linked Telegram identity. SessionString holds the
// serialized MTProto session and is never exposed over JSON.
type TelegramAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_account_user_phone" json:"user_id"`
	User           User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Phone          string    `gorm:"size:32;not null;uniqueIndex:idx_account_user_phone" json:"phone"`
	TelegramUserID int64     `json:"telegram_user_id"`
	Username       string    `json:"username,omitempty"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	SessionString  string    `gorm:"type:text" json:"-"`
	IsPrimary      bool      `gorm:"not null" json:"is_primary"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DisplayName renders the account for the dashboard.
func (a TelegramAccount) DisplayName() string {
	name := a.FirstName
	if a.LastName != "" {
		name += " " + a.LastName
	}
	switch {
	case name != "" && a.Username != "":
		return name + " (@" + a.Username + ")"
	case name != "":
		return name
	case a.Username != "":
		return "@" + a.Username
	default:
		return a.Phone
	}
}
