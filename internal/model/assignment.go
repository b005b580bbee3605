package model

import "time"

// Assignment is a deadline-bearing item that walks through reminder stages.
type Assignment struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"index"`
	User        *User
	Title       string
	Description string
	Deadline    time.Time `gorm:"index"`
	IsDone      bool      `gorm:"index"`
	HasReminder bool
	LastStage   Stage `gorm:"column:last_notification_type;size:16"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
