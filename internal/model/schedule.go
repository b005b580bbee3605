package model

import "time"

// Schedule is a calendar event with a single lead-time reminder.
// Date is YYYY-MM-DD and times are HH:MM in the configured zone.
type Schedule struct {
	ID               uint `gorm:"primaryKey"`
	UserID           uint `gorm:"index:idx_schedule_user_date"`
	User             *User
	Title            string
	Location         string
	Date             string `gorm:"index:idx_schedule_user_date;size:10"`
	StartTime        string `gorm:"size:5"`
	EndTime          string `gorm:"size:5"`
	HasReminder      bool
	ReminderMinutes  int
	NotificationSent bool `gorm:"index"`
	IsCompleted      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
