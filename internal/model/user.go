package model

import "time"

// Delivery channels a user can receive reminders on.
const (
	ChannelFCM      = "fcm"
	ChannelSNS      = "sns"
	ChannelTelegram = "telegram"
	ChannelLog      = "log"
)

// User owns assignments and schedules and carries the device token reminders go to.
type User struct {
	ID          uint   `gorm:"primaryKey"`
	TelegramID  *int64 `gorm:"uniqueIndex"`
	Name        string
	Email       string `gorm:"index"`
	DeviceToken string
	Channel     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeliveryChannel returns the configured channel, defaulting to FCM.
func (u User) DeliveryChannel() string {
	if u.Channel == "" {
		return ChannelFCM
	}
	return u.Channel
}
