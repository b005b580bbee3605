package reminder

import (
	"time"

	"github.com/azariacindy/MyStudyMate/internal/model"
)

const (
	MinLeadMinutes = 1
	MaxLeadMinutes = 1440
)

// EventStart combines the schedule's date and start time in loc.
func EventStart(s model.Schedule, loc *time.Location) (time.Time, error) {
	date, err := ParseDate(s.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	start, err := ParseTimeOfDay(s.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return start.On(date), nil
}

// FireWindow returns the half-open [reminderAt, start) interval.
func FireWindow(s model.Schedule, loc *time.Location) (time.Time, time.Time, error) {
	start, err := EventStart(s, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.Add(-time.Duration(s.ReminderMinutes) * time.Minute), start, nil
}

// ShouldFire reports whether the schedule's single reminder is due at now.
// It never fires once sent, once completed, or after the event has started.
// Malformed dates or times never fire.
func ShouldFire(s model.Schedule, now time.Time) bool {
	if s.NotificationSent || s.IsCompleted || !s.HasReminder {
		return false
	}
	reminderAt, start, err := FireWindow(s, now.Location())
	if err != nil {
		return false
	}
	return !now.Before(reminderAt) && now.Before(start)
}
