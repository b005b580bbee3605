package reminder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/azariacindy/MyStudyMate/internal/model"
)

func event() model.Schedule {
	return model.Schedule{
		ID:              7,
		Title:           "Lab",
		Date:            "2026-03-02",
		StartTime:       "14:00",
		EndTime:         "15:00",
		HasReminder:     true,
		ReminderMinutes: 30,
	}
}

func TestShouldFireWindow(t *testing.T) {
	tests := []struct {
		name string
		now  string
		want bool
	}{
		{"too_early", "13:29", false},
		{"window_opens", "13:30", true},
		{"inside", "13:35", true},
		{"last_minute", "13:59", true},
		{"at_start", "14:00", false},
		{"after_start", "14:05", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFire(event(), at("2026-03-02", tt.now)))
		})
	}
}

func TestShouldFireOtherDay(t *testing.T) {
	assert.False(t, ShouldFire(event(), at("2026-03-01", "13:35")))
	assert.False(t, ShouldFire(event(), at("2026-03-03", "13:35")))
}

func TestShouldFireSentOrCompleted(t *testing.T) {
	now := at("2026-03-02", "13:35")

	sent := event()
	sent.NotificationSent = true
	assert.False(t, ShouldFire(sent, now))

	done := event()
	done.IsCompleted = true
	assert.False(t, ShouldFire(done, now))

	muted := event()
	muted.HasReminder = false
	assert.False(t, ShouldFire(muted, now))
}

func TestShouldFireLeadAcrossMidnight(t *testing.T) {
	ev := event()
	ev.StartTime = "00:30"
	ev.EndTime = "01:00"
	ev.ReminderMinutes = 60

	assert.True(t, ShouldFire(ev, at("2026-03-01", "23:45")))
	assert.False(t, ShouldFire(ev, at("2026-03-01", "23:15")))
}

func TestShouldFireMalformed(t *testing.T) {
	ev := event()
	ev.StartTime = "2pm"
	assert.False(t, ShouldFire(ev, at("2026-03-02", "13:35")))

	ev = event()
	ev.Date = "02/03/2026"
	assert.False(t, ShouldFire(ev, at("2026-03-02", "13:35")))
}
