// Package reminder holds the pure decision logic of the reminder engine:
// which assignment stage is due, whether a schedule reminder is inside its
// fire window, and whether two calendar slots overlap.
package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/errs"
)

// TimeOfDay is a wall-clock time stored as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay accepts HH:MM (a trailing :SS is tolerated and dropped).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, errs.Wrapf(errs.ErrInvalidInput, "invalid time %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, errs.Wrapf(errs.ErrInvalidInput, "invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, errs.Wrapf(errs.ErrInvalidInput, "invalid minute in %q", s)
	}
	return TimeOfDay(hour*60 + minute), nil
}

func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location())
}

// Of returns the wall-clock time of ts.
func Of(ts time.Time) TimeOfDay {
	return TimeOfDay(ts.Hour()*60 + ts.Minute())
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(clock.DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, errs.Wrapf(errs.ErrInvalidInput, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
