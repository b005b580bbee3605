package reminder

import (
	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

// Slot is a half-open [Start, End) span within one day.
type Slot struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewSlot parses HH:MM bounds and rejects end <= start.
func NewSlot(start, end string) (Slot, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Slot{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Slot{}, err
	}
	if e <= s {
		return Slot{}, errs.Wrapf(errs.ErrInvalidTimeRange, "%s-%s", start, end)
	}
	return Slot{Start: s, End: e}, nil
}

// Overlaps is symmetric; slots that only touch do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start < o.End && o.Start < s.End
}

// FindConflict returns the first active schedule on date that overlaps slot,
// ignoring excludeID (the schedule being edited). Rows with malformed times
// are ignored.
func FindConflict(existing []model.Schedule, date string, slot Slot, excludeID uint) (model.Schedule, bool) {
	for _, ev := range existing {
		if ev.IsCompleted || ev.Date != date {
			continue
		}
		if excludeID != 0 && ev.ID == excludeID {
			continue
		}
		other, err := NewSlot(ev.StartTime, ev.EndTime)
		if err != nil {
			continue
		}
		if slot.Overlaps(other) {
			return ev, true
		}
	}
	return model.Schedule{}, false
}

func HasConflict(existing []model.Schedule, date string, slot Slot, excludeID uint) bool {
	_, found := FindConflict(existing, date, slot, excludeID)
	return found
}
