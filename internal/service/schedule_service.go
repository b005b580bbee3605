package service

import (
	"context"
	"strings"
	"time"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/reminder"
	"github.com/azariacindy/MyStudyMate/internal/repository"
)

// ScheduleInput is the data required to create a schedule. HasReminder
// defaults to true and ReminderMinutes to the configured default.
type ScheduleInput struct {
	Title           string
	Location        string
	Date            string
	StartTime       string
	EndTime         string
	HasReminder     *bool
	ReminderMinutes int
}

type ScheduleUpdate struct {
	Title           *string
	Location        *string
	Date            *string
	StartTime       *string
	EndTime         *string
	HasReminder     *bool
	ReminderMinutes *int
}

type ScheduleService struct {
	repo        *repository.ScheduleRepository
	loc         *time.Location
	defaultLead int
}

func NewScheduleService(repo *repository.ScheduleRepository, loc *time.Location, defaultLead int) *ScheduleService {
	if defaultLead < reminder.MinLeadMinutes || defaultLead > reminder.MaxLeadMinutes {
		defaultLead = 30
	}
	return &ScheduleService{repo: repo, loc: loc, defaultLead: defaultLead}
}

func validateLead(minutes int) error {
	if minutes < reminder.MinLeadMinutes || minutes > reminder.MaxLeadMinutes {
		return errs.Wrapf(errs.ErrInvalidInput, "reminder minutes must be within %d..%d", reminder.MinLeadMinutes, reminder.MaxLeadMinutes)
	}
	return nil
}

// normalizeDate validates YYYY-MM-DD and returns it in canonical form.
func (s *ScheduleService) normalizeDate(date string) (string, error) {
	d, err := reminder.ParseDate(date, s.loc)
	if err != nil {
		return "", err
	}
	return clock.DateString(d), nil
}

// rejectConflicts fails the write when candidate overlaps another active
// schedule of its owner on the same date.
func rejectConflicts(candidate model.Schedule, sameDay []model.Schedule) error {
	slot, err := reminder.NewSlot(candidate.StartTime, candidate.EndTime)
	if err != nil {
		return err
	}
	if other, found := reminder.FindConflict(sameDay, candidate.Date, slot, candidate.ID); found {
		return errs.Wrapf(errs.ErrScheduleConflict, "overlaps %q (%s-%s)", other.Title, other.StartTime, other.EndTime)
	}
	return nil
}

func (s *ScheduleService) Create(ctx context.Context, userID uint, in ScheduleInput) (*model.Schedule, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.Wrap(errs.ErrInvalidInput, "title is required")
	}
	date, err := s.normalizeDate(in.Date)
	if err != nil {
		return nil, err
	}
	slot, err := reminder.NewSlot(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}
	lead := in.ReminderMinutes
	if lead == 0 {
		lead = s.defaultLead
	}
	if err := validateLead(lead); err != nil {
		return nil, err
	}
	hasReminder := true
	if in.HasReminder != nil {
		hasReminder = *in.HasReminder
	}

	row := model.Schedule{
		UserID:          userID,
		Title:           title,
		Location:        strings.TrimSpace(in.Location),
		Date:            date,
		StartTime:       slot.Start.String(),
		EndTime:         slot.End.String(),
		HasReminder:     hasReminder,
		ReminderMinutes: lead,
	}
	if err := s.repo.CreateChecked(ctx, &row, rejectConflicts); err != nil {
		return nil, err
	}
	return &row, nil
}

// Update applies the changes inside one transaction. Moving the date or
// start time, or changing the lead, re-arms the reminder. Changing the
// slot of an active schedule re-runs the conflict check.
func (s *ScheduleService) Update(ctx context.Context, userID, id uint, upd ScheduleUpdate) (*model.Schedule, error) {
	return s.repo.UpdateChecked(ctx, userID, id, func(row *model.Schedule) (bool, error) {
		if upd.Title != nil {
			title := strings.TrimSpace(*upd.Title)
			if title == "" {
				return false, errs.Wrap(errs.ErrInvalidInput, "title is required")
			}
			row.Title = title
		}
		if upd.Location != nil {
			row.Location = strings.TrimSpace(*upd.Location)
		}
		if upd.HasReminder != nil {
			row.HasReminder = *upd.HasReminder
		}

		date, start, end := row.Date, row.StartTime, row.EndTime
		if upd.Date != nil {
			d, err := s.normalizeDate(*upd.Date)
			if err != nil {
				return false, err
			}
			date = d
		}
		if upd.StartTime != nil {
			start = *upd.StartTime
		}
		if upd.EndTime != nil {
			end = *upd.EndTime
		}
		slot, err := reminder.NewSlot(start, end)
		if err != nil {
			return false, err
		}
		start, end = slot.Start.String(), slot.End.String()

		lead := row.ReminderMinutes
		if upd.ReminderMinutes != nil {
			if err := validateLead(*upd.ReminderMinutes); err != nil {
				return false, err
			}
			lead = *upd.ReminderMinutes
		}

		if date != row.Date || start != row.StartTime || lead != row.ReminderMinutes {
			row.NotificationSent = false
		}
		slotChanged := date != row.Date || start != row.StartTime || end != row.EndTime

		row.Date, row.StartTime, row.EndTime, row.ReminderMinutes = date, start, end, lead
		return slotChanged && !row.IsCompleted, nil
	}, rejectConflicts)
}

// ToggleComplete flips the completed flag. Reopening a schedule makes it
// active again, so it must not overlap anything that was booked meanwhile.
func (s *ScheduleService) ToggleComplete(ctx context.Context, userID, id uint) (*model.Schedule, error) {
	return s.repo.UpdateChecked(ctx, userID, id, func(row *model.Schedule) (bool, error) {
		row.IsCompleted = !row.IsCompleted
		return !row.IsCompleted, nil
	}, rejectConflicts)
}

func (s *ScheduleService) Delete(ctx context.Context, userID, id uint) error {
	return s.repo.Delete(ctx, userID, id)
}

func (s *ScheduleService) ListByDate(ctx context.Context, userID uint, date string) ([]model.Schedule, error) {
	d, err := s.normalizeDate(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByDate(ctx, userID, d)
}

func (s *ScheduleService) Upcoming(ctx context.Context, userID uint, now time.Time, limit int) ([]model.Schedule, error) {
	return s.repo.Upcoming(ctx, userID, clock.DateString(now.In(s.loc)), limit)
}

// CheckConflict reports whether [start, end) on date overlaps one of the
// user's active schedules, ignoring excludeID.
func (s *ScheduleService) CheckConflict(ctx context.Context, userID uint, date, start, end string, excludeID uint) (bool, error) {
	d, err := s.normalizeDate(date)
	if err != nil {
		return false, err
	}
	slot, err := reminder.NewSlot(start, end)
	if err != nil {
		return false, err
	}
	sameDay, err := s.repo.ActiveOnDate(ctx, userID, d)
	if err != nil {
		return false, err
	}
	return reminder.HasConflict(sameDay, d, slot, excludeID), nil
}
