package service

import (
	"context"
	"strings"
	"time"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/repository"
)

// AssignmentInput is the data required to create an assignment.
// HasReminder defaults to true when nil.
type AssignmentInput struct {
	Title       string
	Description string
	Deadline    time.Time
	HasReminder *bool
}

// AssignmentUpdate carries optional changes; nil fields are left alone.
type AssignmentUpdate struct {
	Title       *string
	Description *string
	Deadline    *time.Time
	HasReminder *bool
}

type AssignmentService struct {
	repo     *repository.AssignmentRepository
	messages *ReminderService
	loc      *time.Location
}

func NewAssignmentService(repo *repository.AssignmentRepository, messages *ReminderService, loc *time.Location) *AssignmentService {
	return &AssignmentService{repo: repo, messages: messages, loc: loc}
}

// normalizeDeadline moves a deadline to the last second of its local day.
func (s *AssignmentService) normalizeDeadline(d time.Time) time.Time {
	return clock.EndOfDay(d.In(s.loc))
}

func (s *AssignmentService) Create(ctx context.Context, userID uint, input AssignmentInput) (*model.Assignment, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errs.Wrap(errs.ErrInvalidInput, "title is required")
	}
	if input.Deadline.IsZero() {
		return nil, errs.Wrap(errs.ErrInvalidInput, "deadline is required")
	}
	hasReminder := true
	if input.HasReminder != nil {
		hasReminder = *input.HasReminder
	}

	a := model.Assignment{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Deadline:    s.normalizeDeadline(input.Deadline),
		HasReminder: hasReminder,
	}
	if err := s.repo.Create(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Update applies the changes. Moving the deadline or toggling reminders
// starts the stage sequence over.
func (s *AssignmentService) Update(ctx context.Context, userID, id uint, upd AssignmentUpdate) (*model.Assignment, error) {
	cur, err := s.repo.FindOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, errs.Wrap(errs.ErrInvalidInput, "title is required")
		}
		fields["title"] = title
	}
	if upd.Description != nil {
		fields["description"] = strings.TrimSpace(*upd.Description)
	}
	reset := false
	if upd.Deadline != nil {
		d := s.normalizeDeadline(*upd.Deadline)
		if !d.Equal(cur.Deadline) {
			fields["deadline"] = d
			reset = true
		}
	}
	if upd.HasReminder != nil && *upd.HasReminder != cur.HasReminder {
		fields["has_reminder"] = *upd.HasReminder
		reset = true
	}
	if reset {
		fields["last_notification_type"] = model.StageNone
	}
	if len(fields) > 0 {
		if err := s.repo.Update(ctx, userID, id, fields); err != nil {
			return nil, err
		}
	}
	return s.repo.FindOwned(ctx, userID, id)
}

func (s *AssignmentService) MarkDone(ctx context.Context, userID, id uint) error {
	return s.repo.MarkDone(ctx, userID, id, true)
}

func (s *AssignmentService) Reopen(ctx context.Context, userID, id uint) error {
	return s.repo.MarkDone(ctx, userID, id, false)
}

func (s *AssignmentService) Delete(ctx context.Context, userID, id uint) error {
	return s.repo.Delete(ctx, userID, id)
}

func (s *AssignmentService) ListPending(ctx context.Context, userID uint) ([]model.Assignment, error) {
	return s.repo.ListByUser(ctx, userID, true)
}

// ListByStatus groups the user's open assignments into overdue, due today
// and upcoming.
func (s *AssignmentService) ListByStatus(ctx context.Context, userID uint, now time.Time) (AssignmentGroups, error) {
	items, err := s.repo.ListByUser(ctx, userID, true)
	if err != nil {
		return AssignmentGroups{}, err
	}
	return s.messages.Group(items, now), nil
}
