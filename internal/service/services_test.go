package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/reminder"
	"github.com/azariacindy/MyStudyMate/internal/repository"
)

type stack struct {
	db          *gorm.DB
	users       *repository.UserRepository
	assignRepo  *repository.AssignmentRepository
	schedRepo   *repository.ScheduleRepository
	assignments *AssignmentService
	schedules   *ScheduleService
	messages    *ReminderService
	user        *model.User
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := repository.NewDB(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	s := &stack{
		db:         db,
		users:      repository.NewUserRepository(db),
		assignRepo: repository.NewAssignmentRepository(db),
		schedRepo:  repository.NewScheduleRepository(db),
		messages:   NewReminderService(jakarta),
	}
	s.assignments = NewAssignmentService(s.assignRepo, s.messages, jakarta)
	s.schedules = NewScheduleService(s.schedRepo, jakarta, 30)

	s.user = &model.User{Name: "Dina", DeviceToken: "tok", Channel: model.ChannelFCM}
	require.NoError(t, s.users.Create(context.Background(), s.user))
	return s
}

func boolPtr(b bool) *bool           { return &b }
func strPtr(s string) *string        { return &s }
func intPtr(i int) *int              { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func TestAssignmentCreateNormalizesDeadline(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	a, err := s.assignments.Create(ctx, s.user.ID, AssignmentInput{Title: " Essay ", Deadline: at("2026-03-05", "10:00")})
	require.NoError(t, err)
	assert.Equal(t, "Essay", a.Title)
	assert.True(t, a.HasReminder)
	assert.True(t, clock.EndOfDay(at("2026-03-05", "00:00")).Equal(a.Deadline))

	_, err = s.assignments.Create(ctx, s.user.ID, AssignmentInput{Title: "", Deadline: at("2026-03-05", "10:00")})
	assert.True(t, errs.Is(err, errs.ErrValidation))
	_, err = s.assignments.Create(ctx, s.user.ID, AssignmentInput{Title: "x"})
	assert.True(t, errs.Is(err, errs.ErrInvalidInput))
}

func TestAssignmentUpdateResetsStage(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	a, err := s.assignments.Create(ctx, s.user.ID, AssignmentInput{Title: "Essay", Deadline: at("2026-03-05", "10:00")})
	require.NoError(t, err)
	require.NoError(t, s.assignRepo.AdvanceStage(ctx, a.ID, model.StageNone, model.StageHMinus3))

	// Title only: stage kept.
	got, err := s.assignments.Update(ctx, s.user.ID, a.ID, AssignmentUpdate{Title: strPtr("Essay v2")})
	require.NoError(t, err)
	assert.Equal(t, model.StageHMinus3, got.LastStage)

	// Same day, different hour: normalizes to the same deadline, stage kept.
	got, err = s.assignments.Update(ctx, s.user.ID, a.ID, AssignmentUpdate{Deadline: timePtr(at("2026-03-05", "18:00"))})
	require.NoError(t, err)
	assert.Equal(t, model.StageHMinus3, got.LastStage)

	got, err = s.assignments.Update(ctx, s.user.ID, a.ID, AssignmentUpdate{Deadline: timePtr(at("2026-03-09", "10:00"))})
	require.NoError(t, err)
	assert.Equal(t, model.StageNone, got.LastStage)
	assert.Equal(t, "2026-03-09", clock.DateString(got.Deadline.In(jakarta)))

	require.NoError(t, s.assignRepo.AdvanceStage(ctx, a.ID, model.StageNone, model.StageHMinus3))
	got, err = s.assignments.Update(ctx, s.user.ID, a.ID, AssignmentUpdate{HasReminder: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, model.StageNone, got.LastStage)
	assert.False(t, got.HasReminder)

	_, err = s.assignments.Update(ctx, s.user.ID+1, a.ID, AssignmentUpdate{Title: strPtr("x")})
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestAssignmentListByStatus(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := at("2026-03-05", "09:00")

	for _, in := range []AssignmentInput{
		{Title: "late", Deadline: at("2026-03-03", "10:00")},
		{Title: "today", Deadline: at("2026-03-05", "10:00")},
		{Title: "soon", Deadline: at("2026-03-07", "10:00")},
	} {
		_, err := s.assignments.Create(ctx, s.user.ID, in)
		require.NoError(t, err)
	}
	done, err := s.assignments.Create(ctx, s.user.ID, AssignmentInput{Title: "finished", Deadline: at("2026-03-06", "10:00")})
	require.NoError(t, err)
	require.NoError(t, s.assignments.MarkDone(ctx, s.user.ID, done.ID))

	groups, err := s.assignments.ListByStatus(ctx, s.user.ID, now)
	require.NoError(t, err)
	require.Len(t, groups.Overdue, 1)
	require.Len(t, groups.DueToday, 1)
	require.Len(t, groups.Upcoming, 1)
	assert.Equal(t, "late", groups.Overdue[0].Title)
	assert.Equal(t, "soon", groups.Upcoming[0].Title)

	pending, err := s.assignments.ListPending(ctx, s.user.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	require.NoError(t, s.assignments.Delete(ctx, s.user.ID, done.ID))
	assert.True(t, errs.Is(s.assignments.Delete(ctx, s.user.ID, done.ID), errs.ErrNotFound))
}

func TestScheduleCreateValidation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ScheduleInput
		want error
	}{
		{"no_title", ScheduleInput{Date: "2026-03-02", StartTime: "10:00", EndTime: "11:00"}, errs.ErrInvalidInput},
		{"bad_date", ScheduleInput{Title: "x", Date: "2/3/2026", StartTime: "10:00", EndTime: "11:00"}, errs.ErrInvalidInput},
		{"inverted", ScheduleInput{Title: "x", Date: "2026-03-02", StartTime: "11:00", EndTime: "10:00"}, errs.ErrInvalidTimeRange},
		{"lead_too_long", ScheduleInput{Title: "x", Date: "2026-03-02", StartTime: "10:00", EndTime: "11:00", ReminderMinutes: 1441}, errs.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.schedules.Create(ctx, s.user.ID, tt.in)
			require.Error(t, err)
			assert.True(t, errs.Is(err, tt.want), "got %v", err)
			assert.True(t, errs.Is(err, errs.ErrValidation))
		})
	}

	ev, err := s.schedules.Create(ctx, s.user.ID, ScheduleInput{Title: "Lab", Date: "2026-03-02", StartTime: "9:00", EndTime: "10:30"})
	require.NoError(t, err)
	assert.Equal(t, 30, ev.ReminderMinutes)
	assert.Equal(t, "09:00", ev.StartTime)
	assert.True(t, ev.HasReminder)
}

func TestScheduleConcurrentCreatesKeepOneSlot(t *testing.T) {
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "studymate.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	ctx := context.Background()
	user := &model.User{Name: "Dina", DeviceToken: "tok", Channel: model.ChannelFCM}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, user))
	schedules := NewScheduleService(repository.NewScheduleRepository(db), jakarta, 30)

	const writers = 6
	results := make([]error, writers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			in := ScheduleInput{
				Title:     fmt.Sprintf("Study group %d", i),
				Date:      "2026-03-02",
				StartTime: fmt.Sprintf("10:%02d", i*5),
				EndTime:   "11:30",
			}
			_, results[i] = schedules.Create(ctx, user.ID, in)
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	for _, err := range results {
		if err == nil {
			created++
			continue
		}
		assert.True(t, errs.Is(err, errs.ErrScheduleConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, created)

	var rows int64
	require.NoError(t, db.Model(&model.Schedule{}).Where("user_id = ?", user.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestScheduleConflicts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	first, err := s.schedules.Create(ctx, s.user.ID, ScheduleInput{Title: "Math", Date: "2026-03-02", StartTime: "10:00", EndTime: "11:00"})
	require.NoError(t, err)

	_, err = s.schedules.Create(ctx, s.user.ID, ScheduleInput{Title: "Physics", Date: "2026-03-02", StartTime: "10:30", EndTime: "11:30"})
	assert.True(t, errs.Is(err, errs.ErrScheduleConflict))

	second, err := s.schedules.Create(ctx, s.user.ID, ScheduleInput{Title: "Physics", Date: "2026-03-02", StartTime: "11:00", EndTime: "12:00"})
	require.NoError(t, err)

	conflict, err := s.schedules.CheckConflict(ctx, s.user.ID, "2026-03-02", "10:30", "11:30", 0)
	require.NoError(t, err)
	assert.True(t, conflict)
	conflict, err = s.schedules.CheckConflict(ctx, s.user.ID, "2026-03-02", "10:00", "11:00", first.ID)
	require.NoError(t, err)
	assert.False(t, conflict, "an edit is not checked against itself")

	// Moving the second onto the first is rejected; moving the first in place is fine.
	_, err = s.schedules.Update(ctx, s.user.ID, second.ID, ScheduleUpdate{StartTime: strPtr("10:45")})
	assert.True(t, errs.Is(err, errs.ErrScheduleConflict))
	_, err = s.schedules.Update(ctx, s.user.ID, first.ID, ScheduleUpdate{EndTime: strPtr("10:59")})
	require.NoError(t, err)

	// A completed schedule frees its slot, and reopening it re-checks.
	_, err = s.schedules.ToggleComplete(ctx, s.user.ID, first.ID)
	require.NoError(t, err)
	_, err = s.schedules.Create(ctx, s.user.ID, ScheduleInput{Title: "Chem", Date: "2026-03-02", StartTime: "10:00", EndTime: "10:30"})
	require.NoError(t, err)
	_, err = s.schedules.ToggleComplete(ctx, s.user.ID, first.ID)
	assert.True(t, errs.Is(err, errs.ErrScheduleConflict))

	other := &model.User{Name: "Rafi"}
	require.NoError(t, s.users.Create(ctx, other))
	_, err = s.schedules.Create(ctx, other.ID, ScheduleInput{Title: "Math", Date: "2026-03-02", StartTime: "10:00", EndTime: "11:00"})
	assert.NoError(t, err, "owners do not conflict with each other")
}

func TestScheduleUpdateRearmsReminder(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	ev, err := s.schedules.Create(ctx, s.user.ID, ScheduleInput{Title: "Lab", Date: "2026-03-02", StartTime: "14:00", EndTime: "15:00"})
	require.NoError(t, err)

	markSent := func() {
		require.NoError(t, s.schedRepo.MarkSent(ctx, ev.ID))
	}

	markSent()
	got, err := s.schedules.Update(ctx, s.user.ID, ev.ID, ScheduleUpdate{Title: strPtr("Lab 2"), EndTime: strPtr("15:30")})
	require.NoError(t, err)
	assert.True(t, got.NotificationSent, "title and end time do not re-arm")

	got, err = s.schedules.Update(ctx, s.user.ID, ev.ID, ScheduleUpdate{StartTime: strPtr("14:15")})
	require.NoError(t, err)
	assert.False(t, got.NotificationSent)

	markSent()
	got, err = s.schedules.Update(ctx, s.user.ID, ev.ID, ScheduleUpdate{ReminderMinutes: intPtr(60)})
	require.NoError(t, err)
	assert.False(t, got.NotificationSent)
	assert.Equal(t, 60, got.ReminderMinutes)

	markSent()
	got, err = s.schedules.Update(ctx, s.user.ID, ev.ID, ScheduleUpdate{Date: strPtr("2026-03-03")})
	require.NoError(t, err)
	assert.False(t, got.NotificationSent)

	_, err = s.schedules.Update(ctx, s.user.ID, ev.ID, ScheduleUpdate{ReminderMinutes: intPtr(0)})
	assert.True(t, errs.Is(err, errs.ErrInvalidInput))

	rows, err := s.schedules.Upcoming(ctx, s.user.ID, at("2026-03-03", "08:00"), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-03-03", rows[0].Date)
}

func TestDispatcherAgainstDatabase(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := at("2026-03-02", "13:35")

	_, err := s.assignments.Create(ctx, s.user.ID, AssignmentInput{Title: "Essay", Deadline: at("2026-03-05", "08:00")})
	require.NoError(t, err)
	_, err = s.assignments.Create(ctx, s.user.ID, AssignmentInput{Title: "Quiz", Deadline: at("2026-03-02", "08:00")})
	require.NoError(t, err)
	_, err = s.schedules.Create(ctx, s.user.ID, ScheduleInput{Title: "Lab", Date: "2026-03-02", StartTime: "14:00", EndTime: "15:00"})
	require.NoError(t, err)

	sender := &fakeSender{}
	plan := reminder.FullPlan(reminder.MustTimeOfDay("07:00"), reminder.MustTimeOfDay("07:00"))
	d := NewDispatcher(s.assignRepo, s.schedRepo, s.users, sender, NewLocalLocker(), s.messages, plan,
		clock.NewMock(now), DispatcherConfig{Workers: 4}, zap.NewNop())

	report, err := d.RunCycle(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, Counts{Due: 2, Sent: 2}, report.Assignments)
	assert.Equal(t, Counts{Due: 1, Sent: 1}, report.Schedules)

	var titles []string
	for _, m := range sender.messages() {
		titles = append(titles, m.Title)
	}
	assert.ElementsMatch(t, []string{"⏰ Assignment Due in 3 Days!", "🔥 Assignment Due Today!", "⏰ Kelas Akan Dimulai!"}, titles)

	report, err = d.RunCycle(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Counts{}, report.Assignments)
	assert.Equal(t, Counts{}, report.Schedules)
	assert.Len(t, sender.messages(), 3)

	// Toggling reminders re-arms the quiz; the transport then rejects the
	// token and it is cleared in the database.
	_, err = s.assignments.Update(ctx, s.user.ID, 2, AssignmentUpdate{HasReminder: boolPtr(false)})
	require.NoError(t, err)
	_, err = s.assignments.Update(ctx, s.user.ID, 2, AssignmentUpdate{HasReminder: boolPtr(true)})
	require.NoError(t, err)
	sender.setErr(errs.ErrInvalidDeviceToken)
	report, err = d.RunCycle(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assignments.Skipped)
	u, err := s.users.FindByID(ctx, s.user.ID)
	require.NoError(t, err)
	assert.Empty(t, u.DeviceToken)
}
