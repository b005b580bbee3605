package service

import (
	"context"
	"sync"
	"time"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/notifier"
)

type fakeAssignments struct {
	mu      sync.Mutex
	items   map[uint]model.Assignment
	loadErr error
	loads   int
	// beforeAdvance runs inside AdvanceStage before the compare, to let a
	// test simulate a concurrent writer.
	beforeAdvance func(id uint)
}

func newFakeAssignments(items ...model.Assignment) *fakeAssignments {
	f := &fakeAssignments{items: make(map[uint]model.Assignment)}
	for _, a := range items {
		f.items[a.ID] = a
	}
	return f
}

func (f *fakeAssignments) FindDueDeadlineItems(ctx context.Context, from, to time.Time) ([]model.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []model.Assignment
	for _, a := range f.items {
		if a.IsDone || !a.HasReminder || a.Deadline.Before(from) || !a.Deadline.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAssignments) FindByID(ctx context.Context, id uint) (*model.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAssignments) AdvanceStage(ctx context.Context, id uint, from, to model.Stage) error {
	if f.beforeAdvance != nil {
		f.beforeAdvance(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.LastStage != from || a.IsDone {
		return errs.ErrStaleState
	}
	a.LastStage = to
	f.items[id] = a
	return nil
}

func (f *fakeAssignments) get(id uint) model.Assignment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

func (f *fakeAssignments) set(a model.Assignment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[a.ID] = a
}

type fakeSchedules struct {
	mu    sync.Mutex
	items map[uint]model.Schedule
}

func newFakeSchedules(items ...model.Schedule) *fakeSchedules {
	f := &fakeSchedules{items: make(map[uint]model.Schedule)}
	for _, s := range items {
		f.items[s.ID] = s
	}
	return f
}

func (f *fakeSchedules) FindPendingEvents(ctx context.Context, fromDate string) ([]model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Schedule
	for _, s := range f.items {
		if !s.NotificationSent && !s.IsCompleted && s.HasReminder && s.Date >= fromDate {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSchedules) FindByID(ctx context.Context, id uint) (*model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSchedules) MarkSent(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok || s.NotificationSent {
		return errs.ErrStaleState
	}
	s.NotificationSent = true
	f.items[id] = s
	return nil
}

func (f *fakeSchedules) get(id uint) model.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

type fakeTokens struct {
	mu      sync.Mutex
	cleared []uint
}

func (f *fakeTokens) ClearDeviceToken(ctx context.Context, userID uint, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []notifier.Message
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(ctx context.Context, msg notifier.Message) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) SupportsChannel(string) bool { return true }

func (f *fakeSender) messages() []notifier.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notifier.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSender) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}
