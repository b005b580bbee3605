package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/metrics"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/notifier"
	"github.com/azariacindy/MyStudyMate/internal/reminder"
)

// AssignmentStore is the storage the dispatcher needs for assignments.
type AssignmentStore interface {
	FindDueDeadlineItems(ctx context.Context, from, to time.Time) ([]model.Assignment, error)
	FindByID(ctx context.Context, id uint) (*model.Assignment, error)
	AdvanceStage(ctx context.Context, id uint, from, to model.Stage) error
}

// ScheduleStore is the storage the dispatcher needs for schedules.
type ScheduleStore interface {
	FindPendingEvents(ctx context.Context, fromDate string) ([]model.Schedule, error)
	FindByID(ctx context.Context, id uint) (*model.Schedule, error)
	MarkSent(ctx context.Context, id uint) error
}

// TokenStore drops device tokens a transport reported as dead.
type TokenStore interface {
	ClearDeviceToken(ctx context.Context, userID uint, token string) error
}

type DispatcherConfig struct {
	Workers      int
	SendTimeout  time.Duration
	CycleTimeout time.Duration // stop starting new items after this; 0 = no limit
	LockTTL      time.Duration
}

// Counts tallies what happened to one population during a cycle.
type Counts struct {
	Due       int `json:"due"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Stale     int `json:"stale"`
	Abandoned int `json:"abandoned"`
}

type CycleReport struct {
	ID          string        `json:"id"`
	Trigger     string        `json:"trigger"`
	Now         time.Time     `json:"now"`
	Duration    time.Duration `json:"duration"`
	Assignments Counts        `json:"assignments"`
	Schedules   Counts        `json:"schedules"`
}

type outcome string

const (
	outcomeSent      outcome = metrics.OutcomeSent
	outcomeFailed    outcome = metrics.OutcomeFailed
	outcomeSkipped   outcome = metrics.OutcomeSkipped
	outcomeStale     outcome = metrics.OutcomeStale
	outcomeAbandoned outcome = metrics.OutcomeAbandoned
)

// Dispatcher runs reminder cycles: it loads candidates, asks the stage
// tracker and window evaluator what is due, sends, and persists the new
// state with a compare-and-set.
type Dispatcher struct {
	assignments AssignmentStore
	schedules   ScheduleStore
	tokens      TokenStore
	sender      notifier.Sender
	locker      Locker
	messages    *ReminderService
	plan        reminder.Plan
	clock       clock.Clock
	cfg         DispatcherConfig
	logger      *zap.Logger
}

func NewDispatcher(
	assignments AssignmentStore,
	schedules ScheduleStore,
	tokens TokenStore,
	sender notifier.Sender,
	locker Locker,
	messages *ReminderService,
	plan reminder.Plan,
	clk clock.Clock,
	cfg DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Dispatcher{
		assignments: assignments,
		schedules:   schedules,
		tokens:      tokens,
		sender:      sender,
		locker:      locker,
		messages:    messages,
		plan:        plan,
		clock:       clk,
		cfg:         cfg,
		logger:      logger,
	}
}

// Tick runs one cycle at the clock's current time. It is the cron entry point.
func (d *Dispatcher) Tick(ctx context.Context) {
	if _, err := d.Run(ctx, "tick"); err != nil {
		d.logger.Error("reminder cycle finished with errors", zap.Error(err))
	}
}

// Run runs one cycle at the clock's current time.
func (d *Dispatcher) Run(ctx context.Context, trigger string) (CycleReport, error) {
	report, err := d.RunCycle(ctx, d.clock.Now())
	report.Trigger = trigger
	metrics.RecordCycle(trigger, report.Duration)
	return report, err
}

type job struct {
	kind string
	run  func(ctx context.Context) outcome
}

// RunCycle evaluates both populations at now. A failing item never aborts
// the cycle; only load errors are returned, after everything loadable ran.
func (d *Dispatcher) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	start := time.Now()
	now = now.In(d.clock.Location())
	report := CycleReport{ID: uuid.NewString(), Now: now}
	log := d.logger.With(zap.String("cycle_id", report.ID))

	cycleCtx := ctx
	if d.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, d.cfg.CycleTimeout)
		defer cancel()
	}

	var loadErr error
	var jobs []job

	assignmentJobs, err := d.assignmentJobs(cycleCtx, now, &report.Assignments, log)
	if err != nil {
		loadErr = err
	}
	jobs = append(jobs, assignmentJobs...)

	scheduleJobs, err := d.scheduleJobs(cycleCtx, now, &report.Schedules, log)
	if err != nil && loadErr == nil {
		loadErr = err
	}
	jobs = append(jobs, scheduleJobs...)

	var mu sync.Mutex
	record := func(kind string, o outcome) {
		metrics.RecordReminder(kind, string(o))
		mu.Lock()
		defer mu.Unlock()
		c := &report.Assignments
		if kind == metrics.KindSchedule {
			c = &report.Schedules
		}
		switch o {
		case outcomeSent:
			c.Sent++
		case outcomeFailed:
			c.Failed++
		case outcomeSkipped:
			c.Skipped++
		case outcomeStale:
			c.Stale++
		case outcomeAbandoned:
			c.Abandoned++
		}
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for _, j := range jobs {
		if cycleCtx.Err() != nil {
			record(j.kind, outcomeAbandoned)
			continue
		}
		j := j
		g.Go(func() error {
			if cycleCtx.Err() != nil {
				record(j.kind, outcomeAbandoned)
				return nil
			}
			record(j.kind, j.run(cycleCtx))
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	log.Info("reminder cycle finished",
		zap.Time("now", now),
		zap.Any("assignments", report.Assignments),
		zap.Any("schedules", report.Schedules),
		zap.Duration("duration", report.Duration),
	)
	return report, loadErr
}

func (d *Dispatcher) assignmentJobs(ctx context.Context, now time.Time, c *Counts, log *zap.Logger) ([]job, error) {
	if reminder.Of(now) < d.plan.EarliestFire() {
		return nil, nil
	}
	from, to := d.plan.DeadlineWindow(now)
	items, err := d.assignments.FindDueDeadlineItems(ctx, from, to)
	if err != nil {
		log.Error("failed to load assignments", zap.Error(err))
		return nil, errs.Wrap(err, "load assignments")
	}

	var jobs []job
	for _, a := range items {
		stage, ok := d.plan.NextStage(a, now)
		if !ok {
			continue
		}
		c.Due++
		if a.User == nil || a.User.DeviceToken == "" {
			c.Skipped++
			metrics.RecordReminder(metrics.KindAssignment, metrics.OutcomeSkipped)
			log.Debug("assignment owner has no device token", zap.Uint("assignment_id", a.ID))
			continue
		}
		id := a.ID
		jobs = append(jobs, job{
			kind: metrics.KindAssignment,
			run: func(ctx context.Context) outcome {
				return d.processAssignment(ctx, id, stage, now, log)
			},
		})
	}
	return jobs, nil
}

func (d *Dispatcher) scheduleJobs(ctx context.Context, now time.Time, c *Counts, log *zap.Logger) ([]job, error) {
	rows, err := d.schedules.FindPendingEvents(ctx, clock.DateString(now))
	if err != nil {
		log.Error("failed to load schedules", zap.Error(err))
		return nil, errs.Wrap(err, "load schedules")
	}

	var jobs []job
	for _, ev := range rows {
		if !reminder.ShouldFire(ev, now) {
			continue
		}
		c.Due++
		if ev.User == nil || ev.User.DeviceToken == "" {
			c.Skipped++
			metrics.RecordReminder(metrics.KindSchedule, metrics.OutcomeSkipped)
			log.Debug("schedule owner has no device token", zap.Uint("schedule_id", ev.ID))
			continue
		}
		id := ev.ID
		jobs = append(jobs, job{
			kind: metrics.KindSchedule,
			run: func(ctx context.Context) outcome {
				return d.processSchedule(ctx, id, now, log)
			},
		})
	}
	return jobs, nil
}

// processAssignment is the critical section for one (assignment, stage).
func (d *Dispatcher) processAssignment(ctx context.Context, id uint, stage model.Stage, now time.Time, log *zap.Logger) outcome {
	log = log.With(zap.Uint("assignment_id", id), zap.String("stage", string(stage)))
	key := fmt.Sprintf("assignment:%d:%s", id, stage)

	release, o, ok := d.lock(ctx, key, log)
	if !ok {
		return o
	}
	defer release()

	fresh, err := d.assignments.FindByID(ctx, id)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return outcomeStale
		}
		log.Warn("failed to reload assignment", zap.Error(err))
		return outcomeFailed
	}
	if again, due := d.plan.NextStage(*fresh, now); !due || again != stage {
		return outcomeStale
	}

	msg := d.messages.AssignmentMessage(*fresh, stage)
	if o, sent := d.send(ctx, msg, fresh.UserID, log); !sent {
		return o
	}

	persistCtx, cancel := detached(ctx, d.cfg.SendTimeout)
	defer cancel()
	if err := d.assignments.AdvanceStage(persistCtx, id, fresh.LastStage, stage); err != nil {
		if errs.Is(err, errs.ErrStaleState) {
			log.Warn("stage advanced concurrently after send", zap.Error(err))
			return outcomeStale
		}
		log.Error("reminder sent but stage not persisted", zap.Error(err))
		return outcomeFailed
	}
	log.Info("assignment reminder sent")
	return outcomeSent
}

// processSchedule is the critical section for one schedule.
func (d *Dispatcher) processSchedule(ctx context.Context, id uint, now time.Time, log *zap.Logger) outcome {
	log = log.With(zap.Uint("schedule_id", id))
	key := fmt.Sprintf("schedule:%d", id)

	release, o, ok := d.lock(ctx, key, log)
	if !ok {
		return o
	}
	defer release()

	fresh, err := d.schedules.FindByID(ctx, id)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return outcomeStale
		}
		log.Warn("failed to reload schedule", zap.Error(err))
		return outcomeFailed
	}
	if !reminder.ShouldFire(*fresh, now) {
		return outcomeStale
	}

	msg := d.messages.ScheduleMessage(*fresh)
	if o, sent := d.send(ctx, msg, fresh.UserID, log); !sent {
		return o
	}

	persistCtx, cancel := detached(ctx, d.cfg.SendTimeout)
	defer cancel()
	if err := d.schedules.MarkSent(persistCtx, id); err != nil {
		if errs.Is(err, errs.ErrStaleState) {
			log.Warn("schedule marked sent concurrently after send", zap.Error(err))
			return outcomeStale
		}
		log.Error("reminder sent but schedule not marked", zap.Error(err))
		return outcomeFailed
	}
	log.Info("schedule reminder sent")
	return outcomeSent
}

func (d *Dispatcher) lock(ctx context.Context, key string, log *zap.Logger) (func(), outcome, bool) {
	token, ok, err := d.locker.Acquire(ctx, key, d.cfg.LockTTL)
	if err != nil {
		log.Warn("failed to acquire item lock", zap.String("key", key), zap.Error(err))
		return nil, outcomeFailed, false
	}
	if !ok {
		log.Debug("item locked by another cycle", zap.String("key", key))
		return nil, outcomeStale, false
	}
	release := func() {
		rctx, cancel := detached(ctx, 5*time.Second)
		defer cancel()
		if err := d.locker.Release(rctx, key, token); err != nil {
			log.Warn("failed to release item lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, "", true
}

// send delivers msg on a context detached from cycle cancellation, bounded
// by the per-call timeout. sent is true only on confirmed delivery.
func (d *Dispatcher) send(ctx context.Context, msg notifier.Message, userID uint, log *zap.Logger) (outcome, bool) {
	if msg.Token == "" {
		return outcomeSkipped, false
	}

	sendCtx, cancel := detached(ctx, d.cfg.SendTimeout)
	defer cancel()

	started := time.Now()
	err := d.sender.Send(sendCtx, msg)
	metrics.RecordSend(msg.Channel, time.Since(started))

	switch {
	case err == nil:
		return "", true
	case errs.Is(err, errs.ErrNoDeviceToken):
		return outcomeSkipped, false
	case errs.Is(err, errs.ErrInvalidDeviceToken):
		log.Warn("device token rejected, clearing", zap.Uint("user_id", userID), zap.Error(err))
		if d.tokens != nil {
			if cerr := d.tokens.ClearDeviceToken(sendCtx, userID, msg.Token); cerr != nil {
				log.Error("failed to clear device token", zap.Uint("user_id", userID), zap.Error(cerr))
			}
		}
		return outcomeSkipped, false
	default:
		log.Warn("failed to send reminder, will retry next cycle",
			zap.String("channel", msg.Channel),
			zap.Error(err),
		)
		return outcomeFailed, false
	}
}

func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
