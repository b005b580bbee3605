package reminder

import (
	"time"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

const (
	PlanFull   = "full"
	PlanLegacy = "legacy"
)

// Rule fixes when a stage fires: DaysBefore calendar days ahead of the
// deadline's date (negative means after), at FireAt local time.
type Rule struct {
	Stage      model.Stage
	DaysBefore int
	FireAt     TimeOfDay
}

// Plan is an ordered set of stage rules on distinct dates.
type Plan struct {
	rules []Rule
}

// NewPlan validates that rules follow stage order and fall on strictly
// later dates one after another.
func NewPlan(rules []Rule) (Plan, error) {
	if len(rules) == 0 {
		return Plan{}, errs.Wrap(errs.ErrInvalidInput, "stage plan is empty")
	}
	for i, r := range rules {
		if !r.Stage.Valid() {
			return Plan{}, errs.Wrapf(errs.ErrInvalidInput, "unknown stage %q", r.Stage)
		}
		if i == 0 {
			continue
		}
		prev := rules[i-1]
		if !r.Stage.After(prev.Stage) {
			return Plan{}, errs.Wrapf(errs.ErrInvalidInput, "stage %s must come after %s", r.Stage, prev.Stage)
		}
		if r.DaysBefore >= prev.DaysBefore {
			return Plan{}, errs.Wrapf(errs.ErrInvalidInput, "stage %s must fire on a later date than %s", r.Stage, prev.Stage)
		}
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return Plan{rules: out}, nil
}

// FullPlan is the seven-stage H-3 .. H+3 sequence.
func FullPlan(fireAt, overdueAt TimeOfDay) Plan {
	p, _ := NewPlan([]Rule{
		{Stage: model.StageHMinus3, DaysBefore: 3, FireAt: fireAt},
		{Stage: model.StageHMinus2, DaysBefore: 2, FireAt: fireAt},
		{Stage: model.StageHMinus1, DaysBefore: 1, FireAt: fireAt},
		{Stage: model.StageDDay, DaysBefore: 0, FireAt: fireAt},
		{Stage: model.StageHPlus1, DaysBefore: -1, FireAt: overdueAt},
		{Stage: model.StageHPlus2, DaysBefore: -2, FireAt: overdueAt},
		{Stage: model.StageHPlus3, DaysBefore: -3, FireAt: overdueAt},
	})
	return p
}

// LegacyPlan only fires H-3, D-DAY and H+3.
func LegacyPlan(fireAt, overdueAt TimeOfDay) Plan {
	p, _ := NewPlan([]Rule{
		{Stage: model.StageHMinus3, DaysBefore: 3, FireAt: fireAt},
		{Stage: model.StageDDay, DaysBefore: 0, FireAt: fireAt},
		{Stage: model.StageHPlus3, DaysBefore: -3, FireAt: overdueAt},
	})
	return p
}

func PlanByName(name string, fireAt, overdueAt TimeOfDay) (Plan, error) {
	switch name {
	case PlanFull, "":
		return FullPlan(fireAt, overdueAt), nil
	case PlanLegacy:
		return LegacyPlan(fireAt, overdueAt), nil
	default:
		return Plan{}, errs.Wrapf(errs.ErrInvalidInput, "unknown stage plan %q", name)
	}
}

func (p Plan) Stages() []model.Stage {
	out := make([]model.Stage, 0, len(p.rules))
	for _, r := range p.rules {
		out = append(out, r.Stage)
	}
	return out
}

func (p Plan) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Rule returns the rule for stage s.
func (p Plan) Rule(s model.Stage) (Rule, bool) {
	for _, r := range p.rules {
		if r.Stage == s {
			return r, true
		}
	}
	return Rule{}, false
}

// EarliestFire is the first local time of day at which any stage can fire.
func (p Plan) EarliestFire() TimeOfDay {
	earliest := TimeOfDay(24 * 60)
	for _, r := range p.rules {
		if r.FireAt < earliest {
			earliest = r.FireAt
		}
	}
	return earliest
}

// DeadlineWindow returns the half-open instant range [from, to) of deadlines
// that can have a stage firing on now's date.
func (p Plan) DeadlineWindow(now time.Time) (time.Time, time.Time) {
	today := clock.StartOfDay(now)
	maxBefore := p.rules[0].DaysBefore
	maxAfter := p.rules[len(p.rules)-1].DaysBefore
	from := today.AddDate(0, 0, maxAfter)
	to := today.AddDate(0, 0, maxBefore+1)
	return from, to
}

// FireDate is the calendar day stage r fires for a deadline.
func (r Rule) FireDate(deadline time.Time) time.Time {
	return clock.StartOfDay(deadline).AddDate(0, 0, -r.DaysBefore)
}

// FireInstant is the moment stage r becomes due for a deadline.
func (r Rule) FireInstant(deadline time.Time) time.Time {
	return r.FireAt.On(r.FireDate(deadline))
}
