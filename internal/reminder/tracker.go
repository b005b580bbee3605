package reminder

import (
	"time"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

// NextStage decides which stage, if any, should fire for a at now.
//
// Stages are date-scoped: a stage is due only on its own fire date, at or
// after its fire time, and only if it is later than the last fired stage.
// Stages whose date has passed are never sent retroactively. When several
// stages are due the latest one wins, so one call never yields two stages.
// The deadline is read in now's location.
func (p Plan) NextStage(a model.Assignment, now time.Time) (model.Stage, bool) {
	if a.IsDone || !a.HasReminder {
		return model.StageNone, false
	}

	deadline := a.Deadline.In(now.Location())
	due := model.StageNone
	for _, r := range p.rules {
		if !r.Stage.After(a.LastStage) {
			continue
		}
		fireDate := r.FireDate(deadline)
		if !clock.SameDate(now, fireDate) {
			continue
		}
		if now.Before(r.FireAt.On(fireDate)) {
			continue
		}
		due = r.Stage
	}
	return due, due != model.StageNone
}
