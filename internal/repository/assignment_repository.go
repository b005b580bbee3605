package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

// AssignmentRepository stores assignments. Deadlines are written in UTC so
// that range predicates compare the same way on every driver.
type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Create(ctx context.Context, a *model.Assignment) error {
	a.Deadline = a.Deadline.UTC()
	if err := r.db.WithContext(ctx).Omit("User").Create(a).Error; err != nil {
		return errs.Wrap(err, "create assignment")
	}
	return nil
}

// Save writes every column, including LastStage.
func (r *AssignmentRepository) Save(ctx context.Context, a *model.Assignment) error {
	a.Deadline = a.Deadline.UTC()
	if err := r.db.WithContext(ctx).Omit("User").Save(a).Error; err != nil {
		return errs.Wrap(err, "save assignment")
	}
	return nil
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id uint) (*model.Assignment, error) {
	var a model.Assignment
	if err := r.db.WithContext(ctx).Preload("User").First(&a, id).Error; err != nil {
		return nil, notFound(err, "find assignment")
	}
	return &a, nil
}

// FindOwned loads an assignment only if userID owns it.
func (r *AssignmentRepository) FindOwned(ctx context.Context, userID, id uint) (*model.Assignment, error) {
	var a model.Assignment
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&a).Error; err != nil {
		return nil, notFound(err, "find assignment")
	}
	return &a, nil
}

// FindDueDeadlineItems returns open, reminder-enabled assignments whose
// deadline lies in [from, to), with their owner preloaded.
func (r *AssignmentRepository) FindDueDeadlineItems(ctx context.Context, from, to time.Time) ([]model.Assignment, error) {
	var items []model.Assignment
	err := r.db.WithContext(ctx).Preload("User").
		Where("is_done = ? AND has_reminder = ? AND deadline >= ? AND deadline < ?", false, true, from.UTC(), to.UTC()).
		Order("deadline, id").
		Find(&items).Error
	if err != nil {
		return nil, errs.Wrap(err, "find due assignments")
	}
	return items, nil
}

// AdvanceStage moves last_notification_type from `from` to `to` only if the
// row still holds `from` and is still open. errs.ErrStaleState otherwise.
func (r *AssignmentRepository) AdvanceStage(ctx context.Context, id uint, from, to model.Stage) error {
	res := r.db.WithContext(ctx).Model(&model.Assignment{}).
		Where("id = ? AND last_notification_type = ? AND is_done = ?", id, from, false).
		Update("last_notification_type", to)
	if res.Error != nil {
		return errs.Wrap(res.Error, "advance assignment stage")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(errs.ErrStaleState, "assignment %d no longer at stage %q", id, from)
	}
	return nil
}

// Update writes only the given columns of a user's assignment.
func (r *AssignmentRepository) Update(ctx context.Context, userID, id uint, fields map[string]interface{}) error {
	if d, ok := fields["deadline"].(time.Time); ok {
		fields["deadline"] = d.UTC()
	}
	res := r.db.WithContext(ctx).Model(&model.Assignment{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(fields)
	if res.Error != nil {
		return errs.Wrap(res.Error, "update assignment")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(errs.ErrNotFound, "assignment %d", id)
	}
	return nil
}

func (r *AssignmentRepository) MarkDone(ctx context.Context, userID, id uint, done bool) error {
	res := r.db.WithContext(ctx).Model(&model.Assignment{}).
		Where("user_id = ? AND id = ?", userID, id).
		Update("is_done", done)
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark assignment done")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(errs.ErrNotFound, "assignment %d", id)
	}
	return nil
}

func (r *AssignmentRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&model.Assignment{})
	if res.Error != nil {
		return errs.Wrap(res.Error, "delete assignment")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(errs.ErrNotFound, "assignment %d", id)
	}
	return nil
}

// ListByUser returns a user's assignments ordered by deadline. With
// pendingOnly the finished ones are left out.
func (r *AssignmentRepository) ListByUser(ctx context.Context, userID uint, pendingOnly bool) ([]model.Assignment, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if pendingOnly {
		q = q.Where("is_done = ?", false)
	}
	var items []model.Assignment
	if err := q.Order("deadline, id").Find(&items).Error; err != nil {
		return nil, errs.Wrap(err, "list assignments")
	}
	return items, nil
}
