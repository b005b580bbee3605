package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

// ScheduleRepository stores calendar schedules.
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ConflictCheck inspects the candidate row against the owner's active
// schedules on its date and returns an error to abort the write.
type ConflictCheck func(candidate model.Schedule, sameDay []model.Schedule) error

// CreateChecked inserts s after check approves it. The owner's row is locked
// for the whole transaction so concurrent writers for the same owner are
// serialised between the read and the insert.
func (r *ScheduleRepository) CreateChecked(ctx context.Context, s *model.Schedule, check ConflictCheck) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sameDay, err := lockOwnerDay(tx, s.UserID, s.Date)
		if err != nil {
			return err
		}
		if err := check(*s, sameDay); err != nil {
			return err
		}
		if err := tx.Omit("User").Create(s).Error; err != nil {
			return errs.Wrap(err, "create schedule")
		}
		return nil
	})
}

// UpdateChecked loads the schedule, lets mutate change it, runs check
// against the owner's day and saves the result in one transaction.
func (r *ScheduleRepository) UpdateChecked(ctx context.Context, userID, id uint, mutate func(*model.Schedule) (bool, error), check ConflictCheck) (*model.Schedule, error) {
	var out model.Schedule
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOwner(tx, userID); err != nil {
			return err
		}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND id = ?", userID, id).First(&out).Error
		if err != nil {
			return notFound(err, "find schedule")
		}
		needsCheck, err := mutate(&out)
		if err != nil {
			return err
		}
		if needsCheck {
			sameDay, err := activeOnDate(tx, userID, out.Date)
			if err != nil {
				return err
			}
			if err := check(out, sameDay); err != nil {
				return err
			}
		}
		if err := tx.Omit("User").Save(&out).Error; err != nil {
			return errs.Wrap(err, "save schedule")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveOnDate returns the owner's non-completed schedules on date.
func (r *ScheduleRepository) ActiveOnDate(ctx context.Context, userID uint, date string) ([]model.Schedule, error) {
	return activeOnDate(r.db.WithContext(ctx), userID, date)
}

func lockOwnerDay(tx *gorm.DB, userID uint, date string) ([]model.Schedule, error) {
	if _, err := lockOwner(tx, userID); err != nil {
		return nil, err
	}
	return activeOnDate(tx, userID, date)
}

func lockOwner(tx *gorm.DB, userID uint) (*model.User, error) {
	var owner model.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&owner, userID).Error
	if err != nil {
		return nil, notFound(err, "lock schedule owner")
	}
	return &owner, nil
}

func activeOnDate(tx *gorm.DB, userID uint, date string) ([]model.Schedule, error) {
	var rows []model.Schedule
	err := tx.Where("user_id = ? AND date = ? AND is_completed = ?", userID, date, false).
		Order("start_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "list schedules on date")
	}
	return rows, nil
}

func (r *ScheduleRepository) FindByID(ctx context.Context, id uint) (*model.Schedule, error) {
	var s model.Schedule
	if err := r.db.WithContext(ctx).Preload("User").First(&s, id).Error; err != nil {
		return nil, notFound(err, "find schedule")
	}
	return &s, nil
}

// FindPendingEvents returns unsent, open, reminder-enabled schedules dated
// fromDate or later, with their owner preloaded.
func (r *ScheduleRepository) FindPendingEvents(ctx context.Context, fromDate string) ([]model.Schedule, error) {
	var rows []model.Schedule
	err := r.db.WithContext(ctx).Preload("User").
		Where("notification_sent = ? AND is_completed = ? AND has_reminder = ? AND date >= ?", false, false, true, fromDate).
		Order("date, start_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "find pending schedules")
	}
	return rows, nil
}

// MarkSent flips notification_sent only while it is still false.
func (r *ScheduleRepository) MarkSent(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ? AND notification_sent = ?", id, false).
		Update("notification_sent", true)
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark schedule sent")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(errs.ErrStaleState, "schedule %d already sent", id)
	}
	return nil
}

func (r *ScheduleRepository) ListByDate(ctx context.Context, userID uint, date string) ([]model.Schedule, error) {
	var rows []model.Schedule
	err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).
		Order("start_time, id").Find(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "list schedules")
	}
	return rows, nil
}

// Upcoming lists open schedules from fromDate on, soonest first.
func (r *ScheduleRepository) Upcoming(ctx context.Context, userID uint, fromDate string, limit int) ([]model.Schedule, error) {
	var rows []model.Schedule
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND is_completed = ?", userID, fromDate, false).
		Order("date, start_time, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "list upcoming schedules")
	}
	return rows, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&model.Schedule{})
	if res.Error != nil {
		return errs.Wrap(res.Error, "delete schedule")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(errs.ErrNotFound, "schedule %d", id)
	}
	return nil
}
