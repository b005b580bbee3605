package repository

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

// UserRepository handles users and their device tokens.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return errs.Wrap(err, "create user")
	}
	return nil
}

// UpsertFromTelegram finds or creates the user linked to a Telegram chat.
// The chat becomes the user's delivery target.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, name string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"name": name}
		if user.DeviceToken == "" {
			updates["device_token"] = telegramChatToken(telegramID)
			updates["channel"] = model.ChannelTelegram
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, errs.Wrap(err, "update user")
		}
		return &user, nil
	case errs.Is(err, gorm.ErrRecordNotFound):
		id := telegramID
		user = model.User{
			TelegramID:  &id,
			Name:        name,
			DeviceToken: telegramChatToken(telegramID),
			Channel:     model.ChannelTelegram,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, errs.Wrap(err, "create user")
		}
		return &user, nil
	default:
		return nil, errs.Wrap(err, "find user")
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "find user")
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, notFound(err, "find user by telegram id")
	}
	return &user, nil
}

// SetDeviceToken registers the token reminders are delivered to.
func (r *UserRepository) SetDeviceToken(ctx context.Context, userID uint, token, channel string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"device_token": token, "channel": channel})
	if res.Error != nil {
		return errs.Wrap(res.Error, "set device token")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(errs.ErrNotFound, "user %d", userID)
	}
	return nil
}

// ClearDeviceToken drops the user's token if it is still token. A newer
// registration is left alone.
func (r *UserRepository) ClearDeviceToken(ctx context.Context, userID uint, token string) error {
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND device_token = ?", userID, token).
		Update("device_token", "").Error
	if err != nil {
		return errs.Wrap(err, "clear device token")
	}
	return nil
}

// ListWithTokens returns users that can currently receive reminders.
func (r *UserRepository) ListWithTokens(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("device_token <> ?", "").Order("id").Find(&users).Error; err != nil {
		return nil, errs.Wrap(err, "list users with tokens")
	}
	return users, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, errs.Wrap(err, "list users")
	}
	return users, nil
}

func telegramChatToken(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
