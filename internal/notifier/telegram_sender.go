package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

// ChatSender is satisfied by *tgbotapi.BotAPI.
type ChatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers reminders as chat messages. The device token is
// the chat id.
type TelegramSender struct {
	api    ChatSender
	logger *zap.Logger
}

func NewTelegramSender(api ChatSender, logger *zap.Logger) *TelegramSender {
	return &TelegramSender{api: api, logger: logger}
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return errs.ErrNoDeviceToken
	}
	chatID, err := strconv.ParseInt(msg.Token, 10, 64)
	if err != nil {
		return errs.Wrapf(errs.ErrInvalidDeviceToken, "telegram chat id %q", msg.Token)
	}

	out := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\n\n%s", msg.Title, msg.Body))

	// The bot API client does not take a context; the call is raced against it.
	done := make(chan error, 1)
	go func() {
		_, err := s.api.Send(out)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), "telegram send")
	case err := <-done:
		if err == nil {
			s.logger.Debug("reminder sent via telegram", zap.Int64("chat_id", chatID))
			return nil
		}
		var apiErr *tgbotapi.Error
		if errs.As(err, &apiErr) && deadChat(apiErr) {
			return errs.Wrap(errs.ErrInvalidDeviceToken, apiErr.Message)
		}
		return errs.Wrap(err, "telegram send")
	}
}

// deadChat reports whether the chat itself is unreachable. Other 400s are
// about the message (too long, bad markup) and stay transient.
func deadChat(apiErr *tgbotapi.Error) bool {
	switch apiErr.Code {
	case http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(apiErr.Message), "chat not found")
	}
	return false
}

func (s *TelegramSender) SupportsChannel(channel string) bool {
	return channel == model.ChannelTelegram
}
