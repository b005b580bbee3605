// Package notifier delivers reminder messages over the supported transports.
package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/errs"
)

// Message is one notification attempt addressed to a device token.
type Message struct {
	Channel string
	Token   string
	Title   string
	Body    string
	Data    map[string]string
}

// Sender is implemented by every transport. Send returns nil on confirmed
// delivery, errs.ErrInvalidDeviceToken when the token is permanently dead,
// and any other error for transient failures.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	SupportsChannel(channel string) bool
}

// MultiSender routes a message to the first sender supporting its channel.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
		logger:  logger,
	}
}

func (m *MultiSender) Send(ctx context.Context, msg Message) error {
	for _, sender := range m.senders {
		if sender.SupportsChannel(msg.Channel) {
			m.logger.Debug("routing notification to sender",
				zap.String("channel", msg.Channel),
				zap.String("type", msg.Data["type"]),
			)
			return sender.Send(ctx, msg)
		}
	}
	return errs.Newf("no sender found for channel: %s", msg.Channel)
}

func (m *MultiSender) SupportsChannel(channel string) bool {
	for _, sender := range m.senders {
		if sender.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogSender only logs. It stands in for transports that are not configured.
type LogSender struct {
	logger   *zap.Logger
	channels map[string]bool
}

// NewLogSender handles the given channels, or every channel when none are given.
func NewLogSender(logger *zap.Logger, channels ...string) *LogSender {
	set := make(map[string]bool, len(channels))
	for _, c := range channels {
		set[c] = true
	}
	return &LogSender{logger: logger, channels: set}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("logging notification (no transport configured)",
		zap.String("channel", msg.Channel),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("data", msg.Data),
	)
	return nil
}

func (s *LogSender) SupportsChannel(channel string) bool {
	if len(s.channels) == 0 {
		return true
	}
	return s.channels[channel]
}
