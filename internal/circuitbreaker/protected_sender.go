package circuitbreaker

import (
	"context"

	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/notifier"
)

// ProtectedSender wraps a transport with a breaker. Per-token rejections
// (missing or dead device token) say nothing about transport health and do
// not count as failures.
type ProtectedSender struct {
	sender  notifier.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedSender(sender notifier.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *ProtectedSender) Send(ctx context.Context, msg notifier.Message) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.Name()),
			zap.String("channel", msg.Channel),
		)
		return errs.Wrapf(ErrCircuitOpen, "%s sender unavailable", p.breaker.Name())
	}

	err := p.sender.Send(ctx, msg)
	switch {
	case err == nil:
		p.breaker.RecordSuccess()
	case errs.Is(err, errs.ErrInvalidDeviceToken), errs.Is(err, errs.ErrNoDeviceToken):
		p.breaker.RecordSuccess()
	default:
		p.breaker.RecordFailure()
	}
	return err
}

func (p *ProtectedSender) SupportsChannel(channel string) bool {
	return p.sender.SupportsChannel(channel)
}

func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
