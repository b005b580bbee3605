package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/errs"
)

const lockPrefix = "studymate:lock:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks keyed by reminder item.
type Locker struct {
	client *Client
	logger *zap.Logger
}

func NewLocker(client *Client, logger *zap.Logger) *Locker {
	return &Locker{client: client, logger: logger}
}

// Acquire tries SET NX PX once. ok is false when another holder owns key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	set, err := l.client.rdb.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, errs.Wrap(err, "redis setnx failed")
	}
	if !set {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lock if token still owns it.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client.rdb, []string{lockPrefix + key}, token).Int()
	if err != nil {
		return errs.Wrap(err, "redis release lock failed")
	}
	if n == 0 {
		l.logger.Debug("lock already expired or taken over", zap.String("key", key))
	}
	return nil
}
