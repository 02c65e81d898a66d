package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "matchmaking:sweep:lock"

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock is a best-effort cluster-wide mutex around matchmaking sweeps
type SweepLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSweepLock creates a sweep lock that expires after ttl
func NewSweepLock(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SweepLock {
	return &SweepLock{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "sweep_lock"),
	}
}

// Acquire takes the lock if nobody holds it. The returned release is safe to
// call after the lock expired and was taken by someone else.
func (l *SweepLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, sweepLockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// the sweep's context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{sweepLockKey}, token).Err(); err != nil {
			l.logger.Warn("failed to release sweep lock", "error", err)
		}
	}
	return release, true, nil
}
