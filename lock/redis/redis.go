// Package redis provides a distributed earnings.Locker backed by Redis, for
// deployments where several processes recalculate bookings.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/prima/earnings-engine/earnings"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker holds one Redis key per booking for the duration of a
// recalculation. Keys expire after TTL so a crashed holder cannot block a
// booking forever.
type Locker struct {
	Client *goredis.Client
	Prefix string
	TTL    time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
}

func New(client *goredis.Client) *Locker {
	return &Locker{
		Client:        client,
		Prefix:        "prima:booking-lock:",
		TTL:           30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// Dial connects and pings; the caller owns the returned client.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (l *Locker) key(id earnings.BookingID) string {
	return l.Prefix + string(id)
}

// Lock retries until the key is acquired or ctx is done. A ctx deadline is
// reported as earnings.ErrLockNotAcquired.
func (l *Locker) Lock(ctx context.Context, id earnings.BookingID) (func(), error) {
	token := uuid.NewString()
	key := l.key(id)
	for {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release with a fresh context: the caller's may already be done.
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				releaseScript.Run(rctx, l.Client, []string{key}, token)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", earnings.ErrLockNotAcquired, id, ctx.Err())
		case <-time.After(l.RetryInterval):
		}
	}
}
