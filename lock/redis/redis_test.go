package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prima/earnings-engine/earnings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ earnings.Locker = (*Locker)(nil)

// Requires a server: REDIS_ADDR=localhost:6379
func newTestLocker(t *testing.T) *Locker {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := Dial(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	l := New(client)
	l.Prefix = "prima:test:" + uuid.NewString() + ":"
	l.RetryInterval = 5 * time.Millisecond
	return l
}

func TestLocker_Exclusive(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "bk-1")
	require.NoError(t, err)

	// A second holder times out while the first holds the key
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "bk-1")
	assert.ErrorIs(t, err, earnings.ErrLockNotAcquired)

	// Other bookings are unaffected
	unlockOther, err := l.Lock(ctx, "bk-2")
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlock2, err := l.Lock(ctx, "bk-1")
	require.NoError(t, err)
	unlock2()
}

func TestLocker_ReleaseOnlyOwnToken(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()
	l.TTL = 30 * time.Millisecond

	unlock, err := l.Lock(ctx, "bk-1")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	// The key expired and was taken by someone else; the stale unlock
	// must not release the new holder
	unlockNew, err := l.Lock(ctx, "bk-1")
	require.NoError(t, err)
	unlock()

	exists, err := l.Client.Exists(ctx, l.key("bk-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
	unlockNew()
}

func TestLocker_Key(t *testing.T) {
	l := &Locker{Prefix: "p:"}
	assert.Equal(t, "p:bk-1", l.key("bk-1"))
}
