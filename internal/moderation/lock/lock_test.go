package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// exerciseExclusion checks that no two goroutines hold the same key at once.
func exerciseExclusion(t *testing.T, l Locker) {
	t.Helper()

	var (
		wg       sync.WaitGroup
		inside   int32
		overlaps int32
		total    int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			unlock, err := l.Lock(ctx, "comment-1")
			if err != nil {
				t.Error(err)
				return
			}
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			atomic.AddInt32(&total, 1)
			unlock()
		}()
	}
	wg.Wait()

	require.Zero(t, overlaps)
	require.Equal(t, int32(8), total)
}

func TestKeyedExclusion(t *testing.T) {
	l := NewKeyed()
	exerciseExclusion(t, l)
	require.Zero(t, l.Len(), "entries must be dropped after use")
}

func TestKeyedIndependentKeys(t *testing.T) {
	l := NewKeyed()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
	unlockB() // idempotent
}

func TestKeyedContextCancel(t *testing.T) {
	l := NewKeyed()

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	require.Zero(t, l.Len())
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := NewRedis(rdb, ttl, WithRetryInterval(time.Millisecond))
	require.NoError(t, err)
	return l, srv
}

func TestRedisExclusion(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)
	exerciseExclusion(t, l)
}

func TestRedisReleaseKeepsForeignLease(t *testing.T) {
	l, srv := newRedisLocker(t, time.Second)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "c1")
	require.NoError(t, err)

	// lease expired and another worker took it over
	srv.FastForward(2 * time.Second)
	unlock2, err := l.Lock(ctx, "c1")
	require.NoError(t, err)

	unlock()
	require.True(t, srv.Exists("laisky/moderation/locks/c1"), "stale unlock must not drop the new lease")

	unlock2()
	require.False(t, srv.Exists("laisky/moderation/locks/c1"))
}

func TestRedisLockTimeout(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)

	unlock, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "c1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRedisValidates(t *testing.T) {
	_, err := NewRedis(nil, time.Second)
	require.Error(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	_, err = NewRedis(rdb, 0)
	require.Error(t, err)
}
