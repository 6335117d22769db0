package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQuota(t *testing.T) (*RedisQuota, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQuota(rdb, zap.NewNop()), mr
}

func TestReserveGrantsUpToCap(t *testing.T) {
	q, mr := newTestQuota(t)
	ctx := context.Background()
	id := uuid.New()

	granted, _ := q.Reserve(ctx, id, 4, 6)
	assert.Equal(t, 4, granted)

	granted, release := q.Reserve(ctx, id, 4, 6)
	assert.Equal(t, 2, granted)

	granted, _ = q.Reserve(ctx, id, 1, 6)
	assert.Zero(t, granted)

	release(ctx, 1)
	used, err := mr.Get(q.key(id))
	require.NoError(t, err)
	assert.Equal(t, "5", used)
	assert.Positive(t, mr.TTL(q.key(id)))
}

func TestReserveConcurrentCallersShareCap(t *testing.T) {
	q, mr := newTestQuota(t)
	id := uuid.New()

	const callers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, _ := q.Reserve(context.Background(), id, 3, 10)
			mu.Lock()
			total += granted
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, total)
	used, err := mr.Get(q.key(id))
	require.NoError(t, err)
	assert.Equal(t, "10", used)
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	q, mr := newTestQuota(t)
	ctx := context.Background()
	id := uuid.New()

	granted, release := q.Reserve(ctx, id, 2, 5)
	require.Equal(t, 2, granted)

	release(ctx, 10)
	assert.False(t, mr.Exists(q.key(id)))

	release(ctx, 1)
	assert.False(t, mr.Exists(q.key(id)))
}

func TestReserveWithoutCap(t *testing.T) {
	q, mr := newTestQuota(t)
	id := uuid.New()

	granted, release := q.Reserve(context.Background(), id, 7, 0)
	assert.Equal(t, 7, granted)
	release(context.Background(), 7)
	assert.False(t, mr.Exists(q.key(id)))
}

func TestReserveFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewRedisQuota(rdb, zap.NewNop())

	granted, release := q.Reserve(context.Background(), uuid.New(), 3, 1)
	assert.Equal(t, 3, granted)
	release(context.Background(), 3)
}

func TestKeyRollsOverDaily(t *testing.T) {
	q, _ := newTestQuota(t)
	id := uuid.MustParse("7d4f1c36-8f0e-4a57-9d43-3c1b5f0f6a11")

	q.now = func() time.Time { return time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC) }
	assert.Equal(t, "quota:7d4f1c36-8f0e-4a57-9d43-3c1b5f0f6a11:20260309", q.key(id))

	q.now = func() time.Time { return time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC) }
	assert.Equal(t, "quota:7d4f1c36-8f0e-4a57-9d43-3c1b5f0f6a11:20260310", q.key(id))
}
