package idempotency

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestGuard_ReplaysCompletedKey(t *testing.T) {
	g := NewGuard(NewMemoryStore(), time.Hour)
	calls := 0
	place := func(context.Context) (string, error) { calls++; return "order-1", nil }

	id, replayed, err := g.Do(context.Background(), "u1:k1", place)
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.False(t, replayed)

	id, replayed, err = g.Do(context.Background(), "u1:k1", place)
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.True(t, replayed)
	assert.Equal(t, 1, calls)
}

func TestGuard_FailureReleasesKey(t *testing.T) {
	g := NewGuard(NewMemoryStore(), time.Hour)
	boom := errors.New("out of stock")

	_, _, err := g.Do(context.Background(), "k", func(context.Context) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)

	id, replayed, err := g.Do(context.Background(), "k", func(context.Context) (string, error) { return "order-2", nil })
	require.NoError(t, err)
	assert.Equal(t, "order-2", id)
	assert.False(t, replayed)
}

func TestGuard_ConcurrentDuplicatesRunOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGuard(NewMemoryStore(), time.Hour)
	var calls atomic.Int32
	release := make(chan struct{})
	place := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "order-3", nil
	}

	const n = 8
	var (
		wg       sync.WaitGroup
		leaders  atomic.Int32
		mismatch atomic.Int32
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			id, replayed, err := g.Do(context.Background(), "same", place)
			if err != nil || id != "order-3" {
				mismatch.Add(1)
			}
			if !replayed {
				leaders.Add(1)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Zero(t, mismatch.Load())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), leaders.Load())
}

func TestMemoryStore_InFlightAndExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 11, 13, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	existing, err := s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, err = s.Claim(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, s.Complete(ctx, "k", "order-9", time.Minute))
	existing, err = s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "order-9", existing)

	now = now.Add(2 * time.Minute)
	existing, err = s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, existing, "expired key is claimable again")
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis integration test")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	s := NewRedisStore(rdb)
	key := "test:" + time.Now().Format(time.RFC3339Nano)
	defer s.Release(ctx, key)

	existing, err := s.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, err = s.Claim(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, s.Complete(ctx, key, "order-r", time.Minute))
	existing, err = s.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "order-r", existing)
}
