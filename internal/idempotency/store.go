// Package idempotency makes order placement safe to retry. A client sends an
// Idempotency-Key header; the first request with a key places the order and
// every later request with the same key gets that order back.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrInFlight = errors.New("a request with this idempotency key is still in progress")

const pending = "pending"

// Store records keys. Claim returns the order id recorded for a completed
// key, ErrInFlight while another request holds the key, or "" with a nil
// error when the caller now owns the key.
type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (string, error)
	Complete(ctx context.Context, key, orderID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "idem:order:"}
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, pending, ttl).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		return s.Claim(ctx, key, ttl)
	}
	if err != nil {
		return "", err
	}
	if v == pending {
		return "", ErrInFlight
	}
	return v, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, orderID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, orderID, ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

type entry struct {
	value   string
	expires time.Time
}

// MemoryStore is the single-process Store used when REDIS_URL is unset.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]entry
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: map[string]entry{}, now: time.Now}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.keys[key]; ok && now.Before(e.expires) {
		if e.value == pending {
			return "", ErrInFlight
		}
		return e.value, nil
	}
	s.keys[key] = entry{value: pending, expires: now.Add(ttl)}
	return "", nil
}

func (s *MemoryStore) Complete(_ context.Context, key, orderID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = entry{value: orderID, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
