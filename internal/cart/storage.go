package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giftbasket/giftcart/pkg/redis"
)

var (
	// ErrSnapshotNotFound is returned by Storage.Load when nothing is stored under the key.
	ErrSnapshotNotFound = errors.New("cart snapshot not found")
	// ErrQuotaExceeded is returned when a payload does not fit the storage quota.
	ErrQuotaExceeded = errors.New("cart storage quota exceeded")
)

// Storage is the durable key/value backend for cart snapshots.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStorage keeps snapshots in redis with a sliding TTL.
type RedisStorage struct {
	client redisStore
	ttl    time.Duration
}

func NewRedisStorage(client redisStore, ttl time.Duration) (*RedisStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStorage{client: client, ttl: ttl}, nil
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return []byte(raw), nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, payload []byte) error {
	return r.client.Set(ctx, key, payload, r.ttl)
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key)
}

// QuotaStorage rejects payloads larger than maxBytes before they reach the backend.
type QuotaStorage struct {
	next     Storage
	maxBytes int
}

// NewQuotaStorage wraps next with a per-value size quota. maxBytes <= 0 disables the check.
func NewQuotaStorage(next Storage, maxBytes int) *QuotaStorage {
	return &QuotaStorage{next: next, maxBytes: maxBytes}
}

func (q *QuotaStorage) Load(ctx context.Context, key string) ([]byte, error) {
	return q.next.Load(ctx, key)
}

func (q *QuotaStorage) Save(ctx context.Context, key string, payload []byte) error {
	if q.maxBytes > 0 && len(payload) > q.maxBytes {
		return fmt.Errorf("%w: %d bytes over limit %d", ErrQuotaExceeded, len(payload), q.maxBytes)
	}
	return q.next.Save(ctx, key, payload)
}

func (q *QuotaStorage) Delete(ctx context.Context, key string) error {
	return q.next.Delete(ctx, key)
}
