// Package knowledge is the keyed persistence shared with the generation
// side of the loop: the PDCA analyzer and pattern learner write here, and
// future generator calls read from it. Values are opaque JSON blobs with
// last-writer-wins semantics per key.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Well-known keys written by the feedback loop.
const (
	KeyPDCAReport      = "posthunter:pdca:report"
	KeyWinningPatterns = "posthunter:patterns:winning"
)

// ErrKeyNotFound is returned when a key has never been written.
var ErrKeyNotFound = errors.New("knowledge key not found")

// Store is generic keyed persistence. The value format is opaque to the
// core; callers marshal their own JSON.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
}

// RedisStore is the Redis-backed Store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Read(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge read %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Write(ctx context.Context, key string, value []byte) error {
	// No TTL: the latest report stays until the next run overwrites it.
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("knowledge write %s: %w", key, err)
	}
	return nil
}

// MemoryStore is the in-process Store used in tests and single-node runs
// without Redis.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *MemoryStore) Write(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[key] = cp
	return nil
}
