/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package redisstore

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/redis/go-redis/v9"
)

// Store is an interface to the external key-value store used for
// cross-instance coordination.
type Store interface {
	// Get returns the value stored under key.
	// found is false if the key is absent; this is not an error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// SetWithTTL stores value under key with the given expiry.
	// Zero ttl stores the value without expiration.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent stores value under key only if the key does not exist yet
	// (SET NX EX, a single atomic operation at the store).
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes the given keys and returns the number of removed ones.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// DeleteIfOwner removes key only if its current value equals owner.
	// The check and the delete execute atomically at the store.
	DeleteIfOwner(ctx context.Context, key, owner string) (bool, error)

	// Eval executes a Lua script atomically at the store.
	// Scripts are cached and executed via EVALSHA with an automatic fallback
	// for stores that have not seen the script yet.
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	// Scan incrementally iterates keys matching pattern starting from cursor.
	// It never blocks the store the way a full keyspace enumeration would.
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) (keys []string, next uint64, err error)
}

// deleteIfOwnerScript deletes KEYS[1] only if it still holds ARGV[1].
// Doing the comparison on the store side closes the race between a read
// and a subsequent delete.
const deleteIfOwnerScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisStore implements Store on top of a single per-process go-redis client.
type RedisStore struct {
	client *redis.Client
	logger log.FieldLogger

	scriptsMu sync.RWMutex
	scripts   map[string]*redis.Script
}

var _ Store = (*RedisStore)(nil)

// New creates a new RedisStore with its own client built from cfg.
// One RedisStore (and so one connection pool) per process is intended.
func New(cfg *Config, logger log.FieldLogger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.Timeouts.Dial,
		ReadTimeout:  cfg.Timeouts.Read,
		WriteTimeout: cfg.Timeouts.Write,
		PoolSize:     cfg.PoolSize,
	})
	return NewWithClient(client, logger)
}

// NewWithClient wraps an already constructed go-redis client.
func NewWithClient(client *redis.Client, logger log.FieldLogger) *RedisStore {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &RedisStore{
		client:  client,
		logger:  logger,
		scripts: make(map[string]*redis.Script),
	}
}

// Ping checks connectivity to the store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client and its connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// SetWithTTL implements Store.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// SetIfAbsent implements Store.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.client.Del(ctx, keys...).Result()
}

// DeleteIfOwner implements Store.
func (s *RedisStore) DeleteIfOwner(ctx context.Context, key, owner string) (bool, error) {
	res, err := s.Eval(ctx, deleteIfOwnerScript, []string{key}, owner)
	if err != nil {
		return false, err
	}
	deleted, ok := res.(int64)
	if !ok {
		return false, errors.New("unexpected delete-if-owner script result type")
	}
	return deleted == 1, nil
}

// Eval implements Store.
func (s *RedisStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return s.scriptFor(script).Run(ctx, s.client, keys, args...).Result()
}

// Scan implements Store.
func (s *RedisStore) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	return s.client.Scan(ctx, cursor, pattern, count).Result()
}

func (s *RedisStore) scriptFor(script string) *redis.Script {
	s.scriptsMu.RLock()
	sc, ok := s.scripts[script]
	s.scriptsMu.RUnlock()
	if ok {
		return sc
	}

	s.scriptsMu.Lock()
	defer s.scriptsMu.Unlock()
	if sc, ok = s.scripts[script]; ok {
		return sc
	}
	sc = redis.NewScript(script)
	s.scripts[script] = sc
	return sc
}

// IsUnavailable reports whether err indicates that the shared store cannot be
// reached (network failure, timeout, closed client). Callers use it to pick
// the degraded path instead of propagating a hard failure.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
