package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/d21d3q/golora/internal/driver"
	"github.com/d21d3q/golora/internal/reading"
)

// DefaultKeyPrefix namespaces node bindings in Redis.
const DefaultKeyPrefix = "golora:node:"

// RedisStore shares the identity to device type binding between receiver
// processes through Redis. Sessions themselves stay in a local MemoryStore;
// Redis only decides which device type a node was first seen with.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	local  *MemoryStore
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store backed by client. An empty prefix selects
// DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, local: NewMemoryStore()}
}

func (r *RedisStore) key(id reading.NodeID) string {
	return r.prefix + strconv.FormatUint(uint64(id), 16)
}

// GetOrCreate implements Store. The first binding written with SETNX wins,
// across every process sharing the Redis instance.
func (r *RedisStore) GetOrCreate(ctx context.Context, id reading.NodeID, typ driver.DeviceType) (*Session, bool, error) {
	if s, ok := r.local.Get(id); ok {
		return s, false, nil
	}
	if !typ.Known() {
		return nil, false, fmt.Errorf("%w %s for node %s", driver.ErrUnknownDeviceType, typ, id)
	}
	key := r.key(id)
	bound := typ
	fresh, err := r.client.SetNX(ctx, key, int(typ), 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("bind node %s: %w", id, err)
	}
	if !fresh {
		stored, err := r.client.Get(ctx, key).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, false, fmt.Errorf("load node %s: %w", id, err)
		}
		if err == nil && stored >= 0 && stored <= 0xFF && driver.DeviceType(stored).Known() {
			bound = driver.DeviceType(stored)
		}
	}
	s, localCreated, err := r.local.GetOrCreate(ctx, id, bound)
	if err != nil {
		return nil, false, err
	}
	return s, localCreated, nil
}

// Get implements Store.
func (r *RedisStore) Get(id reading.NodeID) (*Session, bool) { return r.local.Get(id) }

// Len implements Store. It counts sessions known to this process.
func (r *RedisStore) Len() int { return r.local.Len() }

// Snapshot implements Store.
func (r *RedisStore) Snapshot() []*Session { return r.local.Snapshot() }

// Close releases the Redis client.
func (r *RedisStore) Close() error { return r.client.Close() }
