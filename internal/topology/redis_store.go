package topology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces topology blobs in Redis. One key per device keeps the
// per-device read-then-write atomic: each Save is a single SET.
const KeyPrefix = "mguard:topology:"

// RedisStore persists topologies as JSON blobs, one key per device.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(deviceID string) string {
	return KeyPrefix + deviceID
}

func (s *RedisStore) Save(ctx context.Context, topo *Topology) error {
	data, err := json.Marshal(topo)
	if err != nil {
		return fmt.Errorf("marshal topology for %s: %w", topo.DeviceID, err)
	}
	if err := s.client.Set(ctx, key(topo.DeviceID), data, 0).Err(); err != nil {
		return fmt.Errorf("persist topology for %s: %w", topo.DeviceID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, deviceID string) (*Topology, error) {
	data, err := s.client.Get(ctx, key(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load topology for %s: %w", deviceID, err)
	}

	topo := New(deviceID)
	if err := topo.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode topology for %s: %w", deviceID, err)
	}
	return topo, nil
}

func (s *RedisStore) Delete(ctx context.Context, deviceID string) error {
	if err := s.client.Del(ctx, key(deviceID)).Err(); err != nil {
		return fmt.Errorf("delete topology for %s: %w", deviceID, err)
	}
	return nil
}
