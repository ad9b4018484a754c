package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the queue in Redis so several agents on one host (or a
// fleet behind the same account) share a single backlog. Order lives in a
// list of ids; payloads live in a hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL (redis://host:port/db).
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "capture:queue:"}
}

// updateScript rewrites a payload only while it still exists, so an update
// racing a Remove cannot bring the item back.
var updateScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

func (s *RedisStore) orderKey() string { return s.prefix + "order" }
func (s *RedisStore) itemsKey() string { return s.prefix + "items" }

func (s *RedisStore) Append(ctx context.Context, it Item) error {
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.itemsKey(), it.ID, data)
		p.RPush(ctx, s.orderKey(), it.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append queue item: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Item, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list queue order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vals, err := s.client.HMGet(ctx, s.itemsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load queue items: %w", err)
	}

	items := make([]Item, 0, len(ids))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// order entry without payload: left over from a partial remove
			continue
		}
		var it Item
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return nil, fmt.Errorf("decode queue item %s: %w", ids[i], err)
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *RedisStore) Update(ctx context.Context, it Item) error {
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	if err := updateScript.Run(ctx, s.client, []string{s.itemsKey()}, it.ID, data).Err(); err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, s.orderKey(), 1, id)
		p.HDel(ctx, s.itemsKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove queue item: %w", err)
	}
	return nil
}

// Len counts payloads, matching what List returns; order ids left without a
// payload are not counted.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.itemsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
