package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/logger"
)

var (
	_ service.Storage            = (*Store)(nil)
	_ service.AtomicCounterStore = (*Store)(nil)
	_ service.Pinger             = (*Store)(nil)
)

// scanBatchSize is the COUNT hint passed to SCAN.
const scanBatchSize = 500

// incrementWindowScript restarts or increments a counter record in one step.
// KEYS[1] - counter key
// ARGV[1] - now (unix ms)
// ARGV[2] - window (ms)
// Returns {count, windowStart}.
const incrementWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = 1
local start = now

local raw = redis.call('GET', key)
if raw then
  local ok, rec = pcall(cjson.decode, raw)
  if ok and type(rec) == 'table'
     and type(rec['count']) == 'number' and type(rec['time']) == 'number'
     and rec['count'] >= 1 and (now - rec['time']) < window then
    count = math.floor(rec['count']) + 1
    start = rec['time']
  end
end

redis.call('SET', key, cjson.encode({count = count, time = start}))
return {count, start}
`

var incrementWindow = redis.NewScript(incrementWindowScript)

// Store keeps shield records in Redis as plain string values without TTL.
type Store struct {
	client    redis.UniversalClient
	namespace string
	logger    logger.Logger
}

// NewStore creates a Redis store. namespace may be empty.
func NewStore(conn *RedisConnection, namespace string, log logger.Logger) *Store {
	return &Store{
		client:    conn.GetClient(),
		namespace: namespace,
		logger:    log.WithComponent("redis_store"),
	}
}

func (s *Store) key(k string) string {
	return s.namespace + k
}

// Get implements service.Storage.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements service.Storage.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove implements service.Storage.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// ListKeys implements service.Storage using SCAN, on every master when clustered.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.key(prefix)) + "*"

	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		var (
			mu   sync.Mutex
			keys []string
		)
		err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			found, err := s.scan(ctx, node, match)
			if err != nil {
				return err
			}
			mu.Lock()
			keys = append(keys, found...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		return keys, nil
	}

	keys, err := s.scan(ctx, s.client, match)
	if err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	return keys, nil
}

func (s *Store) scan(ctx context.Context, c redis.Cmdable, match string) ([]string, error) {
	var keys []string
	iter := c.Scan(ctx, 0, match, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace))
	}
	return keys, iter.Err()
}

// IncrementWindow implements service.AtomicCounterStore with a Lua script.
func (s *Store) IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration) (models.CounterRecord, error) {
	res, err := incrementWindow.Run(ctx, s.client, []string{s.key(key)}, now.UnixMilli(), window.Milliseconds()).Result()
	if err != nil {
		return models.CounterRecord{}, fmt.Errorf("redis increment %s: %w", key, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return models.CounterRecord{}, fmt.Errorf("unexpected script result: %v", res)
	}
	count, ok1 := values[0].(int64)
	start, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return models.CounterRecord{}, fmt.Errorf("unexpected script result types: %T, %T", values[0], values[1])
	}
	return models.CounterRecord{Count: count, WindowStart: time.UnixMilli(start)}, nil
}

// Ping implements service.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
