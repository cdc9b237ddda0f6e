// Package memory provides a process-local shield store backed by go-cache.
// It suits single-instance deployments and tests; records are lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
)

var (
	_ service.Storage            = (*Store)(nil)
	_ service.AtomicCounterStore = (*Store)(nil)
	_ service.Pinger             = (*Store)(nil)
)

// Store keeps raw record bytes in a go-cache instance.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewStore creates a store. expiration is applied to every entry
// (cache.NoExpiration or 0 keeps entries until removed); cleanupInterval
// controls how often go-cache purges expired entries.
func NewStore(expiration, cleanupInterval time.Duration) *Store {
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &Store{cache: cache.New(expiration, cleanupInterval)}
}

// Get implements service.Storage.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := s.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	raw, _ := v.([]byte)
	return append([]byte(nil), raw...), true, nil
}

// Set implements service.Storage.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetDefault(key, append([]byte(nil), value...))
	return nil
}

// Remove implements service.Storage.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}

// ListKeys implements service.Storage. Keys are returned sorted.
func (s *Store) ListKeys(_ context.Context, prefix string) ([]string, error) {
	items := s.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// IncrementWindow implements service.AtomicCounterStore under the store lock.
func (s *Store) IncrementWindow(_ context.Context, key string, now time.Time, window time.Duration) (models.CounterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := models.NewCounterRecord(now)
	if v, found := s.cache.Get(key); found {
		if raw, ok := v.([]byte); ok {
			if current, ok := models.DecodeCounterRecord(raw); ok && !current.Expired(now, window) {
				next = models.CounterRecord{Count: current.Count + 1, WindowStart: current.WindowStart}
			}
		}
	}

	raw, err := next.MarshalJSON()
	if err != nil {
		return models.CounterRecord{}, err
	}
	s.cache.SetDefault(key, raw)
	return next, nil
}

// Ping implements service.Pinger; memory is always reachable.
func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored entries, expired ones included until purged.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Flush drops every entry.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Flush()
}
