package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/internal/domain/service/mocks"
	"github.com/turtacn/apishield/pkg/logger"
)

func seedCounter(t *testing.T, store *mapStore, key string, rec models.CounterRecord) {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), key, raw))
}

func TestCleanupSweeper_SweepBans(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMapStore()
	now := clock.Now()

	require.NoError(t, store.Set(ctx, service.BanKey("expired"), models.EncodeBanRecord(models.BanRecord{BannedUntil: now.Add(-time.Second)})))
	require.NoError(t, store.Set(ctx, service.BanKey("active"), models.EncodeBanRecord(models.BanRecord{BannedUntil: now.Add(time.Hour)})))
	require.NoError(t, store.Set(ctx, service.BanKey("null"), []byte("null")))
	require.NoError(t, store.Set(ctx, service.BanKey("garbage"), []byte("not-a-number")))
	seedCounter(t, store, service.CounterKey("active", ""), models.NewCounterRecord(now))

	sweeper := service.NewCleanupSweeper(store, clock, service.NewNoopMetrics(), logger.NewNoopLogger())
	removed, err := sweeper.SweepBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	keys, _ := store.ListKeys(ctx, "")
	assert.ElementsMatch(t, []string{"ban:active", "ip:active"}, keys)

	removed, err = sweeper.SweepBans(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "second sweep is a no-op")
}

func TestCleanupSweeper_SweepStaleIdentityRecords(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMapStore()
	now := clock.Now()
	ttl := 7 * 24 * time.Hour

	seedCounter(t, store, service.CounterKey("old", ""), models.CounterRecord{Count: 4, WindowStart: now.Add(-ttl - time.Minute)})
	seedCounter(t, store, service.CounterKey("old", "/api/x"), models.CounterRecord{Count: 1, WindowStart: now.Add(-ttl - time.Hour)})
	seedCounter(t, store, service.CounterKey("edge", ""), models.CounterRecord{Count: 1, WindowStart: now.Add(-ttl)})
	seedCounter(t, store, service.CounterKey("fresh", ""), models.NewCounterRecord(now))
	require.NoError(t, store.Set(ctx, service.CounterKey("broken", ""), []byte(`{"count":1}`)))
	require.NoError(t, store.Set(ctx, service.BanKey("old"), models.EncodeBanRecord(models.BanRecord{BannedUntil: now.Add(-ttl * 2)})))

	sweeper := service.NewCleanupSweeper(store, clock, service.NewNoopMetrics(), logger.NewNoopLogger())
	removed, err := sweeper.SweepStaleIdentityRecords(ctx, ttl)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	keys, _ := store.ListKeys(ctx, "")
	assert.ElementsMatch(t, []string{"ip:edge", "ip:fresh", "ban:old"}, keys, "only counter records are swept")

	removed, err = sweeper.SweepStaleIdentityRecords(ctx, ttl)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCleanupSweeper_NonPositiveTTLRemovesNothing(t *testing.T) {
	store := newMapStore()
	clock := newFakeClock()
	seedCounter(t, store, service.CounterKey("old", ""), models.CounterRecord{Count: 1, WindowStart: clock.Now().Add(-time.Hour * 1000)})

	sweeper := service.NewCleanupSweeper(store, clock, service.NewNoopMetrics(), logger.NewNoopLogger())
	removed, err := sweeper.SweepStaleIdentityRecords(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 1, store.len())
}

func TestCleanupSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMapStore()
	now := clock.Now()
	require.NoError(t, store.Set(ctx, service.BanKey("a"), models.EncodeBanRecord(models.BanRecord{BannedUntil: now})))
	seedCounter(t, store, service.CounterKey("a", ""), models.CounterRecord{Count: 1, WindowStart: now.Add(-48 * time.Hour)})

	metrics := new(mocks.MockMetrics)
	metrics.On("RecordSweep", service.SweepKindBans, 1).Once()
	metrics.On("RecordSweep", service.SweepKindIdentities, 1).Once()

	sweeper := service.NewCleanupSweeper(store, clock, metrics, logger.NewNoopLogger())
	report, err := sweeper.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BansRemoved)
	assert.Equal(t, 1, report.IdentitiesRemoved)
	metrics.AssertExpectations(t)
}

func TestCleanupSweeper_ListFailure(t *testing.T) {
	store := new(mocks.MockStorage)
	store.On("ListKeys", mock.Anything, "ban:").Return(nil, assert.AnError)
	metrics := new(mocks.MockMetrics)
	metrics.On("RecordStorageError", "list_keys").Once()
	metrics.On("RecordSweep", service.SweepKindBans, 0).Once()

	sweeper := service.NewCleanupSweeper(store, newFakeClock(), metrics, logger.NewNoopLogger())
	_, err := sweeper.SweepBans(context.Background())
	require.Error(t, err)
	metrics.AssertExpectations(t)
}
