package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/internal/domain/service/mocks"
	"github.com/turtacn/apishield/pkg/constants"
	shielderrors "github.com/turtacn/apishield/pkg/errors"
)

func TestAdmissionService_GlobalScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := service.NewAdmissionService(newMapStore(), service.WithClock(clock))
	global := limit(2, 3*time.Second, 10*time.Second)

	res, err := svc.Admit(ctx, "X", "/api/a", global, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = svc.Admit(ctx, "X", "/api/a", global, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = svc.Admit(ctx, "X", "/api/a", global, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 10, res.RetryAfterSeconds)
	assert.Equal(t, constants.ReasonTripped, res.Reason)

	clock.Advance(4 * time.Second)
	res, err = svc.Admit(ctx, "X", "/api/a", global, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "still banned")
	assert.Equal(t, 6, res.RetryAfterSeconds)
	assert.Equal(t, constants.ReasonBanned, res.Reason)

	clock.Advance(7 * time.Second)
	res, err = svc.Admit(ctx, "X", "/api/a", global, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Count, "counter restarts after the ban")

	status, err := svc.BanStatus(ctx, "X")
	require.NoError(t, err)
	assert.False(t, status.Present, "stale ban is cleared on the request path")
}

func TestAdmissionService_RouteScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := service.NewAdmissionService(newMapStore(), service.WithClock(clock))
	global := limit(2, 10*time.Second, 20*time.Second)
	rules := []models.RouteRule{
		models.LiteralRule("/api/special", models.LimitOverride{
			Max:    intPtr(1),
			Window: durPtr(2 * time.Second),
			Ban:    durPtr(50 * time.Second),
		}),
	}

	res, err := svc.Admit(ctx, "Y", "/api/special", global, rules)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "/api/special", res.ScopeKey)

	res, err = svc.Admit(ctx, "Y", "/api/other", global, rules)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "unrelated path has its own counter")
	assert.Equal(t, int64(1), res.Count)

	res, err = svc.Admit(ctx, "Y", "/api/special", global, rules)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 50, res.RetryAfterSeconds)

	res, err = svc.Admit(ctx, "Y", "/api/other", global, rules)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "the ban is per identity across routes")
	assert.Equal(t, constants.ReasonBanned, res.Reason)

	res, err = svc.Admit(ctx, "Z", "/api/special", global, rules)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other identities are unaffected")
}

func TestAdmissionService_ZeroBanOnlyResets(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := service.NewAdmissionService(newMapStore(), service.WithClock(clock))
	global := limit(2, time.Minute, 0)

	for i := 0; i < 2; i++ {
		res, err := svc.Admit(ctx, "id", "/api/a", global, nil)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := svc.Admit(ctx, "id", "/api/a", global, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.RetryAfterSeconds)

	res, err = svc.Admit(ctx, "id", "/api/a", global, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a zero ban is inactive on the next check")
	assert.Equal(t, int64(2), res.Count, "the trip reset the counter to 1")
}

func TestAdmissionService_ActiveBanDoesNotTouchCounter(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMapStore()
	svc := service.NewAdmissionService(store, service.WithClock(clock))
	global := limit(5, time.Minute, time.Minute)

	_, err := svc.Ban(ctx, "id", time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := svc.Admit(ctx, "id", "/api/a", global, nil)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	}
	_, ok := store.counter(service.CounterKey("id", ""))
	assert.False(t, ok)

	require.NoError(t, svc.LiftBan(ctx, "id"))
	res, err := svc.Admit(ctx, "id", "/api/a", global, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAdmissionService_StorageFailureSurfaces(t *testing.T) {
	store := new(mocks.MockStorage)
	store.On("Get", mock.Anything, mock.Anything).Return(nil, false, assert.AnError)

	svc := service.NewAdmissionService(store, service.WithClock(newFakeClock()))
	_, err := svc.Admit(context.Background(), "id", "/api/a", globalLimit, nil)
	require.Error(t, err)
	assert.True(t, shielderrors.IsStorageUnavailable(err))
}

func TestAdmissionService_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := new(mocks.MockMetrics)
	metrics.On("RecordAdmission", constants.ReasonAllowed, models.MatchGlobal, mock.Anything).Once()
	metrics.On("RecordAdmission", constants.ReasonTripped, models.MatchGlobal, mock.Anything).Once()
	metrics.On("RecordBan", models.MatchGlobal).Once()

	svc := service.NewAdmissionService(newMapStore(), service.WithClock(newFakeClock()), service.WithMetrics(metrics))
	global := limit(1, time.Minute, time.Minute)

	_, err := svc.Admit(ctx, "id", "/api/a", global, nil)
	require.NoError(t, err)
	_, err = svc.Admit(ctx, "id", "/api/a", global, nil)
	require.NoError(t, err)
	metrics.AssertExpectations(t)
}

func TestAdmissionService_ConcurrentIdentitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := service.NewAdmissionService(newMapStore(), service.WithClock(newFakeClock()))
	global := limit(3, time.Minute, time.Minute)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				res, err := svc.Admit(ctx, id, "/api/x", global, nil)
				assert.NoError(t, err)
				assert.True(t, res.Allowed)
			}
		}(id)
	}
	wg.Wait()
}
