package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apishield/internal/domain/models"
	domainService "github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/internal/infrastructure/persistence/memory"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/errors"
	"github.com/turtacn/apishield/pkg/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock     *testClock
	store     *memory.Store
	admission *domainService.AdmissionService
	app       ShieldAppService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(0, 0)
	admission := domainService.NewAdmissionService(store, domainService.WithClock(clock))

	loginMax := 2
	rules := []models.RouteRule{models.LiteralRule("/api/login", models.LimitOverride{Max: &loginMax})}
	global := models.LimitConfig{Max: 5, Window: time.Minute, Ban: time.Hour}

	return &fixture{
		clock:     clock,
		store:     store,
		admission: admission,
		app:       NewShieldAppService(admission, global, rules, 24*time.Hour, logger.NewNoopLogger()),
	}
}

func TestShieldAppService_AdmitUsesConfiguredRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := f.app.Admit(ctx, "10.0.0.1", "/api/login")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := f.app.Admit(ctx, "10.0.0.1", "/api/login")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, constants.ReasonTripped, res.Reason)
	assert.Equal(t, 3600, res.RetryAfterSeconds)

	status, err := f.app.BanStatus(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, status.Banned)
	assert.Equal(t, 3600, status.RetryAfterSeconds)

	require.NoError(t, f.app.LiftBan(ctx, "10.0.0.1"))
	status, err = f.app.BanStatus(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, status.Banned)
}

func TestShieldAppService_Resolve(t *testing.T) {
	f := newFixture(t)

	exact := f.app.Resolve("/api/login")
	assert.Equal(t, "exact", exact.MatchKind)
	assert.Equal(t, "/api/login", exact.RulePath)
	assert.Equal(t, 2, exact.Max)
	assert.Equal(t, 3600.0, exact.BanSeconds)

	global := f.app.Resolve("/api/other")
	assert.Equal(t, "global", global.MatchKind)
	assert.Empty(t, global.ScopeKey)
	assert.Equal(t, 5, global.Max)
	assert.Equal(t, 60.0, global.WindowSeconds)
}

func TestShieldAppService_OperatorBan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.app.Ban(ctx, "10.0.0.2", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, status.Banned)
	assert.Equal(t, 90, status.RetryAfterSeconds)

	res, err := f.app.Admit(ctx, "10.0.0.2", "/api/anything")
	require.NoError(t, err)
	assert.Equal(t, constants.ReasonBanned, res.Reason)

	_, err = f.app.Ban(ctx, "10.0.0.2", -time.Second)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidRequest))
	_, err = f.app.BanStatus(ctx, " ")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidRequest))
}

func TestShieldAppService_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Ban(ctx, "10.0.0.3", time.Minute)
	require.NoError(t, err)
	_, err = f.app.Admit(ctx, "10.0.0.4", "/api/x")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	resp, err := f.app.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.BansRemoved)
	assert.Equal(t, 1, resp.IdentitiesRemoved)
	assert.Zero(t, f.store.Len())
}

func TestSweepScheduler_RunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Ban(ctx, "10.0.0.5", time.Minute)
	require.NoError(t, err)
	_, err = f.app.Admit(ctx, "10.0.0.6", "/api/x")
	require.NoError(t, err)

	sched := NewSweepScheduler(f.admission.Sweeper(), ScheduleConfig{IdentityTTL: time.Hour}, nil, logger.NewNoopLogger())

	report, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.BansRemoved)
	assert.Zero(t, report.IdentitiesRemoved)

	f.clock.Advance(2 * time.Hour)
	report, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BansRemoved)
	assert.Equal(t, 1, report.IdentitiesRemoved)
}

func TestSweepScheduler_RunOnceWithoutTTLKeepsCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Admit(ctx, "10.0.0.7", "/api/x")
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)

	sched := NewSweepScheduler(f.admission.Sweeper(), ScheduleConfig{}, nil, logger.NewNoopLogger())
	report, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.IdentitiesRemoved)
	assert.Equal(t, 1, f.store.Len())
}

func TestSweepScheduler_RunTicksUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.app.Ban(ctx, "10.0.0.8", time.Minute)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	sched := NewSweepScheduler(f.admission.Sweeper(), ScheduleConfig{
		BanInterval:      10 * time.Millisecond,
		IdentityInterval: 10 * time.Millisecond,
		IdentityTTL:      time.Hour,
	}, nil, logger.NewNoopLogger())

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.store.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
