package service

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/errors"
	"github.com/turtacn/apishield/pkg/logger"
)

// Sweep kinds reported to metrics.
const (
	SweepKindBans       = "bans"
	SweepKindIdentities = "identities"
)

// CleanupSweeper removes stale records. It runs off the request path and is
// idempotent: a second run with no traffic in between removes nothing.
type CleanupSweeper struct {
	store   Storage
	clock   Clock
	metrics Metrics
	logger  logger.Logger
}

// NewCleanupSweeper creates a sweeper over store.
func NewCleanupSweeper(store Storage, clock Clock, metrics Metrics, log logger.Logger) *CleanupSweeper {
	return &CleanupSweeper{
		store:   store,
		clock:   clock,
		metrics: metrics,
		logger:  log.WithComponent("cleanup_sweeper"),
	}
}

// SweepBans removes ban records that are expired, null or malformed and
// returns how many were removed.
func (s *CleanupSweeper) SweepBans(ctx context.Context) (int, error) {
	now := s.clock.Now()
	removed, err := s.sweep(ctx, constants.BanKeyPrefix, func(raw []byte) bool {
		ban, ok := models.DecodeBanRecord(raw)
		return !ok || !ban.Active(now)
	})
	s.metrics.RecordSweep(SweepKindBans, removed)
	if err != nil {
		return removed, err
	}
	s.logger.Info(ctx, "Ban sweep finished", logger.Int("removed", removed))
	return removed, nil
}

// SweepStaleIdentityRecords removes counter records that are malformed or
// whose window started more than ttl ago. A non-positive ttl removes nothing.
func (s *CleanupSweeper) SweepStaleIdentityRecords(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	now := s.clock.Now()
	removed, err := s.sweep(ctx, constants.CounterKeyPrefix, func(raw []byte) bool {
		record, ok := models.DecodeCounterRecord(raw)
		return !ok || now.Sub(record.WindowStart) > ttl
	})
	s.metrics.RecordSweep(SweepKindIdentities, removed)
	if err != nil {
		return removed, err
	}
	s.logger.Info(ctx, "Identity sweep finished",
		logger.Int("removed", removed),
		logger.Duration("ttl", ttl),
	)
	return removed, nil
}

// Sweep runs both passes and reports the totals.
func (s *CleanupSweeper) Sweep(ctx context.Context, ttl time.Duration) (models.SweepReport, error) {
	start := s.clock.Now()
	var report models.SweepReport
	var err error
	if report.BansRemoved, err = s.SweepBans(ctx); err != nil {
		return report, err
	}
	if report.IdentitiesRemoved, err = s.SweepStaleIdentityRecords(ctx, ttl); err != nil {
		return report, err
	}
	report.Duration = s.clock.Now().Sub(start)
	return report, nil
}

// sweep removes every key under prefix whose value satisfies stale. Keys that
// disappear between listing and reading are skipped.
func (s *CleanupSweeper) sweep(ctx context.Context, prefix string, stale func([]byte) bool) (int, error) {
	keys, err := s.store.ListKeys(ctx, prefix)
	if err != nil {
		s.metrics.RecordStorageError("list_keys")
		return 0, errors.ErrStorageUnavailable("list_keys", err)
	}

	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("sweep %s interrupted: %w", prefix, err)
		}
		raw, found, err := s.store.Get(ctx, key)
		if err != nil {
			s.metrics.RecordStorageError("sweep_get")
			return removed, errors.ErrStorageUnavailable("sweep_get", err)
		}
		if !found || !stale(raw) {
			continue
		}
		if err := s.store.Remove(ctx, key); err != nil {
			s.metrics.RecordStorageError("sweep_remove")
			return removed, errors.ErrStorageUnavailable("sweep_remove", err)
		}
		removed++
	}
	return removed, nil
}
