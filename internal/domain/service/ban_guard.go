package service

import (
	"context"
	"time"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/errors"
	"github.com/turtacn/apishield/pkg/logger"
)

// BanGuard reads, writes and clears per-identity ban records.
// BanGuard 负责读取、写入和清理身份封禁记录。
type BanGuard struct {
	store   Storage
	clock   Clock
	metrics Metrics
	logger  logger.Logger
}

// NewBanGuard creates a ban guard over store.
func NewBanGuard(store Storage, clock Clock, metrics Metrics, log logger.Logger) *BanGuard {
	return &BanGuard{
		store:   store,
		clock:   clock,
		metrics: metrics,
		logger:  log.WithComponent("ban_guard"),
	}
}

// Check reports the ban state of identity. An absent record means not banned;
// a record that is present but expired or malformed reports Present=true,
// Active=false so the caller can clear it.
func (g *BanGuard) Check(ctx context.Context, identity string) (models.BanStatus, error) {
	raw, found, err := g.store.Get(ctx, BanKey(identity))
	if err != nil {
		g.metrics.RecordStorageError("ban_get")
		return models.BanStatus{}, errors.ErrStorageUnavailable("ban_get", err)
	}
	if !found {
		return models.BanStatus{}, nil
	}
	ban, ok := models.DecodeBanRecord(raw)
	if !ok {
		return models.BanStatus{Present: true}, nil
	}
	now := g.clock.Now()
	return models.BanStatus{
		Active:            ban.Active(now),
		Present:           true,
		RetryAfterSeconds: ban.RetryAfterSeconds(now),
		BannedUntil:       ban.BannedUntil,
	}, nil
}

// ClearIfExpired removes the ban record of identity when it is expired or
// malformed. The record is re-read first so a ban written concurrently by a
// trip is never removed. It reports whether a record was removed.
func (g *BanGuard) ClearIfExpired(ctx context.Context, identity string) (bool, error) {
	status, err := g.Check(ctx, identity)
	if err != nil {
		return false, err
	}
	if !status.Present || status.Active {
		return false, nil
	}
	if err := g.store.Remove(ctx, BanKey(identity)); err != nil {
		g.metrics.RecordStorageError("ban_remove")
		return false, errors.ErrStorageUnavailable("ban_remove", err)
	}
	g.logger.Debug(ctx, "Expired ban cleared", logger.String("identity", identity))
	return true, nil
}

// Ban bans identity for duration from now and returns the resulting retry hint.
// A zero duration writes bannedUntil = now, which is already inactive.
func (g *BanGuard) Ban(ctx context.Context, identity string, duration time.Duration) (models.BanRecord, error) {
	now := g.clock.Now()
	ban := models.BanRecord{BannedUntil: now.Add(duration)}
	if err := g.store.Set(ctx, BanKey(identity), models.EncodeBanRecord(ban)); err != nil {
		g.metrics.RecordStorageError("ban_set")
		return models.BanRecord{}, errors.ErrStorageUnavailable("ban_set", err)
	}
	g.logger.Info(ctx, "Identity banned",
		logger.String("identity", identity),
		logger.Time("banned_until", ban.BannedUntil),
	)
	return ban, nil
}

// Lift removes the ban of identity regardless of its state.
func (g *BanGuard) Lift(ctx context.Context, identity string) error {
	if err := g.store.Remove(ctx, BanKey(identity)); err != nil {
		g.metrics.RecordStorageError("ban_remove")
		return errors.ErrStorageUnavailable("ban_remove", err)
	}
	g.logger.Info(ctx, "Ban lifted", logger.String("identity", identity))
	return nil
}
