package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/apishield/internal/domain/models"
	domainService "github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/logger"
)

// ScheduleConfig sets the sweep cadence. IdentityTTL <= 0 disables identity
// sweeping; a non-positive interval disables that loop.
type ScheduleConfig struct {
	BanInterval      time.Duration
	IdentityInterval time.Duration
	IdentityTTL      time.Duration
	RunOnStart       bool
}

// SweepScheduler periodically invokes the cleanup sweeper.
type SweepScheduler struct {
	sweeper *domainService.CleanupSweeper
	cfg     ScheduleConfig
	tracer  trace.Tracer
	logger  logger.Logger
}

// NewSweepScheduler creates a scheduler. tracer may be nil.
func NewSweepScheduler(sweeper *domainService.CleanupSweeper, cfg ScheduleConfig, tracer trace.Tracer, log logger.Logger) *SweepScheduler {
	if tracer == nil {
		tracer = otel.Tracer(constants.ServiceName)
	}
	return &SweepScheduler{
		sweeper: sweeper,
		cfg:     cfg,
		tracer:  tracer,
		logger:  log.WithComponent("sweep_scheduler"),
	}
}

// Run sweeps on every tick until ctx is cancelled. Sweep failures are logged
// and the loop keeps going.
func (s *SweepScheduler) Run(ctx context.Context) error {
	if s.cfg.RunOnStart {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Warn(ctx, "Initial sweep failed", logger.String("error", err.Error()))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if s.cfg.BanInterval > 0 {
		g.Go(func() error {
			s.loop(ctx, s.cfg.BanInterval, domainService.SweepKindBans, s.sweepBans)
			return nil
		})
	}
	if s.cfg.IdentityInterval > 0 && s.cfg.IdentityTTL > 0 {
		g.Go(func() error {
			s.loop(ctx, s.cfg.IdentityInterval, domainService.SweepKindIdentities, s.sweepIdentities)
			return nil
		})
	}
	s.logger.Info(ctx, "Sweep scheduler started",
		logger.Duration("ban_interval", s.cfg.BanInterval),
		logger.Duration("identity_interval", s.cfg.IdentityInterval),
		logger.Duration("identity_ttl", s.cfg.IdentityTTL),
	)
	return g.Wait()
}

// RunOnce runs both sweeps concurrently and reports the totals.
func (s *SweepScheduler) RunOnce(ctx context.Context) (models.SweepReport, error) {
	start := time.Now()
	var report models.SweepReport

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.sweepBans(gctx)
		report.BansRemoved = n
		return err
	})
	g.Go(func() error {
		n, err := s.sweepIdentities(gctx)
		report.IdentitiesRemoved = n
		return err
	})
	err := g.Wait()
	report.Duration = time.Since(start)
	return report, err
}

func (s *SweepScheduler) loop(ctx context.Context, interval time.Duration, kind string, sweep func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn(ctx, "Sweep failed",
					logger.String("kind", kind),
					logger.String("error", err.Error()),
				)
			}
		}
	}
}

func (s *SweepScheduler) sweepBans(ctx context.Context) (int, error) {
	return s.traced(ctx, domainService.SweepKindBans, s.sweeper.SweepBans)
}

func (s *SweepScheduler) sweepIdentities(ctx context.Context) (int, error) {
	return s.traced(ctx, domainService.SweepKindIdentities, func(ctx context.Context) (int, error) {
		return s.sweeper.SweepStaleIdentityRecords(ctx, s.cfg.IdentityTTL)
	})
}

func (s *SweepScheduler) traced(ctx context.Context, kind string, fn func(context.Context) (int, error)) (int, error) {
	ctx, span := s.tracer.Start(ctx, "shield.sweep", trace.WithAttributes(attribute.String("shield.sweep_kind", kind)))
	defer span.End()

	removed, err := fn(ctx)
	span.SetAttributes(attribute.Int("shield.removed", removed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return removed, err
}
