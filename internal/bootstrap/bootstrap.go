// Package bootstrap assembles the shield from a loaded configuration. Both
// the server and the admin CLI start from here.
package bootstrap

import (
	"context"
	"errors"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	appService "github.com/turtacn/apishield/internal/application/service"
	"github.com/turtacn/apishield/internal/config"
	domainService "github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/internal/infrastructure/audit"
	"github.com/turtacn/apishield/internal/infrastructure/monitoring"
	"github.com/turtacn/apishield/internal/infrastructure/persistence"
	"github.com/turtacn/apishield/pkg/logger"
)

// App holds the assembled components.
type App struct {
	Config    *config.Config
	Logger    logger.Logger
	Storage   *persistence.Handle
	Registry  *prometheus.Registry
	Metrics   *monitoring.Metrics
	Tracing   *monitoring.TracingManager
	Admission *domainService.AdmissionService
	Shield    appService.ShieldAppService
	Scheduler *appService.SweepScheduler

	closers []io.Closer
}

// New opens storage and wires the services. Route rule warnings are logged;
// fatal configuration problems were already rejected by config.Validate.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	for _, issue := range cfg.RuleIssues() {
		log.Warn(ctx, "Route rule ignored", logger.Int("index", issue.Index), logger.String("path", issue.Path), logger.String("error", issue.Err.Error()))
	}

	app := &App{Config: cfg, Logger: log}

	tracing, err := monitoring.NewTracingManager(cfg.Tracing, log)
	if err != nil {
		return nil, err
	}
	app.Tracing = tracing

	store, err := persistence.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	app.Storage = store
	app.closers = append(app.closers, store)

	sink, sinkCloser, err := audit.Build(cfg.Shield.AttemptLog, cfg.Audit, store.DB, log)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	// Sinks close before the store they may write to.
	app.closers = append([]io.Closer{sinkCloser}, app.closers...)

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	app.Metrics = monitoring.NewMetrics(app.Registry)

	opts := []domainService.Option{
		domainService.WithLogger(log),
		domainService.WithTracer(tracing.Tracer()),
		domainService.WithStrictCounting(cfg.Shield.StrictCounting),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, domainService.WithMetrics(monitoring.NewMetricsAdapter(app.Metrics)))
	}
	if sink != nil {
		opts = append(opts, domainService.WithAuditSink(sink))
	}
	app.Admission = domainService.NewAdmissionService(store.Store, opts...)

	app.Shield = appService.NewShieldAppService(app.Admission, cfg.Shield.GlobalLimit(), cfg.Shield.Rules(), cfg.Shield.IPTTL, log)
	app.Scheduler = appService.NewSweepScheduler(app.Admission.Sweeper(), appService.ScheduleConfig{
		BanInterval:      cfg.Cleanup.BanInterval,
		IdentityInterval: cfg.Cleanup.IdentityInterval,
		IdentityTTL:      cfg.Shield.IPTTL,
		RunOnStart:       cfg.Cleanup.RunOnStart,
	}, tracing.Tracer(), log)

	return app, nil
}

// Close releases sinks, storage and the tracer provider.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Tracing != nil {
		if err := a.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
