package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/logger"
)

// ================================================================================
// Admission Service
// ================================================================================

// AdmissionService wires route resolution, the ban guard and the window
// counter into a single decision per request.
// AdmissionService 将路由解析、封禁检查与窗口计数组合为单次准入决策。
type AdmissionService struct {
	resolver *RouteResolver
	bans     *BanGuard
	counter  *WindowCounter
	sweeper  *CleanupSweeper

	clock   Clock
	metrics Metrics
	tracer  trace.Tracer
	logger  logger.Logger
}

type admissionOptions struct {
	clock   Clock
	metrics Metrics
	audit   AuditSink
	tracer  trace.Tracer
	logger  logger.Logger
	matcher *PatternMatcher
	strict  bool
}

// Option configures an AdmissionService.
type Option func(*admissionOptions)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option { return func(o *admissionOptions) { o.clock = c } }

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option { return func(o *admissionOptions) { o.metrics = m } }

// WithAuditSink sets the collaborator receiving in-window attempts.
func WithAuditSink(a AuditSink) Option { return func(o *admissionOptions) { o.audit = a } }

// WithTracer sets the tracer used for admission spans.
func WithTracer(t trace.Tracer) Option { return func(o *admissionOptions) { o.tracer = t } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(o *admissionOptions) { o.logger = l } }

// WithPatternMatcher shares a matcher (and its compiled pattern cache).
func WithPatternMatcher(m *PatternMatcher) Option { return func(o *admissionOptions) { o.matcher = m } }

// WithStrictCounting makes counting atomic when the store supports it.
func WithStrictCounting(strict bool) Option { return func(o *admissionOptions) { o.strict = strict } }

// NewAdmissionService creates the service over store.
//
// Parameters:
//   - store: durable owner of counter and ban records
//   - opts: optional collaborators; unset ones default to no-ops and the system clock
//
// Returns:
//   - *AdmissionService: ready to use
func NewAdmissionService(store Storage, opts ...Option) *AdmissionService {
	o := admissionOptions{
		clock:   SystemClock{},
		metrics: NewNoopMetrics(),
		tracer:  otel.Tracer(constants.ServiceName),
		logger:  logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var atomic AtomicCounterStore
	if o.strict {
		if a, ok := store.(AtomicCounterStore); ok {
			atomic = a
		} else {
			o.logger.Warn(context.Background(), "Strict counting requested but storage has no atomic increment; using get/set")
		}
	}

	bans := NewBanGuard(store, o.clock, o.metrics, o.logger)
	return &AdmissionService{
		resolver: NewRouteResolver(o.matcher),
		bans:     bans,
		counter:  NewWindowCounter(store, atomic, bans, o.clock, o.audit, o.metrics, o.logger),
		sweeper:  NewCleanupSweeper(store, o.clock, o.metrics, o.logger),
		clock:    o.clock,
		metrics:  o.metrics,
		tracer:   o.tracer,
		logger:   o.logger.WithComponent("admission_service"),
	}
}

// Admit decides whether identity may proceed with a request to path.
//
// Flow: resolve the effective limit, short-circuit on an active ban, clear a
// stale ban, then count the request in its scope.
func (s *AdmissionService) Admit(ctx context.Context, identity, path string, global models.LimitConfig, rules []models.RouteRule) (models.AdmissionResult, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, "shield.admit", trace.WithAttributes(
		attribute.String("shield.path", path),
	))
	defer span.End()

	res := s.resolver.Resolve(path, global, rules)
	span.SetAttributes(
		attribute.String("shield.match_kind", string(res.Kind)),
		attribute.String("shield.scope", res.ScopeKey),
	)

	result, err := s.admit(ctx, identity, path, res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "Admission failed", err,
			logger.String("identity", identity),
			logger.String("path", path),
		)
		return models.AdmissionResult{}, err
	}

	span.SetAttributes(
		attribute.Bool("shield.allowed", result.Allowed),
		attribute.String("shield.reason", string(result.Reason)),
	)
	s.metrics.RecordAdmission(result.Reason, res.Kind, s.clock.Now().Sub(start))
	if result.Reason == constants.ReasonTripped {
		s.metrics.RecordBan(res.Kind)
	}
	return result, nil
}

func (s *AdmissionService) admit(ctx context.Context, identity, path string, res models.Resolution) (models.AdmissionResult, error) {
	status, err := s.bans.Check(ctx, identity)
	if err != nil {
		return models.AdmissionResult{}, err
	}
	if status.Active {
		s.logger.Debug(ctx, "Request rejected by active ban",
			logger.String("identity", identity),
			logger.Int("retry_after", status.RetryAfterSeconds),
		)
		return models.Reject(constants.ReasonBanned, status.RetryAfterSeconds, res.ScopeKey, res.Limit), nil
	}
	if status.Present {
		if _, err := s.bans.ClearIfExpired(ctx, identity); err != nil {
			return models.AdmissionResult{}, err
		}
	}
	return s.counter.Admit(ctx, identity, res.ScopeKey, res.Limit, path)
}

// Resolve exposes route resolution for diagnostics.
func (s *AdmissionService) Resolve(path string, global models.LimitConfig, rules []models.RouteRule) models.Resolution {
	return s.resolver.Resolve(path, global, rules)
}

// Resolver returns the route resolver.
func (s *AdmissionService) Resolver() *RouteResolver { return s.resolver }

// BanStatus reports the ban state of identity.
func (s *AdmissionService) BanStatus(ctx context.Context, identity string) (models.BanStatus, error) {
	return s.bans.Check(ctx, identity)
}

// Ban bans identity for duration, as an operator action.
func (s *AdmissionService) Ban(ctx context.Context, identity string, duration time.Duration) (models.BanRecord, error) {
	return s.bans.Ban(ctx, identity, duration)
}

// LiftBan removes the ban of identity.
func (s *AdmissionService) LiftBan(ctx context.Context, identity string) error {
	return s.bans.Lift(ctx, identity)
}

// Sweeper returns the cleanup sweeper sharing this service's storage and clock.
func (s *AdmissionService) Sweeper() *CleanupSweeper { return s.sweeper }
