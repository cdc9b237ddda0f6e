package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/errors"
	"github.com/turtacn/apishield/pkg/logger"
)

// WindowCounter makes the per (identity, scope) window decision.
//
// A missing, malformed or elapsed record restarts the window at count 1 and
// allows. Otherwise the count is incremented; exceeding limit.Max trips: the
// identity is banned for limit.Ban, the counter restarts at 1 and the
// tripping request is rejected with retryAfter = ban seconds.
type WindowCounter struct {
	store  Storage
	atomic AtomicCounterStore
	bans   *BanGuard
	clock  Clock
	audit  AuditSink

	metrics Metrics
	logger  logger.Logger
}

// NewWindowCounter creates a counter. When atomic is non-nil the
// load-compute-write step runs inside the backend; otherwise it is a plain
// get then set and concurrent requests may lose increments.
func NewWindowCounter(store Storage, atomic AtomicCounterStore, bans *BanGuard, clock Clock, audit AuditSink, metrics Metrics, log logger.Logger) *WindowCounter {
	return &WindowCounter{
		store:   store,
		atomic:  atomic,
		bans:    bans,
		clock:   clock,
		audit:   audit,
		metrics: metrics,
		logger:  log.WithComponent("window_counter"),
	}
}

// Admit counts one request. path is only used for the audit record.
//
// Without an atomic store each decision writes once: the next record when
// admitted, or the ban followed by the restarted window on a trip. A failed
// ban write leaves the stored counter untouched.
func (w *WindowCounter) Admit(ctx context.Context, identity, scopeKey string, limit models.LimitConfig, path string) (models.AdmissionResult, error) {
	key := CounterKey(identity, scopeKey)
	now := w.clock.Now()

	var (
		record models.CounterRecord
		err    error
	)
	if w.atomic != nil {
		record, err = w.incrementAtomic(ctx, key, limit, now)
	} else {
		record, err = w.next(ctx, key, limit, now)
	}
	if err != nil {
		return models.AdmissionResult{}, err
	}

	tripped := record.Count > int64(limit.Max)
	if !tripped {
		if w.atomic == nil {
			if err := w.put(ctx, key, record); err != nil {
				return models.AdmissionResult{}, err
			}
		}
		if record.Count > 1 {
			w.emit(ctx, identity, scopeKey, path, record, false, now)
		}
		return models.Allow(scopeKey, limit, record.Count), nil
	}

	// Ban first: if the reset below fails the identity is still held off.
	if _, err := w.bans.Ban(ctx, identity, limit.Ban); err != nil {
		return models.AdmissionResult{}, err
	}
	if err := w.put(ctx, key, models.NewCounterRecord(now)); err != nil {
		return models.AdmissionResult{}, err
	}
	w.emit(ctx, identity, scopeKey, path, record, true, now)
	w.logger.Warn(ctx, "Rate limit tripped",
		logger.String("identity", identity),
		logger.String("scope", scopeKey),
		logger.Int64("count", record.Count),
		logger.Int("max", limit.Max),
	)
	return models.Reject(constants.ReasonTripped, limit.BanSeconds(), scopeKey, limit), nil
}

// incrementAtomic returns the record as stored by the backend after this request.
func (w *WindowCounter) incrementAtomic(ctx context.Context, key string, limit models.LimitConfig, now time.Time) (models.CounterRecord, error) {
	record, err := w.atomic.IncrementWindow(ctx, key, now, limit.Window)
	if err != nil {
		w.metrics.RecordStorageError("counter_increment")
		return models.CounterRecord{}, errors.ErrStorageUnavailable("counter_increment", err)
	}
	return record, nil
}

// next computes the record this request would store, without writing it.
func (w *WindowCounter) next(ctx context.Context, key string, limit models.LimitConfig, now time.Time) (models.CounterRecord, error) {
	raw, found, err := w.store.Get(ctx, key)
	if err != nil {
		w.metrics.RecordStorageError("counter_get")
		return models.CounterRecord{}, errors.ErrStorageUnavailable("counter_get", err)
	}
	if found {
		if current, ok := models.DecodeCounterRecord(raw); ok && !current.Expired(now, limit.Window) {
			return models.CounterRecord{Count: current.Count + 1, WindowStart: current.WindowStart}, nil
		}
	}
	return models.NewCounterRecord(now), nil
}

func (w *WindowCounter) put(ctx context.Context, key string, record models.CounterRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.NewError(errors.CodeInternal, http.StatusInternalServerError, "Internal Error", "encode counter record").WithCause(err)
	}
	if err := w.store.Set(ctx, key, raw); err != nil {
		w.metrics.RecordStorageError("counter_set")
		return errors.ErrStorageUnavailable("counter_set", err)
	}
	return nil
}

// emit hands the attempt to the audit sink. Sink failures never affect the decision.
func (w *WindowCounter) emit(ctx context.Context, identity, scopeKey, path string, record models.CounterRecord, tripped bool, now time.Time) {
	if w.audit == nil {
		return
	}
	attempt := models.NewAttemptRecord(identity, record, path, now).
		WithScope(scopeKey).
		WithTripped(tripped)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attempt.WithTraceID(sc.TraceID().String())
	}
	if err := w.audit.Record(ctx, attempt); err != nil {
		w.logger.Warn(ctx, "Failed to record attempt",
			logger.String("identity", identity),
			logger.String("error", err.Error()),
		)
	}
}
