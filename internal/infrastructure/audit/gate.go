package audit

import (
	"context"
	"errors"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
)

// ThresholdSink forwards attempts whose count reached attempts. A
// non-positive threshold forwards nothing.
type ThresholdSink struct {
	next     service.AuditSink
	attempts int64
}

// NewThresholdSink gates next behind the attempt threshold.
func NewThresholdSink(next service.AuditSink, attempts int) *ThresholdSink {
	return &ThresholdSink{next: next, attempts: int64(attempts)}
}

func (s *ThresholdSink) Record(ctx context.Context, a *models.AttemptRecord) error {
	if s.attempts <= 0 || a.Count < s.attempts {
		return nil
	}
	return s.next.Record(ctx, a)
}

// MultiSink hands every attempt to all sinks, even when one fails.
type MultiSink []service.AuditSink

func (m MultiSink) Record(ctx context.Context, a *models.AttemptRecord) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
