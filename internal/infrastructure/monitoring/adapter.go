// Package monitoring provides the zap logger, Prometheus metrics and
// OpenTelemetry tracing used by the shield.
package monitoring

import (
	"time"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/constants"
)

// MetricsAdapter implements the domain's service.Metrics interface on top of
// the Prometheus collectors.
// MetricsAdapter 基于 Prometheus 指标实现领域层的 service.Metrics 接口。
type MetricsAdapter struct {
	metrics *Metrics
}

// NewMetricsAdapter wraps metrics so the domain layer can record through it.
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

func (a *MetricsAdapter) RecordAdmission(reason constants.AdmissionReason, kind models.MatchKind, duration time.Duration) {
	a.metrics.RecordAdmission(reason, kind, duration)
}

func (a *MetricsAdapter) RecordBan(kind models.MatchKind) {
	a.metrics.RecordBan(kind)
}

func (a *MetricsAdapter) RecordSweep(kind string, removed int) {
	a.metrics.RecordSweep(kind, removed)
}

func (a *MetricsAdapter) RecordStorageError(op string) {
	a.metrics.RecordStorageError(op)
}
