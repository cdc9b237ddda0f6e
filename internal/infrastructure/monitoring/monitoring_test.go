package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/logger"
)

func TestMetricsAdapter_RecordsThroughCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	a := NewMetricsAdapter(m)

	a.RecordAdmission(constants.ReasonAllowed, models.MatchExact, 2*time.Millisecond)
	a.RecordAdmission(constants.ReasonAllowed, models.MatchExact, 3*time.Millisecond)
	a.RecordAdmission(constants.ReasonTripped, models.MatchPattern, time.Millisecond)
	a.RecordBan(models.MatchPattern)
	a.RecordSweep("bans", 3)
	a.RecordSweep("bans", 0)
	a.RecordStorageError("ban_get")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdmissionRequests.WithLabelValues("allowed", "exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionRequests.WithLabelValues("tripped", "pattern")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BansIssued.WithLabelValues("pattern")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepRemoved.WithLabelValues("bans")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrors.WithLabelValues("ban_get")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.AdmissionLatency))
}

func TestMetrics_HTTP(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ActiveRequestsInc("/api/x", "GET")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPActiveRequests.WithLabelValues("GET", "/api/x")))
	m.ActiveRequestsDec("/api/x", "GET")
	m.ObserveRequest("/api/x", "GET", 429, time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPActiveRequests.WithLabelValues("GET", "/api/x")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/x", "429")))
}

func TestZapLogger_CorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	log := newZapLogger(config.LogConfig{Level: "debug"}, zapcore.AddSync(&buf))

	exporter := tracetest.NewInMemoryExporter()
	tm := NewTracingManagerWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), "test", logger.NewNoopLogger())
	ctx, span := tm.StartSpan(context.Background(), "op")
	ctx = context.WithValue(ctx, constants.ContextKeyRequestID, "req-1")

	log.WithComponent("unit").Warn(ctx, "hello", logger.String("identity", "1.2.3.4"))
	span.End()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "unit", entry["component"])
	assert.Equal(t, "1.2.3.4", entry["identity"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
}

func TestZapLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := newZapLogger(config.LogConfig{Level: "warn"}, zapcore.AddSync(&buf))

	log.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	log.Error(context.Background(), "kept", errors.New("boom"))
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestTraceOperation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tm := NewTracingManagerWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), "test", logger.NewNoopLogger())

	err := TraceOperation(context.Background(), tm, "sweep", func(ctx context.Context) error {
		assert.NotEmpty(t, tm.GetTraceID(ctx))
		return errors.New("failed")
	}, map[string]interface{}{"kind": "bans"})
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sweep", spans[0].Name)
	assert.Len(t, spans[0].Events, 1)
	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestNewTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(config.TracingConfig{}, logger.NewNoopLogger())
	require.NoError(t, err)
	assert.NotNil(t, tm.Tracer())
	assert.Empty(t, tm.GetTraceID(context.Background()))
	assert.NoError(t, tm.Shutdown(context.Background()))
}
