package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	AdmissionRequests *prometheus.CounterVec
	AdmissionLatency  *prometheus.HistogramVec
	BansIssued        *prometheus.CounterVec
	SweepRemoved      *prometheus.CounterVec
	StorageErrors     *prometheus.CounterVec

	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
	HTTPActiveRequests *prometheus.GaugeVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	ns := constants.ServiceName

	return &Metrics{
		AdmissionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "admission_requests_total",
				Help:      "Total number of admission decisions.",
			},
			[]string{"reason", "match_kind"},
		),
		AdmissionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "admission_latency_seconds",
				Help:      "Latency of admission decisions, storage round trips included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"match_kind"},
		),
		BansIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "bans_issued_total",
				Help:      "Total number of bans written when a limit tripped.",
			},
			[]string{"match_kind"},
		),
		SweepRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "sweep_removed_total",
				Help:      "Total number of records removed by cleanup sweeps.",
			},
			[]string{"kind"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "storage_errors_total",
				Help:      "Total number of failed storage operations.",
			},
			[]string{"op"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "http_active_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
			[]string{"method", "path"},
		),
	}
}

// RecordAdmission records one admission decision.
func (m *Metrics) RecordAdmission(reason constants.AdmissionReason, kind models.MatchKind, duration time.Duration) {
	m.AdmissionRequests.WithLabelValues(string(reason), string(kind)).Inc()
	m.AdmissionLatency.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RecordBan records a ban written on trip.
func (m *Metrics) RecordBan(kind models.MatchKind) {
	m.BansIssued.WithLabelValues(string(kind)).Inc()
}

// RecordSweep adds removed records of one sweep kind.
func (m *Metrics) RecordSweep(kind string, removed int) {
	m.SweepRemoved.WithLabelValues(kind).Add(float64(removed))
}

// RecordStorageError counts a failed storage operation.
func (m *Metrics) RecordStorageError(op string) {
	m.StorageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ActiveRequestsInc(path, method string) {
	m.HTTPActiveRequests.WithLabelValues(method, path).Inc()
}

func (m *Metrics) ActiveRequestsDec(path, method string) {
	m.HTTPActiveRequests.WithLabelValues(method, path).Dec()
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(path, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}
