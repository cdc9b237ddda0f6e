// Package service holds the admission-control core: route resolution, the ban guard,
// the sliding-window counter and the cleanup sweeper, together with the ports they consume.
package service

import (
	"context"
	"time"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
)

//go:generate mockery --name Storage --output mocks --outpkg mocks
// Storage is the key-value collaborator that durably owns counter and ban records.
// Implementations must be safe for concurrent use. No TTL is required: expiry is
// decided by the core from the timestamps inside the values.
// Storage 是持久保存计数器与封禁记录的键值存储协作者。
type Storage interface {
	// Get returns the raw value stored at key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// ListKeys returns every key starting with prefix (all keys when prefix is empty).
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// AtomicCounterStore is implemented by backends able to run the window
// load-compute-write cycle as one atomic step. IncrementWindow restarts the
// record at {1, now} when it is absent, malformed or at least window old, and
// otherwise increments count keeping windowStart. The stored record is returned.
type AtomicCounterStore interface {
	IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration) (models.CounterRecord, error)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

//go:generate mockery --name AuditSink --output mocks --outpkg mocks
// AuditSink receives in-window attempts. Threshold filtering and file or topic
// management are the sink's concern.
// AuditSink 接收窗口内的请求尝试记录。
type AuditSink interface {
	Record(ctx context.Context, attempt *models.AttemptRecord) error
}

// Metrics defines the interface for collecting admission metrics.
// This abstraction keeps the core independent of the monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集准入指标的接口。
type Metrics interface {
	// RecordAdmission records one decision and how long it took.
	RecordAdmission(reason constants.AdmissionReason, kind models.MatchKind, duration time.Duration)

	// RecordBan records a ban started by a trip.
	RecordBan(kind models.MatchKind)

	// RecordSweep records how many records one sweep removed.
	RecordSweep(kind string, removed int)

	// RecordStorageError records a failed storage operation.
	RecordStorageError(op string)
}

// Clock abstracts the wall clock so window and ban timing can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordAdmission(constants.AdmissionReason, models.MatchKind, time.Duration) {}
func (noopMetrics) RecordBan(models.MatchKind)                                                 {}
func (noopMetrics) RecordSweep(string, int)                                                    {}
func (noopMetrics) RecordStorageError(string)                                                  {}
