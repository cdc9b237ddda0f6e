package models

import (
	"time"

	"github.com/google/uuid"
)

// AttemptRecord is one observation of an in-window request, handed to the
// audit collaborator. Whether it gets written depends on the collaborator's
// attempt threshold.
type AttemptRecord struct {
	EventID     uuid.UUID `json:"event_id"`
	Identity    string    `json:"identity"`
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"window_start"`
	Path        string    `json:"path"`
	ScopeKey    string    `json:"scope_key,omitempty"`
	Tripped     bool      `json:"tripped"`
	RecordedAt  time.Time `json:"recorded_at"`
	TraceID     string    `json:"trace_id,omitempty"`
	Signature   string    `json:"signature,omitempty"`
}

// NewAttemptRecord creates a new attempt record.
func NewAttemptRecord(identity string, counter CounterRecord, path string, now time.Time) *AttemptRecord {
	return &AttemptRecord{
		EventID:     uuid.New(),
		Identity:    identity,
		Count:       counter.Count,
		WindowStart: counter.WindowStart.UTC(),
		Path:        path,
		RecordedAt:  now.UTC(),
	}
}

// WithScope sets the scope key the counter belongs to.
func (a *AttemptRecord) WithScope(scopeKey string) *AttemptRecord {
	a.ScopeKey = scopeKey
	return a
}

// WithTripped marks the attempt as the one that started a ban.
func (a *AttemptRecord) WithTripped(tripped bool) *AttemptRecord {
	a.Tripped = tripped
	return a
}

// WithTraceID sets the trace id of the request that produced the attempt.
func (a *AttemptRecord) WithTraceID(traceID string) *AttemptRecord {
	a.TraceID = traceID
	return a
}
