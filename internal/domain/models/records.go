package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// CounterRecord is the per (identity, scope) window state.
type CounterRecord struct {
	Count       int64
	WindowStart time.Time
}

// counterWire is the persisted layout: {"count":3,"time":1712345678901}.
// Floats are accepted on read because script engines may emit them.
type counterWire struct {
	Count *float64 `json:"count"`
	Time  *float64 `json:"time"`
}

// NewCounterRecord starts a fresh window at now.
func NewCounterRecord(now time.Time) CounterRecord {
	return CounterRecord{Count: 1, WindowStart: now}
}

// Expired reports whether the window starting at WindowStart has elapsed at now.
func (r CounterRecord) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(r.WindowStart) >= window
}

// MarshalJSON encodes the record in its persisted layout.
func (r CounterRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Count int64 `json:"count"`
		Time  int64 `json:"time"`
	}{Count: r.Count, Time: r.WindowStart.UnixMilli()})
}

// DecodeCounterRecord parses a stored counter. Any malformed value (missing
// fields, wrong types, count < 1, numbers beyond int64) reports ok=false and
// is treated as absent.
func DecodeCounterRecord(raw []byte) (CounterRecord, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return CounterRecord{}, false
	}
	var w counterWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return CounterRecord{}, false
	}
	if w.Count == nil || w.Time == nil {
		return CounterRecord{}, false
	}
	count, ok := truncInt64(*w.Count)
	if !ok || count < 1 {
		return CounterRecord{}, false
	}
	start, ok := truncInt64(*w.Time)
	if !ok {
		return CounterRecord{}, false
	}
	return CounterRecord{Count: count, WindowStart: time.UnixMilli(start)}, true
}

// truncInt64 truncates f to an int64. NaN, infinities and values outside
// the int64 range are rejected; float64(math.MaxInt64) rounds up to 2^63.
func truncInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// BanRecord marks when an identity may be admitted again.
type BanRecord struct {
	BannedUntil time.Time
}

// Active reports whether the ban still holds at now.
func (b BanRecord) Active(now time.Time) bool {
	return now.Before(b.BannedUntil)
}

// RetryAfterSeconds is ceil((bannedUntil - now) / 1s), never negative.
func (b BanRecord) RetryAfterSeconds(now time.Time) int {
	remaining := b.BannedUntil.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}

// EncodeBanRecord persists the ban as a bare millisecond timestamp.
func EncodeBanRecord(b BanRecord) []byte {
	return []byte(strconv.FormatInt(b.BannedUntil.UnixMilli(), 10))
}

// DecodeBanRecord accepts a bare number or a quoted numeric string. Null,
// empty, non-numeric, NaN, infinite and out-of-range values report ok=false.
func DecodeBanRecord(raw []byte) (BanRecord, bool) {
	s := string(bytes.TrimSpace(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return BanRecord{}, false
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return BanRecord{}, false
	}
	until, ok := truncInt64(ms)
	if !ok {
		return BanRecord{}, false
	}
	return BanRecord{BannedUntil: time.UnixMilli(until)}, true
}
