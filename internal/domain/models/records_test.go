package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterRecord_RoundTripLayout(t *testing.T) {
	start := time.UnixMilli(1712345678901)
	raw, err := json.Marshal(CounterRecord{Count: 3, WindowStart: start})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3,"time":1712345678901}`, string(raw))

	rec, ok := DecodeCounterRecord(raw)
	require.True(t, ok)
	assert.Equal(t, int64(3), rec.Count)
	assert.True(t, rec.WindowStart.Equal(start))
}

func TestDecodeCounterRecord_Malformed(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", `{"count":2}`, `{"time":5}`, `{"count":0,"time":5}`, `{"count":"2","time":5}`, "[1,2]"} {
		_, ok := DecodeCounterRecord([]byte(raw))
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestDecodeCounterRecord_RejectsOutOfRange(t *testing.T) {
	for _, raw := range []string{
		`{"count":1e300,"time":5}`,
		`{"count":2,"time":1e300}`,
		`{"count":2,"time":-1e300}`,
		`{"count":9223372036854775808,"time":5}`,
	} {
		_, ok := DecodeCounterRecord([]byte(raw))
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestDecodeCounterRecord_AcceptsFloats(t *testing.T) {
	rec, ok := DecodeCounterRecord([]byte(`{"count":2.0,"time":1.7e12}`))
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.Count)
}

func TestCounterRecord_Expired(t *testing.T) {
	start := time.Unix(1000, 0)
	rec := NewCounterRecord(start)
	assert.False(t, rec.Expired(start.Add(2999*time.Millisecond), 3*time.Second))
	assert.True(t, rec.Expired(start.Add(3*time.Second), 3*time.Second))
}

func TestBanRecord(t *testing.T) {
	now := time.Unix(1000, 0)
	ban := BanRecord{BannedUntil: now.Add(2500 * time.Millisecond)}
	assert.True(t, ban.Active(now))
	assert.Equal(t, 3, ban.RetryAfterSeconds(now))
	assert.False(t, ban.Active(ban.BannedUntil))
	assert.Zero(t, ban.RetryAfterSeconds(now.Add(time.Hour)))

	decoded, ok := DecodeBanRecord(EncodeBanRecord(ban))
	require.True(t, ok)
	assert.True(t, decoded.BannedUntil.Equal(ban.BannedUntil))

	decoded, ok = DecodeBanRecord([]byte(`"1712345678901"`))
	require.True(t, ok)
	assert.Equal(t, int64(1712345678901), decoded.BannedUntil.UnixMilli())

	for _, raw := range []string{"", "null", `""`, "NaN", "Infinity", "soon", "1e300", "-1e300", `"9.3e18"`} {
		_, ok := DecodeBanRecord([]byte(raw))
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestLimitConfig(t *testing.T) {
	assert.NoError(t, LimitConfig{Max: 1, Window: time.Second}.Validate())
	assert.Error(t, LimitConfig{Max: 0, Window: time.Second}.Validate())
	assert.Error(t, LimitConfig{Max: 1}.Validate())
	assert.Error(t, LimitConfig{Max: 1, Window: time.Second, Ban: -time.Second}.Validate())
	assert.Equal(t, 2, LimitConfig{Ban: 1500 * time.Millisecond}.BanSeconds())

	max := 4
	merged := LimitOverride{Max: &max}.Apply(LimitConfig{Max: 12, Window: time.Minute, Ban: time.Hour})
	assert.Equal(t, LimitConfig{Max: 4, Window: time.Minute, Ban: time.Hour}, merged)
	assert.True(t, LimitOverride{}.IsZero())
}
