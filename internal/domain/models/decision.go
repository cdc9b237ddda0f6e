package models

import (
	"time"

	"github.com/turtacn/apishield/pkg/constants"
)

// AdmissionResult is the decision handed to the request layer.
// Count and Limit are for logs and metrics only; they must not be echoed to clients.
type AdmissionResult struct {
	Allowed           bool                      `json:"allowed"`
	RetryAfterSeconds int                       `json:"retry_after_seconds"`
	Reason            constants.AdmissionReason `json:"reason"`
	ScopeKey          string                    `json:"scope_key"`
	Limit             LimitConfig               `json:"limit"`
	Count             int64                     `json:"count"`
}

// Allow builds an admitted result.
func Allow(scopeKey string, limit LimitConfig, count int64) AdmissionResult {
	return AdmissionResult{
		Allowed:  true,
		Reason:   constants.ReasonAllowed,
		ScopeKey: scopeKey,
		Limit:    limit,
		Count:    count,
	}
}

// Reject builds a rejected result.
func Reject(reason constants.AdmissionReason, retryAfterSeconds int, scopeKey string, limit LimitConfig) AdmissionResult {
	return AdmissionResult{
		Allowed:           false,
		RetryAfterSeconds: retryAfterSeconds,
		Reason:            reason,
		ScopeKey:          scopeKey,
		Limit:             limit,
	}
}

// BanStatus is the read-only view BanGuard returns.
// Present && !Active means a stale record the caller should clear.
type BanStatus struct {
	Active            bool      `json:"active"`
	Present           bool      `json:"present"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	BannedUntil       time.Time `json:"banned_until,omitempty"`
}

// SweepReport summarises one cleanup run.
type SweepReport struct {
	BansRemoved       int           `json:"bans_removed"`
	IdentitiesRemoved int           `json:"identities_removed"`
	Duration          time.Duration `json:"duration"`
}
