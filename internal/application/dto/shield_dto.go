package dto

import (
	"time"

	"github.com/turtacn/apishield/internal/domain/models"
)

// BanStatusResponse is the admin view of one identity's ban.
type BanStatusResponse struct {
	Identity          string     `json:"identity"`
	Banned            bool       `json:"banned"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	BannedUntil       *time.Time `json:"banned_until,omitempty"`
}

// NewBanStatusResponse converts a BanStatus. Stale records report banned=false.
func NewBanStatusResponse(identity string, status models.BanStatus) *BanStatusResponse {
	resp := &BanStatusResponse{Identity: identity, Banned: status.Active}
	if status.Active {
		until := status.BannedUntil
		resp.RetryAfterSeconds = status.RetryAfterSeconds
		resp.BannedUntil = &until
	}
	return resp
}

// BanRequest is the body of an operator ban.
type BanRequest struct {
	DurationSeconds float64 `json:"duration_seconds" binding:"gte=0"`
}

// ResolveResponse explains which limit applies to a path.
type ResolveResponse struct {
	Path          string  `json:"path"`
	MatchKind     string  `json:"match_kind"`
	ScopeKey      string  `json:"scope_key"`
	RulePath      string  `json:"rule_path,omitempty"`
	Max           int     `json:"max"`
	WindowSeconds float64 `json:"window_seconds"`
	BanSeconds    float64 `json:"ban_seconds"`
}

// NewResolveResponse converts a Resolution.
func NewResolveResponse(path string, res models.Resolution) *ResolveResponse {
	resp := &ResolveResponse{
		Path:          path,
		MatchKind:     string(res.Kind),
		ScopeKey:      res.ScopeKey,
		Max:           res.Limit.Max,
		WindowSeconds: res.Limit.Window.Seconds(),
		BanSeconds:    res.Limit.Ban.Seconds(),
	}
	if res.Rule != nil {
		resp.RulePath = res.Rule.Path
	}
	return resp
}

// SweepResponse reports the outcome of a cleanup run.
type SweepResponse struct {
	BansRemoved       int   `json:"bans_removed"`
	IdentitiesRemoved int   `json:"identities_removed"`
	DurationMs        int64 `json:"duration_ms"`
}

func NewSweepResponse(r models.SweepReport) *SweepResponse {
	return &SweepResponse{
		BansRemoved:       r.BansRemoved,
		IdentitiesRemoved: r.IdentitiesRemoved,
		DurationMs:        r.Duration.Milliseconds(),
	}
}
