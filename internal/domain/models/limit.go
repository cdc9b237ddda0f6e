package models

import (
	"fmt"
	"math"
	"time"
)

// LimitConfig is the effective quota applied to one admission decision.
// Max requests are allowed per Window; exceeding it bans the identity for Ban.
// Ban == 0 is legal and means "reset only": the ban record written on trip is
// already expired by the next check.
type LimitConfig struct {
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
	Ban    time.Duration `json:"ban"`
}

// Validate enforces max >= 1, window > 0 and ban >= 0.
func (l LimitConfig) Validate() error {
	if l.Max < 1 {
		return fmt.Errorf("limit max must be >= 1, got %d", l.Max)
	}
	if l.Window <= 0 {
		return fmt.Errorf("limit window must be > 0, got %s", l.Window)
	}
	if l.Ban < 0 {
		return fmt.Errorf("limit ban must be >= 0, got %s", l.Ban)
	}
	return nil
}

// BanSeconds returns the ban duration rounded up to whole seconds.
func (l LimitConfig) BanSeconds() int {
	return int(math.Ceil(l.Ban.Seconds()))
}

// LimitOverride holds the fields a route rule defines. Nil fields inherit the global value.
type LimitOverride struct {
	Max    *int           `json:"max,omitempty"`
	Window *time.Duration `json:"window,omitempty"`
	Ban    *time.Duration `json:"ban,omitempty"`
}

// IsZero reports whether no field is overridden.
func (o LimitOverride) IsZero() bool {
	return o.Max == nil && o.Window == nil && o.Ban == nil
}

// Apply merges the override onto base.
func (o LimitOverride) Apply(base LimitConfig) LimitConfig {
	merged := base
	if o.Max != nil {
		merged.Max = *o.Max
	}
	if o.Window != nil {
		merged.Window = *o.Window
	}
	if o.Ban != nil {
		merged.Ban = *o.Ban
	}
	return merged
}

// SecondsToDuration converts a (possibly fractional) number of seconds.
func SecondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
