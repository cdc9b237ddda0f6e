package models

import "fmt"

// RuleKind tags the RouteRule variant.
type RuleKind int

const (
	// RuleLiteral matches the path exactly; failing that it still takes part in
	// legacy prefix matching, like plain-string route entries always did.
	RuleLiteral RuleKind = iota
	// RulePattern is a glob ("*" one segment, "**" any number of segments).
	RulePattern
	// RuleLegacyPrefix only ever matches as a "starts with" prefix.
	RuleLegacyPrefix
)

func (k RuleKind) String() string {
	switch k {
	case RuleLiteral:
		return "literal"
	case RulePattern:
		return "pattern"
	case RuleLegacyPrefix:
		return "prefix"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// RouteRule is one per-route override. The rule list is loaded once at startup
// and is read-only afterwards.
type RouteRule struct {
	Kind     RuleKind      `json:"kind"`
	Path     string        `json:"path"`
	Override LimitOverride `json:"override"`
}

// LiteralRule builds an exact-match rule.
func LiteralRule(path string, override LimitOverride) RouteRule {
	return RouteRule{Kind: RuleLiteral, Path: path, Override: override}
}

// PatternRule builds a wildcard rule.
func PatternRule(path string, override LimitOverride) RouteRule {
	return RouteRule{Kind: RulePattern, Path: path, Override: override}
}

// PrefixRule builds a prefix-only rule.
func PrefixRule(path string, override LimitOverride) RouteRule {
	return RouteRule{Kind: RuleLegacyPrefix, Path: path, Override: override}
}

// MatchKind reports how a path resolved.
type MatchKind string

const (
	MatchGlobal  MatchKind = "global"
	MatchExact   MatchKind = "exact"
	MatchPattern MatchKind = "pattern"
	MatchPrefix  MatchKind = "prefix"
)

// Resolution is the outcome of route resolution for one path.
// ScopeKey is empty for the global case, the literal path for exact matches and
// the rule path (not the concrete request path) for pattern and prefix matches,
// so every path covered by one rule shares a single counter.
type Resolution struct {
	Limit    LimitConfig `json:"limit"`
	ScopeKey string      `json:"scope_key"`
	Kind     MatchKind   `json:"kind"`
	Rule     *RouteRule  `json:"rule,omitempty"`
}
