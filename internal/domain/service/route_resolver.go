package service

import (
	"fmt"
	"strings"

	"github.com/turtacn/apishield/internal/domain/models"
)

// RouteResolver picks the effective limit and counter scope for a request path.
//
// Precedence:
//  1. exact: the first literal rule whose path equals the request path
//  2. pattern: the valid wildcard rule with the highest specificity, ties to the first declared
//  3. prefix: the literal or legacy prefix rule with the longest matching prefix, ties to the first declared
//  4. global
type RouteResolver struct {
	matcher *PatternMatcher
}

// NewRouteResolver creates a resolver. A nil matcher gets a fresh one.
func NewRouteResolver(matcher *PatternMatcher) *RouteResolver {
	if matcher == nil {
		matcher = NewPatternMatcher()
	}
	return &RouteResolver{matcher: matcher}
}

// Matcher exposes the pattern matcher used by the resolver.
func (r *RouteResolver) Matcher() *PatternMatcher {
	return r.matcher
}

// Resolve is a pure function of its inputs.
func (r *RouteResolver) Resolve(path string, global models.LimitConfig, rules []models.RouteRule) models.Resolution {
	if i := r.exact(path, rules); i >= 0 {
		return r.build(global, &rules[i], path, models.MatchExact)
	}
	if i := r.pattern(path, rules); i >= 0 {
		return r.build(global, &rules[i], rules[i].Path, models.MatchPattern)
	}
	if i := r.prefix(path, rules); i >= 0 {
		return r.build(global, &rules[i], rules[i].Path, models.MatchPrefix)
	}
	return models.Resolution{Limit: global, Kind: models.MatchGlobal}
}

// exact matches any non-pattern rule, legacy prefixes included, by equality.
func (r *RouteResolver) exact(path string, rules []models.RouteRule) int {
	for i := range rules {
		if rules[i].Kind != models.RulePattern && rules[i].Path == path {
			return i
		}
	}
	return -1
}

func (r *RouteResolver) pattern(path string, rules []models.RouteRule) int {
	best, bestScore := -1, 0
	for i := range rules {
		rule := &rules[i]
		if rule.Kind != models.RulePattern || !r.matcher.Validate(rule.Path) {
			continue
		}
		if !r.matcher.Matches(rule.Path, path) {
			continue
		}
		if score := r.matcher.Specificity(rule.Path); best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (r *RouteResolver) prefix(path string, rules []models.RouteRule) int {
	best := -1
	for i := range rules {
		rule := &rules[i]
		if rule.Kind == models.RulePattern || rule.Path == "" {
			continue
		}
		if !strings.HasPrefix(path, rule.Path) {
			continue
		}
		if best < 0 || len(rule.Path) > len(rules[best].Path) {
			best = i
		}
	}
	return best
}

func (r *RouteResolver) build(global models.LimitConfig, rule *models.RouteRule, scopeKey string, kind models.MatchKind) models.Resolution {
	limit := rule.Override.Apply(global)
	// Rules are validated at load time; keep the invariant even if one slips through.
	if limit.Max < 1 {
		limit.Max = global.Max
	}
	if limit.Window <= 0 {
		limit.Window = global.Window
	}
	if limit.Ban < 0 {
		limit.Ban = 0
	}
	return models.Resolution{Limit: limit, ScopeKey: scopeKey, Kind: kind, Rule: rule}
}

// RuleIssue describes one problem found by ValidateRules.
type RuleIssue struct {
	Index int
	Path  string
	Err   error
	// Fatal issues must stop configuration loading; the rest are warnings.
	Fatal bool
}

func (i RuleIssue) Error() string {
	return fmt.Sprintf("route rule #%d %q: %v", i.Index, i.Path, i.Err)
}

// ValidateRules checks the global limit and every rule's merged limit.
// Invalid limits are fatal. Invalid wildcard patterns and empty paths are
// reported as warnings; such rules never match.
func (r *RouteResolver) ValidateRules(global models.LimitConfig, rules []models.RouteRule) []RuleIssue {
	var issues []RuleIssue
	if err := global.Validate(); err != nil {
		issues = append(issues, RuleIssue{Index: -1, Path: "global", Err: err, Fatal: true})
	}
	for i, rule := range rules {
		if rule.Path == "" {
			issues = append(issues, RuleIssue{Index: i, Err: fmt.Errorf("empty path"), Fatal: false})
			continue
		}
		if err := rule.Override.Apply(global).Validate(); err != nil {
			issues = append(issues, RuleIssue{Index: i, Path: rule.Path, Err: err, Fatal: true})
		}
		if rule.Kind == models.RulePattern && !r.matcher.Validate(rule.Path) {
			issues = append(issues, RuleIssue{Index: i, Path: rule.Path, Err: fmt.Errorf("invalid or unsafe pattern, rule ignored")})
		}
	}
	return issues
}
