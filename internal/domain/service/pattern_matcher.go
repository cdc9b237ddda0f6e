package service

import (
	"regexp"
	"strings"
	"sync"
)

// Pattern scoring used to rank competing wildcard rules.
const (
	exactSpecificity      = 100
	patternBaseScore      = 50
	singleWildcardPenalty = 5
	doubleWildcardPenalty = 10

	maxWildcards       = 4
	maxDoubleWildcards = 2
	minPatternSegments = 3
)

// dangerousPatterns would swallow whole API surfaces if accepted.
var dangerousPatterns = []string{"/**", "/*", "/**/*", "/api*"}

// PatternMatcher validates, matches and scores route wildcard patterns.
// "*" stands for one path segment (or, inside a segment, any run of non-"/"
// characters) and "**" for zero or more whole segments. Matching is anchored
// at both ends. Compiled expressions are cached per pattern.
type PatternMatcher struct {
	compiled sync.Map // map[string]*regexp.Regexp
}

// NewPatternMatcher creates a matcher with an empty cache.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Validate reports whether pattern is acceptable as a wildcard rule.
func (m *PatternMatcher) Validate(pattern string) bool {
	if !strings.HasPrefix(pattern, "/") {
		return false
	}
	if strings.Count(pattern, "*") > maxWildcards || strings.Count(pattern, "**") > maxDoubleWildcards {
		return false
	}
	for _, d := range dangerousPatterns {
		if strings.HasPrefix(pattern, d) {
			return false
		}
	}
	if strings.HasSuffix(pattern, "*/") || strings.Contains(pattern, "***") {
		return false
	}
	if strings.Contains(pattern, "**/*/**") || strings.Contains(pattern, "*/**/*") {
		return false
	}
	return len(strings.Split(pattern, "/")) >= minPatternSegments
}

// Matches reports whether path matches pattern. A pattern without "*" matches
// by equality only.
func (m *PatternMatcher) Matches(pattern, path string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == path
	}
	return m.compile(pattern).MatchString(path)
}

// Specificity scores a pattern: 100 for an exact path, otherwise
// 50 - 5 per "*" character - 10 per "**" pair. Higher wins.
func (m *PatternMatcher) Specificity(pattern string) int {
	if !strings.Contains(pattern, "*") {
		return exactSpecificity
	}
	return patternBaseScore -
		singleWildcardPenalty*strings.Count(pattern, "*") -
		doubleWildcardPenalty*strings.Count(pattern, "**")
}

func (m *PatternMatcher) compile(pattern string) *regexp.Regexp {
	if re, ok := m.compiled.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(patternToRegexp(pattern))
	actual, _ := m.compiled.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp)
}

// patternToRegexp translates a pattern segment by segment. A "**" segment
// absorbs its own leading slash so that it can match zero segments.
func patternToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i, seg := range strings.Split(pattern, "/") {
		switch {
		case seg == "**" && i == 0:
			b.WriteString(`(?:[^/]+(?:/[^/]+)*)?`)
		case seg == "**":
			b.WriteString(`(?:/[^/]+)*`)
		default:
			if i > 0 {
				b.WriteString("/")
			}
			b.WriteString(segmentToRegexp(seg))
		}
	}
	b.WriteString("$")
	return b.String()
}

func segmentToRegexp(seg string) string {
	if seg == "*" {
		return `[^/]+`
	}
	parts := strings.Split(seg, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `[^/]*`)
}
