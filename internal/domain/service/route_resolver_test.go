package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
)

var globalLimit = limit(12, 108*time.Second, time.Hour)

func TestRouteResolver_NoRulesFallsBackToGlobal(t *testing.T) {
	r := service.NewRouteResolver(nil)

	res := r.Resolve("/api/anything", globalLimit, nil)
	assert.Equal(t, models.MatchGlobal, res.Kind)
	assert.Empty(t, res.ScopeKey)
	assert.Equal(t, globalLimit, res.Limit)
	assert.Nil(t, res.Rule)
}

func TestRouteResolver_ExactBeatsPattern(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.PatternRule("/api/admin/*", models.LimitOverride{Max: intPtr(3)}),
		models.LiteralRule("/api/admin/special", models.LimitOverride{Max: intPtr(1)}),
	}

	res := r.Resolve("/api/admin/special", globalLimit, rules)
	assert.Equal(t, models.MatchExact, res.Kind)
	assert.Equal(t, "/api/admin/special", res.ScopeKey)
	assert.Equal(t, 1, res.Limit.Max)
}

func TestRouteResolver_PrefixRuleEqualToPathIsExact(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.PrefixRule("/api/admin/special", models.LimitOverride{Max: intPtr(1)}),
		models.PatternRule("/api/admin/*", models.LimitOverride{Max: intPtr(5)}),
	}

	res := r.Resolve("/api/admin/special", globalLimit, rules)
	assert.Equal(t, models.MatchExact, res.Kind)
	assert.Equal(t, "/api/admin/special", res.ScopeKey)
	assert.Equal(t, 1, res.Limit.Max)

	res = r.Resolve("/api/admin/other", globalLimit, rules)
	assert.Equal(t, models.MatchPattern, res.Kind)
	assert.Equal(t, 5, res.Limit.Max)
}

func TestRouteResolver_FirstDeclaredExactWins(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.LiteralRule("/api/x", models.LimitOverride{Max: intPtr(1)}),
		models.LiteralRule("/api/x", models.LimitOverride{Max: intPtr(2)}),
	}

	assert.Equal(t, 1, r.Resolve("/api/x", globalLimit, rules).Limit.Max)
}

func TestRouteResolver_MostSpecificPatternWins(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.PatternRule("/api/users/**", models.LimitOverride{Max: intPtr(10)}),
		models.PatternRule("/api/users/*/profile", models.LimitOverride{Max: intPtr(2)}),
	}

	res := r.Resolve("/api/users/42/profile", globalLimit, rules)
	assert.Equal(t, models.MatchPattern, res.Kind)
	assert.Equal(t, "/api/users/*/profile", res.ScopeKey)
	assert.Equal(t, 2, res.Limit.Max)

	res = r.Resolve("/api/users/42/settings/email", globalLimit, rules)
	assert.Equal(t, "/api/users/**", res.ScopeKey)
	assert.Equal(t, 10, res.Limit.Max)
}

func TestRouteResolver_PatternTieGoesToFirstDeclared(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.PatternRule("/api/*/items", models.LimitOverride{Max: intPtr(4)}),
		models.PatternRule("/api/shop/*", models.LimitOverride{Max: intPtr(5)}),
	}

	res := r.Resolve("/api/shop/items", globalLimit, rules)
	assert.Equal(t, "/api/*/items", res.ScopeKey)
}

func TestRouteResolver_InvalidPatternIsIgnored(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.PatternRule("/**", models.LimitOverride{Max: intPtr(1)}),
	}

	res := r.Resolve("/api/anything", globalLimit, rules)
	assert.Equal(t, models.MatchGlobal, res.Kind)
}

func TestRouteResolver_LongestPrefixWins(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.PrefixRule("/api/", models.LimitOverride{Max: intPtr(50)}),
		models.LiteralRule("/api/reports", models.LimitOverride{Max: intPtr(5)}),
	}

	res := r.Resolve("/api/reports/2024", globalLimit, rules)
	assert.Equal(t, models.MatchPrefix, res.Kind)
	assert.Equal(t, "/api/reports", res.ScopeKey)
	assert.Equal(t, 5, res.Limit.Max)

	res = r.Resolve("/api/other", globalLimit, rules)
	assert.Equal(t, "/api/", res.ScopeKey)
	assert.Equal(t, 50, res.Limit.Max)
}

func TestRouteResolver_PatternBeatsPrefix(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.PrefixRule("/api/users", models.LimitOverride{Max: intPtr(50)}),
		models.PatternRule("/api/users/*", models.LimitOverride{Max: intPtr(3)}),
	}

	res := r.Resolve("/api/users/9", globalLimit, rules)
	assert.Equal(t, models.MatchPattern, res.Kind)
	assert.Equal(t, 3, res.Limit.Max)
}

func TestRouteResolver_MergesOverrideOntoGlobal(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.LiteralRule("/api/special", models.LimitOverride{
			Max:    intPtr(1),
			Window: durPtr(2 * time.Second),
		}),
	}

	res := r.Resolve("/api/special", globalLimit, rules)
	assert.Equal(t, 1, res.Limit.Max)
	assert.Equal(t, 2*time.Second, res.Limit.Window)
	assert.Equal(t, globalLimit.Ban, res.Limit.Ban, "unset fields inherit the global value")
}

func TestRouteResolver_ResolvedLimitIsAlwaysUsable(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.LiteralRule("/api/broken", models.LimitOverride{Max: intPtr(0), Window: durPtr(0)}),
	}

	res := r.Resolve("/api/broken", globalLimit, rules)
	require.NoError(t, res.Limit.Validate())
}

func TestRouteResolver_ValidateRules(t *testing.T) {
	r := service.NewRouteResolver(nil)
	rules := []models.RouteRule{
		models.LiteralRule("/api/ok", models.LimitOverride{Max: intPtr(2)}),
		models.LiteralRule("/api/bad", models.LimitOverride{Max: intPtr(0)}),
		models.PatternRule("/**", models.LimitOverride{}),
		models.LiteralRule("", models.LimitOverride{}),
	}

	issues := r.ValidateRules(globalLimit, rules)
	require.Len(t, issues, 3)
	assert.True(t, issues[0].Fatal)
	assert.Equal(t, 1, issues[0].Index)
	assert.False(t, issues[1].Fatal)
	assert.Equal(t, "/**", issues[1].Path)
	assert.False(t, issues[2].Fatal)

	issues = r.ValidateRules(limit(0, time.Second, 0), nil)
	require.Len(t, issues, 1)
	assert.True(t, issues[0].Fatal)
}
