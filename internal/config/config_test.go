package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shield.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\n"), logger.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, models.LimitConfig{Max: 12, Window: 108 * time.Second, Ban: time.Hour}, cfg.Shield.GlobalLimit())
	assert.Equal(t, "/api/", cfg.Shield.PathPrefix)
	assert.Equal(t, "Too Many Requests", cfg.Shield.ErrorMessage)
	assert.True(t, cfg.Shield.DelayOnBan)
	assert.Equal(t, time.Second, cfg.Shield.BanDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.Shield.IPTTL)
	assert.Equal(t, constants.StorageDriverMemory, cfg.Storage.Driver)
	assert.False(t, cfg.Shield.AttemptLogEnabled())
	assert.Empty(t, cfg.Shield.Rules())
}

func TestLoad_MixedRoutes(t *testing.T) {
	body := `
shield:
  limit:
    max: 10
    duration: 60
    ban: 600
  routes:
    - /api/login
    - path: /api/users/*/profile
      pattern: true
      max: 3
      duration: 30
    - path: /api/files
      prefix: true
      ban: 0
`
	cfg, err := LoadConfig(writeConfig(t, body), logger.NewNoopLogger())
	require.NoError(t, err)

	rules := cfg.Shield.Rules()
	require.Len(t, rules, 3)

	assert.Equal(t, models.RuleLiteral, rules[0].Kind)
	assert.Equal(t, "/api/login", rules[0].Path)
	assert.True(t, rules[0].Override.IsZero())

	assert.Equal(t, models.RulePattern, rules[1].Kind)
	require.NotNil(t, rules[1].Override.Max)
	assert.Equal(t, 3, *rules[1].Override.Max)
	require.NotNil(t, rules[1].Override.Window)
	assert.Equal(t, 30*time.Second, *rules[1].Override.Window)
	assert.Nil(t, rules[1].Override.Ban)

	assert.Equal(t, models.RuleLegacyPrefix, rules[2].Kind)
	require.NotNil(t, rules[2].Override.Ban)
	assert.Equal(t, time.Duration(0), *rules[2].Override.Ban)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APISHIELD_SHIELD_LIMIT_MAX", "5")
	t.Setenv("APISHIELD_STORAGE_DRIVER", "redis")

	cfg, err := LoadConfig(writeConfig(t, "log:\n  level: debug\n"), logger.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Shield.Limit.Max)
	assert.Equal(t, constants.StorageDriverRedis, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero max", "shield:\n  limit:\n    max: 0\n"},
		{"negative ban", "shield:\n  limit:\n    ban: -1\n"},
		{"pattern and prefix", "shield:\n  routes:\n    - path: /api/a/b\n      pattern: true\n      prefix: true\n"},
		{"bad prefix", "shield:\n  path_prefix: api\n"},
		{"sql without dsn", "storage:\n  driver: sqlite\n"},
		{"unknown driver", "storage:\n  driver: mongo\n"},
		{"kafka without brokers", "audit:\n  kafka:\n    enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body), logger.NewNoopLogger())
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), logger.NewNoopLogger())
	assert.Error(t, err)
}

func TestRuleIssues_InvalidPatternIsWarning(t *testing.T) {
	body := `
shield:
  routes:
    - path: /**
      pattern: true
    - path: /api/ok/route
`
	cfg, err := LoadConfig(writeConfig(t, body), logger.NewNoopLogger())
	require.NoError(t, err)

	issues := cfg.RuleIssues()
	require.Len(t, issues, 1)
	assert.Equal(t, 0, issues[0].Index)
	assert.False(t, issues[0].Fatal)
}

func TestRuleIssues_BadOverrideIsFatal(t *testing.T) {
	body := `
shield:
  routes:
    - path: /api/login
      duration: -5
`
	_, err := LoadConfig(writeConfig(t, body), logger.NewNoopLogger())
	assert.Error(t, err)
}
