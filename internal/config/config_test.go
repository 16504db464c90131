package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Policy.MaxRetryRounds)
	assert.Equal(t, "interactive", cfg.Approval.Mode)
	assert.Equal(t, "heuristic", cfg.Planner.Mode)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, 24, cfg.Archive.Redis.TTLHours)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prospector.yaml")
	content := `
logging:
  level: debug
policy:
  max_retry_rounds: 4
approval:
  mode: policy
  policy_path: /etc/prospector/policies
connectors:
  latency_min_ms: 10
  latency_max_ms: 20
  rate_limits:
    orbis:
      rps: 3
      burst: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Policy.MaxRetryRounds)
	assert.Equal(t, "policy", cfg.Approval.Mode)
	assert.Equal(t, "/etc/prospector/policies", cfg.Approval.PolicyPath)
	require.Contains(t, cfg.Connectors.RateLimits, "orbis")
	assert.Equal(t, 3.0, cfg.Connectors.RateLimits["orbis"].RPS)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative retry rounds", "policy:\n  max_retry_rounds: -1\n"},
		{"unknown approval mode", "approval:\n  mode: oracle\n"},
		{"unknown planner mode", "planner:\n  mode: psychic\n"},
		{"inverted latency range", "connectors:\n  latency_min_ms: 500\n  latency_max_ms: 100\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prospector.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PROSPECTOR_POLICY_MAX_RETRY_ROUNDS", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Policy.MaxRetryRounds)
}
