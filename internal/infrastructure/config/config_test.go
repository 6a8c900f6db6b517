package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8084", cfg.Server.GetAddr())
	assert.Equal(t, 500, cfg.Probe.BatchSize)
	assert.Equal(t, 20000, cfg.Probe.BasePort)
	assert.Equal(t, 10, cfg.Probe.TestTimeout)
	assert.Equal(t, 8000, cfg.Probe.MaxDelayMS)
	assert.Equal(t, 900, cfg.Cache.IntervalSeconds)
	assert.Equal(t, 3600, cfg.Cache.SiteTTLSeconds)
	assert.Len(t, cfg.Subscription.URLs, 1)
	assert.Empty(t, cfg.Subscription.PrecheckSites)
	assert.False(t, cfg.GitHub.PushEnabled)
}

func TestLoadFlatEnvAliases(t *testing.T) {
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("TEST_TIMEOUT", "5")
	t.Setenv("SUB_URLS", `["https://a.example.com/sub","https://b.example.com/sub"]`)
	t.Setenv("PRECHECK_SITES", "https://www.youtube.com, https://chat.openai.com")
	t.Setenv("GITHUB_PUSH_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Probe.BatchSize)
	assert.Equal(t, 5, cfg.Probe.TestTimeout)
	assert.Equal(t, []string{"https://a.example.com/sub", "https://b.example.com/sub"},
		cfg.Subscription.URLs)
	assert.Equal(t, []string{"https://www.youtube.com", "https://chat.openai.com"},
		cfg.Subscription.PrecheckSites)
	assert.True(t, cfg.GitHub.PushEnabled)
}

func TestLoadPrefixedEnv(t *testing.T) {
	t.Setenv("PROXYPULSE_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestToStringList(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"nil", nil, nil},
		{"empty string", "  ", nil},
		{"single", "https://a", []string{"https://a"}},
		{"comma separated", "a, b ,c", []string{"a", "b", "c"}},
		{"json array", `["a","b"]`, []string{"a", "b"}},
		{"string slice", []string{"a"}, []string{"a"}},
		{"any slice", []any{"a", " b ", ""}, []string{"a", "b"}},
		{"unsupported", 42, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toStringList(tt.value))
		})
	}
}
