package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeFixture, cfg.Mode)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, "https://api.openai.com", cfg.Reference.URL)
	assert.InDelta(t, 2.0, cfg.RequestsPerSecond, 0)
	assert.Equal(t, 1, cfg.MaxParallel)
	assert.Equal(t, time.Hour, cfg.BudgetWindow)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "conformance,publish", cfg.WorkerQueues)
	assert.False(t, cfg.OIDCEnabled())
	assert.False(t, cfg.OTelEnabled)
}

func TestLoadFromEnv_LiveValid(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMPAT_MODE", "live")
	t.Setenv("COMPAT_REFERENCE_MODEL", "gpt-4o-2024-05-13")
	t.Setenv("COMPAT_CANDIDATE_URL", "http://localhost:1135")
	t.Setenv("COMPAT_CANDIDATE_MODEL", "llama3:instruct")
	t.Setenv("COMPAT_MAX_PARALLEL", "4")
	t.Setenv("COMPAT_CORS_ORIGINS", "http://a.test, http://b.test,")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, "llama3:instruct", cfg.Candidate.Model)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestLoadFromEnv_LiveMissingRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMPAT_MODE", "live")
	t.Setenv("COMPAT_REFERENCE_MODEL", "gpt-4o")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPAT_CANDIDATE_URL")
}

func TestLoadFromEnv_RecordNeedsFixturesDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMPAT_MODE", "record")
	t.Setenv("COMPAT_REFERENCE_MODEL", "gpt-4o")
	t.Setenv("COMPAT_CANDIDATE_URL", "http://localhost:1135")
	t.Setenv("COMPAT_CANDIDATE_MODEL", "llama3")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPAT_FIXTURES_DIR")
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := map[string]struct {
		key, val, want string
	}{
		"mode":      {"COMPAT_MODE", "invalid", "invalid COMPAT_MODE"},
		"rps":       {"COMPAT_REQUESTS_PER_SECOND", "fast", "COMPAT_REQUESTS_PER_SECOND"},
		"budget":    {"COMPAT_CALL_BUDGET", "-1", "must not be negative"},
		"parallel":  {"COMPAT_MAX_PARALLEL", "0", "at least 1"},
		"window":    {"COMPAT_BUDGET_WINDOW", "soon", "COMPAT_BUDGET_WINDOW"},
		"otel":      {"COMPAT_OTEL_ENABLED", "maybe", "COMPAT_OTEL_ENABLED"},
		"oidc only": {"COMPAT_OIDC_ISSUER", "https://issuer.test", "COMPAT_OIDC_AUDIENCE"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"COMPAT_MODE", "COMPAT_FIXTURES_DIR", "COMPAT_SUITE_FILE",
		"COMPAT_REFERENCE_URL", "COMPAT_REFERENCE_API_KEY", "COMPAT_REFERENCE_MODEL",
		"COMPAT_CANDIDATE_URL", "COMPAT_CANDIDATE_API_KEY", "COMPAT_CANDIDATE_MODEL",
		"COMPAT_REQUESTS_PER_SECOND", "COMPAT_CALL_BUDGET", "COMPAT_BUDGET_WINDOW", "COMPAT_MAX_PARALLEL",
		"COMPAT_LOG_LEVEL", "COMPAT_OTEL_ENABLED", "COMPAT_API_PORT", "COMPAT_CORS_ORIGINS",
		"COMPAT_OIDC_ISSUER", "COMPAT_OIDC_AUDIENCE", "AWS_REGION", "AWS_PROFILE",
		"COMPAT_AWS_ROLE_ARN", "COMPAT_CLOUDWATCH_NAMESPACE", "COMPAT_TEMPORAL_ADDRESS", "COMPAT_WORKER_QUEUES",
	} {
		// t.Setenv saves the current value and restores it on cleanup.
		// Setting to "" then unsetting ensures the key is absent during the test.
		orig, wasSet := os.LookupEnv(key)
		if wasSet {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}
