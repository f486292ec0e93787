// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode determines where collaborator responses come from.
type Mode string

const (
	// ModeFixture replays recorded responses from FixturesDir.
	ModeFixture Mode = "fixture"
	// ModeLive calls the reference and candidate services.
	ModeLive Mode = "live"
	// ModeRecord calls both services and writes their responses to FixturesDir.
	ModeRecord Mode = "record"
)

// Endpoint describes one OpenAI-compatible service.
type Endpoint struct {
	URL    string
	APIKey string
	Model  string
}

// Config holds all application configuration.
type Config struct {
	Mode        Mode
	FixturesDir string
	SuiteFile   string

	Reference Endpoint
	Candidate Endpoint

	// RequestsPerSecond limits calls to the reference service; zero disables it.
	RequestsPerSecond float64
	// CallBudget caps calls per side and operation within BudgetWindow; zero disables it.
	CallBudget   int
	BudgetWindow time.Duration
	MaxParallel  int

	LogLevel    string
	OTelEnabled bool

	// API server settings.
	APIPort      string
	CORSOrigins  []string
	OIDCIssuer   string
	OIDCAudience string

	// Metric publishing. Publishing is disabled without a namespace.
	AWSRegion           string
	AWSProfile          string
	AWSRoleARN          string
	CloudWatchNamespace string

	TemporalAddress string
	// WorkerQueues lists the task queues a worker polls, comma separated.
	WorkerQueues string
}

// LoadFromEnv reads configuration from environment variables with sensible defaults.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Mode:        Mode(envOr("COMPAT_MODE", string(ModeFixture))),
		FixturesDir: os.Getenv("COMPAT_FIXTURES_DIR"),
		SuiteFile:   os.Getenv("COMPAT_SUITE_FILE"),
		Reference: Endpoint{
			URL:    envOr("COMPAT_REFERENCE_URL", "https://api.openai.com"),
			APIKey: os.Getenv("COMPAT_REFERENCE_API_KEY"),
			Model:  os.Getenv("COMPAT_REFERENCE_MODEL"),
		},
		Candidate: Endpoint{
			URL:    os.Getenv("COMPAT_CANDIDATE_URL"),
			APIKey: os.Getenv("COMPAT_CANDIDATE_API_KEY"),
			Model:  os.Getenv("COMPAT_CANDIDATE_MODEL"),
		},
		LogLevel:            envOr("COMPAT_LOG_LEVEL", "info"),
		APIPort:             envOr("COMPAT_API_PORT", "8080"),
		CORSOrigins:         parseCORSOrigins(os.Getenv("COMPAT_CORS_ORIGINS")),
		OIDCIssuer:          os.Getenv("COMPAT_OIDC_ISSUER"),
		OIDCAudience:        os.Getenv("COMPAT_OIDC_AUDIENCE"),
		AWSRegion:           envOr("AWS_REGION", "us-east-1"),
		AWSProfile:          os.Getenv("AWS_PROFILE"),
		AWSRoleARN:          os.Getenv("COMPAT_AWS_ROLE_ARN"),
		CloudWatchNamespace: os.Getenv("COMPAT_CLOUDWATCH_NAMESPACE"),
		TemporalAddress:     os.Getenv("COMPAT_TEMPORAL_ADDRESS"),
		WorkerQueues:        envOr("COMPAT_WORKER_QUEUES", "conformance,publish"),
	}

	var err error
	if cfg.RequestsPerSecond, err = envFloat("COMPAT_REQUESTS_PER_SECOND", 2); err != nil {
		return Config{}, err
	}
	if cfg.CallBudget, err = envInt("COMPAT_CALL_BUDGET", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxParallel, err = envInt("COMPAT_MAX_PARALLEL", 1); err != nil {
		return Config{}, err
	}
	if cfg.BudgetWindow, err = time.ParseDuration(envOr("COMPAT_BUDGET_WINDOW", "1h")); err != nil {
		return Config{}, fmt.Errorf("config: invalid COMPAT_BUDGET_WINDOW: %w", err)
	}
	if cfg.OTelEnabled, err = strconv.ParseBool(envOr("COMPAT_OTEL_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("config: invalid COMPAT_OTEL_ENABLED: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// OIDCEnabled reports whether the API requires bearer tokens.
func (c Config) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// Validate checks mode-dependent requirements.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeFixture:
	case ModeLive, ModeRecord:
		for _, req := range []struct{ key, val string }{
			{"COMPAT_REFERENCE_URL", c.Reference.URL},
			{"COMPAT_REFERENCE_MODEL", c.Reference.Model},
			{"COMPAT_CANDIDATE_URL", c.Candidate.URL},
			{"COMPAT_CANDIDATE_MODEL", c.Candidate.Model},
		} {
			if req.val == "" {
				return fmt.Errorf("config: %s required in %s mode", req.key, c.Mode)
			}
		}
		if c.Mode == ModeRecord && c.FixturesDir == "" {
			return fmt.Errorf("config: COMPAT_FIXTURES_DIR required in record mode")
		}
	default:
		return fmt.Errorf("config: invalid COMPAT_MODE %q (must be fixture, live or record)", c.Mode)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("config: COMPAT_MAX_PARALLEL must be at least 1, got %d", c.MaxParallel)
	}
	if c.CallBudget < 0 {
		return fmt.Errorf("config: COMPAT_CALL_BUDGET must not be negative, got %d", c.CallBudget)
	}
	if c.OIDCIssuer != "" && c.OIDCAudience == "" {
		return fmt.Errorf("config: COMPAT_OIDC_AUDIENCE required when COMPAT_OIDC_ISSUER is set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, err := strconv.Atoi(envOr(key, strconv.Itoa(fallback)))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v, err := strconv.ParseFloat(envOr(key, strconv.FormatFloat(fallback, 'f', -1, 64)), 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return v, nil
}

func parseCORSOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(o); t != "" {
			origins = append(origins, t)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
