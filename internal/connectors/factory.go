// Package connectors builds the collaborators and publishers selected by
// configuration.
package connectors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bodhi-compat/compatcheck/internal/config"
	"github.com/bodhi-compat/compatcheck/internal/conformance"
	awsauth "github.com/bodhi-compat/compatcheck/internal/connectors/aws"
	"github.com/bodhi-compat/compatcheck/internal/connectors/aws/cloudwatch"
	"github.com/bodhi-compat/compatcheck/internal/connectors/fixture"
	"github.com/bodhi-compat/compatcheck/internal/connectors/openai"
	"github.com/bodhi-compat/compatcheck/internal/observability"
	"github.com/bodhi-compat/compatcheck/internal/ratelimit"
	"github.com/bodhi-compat/compatcheck/internal/testutil"
)

// Pair holds the collaborators of both sides.
type Pair struct {
	Reference conformance.Collaborator
	Candidate conformance.Collaborator
}

// Side returns the collaborator for side.
func (p Pair) Side(side conformance.Side) conformance.Collaborator {
	if side == conformance.SideReference {
		return p.Reference
	}
	return p.Candidate
}

// FixturesDir returns the configured fixture directory, falling back to the
// fixtures recorded in the repository.
func FixturesDir(cfg config.Config) string {
	if cfg.FixturesDir != "" {
		return cfg.FixturesDir
	}
	return testutil.FixturesDir()
}

// Collaborators builds the reference and candidate collaborators for the
// configured mode.
func Collaborators(cfg config.Config) (Pair, error) {
	if cfg.Mode == config.ModeFixture {
		dir := FixturesDir(cfg)
		return Pair{
			Reference: fixture.New(dir, conformance.SideReference),
			Candidate: fixture.New(dir, conformance.SideCandidate),
		}, nil
	}
	if cfg.Mode != config.ModeLive && cfg.Mode != config.ModeRecord {
		return Pair{}, fmt.Errorf("connectors: unsupported mode %q", cfg.Mode)
	}

	limiter := ratelimit.NewSideLimiter(ratelimit.SideRates{Reference: cfg.RequestsPerSecond})
	budget := ratelimit.NewCallBudget(cfg.CallBudget, cfg.BudgetWindow)
	client := func(side conformance.Side, ep config.Endpoint) conformance.Collaborator {
		return openai.New(ep.URL,
			openai.WithSide(side),
			openai.WithAPIKey(ep.APIKey),
			openai.WithModel(ep.Model),
			openai.WithLimiter(limiter),
			openai.WithBudget(budget),
		)
	}
	p := Pair{
		Reference: client(conformance.SideReference, cfg.Reference),
		Candidate: client(conformance.SideCandidate, cfg.Candidate),
	}
	if cfg.Mode == config.ModeRecord {
		p.Reference = fixture.NewRecorder(p.Reference, cfg.FixturesDir, conformance.SideReference)
		p.Candidate = fixture.NewRecorder(p.Candidate, cfg.FixturesDir, conformance.SideCandidate)
	}
	return p, nil
}

// NewPublisher returns a CloudWatch publisher, or nil when publishing is not
// configured.
func NewPublisher(ctx context.Context, cfg config.Config) (*cloudwatch.Publisher, error) {
	if cfg.CloudWatchNamespace == "" {
		return nil, nil
	}
	awsCfg, err := awsauth.NewAWSConfig(ctx, cfg.AWSRegion, cfg.AWSProfile, cfg.AWSRoleARN)
	if err != nil {
		return nil, fmt.Errorf("connectors: %w", err)
	}
	return cloudwatch.New(awsCfg, cfg.CloudWatchNamespace), nil
}

// NewRunner builds a conformance runner over the configured collaborators.
// metrics may be nil.
func NewRunner(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (*conformance.Runner, error) {
	p, err := Collaborators(cfg)
	if err != nil {
		return nil, err
	}
	return &conformance.Runner{
		Reference:   p.Reference,
		Candidate:   p.Candidate,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      observability.Tracer(),
		MaxParallel: cfg.MaxParallel,
	}, nil
}
