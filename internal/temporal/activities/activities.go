package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/connectors/aws/cloudwatch"
	"github.com/bodhi-compat/compatcheck/internal/observability"
	"github.com/bodhi-compat/compatcheck/internal/ratelimit"
)

// CaseRunner runs a single case. conformance.Runner satisfies it.
type CaseRunner interface {
	Run(ctx context.Context, c conformance.Case) conformance.Result
}

// Publisher writes run results somewhere durable. cloudwatch.Publisher
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, run cloudwatch.Run, results []conformance.Result) error
}

// Activities holds the dependencies for all Temporal activities.
// Each method is registered as a Temporal activity.
type Activities struct {
	Runner    CaseRunner
	Publisher Publisher             // nil = publishing disabled
	Budget    *ratelimit.CallBudget // nil = no budget enforcement
	Metrics   *observability.Metrics
}

// checkBudget enforces per-run activity budgets when configured.
func (a *Activities) checkBudget(runID, activityName string) error {
	if err := a.Budget.Spend(runID, activityName); err != nil {
		return temporal.NewNonRetryableApplicationError(err.Error(), "BudgetExceeded", err)
	}
	return nil
}

func (a *Activities) record(ctx context.Context, name string) {
	if a.Metrics != nil {
		a.Metrics.RecordActivity(ctx, name)
	}
}

// RunCase drives both collaborators through one case. Collaborator
// failures are reported in the result, not as activity errors, so a
// broken candidate does not trigger retries.
func (a *Activities) RunCase(ctx context.Context, in RunCaseInput) (RunCaseOutput, error) {
	a.record(ctx, "RunCase")
	if a.Runner == nil {
		return RunCaseOutput{}, temporal.NewNonRetryableApplicationError("run case: runner not configured", "NotConfigured", nil)
	}
	if err := a.checkBudget(in.RunID, "RunCase"); err != nil {
		return RunCaseOutput{}, err
	}
	if err := in.Case.Validate(); err != nil {
		return RunCaseOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("run case: %v", err), "InvalidCase", err)
	}
	res := a.Runner.Run(ctx, in.Case)
	if res.Err != nil && res.Diagnostic == "" {
		res.Diagnostic = res.Err.Error()
	}
	return RunCaseOutput{Result: res}, nil
}

// PublishResults writes the run's results through the configured publisher.
func (a *Activities) PublishResults(ctx context.Context, in PublishResultsInput) (PublishResultsOutput, error) {
	a.record(ctx, "PublishResults")
	if a.Publisher == nil {
		return PublishResultsOutput{}, nil
	}
	if err := a.checkBudget(in.RunID, "PublishResults"); err != nil {
		return PublishResultsOutput{}, err
	}
	run := cloudwatch.Run{Suite: in.Suite, Candidate: in.Candidate}
	if err := a.Publisher.Publish(ctx, run, in.Results); err != nil {
		return PublishResultsOutput{}, fmt.Errorf("publish results activity: %w", err)
	}
	return PublishResultsOutput{Published: true}, nil
}
