// Package workflows defines the Temporal workflow functions.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/temporal/activities"
	"github.com/bodhi-compat/compatcheck/internal/temporal/versioning"
)

// QueryNameProgress is the Temporal query handler name for run progress.
const QueryNameProgress = "progress"

// SuiteInput is the input to the conformance suite workflow.
type SuiteInput struct {
	RunID     string             `json:"run_id"`
	Suite     string             `json:"suite"`
	Candidate string             `json:"candidate,omitempty"`
	Cases     []conformance.Case `json:"cases"`
	// MaxParallel bounds the number of RunCase activities in flight.
	// Values below one run cases sequentially.
	MaxParallel int `json:"max_parallel,omitempty"`
	// Publish sends the results to the publish queue once every case has
	// finished.
	Publish bool `json:"publish,omitempty"`
}

// SuiteResult is the output of the conformance suite workflow. Results are
// in case order. The workflow returns this on all paths; only an empty
// suite produces a workflow-level error.
type SuiteResult struct {
	RunID     string               `json:"run_id"`
	Results   []conformance.Result `json:"results"`
	Summary   conformance.Summary  `json:"summary"`
	Published bool                 `json:"published"`
	// PublishError is set when publishing failed. The verdicts still stand.
	PublishError string `json:"publish_error,omitempty"`
}

// Progress is returned by the progress query.
type Progress struct {
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Summary   conformance.Summary `json:"summary"`
}

// ConformanceSuiteWorkflow runs every case of a suite as a RunCase activity,
// at most MaxParallel at a time, then optionally publishes the results.
//
//	RunCase x N (bounded) -> summarize -> PublishResults
//
// A RunCase activity that fails outright becomes an error result for its
// case; the rest of the suite still runs.
func ConformanceSuiteWorkflow(ctx workflow.Context, input SuiteInput) (SuiteResult, error) {
	logger := workflow.GetLogger(ctx)
	if len(input.Cases) == 0 {
		return SuiteResult{}, temporal.NewNonRetryableApplicationError("suite has no cases", "EmptySuite", nil)
	}

	result := SuiteResult{RunID: input.RunID, Results: make([]conformance.Result, len(input.Cases))}
	finished := make([]bool, len(input.Cases))
	completed := 0

	err := workflow.SetQueryHandler(ctx, QueryNameProgress, func() (Progress, error) {
		var done []conformance.Result
		for i, ok := range finished {
			if ok {
				done = append(done, result.Results[i])
			}
		}
		return Progress{Total: len(input.Cases), Completed: completed, Summary: conformance.Summarize(done)}, nil
	})
	if err != nil {
		return SuiteResult{}, fmt.Errorf("register progress query: %w", err)
	}

	// Cases hit live endpoints; one retry covers a worker restart.
	caseCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           versioning.QueueConformance,
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})

	limit := input.MaxParallel
	if limit < 1 {
		limit = 1
	}

	sel := workflow.NewSelector(ctx)
	next := 0
	start := func(i int) {
		c := input.Cases[i]
		f := workflow.ExecuteActivity(caseCtx, "RunCase", activities.RunCaseInput{RunID: input.RunID, Case: c})
		sel.AddFuture(f, func(f workflow.Future) {
			var out activities.RunCaseOutput
			if err := f.Get(ctx, &out); err != nil {
				logger.Warn("run case failed", "case", c.Name, "error", err)
				out.Result = activityFailure(c.Name, err)
			}
			result.Results[i] = out.Result
			finished[i] = true
			completed++
			logger.Info("case complete", "case", c.Name, "outcome", out.Result.Outcome)
		})
	}
	for ; next < len(input.Cases) && next < limit; next++ {
		start(next)
	}
	for completed < len(input.Cases) {
		sel.Select(ctx)
		if next < len(input.Cases) {
			start(next)
			next++
		}
	}

	result.Summary = conformance.Summarize(result.Results)
	logger.Info("suite complete", "passed", result.Summary.Passed, "failed", result.Summary.Failed, "errored", result.Summary.Errored)

	if !input.Publish {
		return result, nil
	}

	pubCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           versioning.QueuePublish,
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
	var pubOut activities.PublishResultsOutput
	err = workflow.ExecuteActivity(pubCtx, "PublishResults", activities.PublishResultsInput{
		RunID:     input.RunID,
		Suite:     input.Suite,
		Candidate: input.Candidate,
		Results:   result.Results,
	}).Get(ctx, &pubOut)
	if err != nil {
		logger.Warn("publish failed", "error", err)
		result.PublishError = err.Error()
		return result, nil
	}
	result.Published = pubOut.Published
	return result, nil
}

// activityFailure reports a case whose activity never produced a result.
func activityFailure(name string, err error) conformance.Result {
	return conformance.Result{
		Case:       name,
		Outcome:    conformance.OutcomeError,
		Diagnostic: "activity failed: " + err.Error(),
	}
}
