package activities_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/connectors/aws/cloudwatch"
	"github.com/bodhi-compat/compatcheck/internal/ratelimit"
	"github.com/bodhi-compat/compatcheck/internal/temporal/activities"
	"github.com/bodhi-compat/compatcheck/internal/testutil"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

func modelsCase() conformance.Case {
	return conformance.Case{
		Name:      "models_list",
		Operation: conformance.OpModelsList,
		Exclude:   []string{"data"},
	}
}

func newRunner(candidate tree.Value) *conformance.Runner {
	ref := &testutil.StubCollaborator{Name: "reference", Responses: map[string]tree.Value{
		"models_list": tree.MustJSON(`{"object":"list","data":[{"id":"gpt-4o"}]}`),
	}}
	cand := &testutil.StubCollaborator{Name: "candidate", Responses: map[string]tree.Value{
		"models_list": candidate,
	}}
	return &conformance.Runner{Reference: ref, Candidate: cand}
}

type fakePublisher struct {
	run     cloudwatch.Run
	results []conformance.Result
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, run cloudwatch.Run, results []conformance.Result) error {
	p.run = run
	p.results = results
	return p.err
}

func nonRetryable(t *testing.T, err error) {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "want application error, got %v", err)
	assert.True(t, appErr.NonRetryable())
}

func TestRunCase_Passed(t *testing.T) {
	a := &activities.Activities{Runner: newRunner(tree.MustJSON(`{"object":"list","data":[]}`))}
	out, err := a.RunCase(context.Background(), activities.RunCaseInput{RunID: "r1", Case: modelsCase()})
	require.NoError(t, err)
	assert.Equal(t, "models_list", out.Result.Case)
	assert.Equal(t, conformance.OutcomePassed, out.Result.Outcome)
}

func TestRunCase_MismatchIsNotAnError(t *testing.T) {
	a := &activities.Activities{Runner: newRunner(tree.MustJSON(`{"object":"page","data":[]}`))}
	out, err := a.RunCase(context.Background(), activities.RunCaseInput{RunID: "r1", Case: modelsCase()})
	require.NoError(t, err)
	assert.Equal(t, conformance.OutcomeMismatch, out.Result.Outcome)
	assert.Equal(t, 1, out.Result.Remaining.Len())
}

func TestRunCase_CollaboratorErrorKeepsDiagnostic(t *testing.T) {
	ref := &testutil.StubCollaborator{Name: "reference", Errs: map[string]error{"models_list": errors.New("connection refused")}}
	cand := &testutil.StubCollaborator{Name: "candidate"}
	a := &activities.Activities{Runner: &conformance.Runner{Reference: ref, Candidate: cand}}

	out, err := a.RunCase(context.Background(), activities.RunCaseInput{RunID: "r1", Case: modelsCase()})
	require.NoError(t, err)
	assert.Equal(t, conformance.OutcomeError, out.Result.Outcome)
	assert.Contains(t, out.Result.Diagnostic, "connection refused")
}

func TestRunCase_InvalidCase(t *testing.T) {
	a := &activities.Activities{Runner: newRunner(tree.MustJSON(`{}`))}
	_, err := a.RunCase(context.Background(), activities.RunCaseInput{
		RunID: "r1",
		Case:  conformance.Case{Name: "bad", Operation: "embeddings"},
	})
	require.Error(t, err)
	nonRetryable(t, err)
}

func TestRunCase_NoRunner(t *testing.T) {
	a := &activities.Activities{}
	_, err := a.RunCase(context.Background(), activities.RunCaseInput{Case: modelsCase()})
	require.Error(t, err)
	nonRetryable(t, err)
}

func TestRunCase_BudgetPerRun(t *testing.T) {
	a := &activities.Activities{
		Runner: newRunner(tree.MustJSON(`{"object":"list","data":[]}`)),
		Budget: ratelimit.NewCallBudget(1, time.Hour),
	}
	ctx := context.Background()

	_, err := a.RunCase(ctx, activities.RunCaseInput{RunID: "r1", Case: modelsCase()})
	require.NoError(t, err)

	_, err = a.RunCase(ctx, activities.RunCaseInput{RunID: "r1", Case: modelsCase()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrBudgetExceeded)
	nonRetryable(t, err)

	// A different run has its own budget.
	_, err = a.RunCase(ctx, activities.RunCaseInput{RunID: "r2", Case: modelsCase()})
	assert.NoError(t, err)
}

func TestPublishResults(t *testing.T) {
	pub := &fakePublisher{}
	a := &activities.Activities{Publisher: pub}
	results := []conformance.Result{{Case: "models_list", Outcome: conformance.OutcomePassed}}

	out, err := a.PublishResults(context.Background(), activities.PublishResultsInput{
		RunID: "r1", Suite: "builtin", Candidate: "llama3", Results: results,
	})
	require.NoError(t, err)
	assert.True(t, out.Published)
	assert.Equal(t, cloudwatch.Run{Suite: "builtin", Candidate: "llama3"}, pub.run)
	assert.Len(t, pub.results, 1)
}

func TestPublishResults_Disabled(t *testing.T) {
	a := &activities.Activities{}
	out, err := a.PublishResults(context.Background(), activities.PublishResultsInput{RunID: "r1"})
	require.NoError(t, err)
	assert.False(t, out.Published)
}

func TestPublishResults_Error(t *testing.T) {
	a := &activities.Activities{Publisher: &fakePublisher{err: errors.New("throttled")}}
	_, err := a.PublishResults(context.Background(), activities.PublishResultsInput{RunID: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
