// Package activities defines the Temporal activity I/O structs and the
// Activities implementation that bridges Temporal's serialization boundary
// to the conformance runner and the metric publisher.
package activities

import "github.com/bodhi-compat/compatcheck/internal/conformance"

// RunCaseInput is the activity input for running one case.
type RunCaseInput struct {
	RunID string           `json:"run_id"`
	Case  conformance.Case `json:"case"`
}

// RunCaseOutput is the activity output from running one case.
type RunCaseOutput struct {
	Result conformance.Result `json:"result"`
}

// PublishResultsInput is the activity input for metric publishing.
type PublishResultsInput struct {
	RunID     string               `json:"run_id"`
	Suite     string               `json:"suite"`
	Candidate string               `json:"candidate,omitempty"`
	Results   []conformance.Result `json:"results"`
}

// PublishResultsOutput is the activity output from metric publishing.
// Published is false when no publisher is configured.
type PublishResultsOutput struct {
	Published bool `json:"published"`
}
