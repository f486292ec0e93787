// Package agui implements AG-UI protocol SSE streaming of suite run progress.
package agui

import (
	"time"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
)

// EventType identifies an AG-UI event.
type EventType string

const (
	EventRunStarted    EventType = "RUN_STARTED"
	EventRunFinished   EventType = "RUN_FINISHED"
	EventRunError      EventType = "RUN_ERROR"
	EventStepStarted   EventType = "STEP_STARTED"
	EventStepFinished  EventType = "STEP_FINISHED"
	EventStateSnapshot EventType = "STATE_SNAPSHOT"
	EventStateDelta    EventType = "STATE_DELTA"
)

// Event is a single SSE event emitted to the client.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Data      any       `json:"data,omitempty"`
}

// RunState is the client-visible state of a suite run.
type RunState struct {
	Cases   []string             `json:"cases"`
	Results []conformance.Result `json:"results"`
	Summary *conformance.Summary `json:"summary,omitempty"`
}

// StateSnapshotData carries the full run state in a STATE_SNAPSHOT event.
type StateSnapshotData struct {
	Phase string   `json:"phase"`
	State RunState `json:"state"`
}

// StateDeltaData carries field-level deltas in a STATE_DELTA event.
type StateDeltaData struct {
	Phase   string  `json:"phase"`
	Patches []Patch `json:"patches"`
}

// Patch is an RFC 6902-style JSON Patch operation.
type Patch struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// StepData carries case transition info.
type StepData struct {
	Case    string              `json:"case"`
	Outcome conformance.Outcome `json:"outcome,omitempty"`
}

// ErrorData carries error info for RUN_ERROR events.
type ErrorData struct {
	Message string `json:"message"`
}
