package agui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/suite"
)

// Phases reported in snapshots and deltas.
const (
	PhaseRunning  = "running"
	PhaseComplete = "complete"
)

// CaseRunner runs a single conformance case.
type CaseRunner interface {
	Run(ctx context.Context, c conformance.Case) conformance.Result
}

// StreamConfig controls SSE stream behavior.
type StreamConfig struct {
	KeepAlive   time.Duration
	MaxDuration time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() StreamConfig {
	return StreamConfig{
		KeepAlive:   15 * time.Second,
		MaxDuration: 30 * time.Minute,
	}
}

// StreamHandler runs the selected cases one after another and streams
// progress as SSE events. The "case" query parameter (repeatable or comma
// separated) selects cases; none selects all of them.
func StreamHandler(runner CaseRunner, cases func() []conformance.Case, cfg StreamConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		selected, err := suite.Select(cases(), queryCases(r)...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MaxDuration)
		defer cancel()

		runID := uuid.NewString()
		emit := func(t EventType, data any) {
			writeSSE(w, flusher, Event{Type: t, Timestamp: time.Now().UTC(), RunID: runID, Data: data})
		}

		state := RunState{Cases: make([]string, len(selected)), Results: []conformance.Result{}}
		for i, c := range selected {
			state.Cases[i] = c.Name
		}
		emit(EventRunStarted, nil)
		emit(EventStateSnapshot, StateSnapshotData{Phase: PhaseRunning, State: state})

		started := make(chan int)
		done := make(chan conformance.Result)
		go func() {
			defer close(done)
			for i, c := range selected {
				select {
				case started <- i:
				case <-ctx.Done():
					return
				}
				res := runner.Run(ctx, c)
				select {
				case done <- res:
				case <-ctx.Done():
					return
				}
			}
		}()

		ticker := time.NewTicker(cfg.KeepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				emit(EventRunError, ErrorData{Message: ctx.Err().Error()})
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case i := <-started:
				emit(EventStepStarted, StepData{Case: selected[i].Name})
			case res, ok := <-done:
				if !ok {
					sum := conformance.Summarize(state.Results)
					state.Summary = &sum
					emit(EventStateSnapshot, StateSnapshotData{Phase: PhaseComplete, State: state})
					emit(EventRunFinished, sum)
					return
				}
				state.Results = append(state.Results, res)
				emit(EventStepFinished, StepData{Case: res.Case, Outcome: res.Outcome})
				emit(EventStateDelta, StateDeltaData{
					Phase:   PhaseRunning,
					Patches: resultPatches(res),
				})
			}
		}
	}
}

// resultPatches adds one case result to the client's copy of RunState.
func resultPatches(res conformance.Result) []Patch {
	return []Patch{{Op: "add", Path: "/results/-", Value: res}}
}

func queryCases(r *http.Request) []string {
	var names []string
	for _, v := range r.URL.Query()["case"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	flusher.Flush()
}
