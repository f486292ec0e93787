package agui_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhi-compat/compatcheck/internal/agui"
	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/connectors/fixture"
	"github.com/bodhi-compat/compatcheck/internal/suite"
	"github.com/bodhi-compat/compatcheck/internal/testutil"
)

func fixtureRunner() *conformance.Runner {
	dir := testutil.FixturesDir()
	return &conformance.Runner{
		Reference: fixture.New(dir, conformance.SideReference),
		Candidate: fixture.New(dir, conformance.SideCandidate),
	}
}

func serve(t *testing.T, runner agui.CaseRunner, cfg agui.StreamConfig) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs/stream", agui.StreamHandler(runner, suite.Builtin, cfg))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestStreamHandler_CompletedRun(t *testing.T) {
	cfg := agui.StreamConfig{KeepAlive: time.Minute, MaxDuration: 5 * time.Second}
	ts := serve(t, fixtureRunner(), cfg)

	resp, err := http.Get(ts.URL + "/api/v1/runs/stream?case=models_list,format_json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := parseSSE(t, resp)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		"RUN_STARTED", "STATE_SNAPSHOT",
		"STEP_STARTED", "STEP_FINISHED", "STATE_DELTA",
		"STEP_STARTED", "STEP_FINISHED", "STATE_DELTA",
		"STATE_SNAPSHOT", "RUN_FINISHED",
	}, types)

	var step struct {
		RunID string        `json:"run_id"`
		Data  agui.StepData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[3].Data), &step))
	assert.Equal(t, "models_list", step.Data.Case)
	assert.Equal(t, conformance.OutcomePassed, step.Data.Outcome)
	assert.NotEmpty(t, step.RunID)

	var finished struct {
		Data conformance.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[9].Data), &finished))
	assert.Equal(t, 2, finished.Data.Total)
	assert.Equal(t, 2, finished.Data.Passed)

	var snapshot struct {
		Data agui.StateSnapshotData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[8].Data), &snapshot))
	assert.Equal(t, agui.PhaseComplete, snapshot.Data.Phase)
	assert.Equal(t, []string{"models_list", "format_json"}, snapshot.Data.State.Cases)
	assert.Len(t, snapshot.Data.State.Results, 2)
}

func TestStreamHandler_UnknownCase(t *testing.T) {
	ts := serve(t, fixtureRunner(), agui.DefaultConfig())

	resp, err := http.Get(ts.URL + "/api/v1/runs/stream?case=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, c conformance.Case) conformance.Result {
	<-ctx.Done()
	return conformance.Result{Case: c.Name, Outcome: conformance.OutcomeError}
}

func TestStreamHandler_Timeout(t *testing.T) {
	cfg := agui.StreamConfig{KeepAlive: 10 * time.Millisecond, MaxDuration: 100 * time.Millisecond}
	ts := serve(t, blockingRunner{}, cfg)

	resp, err := http.Get(ts.URL + "/api/v1/runs/stream?case=models_list")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := parseSSE(t, resp)
	require.True(t, len(events) >= 3)
	assert.Equal(t, "RUN_STARTED", events[0].Type)
	assert.Equal(t, "RUN_ERROR", events[len(events)-1].Type)
}

type sseEvent struct {
	Type string
	Data string
}

func parseSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var current sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			current.Type = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			current.Data = strings.TrimPrefix(line, "data: ")
		} else if line == "" && current.Type != "" {
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestEventSerialization(t *testing.T) {
	event := agui.Event{
		Type:      agui.EventRunStarted,
		Timestamp: time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC),
		RunID:     "run-test",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "RUN_STARTED", decoded["type"])
	assert.Equal(t, "run-test", decoded["run_id"])
	assert.NotContains(t, decoded, "data")
}
