package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/stream"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// CallLog records collaborator calls in order across both sides.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *CallLog) add(s string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

// Calls returns the recorded calls as "<name>:<case>".
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// StubCollaborator satisfies conformance.Collaborator with canned responses
// keyed by case name.
type StubCollaborator struct {
	Name      string
	Responses map[string]tree.Value
	Streams   map[string][]tree.Value
	// StreamErrs makes the stream for a case fail with the error once its
	// fragments are exhausted.
	StreamErrs map[string]error
	// Errs makes Complete and Stream fail outright.
	Errs map[string]error
	Log  *CallLog
}

// Complete implements conformance.Collaborator.
func (s *StubCollaborator) Complete(_ context.Context, req conformance.Request) (tree.Value, error) {
	s.Log.add(s.Name + ":" + req.Case)
	if err := s.Errs[req.Case]; err != nil {
		return tree.Value{}, err
	}
	v, ok := s.Responses[req.Case]
	if !ok {
		return tree.Value{}, fmt.Errorf("stub %s: no response for %s", s.Name, req.Case)
	}
	return v, nil
}

// Stream implements conformance.Collaborator.
func (s *StubCollaborator) Stream(_ context.Context, req conformance.Request) (stream.Source, error) {
	s.Log.add(s.Name + ":" + req.Case)
	if err := s.Errs[req.Case]; err != nil {
		return nil, err
	}
	frags, ok := s.Streams[req.Case]
	if !ok {
		return nil, fmt.Errorf("stub %s: no stream for %s", s.Name, req.Case)
	}
	return &stubSource{items: frags, err: s.StreamErrs[req.Case]}, nil
}

type stubSource struct {
	items []tree.Value
	err   error
}

func (s *stubSource) Next(ctx context.Context) (tree.Value, error) {
	if len(s.items) == 0 {
		if s.err != nil {
			return tree.Value{}, s.err
		}
		return stream.FromValues().Next(ctx)
	}
	v := s.items[0]
	s.items = s.items[1:]
	return v, nil
}

// Chunk builds a chat.completion.chunk fragment with one choice.
func Chunk(id, content string, finish any) tree.Value {
	delta := map[string]any{}
	if content != "" {
		delta["content"] = content
	}
	return tree.MustAny(map[string]any{
		"id":                 id,
		"object":             "chat.completion.chunk",
		"created":            1718000000,
		"model":              "gpt-4o-2024-05-13",
		"system_fingerprint": "fp_" + id,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"logprobs":      nil,
			"finish_reason": finish,
		}},
	})
}

// UsageChunk builds a summary-only trailer fragment.
func UsageChunk(id string, prompt, completion int) tree.Value {
	return tree.MustAny(map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": 1718000000,
		"model":   "gpt-4o-2024-05-13",
		"choices": []any{},
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	})
}

// FixturesDir returns the absolute path to the recorded fixtures under
// testdata/fixtures at the repository root.
func FixturesDir() string {
	// testutil/ is at internal/testutil/, fixtures are at testdata/fixtures/
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata", "fixtures")
}
