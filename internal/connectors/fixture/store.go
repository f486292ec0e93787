// Package fixture serves recorded responses from disk, satisfying
// conformance.Collaborator without network access.
//
// Layout: <dir>/<side>/<case>.json holds a direct response and
// <dir>/<side>/<case>.sse holds a recorded event stream.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/stream"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// ErrNotRecorded is returned when no fixture exists for a case.
var ErrNotRecorded = errors.New("fixture not recorded")

// Store reads the fixtures of one side.
type Store struct {
	dir  string
	side conformance.Side
}

// New creates a store for side rooted at dir.
func New(dir string, side conformance.Side) *Store {
	return &Store{dir: dir, side: side}
}

// Path returns the fixture file for a case.
func (s *Store) Path(caseName string, streaming bool) string {
	return path(s.dir, s.side, caseName, streaming)
}

func path(dir string, side conformance.Side, caseName string, streaming bool) string {
	ext := ".json"
	if streaming {
		ext = ".sse"
	}
	return filepath.Join(dir, string(side), caseName+ext)
}

// Complete implements conformance.Collaborator.
func (s *Store) Complete(_ context.Context, req conformance.Request) (tree.Value, error) {
	p := s.Path(req.Case, false)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return tree.Value{}, fmt.Errorf("fixture: %s %s: %w", s.side, req.Case, ErrNotRecorded)
	}
	if err != nil {
		return tree.Value{}, fmt.Errorf("fixture: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return tree.Value{}, fmt.Errorf("fixture: %s is not valid JSON", p)
	}
	// Recorded error bodies replay as collaborator errors.
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() && !gjson.GetBytes(data, "object").Exists() {
		return tree.Value{}, fmt.Errorf("fixture: %s %s: recorded error: %s", s.side, req.Case, msg.String())
	}
	v, err := tree.FromJSON(data)
	if err != nil {
		return tree.Value{}, fmt.Errorf("fixture: decode %s: %w", p, err)
	}
	return v, nil
}

// Stream implements conformance.Collaborator.
func (s *Store) Stream(_ context.Context, req conformance.Request) (stream.Source, error) {
	f, err := os.Open(s.Path(req.Case, true))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("fixture: %s %s stream: %w", s.side, req.Case, ErrNotRecorded)
	}
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	return stream.NewSSESource(f), nil
}

// Cases returns the names of the cases recorded for the side.
func (s *Store) Cases() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, string(s.side)))
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".json" && ext != ".sse") {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(ext)])
	}
	return names, nil
}
