package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/stream"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// Recorder wraps a live collaborator and writes every response it returns
// into a fixture directory readable by Store.
type Recorder struct {
	next conformance.Collaborator
	dir  string
	side conformance.Side
}

// NewRecorder records the responses of next for side under dir.
func NewRecorder(next conformance.Collaborator, dir string, side conformance.Side) *Recorder {
	return &Recorder{next: next, dir: dir, side: side}
}

// Complete implements conformance.Collaborator.
func (r *Recorder) Complete(ctx context.Context, req conformance.Request) (tree.Value, error) {
	v, err := r.next.Complete(ctx, req)
	if err != nil {
		return v, err
	}
	f, err := r.create(req.Case, false)
	if err != nil {
		return tree.Value{}, err
	}
	defer f.Close()
	data, err := v.MarshalJSON()
	if err != nil {
		return tree.Value{}, fmt.Errorf("fixture: encode %s: %w", req.Case, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return tree.Value{}, fmt.Errorf("fixture: write %s: %w", req.Case, err)
	}
	return v, nil
}

// Stream implements conformance.Collaborator. Fragments are written as they
// are pulled; the file is terminated with the done sentinel only when the
// stream ends cleanly.
func (r *Recorder) Stream(ctx context.Context, req conformance.Request) (stream.Source, error) {
	src, err := r.next.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	f, err := r.create(req.Case, true)
	if err != nil {
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	return &recordingSource{src: src, w: f}, nil
}

func (r *Recorder) create(caseName string, streaming bool) (*os.File, error) {
	p := path(r.dir, r.side, caseName, streaming)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	return f, nil
}

type recordingSource struct {
	src stream.Source
	w   *os.File
}

func (s *recordingSource) Next(ctx context.Context) (tree.Value, error) {
	v, err := s.src.Next(ctx)
	switch {
	case errors.Is(err, io.EOF):
		if _, werr := fmt.Fprintf(s.w, "data: %s\n\n", stream.DoneSentinel); werr != nil {
			return tree.Value{}, fmt.Errorf("fixture: %w", werr)
		}
		return v, err
	case err != nil:
		return v, err
	}
	if _, werr := fmt.Fprintf(s.w, "data: %s\n\n", v.String()); werr != nil {
		return tree.Value{}, fmt.Errorf("fixture: %w", werr)
	}
	return v, nil
}

func (s *recordingSource) Close() error {
	err := s.w.Close()
	if c, ok := s.src.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
