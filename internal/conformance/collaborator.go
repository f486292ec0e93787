// Package conformance drives a reference and a candidate chat-completion
// service with identical stimulus and decides whether the candidate's
// responses match, modulo declared exclusions and acceptable variances.
package conformance

import (
	"context"
	"fmt"

	"github.com/bodhi-compat/compatcheck/internal/stream"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// Side identifies which collaborator produced a response.
type Side string

const (
	SideReference Side = "reference"
	SideCandidate Side = "candidate"
)

// Sides lists both sides in collection order.
var Sides = []Side{SideReference, SideCandidate}

// Valid reports whether s names a side. The empty side means both.
func (s Side) Valid() bool {
	switch s {
	case "", SideReference, SideCandidate:
		return true
	}
	return false
}

// Operation is the API call a case exercises.
type Operation string

const (
	OpChatCompletions Operation = "chat.completions"
	OpModelsList      Operation = "models.list"
	OpModelsRetrieve  Operation = "models.retrieve"
)

// Valid reports whether op is supported.
func (op Operation) Valid() bool {
	switch op {
	case OpChatCompletions, OpModelsList, OpModelsRetrieve:
		return true
	}
	return false
}

// Request is what both collaborators receive for one case. Stimulus is
// forwarded untouched; collaborators must not modify it.
type Request struct {
	Case      string
	Operation Operation
	Stimulus  map[string]any
}

// Collaborator obtains responses from one service. Transport concerns
// (auth, retries, timeouts) live behind this interface.
type Collaborator interface {
	// Complete returns a single, fully delivered response.
	Complete(ctx context.Context, req Request) (tree.Value, error)
	// Stream opens an incrementally delivered response.
	Stream(ctx context.Context, req Request) (stream.Source, error)
}

// UnsupportedOperationError is returned by collaborators for operations they
// cannot serve.
type UnsupportedOperationError struct {
	Operation Operation
	Streaming bool
}

func (e *UnsupportedOperationError) Error() string {
	if e.Streaming {
		return fmt.Sprintf("operation %s does not support streaming", e.Operation)
	}
	return fmt.Sprintf("unsupported operation %s", e.Operation)
}
