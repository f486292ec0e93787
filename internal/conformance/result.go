package conformance

import (
	"fmt"
	"strings"
	"time"

	"github.com/bodhi-compat/compatcheck/internal/diff"
	"github.com/bodhi-compat/compatcheck/internal/stream"
)

// MismatchError reports differences that survived exclusion and variance
// claiming, and declared variances that claimed nothing.
type MismatchError struct {
	Remaining diff.Report
	Missing   []Variance
}

func (e *MismatchError) Error() string {
	var parts []string
	if !e.Remaining.Empty() {
		parts = append(parts, fmt.Sprintf("%d unexpected differences", e.Remaining.Len()))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("%d declared variances not observed", len(e.Missing)))
	}
	return "structural mismatch: " + strings.Join(parts, ", ")
}

// SchemaViolationError reports a failed domain check together with the
// offending raw value.
type SchemaViolationError struct {
	Check CheckKind
	Side  Side
	Path  string
	Raw   string
	Err   error
}

func (e *SchemaViolationError) Error() string {
	msg := fmt.Sprintf("%s on %s", e.Check, e.Side)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	msg += ": " + e.Err.Error()
	if e.Raw != "" {
		msg += fmt.Sprintf(" (raw: %s)", e.Raw)
	}
	return msg
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

// Outcome is the verdict of one case.
type Outcome string

const (
	OutcomePassed          Outcome = "passed"
	OutcomeMismatch        Outcome = "mismatch"
	OutcomeFault           Outcome = "fault"
	OutcomeSchemaViolation Outcome = "schema_violation"
	OutcomeError           Outcome = "error"
)

// Result is the verdict of one case with everything needed to diagnose it.
// It survives a JSON round trip; Err is only set in process.
type Result struct {
	Case       string              `json:"case"`
	Outcome    Outcome             `json:"outcome"`
	Remaining  diff.Report         `json:"remaining"`
	Claimed    diff.Report         `json:"claimed"`
	Missing    []Variance          `json:"missing,omitempty"`
	Violations []string            `json:"violations,omitempty"`
	FaultSide  Side                `json:"fault_side,omitempty"`
	Partial    *stream.Aggregation `json:"partial,omitempty"`
	Diagnostic string              `json:"diagnostic,omitempty"`
	Duration   time.Duration       `json:"duration"`
	Err        error               `json:"-"`
}

// Passed reports whether the case passed.
func (r Result) Passed() bool { return r.Outcome == OutcomePassed }

// Summary counts results by outcome.
type Summary struct {
	Total     int             `json:"total"`
	Passed    int             `json:"passed"`
	Failed    int             `json:"failed"`
	Errored   int             `json:"errored"`
	ByOutcome map[Outcome]int `json:"by_outcome"`
}

// Summarize counts results. Errored counts cases that could not be
// evaluated at all; Failed counts every other non-passing case.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), ByOutcome: make(map[Outcome]int)}
	for _, r := range results {
		s.ByOutcome[r.Outcome]++
		switch r.Outcome {
		case OutcomePassed:
			s.Passed++
		case OutcomeError:
			s.Errored++
		default:
			s.Failed++
		}
	}
	return s
}
