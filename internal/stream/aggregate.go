// Package stream materializes incrementally delivered responses (server-sent
// chat completion chunks) into ordered, immutable event sequences.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bodhi-compat/compatcheck/internal/tree"
)

var (
	// ErrEmptyStream is returned when a source ends before any fragment.
	ErrEmptyStream = errors.New("stream ended without any fragment")
	// ErrNoFinishSignal is returned when the final fragment carries no
	// finish signal.
	ErrNoFinishSignal = errors.New("final fragment carries no finish signal")
	// ErrMisplacedSummary is returned when a summary fragment appears
	// before the last two fragments.
	ErrMisplacedSummary = errors.New("summary fragment is not final or near-final")
)

// Source yields fragments one at a time. Next blocks until a fragment is
// available and returns io.EOF once the far side signals end of stream.
// Sources are finite and cannot be restarted.
type Source interface {
	Next(ctx context.Context) (tree.Value, error)
}

// Event is one aggregated fragment.
type Event struct {
	Index    int        `json:"index"`
	Data     tree.Value `json:"data"`
	Terminal bool       `json:"terminal,omitempty"`
	Summary  bool       `json:"summary,omitempty"`
}

// summaryOnly reports whether the event exists only to carry the summary.
func (e Event) summaryOnly() bool { return e.Summary && !e.Terminal }

// FaultError reports a stream that terminated abnormally. Partial holds
// everything aggregated before the fault.
type FaultError struct {
	Side    string
	Partial *Aggregation
	Err     error
}

func (e *FaultError) Error() string {
	n := 0
	if e.Partial != nil {
		n = e.Partial.Len()
	}
	if e.Side != "" {
		return fmt.Sprintf("stream fault on %s after %d fragments: %v", e.Side, n, e.Err)
	}
	return fmt.Sprintf("stream fault after %d fragments: %v", n, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Aggregate pulls src to exhaustion, preserving arrival order, and
// classifies every fragment. Any error from src other than io.EOF aborts
// aggregation; so does a sequence whose final fragment is not terminal.
// Both surface as *FaultError carrying the partial aggregation.
func Aggregate(ctx context.Context, src Source, cls Classifier) (*Aggregation, error) {
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	agg := &Aggregation{strip: cls.StripKeys}
	for {
		if err := ctx.Err(); err != nil {
			return nil, &FaultError{Partial: agg, Err: err}
		}
		v, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FaultError{Partial: agg, Err: err}
		}
		agg.events = append(agg.events, Event{
			Index:    len(agg.events),
			Data:     v,
			Terminal: cls.terminal(v),
			Summary:  cls.summary(v),
		})
	}

	if err := agg.validate(); err != nil {
		return nil, &FaultError{Partial: agg, Err: err}
	}
	return agg, nil
}

// Layout selects how an aggregation is shaped into a comparison tree.
type Layout string

const (
	// LayoutSequence is a Sequence of fragment Mappings compared by index.
	LayoutSequence Layout = "sequence"
	// LayoutSplit is a Mapping {"fragments": [...], "terminal": {...}} that
	// aligns the terminal fragments of both sides regardless of how many
	// content fragments precede them.
	LayoutSplit Layout = "split"
)

// Aggregation is the ordered, immutable result of Aggregate.
type Aggregation struct {
	events []Event
	strip  []string
}

// NewAggregation builds an aggregation from pre-classified events, e.g.
// ones decoded from a stored result. Indices are reassigned by position.
func NewAggregation(events []Event, stripKeys ...string) *Aggregation {
	cp := make([]Event, len(events))
	for i, e := range events {
		e.Index = i
		cp[i] = e
	}
	return &Aggregation{events: cp, strip: stripKeys}
}

// Len returns the number of fragments.
func (a *Aggregation) Len() int { return len(a.events) }

// Events returns a copy of all fragments in arrival order.
func (a *Aggregation) Events() []Event {
	cp := make([]Event, len(a.events))
	copy(cp, a.events)
	return cp
}

// Terminal returns the last fragment that is not a summary-only trailer.
func (a *Aggregation) Terminal() (Event, bool) {
	for i := len(a.events) - 1; i >= 0 && i >= len(a.events)-2; i-- {
		if !a.events[i].summaryOnly() {
			return a.events[i], true
		}
	}
	return Event{}, false
}

// Summary returns the summary fragment, if any.
func (a *Aggregation) Summary() (Event, bool) {
	for i := len(a.events) - 1; i >= 0; i-- {
		if a.events[i].Summary {
			return a.events[i], true
		}
	}
	return Event{}, false
}

// Fragments returns the fragments that take part in per-fragment
// comparison: summary-only trailers are dropped and summary keys are
// stripped from the rest.
func (a *Aggregation) Fragments() []Event {
	out := make([]Event, 0, len(a.events))
	for _, e := range a.events {
		if e.summaryOnly() {
			continue
		}
		e.Data = e.Data.Without(a.strip...)
		out = append(out, e)
	}
	return out
}

// Tree shapes the comparable fragments into a single value tree.
func (a *Aggregation) Tree(layout Layout) tree.Value {
	frags := a.Fragments()
	if layout != LayoutSplit {
		items := make([]tree.Value, len(frags))
		for i, e := range frags {
			items[i] = e.Data
		}
		return tree.Sequence(items...)
	}

	m := map[string]tree.Value{"terminal": tree.Null()}
	body := frags
	if n := len(frags); n > 0 && frags[n-1].Terminal {
		m["terminal"] = frags[n-1].Data
		body = frags[:n-1]
	}
	items := make([]tree.Value, len(body))
	for i, e := range body {
		items[i] = e.Data
	}
	m["fragments"] = tree.Sequence(items...)
	return tree.Mapping(m)
}

// TerminalPath returns the path of the terminal fragment inside Tree(layout).
func (a *Aggregation) TerminalPath(layout Layout) tree.Path {
	if layout == LayoutSplit {
		return tree.Root().Key("terminal")
	}
	return tree.Root().Index(len(a.Fragments()) - 1)
}

func (a *Aggregation) validate() error {
	if len(a.events) == 0 {
		return ErrEmptyStream
	}
	if t, ok := a.Terminal(); !ok || !t.Terminal {
		return ErrNoFinishSignal
	}
	for i, e := range a.events {
		if e.Summary && i < len(a.events)-2 {
			return fmt.Errorf("%w: fragment %d of %d", ErrMisplacedSummary, i, len(a.events))
		}
	}
	return nil
}

type aggregationJSON struct {
	Events    []Event  `json:"events"`
	StripKeys []string `json:"strip_keys,omitempty"`
}

// MarshalJSON renders the events and the stripped summary keys.
func (a *Aggregation) MarshalJSON() ([]byte, error) {
	return json.Marshal(aggregationJSON{Events: a.events, StripKeys: a.strip})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Aggregation) UnmarshalJSON(data []byte) error {
	var raw aggregationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = *NewAggregation(raw.Events, raw.StripKeys...)
	return nil
}
