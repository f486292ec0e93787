package conformance

import (
	"errors"
	"fmt"

	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// CheckKind names a domain invariant evaluated next to the structural diff.
type CheckKind string

const (
	// CheckJSONContent requires a string field to hold serialized JSON equal
	// to Want.
	CheckJSONContent CheckKind = "json_content"
	// CheckFinishSignalsAgree requires both sides to end with the same
	// finish reason, even when finish_reason is excluded from the diff.
	// Streaming cases always carry it.
	CheckFinishSignalsAgree CheckKind = "finish_signals_agree"
	// CheckUsagePresent requires a usage payload.
	CheckUsagePresent CheckKind = "usage_present"
	// CheckNonEmpty requires the value at Path to be a non-empty sequence,
	// mapping or string.
	CheckNonEmpty CheckKind = "non_empty"
)

// Check is a declared domain invariant. Side restricts it to one side; the
// empty side means both.
type Check struct {
	Kind CheckKind `json:"kind" yaml:"kind"`
	Side Side      `json:"side,omitempty" yaml:"side,omitempty"`
	Path string    `json:"path,omitempty" yaml:"path,omitempty"`
	Want any       `json:"want,omitempty" yaml:"want,omitempty"`
}

// JSONContent builds a CheckJSONContent.
func JSONContent(side Side, path string, want any) Check {
	return Check{Kind: CheckJSONContent, Side: side, Path: path, Want: want}
}

// FinishSignalsAgree builds a CheckFinishSignalsAgree.
func FinishSignalsAgree() Check { return Check{Kind: CheckFinishSignalsAgree} }

// UsagePresent builds a CheckUsagePresent.
func UsagePresent(side Side) Check { return Check{Kind: CheckUsagePresent, Side: side} }

// NonEmpty builds a CheckNonEmpty.
func NonEmpty(side Side, path string) Check {
	return Check{Kind: CheckNonEmpty, Side: side, Path: path}
}

type compiledCheck struct {
	Check
	path tree.Path
	want tree.Value
}

func compileCheck(c Check) (compiledCheck, error) {
	cc := compiledCheck{Check: c}
	if !c.Side.Valid() {
		return cc, fmt.Errorf("unknown side %q", c.Side)
	}
	switch c.Kind {
	case CheckFinishSignalsAgree, CheckUsagePresent:
		return cc, nil
	case CheckJSONContent, CheckNonEmpty:
	default:
		return cc, fmt.Errorf("unknown check kind %q", c.Kind)
	}
	p, err := tree.ParsePath(c.Path)
	if err != nil {
		return cc, err
	}
	cc.path = p
	if c.Kind == CheckJSONContent {
		want, err := tree.FromAny(c.Want)
		if err != nil {
			return cc, fmt.Errorf("want: %w", err)
		}
		cc.want = want
	}
	return cc, nil
}

func (c compiledCheck) sides() []Side {
	if c.Side == "" {
		return Sides
	}
	return []Side{c.Side}
}

// evaluate returns one violation per side that breaks the invariant.
// Finish signals are compared structurally elsewhere and never violate here.
func (c compiledCheck) evaluate(obs map[Side]observation) []*SchemaViolationError {
	var out []*SchemaViolationError
	for _, side := range c.sides() {
		o := obs[side]
		var err *SchemaViolationError
		switch c.Kind {
		case CheckJSONContent:
			err = c.jsonContent(o)
		case CheckNonEmpty:
			err = c.nonEmpty(o)
		case CheckUsagePresent:
			if _, ok := o.usage(); !ok {
				err = c.violation(side, "", errors.New("usage payload missing"))
			}
		}
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

func (c compiledCheck) jsonContent(o observation) *SchemaViolationError {
	v, ok := o.value.Lookup(c.path)
	if !ok {
		return c.violation(o.side, "", errors.New("path not found"))
	}
	s, ok := v.Str()
	if !ok {
		return c.violation(o.side, v.String(), fmt.Errorf("expected a string, got %s", v.Kind()))
	}
	got, err := tree.FromJSON([]byte(s))
	if err != nil {
		return c.violation(o.side, s, fmt.Errorf("content is not JSON: %w", err))
	}
	if !tree.Equal(got, c.want) {
		return c.violation(o.side, s, fmt.Errorf("decoded content %s does not equal %s", got, c.want))
	}
	return nil
}

func (c compiledCheck) nonEmpty(o observation) *SchemaViolationError {
	v, ok := o.value.Lookup(c.path)
	if !ok {
		return c.violation(o.side, "", errors.New("path not found"))
	}
	switch v.Kind() {
	case tree.KindSequence, tree.KindMapping:
		if v.Len() > 0 {
			return nil
		}
	case tree.KindString:
		if s, _ := v.Str(); s != "" {
			return nil
		}
	}
	return c.violation(o.side, v.String(), errors.New("value is empty"))
}

func (c compiledCheck) violation(side Side, raw string, err error) *SchemaViolationError {
	return &SchemaViolationError{Check: c.Kind, Side: side, Path: c.Path, Raw: raw, Err: err}
}
