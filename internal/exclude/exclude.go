// Package exclude decides which structural paths are volatile and must be
// left out of a comparison: identifiers, timestamps, provider metadata,
// generated content.
package exclude

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// ErrInvalidPattern is returned for exclusion strings that cannot be parsed.
var ErrInvalidPattern = errors.New("invalid exclusion pattern")

// Matcher is a stateless predicate over structural paths. A matcher that
// selects a node also selects everything beneath it.
type Matcher interface {
	Match(p tree.Path) bool
	String() string
}

// Literal matches exactly one path (and its subtree).
type Literal struct {
	path tree.Path
}

// NewLiteral returns a matcher for p.
func NewLiteral(p tree.Path) Literal { return Literal{path: p} }

// Match implements Matcher.
func (l Literal) Match(p tree.Path) bool { return p.HasPrefix(l.path) }

func (l Literal) String() string { return l.path.String() }

// Exact narrows m to the paths it names, leaving their subtrees out.
func Exact(m Matcher) Matcher {
	if m == nil {
		return nil
	}
	return exact{m}
}

type exact struct{ m Matcher }

func (e exact) Match(p tree.Path) bool {
	switch m := e.m.(type) {
	case Literal:
		return p.Equal(m.path)
	case Pattern:
		return m.re.MatchString(p.String())
	case exact:
		return m.Match(p)
	}
	return e.m.Match(p) && (p.Len() == 0 || !e.m.Match(p.Parent()))
}

func (e exact) String() string { return e.m.String() }

// Parse turns an exclusion string into a Matcher. Strings carrying
// wildcards or the "re:" prefix become Patterns; anything else is a
// Literal path.
func Parse(s string) (Matcher, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	if strings.HasPrefix(s, regexPrefix) || strings.Contains(s, "*") {
		return CompilePattern(s)
	}
	p, err := tree.ParsePath(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return NewLiteral(p), nil
}

// Rules is an ordered collection of matchers with set semantics: a path is
// excluded when any rule matches it, regardless of rule order.
type Rules []Matcher

// ParseAll parses each string with Parse.
func ParseAll(specs []string) (Rules, error) {
	rules := make(Rules, 0, len(specs))
	for _, s := range specs {
		m, err := Parse(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, m)
	}
	return rules, nil
}

// MustRules is ParseAll for literals known to be valid.
func MustRules(specs ...string) Rules {
	r, err := ParseAll(specs)
	if err != nil {
		panic(err)
	}
	return r
}

// Match reports whether any rule matches p.
func (r Rules) Match(p tree.Path) bool {
	for _, m := range r {
		if m.Match(p) {
			return true
		}
	}
	return false
}

// With returns a new rule set holding r followed by more.
func (r Rules) With(more ...Matcher) Rules {
	out := make(Rules, 0, len(r)+len(more))
	out = append(out, r...)
	return append(out, more...)
}

// Strings returns the source form of every rule.
func (r Rules) Strings() []string {
	out := make([]string, len(r))
	for i, m := range r {
		out[i] = m.String()
	}
	return out
}

// MarshalJSON renders the rules as their source strings.
func (r Rules) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Strings())
}

// UnmarshalJSON parses a JSON array of exclusion strings.
func (r *Rules) UnmarshalJSON(data []byte) error {
	var specs []string
	if err := json.Unmarshal(data, &specs); err != nil {
		return err
	}
	parsed, err := ParseAll(specs)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
