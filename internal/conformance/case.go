package conformance

import (
	"errors"
	"fmt"

	"github.com/bodhi-compat/compatcheck/internal/diff"
	"github.com/bodhi-compat/compatcheck/internal/exclude"
	"github.com/bodhi-compat/compatcheck/internal/stream"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// UsagePolicy decides how token-usage payloads are compared.
type UsagePolicy string

const (
	// UsageCompare diffs usage like any other field. Token counts that are
	// expected to differ must be declared as variances.
	UsageCompare UsagePolicy = "compare"
	// UsagePresence only requires both sides to agree on whether usage is
	// reported at all.
	UsagePresence UsagePolicy = "presence"
	// UsageRequire is UsagePresence plus a usage_present check on both
	// sides.
	UsageRequire UsagePolicy = "require"
	// UsageIgnore drops usage from the comparison.
	UsageIgnore UsagePolicy = "ignore"
)

// Valid reports whether p is a known policy. The empty policy is UsageCompare.
func (p UsagePolicy) Valid() bool {
	switch p {
	case "", UsageCompare, UsagePresence, UsageRequire, UsageIgnore:
		return true
	}
	return false
}

// Case is one conformance scenario.
type Case struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Operation   Operation      `json:"operation" yaml:"operation"`
	Stimulus    map[string]any `json:"stimulus,omitempty" yaml:"stimulus,omitempty"`
	Streaming   bool           `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	// Exclude lists volatile paths as literal paths or patterns.
	Exclude   []string      `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Variances []Variance    `json:"variances,omitempty" yaml:"variances,omitempty"`
	Usage     UsagePolicy   `json:"usage,omitempty" yaml:"usage,omitempty"`
	Layout    stream.Layout `json:"layout,omitempty" yaml:"layout,omitempty"`
	Checks    []Check       `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// Variance declares an acceptable difference. Entries of Category whose
// path is named by Path (every path when empty) and whose old and new values
// equal Old and New (any value when nil) are claimed. A variance that claims
// nothing fails the case unless Optional is set. Unlike an exclusion, Path
// does not reach into subtrees: a variance at fragments[*] claims whole
// fragments only.
type Variance struct {
	Category diff.Category `json:"category" yaml:"category"`
	Path     string        `json:"path,omitempty" yaml:"path,omitempty"`
	Old      any           `json:"old,omitempty" yaml:"old,omitempty"`
	New      any           `json:"new,omitempty" yaml:"new,omitempty"`
	Optional bool          `json:"optional,omitempty" yaml:"optional,omitempty"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (v Variance) String() string {
	path := v.Path
	if path == "" {
		path = "*"
	}
	s := fmt.Sprintf("%s at %s", v.Category, path)
	if v.Old != nil || v.New != nil {
		s += fmt.Sprintf(" (%v -> %v)", v.Old, v.New)
	}
	return s
}

// Validate reports the first problem that would stop the case from running.
func (c Case) Validate() error {
	_, err := c.compile()
	return err
}

// plan is a Case with every string form parsed.
type plan struct {
	rules     exclude.Rules
	variances []compiledVariance
	checks    []compiledCheck
	layout    stream.Layout
	usage     UsagePolicy
	finish    bool
}

type compiledVariance struct {
	Variance
	matcher  exclude.Matcher
	old, new *tree.Value
}

func (v compiledVariance) accept(e diff.Entry) bool {
	if v.old != nil && (!e.HasOld() || !tree.Equal(*v.old, e.Old)) {
		return false
	}
	if v.new != nil && (!e.HasNew() || !tree.Equal(*v.new, e.New)) {
		return false
	}
	return true
}

func (c Case) compile() (*plan, error) {
	if c.Name == "" {
		return nil, errors.New("case: name is required")
	}
	if !c.Operation.Valid() {
		return nil, fmt.Errorf("case %s: unknown operation %q", c.Name, c.Operation)
	}
	if c.Streaming && c.Operation != OpChatCompletions {
		return nil, fmt.Errorf("case %s: %w", c.Name, &UnsupportedOperationError{Operation: c.Operation, Streaming: true})
	}
	if !c.Usage.Valid() {
		return nil, fmt.Errorf("case %s: unknown usage policy %q", c.Name, c.Usage)
	}

	p := &plan{usage: c.Usage, layout: c.Layout, finish: c.Streaming}
	if p.usage == "" {
		p.usage = UsageCompare
	}
	switch p.layout {
	case "":
		p.layout = stream.LayoutSequence
	case stream.LayoutSequence, stream.LayoutSplit:
	default:
		return nil, fmt.Errorf("case %s: unknown stream layout %q", c.Name, c.Layout)
	}

	rules, err := exclude.ParseAll(c.Exclude)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", c.Name, err)
	}
	p.rules = rules

	for i, v := range c.Variances {
		cv, err := compileVariance(v)
		if err != nil {
			return nil, fmt.Errorf("case %s: variance %d: %w", c.Name, i, err)
		}
		p.variances = append(p.variances, cv)
	}

	for i, ck := range c.Checks {
		cc, err := compileCheck(ck)
		if err != nil {
			return nil, fmt.Errorf("case %s: check %d: %w", c.Name, i, err)
		}
		if cc.Kind == CheckFinishSignalsAgree {
			p.finish = true
		}
		p.checks = append(p.checks, cc)
	}
	if p.usage == UsageRequire {
		p.checks = append(p.checks, compiledCheck{Check: UsagePresent("")})
	}
	return p, nil
}

func compileVariance(v Variance) (compiledVariance, error) {
	cv := compiledVariance{Variance: v}
	if !v.Category.Valid() {
		return cv, fmt.Errorf("unknown category %q", v.Category)
	}
	if v.Path != "" {
		m, err := exclude.Parse(v.Path)
		if err != nil {
			return cv, err
		}
		cv.matcher = exclude.Exact(m)
	}
	if v.Old != nil {
		old, err := tree.FromAny(v.Old)
		if err != nil {
			return cv, fmt.Errorf("old value: %w", err)
		}
		cv.old = &old
	}
	if v.New != nil {
		nv, err := tree.FromAny(v.New)
		if err != nil {
			return cv, fmt.Errorf("new value: %w", err)
		}
		cv.new = &nv
	}
	return cv, nil
}
