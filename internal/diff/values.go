package diff

import (
	"fmt"

	"github.com/bodhi-compat/compatcheck/internal/exclude"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// Request is an ad-hoc comparison of two decoded documents, as accepted by
// the HTTP and MCP surfaces.
type Request struct {
	Left        any      `json:"left"`
	Right       any      `json:"right"`
	IgnoreOrder bool     `json:"ignore_order,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
}

// Do normalizes both documents, compiles the exclusions and diffs them.
func (q Request) Do() (Report, error) {
	rules, err := exclude.ParseAll(q.Exclude)
	if err != nil {
		return Report{}, err
	}
	left, err := tree.FromAny(q.Left)
	if err != nil {
		return Report{}, fmt.Errorf("diff: left: %w", err)
	}
	right, err := tree.FromAny(q.Right)
	if err != nil {
		return Report{}, fmt.Errorf("diff: right: %w", err)
	}
	return Diff(left, right, Options{IgnoreOrder: q.IgnoreOrder, Exclude: rules}), nil
}
