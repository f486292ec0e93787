// Package diff computes categorized structural differences between two
// value trees and provides the report type consumers claim variances from.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bodhi-compat/compatcheck/internal/exclude"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// Category classifies a difference.
type Category string

const (
	ValueChanged Category = "values_changed"
	TypeChanged  Category = "type_changes"
	ItemAdded    Category = "item_added"
	ItemRemoved  Category = "item_removed"
)

// Categories lists every category in rendering order.
var Categories = []Category{ValueChanged, TypeChanged, ItemAdded, ItemRemoved}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case ValueChanged, TypeChanged, ItemAdded, ItemRemoved:
		return true
	}
	return false
}

// Entry is one difference. Old is unset for ItemAdded, New for ItemRemoved.
type Entry struct {
	Category Category
	Path     tree.Path
	Old      tree.Value
	New      tree.Value
}

// HasOld reports whether the entry carries a left-hand value.
func (e Entry) HasOld() bool { return e.Category != ItemAdded }

// HasNew reports whether the entry carries a right-hand value.
func (e Entry) HasNew() bool { return e.Category != ItemRemoved }

func (e Entry) String() string {
	switch e.Category {
	case ItemAdded:
		return fmt.Sprintf("%s: + %s", e.Path, e.New)
	case ItemRemoved:
		return fmt.Sprintf("%s: - %s", e.Path, e.Old)
	case TypeChanged:
		return fmt.Sprintf("%s: %s %s -> %s %s", e.Path, e.Old.Kind(), e.Old, e.New.Kind(), e.New)
	}
	return fmt.Sprintf("%s: %s -> %s", e.Path, e.Old, e.New)
}

type entryJSON struct {
	OldType  string      `json:"old_type,omitempty"`
	NewType  string      `json:"new_type,omitempty"`
	OldValue *tree.Value `json:"old_value,omitempty"`
	NewValue *tree.Value `json:"new_value,omitempty"`
}

// Report maps category to canonical path to entry. A Report is immutable;
// every operation returns a new one. The zero Report is empty.
type Report struct {
	entries map[Category]map[string]Entry
}

// Len returns the total number of entries.
func (r Report) Len() int {
	n := 0
	for _, m := range r.entries {
		n += len(m)
	}
	return n
}

// Empty reports whether r holds no entries.
func (r Report) Empty() bool { return r.Len() == 0 }

// Count returns the number of entries in one category.
func (r Report) Count(c Category) int { return len(r.entries[c]) }

// Counts returns the number of entries per non-empty category.
func (r Report) Counts() map[Category]int {
	out := make(map[Category]int, len(r.entries))
	for c, m := range r.entries {
		if len(m) > 0 {
			out[c] = len(m)
		}
	}
	return out
}

// Get returns the entry of category c at the given canonical path.
func (r Report) Get(c Category, path string) (Entry, bool) {
	e, ok := r.entries[c][path]
	return e, ok
}

// Entries returns the entries of one category sorted by path.
func (r Report) Entries(c Category) []Entry {
	m := r.entries[c]
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

// All returns every entry, grouped by category in rendering order.
func (r Report) All() []Entry {
	var out []Entry
	for _, c := range Categories {
		out = append(out, r.Entries(c)...)
	}
	return out
}

// Filter returns r without the entries whose path matches rules.
func (r Report) Filter(rules exclude.Rules) Report {
	return r.Select(func(e Entry) bool { return !rules.Match(e.Path) })
}

// Select returns the entries for which keep returns true.
func (r Report) Select(keep func(Entry) bool) Report {
	var b builder
	for _, e := range r.All() {
		if keep(e) {
			b.add(e)
		}
	}
	return b.report()
}

// Claim splits r into the entries of category c whose path matches m (nil
// matches every path) and for which accept returns true (nil accepts all),
// and the remainder.
func (r Report) Claim(c Category, m exclude.Matcher, accept func(Entry) bool) (claimed, rest Report) {
	var cb, rb builder
	for _, e := range r.All() {
		if e.Category == c && (m == nil || m.Match(e.Path)) && (accept == nil || accept(e)) {
			cb.add(e)
			continue
		}
		rb.add(e)
	}
	return cb.report(), rb.report()
}

// Merge returns the union of r and other. Entries of other win on conflict.
func (r Report) Merge(other Report) Report {
	var b builder
	for _, e := range r.All() {
		b.add(e)
	}
	for _, e := range other.All() {
		b.add(e)
	}
	return b.report()
}

// String renders the report for humans, one entry per line.
func (r Report) String() string {
	if r.Empty() {
		return "{}"
	}
	var sb strings.Builder
	for _, c := range Categories {
		entries := r.Entries(c)
		if len(entries) == 0 {
			continue
		}
		sb.WriteString(string(c))
		sb.WriteString(":\n")
		for _, e := range entries {
			sb.WriteString("  ")
			sb.WriteString(e.String())
			sb.WriteString("\n")
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// MarshalJSON renders category -> path -> {old_value, new_value}.
func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[Category]map[string]entryJSON, len(r.entries))
	for c, m := range r.entries {
		if len(m) == 0 {
			continue
		}
		cat := make(map[string]entryJSON, len(m))
		for k, e := range m {
			var ej entryJSON
			if e.HasOld() {
				old := e.Old
				ej.OldValue = &old
			}
			if e.HasNew() {
				nv := e.New
				ej.NewValue = &nv
			}
			if c == TypeChanged {
				ej.OldType = e.Old.Kind().String()
				ej.NewType = e.New.Kind().String()
			}
			cat[k] = ej
		}
		out[c] = cat
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw map[Category]map[string]entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var b builder
	for c, m := range raw {
		if !c.Valid() {
			return fmt.Errorf("diff: unknown category %q", c)
		}
		for k, ej := range m {
			p, err := tree.ParsePath(k)
			if err != nil {
				return fmt.Errorf("diff: %w", err)
			}
			e := Entry{Category: c, Path: p}
			// A JSON null decodes to a nil pointer; both mean a null value.
			if ej.OldValue != nil {
				e.Old = *ej.OldValue
			}
			if ej.NewValue != nil {
				e.New = *ej.NewValue
			}
			b.add(e)
		}
	}
	*r = b.report()
	return nil
}

// builder accumulates entries; it is the only mutable view of a report.
type builder struct {
	entries map[Category]map[string]Entry
}

func (b *builder) add(e Entry) {
	if b.entries == nil {
		b.entries = make(map[Category]map[string]Entry)
	}
	m, ok := b.entries[e.Category]
	if !ok {
		m = make(map[string]Entry)
		b.entries[e.Category] = m
	}
	m[e.Path.String()] = e
}

func (b *builder) report() Report {
	r := Report{entries: b.entries}
	b.entries = nil
	return r
}

// NewReport builds a report from explicit entries. Useful for declaring
// expected diagnostics.
func NewReport(entries ...Entry) Report {
	var b builder
	for _, e := range entries {
		b.add(e)
	}
	return b.report()
}
