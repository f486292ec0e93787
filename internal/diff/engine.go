package diff

import (
	"github.com/bodhi-compat/compatcheck/internal/exclude"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// Options control a single Diff call.
type Options struct {
	// IgnoreOrder pairs sequence elements by deep equality instead of
	// position.
	IgnoreOrder bool
	// Exclude prunes matching subtrees during the walk. Equality used for
	// order-insensitive pairing ignores excluded paths as well.
	Exclude exclude.Rules
}

// Diff compares left (reference) against right (candidate). It is a pure
// function: neither operand is modified and the returned report is fresh.
//
//   - mapping keys only in left are ItemRemoved, only in right ItemAdded;
//     a null value is still a present key;
//   - ordered sequences compare by index, the longer tail is
//     ItemAdded/ItemRemoved;
//   - unordered sequences pair each left element with the first unpaired
//     equal right element; leftovers are ItemRemoved/ItemAdded;
//   - differing node kinds are TypeChanged and are not descended into;
//   - unequal scalars of one kind are ValueChanged.
func Diff(left, right tree.Value, opts Options) Report {
	d := &differ{opts: opts}
	d.walk(tree.Root(), left, right)
	return d.out.report()
}

// Filter removes every entry whose path matches any of rules.
func Filter(r Report, rules exclude.Rules) Report {
	return r.Filter(rules)
}

type differ struct {
	opts Options
	out  builder
}

func (d *differ) excluded(p tree.Path) bool {
	return len(d.opts.Exclude) > 0 && d.opts.Exclude.Match(p)
}

func (d *differ) emit(e Entry) {
	if d.excluded(e.Path) {
		return
	}
	d.out.add(e)
}

func (d *differ) walk(p tree.Path, l, r tree.Value) {
	if d.excluded(p) {
		return
	}
	if l.Kind() != r.Kind() {
		d.emit(Entry{Category: TypeChanged, Path: p, Old: l, New: r})
		return
	}
	switch l.Kind() {
	case tree.KindMapping:
		d.walkMapping(p, l, r)
	case tree.KindSequence:
		if d.opts.IgnoreOrder {
			d.walkUnordered(p, l, r)
		} else {
			d.walkOrdered(p, l, r)
		}
	default:
		if !tree.Equal(l, r) {
			d.emit(Entry{Category: ValueChanged, Path: p, Old: l, New: r})
		}
	}
}

func (d *differ) walkMapping(p tree.Path, l, r tree.Value) {
	for _, k := range unionKeys(l, r) {
		lv, lok := l.Get(k)
		rv, rok := r.Get(k)
		cp := p.Key(k)
		switch {
		case !rok:
			d.emit(Entry{Category: ItemRemoved, Path: cp, Old: lv})
		case !lok:
			d.emit(Entry{Category: ItemAdded, Path: cp, New: rv})
		default:
			d.walk(cp, lv, rv)
		}
	}
}

func (d *differ) walkOrdered(p tree.Path, l, r tree.Value) {
	ls, rs := l.Items(), r.Items()
	n := min(len(ls), len(rs))
	for i := 0; i < n; i++ {
		d.walk(p.Index(i), ls[i], rs[i])
	}
	for i := n; i < len(ls); i++ {
		d.emit(Entry{Category: ItemRemoved, Path: p.Index(i), Old: ls[i]})
	}
	for i := n; i < len(rs); i++ {
		d.emit(Entry{Category: ItemAdded, Path: p.Index(i), New: rs[i]})
	}
}

func (d *differ) walkUnordered(p tree.Path, l, r tree.Value) {
	ls, rs := l.Items(), r.Items()
	partner := d.pair(p, ls, rs)
	paired := make([]bool, len(rs))
	for i, lv := range ls {
		j := partner[i]
		if j < 0 {
			d.emit(Entry{Category: ItemRemoved, Path: p.Index(i), Old: lv})
			continue
		}
		paired[j] = true
		// Paired elements are equivalent modulo exclusions, so this emits nothing.
		d.walk(p.Index(i), lv, rs[j])
	}
	for j, rv := range rs {
		if !paired[j] {
			d.emit(Entry{Category: ItemAdded, Path: p.Index(j), New: rv})
		}
	}
}

// pair computes a maximum matching between ls and rs under equivalence and
// returns, for each left index, its right partner or -1. Left elements are
// placed in order, each taking the first free equivalent right element and
// otherwise displacing earlier pairings along an augmenting path.
func (d *differ) pair(p tree.Path, ls, rs []tree.Value) []int {
	adj := make([][]int, len(ls))
	for i, lv := range ls {
		for j, rv := range rs {
			if d.equivalent(p.Index(i), lv, rv) {
				adj[i] = append(adj[i], j)
			}
		}
	}
	owner := make([]int, len(rs))
	for j := range owner {
		owner[j] = -1
	}
	var augment func(i int, seen []bool) bool
	augment = func(i int, seen []bool) bool {
		for _, j := range adj[i] {
			if owner[j] < 0 {
				owner[j] = i
				return true
			}
		}
		for _, j := range adj[i] {
			if seen[j] {
				continue
			}
			seen[j] = true
			if augment(owner[j], seen) {
				owner[j] = i
				return true
			}
		}
		return false
	}
	for i := range ls {
		augment(i, make([]bool, len(rs)))
	}

	partner := make([]int, len(ls))
	for i := range partner {
		partner[i] = -1
	}
	for j, i := range owner {
		if i >= 0 {
			partner[i] = j
		}
	}
	return partner
}

// equivalent is walk without reporting: it reports whether comparing l and
// r at p would produce no entries.
func (d *differ) equivalent(p tree.Path, l, r tree.Value) bool {
	if d.excluded(p) {
		return true
	}
	if len(d.opts.Exclude) == 0 && !d.opts.IgnoreOrder {
		return tree.Equal(l, r)
	}
	if l.Kind() != r.Kind() {
		return false
	}
	switch l.Kind() {
	case tree.KindMapping:
		for _, k := range unionKeys(l, r) {
			cp := p.Key(k)
			lv, lok := l.Get(k)
			rv, rok := r.Get(k)
			if lok != rok {
				if !d.excluded(cp) {
					return false
				}
				continue
			}
			if !d.equivalent(cp, lv, rv) {
				return false
			}
		}
		return true
	case tree.KindSequence:
		ls, rs := l.Items(), r.Items()
		if !d.opts.IgnoreOrder {
			n := max(len(ls), len(rs))
			for i := 0; i < n; i++ {
				cp := p.Index(i)
				if i >= len(ls) || i >= len(rs) {
					if !d.excluded(cp) {
						return false
					}
					continue
				}
				if !d.equivalent(cp, ls[i], rs[i]) {
					return false
				}
			}
			return true
		}
		partner := d.pair(p, ls, rs)
		paired := make([]bool, len(rs))
		for i, j := range partner {
			if j >= 0 {
				paired[j] = true
			} else if !d.excluded(p.Index(i)) {
				return false
			}
		}
		for j, ok := range paired {
			if !ok && !d.excluded(p.Index(j)) {
				return false
			}
		}
		return true
	}
	return tree.Equal(l, r)
}

func unionKeys(l, r tree.Value) []string {
	keys := l.Keys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for _, k := range r.Keys() {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	return keys
}
