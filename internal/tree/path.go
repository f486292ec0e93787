package tree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RootName is the sentinel every rendered path starts with.
const RootName = "root"

var plainKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

// Segment is one step of a Path: a mapping key or a sequence index.
type Segment struct {
	key     string
	index   int
	isIndex bool
}

// KeySegment returns a mapping-key segment.
func KeySegment(k string) Segment { return Segment{key: k} }

// IndexSegment returns a sequence-index segment.
func IndexSegment(i int) Segment { return Segment{index: i, isIndex: true} }

// IsIndex reports whether the segment addresses a sequence element.
func (s Segment) IsIndex() bool { return s.isIndex }

// Key returns the mapping key of a key segment.
func (s Segment) Key() string { return s.key }

// Index returns the position of an index segment.
func (s Segment) Index() int { return s.index }

func (s Segment) String() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	if plainKey.MatchString(s.key) {
		return "." + s.key
	}
	return "['" + strings.ReplaceAll(strings.ReplaceAll(s.key, `\`, `\\`), `'`, `\'`) + "']"
}

// Path addresses a node from the root of a tree. Paths are values; the
// builder methods never modify the receiver.
type Path struct {
	segs []Segment
}

// Root returns the empty path.
func Root() Path { return Path{} }

// Key returns p extended by a mapping key.
func (p Path) Key(k string) Path { return p.with(KeySegment(k)) }

// Index returns p extended by a sequence index.
func (p Path) Index(i int) Path { return p.with(IndexSegment(i)) }

func (p Path) with(s Segment) Path {
	segs := make([]Segment, len(p.segs), len(p.segs)+1)
	copy(segs, p.segs)
	return Path{segs: append(segs, s)}
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// Segments returns a copy of the segments.
func (p Path) Segments() []Segment {
	cp := make([]Segment, len(p.segs))
	copy(cp, p.segs)
	return cp
}

// Parent returns p without its last segment. The parent of Root is Root.
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{segs: p.segs[:len(p.segs)-1]}
}

// Ancestors returns p and every proper prefix of p, longest first,
// ending with Root.
func (p Path) Ancestors() []Path {
	out := make([]Path, 0, len(p.segs)+1)
	for n := len(p.segs); n >= 0; n-- {
		out = append(out, Path{segs: p.segs[:n]})
	}
	return out
}

// HasPrefix reports whether q is p or an ancestor of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q.segs) > len(p.segs) {
		return false
	}
	for i := range q.segs {
		if p.segs[i] != q.segs[i] {
			return false
		}
	}
	return true
}

// Equal reports segment-wise equality.
func (p Path) Equal(q Path) bool {
	return len(p.segs) == len(q.segs) && p.HasPrefix(q)
}

// String renders the canonical form, e.g. root.choices[0].delta['x.y'].
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(RootName)
	for _, s := range p.segs {
		b.WriteString(s.String())
	}
	return b.String()
}

// MarshalText renders the canonical form.
func (p Path) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// ParsePath parses a dotted/bracketed path. The leading root sentinel is
// optional: "usage.total_tokens", "root.usage.total_tokens", and
// "root['usage'].total_tokens" address the same node.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	rest := s
	if strings.HasPrefix(rest, RootName) {
		after := rest[len(RootName):]
		if after == "" || after[0] == '.' || after[0] == '[' {
			rest = after
		}
	}
	var p Path
	for i := 0; i < len(rest); {
		switch c := rest[i]; {
		case c == '.':
			j := i + 1
			for j < len(rest) && rest[j] != '.' && rest[j] != '[' {
				j++
			}
			if j == i+1 {
				return Path{}, fmt.Errorf("tree: parse path %q: empty key at offset %d", s, i)
			}
			p = p.Key(rest[i+1 : j])
			i = j
		case c == '[':
			seg, n, err := parseBracket(rest[i:])
			if err != nil {
				return Path{}, fmt.Errorf("tree: parse path %q: %w", s, err)
			}
			p = p.with(seg)
			i += n
		case i == 0:
			// Leading bare key: "usage.total_tokens".
			j := 0
			for j < len(rest) && rest[j] != '.' && rest[j] != '[' {
				j++
			}
			p = p.Key(rest[:j])
			i = j
		default:
			return Path{}, fmt.Errorf("tree: parse path %q: unexpected %q at offset %d", s, c, i)
		}
	}
	return p, nil
}

// MustPath is ParsePath for literals known to be valid.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseBracket(s string) (Segment, int, error) {
	if len(s) > 1 && (s[1] == '\'' || s[1] == '"') {
		quote := s[1]
		var b strings.Builder
		for i := 2; i < len(s); i++ {
			switch {
			case s[i] == '\\' && i+1 < len(s):
				b.WriteByte(s[i+1])
				i++
			case s[i] == quote:
				if i+1 >= len(s) || s[i+1] != ']' {
					return Segment{}, 0, fmt.Errorf("unterminated key segment")
				}
				return KeySegment(b.String()), i + 2, nil
			default:
				b.WriteByte(s[i])
			}
		}
		return Segment{}, 0, fmt.Errorf("unterminated key segment")
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return Segment{}, 0, fmt.Errorf("unterminated index segment")
	}
	n, err := strconv.Atoi(s[1:end])
	if err != nil || n < 0 {
		return Segment{}, 0, fmt.Errorf("invalid index %q", s[1:end])
	}
	return IndexSegment(n), end + 1, nil
}
