package exclude

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bodhi-compat/compatcheck/internal/tree"
)

const regexPrefix = "re:"

const (
	reKey     = `(?:\.[A-Za-z_][A-Za-z0-9_\-]*|\['(?:[^'\\]|\\.)*'\])`
	reIndex   = `\[\d+\]`
	reAnySegs = `(?:` + reKey + `|` + reIndex + `)*`
)

// Pattern matches the canonical rendering of a path.
//
// Glob syntax: "[*]" is any sequence index, "*" any single mapping key,
// "**" any run of segments. A glob that does not start with the root
// sentinel may match at any depth, on a segment boundary, so
// "choices[*].delta.content" selects root[4].choices[0].delta.content.
// A "re:" prefix supplies a regular expression searched within the
// rendering instead.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// CompilePattern compiles a glob or "re:" pattern.
func CompilePattern(s string) (Pattern, error) {
	if expr, ok := strings.CutPrefix(s, regexPrefix); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return Pattern{source: s, re: re}, nil
	}
	expr, err := globToRegexp(s)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, s, err)
	}
	return Pattern{source: s, re: regexp.MustCompile(expr)}, nil
}

// MustPattern is CompilePattern for literals known to be valid.
func MustPattern(s string) Pattern {
	p, err := CompilePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Match implements Matcher.
func (p Pattern) Match(path tree.Path) bool {
	for _, a := range path.Ancestors() {
		if p.re.MatchString(a.String()) {
			return true
		}
	}
	return false
}

func (p Pattern) String() string { return p.source }

func globToRegexp(glob string) (string, error) {
	rest := glob
	rooted := false
	if after, ok := strings.CutPrefix(rest, tree.RootName); ok && (after == "" || after[0] == '.' || after[0] == '[') {
		rooted = true
		rest = after
	}

	var b strings.Builder
	b.WriteString("^" + tree.RootName)
	if !rooted {
		b.WriteString(reAnySegs)
	}
	for i := 0; i < len(rest); {
		c := rest[i]
		switch {
		case c == '.' || i == 0 && c != '[':
			start := i
			if c == '.' {
				start = i + 1
			}
			j := start
			for j < len(rest) && rest[j] != '.' && rest[j] != '[' {
				j++
			}
			name := rest[start:j]
			switch name {
			case "":
				return "", fmt.Errorf("empty key at offset %d", i)
			case "*":
				b.WriteString(reKey)
			case "**":
				b.WriteString(reAnySegs)
			default:
				if strings.Contains(name, "*") {
					return "", fmt.Errorf("partial key wildcard %q is not supported", name)
				}
				b.WriteString(regexp.QuoteMeta(tree.KeySegment(name).String()))
			}
			i = j
		case c == '[':
			end := strings.IndexByte(rest[i:], ']')
			if end < 0 {
				return "", fmt.Errorf("unterminated bracket at offset %d", i)
			}
			inner := rest[i+1 : i+end]
			switch {
			case inner == "*":
				b.WriteString(reIndex)
				i += end + 1
			case len(inner) > 0 && (inner[0] == '\'' || inner[0] == '"'):
				seg, n, err := quotedKey(rest[i:])
				if err != nil {
					return "", err
				}
				b.WriteString(regexp.QuoteMeta(seg.String()))
				i += n
			default:
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return "", fmt.Errorf("invalid index %q", inner)
				}
				b.WriteString(regexp.QuoteMeta(tree.IndexSegment(n).String()))
				i += end + 1
			}
		default:
			return "", fmt.Errorf("unexpected %q at offset %d", c, i)
		}
	}
	b.WriteString("$")
	return b.String(), nil
}

// quotedKey reuses the path parser for a single ['key'] segment.
func quotedKey(s string) (tree.Segment, int, error) {
	p, err := tree.ParsePath(s[:closingBracket(s)+1])
	if err != nil {
		return tree.Segment{}, 0, err
	}
	segs := p.Segments()
	if len(segs) != 1 {
		return tree.Segment{}, 0, fmt.Errorf("invalid key segment %q", s)
	}
	return segs[0], closingBracket(s) + 1, nil
}

// closingBracket finds the ']' that closes a quoted key, skipping escapes.
func closingBracket(s string) int {
	quote := s[1]
	for i := 2; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			if i+1 < len(s) && s[i+1] == ']' {
				return i + 1
			}
		}
	}
	return len(s) - 1
}
