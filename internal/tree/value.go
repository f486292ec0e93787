// Package tree models the response objects under comparison as a single
// value tree (scalars, mappings, and sequences) independent of any client
// library's object model.
package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the node kind of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Scalar reports whether values of this kind have no children.
func (k Kind) Scalar() bool {
	return k != KindMapping && k != KindSequence
}

// Value is an immutable node of a value tree. The zero Value is null.
type Value struct {
	kind Kind
	text string // string contents, or the literal of a number
	b    bool
	m    map[string]Value
	s    []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean scalar.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string scalar.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Number returns a numeric scalar from its JSON literal.
func Number(lit string) Value { return Value{kind: KindNumber, text: lit} }

// Int returns a numeric scalar.
func Int(n int64) Value { return Number(strconv.FormatInt(n, 10)) }

// Float returns a numeric scalar.
func Float(f float64) Value { return Number(strconv.FormatFloat(f, 'g', -1, 64)) }

// Mapping returns a mapping node. The map is copied.
func Mapping(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMapping, m: cp}
}

// Sequence returns a sequence node. The items are copied.
func Sequence(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, s: cp}
}

// Kind returns the node kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string contents; ok is false for non-strings.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.text, true
}

// BoolValue returns the boolean; ok is false for non-booleans.
func (v Value) BoolValue() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// NumberLiteral returns the JSON literal of a number; ok is false otherwise.
func (v Value) NumberLiteral() (string, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.text, true
}

// Len returns the number of children of a mapping or sequence.
func (v Value) Len() int {
	switch v.kind {
	case KindMapping:
		return len(v.m)
	case KindSequence:
		return len(v.s)
	}
	return 0
}

// Keys returns the sorted keys of a mapping.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the child stored under key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	c, ok := v.m[key]
	return c, ok
}

// At returns the i-th element of a sequence.
func (v Value) At(i int) (Value, bool) {
	if v.kind != KindSequence || i < 0 || i >= len(v.s) {
		return Value{}, false
	}
	return v.s[i], true
}

// Items returns a copy of the elements of a sequence.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	cp := make([]Value, len(v.s))
	copy(cp, v.s)
	return cp
}

// Without returns a copy of a mapping with the given keys removed.
// Non-mappings are returned unchanged.
func (v Value) Without(keys ...string) Value {
	if v.kind != KindMapping {
		return v
	}
	cp := make(map[string]Value, len(v.m))
	for k, c := range v.m {
		cp[k] = c
	}
	for _, k := range keys {
		delete(cp, k)
	}
	return Value{kind: KindMapping, m: cp}
}

// Lookup walks path from v and returns the addressed node.
func (v Value) Lookup(p Path) (Value, bool) {
	cur := v
	for _, seg := range p.segs {
		var ok bool
		if seg.isIndex {
			cur, ok = cur.At(seg.index)
		} else {
			cur, ok = cur.Get(seg.key)
		}
		if !ok {
			return Value{}, false
		}
	}
	return cur, true
}

// Interface converts v back to plain Go values as produced by encoding/json
// with UseNumber: nil, bool, json.Number, string, map[string]any, []any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.text)
	case KindString:
		return v.text
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, c := range v.m {
			out[k] = c.Interface()
		}
		return out
	case KindSequence:
		out := make([]any, len(v.s))
		for i, c := range v.s {
			out[i] = c.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON renders v with mapping keys in sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.text)
	case KindString:
		b, err := json.Marshal(v.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindMapping:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.m[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindSequence:
		buf.WriteByte('[')
		for i, c := range v.s {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}

// UnmarshalJSON decodes JSON into v, keeping number literals intact.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String renders v as compact JSON.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}

// Equal reports deep equality. Numbers compare by value, so 30 and 30.0 are
// equal; mapping key order carries no meaning; sequence order does.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.text == b.text
	case KindNumber:
		return numbersEqual(a.text, b.text)
	case KindMapping:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindSequence:
		if len(a.s) != len(b.s) {
			return false
		}
		for i := range a.s {
			if !Equal(a.s[i], b.s[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b string) bool {
	if a == b {
		return true
	}
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai == bi
	}
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr != nil || berr != nil {
		return false
	}
	if math.IsNaN(af) || math.IsNaN(bf) {
		return false
	}
	return af == bf
}
