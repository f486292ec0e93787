package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
)

// FromJSON decodes a JSON document into a Value. Number literals are kept
// verbatim so large integers survive the round trip.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("tree: decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("tree: decode: trailing data after JSON value")
	}
	return FromAny(raw)
}

// MustJSON is FromJSON for literals known to be valid. It panics on error.
func MustJSON(s string) Value {
	v, err := FromJSON([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// FromAny normalizes a Go value into a Value. It accepts the output of
// encoding/json (with or without UseNumber), Go scalars, maps keyed by
// strings, slices, and anything else that marshals to JSON (structs,
// typed client responses).
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(strconv.FormatUint(uint64(t), 10)), nil
	case uint32:
		return Number(strconv.FormatUint(uint64(t), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(t, 10)), nil
	case json.RawMessage:
		return FromJSON(t)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, c := range t {
			cv, err := FromAny(c)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = cv
		}
		return Value{kind: KindMapping, m: m}, nil
	case []any:
		s := make([]Value, len(t))
		for i, c := range t {
			cv, err := FromAny(c)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			s[i] = cv
		}
		return Value{kind: KindSequence, s: s}, nil
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null(), nil
	}
	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("tree: normalize %T: %w", x, err)
	}
	return FromJSON(data)
}

// ErrNonFinite is returned for NaN and infinite floats, which have no JSON
// representation.
var ErrNonFinite = errors.New("tree: non-finite number")

func finite(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return Float(f), nil
}

// MustAny is FromAny for values known to be JSON-representable.
func MustAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}
