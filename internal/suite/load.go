package suite

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
)

// ErrUnknownCase is returned when a case name is not in the suite.
var ErrUnknownCase = errors.New("unknown case")

// File is the YAML layout of a suite definition.
type File struct {
	// Builtin includes the built-in cases ahead of Cases. A file case with
	// the name of a built-in one replaces it.
	Builtin bool               `yaml:"builtin"`
	Cases   []conformance.Case `yaml:"cases"`
}

// Load decodes and validates a suite definition.
func Load(r io.Reader) ([]conformance.Case, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("suite: empty definition")
		}
		return nil, fmt.Errorf("suite: decode: %w", err)
	}

	var cases []conformance.Case
	if f.Builtin {
		cases = Builtin()
	}
	seen := make(map[string]bool, len(f.Cases))
	for _, c := range f.Cases {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("suite: %w", err)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("suite: duplicate case %q", c.Name)
		}
		seen[c.Name] = true
		cases = replaceOrAppend(cases, c)
	}
	if len(cases) == 0 {
		return nil, errors.New("suite: no cases defined")
	}
	return cases, nil
}

// LoadFile reads a suite definition from path.
func LoadFile(path string) ([]conformance.Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("suite: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Resolve returns the cases of the suite file at path, or the built-in
// suite when path is empty.
func Resolve(path string) ([]conformance.Case, error) {
	if path == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}

// Lookup finds a case by name.
func Lookup(cases []conformance.Case, name string) (conformance.Case, error) {
	for _, c := range cases {
		if c.Name == name {
			return c, nil
		}
	}
	return conformance.Case{}, fmt.Errorf("%w: %s", ErrUnknownCase, name)
}

// Select returns the named cases in the order given. No names selects all.
func Select(cases []conformance.Case, names ...string) ([]conformance.Case, error) {
	if len(names) == 0 {
		return cases, nil
	}
	out := make([]conformance.Case, 0, len(names))
	for _, n := range names {
		c, err := Lookup(cases, n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Names returns the sorted case names.
func Names(cases []conformance.Case) []string {
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.Name
	}
	sort.Strings(out)
	return out
}

func replaceOrAppend(cases []conformance.Case, c conformance.Case) []conformance.Case {
	for i := range cases {
		if cases[i].Name == c.Name {
			cases[i] = c
			return cases
		}
	}
	return append(cases, c)
}
