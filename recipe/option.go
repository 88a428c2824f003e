package recipe

import (
	"fmt"
	"sort"

	"github.com/agext/levenshtein"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// OptionType is the value type of a declared option.
type OptionType int

const (
	String OptionType = iota
	Bool
	Int
	StringList
)

func (t OptionType) String() string {
	switch t {
	case String:
		return "string"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case StringList:
		return "list of string"
	}
	return "unknown"
}

// OptionSpec declares one option a block understands: its name, type,
// default value, and help text for `mortar options`.
type OptionSpec struct {
	Name    string
	Type    OptionType
	Default any
	Help    string
}

// OptionSet holds the resolved option values for one build: recipe
// values where given, declared defaults elsewhere.
type OptionSet struct {
	specs map[string]OptionSpec
	vals  map[string]any
	set   map[string]bool
}

// ResolveOptions checks the recipe's raw option values against the
// declared specs and fills in defaults. Unknown names are errors,
// with a did-you-mean suggestion when a declared name is close.
func ResolveOptions(specs []OptionSpec, raw map[string]cty.Value) (OptionSet, error) {
	s := OptionSet{
		specs: make(map[string]OptionSpec, len(specs)),
		vals:  make(map[string]any, len(specs)),
		set:   make(map[string]bool, len(raw)),
	}
	for _, spec := range specs {
		s.specs[spec.Name] = spec
		if spec.Default != nil {
			s.vals[spec.Name] = spec.Default
		} else {
			s.vals[spec.Name] = zeroValue(spec.Type)
		}
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec, ok := s.specs[name]
		if !ok {
			if near := nearest(name, specs); near != "" {
				return OptionSet{}, fmt.Errorf("unknown option %q (did you mean %q?)", name, near)
			}
			return OptionSet{}, fmt.Errorf("unknown option %q", name)
		}
		val, err := fromCty(raw[name], spec.Type)
		if err != nil {
			return OptionSet{}, fmt.Errorf("option %q: %w", name, err)
		}
		s.vals[name] = val
		s.set[name] = true
	}
	return s, nil
}

// nearest returns the declared name closest to the unknown one, "" when
// nothing is close enough to be a plausible typo.
func nearest(name string, specs []OptionSpec) string {
	const maxDistance = 3
	best, bestDist := "", maxDistance+1
	for _, spec := range specs {
		if d := levenshtein.Distance(name, spec.Name, nil); d < bestDist {
			best, bestDist = spec.Name, d
		}
	}
	return best
}

func zeroValue(t OptionType) any {
	switch t {
	case Bool:
		return false
	case Int:
		return 0
	case StringList:
		return []string(nil)
	}
	return ""
}

func fromCty(v cty.Value, t OptionType) (any, error) {
	switch t {
	case String:
		cv, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("want string: %w", err)
		}
		return cv.AsString(), nil
	case Bool:
		cv, err := convert.Convert(v, cty.Bool)
		if err != nil {
			return nil, fmt.Errorf("want bool: %w", err)
		}
		return cv.True(), nil
	case Int:
		cv, err := convert.Convert(v, cty.Number)
		if err != nil {
			return nil, fmt.Errorf("want int: %w", err)
		}
		var n int
		if err := gocty.FromCtyValue(cv, &n); err != nil {
			return nil, fmt.Errorf("want int: %w", err)
		}
		return n, nil
	case StringList:
		cv, err := convert.Convert(v, cty.List(cty.String))
		if err != nil {
			return nil, fmt.Errorf("want list of string: %w", err)
		}
		var out []string
		for it := cv.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, ev.AsString())
		}
		return out, nil
	}
	return nil, fmt.Errorf("unhandled option type %v", t)
}

// IsSet reports whether the recipe set the option explicitly.
func (s OptionSet) IsSet(name string) bool {
	return s.set[name]
}

// String returns a string option. Asking for an undeclared option is a
// programming error.
func (s OptionSet) String(name string) string {
	v, ok := s.vals[name].(string)
	if !ok {
		s.badOption(name, String)
	}
	return v
}

// Bool returns a bool option.
func (s OptionSet) Bool(name string) bool {
	v, ok := s.vals[name].(bool)
	if !ok {
		s.badOption(name, Bool)
	}
	return v
}

// Int returns an int option.
func (s OptionSet) Int(name string) int {
	v, ok := s.vals[name].(int)
	if !ok {
		s.badOption(name, Int)
	}
	return v
}

// Strings returns a string-list option.
func (s OptionSet) Strings(name string) []string {
	v, ok := s.vals[name].([]string)
	if !ok {
		s.badOption(name, StringList)
	}
	return v
}

func (s OptionSet) badOption(name string, t OptionType) {
	if spec, ok := s.specs[name]; ok {
		panic(fmt.Sprintf("option %q is %s, not %s", name, spec.Type, t))
	}
	panic(fmt.Sprintf("option %q is not declared", name))
}

// Describe renders an option's resolved value for display.
func (s OptionSet) Describe(name string) string {
	v, ok := s.vals[name]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprint(val)
	}
}

// Names returns the declared option names, sorted.
func (s OptionSet) Names() []string {
	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
