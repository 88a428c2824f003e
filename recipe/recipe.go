package recipe

import (
	"fmt"
	"regexp"

	"github.com/zclconf/go-cty/cty"
)

// Steps of the build pipeline, in execution order. Recipe skip lists
// name entries of this list.
var Steps = []string{
	"fetch", "extract", "patch", "configure", "build",
	"test", "install", "sanity", "module",
}

// Recipe describes one package build: where the sources come from, which
// block drives the build, and the options handed to it.
type Recipe struct {
	Name      string
	Version   Version
	BlockName string

	Homepage    string
	Description string

	Skip          []string
	Sources       []Source
	Patches       []Patch
	Substitutions []Substitution
	Dependencies  []Dependency
	Components    []Component

	// Options holds the raw option values from the recipe. Blocks
	// resolve them against their declared specs.
	Options map[string]cty.Value

	Test   TestPolicy
	Sanity SanitySpec

	// Dir is the directory the recipe was loaded from. Patch and
	// substitution files are resolved relative to it.
	Dir  string
	Path string
}

// Source is one source artifact: a downloadable archive, a git ref, or
// a local path. Exactly one of URL, Git, and Path is set.
type Source struct {
	URL    string
	SHA256 string

	Git string
	Ref string

	Path string
}

// Patch is a patch file applied to the unpacked sources.
type Patch struct {
	File  string
	Strip int
}

// Substitution is an in-place regexp edit of an unpacked source file.
type Substitution struct {
	File    string
	Pattern string
	Replace string
}

// Dependency names a package that must be installed before the build
// starts. Build dependencies are dropped from the module contributions.
type Dependency struct {
	Name    string
	Version string
	Build   bool
}

// Component is one member package of a bundle. Components install into
// the bundle's prefix and run under the bundle's environment plus the
// contributions of the components built before them.
type Component struct {
	Name      string
	Version   Version
	BlockName string
	Sources   []Source
	Patches   []Patch
	Options   map[string]cty.Value
	Skip      []string
}

// TestPolicy controls the test step: whether it runs at all, which
// optional categories run, and how many failures of each kind the step
// tolerates before failing the build.
type TestPolicy struct {
	Run          bool
	RunLong      bool
	RunNumerical bool

	MaxFailedNumerical int
	MaxFailedOther     int

	// NumericalPattern classifies failed test names as numerical.
	// Empty means no test counts as numerical.
	NumericalPattern string
}

// DefaultTestPolicy runs everything except the long category and
// tolerates no failures.
func DefaultTestPolicy() TestPolicy {
	return TestPolicy{Run: true, RunNumerical: true}
}

// SanitySpec lists what the sanity step checks under the install
// prefix: file and directory glob patterns, and commands that must
// succeed with the freshly installed package on PATH.
type SanitySpec struct {
	Files    []string
	Dirs     []string
	Commands []string

	// Components narrows a bundle's per-component sanity checks, Full
	// forces all of them. Ignored outside bundles.
	Components []string
	Full       bool
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.+-]*$`)

// CheckName validates a package name.
func CheckName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("bad package name %q", name)
	}
	return nil
}

func (r *Recipe) validate() error {
	if err := CheckName(r.Name); err != nil {
		return err
	}
	if r.BlockName == "" {
		return fmt.Errorf("%s: no block set", r.Name)
	}
	for i := range r.Sources {
		if err := r.Sources[i].validate(); err != nil {
			return fmt.Errorf("%s: source %d: %w", r.Name, i+1, err)
		}
	}
	for _, step := range r.Skip {
		if err := checkStep(step); err != nil {
			return fmt.Errorf("%s: %w", r.Name, err)
		}
	}
	for i := range r.Components {
		c := &r.Components[i]
		if err := CheckName(c.Name); err != nil {
			return fmt.Errorf("%s: component %d: %w", r.Name, i+1, err)
		}
		if c.BlockName == "" {
			return fmt.Errorf("%s: component %s: no block set", r.Name, c.Name)
		}
		for j := range c.Sources {
			if err := c.Sources[j].validate(); err != nil {
				return fmt.Errorf("%s: component %s: source %d: %w", r.Name, c.Name, j+1, err)
			}
		}
		for _, step := range c.Skip {
			if err := checkStep(step); err != nil {
				return fmt.Errorf("%s: component %s: %w", r.Name, c.Name, err)
			}
		}
	}
	if r.Test.NumericalPattern != "" {
		if _, err := regexp.Compile(r.Test.NumericalPattern); err != nil {
			return fmt.Errorf("%s: numerical_pattern: %w", r.Name, err)
		}
	}
	return nil
}

func (s *Source) validate() error {
	n := 0
	for _, set := range []bool{s.URL != "", s.Git != "", s.Path != ""} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("want exactly one of url, git, path")
	}
	if s.Git != "" && s.Ref == "" {
		return fmt.Errorf("git source needs a ref")
	}
	if s.Git == "" && s.Ref != "" {
		return fmt.Errorf("ref without git")
	}
	return nil
}

func checkStep(step string) error {
	for _, s := range Steps {
		if s == step {
			return nil
		}
	}
	return fmt.Errorf("skip names unknown step %q", step)
}

// Skips reports whether the recipe skips the named step.
func (r *Recipe) Skips(step string) bool {
	for _, s := range r.Skip {
		if s == step {
			return true
		}
	}
	return false
}

// FullName is the name@version form used in logs and cache keys.
func (r *Recipe) FullName() string {
	return r.Name + "@" + r.Version.String()
}

// Dep returns the named dependency, nil when the recipe has none.
func (r *Recipe) Dep(name string) *Dependency {
	for i := range r.Dependencies {
		if r.Dependencies[i].Name == name {
			return &r.Dependencies[i]
		}
	}
	return nil
}
