// Package syscompiler registers a compiler already present on the host
// as if it were an installed package, so recipes can depend on it like
// anything else. Nothing is built or copied; the block probes the
// compiler, pins its version, and records module contributions pointing
// at the host prefix.
package syscompiler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/internal/env"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/internal/testparse"
	"github.com/mortarbuild/mortar/recipe"
)

// Probe detects one compiler family on the host. It is a strategy the
// block is composed with, not a base class: the block's lifecycle stays
// in one place and only the detection logic varies.
type Probe struct {
	// CC and CXX are the driver names looked up on PATH.
	CC, CXX string
}

// probes is the closed set of compiler families the block handles.
var probes = map[string]Probe{
	"gcc":   {CC: "gcc", CXX: "g++"},
	"clang": {CC: "clang", CXX: "clang++"},
}

// Detection is what a probe finds: the resolved driver paths and the
// version the compiler reports.
type Detection struct {
	CC, CXX string
	Version string
	// Prefix is the installation root, the parent of the bin directory
	// holding the driver.
	Prefix string
}

// Detect locates the compiler through the overlay's PATH and extracts
// its version from --version output. Output that does not yield a
// version number is an error; guessing would poison every version
// decision downstream.
func (p Probe) Detect(ctx context.Context, r run.Runner, o *env.Overlay) (*Detection, error) {
	resolve := func(tool string) (string, error) {
		out, err := r.Capture(ctx, run.Cmd{
			Env:  o.Environ(),
			Argv: []string{"/bin/sh", "-c", "command -v " + tool},
		})
		if err != nil {
			return "", fmt.Errorf("%s not found on PATH: %w", tool, err)
		}
		path := strings.TrimSpace(out)
		if path == "" {
			return "", fmt.Errorf("%s not found on PATH", tool)
		}
		return path, nil
	}

	cc, err := resolve(p.CC)
	if err != nil {
		return nil, err
	}
	cxx, err := resolve(p.CXX)
	if err != nil {
		return nil, err
	}
	out, err := r.Capture(ctx, run.Cmd{Env: o.Environ(), Argv: []string{cc, "--version"}})
	if err != nil {
		return nil, fmt.Errorf("%s --version: %w", p.CC, err)
	}
	version, err := testparse.ParseCompilerVersion(out)
	if err != nil {
		return nil, err
	}
	return &Detection{
		CC:      cc,
		CXX:     cxx,
		Version: version,
		Prefix:  filepath.Dir(filepath.Dir(cc)),
	}, nil
}

type SysCompiler struct {
	block.Base

	detected *Detection
}

var _ block.Block = (*SysCompiler)(nil)

func New() *SysCompiler { return &SysCompiler{} }

func (s *SysCompiler) Name() string { return "syscompiler" }

func (s *SysCompiler) Options() []recipe.OptionSpec {
	return []recipe.OptionSpec{
		{Name: "compiler", Type: recipe.String, Default: "gcc", Help: "compiler family to probe for (gcc or clang)"},
	}
}

// Configure probes the host compiler and checks it against the recipe
// version. A recipe version of "system" accepts whatever is found; a
// concrete version must match the detected release.
func (s *SysCompiler) Configure(b *block.Build) error {
	family := b.Opts.String("compiler")
	probe, ok := probes[family]
	if !ok {
		return fmt.Errorf("no probe for compiler family %q", family)
	}

	det, err := probe.Detect(b.Context(), b.Runner, b.Env)
	if err != nil {
		return err
	}
	log.Infof("found %s %s in %s", family, det.Version, det.Prefix)

	if v := b.Recipe.Version; !v.IsSystem() && !releaseMatches(v.String(), det.Version) {
		return fmt.Errorf("host %s is version %s, recipe wants %s", family, det.Version, v)
	}
	s.detected = det
	return nil
}

// Install is a no-op: the compiler stays where the host put it.
func (s *SysCompiler) Install(b *block.Build) error { return nil }

func (s *SysCompiler) Sanity(b *block.Build) error {
	if s.detected == nil {
		return fmt.Errorf("no compiler was detected")
	}
	return nil
}

// Module redirects the package's module at the host prefix and records
// the detected toolchain, so loading it behaves like loading a built
// compiler.
func (s *SysCompiler) Module(b *block.Build) error {
	if s.detected == nil {
		return fmt.Errorf("no compiler was detected")
	}
	b.Module.InstallDir = s.detected.Prefix
	b.Module.Version = s.detected.Version
	b.Module.PrependPath("PATH", "bin")
	b.Module.SetEnv("CC", s.detected.CC)
	b.Module.SetEnv("CXX", s.detected.CXX)
	return nil
}

// releaseMatches compares a recipe version against a detected one on
// their shared release segments, so a recipe saying "13" accepts the
// host's 13.2.0.
func releaseMatches(want, got string) bool {
	return want == got ||
		strings.HasPrefix(got, want+".") ||
		strings.HasPrefix(want, got+".")
}
