package block

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/apparentlymart/go-shquot/shquot"

	"github.com/mortarbuild/mortar/internal/env"
	"github.com/mortarbuild/mortar/internal/modulefile"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/internal/sysinfo"
	"github.com/mortarbuild/mortar/internal/workspace"
	"github.com/mortarbuild/mortar/recipe"
)

// Build carries the state of one package build through the pipeline.
// Blocks read the directories and options from it and issue their tool
// invocations through it, so the environment a build sees is always the
// overlay and never ambient process state.
type Build struct {
	Recipe *recipe.Recipe
	Opts   recipe.OptionSet

	Workspace *workspace.Workspace
	Runner    run.Runner
	Env       *env.Overlay
	Module    *modulefile.Module

	// Deps maps dependency names to the installed modules satisfying
	// them. Their contributions are already loaded into Env.
	Deps map[string]*modulefile.Module

	// Root is the scratch directory unique to this build. SourceDir is
	// the unpacked source tree and BuildDir is where the build tool
	// runs; blocks building out of tree point BuildDir elsewhere under
	// Root. InstallDir is the final prefix.
	Root       string
	SourceDir  string
	BuildDir   string
	InstallDir string

	// Parallel is the -j override from the command line. RPath asks
	// compiler-providing blocks to bake library search paths into the
	// binaries they install.
	Parallel int
	RPath    bool

	ctx context.Context
}

func (b *Build) Context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// Run executes a tool in dir under the build environment.
func (b *Build) Run(dir, name string, args ...string) error {
	return b.Runner.Run(b.Context(), b.command(dir, name, args))
}

// Capture is Run returning the combined output.
func (b *Build) Capture(dir, name string, args ...string) (string, error) {
	return b.Runner.Capture(b.Context(), b.command(dir, name, args))
}

// Script runs a shell command line, for steps whose recipe options
// carry prefix commands, variable assignments, or redirections.
func (b *Build) Script(dir, script string) error {
	return b.Runner.Run(b.Context(), run.Cmd{
		Dir:  dir,
		Env:  b.Env.Environ(),
		Argv: []string{"/bin/sh", "-c", script},
	})
}

func (b *Build) command(dir, name string, args []string) run.Cmd {
	return run.Cmd{Dir: dir, Env: b.Env.Environ(), Argv: append([]string{name}, args...)}
}

// ShellLine joins an argv with optional prefix and suffix fragments
// taken verbatim from the recipe into one shell command line.
func ShellLine(prefix string, argv []string, suffix string) string {
	parts := make([]string, 0, 3)
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, shquot.POSIXShell(argv))
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, " ")
}

// Jobs resolves the build parallelism: the recipe's parallel option
// wins, then the command line, then the machine size.
func (b *Build) Jobs() int {
	if b.Opts.IsSet("parallel") {
		if n := b.Opts.Int("parallel"); n > 0 {
			return n
		}
	}
	if b.Parallel > 0 {
		return b.Parallel
	}
	return sysinfo.NumCPU()
}

// DepNames returns the resolved dependency names, sorted.
func (b *Build) DepNames() []string {
	names := make([]string, 0, len(b.Deps))
	for name := range b.Deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UseDep wires an installed dependency into the build environment the
// way compilers and configure scripts find things: search paths for
// cmake and pkg-config, plus preprocessor and linker flags.
func (b *Build) UseDep(m *modulefile.Module) {
	root := m.InstallDir
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(root, "lib", "pkgconfig")

	if _, err := os.Stat(pkgconfigDir); err == nil {
		b.Env.Prepend("PKG_CONFIG_PATH", pkgconfigDir)
	}

	if _, err := os.Stat(root); err == nil {
		b.Env.Prepend("CMAKE_PREFIX_PATH", root)
	}
	if _, err := os.Stat(includeDir); err == nil {
		b.Env.Prepend("CMAKE_INCLUDE_PATH", includeDir)
	}
	if _, err := os.Stat(libDir); err == nil {
		b.Env.Prepend("CMAKE_LIBRARY_PATH", libDir)
	}

	if runtime.GOOS == "windows" {
		if _, err := os.Stat(includeDir); err == nil {
			b.Env.Prepend("INCLUDE", includeDir)
		}
		if _, err := os.Stat(libDir); err == nil {
			b.Env.Prepend("LIB", libDir)
		}
	} else {
		if _, err := os.Stat(includeDir); err == nil {
			b.Env.AppendFlag("CPPFLAGS", "-I"+includeDir)
		}
		if _, err := os.Stat(libDir); err == nil {
			b.Env.AppendFlag("LDFLAGS", "-L"+libDir)
		}
	}
}

// UseDeps applies UseDep for every resolved dependency in name order.
func (b *Build) UseDeps() {
	for _, name := range b.DepNames() {
		b.UseDep(b.Deps[name])
	}
}
