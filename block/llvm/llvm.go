// Package llvm builds the Clang/LLVM compiler, by default as a
// three-stage bootstrap: stage 1 with the ambient toolchain, stage 2
// with the stage-1 clang to prove the new compiler can build itself,
// and stage 3 with the stage-2 clang so miscompilations introduced by
// the stage-1 compiler surface as a stage-2/stage-3 difference. What
// gets installed are the stage-3 binaries.
package llvm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-shellwords"
	"github.com/qiniu/x/log"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/block/cmake"
	"github.com/mortarbuild/mortar/internal/env"
	"github.com/mortarbuild/mortar/internal/filetext"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/internal/sysinfo"
	"github.com/mortarbuild/mortar/internal/testparse"
	"github.com/mortarbuild/mortar/recipe"
)

// stage is one configure+build iteration of the bootstrap. prevObj is
// empty for stage 1; later stages take their compiler from it.
type stage struct {
	index   int
	objDir  string
	prevObj string

	cc, cxx string

	// wrapperDir holds the rpath wrapper scripts when rpath mode is on.
	// It goes on the stage's PATH so the wrapped compiler is found.
	wrapperDir string
}

type LLVM struct {
	block.Base

	stages  []*stage
	layout  projectLayout
	targets string
	gccPfx  string
}

var _ block.Block = (*LLVM)(nil)

func New() *LLVM { return &LLVM{} }

func (l *LLVM) Name() string { return "llvm" }

func (l *LLVM) Options() []recipe.OptionSpec {
	return []recipe.OptionSpec{
		{Name: "configopts", Type: recipe.String, Default: "", Help: "extra cmake configure arguments, appended last"},
		{Name: "buildopts", Type: recipe.String, Default: "", Help: "extra make arguments"},
		{Name: "installopts", Type: recipe.String, Default: "", Help: "extra make install arguments"},
		{Name: "testopts", Type: recipe.String, Default: "", Help: "extra ctest arguments, appended last"},
		{Name: "parallel", Type: recipe.Int, Default: 0, Help: "override the build job count"},
		{Name: "bootstrap", Type: recipe.Bool, Default: true, Help: "self-host in three stages instead of building once"},
		{Name: "assertions", Type: recipe.Bool, Default: true, Help: "keep LLVM assertions enabled"},
		{Name: "rtti", Type: recipe.Bool, Default: true, Help: "build LLVM with RTTI"},
		{Name: "static_libs", Type: recipe.Bool, Default: false, Help: "build static LLVM libraries only"},
		{Name: "build_targets", Type: recipe.StringList, Help: "LLVM backends to enable, default per host architecture"},
		{Name: "build_type", Type: recipe.String, Default: "Release", Help: "CMAKE_BUILD_TYPE unless the recipe overrides it"},
		{Name: "skip_sanitizer_tests", Type: recipe.Bool, Default: false, Help: "patch the sanitizer suites out of the testsuite"},
		{Name: "gcc_prefix", Type: recipe.String, Default: "", Help: "GCC installation clang should use, default from a GCC dependency"},
		{Name: "long_test_pattern", Type: recipe.String, Default: "", Help: "ctest name pattern of the long-running tests"},
	}
}

// projectLayout is how one generation of llvm releases wants to be
// configured: where cmake runs relative to the unpacked tree and which
// defines pull the subprojects in.
type projectLayout struct {
	srcSubdir         string
	sanitizerTestFile string
	defines           [][2]string
}

// projectLayouts is consulted once per configure, newest threshold
// first. The monorepo layout covers every release since the project
// moved to a single tree; older split-tarball releases expect the
// subproject trees grafted into the llvm tree.
var projectLayouts = []struct {
	atLeast string
	layout  projectLayout
}{
	{"14.0", projectLayout{
		srcSubdir:         "llvm",
		sanitizerTestFile: "compiler-rt/test/CMakeLists.txt",
		defines: [][2]string{
			{"LLVM_ENABLE_PROJECTS", "clang;compiler-rt"},
		},
	}},
	{"", projectLayout{
		sanitizerTestFile: filepath.Join("projects", "compiler-rt", "test", "CMakeLists.txt"),
	}},
}

func layoutFor(v recipe.Version) projectLayout {
	for _, e := range projectLayouts {
		if e.atLeast == "" || v.AtLeast(e.atLeast) {
			return e.layout
		}
	}
	return projectLayout{}
}

// knownTargets are the LLVM backend names a recipe may ask for. An
// unknown name is refused up front; cmake would only notice it after
// a long configure.
var knownTargets = map[string]bool{
	"all": true, "AArch64": true, "AMDGPU": true, "ARM": true, "AVR": true,
	"BPF": true, "Hexagon": true, "Lanai": true, "Mips": true, "MSP430": true,
	"NVPTX": true, "PowerPC": true, "RISCV": true, "Sparc": true,
	"SystemZ": true, "WebAssembly": true, "X86": true, "XCore": true,
}

func (l *LLVM) Configure(b *block.Build) error {
	b.UseDeps()

	targets, err := resolveTargets(b)
	if err != nil {
		return err
	}
	l.targets = strings.Join(targets, ";")
	l.layout = layoutFor(b.Recipe.Version)

	if l.gccPfx, err = gccPrefix(b); err != nil {
		return err
	}

	if b.Opts.Bool("skip_sanitizer_tests") {
		log.Infof("disabling the sanitizer testsuites")
		if err := l.disableSanitizerTests(b); err != nil {
			return err
		}
	}

	stages := 1
	if b.Opts.Bool("bootstrap") {
		stages = 3
	}
	cc := b.Env.Get("CC")
	if cc == "" {
		cc = "gcc"
	}
	cxx := b.Env.Get("CXX")
	if cxx == "" {
		cxx = "g++"
	}
	l.stages = nil
	for i := 1; i <= stages; i++ {
		s := &stage{index: i, objDir: filepath.Join(b.Root, fmt.Sprintf("obj.stage%d", i))}
		if i == 1 {
			s.cc, s.cxx = cc, cxx
		} else {
			prev := l.stages[i-2]
			s.prevObj = prev.objDir
			s.cc = filepath.Join(prev.objDir, "bin", "clang")
			s.cxx = filepath.Join(prev.objDir, "bin", "clang++")
		}
		l.stages = append(l.stages, s)
	}

	return l.configureStage(b, l.stages[0])
}

// Build runs the remaining bootstrap: build stage 1, then for each
// later stage configure with the previous stage's compiler and build
// again. A stage failure aborts the whole build; bootstrap failures are
// not transient and a retry would only hide them.
func (l *LLVM) Build(b *block.Build) error {
	if len(l.stages) == 0 {
		return errors.New("llvm: build step before configure")
	}
	for i, s := range l.stages {
		if i > 0 {
			log.Infof("stage %d: configuring with %s", s.index, s.cc)
			if err := l.configureStage(b, s); err != nil {
				return fmt.Errorf("stage %d configure: %w", s.index, err)
			}
		}
		log.Infof("stage %d: building", s.index)
		if err := l.makeStage(b, s, "buildopts"); err != nil {
			return fmt.Errorf("stage %d build: %w", s.index, err)
		}
	}
	b.BuildDir = l.finalStage().objDir
	return nil
}

func (l *LLVM) Test(b *block.Build) error {
	return block.CTest(b, b.Opts.String("testopts"), cmake.Categories(b))
}

// Install installs from the final stage's tree: the stage-3 binaries
// when bootstrapping, stage 1 otherwise.
func (l *LLVM) Install(b *block.Build) error {
	s := l.finalStage()
	argv := []string{"install"}
	extra, err := tokens(b, "installopts")
	if err != nil {
		return err
	}
	argv = append(argv, extra...)
	return l.runStage(b, s, "make", argv...)
}

func (l *LLVM) Sanity(b *block.Build) error {
	var result *multierror.Error
	checks := []string{"bin/clang", "bin/clang++"}
	if !b.Opts.Bool("static_libs") {
		checks = append(checks, "lib/libclang."+sysinfo.SharedLibExt())
	}
	for _, rel := range checks {
		if _, err := os.Stat(filepath.Join(b.InstallDir, rel)); err != nil {
			result = multierror.Append(result, fmt.Errorf("missing %s under %s", rel, b.InstallDir))
		}
	}

	clang := filepath.Join(b.InstallDir, "bin", "clang")
	out, err := b.Capture(b.InstallDir, clang, "--version")
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("clang --version: %w", err))
		return result.ErrorOrNil()
	}
	detected, err := testparse.ParseCompilerVersion(out)
	if err != nil {
		result = multierror.Append(result, err)
	} else if !versionMatches(b.Recipe.Version.String(), detected) {
		result = multierror.Append(result, fmt.Errorf("installed clang reports version %s, recipe says %s", detected, b.Recipe.Version))
	}
	return result.ErrorOrNil()
}

func (l *LLVM) finalStage() *stage {
	return l.stages[len(l.stages)-1]
}

func (l *LLVM) configureStage(b *block.Build, s *stage) error {
	if err := os.MkdirAll(s.objDir, 0755); err != nil {
		return err
	}
	if b.RPath {
		if err := writeWrappers(s); err != nil {
			return err
		}
	}

	args := block.NewDefineArgs()
	if err := args.AddUser(b.Opts.String("configopts")); err != nil {
		return err
	}
	args.SetForced("CMAKE_INSTALL_PREFIX", b.InstallDir)
	args.SetForced("CMAKE_C_COMPILER", s.cc)
	args.SetForced("CMAKE_CXX_COMPILER", s.cxx)
	args.SetForced("LLVM_TARGETS_TO_BUILD", l.targets)
	args.SetDefault("CMAKE_BUILD_TYPE", b.Opts.String("build_type"))
	args.SetDefaultBool("LLVM_ENABLE_ASSERTIONS", b.Opts.Bool("assertions"))
	args.SetDefaultBool("LLVM_ENABLE_RTTI", b.Opts.Bool("rtti"))
	args.SetDefaultBool("LLVM_REQUIRES_RTTI", b.Opts.Bool("rtti"))
	if b.Opts.Bool("static_libs") {
		args.SetForcedBool("BUILD_SHARED_LIBS", false)
	}
	if l.gccPfx != "" {
		args.SetDefault("GCC_INSTALL_PREFIX", l.gccPfx)
	}
	for _, d := range l.layout.defines {
		args.SetDefault(d[0], d[1])
	}

	src := b.SourceDir
	if l.layout.srcSubdir != "" {
		src = filepath.Join(src, l.layout.srcSubdir)
	}
	return l.runStage(b, s, "cmake", append([]string{src}, args.List()...)...)
}

func (l *LLVM) makeStage(b *block.Build, s *stage, optName string) error {
	argv := []string{"-j", strconv.Itoa(b.Jobs())}
	extra, err := tokens(b, optName)
	if err != nil {
		return err
	}
	argv = append(argv, extra...)
	return l.runStage(b, s, "make", argv...)
}

// runStage runs a tool in the stage's object dir under the stage
// environment.
func (l *LLVM) runStage(b *block.Build, s *stage, name string, args ...string) error {
	return b.Runner.Run(b.Context(), run.Cmd{
		Dir:  s.objDir,
		Env:  stageEnv(b, s).Environ(),
		Argv: append([]string{name}, args...),
	})
}

// stageEnv derives the environment one stage's subprocesses see: the
// previous stage's bin first on PATH so its fresh clang is the one
// found, and its lib on the loader path so that clang locates its own
// just-built runtime. The base overlay is never touched; the derived
// copy lives and dies with the stage.
func stageEnv(b *block.Build, s *stage) *env.Overlay {
	o := b.Env.Clone()
	if s.prevObj != "" {
		o.Prepend("PATH", filepath.Join(s.prevObj, "bin"))
		o.Prepend(loaderPathVar(), filepath.Join(s.prevObj, "lib"))
	}
	if s.wrapperDir != "" {
		o.Prepend("PATH", s.wrapperDir)
	}
	return o
}

func loaderPathVar() string {
	if runtime.GOOS == "darwin" {
		return "DYLD_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

// writeWrappers replaces the stage's compilers with thin scripts that
// inject an rpath to the stage's own lib dir, so everything the stage
// links finds its runtime without loader-path help. The wrapper dir
// goes on the stage PATH via stageEnv.
func writeWrappers(s *stage) error {
	dir := filepath.Join(s.objDir, "wrappers")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	libDir := filepath.Join(s.objDir, "lib")
	wrap := func(real string) (string, error) {
		path := filepath.Join(dir, filepath.Base(real))
		script := fmt.Sprintf("#!/bin/sh\nexec %q -Wl,-rpath,%q \"$@\"\n", real, libDir)
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	cc, err := wrap(s.cc)
	if err != nil {
		return err
	}
	cxx, err := wrap(s.cxx)
	if err != nil {
		return err
	}
	s.cc, s.cxx = cc, cxx
	s.wrapperDir = dir
	return nil
}

// disableSanitizerTests patches the sanitizer suites out of the
// compiler-rt test setup. They probe the host kernel and address-space
// configuration and fail on most build machines for reasons unrelated
// to the compiler being built.
func (l *LLVM) disableSanitizerTests(b *block.Build) error {
	file := filepath.Join(b.SourceDir, l.layout.sanitizerTestFile)
	return filetext.Substitute(file, []filetext.Sub{
		{Pattern: `(?m)^.*add_subdirectory\((.*san|sanitizer_common)\).*$`, Replace: ""},
	})
}

func resolveTargets(b *block.Build) ([]string, error) {
	targets := b.Opts.Strings("build_targets")
	if len(targets) == 0 {
		return sysinfo.DefaultLLVMTargets(runtime.GOARCH)
	}
	for _, t := range targets {
		if !knownTargets[t] {
			return nil, fmt.Errorf("unknown LLVM build target %q", t)
		}
	}
	return targets, nil
}

// gccPrefix resolves the GCC installation clang should pick its C++
// standard library and crt files from: the recipe option first, then a
// GCCcore or GCC dependency. GCCcore is preferred since a GCC module
// built on top of it is just a wrapper around the same installation.
func gccPrefix(b *block.Build) (string, error) {
	if p := b.Opts.String("gcc_prefix"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("gcc_prefix %s: %w", p, err)
		}
		return p, nil
	}
	for _, name := range []string{"GCCcore", "GCC"} {
		if m, ok := b.Deps[name]; ok {
			return m.InstallDir, nil
		}
	}
	if b.Recipe.Dep("GCCcore") != nil || b.Recipe.Dep("GCC") != nil {
		return "", errors.New("GCC dependency declared but not resolved")
	}
	return "", nil
}

func versionMatches(want, got string) bool {
	return want == got ||
		strings.HasPrefix(want, got+".") ||
		strings.HasPrefix(got, want+".")
}

func tokens(b *block.Build, name string) ([]string, error) {
	raw := b.Opts.String(name)
	if raw == "" {
		return nil, nil
	}
	out, err := shellwords.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return out, nil
}
