package block

import (
	"context"
	"testing"

	"github.com/mortarbuild/mortar/internal/env"
	"github.com/mortarbuild/mortar/internal/modulefile"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/internal/workspace"
	"github.com/mortarbuild/mortar/recipe"
)

// fakeRunner records every command and answers from canned outcomes
// keyed by the binary name.
type fakeRunner struct {
	cmds    []run.Cmd
	outputs map[string]string
	fail    map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeRunner) Run(ctx context.Context, c run.Cmd) error {
	f.cmds = append(f.cmds, c)
	return f.fail[c.Argv[0]]
}

func (f *fakeRunner) Capture(ctx context.Context, c run.Cmd) (string, error) {
	f.cmds = append(f.cmds, c)
	return f.outputs[c.Argv[0]], f.fail[c.Argv[0]]
}

var _ run.Runner = (*fakeRunner)(nil)

// stubBlock records which lifecycle steps ran.
type stubBlock struct {
	Base
	specs []recipe.OptionSpec
	steps []string
	fail  map[string]error

	onInstall func(b *Build) error
}

func (s *stubBlock) Name() string                 { return "stub" }
func (s *stubBlock) Options() []recipe.OptionSpec { return s.specs }

func (s *stubBlock) step(name string) error {
	s.steps = append(s.steps, name)
	if s.fail == nil {
		return nil
	}
	return s.fail[name]
}

func (s *stubBlock) Configure(b *Build) error { return s.step("configure") }
func (s *stubBlock) Build(b *Build) error     { return s.step("build") }
func (s *stubBlock) Test(b *Build) error      { return s.step("test") }
func (s *stubBlock) Install(b *Build) error {
	if err := s.step("install"); err != nil {
		return err
	}
	if s.onInstall != nil {
		return s.onInstall(b)
	}
	return nil
}
func (s *stubBlock) Sanity(b *Build) error { return s.step("sanity") }
func (s *stubBlock) Module(b *Build) error { return s.step("module") }

var _ Block = (*stubBlock)(nil)

// testBuild wires a Build around a scratch workspace and a fake runner.
func testBuild(t *testing.T, r *recipe.Recipe) (*Build, *fakeRunner) {
	t.Helper()
	ws := workspace.New(t.TempDir())
	fr := newFakeRunner()
	b := &Build{
		Recipe:     r,
		Workspace:  ws,
		Runner:     fr,
		Env:        env.New(),
		Deps:       map[string]*modulefile.Module{},
		InstallDir: ws.InstallDir(r.Name, r.Version.String()),
		Parallel:   1,
	}
	b.Module = modulefile.New(r.Name, r.Version.String(), b.InstallDir)
	b.Root = t.TempDir()
	b.SourceDir = b.Root
	b.BuildDir = b.Root
	return b, fr
}

func testRecipe(name, version string) *recipe.Recipe {
	return &recipe.Recipe{
		Name:    name,
		Version: recipe.MustVersion(version),
		Test:    recipe.DefaultTestPolicy(),
	}
}
