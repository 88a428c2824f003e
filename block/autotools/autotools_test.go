package autotools

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/internal/env"
	"github.com/mortarbuild/mortar/internal/modulefile"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/internal/workspace"
	"github.com/mortarbuild/mortar/recipe"
)

type fakeRunner struct {
	cmds []run.Cmd
}

func (f *fakeRunner) Run(ctx context.Context, c run.Cmd) error {
	f.cmds = append(f.cmds, c)
	return nil
}

func (f *fakeRunner) Capture(ctx context.Context, c run.Cmd) (string, error) {
	f.cmds = append(f.cmds, c)
	return "", nil
}

func testBuild(t *testing.T, raw map[string]cty.Value) (*block.Build, *fakeRunner) {
	t.Helper()
	r := &recipe.Recipe{
		Name:    "gzip",
		Version: recipe.MustVersion("1.13"),
		Options: raw,
		Test:    recipe.DefaultTestPolicy(),
	}
	opts, err := recipe.ResolveOptions(New().Options(), raw)
	if err != nil {
		t.Fatal(err)
	}
	ws := workspace.New(t.TempDir())
	fr := &fakeRunner{}
	b := &block.Build{
		Recipe:     r,
		Opts:       opts,
		Workspace:  ws,
		Runner:     fr,
		Env:        env.New(),
		InstallDir: ws.InstallDir(r.Name, "1.13"),
		Parallel:   4,
	}
	b.Module = modulefile.New(r.Name, "1.13", b.InstallDir)
	b.Root = t.TempDir()
	b.SourceDir = b.Root
	b.BuildDir = b.Root
	if err := os.WriteFile(filepath.Join(b.SourceDir, "configure"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return b, fr
}

func TestConfigure(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"configopts": cty.StringVal("--disable-nls"),
	})
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(b.SourceDir, "configure"),
		"--prefix=" + b.InstallDir,
		"--enable-shared",
		"--disable-nls",
	}
	if !reflect.DeepEqual(fr.cmds[0].Argv, want) {
		t.Errorf("argv = %v\nwant %v", fr.cmds[0].Argv, want)
	}
	if fr.cmds[0].Dir != b.SourceDir {
		t.Errorf("configured in %s, want the source tree", fr.cmds[0].Dir)
	}
}

func TestConfigureOutOfSource(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"build_in_source": cty.BoolVal(false),
	})
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(b.Root, "obj")
	if b.BuildDir != want {
		t.Fatalf("BuildDir = %s, want %s", b.BuildDir, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatal(err)
	}
	if fr.cmds[0].Dir != want {
		t.Errorf("configured in %s, want the fresh build dir", fr.cmds[0].Dir)
	}
	if fr.cmds[0].Argv[0] != filepath.Join(b.SourceDir, "configure") {
		t.Errorf("argv = %v, want the source tree's configure script", fr.cmds[0].Argv)
	}
}

func TestConfigureSharedLibs(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"shared_libs": cty.BoolVal(false),
	})
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}
	argv := fr.cmds[0].Argv
	if !contains(argv, "--disable-shared") {
		t.Errorf("argv = %v, want --disable-shared", argv)
	}

	// A recipe token naming shared already blocks the default.
	b2, fr2 := testBuild(t, map[string]cty.Value{
		"configopts": cty.StringVal("--disable-shared"),
	})
	if err := New().Configure(b2); err != nil {
		t.Fatal(err)
	}
	argv = fr2.cmds[0].Argv
	if contains(argv, "--enable-shared") {
		t.Errorf("argv = %v, default emitted over the recipe's choice", argv)
	}
	if argv[len(argv)-1] != "--disable-shared" {
		t.Errorf("argv = %v, recipe token not last", argv)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestConfigureRecipePrefixWins(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"preconfigopts": cty.StringVal("CC=gcc LDFLAGS=-static"),
	})
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}
	argv := fr.cmds[0].Argv
	if argv[0] != "/bin/sh" || argv[1] != "-c" {
		t.Fatalf("argv = %v, want a shell run", argv)
	}
	script := argv[2]
	if !strings.HasPrefix(script, "CC=gcc LDFLAGS=-static ") {
		t.Errorf("script = %q, prefix fragment missing", script)
	}
	if !strings.Contains(script, "configure") || !strings.Contains(script, "--prefix="+b.InstallDir) {
		t.Errorf("script = %q", script)
	}
}

func TestConfigureMissingScript(t *testing.T) {
	b, _ := testBuild(t, nil)
	if err := os.Remove(filepath.Join(b.SourceDir, "configure")); err != nil {
		t.Fatal(err)
	}
	if err := New().Configure(b); err == nil {
		t.Fatal("no error without a configure script")
	}
}

func TestBuild(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"buildopts": cty.StringVal("V=1"),
	})
	if err := New().Build(b); err != nil {
		t.Fatal(err)
	}
	want := []string{"make", "-j", "4", "V=1"}
	if !reflect.DeepEqual(fr.cmds[0].Argv, want) {
		t.Errorf("argv = %v, want %v", fr.cmds[0].Argv, want)
	}
}

func TestTestStep(t *testing.T) {
	b, fr := testBuild(t, nil)
	if err := New().Test(b); err != nil {
		t.Fatal(err)
	}
	if len(fr.cmds) != 0 {
		t.Errorf("test step ran %v without a test_target", fr.cmds)
	}

	b2, fr2 := testBuild(t, map[string]cty.Value{
		"test_target": cty.StringVal("check"),
	})
	if err := New().Test(b2); err != nil {
		t.Fatal(err)
	}
	want := []string{"make", "check"}
	if !reflect.DeepEqual(fr2.cmds[0].Argv, want) {
		t.Errorf("argv = %v, want %v", fr2.cmds[0].Argv, want)
	}
}

func TestInstall(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"preinstallopts": cty.StringVal("umask 022 &&"),
		"installopts":    cty.StringVal("STRIP=true"),
	})
	if err := New().Install(b); err != nil {
		t.Fatal(err)
	}
	argv := fr.cmds[0].Argv
	if argv[0] != "/bin/sh" {
		t.Fatalf("argv = %v, want a shell run", argv)
	}
	script := argv[2]
	if !strings.HasPrefix(script, "umask 022 && ") || !strings.Contains(script, "make install STRIP=true") {
		t.Errorf("script = %q", script)
	}
}
