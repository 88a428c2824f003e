package cmake

import (
	"context"
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
	return "100% tests passed, 0 tests failed out of 1\n", nil
}

func testBuild(t *testing.T, raw map[string]cty.Value) (*block.Build, *fakeRunner) {
	t.Helper()
	r := &recipe.Recipe{
		Name:    "zlib",
		Version: recipe.MustVersion("1.3.1"),
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
		InstallDir: ws.InstallDir(r.Name, "1.3.1"),
		Parallel:   4,
	}
	b.Module = modulefile.New(r.Name, "1.3.1", b.InstallDir)
	b.Root = t.TempDir()
	b.SourceDir = filepath.Join(b.Root, "zlib-1.3.1")
	b.BuildDir = b.SourceDir
	return b, fr
}

func TestConfigure(t *testing.T) {
	b, fr := testBuild(t, nil)
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}

	wantDir := filepath.Join(b.Root, "obj")
	if b.BuildDir != wantDir {
		t.Errorf("BuildDir = %q, want %q", b.BuildDir, wantDir)
	}

	if len(fr.cmds) != 1 {
		t.Fatalf("ran %d commands", len(fr.cmds))
	}
	want := []string{
		"cmake", "-S", b.SourceDir, "-B", b.BuildDir,
		"-DBUILD_SHARED_LIBS:BOOL=ON",
		"-DCMAKE_BUILD_TYPE:STRING=Release",
		"-DCMAKE_INSTALL_PREFIX:STRING=" + b.InstallDir,
	}
	if !reflect.DeepEqual(fr.cmds[0].Argv, want) {
		t.Errorf("argv = %v\nwant %v", fr.cmds[0].Argv, want)
	}
}

func TestConfigureRecipeOverridesBuildType(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"configopts": cty.StringVal("-DCMAKE_BUILD_TYPE=Debug -DZLIB_COMPAT=ON"),
	})
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}

	argv := fr.cmds[0].Argv
	for _, a := range argv {
		if a == "-DCMAKE_BUILD_TYPE:STRING=Release" {
			t.Errorf("default build type emitted despite recipe override: %v", argv)
		}
	}
	n := len(argv)
	if argv[n-2] != "-DCMAKE_BUILD_TYPE=Debug" || argv[n-1] != "-DZLIB_COMPAT=ON" {
		t.Errorf("recipe tokens not last: %v", argv)
	}
}

func TestConfigureInTree(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"separate_build_dir": cty.False,
		"generator":          cty.StringVal("Ninja"),
	})
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}
	if b.BuildDir != b.SourceDir {
		t.Errorf("BuildDir = %q, want the source tree", b.BuildDir)
	}
	argv := fr.cmds[0].Argv
	if argv[1] != "-S" || argv[3] != "-B" || argv[4] != b.SourceDir {
		t.Errorf("argv = %v", argv)
	}
	found := false
	for i, a := range argv {
		if a == "-G" && argv[i+1] == "Ninja" {
			found = true
		}
	}
	if !found {
		t.Errorf("no generator in %v", argv)
	}
}

func TestConfigureSrcdir(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"srcdir": cty.StringVal("llvm"),
	})
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}
	argv := fr.cmds[0].Argv
	if argv[1] != "-S" || argv[2] != filepath.Join(b.SourceDir, "llvm") {
		t.Errorf("argv = %v, want -S pointing into the srcdir subdirectory", argv)
	}
}

func TestConfigureUsesDeps(t *testing.T) {
	b, _ := testBuild(t, nil)
	depDir := t.TempDir()
	b.Deps = map[string]*modulefile.Module{
		"zstd": modulefile.New("zstd", "1.5.6", depDir),
	}
	if err := New().Configure(b); err != nil {
		t.Fatal(err)
	}
	if got := b.Env.Get("CMAKE_PREFIX_PATH"); !strings.Contains(got, depDir) {
		t.Errorf("CMAKE_PREFIX_PATH = %q, want it to carry %s", got, depDir)
	}
}

func TestBuild(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"build_targets": cty.TupleVal([]cty.Value{cty.StringVal("zlib"), cty.StringVal("minigzip")}),
		"buildopts":     cty.StringVal("--verbose"),
	})
	if err := New().Build(b); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"cmake", "--build", b.BuildDir, "--parallel", "4",
		"--target", "zlib", "--target", "minigzip", "--verbose",
	}
	if !reflect.DeepEqual(fr.cmds[0].Argv, want) {
		t.Errorf("argv = %v\nwant %v", fr.cmds[0].Argv, want)
	}
}

func TestParallelOptionWins(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"parallel": cty.NumberIntVal(2),
	})
	if err := New().Build(b); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(fr.cmds[0].Argv, " ")
	if !strings.Contains(got, "--parallel 2") {
		t.Errorf("argv = %q, recipe parallel=2 should beat the flag", got)
	}
}

func TestInstall(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"installopts": cty.StringVal("--strip"),
	})
	if err := New().Install(b); err != nil {
		t.Fatal(err)
	}
	want := []string{"cmake", "--install", b.BuildDir, "--prefix", b.InstallDir, "--strip"}
	if !reflect.DeepEqual(fr.cmds[0].Argv, want) {
		t.Errorf("argv = %v\nwant %v", fr.cmds[0].Argv, want)
	}
}

func TestTestStepRunsCTest(t *testing.T) {
	b, fr := testBuild(t, map[string]cty.Value{
		"testopts": cty.StringVal("--timeout 300"),
	})
	if err := New().Test(b); err != nil {
		t.Fatal(err)
	}
	if len(fr.cmds) != 1 || fr.cmds[0].Argv[0] != "ctest" {
		t.Fatalf("cmds = %+v", fr.cmds)
	}
	got := strings.Join(fr.cmds[0].Argv, " ")
	if !strings.HasSuffix(got, "--timeout 300") {
		t.Errorf("argv = %q, testopts must come last", got)
	}
}

func TestCategoriesFollowPolicy(t *testing.T) {
	b, _ := testBuild(t, map[string]cty.Value{
		"long_test_pattern": cty.StringVal("^slow_"),
	})
	b.Recipe.Test.RunLong = false
	b.Recipe.Test.NumericalPattern = "^numdiff_"
	b.Recipe.Test.RunNumerical = true

	cats := Categories(b)
	if len(cats) != 2 {
		t.Fatalf("cats = %+v", cats)
	}
	if cats[0].Name != "long" || cats[0].Pattern != "^slow_" || cats[0].Run {
		t.Errorf("long = %+v", cats[0])
	}
	if cats[1].Name != "numerical" || !cats[1].Run {
		t.Errorf("numerical = %+v", cats[1])
	}
}
