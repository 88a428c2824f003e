package modulefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mortarbuild/mortar/internal/env"
)

func TestPrependPathDedup(t *testing.T) {
	m := New("zlib", "1.3.1", "/sw/zlib/1.3.1")
	m.PrependPath("PATH", "bin")
	m.PrependPath("LD_LIBRARY_PATH", "lib")
	m.PrependPath("PATH", "bin")

	if len(m.Contributions) != 2 {
		t.Errorf("contributions = %+v, want 2 entries", m.Contributions)
	}
}

func TestSetEnvReplaces(t *testing.T) {
	m := New("zlib", "1.3.1", "/sw")
	m.SetEnv("ZLIB_ROOT", "/old")
	m.PrependPath("PATH", "bin")
	m.SetEnv("ZLIB_ROOT", "/sw")

	want := []Contribution{
		{Action: ActionSetEnv, Var: "ZLIB_ROOT", Value: "/sw"},
		{Action: ActionPrependPath, Var: "PATH", Value: "bin"},
	}
	if diff := cmp.Diff(want, m.Contributions); diff != "" {
		t.Errorf("contributions mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRead(t *testing.T) {
	install := t.TempDir()
	m := New("zlib", "1.3.1", install)
	m.PrependPath("PATH", "bin")
	m.SetEnv("ZLIB_VERSION", "1.3.1")
	m.Require("gcc@13.3.0")
	m.Require("gcc@13.3.0")
	if len(m.Requires) != 1 {
		t.Errorf("Requires = %v, want one entry", m.Requires)
	}

	if err := m.Write(install); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := Read(install)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	install := t.TempDir()
	if err := os.MkdirAll(filepath.Join(install, "bin"), 0755); err != nil {
		t.Fatal(err)
	}

	m := New("zlib", "1.3.1", install)
	m.PrependPath("PATH", "bin")
	m.SetEnv("ZLIB_VERSION", "1.3.1")

	o := env.New()
	if err := m.Load(o); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := o.Get("PATH"); !strings.HasPrefix(got, filepath.Join(install, "bin")) {
		t.Errorf("PATH = %q, want prefix %q", got, filepath.Join(install, "bin"))
	}
	if got := o.Get("ZLIB_VERSION"); got != "1.3.1" {
		t.Errorf("ZLIB_VERSION = %q", got)
	}
}

func TestLoadReportsMissingDirs(t *testing.T) {
	m := New("zlib", "1.3.1", t.TempDir())
	m.PrependPath("PATH", "bin") // never created

	o := env.New()
	err := m.Load(o)
	if err == nil {
		t.Fatal("Load() did not report the missing directory")
	}
	if !strings.Contains(err.Error(), "bin") {
		t.Errorf("error = %v, want it to name the missing dir", err)
	}
	// The contribution is still applied; strictness is the caller's call.
	if o.Get("PATH") == os.Getenv("PATH") {
		t.Error("Load() skipped the contribution entirely")
	}
}

func TestMerge(t *testing.T) {
	a := New("a", "1", "/sw/a")
	a.PrependPath("PATH", "bin")
	b := New("b", "1", "/sw/b")
	b.PrependPath("PATH", "bin")
	b.SetEnv("B_HOME", "/sw/b")

	bundle := New("bundle", "1", "/sw/bundle")
	bundle.Merge(a)
	bundle.Merge(b)

	if len(bundle.Contributions) != 2 {
		t.Errorf("contributions = %+v, want deduped merge", bundle.Contributions)
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(t.TempDir()); err == nil {
		t.Fatal("Read() succeeded without metadata")
	}
}
