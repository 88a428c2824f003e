package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUniqueBuildDirDistinct(t *testing.T) {
	w := New(t.TempDir())

	first, err := w.UniqueBuildDir("zlib-1.3.1")
	if err != nil {
		t.Fatalf("first UniqueBuildDir() error: %v", err)
	}
	second, err := w.UniqueBuildDir("zlib-1.3.1")
	if err != nil {
		t.Fatalf("second UniqueBuildDir() error: %v", err)
	}

	if first == second {
		t.Fatalf("UniqueBuildDir() returned the same path twice: %s", first)
	}
	for _, dir := range []string{first, second} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("build dir %s was not created: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
	if filepath.Base(first) != "zlib-1.3.1" {
		t.Errorf("first dir = %s, want base name zlib-1.3.1", first)
	}
	if filepath.Base(second) != "zlib-1.3.1.1" {
		t.Errorf("second dir = %s, want numbered suffix", second)
	}
}

func TestUniqueBuildDirSkipsExisting(t *testing.T) {
	w := New(t.TempDir())

	// Simulate stale trees from aborted builds.
	for _, name := range []string{"pkg", "pkg.1", "pkg.2"} {
		if err := os.MkdirAll(filepath.Join(w.Root, "build", name), 0755); err != nil {
			t.Fatal(err)
		}
	}

	dir, err := w.UniqueBuildDir("pkg")
	if err != nil {
		t.Fatalf("UniqueBuildDir() error: %v", err)
	}
	if filepath.Base(dir) != "pkg.3" {
		t.Errorf("dir = %s, want pkg.3", dir)
	}
}

func TestInstallDirLayout(t *testing.T) {
	w := New("/ws")
	got := w.InstallDir("zlib", "1.3.1")
	want := filepath.Join("/ws", "software", "zlib", "1.3.1")
	if got != want {
		t.Errorf("InstallDir() = %q, want %q", got, want)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	w := New(t.TempDir())
	install := filepath.Join(w.Root, "software", "zlib", "1.3.1")
	if err := os.MkdirAll(install, 0755); err != nil {
		t.Fatal(err)
	}

	if _, ok := w.LookupInstall("zlib", "1.3.1"); ok {
		t.Fatal("LookupInstall() hit before RecordInstall")
	}
	if err := w.RecordInstall("zlib", "1.3.1", install); err != nil {
		t.Fatalf("RecordInstall() error: %v", err)
	}

	dir, ok := w.LookupInstall("zlib", "1.3.1")
	if !ok {
		t.Fatal("LookupInstall() missed after RecordInstall")
	}
	if dir != install {
		t.Errorf("LookupInstall() = %q, want %q", dir, install)
	}
}

func TestCacheIgnoresDeletedInstall(t *testing.T) {
	w := New(t.TempDir())
	install := filepath.Join(w.Root, "software", "zlib", "1.3.1")
	if err := os.MkdirAll(install, 0755); err != nil {
		t.Fatal(err)
	}
	if err := w.RecordInstall("zlib", "1.3.1", install); err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(install); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.LookupInstall("zlib", "1.3.1"); ok {
		t.Error("LookupInstall() hit for a deleted install")
	}
}

func TestLock(t *testing.T) {
	w := New(t.TempDir())

	unlock, err := w.Lock()
	if err != nil {
		t.Fatalf("Lock() error: %v", err)
	}

	if _, err := w.Lock(); err == nil {
		t.Error("second Lock() succeeded while held")
	} else if !strings.Contains(err.Error(), "in use") {
		t.Errorf("second Lock() error = %v, want in-use message", err)
	}

	unlock()
	unlock2, err := w.Lock()
	if err != nil {
		t.Fatalf("Lock() after unlock error: %v", err)
	}
	unlock2()
}

func TestDefaultHonorsEnv(t *testing.T) {
	t.Setenv("MORTAR_WORKSPACE", "/custom/ws")
	w, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if w.Root != "/custom/ws" {
		t.Errorf("Root = %q, want /custom/ws", w.Root)
	}
}
