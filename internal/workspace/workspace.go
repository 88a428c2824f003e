// Package workspace manages mortar's on-disk state.
//
// Directory layout:
//
//	root/
//	  sources/<name>/            # downloaded archives and checkouts
//	  build/<base>[.N]/          # build trees, one per attempt, never reused
//	  software/<name>/<version>/ # install prefixes
//	  locks/build.lock           # cross-process build lock
//	  cache.json                 # completed-build cache
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danjacques/gofslock/fslock"
)

// Workspace is a rooted directory tree holding sources, build trees and
// installed software.
type Workspace struct {
	Root string
}

// New returns a workspace rooted at dir.
func New(dir string) *Workspace {
	return &Workspace{Root: dir}
}

// Default returns the workspace from $MORTAR_WORKSPACE, falling back to
// <UserCacheDir>/mortar.
func Default() (*Workspace, error) {
	if dir := os.Getenv("MORTAR_WORKSPACE"); dir != "" {
		return New(dir), nil
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return New(filepath.Join(cacheDir, "mortar")), nil
}

// SourceDir returns the download/checkout directory for a package.
func (w *Workspace) SourceDir(name string) string {
	return filepath.Join(w.Root, "sources", name)
}

// InstallDir returns the install prefix for a package version.
func (w *Workspace) InstallDir(name, version string) string {
	return filepath.Join(w.Root, "software", name, version)
}

// UniqueBuildDir creates and returns a fresh directory under the build
// root. The preferred name is base; when that exists (a previous failed
// or aborted build), a numbered suffix is appended. Creation is
// exclusive, so a stale tree with incompatible artifacts is never
// silently reused.
func (w *Workspace) UniqueBuildDir(base string) (string, error) {
	buildRoot := filepath.Join(w.Root, "build")
	if err := os.MkdirAll(buildRoot, 0755); err != nil {
		return "", err
	}

	const maxAttempts = 1000
	for i := 0; i < maxAttempts; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s.%d", base, i)
		}
		dir := filepath.Join(buildRoot, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create build dir %s: %w", dir, err)
		}
	}
	return "", fmt.Errorf("no free build directory for %q under %s after %d attempts", base, buildRoot, maxAttempts)
}

// Lock acquires the cross-process build lock. It does not wait: a held
// lock surfaces immediately as an error naming the workspace.
func (w *Workspace) Lock() (unlock func(), err error) {
	lockDir := filepath.Join(w.Root, "locks")
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, err
	}
	handle, err := fslock.Lock(filepath.Join(lockDir, "build.lock"))
	if err != nil {
		if errors.Is(err, fslock.ErrLockHeld) {
			return nil, fmt.Errorf("workspace %s is in use by another build", w.Root)
		}
		return nil, err
	}
	return func() { handle.Unlock() }, nil
}
