// Package store manages the local copy of a recipe repository: a git
// repository laid out as <package>/<package>-<version>.hcl, synced to
// the user cache directory and queried by package name.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"golang.org/x/mod/semver"
)

// Syncer is the version-control surface the store needs.
type Syncer interface {
	Sync(ctx context.Context, remote, ref, dir string) error
	Tags(ctx context.Context, remote string) ([]string, error)
	Head(ctx context.Context, remote string) (string, error)
}

// Store is a locally synced recipe repository.
type Store struct {
	dir    string
	remote string
	client Syncer
}

// New creates a Store for remote, kept locally in dir.
func New(dir, remote string, client Syncer) *Store {
	return &Store{dir: dir, remote: remote, client: client}
}

// Dir returns the store's local directory.
func (s *Store) Dir() string {
	return s.dir
}

// DefaultDir returns the default local directory for recipe stores,
// <UserCacheDir>/mortar/recipes, creating it if needed.
func DefaultDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cacheDir, "mortar", "recipes")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// Sync brings the local copy to the newest release of the remote: the
// highest semantic-version tag, or HEAD when the remote has no release
// tags yet.
func (s *Store) Sync(ctx context.Context) error {
	tags, err := s.client.Tags(ctx, s.remote)
	if err != nil {
		return fmt.Errorf("sync recipe store: %w", err)
	}
	ref := LatestTag(tags)
	if ref == "" {
		ref, err = s.client.Head(ctx, s.remote)
		if err != nil {
			return fmt.Errorf("sync recipe store: %w", err)
		}
	}
	return s.client.Sync(ctx, s.remote, ref, s.dir)
}

// LatestTag returns the highest semantic-version tag, "" when none
// qualifies.
func LatestTag(tags []string) string {
	best := ""
	for _, tag := range tags {
		if !semver.IsValid(tag) {
			continue
		}
		if best == "" || semver.Compare(tag, best) > 0 {
			best = tag
		}
	}
	return best
}

// Find returns the path of the newest recipe file for a package,
// ordering the store's <name>-<version>.hcl files by version.
func (s *Store) Find(name string) (string, error) {
	dir := filepath.Join(s.dir, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("no recipes for %q in store %s", name, s.dir)
	}

	var bestPath string
	var bestVersion *goversion.Version
	prefix := name + "-"
	for _, e := range entries {
		fileName := e.Name()
		if e.IsDir() || !strings.HasPrefix(fileName, prefix) || !strings.HasSuffix(fileName, ".hcl") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(fileName, prefix), ".hcl")
		v, err := goversion.NewVersion(raw)
		if err != nil {
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			bestVersion = v
			bestPath = filepath.Join(dir, fileName)
		}
	}
	if bestPath == "" {
		return "", fmt.Errorf("no recipes for %q in store %s", name, s.dir)
	}
	return bestPath, nil
}
