package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const cacheFile = "cache.json"

// cacheEntry records one completed install.
type cacheEntry struct {
	InstallDir string    `json:"install_dir"`
	BuildTime  time.Time `json:"build_time"`
}

// buildCache maps "name@version" keys to their install records.
type buildCache struct {
	Installs map[string]*cacheEntry `json:"installs"`
}

func cacheKey(name, version string) string {
	return name + "@" + version
}

// LookupInstall reports whether a package version was already installed
// and the install still exists on disk.
func (w *Workspace) LookupInstall(name, version string) (string, bool) {
	cache, err := w.loadCache()
	if err != nil {
		return "", false
	}
	entry, ok := cache.Installs[cacheKey(name, version)]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(entry.InstallDir); err != nil {
		return "", false
	}
	return entry.InstallDir, true
}

// RecordInstall marks a package version as installed.
func (w *Workspace) RecordInstall(name, version, installDir string) error {
	cache, err := w.loadCache()
	if err != nil {
		cache = &buildCache{}
	}
	if cache.Installs == nil {
		cache.Installs = make(map[string]*cacheEntry)
	}
	cache.Installs[cacheKey(name, version)] = &cacheEntry{
		InstallDir: installDir,
		BuildTime:  time.Now(),
	}
	return w.saveCache(cache)
}

func (w *Workspace) loadCache() (*buildCache, error) {
	data, err := os.ReadFile(filepath.Join(w.Root, cacheFile))
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func (w *Workspace) saveCache(cache *buildCache) error {
	if err := os.MkdirAll(w.Root, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.Root, cacheFile), data, 0o644)
}
