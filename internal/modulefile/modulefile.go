// Package modulefile records what an installed package contributes to
// the environment of its consumers: path prepends and variable settings.
// The record is JSON next to the install; materializing it into an
// overlay is the "module load" other tools get from environment-modules
// files (whose generation is outside mortar's scope).
package modulefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/mortarbuild/mortar/internal/env"
)

// Contribution actions. The set is closed; Load rejects anything else.
const (
	ActionPrependPath = "prepend-path"
	ActionSetEnv      = "set-env"
)

// Contribution is one environment effect of loading a module.
type Contribution struct {
	Action string `json:"action"`
	Var    string `json:"var"`
	// Value is the variable value for set-env, and the install-relative
	// directory for prepend-path.
	Value string `json:"value"`
}

// Module is the loadable description of one installed package.
type Module struct {
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	InstallDir    string         `json:"install_dir"`
	Requires      []string       `json:"requires,omitempty"`
	Contributions []Contribution `json:"contributions"`
}

const metadataDir = ".mortar"
const metadataFile = "module.json"

// New creates an empty module description.
func New(name, version, installDir string) *Module {
	return &Module{Name: name, Version: version, InstallDir: installDir}
}

// PrependPath records that relDir (relative to the install prefix) is
// prepended to the named path-list variable. Duplicates are dropped.
func (m *Module) PrependPath(varName, relDir string) {
	for _, c := range m.Contributions {
		if c.Action == ActionPrependPath && c.Var == varName && c.Value == relDir {
			return
		}
	}
	m.Contributions = append(m.Contributions, Contribution{Action: ActionPrependPath, Var: varName, Value: relDir})
}

// SetEnv records a variable assignment. A repeated name keeps its
// original position with the new value.
func (m *Module) SetEnv(varName, value string) {
	for i, c := range m.Contributions {
		if c.Action == ActionSetEnv && c.Var == varName {
			m.Contributions[i].Value = value
			return
		}
	}
	m.Contributions = append(m.Contributions, Contribution{Action: ActionSetEnv, Var: varName, Value: value})
}

// Require records a runtime dependency as name@version. Duplicates are
// dropped.
func (m *Module) Require(full string) {
	for _, r := range m.Requires {
		if r == full {
			return
		}
	}
	m.Requires = append(m.Requires, full)
}

// Merge appends another module's contributions (bundle components roll
// up into the bundle's module).
func (m *Module) Merge(other *Module) {
	for _, c := range other.Contributions {
		switch c.Action {
		case ActionPrependPath:
			m.PrependPath(c.Var, c.Value)
		case ActionSetEnv:
			m.SetEnv(c.Var, c.Value)
		}
	}
}

// Load materializes the contributions into an overlay. Prepended
// directories are resolved against the install prefix; directories that
// do not exist are still applied but reported in the returned error so
// callers enforcing a loadable module can fail.
func (m *Module) Load(o *env.Overlay) error {
	var result *multierror.Error
	for _, c := range m.Contributions {
		switch c.Action {
		case ActionPrependPath:
			dir := filepath.Join(m.InstallDir, c.Value)
			if _, err := os.Stat(dir); err != nil {
				result = multierror.Append(result, fmt.Errorf("module %s: %s directory %s does not exist", m.Name, c.Var, dir))
			}
			o.Prepend(c.Var, dir)
		case ActionSetEnv:
			o.Set(c.Var, c.Value)
		default:
			result = multierror.Append(result, fmt.Errorf("module %s: unknown contribution action %q", m.Name, c.Action))
		}
	}
	return result.ErrorOrNil()
}

// Write stores the module description under dir. That is normally the
// install prefix, but packages describing a host-provided prefix store
// their metadata in the workspace instead.
func (m *Module) Write(dir string) error {
	dir = filepath.Join(dir, metadataDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644)
}

// Read loads the module description of an installed package.
func Read(installDir string) (*Module, error) {
	data, err := os.ReadFile(filepath.Join(installDir, metadataDir, metadataFile))
	if err != nil {
		return nil, err
	}
	var m Module
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("module metadata in %s: %w", installDir, err)
	}
	return &m, nil
}
