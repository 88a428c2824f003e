// Package env provides an explicit environment overlay for subprocess
// invocations. Build steps never mutate the process environment; they
// accumulate changes in an Overlay and hand the merged result to the
// command runner.
package env

import (
	"os"
	"runtime"
	"sort"
	"strings"
)

// Overlay is an ordered set of environment variable assignments layered
// over the ambient process environment. The zero value is not usable;
// call New.
type Overlay struct {
	names []string
	vals  map[string]string
}

// New creates an empty overlay.
func New() *Overlay {
	return &Overlay{vals: map[string]string{}}
}

// Set assigns a variable in the overlay, shadowing any ambient value.
func (o *Overlay) Set(name, value string) {
	if _, ok := o.vals[name]; !ok {
		o.names = append(o.names, name)
	}
	o.vals[name] = value
}

// Unset removes a variable from the overlay. The ambient value, if any,
// becomes visible again.
func (o *Overlay) Unset(name string) {
	if _, ok := o.vals[name]; !ok {
		return
	}
	delete(o.vals, name)
	for i, n := range o.names {
		if n == name {
			o.names = append(o.names[:i], o.names[i+1:]...)
			break
		}
	}
}

// Get returns the effective value of a variable: the overlay value if
// set, otherwise the process environment value.
func (o *Overlay) Get(name string) string {
	if v, ok := o.vals[name]; ok {
		return v
	}
	return os.Getenv(name)
}

// Lookup is Get distinguishing "empty" from "absent".
func (o *Overlay) Lookup(name string) (string, bool) {
	if v, ok := o.vals[name]; ok {
		return v, true
	}
	return os.LookupEnv(name)
}

// Prepend prepends a value to a list-valued variable using the platform
// path-list separator.
func (o *Overlay) Prepend(name, value string) {
	current := o.Get(name)
	if current == "" {
		o.Set(name, value)
		return
	}
	o.Set(name, value+ListSeparator()+current)
}

// AppendFlag appends a flag to a space-separated flags variable such as
// CPPFLAGS or LDFLAGS.
func (o *Overlay) AppendFlag(name, flag string) {
	current := o.Get(name)
	if current == "" {
		o.Set(name, flag)
		return
	}
	o.Set(name, strings.TrimSpace(current+" "+flag))
}

// Clone returns an independent copy. Derived overlays let a caller scope
// temporary changes (a bootstrap stage's PATH, a component's configure
// environment) without touching the base.
func (o *Overlay) Clone() *Overlay {
	c := &Overlay{
		names: append([]string(nil), o.names...),
		vals:  make(map[string]string, len(o.vals)),
	}
	for k, v := range o.vals {
		c.vals[k] = v
	}
	return c
}

// Names returns the overlay's variable names in assignment order.
func (o *Overlay) Names() []string {
	return append([]string(nil), o.names...)
}

// Environ returns the merged environment as a sorted KEY=value slice
// suitable for exec.Cmd.Env. Overlay values win over ambient ones.
func (o *Overlay) Environ() []string {
	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range o.vals {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// ListSeparator returns the separator for path-list variables.
func ListSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}

// Save snapshots the process environment and returns a function that
// restores it exactly. Only the CLI layer and tests should need this;
// build steps work through overlays.
func Save() (restore func()) {
	saved := os.Environ()
	return func() {
		os.Clearenv()
		for _, e := range saved {
			if k, v, ok := strings.Cut(e, "="); ok {
				os.Setenv(k, v)
			}
		}
	}
}
