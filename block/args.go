package block

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"
)

type argValue struct {
	value    string
	typeName string
	forced   bool
}

// Args accumulates arguments for a configure tool. Blocks seed it with
// defaults, force the settings they need, and recipe-supplied option
// strings are appended last so they win on tools where later arguments
// override earlier ones.
//
// Define style renders -DNAME=VALUE (or -DNAME:TYPE=VALUE), flag style
// renders --name=value with --enable-name/--disable-name booleans.
type Args struct {
	define bool
	vals   map[string]argValue
	user   []string
}

// NewDefineArgs builds cmake-style -D arguments.
func NewDefineArgs() *Args {
	return &Args{define: true, vals: map[string]argValue{}}
}

// NewFlagArgs builds configure-style -- arguments.
func NewFlagArgs() *Args {
	return &Args{vals: map[string]argValue{}}
}

// SetDefault sets an argument unless the name is already present,
// whether from an earlier call or from recipe-supplied tokens.
func (a *Args) SetDefault(name, value string) *Args {
	if a.Has(name) {
		return a
	}
	a.vals[name] = argValue{value: value, typeName: a.stringType()}
	return a
}

// SetForced sets an argument, replacing any earlier default. Recipe
// tokens still come later on the command line.
func (a *Args) SetForced(name, value string) *Args {
	a.vals[name] = argValue{value: value, typeName: a.stringType(), forced: true}
	return a
}

// SetDefaultBool is SetDefault for a boolean setting: ON/OFF for
// defines, --enable/--disable for flags.
func (a *Args) SetDefaultBool(name string, on bool) *Args {
	if a.Has(name) {
		return a
	}
	a.vals[name] = argValue{value: boolValue(on), typeName: a.boolType()}
	return a
}

// SetForcedBool is SetForced for a boolean setting.
func (a *Args) SetForcedBool(name string, on bool) *Args {
	a.vals[name] = argValue{value: boolValue(on), typeName: a.boolType(), forced: true}
	return a
}

// AddUser appends a recipe-supplied argument string, split like a
// shell would.
func (a *Args) AddUser(raw string) error {
	if raw == "" {
		return nil
	}
	tokens, err := shellwords.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse options %q: %w", raw, err)
	}
	a.user = append(a.user, tokens...)
	return nil
}

// Has reports whether the name is already present, either set by a
// block or among the user tokens.
func (a *Args) Has(name string) bool {
	if _, ok := a.vals[name]; ok {
		return true
	}
	for _, tok := range a.user {
		if a.tokenNames(name, tok) {
			return true
		}
	}
	return false
}

// tokenNames reports whether a user token sets the named argument. A
// define matches on the full -Dname= or -Dname: prefix so that names
// sharing a prefix are not confused.
func (a *Args) tokenNames(name, tok string) bool {
	if a.define {
		return strings.HasPrefix(tok, "-D"+name+"=") ||
			strings.HasPrefix(tok, "-D"+name+":")
	}
	if tok == "--"+name || strings.HasPrefix(tok, "--"+name+"=") {
		return true
	}
	return tok == "--enable-"+name || tok == "--disable-"+name
}

// List renders the arguments: block settings sorted by name, then the
// user tokens in their given order.
func (a *Args) List() []string {
	names := make([]string, 0, len(a.vals))
	for name := range a.vals {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names)+len(a.user))
	for _, name := range names {
		out = append(out, a.render(name, a.vals[name]))
	}
	return append(out, a.user...)
}

func (a *Args) render(name string, v argValue) string {
	if a.define {
		if v.typeName != "" {
			return "-D" + name + ":" + v.typeName + "=" + v.value
		}
		return "-D" + name + "=" + v.value
	}
	switch v.typeName {
	case "BOOL":
		if v.value == "ON" {
			return "--enable-" + name
		}
		return "--disable-" + name
	}
	if v.value == "" {
		return "--" + name
	}
	return "--" + name + "=" + v.value
}

func (a *Args) String() string {
	return strings.Join(a.List(), " ")
}

func (a *Args) stringType() string {
	if a.define {
		return "STRING"
	}
	return ""
}

func (a *Args) boolType() string {
	return "BOOL"
}

func boolValue(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
