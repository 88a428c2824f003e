// Package filetext rewrites build files in place with regular-expression
// substitutions, the lightweight companion to patch files for recipes
// that only need to drop a flag or disable a test list.
package filetext

import (
	"fmt"
	"os"
	"regexp"
)

// Sub is one substitution: a regular expression and its replacement
// (Go template syntax, $1 for groups).
type Sub struct {
	Pattern string
	Replace string
}

// Substitute applies the substitutions to the file in order, rewriting
// it in place and preserving its mode. A pattern that matches nothing
// is an error: a substitution that no longer applies means the source
// layout changed and the recipe must be revisited, not silently
// skipped.
func Substitute(path string, subs []Sub) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	text := string(data)
	for _, s := range subs {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("substitute %s: bad pattern %q: %w", path, s.Pattern, err)
		}
		if !re.MatchString(text) {
			return fmt.Errorf("substitute %s: pattern %q matched nothing", path, s.Pattern)
		}
		text = re.ReplaceAllString(text, s.Replace)
	}
	return os.WriteFile(path, []byte(text), info.Mode().Perm())
}
