package testparse

import (
	"fmt"
	"regexp"
)

// compilerVersionRe matches a dotted release number surrounded by
// whitespace, as printed by `gcc --version` and `clang --version`.
var compilerVersionRe = regexp.MustCompile(`\s(\d+(?:\.\d+){1,3})[\s\-]`)

// ParseCompilerVersion extracts the first release-looking number from a
// compiler's --version output. An output with no such number is an
// error: proceeding with an unknown compiler version would corrupt every
// downstream version decision.
func ParseCompilerVersion(output string) (string, error) {
	m := compilerVersionRe.FindStringSubmatch(" " + output + " ")
	if m == nil {
		return "", fmt.Errorf("no version number found in compiler output %q", firstLine(output))
	}
	return m[1], nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
