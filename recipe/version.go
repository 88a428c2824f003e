package recipe

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"
)

// SystemVersion marks a package taken from the host instead of built,
// used by compiler probe blocks.
const SystemVersion = "system"

// Version is a package version. Apart from the literal "system" it is
// always an ordered version number.
type Version struct {
	raw string
	v   *goversion.Version
}

// ParseVersion parses a version string from a recipe.
func ParseVersion(s string) (Version, error) {
	if s == SystemVersion {
		return Version{raw: s}, nil
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("bad version %q: %w", s, err)
	}
	return Version{raw: s, v: v}, nil
}

// MustVersion is ParseVersion for literals known to be valid.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string { return v.raw }

// IsSystem reports whether the version is the host-provided marker.
func (v Version) IsSystem() bool { return v.v == nil }

// AtLeast reports whether the version is threshold or newer. The
// threshold is a literal and must parse; a system version has no
// ordering and always reports false.
func (v Version) AtLeast(threshold string) bool {
	if v.v == nil {
		return false
	}
	return v.v.GreaterThanOrEqual(goversion.Must(goversion.NewVersion(threshold)))
}

// Before reports whether the version is older than threshold.
func (v Version) Before(threshold string) bool {
	if v.v == nil {
		return false
	}
	return v.v.LessThan(goversion.Must(goversion.NewVersion(threshold)))
}

// Compare orders two versions. System versions sort before everything
// else.
func (v Version) Compare(other Version) int {
	switch {
	case v.v == nil && other.v == nil:
		return 0
	case v.v == nil:
		return -1
	case other.v == nil:
		return 1
	}
	return v.v.Compare(other.v)
}
