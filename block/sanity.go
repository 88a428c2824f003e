package block

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/qiniu/x/log"

	"github.com/mortarbuild/mortar/internal/env"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/recipe"
)

// CheckSanity verifies the install against a sanity spec: every file
// and dir pattern must match something of the right kind under the
// install prefix, and every command must succeed under the given
// overlay (the build environment with the new module loaded). All
// problems are reported together, not just the first.
func CheckSanity(b *Build, spec recipe.SanitySpec, overlay *env.Overlay) error {
	var result *multierror.Error

	for _, pat := range spec.Files {
		if err := checkGlob(b.Module.InstallDir, pat, false); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, pat := range spec.Dirs {
		if err := checkGlob(b.Module.InstallDir, pat, true); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, cmdline := range spec.Commands {
		log.Infof("sanity command: %s", cmdline)
		err := b.Runner.Run(b.Context(), run.Cmd{
			Dir:  b.Module.InstallDir,
			Env:  overlay.Environ(),
			Argv: []string{"/bin/sh", "-c", cmdline},
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("sanity command %q: %w", cmdline, err))
		}
	}
	return result.ErrorOrNil()
}

func checkGlob(root, pattern string, wantDir bool) error {
	matches, err := doublestar.FilepathGlob(filepath.Join(root, pattern))
	if err != nil {
		return fmt.Errorf("sanity pattern %q: %w", pattern, err)
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.IsDir() == wantDir {
			return nil
		}
	}
	kind := "file"
	if wantDir {
		kind = "directory"
	}
	return fmt.Errorf("no %s matches %q under %s", kind, pattern, root)
}
