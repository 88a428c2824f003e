// Package cmake builds packages that configure with CMake and test
// with ctest.
package cmake

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-shellwords"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/recipe"
)

type CMake struct {
	block.Base
}

var _ block.Block = (*CMake)(nil)

func New() *CMake { return &CMake{} }

func (c *CMake) Name() string { return "cmake" }

func (c *CMake) Options() []recipe.OptionSpec {
	return []recipe.OptionSpec{
		{Name: "configopts", Type: recipe.String, Default: "", Help: "extra cmake configure arguments, appended last"},
		{Name: "buildopts", Type: recipe.String, Default: "", Help: "extra cmake --build arguments"},
		{Name: "installopts", Type: recipe.String, Default: "", Help: "extra cmake --install arguments"},
		{Name: "testopts", Type: recipe.String, Default: "", Help: "extra ctest arguments, appended last"},
		{Name: "generator", Type: recipe.String, Default: "", Help: "cmake generator (-G)"},
		{Name: "build_type", Type: recipe.String, Default: "Release", Help: "CMAKE_BUILD_TYPE unless the recipe overrides it"},
		{Name: "build_shared_libs", Type: recipe.Bool, Default: true, Help: "BUILD_SHARED_LIBS unless the recipe overrides it"},
		{Name: "separate_build_dir", Type: recipe.Bool, Default: true, Help: "configure in a build dir outside the source tree"},
		{Name: "srcdir", Type: recipe.String, Default: "", Help: "subdirectory of the source tree holding CMakeLists.txt"},
		{Name: "toolchain_file", Type: recipe.String, Default: "", Help: "CMAKE_TOOLCHAIN_FILE"},
		{Name: "build_targets", Type: recipe.StringList, Help: "targets to build instead of the default"},
		{Name: "parallel", Type: recipe.Int, Default: 0, Help: "override the build job count"},
		{Name: "long_test_pattern", Type: recipe.String, Default: "", Help: "ctest name pattern of the long-running tests"},
	}
}

func (c *CMake) Configure(b *block.Build) error {
	b.UseDeps()

	if b.Opts.Bool("separate_build_dir") {
		dir := filepath.Join(b.Root, "obj")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		b.BuildDir = dir
	}

	args := block.NewDefineArgs()
	if err := args.AddUser(b.Opts.String("configopts")); err != nil {
		return err
	}
	args.SetForced("CMAKE_INSTALL_PREFIX", b.InstallDir)
	if tc := b.Opts.String("toolchain_file"); tc != "" {
		args.SetForced("CMAKE_TOOLCHAIN_FILE", tc)
	}
	args.SetDefault("CMAKE_BUILD_TYPE", b.Opts.String("build_type"))
	args.SetDefaultBool("BUILD_SHARED_LIBS", b.Opts.Bool("build_shared_libs"))

	src := b.SourceDir
	if sub := b.Opts.String("srcdir"); sub != "" {
		src = filepath.Join(b.SourceDir, sub)
	}
	cmakeArgs := []string{"-S", src, "-B", b.BuildDir}
	if g := b.Opts.String("generator"); g != "" {
		cmakeArgs = append(cmakeArgs, "-G", g)
	}
	cmakeArgs = append(cmakeArgs, args.List()...)
	return b.Run(b.BuildDir, "cmake", cmakeArgs...)
}

func (c *CMake) Build(b *block.Build) error {
	args := []string{"--build", b.BuildDir, "--parallel", strconv.Itoa(b.Jobs())}
	for _, target := range b.Opts.Strings("build_targets") {
		args = append(args, "--target", target)
	}
	extra, err := optTokens(b, "buildopts")
	if err != nil {
		return err
	}
	args = append(args, extra...)
	return b.Run(b.BuildDir, "cmake", args...)
}

func (c *CMake) Test(b *block.Build) error {
	return block.CTest(b, b.Opts.String("testopts"), Categories(b))
}

func (c *CMake) Install(b *block.Build) error {
	args := []string{"--install", b.BuildDir, "--prefix", b.InstallDir}
	extra, err := optTokens(b, "installopts")
	if err != nil {
		return err
	}
	args = append(args, extra...)
	return b.Run(b.BuildDir, "cmake", args...)
}

// Categories maps the recipe's test policy onto ctest name patterns.
// Shared with other ctest-running blocks.
func Categories(b *block.Build) []block.TestCategory {
	pol := b.Recipe.Test
	return []block.TestCategory{
		{Name: "long", Pattern: b.Opts.String("long_test_pattern"), Run: pol.RunLong},
		{Name: "numerical", Pattern: pol.NumericalPattern, Run: pol.RunNumerical},
	}
}

func optTokens(b *block.Build, name string) ([]string, error) {
	raw := b.Opts.String(name)
	if raw == "" {
		return nil, nil
	}
	tokens, err := shellwords.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return tokens, nil
}
