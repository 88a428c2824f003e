// Package autotools builds configure/make packages.
package autotools

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-shellwords"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/recipe"
)

type Autotools struct {
	block.Base
}

var _ block.Block = (*Autotools)(nil)

func New() *Autotools { return &Autotools{} }

func (a *Autotools) Name() string { return "autotools" }

func (a *Autotools) Options() []recipe.OptionSpec {
	return []recipe.OptionSpec{
		{Name: "preconfigopts", Type: recipe.String, Default: "", Help: "shell fragment run before ./configure on the same line"},
		{Name: "configopts", Type: recipe.String, Default: "", Help: "extra ./configure arguments, appended last"},
		{Name: "prebuildopts", Type: recipe.String, Default: "", Help: "shell fragment run before make"},
		{Name: "buildopts", Type: recipe.String, Default: "", Help: "extra make arguments"},
		{Name: "preinstallopts", Type: recipe.String, Default: "", Help: "shell fragment run before make install"},
		{Name: "installopts", Type: recipe.String, Default: "", Help: "extra make install arguments"},
		{Name: "test_target", Type: recipe.String, Default: "", Help: "make target for the test step, empty skips it"},
		{Name: "build_in_source", Type: recipe.Bool, Default: true, Help: "run configure in the source tree; false builds from a separate dir"},
		{Name: "shared_libs", Type: recipe.Bool, Default: true, Help: "--enable-shared unless the recipe overrides it"},
		{Name: "parallel", Type: recipe.Int, Default: 0, Help: "override the build job count"},
	}
}

func (a *Autotools) Configure(b *block.Build) error {
	b.UseDeps()

	script := filepath.Join(b.SourceDir, "configure")
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("no configure script in %s", b.SourceDir)
	}
	if !b.Opts.Bool("build_in_source") {
		dir := filepath.Join(b.Root, "obj")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		b.BuildDir = dir
	}

	args := block.NewFlagArgs()
	if err := args.AddUser(b.Opts.String("configopts")); err != nil {
		return err
	}
	args.SetForced("prefix", b.InstallDir)
	args.SetDefaultBool("shared", b.Opts.Bool("shared_libs"))

	argv := append([]string{script}, args.List()...)
	return a.runStep(b, "preconfigopts", argv)
}

func (a *Autotools) Build(b *block.Build) error {
	argv := []string{"make", "-j", strconv.Itoa(b.Jobs())}
	extra, err := tokens(b, "buildopts")
	if err != nil {
		return err
	}
	argv = append(argv, extra...)
	return a.runStep(b, "prebuildopts", argv)
}

func (a *Autotools) Test(b *block.Build) error {
	target := b.Opts.String("test_target")
	if target == "" {
		return nil
	}
	return b.Run(b.BuildDir, "make", target)
}

func (a *Autotools) Install(b *block.Build) error {
	argv := []string{"make", "install"}
	extra, err := tokens(b, "installopts")
	if err != nil {
		return err
	}
	argv = append(argv, extra...)
	return a.runStep(b, "preinstallopts", argv)
}

// runStep runs an argv, going through the shell only when the recipe
// put a prefix fragment in front of it.
func (a *Autotools) runStep(b *block.Build, preOpt string, argv []string) error {
	if pre := b.Opts.String(preOpt); pre != "" {
		return b.Script(b.BuildDir, block.ShellLine(pre, argv, ""))
	}
	return b.Run(b.BuildDir, argv[0], argv[1:]...)
}

func tokens(b *block.Build, name string) ([]string, error) {
	raw := b.Opts.String(name)
	if raw == "" {
		return nil, nil
	}
	out, err := shellwords.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return out, nil
}
