// Package bundle installs a list of component packages as one logical
// unit. Every component runs its own configure/build/test/install
// pipeline, but they all land in the bundle's single install prefix,
// and each component's environment contributions are folded into the
// running build environment so later components see what earlier ones
// installed.
package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qiniu/x/log"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/internal/modulefile"
	"github.com/mortarbuild/mortar/recipe"
)

// Lookup resolves a block name to a fresh block instance. The registry
// injects itself here; taking a function keeps this package out of the
// registry's import cycle.
type Lookup func(name string) (block.Block, error)

// built is one finished component, kept for the optional per-component
// sanity pass.
type built struct {
	comp  recipe.Component
	blk   block.Block
	build *block.Build
}

type Bundle struct {
	block.Base

	lookup Lookup
	built  []built
}

var _ block.Block = (*Bundle)(nil)

func New(lookup Lookup) *Bundle { return &Bundle{lookup: lookup} }

func (bl *Bundle) Name() string { return "bundle" }

func (bl *Bundle) Options() []recipe.OptionSpec {
	return []recipe.OptionSpec{
		{Name: "skip_components", Type: recipe.StringList, Help: "component names to leave out entirely"},
	}
}

// Configure only validates: every component must name a known block and
// resolvable options. Failing here is cheaper than failing after three
// components already built.
func (bl *Bundle) Configure(b *block.Build) error {
	if len(b.Recipe.Components) == 0 {
		return errors.New("bundle: recipe has no components")
	}
	skips := skipSet(b)
	for name := range skips {
		if findComponent(b.Recipe, name) == nil {
			return fmt.Errorf("bundle: skip_components names unknown component %q", name)
		}
	}
	for _, c := range b.Recipe.Components {
		blk, err := bl.lookup(c.BlockName)
		if err != nil {
			return fmt.Errorf("component %s: %w", c.Name, err)
		}
		if _, err := recipe.ResolveOptions(blk.Options(), c.Options); err != nil {
			return fmt.Errorf("component %s: %w", c.Name, err)
		}
	}
	return nil
}

// Install drives the component pipelines in recipe order. A component
// failure aborts the bundle; there is no best-effort remainder, since a
// later component may silently depend on the failed one.
func (bl *Bundle) Install(b *block.Build) error {
	skips := skipSet(b)
	for _, c := range b.Recipe.Components {
		if skips[c.Name] {
			log.Infof("-- component %s@%s (skipped)", c.Name, c.Version)
			continue
		}
		log.Infof("-- component %s@%s (%s)", c.Name, c.Version, c.BlockName)
		if err := bl.installComponent(b, c); err != nil {
			return fmt.Errorf("component %s: %w", c.Name, err)
		}
	}
	if len(bl.built) == 0 {
		return errors.New("bundle: every component was skipped")
	}
	return nil
}

func (bl *Bundle) installComponent(b *block.Build, c recipe.Component) error {
	blk, err := bl.lookup(c.BlockName)
	if err != nil {
		return err
	}
	opts, err := recipe.ResolveOptions(blk.Options(), c.Options)
	if err != nil {
		return err
	}

	root := filepath.Join(b.Root, "comp."+c.Name)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}

	// The component recipe borrows the bundle's policies and source
	// directory context but carries the component's own sources and
	// patches.
	cr := &recipe.Recipe{
		Name:          c.Name,
		Version:       c.Version,
		BlockName:     c.BlockName,
		Sources:       c.Sources,
		Patches:       c.Patches,
		Skip:          c.Skip,
		Options:       c.Options,
		Test:          b.Recipe.Test,
		Dir:           b.Recipe.Dir,
		Substitutions: nil,
	}

	cb := &block.Build{
		Recipe:    cr,
		Opts:      opts,
		Workspace: b.Workspace,
		Runner:    b.Runner,
		// The running overlay: contributions of earlier components are
		// already merged in. Cloning keeps the component's transient
		// mutations (UseDeps flags and the like) out of the bundle.
		Env:        b.Env.Clone(),
		Deps:       b.Deps,
		Root:       root,
		SourceDir:  root,
		BuildDir:   root,
		InstallDir: b.InstallDir,
		Parallel:   b.Parallel,
		RPath:      b.RPath,
	}
	cb.Module = modulefile.New(c.Name, c.Version.String(), b.InstallDir)

	var fetched []string
	steps := []struct {
		name string
		fn   func() error
	}{
		{"fetch", func() error {
			var err error
			fetched, err = block.FetchSources(cb, cr.Sources)
			return err
		}},
		{"extract", func() error { return block.ExtractSources(cb, fetched) }},
		{"patch", func() error { return block.ApplyPatches(cb, cr.Patches) }},
		{"configure", func() error { return blk.Configure(cb) }},
		{"build", func() error { return blk.Build(cb) }},
		{"test", func() error { return blk.Test(cb) }},
		{"install", func() error { return blk.Install(cb) }},
	}
	for _, s := range steps {
		if cr.Skips(s.name) {
			continue
		}
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	// Fold what the component installed into the bundle: its module
	// contributions join the bundle's module, and loading them into the
	// bundle overlay makes them visible to the next component's
	// configure.
	if err := blk.Module(cb); err != nil {
		return err
	}
	block.ScanContributions(cb.Module)
	b.Module.Merge(cb.Module)
	if err := cb.Module.Load(b.Env); err != nil {
		log.Warnf("component %s contributions: %v", c.Name, err)
	}

	bl.built = append(bl.built, built{comp: c, blk: blk, build: cb})
	return nil
}

// Sanity applies the bundle policy: the pipeline already checked that
// the merged module loads, which is the default. When the recipe asks
// for full or selected per-component sanity, those components' own
// checks run too.
func (bl *Bundle) Sanity(b *block.Build) error {
	spec := b.Recipe.Sanity
	if !spec.Full && len(spec.Components) == 0 {
		return nil
	}
	want := map[string]bool{}
	for _, name := range spec.Components {
		want[name] = true
	}
	for _, bc := range bl.built {
		if !spec.Full && !want[bc.comp.Name] {
			continue
		}
		log.Infof("sanity: component %s", bc.comp.Name)
		if err := bc.blk.Sanity(bc.build); err != nil {
			return fmt.Errorf("component %s: %w", bc.comp.Name, err)
		}
	}
	return nil
}

func skipSet(b *block.Build) map[string]bool {
	out := map[string]bool{}
	for _, name := range b.Opts.Strings("skip_components") {
		out[name] = true
	}
	return out
}

func findComponent(r *recipe.Recipe, name string) *recipe.Component {
	for i := range r.Components {
		if r.Components[i].Name == name {
			return &r.Components[i]
		}
	}
	return nil
}
