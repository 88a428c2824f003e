package block

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/qiniu/x/log"

	"github.com/mortarbuild/mortar/internal/env"
	"github.com/mortarbuild/mortar/internal/fetch"
	"github.com/mortarbuild/mortar/internal/filetext"
	"github.com/mortarbuild/mortar/internal/modulefile"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/internal/vcs"
	"github.com/mortarbuild/mortar/internal/workspace"
	"github.com/mortarbuild/mortar/recipe"
)

// Config carries the command-line knobs for a build.
type Config struct {
	Workspace *workspace.Workspace
	Runner    run.Runner

	Parallel int
	RPath    bool
	SkipTest bool
	Force    bool
}

// Pipeline drives one recipe through the build steps in order. Steps
// run strictly one after another; a failing step aborts the build.
type Pipeline struct {
	Block Block
	Build *Build

	force    bool
	skipTest bool
	fetched  []string
}

// NewPipeline resolves the recipe options against the block's declared
// specs and the dependencies against the workspace, and prepares the
// build state.
func NewPipeline(r *recipe.Recipe, blk Block, cfg Config) (*Pipeline, error) {
	opts, err := recipe.ResolveOptions(blk.Options(), r.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.FullName(), err)
	}
	b := &Build{
		Recipe:     r,
		Opts:       opts,
		Workspace:  cfg.Workspace,
		Runner:     cfg.Runner,
		Env:        env.New(),
		Deps:       map[string]*modulefile.Module{},
		InstallDir: cfg.Workspace.InstallDir(r.Name, r.Version.String()),
		Parallel:   cfg.Parallel,
		RPath:      cfg.RPath,
	}
	b.Module = modulefile.New(r.Name, r.Version.String(), b.InstallDir)

	for _, dep := range r.Dependencies {
		if dep.Version == "" {
			return nil, fmt.Errorf("%s: dependency %s needs a version", r.FullName(), dep.Name)
		}
		dir, ok := cfg.Workspace.LookupInstall(dep.Name, dep.Version)
		if !ok {
			return nil, fmt.Errorf("%s: dependency %s@%s is not installed", r.FullName(), dep.Name, dep.Version)
		}
		m, err := modulefile.Read(dir)
		if err != nil {
			return nil, fmt.Errorf("%s: dependency %s@%s: %w", r.FullName(), dep.Name, dep.Version, err)
		}
		b.Deps[dep.Name] = m
		if err := m.Load(b.Env); err != nil {
			log.Warnf("loading %s@%s: %v", dep.Name, dep.Version, err)
		}
		if !dep.Build {
			b.Module.Require(dep.Name + "@" + dep.Version)
		}
	}

	return &Pipeline{Block: blk, Build: b, force: cfg.Force, skipTest: cfg.SkipTest}, nil
}

type step struct {
	name string
	fn   func() error
}

func (p *Pipeline) steps() []step {
	b := p.Build
	return []step{
		{"fetch", p.fetch},
		{"extract", p.extract},
		{"patch", p.patch},
		{"configure", func() error { return p.Block.Configure(b) }},
		{"build", func() error { return p.Block.Build(b) }},
		{"test", func() error { return p.Block.Test(b) }},
		{"install", func() error { return p.Block.Install(b) }},
		{"sanity", p.sanity},
		{"module", p.module},
	}
}

// Run executes the pipeline. An already-installed package is a no-op
// unless the build is forced.
func (p *Pipeline) Run(ctx context.Context) error {
	b := p.Build
	r := b.Recipe

	if dir, ok := b.Workspace.LookupInstall(r.Name, r.Version.String()); ok && !p.force {
		log.Infof("%s already installed in %s", r.FullName(), dir)
		return nil
	}

	unlock, err := b.Workspace.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	root, err := b.Workspace.UniqueBuildDir(r.Name + "-" + r.Version.String())
	if err != nil {
		return err
	}
	b.Root = root
	b.SourceDir = root
	b.BuildDir = root
	b.ctx = ctx

	log.Infof("building %s with the %s block", r.FullName(), p.Block.Name())
	log.Infof("build dir: %s", root)

	for _, s := range p.steps() {
		if r.Skips(s.name) || (s.name == "test" && p.skipTest) {
			log.Infof("== %s (skipped)", s.name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Infof("== %s", s.name)
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %s: %w", r.FullName(), s.name, err)
		}
	}
	return nil
}

func (p *Pipeline) fetch() error {
	fetched, err := FetchSources(p.Build, p.Build.Recipe.Sources)
	if err != nil {
		return err
	}
	p.fetched = fetched
	return nil
}

func (p *Pipeline) extract() error {
	return ExtractSources(p.Build, p.fetched)
}

func (p *Pipeline) patch() error {
	if err := ApplyPatches(p.Build, p.Build.Recipe.Patches); err != nil {
		return err
	}
	return ApplySubstitutions(p.Build, p.Build.Recipe.Substitutions)
}

func (p *Pipeline) sanity() error {
	b := p.Build
	p.collectContributions()

	overlay := b.Env.Clone()
	var result *multierror.Error
	if err := b.Module.Load(overlay); err != nil {
		result = multierror.Append(result, err)
	}
	if err := CheckSanity(b, b.Recipe.Sanity, overlay); err != nil {
		result = multierror.Append(result, err)
	}
	if err := p.Block.Sanity(b); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (p *Pipeline) module() error {
	b := p.Build
	p.collectContributions()
	if err := p.Block.Module(b); err != nil {
		return err
	}
	metaDir := b.Workspace.InstallDir(b.Recipe.Name, b.Recipe.Version.String())
	if err := b.Module.Write(metaDir); err != nil {
		return err
	}
	if err := b.Workspace.RecordInstall(b.Recipe.Name, b.Recipe.Version.String(), metaDir); err != nil {
		return err
	}
	log.Infof("registered module %s", b.Recipe.FullName())
	return nil
}

// pathGuesses are the install subdirectories that, when present, go on
// the consumers' search paths.
var pathGuesses = []struct {
	varName string
	dirs    []string
}{
	{"PATH", []string{"bin", "sbin"}},
	{"LD_LIBRARY_PATH", []string{"lib", "lib64"}},
	{"LIBRARY_PATH", []string{"lib", "lib64"}},
	{"CPATH", []string{"include"}},
	{"MANPATH", []string{"share/man"}},
	{"PKG_CONFIG_PATH", []string{"lib/pkgconfig", "share/pkgconfig"}},
	{"CMAKE_PREFIX_PATH", []string{""}},
}

// collectContributions fills the module with path contributions for the
// standard install subdirectories that exist. Safe to call more than
// once; duplicates are dropped.
func (p *Pipeline) collectContributions() {
	ScanContributions(p.Build.Module)
}

// ScanContributions adds a path contribution to the module for every
// standard install subdirectory present under its prefix. The bundle
// composer uses it to pick up what each component installed.
func ScanContributions(m *modulefile.Module) {
	for _, g := range pathGuesses {
		for _, rel := range g.dirs {
			if info, err := os.Stat(filepath.Join(m.InstallDir, rel)); err == nil && info.IsDir() {
				m.PrependPath(g.varName, rel)
			}
		}
	}
}

// FetchSources materializes recipe sources: archives download into the
// shared source cache, git refs sync into the build scratch dir, local
// paths resolve against the recipe directory. Paths return in source
// order.
func FetchSources(b *Build, srcs []recipe.Source) ([]string, error) {
	var out []string
	for i, s := range srcs {
		switch {
		case s.URL != "":
			path, err := fetch.Download(b.Context(), s.URL, s.SHA256, b.Workspace.SourceDir(b.Recipe.Name))
			if err != nil {
				return nil, err
			}
			out = append(out, path)
		case s.Git != "":
			git := vcs.New()
			if !git.Available() {
				return nil, errors.New("git source needs git on PATH")
			}
			dir := filepath.Join(b.Root, "checkout."+strconv.Itoa(i+1))
			log.Infof("syncing %s at %s", s.Git, s.Ref)
			if err := git.Sync(b.Context(), s.Git, s.Ref, dir); err != nil {
				return nil, err
			}
			out = append(out, dir)
		case s.Path != "":
			path := s.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(b.Recipe.Dir, path)
			}
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("local source: %w", err)
			}
			out = append(out, path)
		}
	}
	return out, nil
}

// ExtractSources unpacks fetched sources into the scratch dir and
// points the build at the first tree. Recipes without sources (host
// compiler probes) leave the scratch dir as is.
func ExtractSources(b *Build, fetched []string) error {
	if len(fetched) == 0 {
		return nil
	}
	for i, path := range fetched {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		dir := path
		if !info.IsDir() {
			log.Infof("unpacking %s", filepath.Base(path))
			if dir, err = fetch.Extract(path, b.Root); err != nil {
				return err
			}
		}
		if i == 0 {
			b.SourceDir = dir
			b.BuildDir = dir
		}
	}
	return nil
}

// ApplyPatches runs patch for each recipe patch inside the source tree.
// Patch files resolve relative to the recipe directory.
func ApplyPatches(b *Build, patches []recipe.Patch) error {
	for _, p := range patches {
		file := p.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(b.Recipe.Dir, file)
		}
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("patch %s: %w", p.File, err)
		}
		log.Infof("applying %s (-p%d)", filepath.Base(file), p.Strip)
		if err := b.Run(b.SourceDir, "patch", "-p"+strconv.Itoa(p.Strip), "-i", file); err != nil {
			return fmt.Errorf("patch %s: %w", p.File, err)
		}
	}
	return nil
}

// ApplySubstitutions edits source files in place, keeping the per-file
// order the recipe gives.
func ApplySubstitutions(b *Build, subs []recipe.Substitution) error {
	byFile := map[string][]filetext.Sub{}
	var order []string
	for _, s := range subs {
		if _, ok := byFile[s.File]; !ok {
			order = append(order, s.File)
		}
		byFile[s.File] = append(byFile[s.File], filetext.Sub{Pattern: s.Pattern, Replace: s.Replace})
	}
	for _, file := range order {
		log.Infof("editing %s", file)
		if err := filetext.Substitute(filepath.Join(b.SourceDir, file), byFile[file]); err != nil {
			return fmt.Errorf("substitute %s: %w", file, err)
		}
	}
	return nil
}
