package recipe

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/mortarbuild/mortar/internal/sysinfo"
)

type recipeHCL struct {
	Package *packageHCL `hcl:"package,block"`
}

type packageHCL struct {
	Name    string `hcl:"name,label"`
	Version string `hcl:"version,label"`

	Block       string   `hcl:"block"`
	Homepage    string   `hcl:"homepage,optional"`
	Description string   `hcl:"description,optional"`
	Skip        []string `hcl:"skip,optional"`

	Sources      []sourceHCL     `hcl:"source,block"`
	Patches      []patchHCL      `hcl:"patch,block"`
	Substitutes  []substituteHCL `hcl:"substitute,block"`
	Dependencies []dependencyHCL `hcl:"dependency,block"`
	Components   []componentHCL  `hcl:"component,block"`
	Options      *bodyHCL        `hcl:"options,block"`
	Test         *testHCL        `hcl:"test,block"`
	Sanity       *sanityHCL      `hcl:"sanity,block"`
}

// bodyHCL defers decoding of an attribute-only block whose names are
// not known here, like options{} whose schema the block declares.
type bodyHCL struct {
	Body hcl.Body `hcl:",remain"`
}

type sourceHCL struct {
	URL    string `hcl:"url,optional"`
	SHA256 string `hcl:"sha256,optional"`
	Git    string `hcl:"git,optional"`
	Ref    string `hcl:"ref,optional"`
	Path   string `hcl:"path,optional"`
}

type patchHCL struct {
	File  string `hcl:"file"`
	Strip *int   `hcl:"strip,optional"`
}

type substituteHCL struct {
	File    string `hcl:"file"`
	Pattern string `hcl:"pattern"`
	Replace string `hcl:"replace,optional"`
}

type dependencyHCL struct {
	Name    string `hcl:"name,label"`
	Version string `hcl:"version,optional"`
	Build   bool   `hcl:"build,optional"`
}

type componentHCL struct {
	Name    string      `hcl:"name,label"`
	Version string      `hcl:"version,label"`
	Block   string      `hcl:"block"`
	Skip    []string    `hcl:"skip,optional"`
	Sources []sourceHCL `hcl:"source,block"`
	Patches []patchHCL  `hcl:"patch,block"`
	Options *bodyHCL    `hcl:"options,block"`
}

type testHCL struct {
	Run                *bool  `hcl:"run,optional"`
	RunLong            bool   `hcl:"run_long,optional"`
	RunNumerical       *bool  `hcl:"run_numerical,optional"`
	MaxFailedNumerical int    `hcl:"max_failed_numerical,optional"`
	MaxFailedOther     int    `hcl:"max_failed_other,optional"`
	NumericalPattern   string `hcl:"numerical_pattern,optional"`
}

type sanityHCL struct {
	Files      []string `hcl:"files,optional"`
	Dirs       []string `hcl:"dirs,optional"`
	Commands   []string `hcl:"commands,optional"`
	Components []string `hcl:"components,optional"`
	Full       bool     `hcl:"full,optional"`
}

// Load reads and validates a recipe file.
func Load(path string) (*Recipe, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse recipe: %s", diags.Error())
	}
	r, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r.Path = abs
	r.Dir = filepath.Dir(abs)
	return r, nil
}

// LoadBytes parses a recipe from memory. The filename labels
// diagnostics only.
func LoadBytes(src []byte, filename string) (*Recipe, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse recipe: %s", diags.Error())
	}
	return decode(file)
}

func decode(file *hcl.File) (*Recipe, error) {
	name, version, err := peekHeader(file.Body)
	if err != nil {
		return nil, err
	}
	ctx := evalContext(name, version)

	var rf recipeHCL
	if diags := gohcl.DecodeBody(file.Body, ctx, &rf); diags.HasErrors() {
		return nil, errors.New(diags.Error())
	}

	r := &Recipe{
		Name:        rf.Package.Name,
		BlockName:   rf.Package.Block,
		Homepage:    rf.Package.Homepage,
		Description: rf.Package.Description,
		Skip:        rf.Package.Skip,
		Test:        DefaultTestPolicy(),
	}
	r.Version, err = ParseVersion(rf.Package.Version)
	if err != nil {
		return nil, err
	}
	r.Sources = sources(rf.Package.Sources)
	r.Patches = patches(rf.Package.Patches)
	for _, s := range rf.Package.Substitutes {
		r.Substitutions = append(r.Substitutions, Substitution(s))
	}
	for _, d := range rf.Package.Dependencies {
		r.Dependencies = append(r.Dependencies, Dependency(d))
	}
	for _, c := range rf.Package.Components {
		comp := Component{
			Name:      c.Name,
			BlockName: c.Block,
			Skip:      c.Skip,
			Sources:   sources(c.Sources),
			Patches:   patches(c.Patches),
		}
		comp.Version, err = ParseVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", c.Name, err)
		}
		comp.Options, err = optionValues(c.Options, ctx)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", c.Name, err)
		}
		r.Components = append(r.Components, comp)
	}
	r.Options, err = optionValues(rf.Package.Options, ctx)
	if err != nil {
		return nil, err
	}
	if t := rf.Package.Test; t != nil {
		if t.Run != nil {
			r.Test.Run = *t.Run
		}
		r.Test.RunLong = t.RunLong
		if t.RunNumerical != nil {
			r.Test.RunNumerical = *t.RunNumerical
		}
		r.Test.MaxFailedNumerical = t.MaxFailedNumerical
		r.Test.MaxFailedOther = t.MaxFailedOther
		r.Test.NumericalPattern = t.NumericalPattern
	}
	if s := rf.Package.Sanity; s != nil {
		r.Sanity = SanitySpec{
			Files:      s.Files,
			Dirs:       s.Dirs,
			Commands:   s.Commands,
			Components: s.Components,
			Full:       s.Full,
		}
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// peekHeader pulls the package labels out before full decoding so that
// name and version can be offered as variables to the rest of the file.
func peekHeader(body hcl.Body) (name, version string, err error) {
	content, diags := body.Content(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "package", LabelNames: []string{"name", "version"}},
		},
	})
	if diags.HasErrors() {
		return "", "", errors.New(diags.Error())
	}
	if len(content.Blocks) != 1 {
		return "", "", fmt.Errorf("want exactly one package block, have %d", len(content.Blocks))
	}
	b := content.Blocks[0]
	return b.Labels[0], b.Labels[1], nil
}

func evalContext(name, version string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"name":    cty.StringVal(name),
			"version": cty.StringVal(version),
			"shlib":   cty.StringVal(sysinfo.SharedLibExt()),
			"os":      cty.StringVal(runtime.GOOS),
			"arch":    cty.StringVal(runtime.GOARCH),
		},
	}
}

func sources(in []sourceHCL) []Source {
	var out []Source
	for _, s := range in {
		out = append(out, Source(s))
	}
	return out
}

func patches(in []patchHCL) []Patch {
	var out []Patch
	for _, p := range in {
		strip := 1
		if p.Strip != nil {
			strip = *p.Strip
		}
		out = append(out, Patch{File: p.File, Strip: strip})
	}
	return out
}

func optionValues(b *bodyHCL, ctx *hcl.EvalContext) (map[string]cty.Value, error) {
	if b == nil {
		return nil, nil
	}
	attrs, diags := b.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, errors.New(diags.Error())
	}
	vals := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, vdiags := attr.Expr.Value(ctx)
		if vdiags.HasErrors() {
			return nil, fmt.Errorf("option %s: %s", name, vdiags.Error())
		}
		vals[name] = v
	}
	return vals, nil
}
