// Package block defines the build lifecycle a package goes through and
// the shared state blocks operate on. Concrete blocks (cmake,
// autotools, llvm, ...) implement the Block interface; the pipeline
// drives the steps in order.
package block

import "github.com/mortarbuild/mortar/recipe"

// Block drives the tool-specific steps of a build. The pipeline owns
// fetch, extract, patch, sanity checking, and module registration;
// blocks own how configuring, compiling, testing, and installing work
// for their build tool.
type Block interface {
	Name() string

	// Options declares the recipe options the block understands.
	Options() []recipe.OptionSpec

	Configure(b *Build) error
	Build(b *Build) error
	Test(b *Build) error
	Install(b *Build) error

	// Sanity runs tool-specific checks after install, on top of the
	// recipe's own sanity spec.
	Sanity(b *Build) error

	// Module adds tool-specific environment contributions to the
	// module the pipeline registers.
	Module(b *Build) error
}

// Base provides no-op lifecycle steps for blocks that only need to
// override a few.
type Base struct{}

func (Base) Configure(*Build) error { return nil }
func (Base) Build(*Build) error     { return nil }
func (Base) Test(*Build) error      { return nil }
func (Base) Install(*Build) error   { return nil }
func (Base) Sanity(*Build) error    { return nil }
func (Base) Module(*Build) error    { return nil }
