// Package blocks is the closed registry of build blocks. Recipes name
// blocks by string; the mapping to implementations is a fixed table,
// not reflection, so the set a recipe can ask for is known at compile
// time.
package blocks

import (
	"fmt"
	"sort"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/block/autotools"
	"github.com/mortarbuild/mortar/block/bundle"
	"github.com/mortarbuild/mortar/block/cmake"
	"github.com/mortarbuild/mortar/block/llvm"
	"github.com/mortarbuild/mortar/block/syscompiler"
)

var table map[string]func() block.Block

func init() {
	table = map[string]func() block.Block{
		"cmake":       func() block.Block { return cmake.New() },
		"autotools":   func() block.Block { return autotools.New() },
		"llvm":        func() block.Block { return llvm.New() },
		"bundle":      func() block.Block { return bundle.New(New) },
		"syscompiler": func() block.Block { return syscompiler.New() },
	}
}

// New returns a fresh instance of the named block. Blocks carry
// per-build state, so every pipeline gets its own.
func New(name string) (block.Block, error) {
	ctor, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("unknown block %q (known: %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the registered block names, sorted.
func Names() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
