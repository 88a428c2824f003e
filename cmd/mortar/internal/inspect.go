package internal

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/mortarbuild/mortar/internal/blocks"
	"github.com/mortarbuild/mortar/recipe"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <recipe.hcl>",
	Short: "Show what a recipe would build",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectCmd,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	r, err := recipe.Load(args[0])
	if err != nil {
		return err
	}
	blk, err := blocks.New(r.BlockName)
	if err != nil {
		return err
	}
	opts, err := recipe.ResolveOptions(blk.Options(), r.Options)
	if err != nil {
		return err
	}

	tree := treeprint.NewWithRoot(fmt.Sprintf("%s (%s)", r.FullName(), r.BlockName))
	if r.Description != "" {
		tree.AddNode(r.Description)
	}

	if len(r.Sources) > 0 {
		br := tree.AddBranch("sources")
		for _, s := range r.Sources {
			switch {
			case s.URL != "":
				br.AddNode(s.URL)
			case s.Git != "":
				br.AddNode(fmt.Sprintf("%s @ %s", s.Git, s.Ref))
			case s.Path != "":
				br.AddNode(s.Path)
			}
		}
	}
	if len(r.Patches) > 0 {
		br := tree.AddBranch("patches")
		for _, p := range r.Patches {
			br.AddNode(fmt.Sprintf("%s (-p%d)", p.File, p.Strip))
		}
	}
	if len(r.Dependencies) > 0 {
		br := tree.AddBranch("dependencies")
		for _, d := range r.Dependencies {
			label := d.Name + "@" + d.Version
			if d.Build {
				label += " (build only)"
			}
			br.AddNode(label)
		}
	}
	if names := opts.Names(); len(names) > 0 {
		br := tree.AddBranch("options")
		for _, name := range names {
			marker := ""
			if opts.IsSet(name) {
				marker = " (from recipe)"
			}
			br.AddNode(fmt.Sprintf("%s = %s%s", name, opts.Describe(name), marker))
		}
	}
	if len(r.Components) > 0 {
		br := tree.AddBranch("components")
		for _, c := range r.Components {
			br.AddNode(fmt.Sprintf("%s@%s (%s)", c.Name, c.Version, c.BlockName))
		}
	}

	fmt.Print(tree.String())
	return nil
}
