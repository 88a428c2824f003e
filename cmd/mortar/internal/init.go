package internal

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mortarbuild/mortar/internal/blocks"
	"github.com/mortarbuild/mortar/recipe"
)

var initCmd = &cobra.Command{
	Use:   "init <name> <version>",
	Short: "Scaffold a recipe file in the current directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runInitCmd,
}

var initBlock string

func init() {
	initCmd.Flags().StringVar(&initBlock, "block", "cmake", "block the new recipe builds with")
	rootCmd.AddCommand(initCmd)
}

const recipeTemplate = `package %q %q {
  block = %q

  source {
    url    = "https://example.org/${name}-${version}.tar.gz"
    sha256 = ""
  }

  options {
  }

  sanity {
    files = []
  }
}
`

func runInitCmd(cmd *cobra.Command, args []string) error {
	name, version := args[0], args[1]
	if err := recipe.CheckName(name); err != nil {
		return err
	}
	if _, err := recipe.ParseVersion(version); err != nil {
		return err
	}
	if _, err := blocks.New(initBlock); err != nil {
		return err
	}

	path := fmt.Sprintf("%s-%s.hcl", name, version)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	content := fmt.Sprintf(recipeTemplate, name, version, initBlock)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
