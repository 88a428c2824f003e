package internal

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mortarbuild/mortar/internal/fetch"
	"github.com/mortarbuild/mortar/recipe"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <recipe.hcl>",
	Short: "Download and verify a recipe's sources without building",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetchCmd,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetchCmd(cmd *cobra.Command, args []string) error {
	r, err := recipe.Load(args[0])
	if err != nil {
		return err
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	ctx := context.Background()
	n := 0
	for _, s := range r.Sources {
		if s.URL == "" {
			continue
		}
		path, err := fetch.Download(ctx, s.URL, s.SHA256, ws.SourceDir(r.Name))
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %s\n", path)
		n++
	}
	if n == 0 {
		fmt.Printf("%s has no downloadable sources\n", r.FullName())
	}
	return nil
}
