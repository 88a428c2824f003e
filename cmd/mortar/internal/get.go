package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mortarbuild/mortar/internal/recipes/store"
	"github.com/mortarbuild/mortar/internal/vcs"
)

// defaultRecipeRepo is the community recipe collection `mortar get`
// syncs when --repo is not given.
const defaultRecipeRepo = "https://github.com/mortarbuild/recipes"

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Copy the newest recipe for a package out of the recipe store",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetCmd,
}

var getRepo string

func init() {
	getCmd.Flags().StringVar(&getRepo, "repo", defaultRecipeRepo, "recipe repository to sync from")
	rootCmd.AddCommand(getCmd)
}

func runGetCmd(cmd *cobra.Command, args []string) error {
	name := args[0]

	git := vcs.New()
	if !git.Available() {
		return errors.New("mortar get needs git on PATH")
	}
	dir, err := store.DefaultDir()
	if err != nil {
		return err
	}
	s := store.New(dir, getRepo, git)
	if err := s.Sync(context.Background()); err != nil {
		return err
	}

	src, err := s.Find(name)
	if err != nil {
		return err
	}
	dst := filepath.Base(src)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", dst)
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	fmt.Printf("Copied %s\n", dst)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
