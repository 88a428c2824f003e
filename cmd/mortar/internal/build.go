package internal

import (
	"context"
	"fmt"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/mortarbuild/mortar/block"
	"github.com/mortarbuild/mortar/internal/blocks"
	"github.com/mortarbuild/mortar/internal/run"
	"github.com/mortarbuild/mortar/internal/sysinfo"
	"github.com/mortarbuild/mortar/recipe"
)

var buildCmd = &cobra.Command{
	Use:   "build <recipe.hcl>",
	Short: "Build and install a package from a recipe",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuildCmd,
}

var (
	buildJobs     int
	buildForce    bool
	buildRPath    bool
	buildSkipTest bool
)

func init() {
	buildCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "build parallelism (default: all logical cpus)")
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "rebuild even when the package is already installed")
	buildCmd.Flags().BoolVar(&buildRPath, "rpath", false, "bake library search paths into installed binaries")
	buildCmd.Flags().BoolVar(&buildSkipTest, "skip-test", false, "skip the test step")
	rootCmd.AddCommand(buildCmd)
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	r, err := recipe.Load(args[0])
	if err != nil {
		return err
	}
	blk, err := blocks.New(r.BlockName)
	if err != nil {
		return fmt.Errorf("%s: %w", r.FullName(), err)
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	log.Infof("host: %s", sysinfo.Summary())

	p, err := block.NewPipeline(r, blk, block.Config{
		Workspace: ws,
		Runner:    run.NewExecRunner(flagVerbose),
		Parallel:  buildJobs,
		RPath:     buildRPath,
		SkipTest:  buildSkipTest,
		Force:     buildForce,
	})
	if err != nil {
		return err
	}
	if err := p.Run(context.Background()); err != nil {
		return err
	}
	fmt.Printf("Installed %s in %s\n", r.FullName(), p.Build.InstallDir)
	return nil
}
