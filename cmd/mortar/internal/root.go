package internal

import (
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/mortarbuild/mortar/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "mortar",
	Short: "mortar builds scientific and HPC software from recipes",
	Long: `mortar reads declarative package recipes and drives their
configure/build/test/install pipelines, recording what each installed
package contributes to the environment of its consumers.`,
}

var (
	flagWorkspace string
	flagVerbose   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "workspace root (default $MORTAR_WORKSPACE or the user cache dir)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug detail, including every tool's output")
	cobra.OnInitialize(func() {
		if flagVerbose {
			log.SetOutputLevel(log.Ldebug)
		}
	})
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func openWorkspace() (*workspace.Workspace, error) {
	if flagWorkspace != "" {
		return workspace.New(flagWorkspace), nil
	}
	return workspace.Default()
}
