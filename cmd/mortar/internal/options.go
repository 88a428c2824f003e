package internal

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mortarbuild/mortar/internal/blocks"
)

var optionsCmd = &cobra.Command{
	Use:   "options [block]",
	Short: "List the options a block understands",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOptionsCmd,
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

func runOptionsCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("Available blocks:")
		for _, name := range blocks.Names() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	blk, err := blocks.New(args[0])
	if err != nil {
		return err
	}
	specs := blk.Options()
	if len(specs) == 0 {
		fmt.Printf("block %s declares no options\n", blk.Name())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPTION\tTYPE\tDEFAULT\tHELP")
	for _, spec := range specs {
		def := ""
		if spec.Default != nil {
			def = fmt.Sprint(spec.Default)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.Name, spec.Type, def, spec.Help)
	}
	return w.Flush()
}
