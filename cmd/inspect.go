package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kronigert/timsCompare/internal/method"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <dir.d>...",
	Short: "Print the segments and parameters of method directories",
	Long: `Loads each directory and prints its segments with the selected parameters.

Without --params or --all, each dataset shows the catalogue's default view
for its own workflows.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	addKeyFlags(inspectCmd)
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.load(cmd, args)
	if err != nil {
		return err
	}
	cat := a.session.Catalogue()
	for _, e := range entries {
		one := []*method.Dataset{e.Dataset}
		keys, err := selectedKeys(cmd, cat, one)
		if err != nil {
			return err
		}
		if keys == nil {
			keys = cat.DefaultView(one)
		}
		a.out.Dataset(e.Dataset, keys)
	}
	return nil
}
