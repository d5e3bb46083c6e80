package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kronigert/timsCompare/internal/normalize"
	"github.com/kronigert/timsCompare/internal/ui"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List the parameter keys known to the catalogue",
	Args:  cobra.NoArgs,
	RunE:  runParams,
}

func init() {
	paramsCmd.Flags().String("category", "", "only list parameters in this category")
	rootCmd.AddCommand(paramsCmd)
}

func runParams(cmd *cobra.Command, _ []string) error {
	category, _ := cmd.Flags().GetString("category")

	cat := normalize.Default()
	var rows [][]string
	for _, k := range cat.Keys() {
		d, _ := cat.Definition(k)
		if category != "" && !strings.EqualFold(d.Category, category) {
			continue
		}
		modes := "all"
		if len(d.Modes) > 0 {
			modes = strings.Join(d.Modes, ", ")
		}
		rows = append(rows, []string{d.Key, d.Label, d.Category, string(d.Type), d.Unit, modes})
	}
	ui.New(cmd.OutOrStdout()).Table([]string{"Key", "Label", "Category", "Type", "Unit", "Modes"}, rows)
	return nil
}
