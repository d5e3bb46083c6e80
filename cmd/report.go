package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kronigert/timsCompare/internal/export"
	"github.com/kronigert/timsCompare/internal/method"
)

var reportCmd = &cobra.Command{
	Use:   "report <dir.d>",
	Short: "Write a CSV report of one dataset's parameters",
	Long: `Writes one CSV row per segment and parameter with the columns Segment,
Category, Parameter and Value. List values are joined with "; ".`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	addKeyFlags(reportCmd)
	reportCmd.Flags().IntSlice("segment", nil, "1-based segments to include (default: all)")
	reportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.load(cmd, args)
	if err != nil {
		return err
	}
	ds := entries[0].Dataset
	keys, err := selectedKeys(cmd, a.session.Catalogue(), []*method.Dataset{ds})
	if err != nil {
		return err
	}
	if keys == nil {
		keys = a.session.Selection()
	}
	indices, err := segmentIndices(cmd, ds)
	if err != nil {
		return err
	}

	w, closeOut, err := output(cmd, outPath)
	if err != nil {
		return err
	}
	if err := export.WriteDatasetCSV(w, ds, keys, indices); err != nil {
		_ = closeOut()
		return err
	}
	return closeOut()
}
