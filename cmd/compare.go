package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kronigert/timsCompare/internal/export"
)

var compareCmd = &cobra.Command{
	Use:   "compare <dir.d>...",
	Short: "Compare the parameters of method directories side by side",
	Long: `Loads every directory and prints one row per parameter with one column per
dataset segment. Rows whose values disagree are highlighted.

--format csv, json or parquet writes the comparison report instead of the
table; parquet requires --output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompare,
}

func init() {
	addCompareFlags(compareCmd)
	rootCmd.AddCommand(compareCmd)
}

func addCompareFlags(cmd *cobra.Command) {
	addKeyFlags(cmd)
	f := cmd.Flags()
	f.Bool("only-diffs", false, "show only rows that differ")
	f.Float64("tolerance", 0, "relative tolerance for numeric equality")
	f.String("format", "table", "output format: table, csv, json, parquet")
	f.StringP("output", "o", "", "write the report to this file instead of stdout")
	f.Bool("fail-on-diff", false, "exit with status 1 when any row differs")

	_ = viper.BindPFlag("only_differences", f.Lookup("only-diffs"))
	_ = viper.BindPFlag("relative_tolerance", f.Lookup("tolerance"))
}

func runCompare(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("output")
	failOnDiff, _ := cmd.Flags().GetBool("fail-on-diff")

	format = strings.ToLower(format)
	switch format {
	case "table", export.FormatCSV, export.FormatJSON:
	case export.FormatParquet:
		if outPath == "" || outPath == "-" {
			return fmt.Errorf("--format parquet requires --output")
		}
	default:
		return fmt.Errorf("unknown format %q (want table, csv, json or parquet)", format)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.load(cmd, args); err != nil {
		return err
	}
	keys, err := selectedKeys(cmd, a.session.Catalogue(), a.session.Datasets())
	if err != nil {
		return err
	}
	if keys != nil {
		a.session.SetSelection(keys)
	}
	m := a.session.Compare(a.cfg.OnlyDifferences)

	if format == "table" {
		a.out.Comparison(m)
		a.out.DiffCount(m)
	} else {
		w, closeOut, err := output(cmd, outPath)
		if err != nil {
			return err
		}
		if err := export.Write(w, format, export.NewReport(m)); err != nil {
			_ = closeOut()
			return err
		}
		if err := closeOut(); err != nil {
			return err
		}
		if outPath != "" && outPath != "-" {
			a.errOut.Info("wrote " + outPath)
		}
	}

	if failOnDiff && len(m.Differences()) > 0 {
		return errDifferences
	}
	return nil
}
