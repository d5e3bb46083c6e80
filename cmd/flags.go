package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/normalize"
)

// addKeyFlags registers the parameter selection flags shared by the
// commands that print or export parameters.
func addKeyFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("params", nil, "parameter keys to show (default: the catalogue view)")
	cmd.Flags().Bool("all", false, "show every parameter present in the datasets")
	cmd.MarkFlagsMutuallyExclusive("params", "all")
}

// selectedKeys resolves the selection flags over datasets. A nil result
// means the default view.
func selectedKeys(cmd *cobra.Command, cat *normalize.Catalogue, datasets []*method.Dataset) ([]string, error) {
	keys, _ := cmd.Flags().GetStringSlice("params")
	all, _ := cmd.Flags().GetBool("all")
	switch {
	case len(keys) > 0:
		for _, k := range keys {
			if _, ok := cat.Definition(k); !ok {
				return nil, fmt.Errorf("unknown parameter %q (see timscompare params)", k)
			}
		}
		return keys, nil
	case all:
		seen := make(map[string]bool)
		var union []string
		for _, ds := range datasets {
			for _, k := range ds.Keys() {
				if !seen[k] {
					seen[k] = true
					union = append(union, k)
				}
			}
		}
		cat.SortKeys(union)
		return union, nil
	default:
		return nil, nil
	}
}

// segmentIndices converts 1-based --segment values into 0-based indices of
// ds. An empty list selects every segment.
func segmentIndices(cmd *cobra.Command, ds *method.Dataset) ([]int, error) {
	flags, _ := cmd.Flags().GetIntSlice("segment")
	if len(flags) == 0 {
		out := make([]int, ds.Len())
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	out := make([]int, len(flags))
	for i, n := range flags {
		if n < 1 || n > ds.Len() {
			return nil, fmt.Errorf("%s has %d segment(s), no segment %d: %w", ds.Name(), ds.Len(), n, method.ErrSegmentOutOfRange)
		}
		out[i] = n - 1
	}
	return out, nil
}

// output opens path for writing; "" and "-" write to stdout. The returned
// close function reports the error of closing a file.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}
