package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kronigert/timsCompare/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <dir.d>",
	Short: "Write the window geometry of each segment as a text file",
	Long: `Writes one window file per segment that carries window geometry, named
<dataset>_Seg<n>_diaParameters.txt (or _polygon / _diagonal for the other
modes). Segments without geometry are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	addExportFlags(exportCmd)
	rootCmd.AddCommand(exportCmd)
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().IntSlice("segment", nil, "1-based segments to export (default: all)")
	cmd.Flags().String("out", ".", "directory to write the files into")
}

func runExport(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")

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
	indices, err := segmentIndices(cmd, ds)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	written := 0
	for _, i := range indices {
		seg, err := ds.Segment(i)
		if err != nil {
			return err
		}
		geo := seg.Geometry()
		if geo == nil {
			continue
		}
		path := filepath.Join(outDir, export.WindowsFileName(ds.Name(), i, seg.Mode()))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		err = export.WriteWindows(f, seg.Mode(), geo)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		a.out.Info("wrote " + path)
		written++
	}
	if written == 0 {
		return fmt.Errorf("%s: %w", ds.Name(), export.ErrNoGeometry)
	}
	return nil
}
