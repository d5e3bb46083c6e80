package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kronigert/timsCompare/internal/plot"
)

var plotCmd = &cobra.Command{
	Use:   "plot <dir.d>",
	Short: "Render the window geometry of a segment as SVG or PNG",
	Long: `Draws the windows of one segment in the m/z by mobility plane, with the
declared scan range outlined. The format follows the --output extension
unless --format is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlot,
}

func init() {
	f := plotCmd.Flags()
	f.Int("segment", 1, "1-based segment to plot")
	f.StringP("output", "o", "", "output file (default <dataset>_Seg<n>.<format>)")
	f.String("format", "", "svg or png")
	f.Int("width", plot.DefaultWidth, "image width in pixels")
	f.Int("height", plot.DefaultHeight, "image height in pixels")
	rootCmd.AddCommand(plotCmd)
}

func runPlot(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("segment")
	outPath, _ := cmd.Flags().GetString("output")
	formatName, _ := cmd.Flags().GetString("format")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")

	if formatName == "" {
		formatName = strings.TrimPrefix(filepath.Ext(outPath), ".")
	}
	if formatName == "" {
		formatName = string(plot.SVG)
	}
	format, err := plot.ParseFormat(formatName)
	if err != nil {
		return err
	}

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
	seg, err := ds.Segment(n - 1)
	if err != nil {
		return fmt.Errorf("%s segment %d: %w", ds.Name(), n, err)
	}
	if geo := seg.Geometry(); geo == nil || geo.Empty() {
		return fmt.Errorf("%s segment %d: %w", ds.Name(), n, plot.ErrNothingToPlot)
	}
	if outPath == "" {
		outPath = fmt.Sprintf("%s_Seg%d.%s", strings.TrimSuffix(ds.Name(), ".d"), n, format)
	}

	w, closeOut, err := output(cmd, outPath)
	if err != nil {
		return err
	}
	opts := plot.Options{
		Title:  fmt.Sprintf("%s segment %d (%s)", ds.Name(), n, seg.Mode()),
		Width:  width,
		Height: height,
		Bounds: seg.Bounds(),
	}
	if err := plot.Render(w, format, seg.Geometry(), opts); err != nil {
		_ = closeOut()
		return fmt.Errorf("%s segment %d: %w", ds.Name(), n, err)
	}
	if err := closeOut(); err != nil {
		return err
	}
	if outPath != "-" {
		a.errOut.Info("wrote " + outPath)
	}
	return nil
}
