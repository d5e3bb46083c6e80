// Package plot renders the scan geometry of a segment as an m/z versus
// mobility chart.
package plot

import (
	"errors"
	"fmt"
	"io"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/floats"

	"github.com/kronigert/timsCompare/internal/method"
)

// ErrNothingToPlot is returned for a nil or empty geometry.
var ErrNothingToPlot = errors.New("no geometry to plot")

// Format selects the image encoding.
type Format string

// Supported image formats.
const (
	SVG Format = "svg"
	PNG Format = "png"
)

// ParseFormat maps a file extension or name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "svg":
		return SVG, nil
	case "png":
		return PNG, nil
	default:
		return "", fmt.Errorf("unknown plot format %q", s)
	}
}

// Default image size in pixels.
const (
	DefaultWidth  = 960
	DefaultHeight = 640
)

// legendLimit is the largest series count that still gets a legend.
const legendLimit = 10

var palette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorGreen,
	chart.ColorRed,
	chart.ColorOrange,
	chart.ColorCyan,
	chart.ColorYellow,
}

func cycleColor(cycle int) drawing.Color {
	if cycle < 0 {
		cycle = -cycle
	}
	return palette[cycle%len(palette)]
}

func shapeStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 1.5,
		FillColor:   col.WithAlpha(48),
	}
}

// Options tune a rendering.
type Options struct {
	Title  string
	Width  int
	Height int
	// Bounds outlines the declared scan range when both axes are declared.
	Bounds method.Bounds
}

// Render draws geo to w.
func Render(w io.Writer, format Format, geo *method.Geometry, opts Options) error {
	if geo == nil || geo.Empty() {
		return ErrNothingToPlot
	}
	series := Series(geo)
	if b := opts.Bounds; b.HasMz && b.HasMobility {
		series = append(series, chart.ContinuousSeries{
			Name:    "scan range",
			XValues: []float64{b.MzLow, b.MzHigh, b.MzHigh, b.MzLow, b.MzLow},
			YValues: []float64{b.MobilityLow, b.MobilityLow, b.MobilityHigh, b.MobilityHigh, b.MobilityLow},
			Style: chart.Style{
				StrokeColor:     chart.ColorAlternateGray,
				StrokeWidth:     1,
				StrokeDashArray: []float64{5, 5},
			},
		})
	}

	xr, yr := extents(series)
	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "m/z", Range: xr},
		YAxis:      chart.YAxis{Name: "1/K0 [V·s/cm²]", Range: yr},
		Series:     series,
	}
	if ch.Width <= 0 {
		ch.Width = DefaultWidth
	}
	if ch.Height <= 0 {
		ch.Height = DefaultHeight
	}
	if len(series) <= legendLimit {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}

	provider := chart.SVG
	if format == PNG {
		provider = chart.PNG
	}
	if err := ch.Render(provider, w); err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}
	return nil
}

// Series converts geo into closed outlines: the polygon for PASEF, one
// rectangle per dia-PASEF window, one parallelogram per diagonal slice.
func Series(geo *method.Geometry) []chart.Series {
	if geo == nil {
		return nil
	}
	if geo.Kind == method.GeometryPolygon {
		if len(geo.Polygon) == 0 {
			return nil
		}
		xs := make([]float64, 0, len(geo.Polygon)+1)
		ys := make([]float64, 0, len(geo.Polygon)+1)
		for _, v := range geo.Polygon {
			xs = append(xs, v.Mz)
			ys = append(ys, v.Mobility)
		}
		xs = append(xs, xs[0])
		ys = append(ys, ys[0])
		return []chart.Series{chart.ContinuousSeries{Name: "polygon", XValues: xs, YValues: ys, Style: shapeStyle(chart.ColorBlue)}}
	}

	ws := append([]method.Window(nil), geo.Windows...)
	method.SortWindows(ws)
	out := make([]chart.Series, 0, len(ws))
	for _, w := range ws {
		var xs, ys []float64
		if d := w.Diagonal; d != nil {
			xs = []float64{d.MzStartLow, d.MzEndLow, d.MzEndHigh, d.MzStartHigh, d.MzStartLow}
			ys = []float64{w.MobilityLow, w.MobilityLow, w.MobilityHigh, w.MobilityHigh, w.MobilityLow}
		} else {
			xs = []float64{w.MzLow, w.MzHigh, w.MzHigh, w.MzLow, w.MzLow}
			ys = []float64{w.MobilityLow, w.MobilityLow, w.MobilityHigh, w.MobilityHigh, w.MobilityLow}
		}
		out = append(out, chart.ContinuousSeries{
			Name:    fmt.Sprintf("cycle %d", w.Cycle),
			XValues: xs,
			YValues: ys,
			Style:   shapeStyle(cycleColor(w.Cycle)),
		})
	}
	return out
}

// extents returns padded axis ranges covering every series point.
func extents(series []chart.Series) (*chart.ContinuousRange, *chart.ContinuousRange) {
	var xs, ys []float64
	for _, s := range series {
		if cs, ok := s.(chart.ContinuousSeries); ok {
			xs = append(xs, cs.XValues...)
			ys = append(ys, cs.YValues...)
		}
	}
	return padded(floats.Min(xs), floats.Max(xs)), padded(floats.Min(ys), floats.Max(ys))
}

func padded(lo, hi float64) *chart.ContinuousRange {
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}
