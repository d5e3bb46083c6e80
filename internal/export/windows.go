// Package export writes scan windows and comparison reports.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/kronigert/timsCompare/internal/method"
)

// ErrNoGeometry is returned when a segment has no window geometry to export.
var ErrNoGeometry = errors.New("segment has no window geometry")

// Window file headers, one per acquisition mode.
const (
	HeaderPolygon  = "Mass [m/z],Mobility [1/K0]"
	HeaderDia      = "#MS Type,Cycle Id,Start IM [1/K0],End IM [1/K0],Start Mass [m/z],End Mass [m/z],CE [eV]"
	HeaderDiagonal = "type, mobility pos.1 [1/K0], mass pos.1 start [m/z], mass pos.1 end [m/z], mobility pos.2 [1/K0], mass pos.2 start [m/z]"
)

// WindowsFileName returns the conventional file name for the windows of
// segment (0-based) of a dataset.
func WindowsFileName(dataset string, segment int, mode method.Mode) string {
	base := strings.TrimSuffix(dataset, ".d")
	base = strings.TrimSuffix(base, ".m")
	suffix := map[method.Mode]string{
		method.ModePASEF:         "Polygon",
		method.ModeDiaPASEF:      "diaParameters",
		method.ModeDiagonalPASEF: "diagonalSlices",
	}[mode]
	if suffix == "" {
		suffix = "windows"
	}
	return fmt.Sprintf("%s_Seg%d_%s.txt", base, segment+1, suffix)
}

// formatFloat writes the shortest decimal that parses back to x.
func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// WriteWindows writes geo in the text format of mode. Only write errors of
// w are returned, apart from ErrNoGeometry for a nil geometry or a mode
// without windows.
func WriteWindows(w io.Writer, mode method.Mode, geo *method.Geometry) error {
	if geo == nil || !mode.HasGeometry() {
		return ErrNoGeometry
	}
	var lines []string
	switch mode {
	case method.ModePASEF:
		lines = polygonLines(geo)
	case method.ModeDiaPASEF:
		lines = diaLines(geo)
	case method.ModeDiagonalPASEF:
		lines = diagonalLines(geo)
	}
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := bw.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func polygonLines(geo *method.Geometry) []string {
	out := []string{HeaderPolygon}
	for _, v := range geo.Polygon {
		out = append(out, formatFloat(v.Mz)+","+formatFloat(v.Mobility))
	}
	return out
}

// diaLines lists MS1 scans and windows ordered by cycle, MS1 scans first
// within a cycle.
func diaLines(geo *method.Geometry) []string {
	type line struct {
		cycle int
		ms1   bool
		text  string
	}
	var ls []line
	for i := 0; i < geo.MS1Scans; i++ {
		c := 0
		if i < len(geo.MS1Cycles) {
			c = geo.MS1Cycles[i]
		}
		ls = append(ls, line{cycle: c, ms1: true, text: fmt.Sprintf("MS1,%d,-,-,-,-,-", c)})
	}
	ws := append([]method.Window(nil), geo.Windows...)
	method.SortWindows(ws)
	for _, w := range ws {
		ls = append(ls, line{cycle: w.Cycle, text: fmt.Sprintf("PASEF,%d,%s,%s,%s,%s,-",
			w.Cycle, formatFloat(w.MobilityLow), formatFloat(w.MobilityHigh), formatFloat(w.MzLow), formatFloat(w.MzHigh))})
	}
	sort.SliceStable(ls, func(i, j int) bool {
		if ls[i].cycle != ls[j].cycle {
			return ls[i].cycle < ls[j].cycle
		}
		return ls[i].ms1 && !ls[j].ms1
	})
	out := []string{HeaderDia}
	for _, l := range ls {
		out = append(out, l.text)
	}
	return out
}

func diagonalLines(geo *method.Geometry) []string {
	out := []string{HeaderDiagonal}
	for i := 0; i < geo.MS1Scans; i++ {
		out = append(out, "ms,-,-,-,-,-")
	}
	ws := append([]method.Window(nil), geo.Windows...)
	method.SortWindows(ws)
	for _, w := range ws {
		start1, end1, start2 := w.MzLow, w.MzHigh, w.MzLow
		if d := w.Diagonal; d != nil {
			start1, end1, start2 = d.MzStartLow, d.MzEndLow, d.MzStartHigh
		}
		out = append(out, strings.Join([]string{
			"diagonal",
			formatFloat(w.MobilityLow),
			formatFloat(start1),
			formatFloat(end1),
			formatFloat(w.MobilityHigh),
			formatFloat(start2),
		}, ","))
	}
	return out
}

// ParseError reports a malformed line of a windows file.
type ParseError struct {
	Line   int
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("windows file line %d: %s", e.Line, e.Reason)
}

// ParseWindows reads a file written by WriteWindows. The mode is detected
// from the header line.
func ParseWindows(r io.Reader) (method.Mode, *method.Geometry, error) {
	sc := bufio.NewScanner(r)
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return method.ModeGeneral, nil, fmt.Errorf("reading windows file: %w", err)
	}
	if len(lines) == 0 {
		return method.ModeGeneral, nil, &ParseError{Line: 1, Reason: "empty file"}
	}

	switch strings.TrimSpace(lines[0]) {
	case HeaderPolygon:
		g, err := parsePolygon(lines[1:])
		return method.ModePASEF, g, err
	case HeaderDia:
		g, err := parseDia(lines[1:])
		return method.ModeDiaPASEF, g, err
	case HeaderDiagonal:
		g, err := parseDiagonal(lines[1:])
		return method.ModeDiagonalPASEF, g, err
	default:
		return method.ModeGeneral, nil, &ParseError{Line: 1, Reason: fmt.Sprintf("unrecognized header %q", lines[0])}
	}
}

// fields splits a data line and checks its width. Line numbers are 1-based
// and include the header.
func fields(line string, idx, want int) ([]string, error) {
	f := strings.Split(line, ",")
	if len(f) != want {
		return nil, &ParseError{Line: idx + 2, Reason: fmt.Sprintf("expected %d fields, got %d", want, len(f))}
	}
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	return f, nil
}

func floatsAt(f []string, idx int, cols ...int) ([]float64, error) {
	out := make([]float64, len(cols))
	for i, c := range cols {
		v, err := strconv.ParseFloat(f[c], 64)
		if err != nil {
			return nil, &ParseError{Line: idx + 2, Reason: fmt.Sprintf("field %d %q is not numeric", c+1, f[c])}
		}
		out[i] = v
	}
	return out, nil
}

func parsePolygon(lines []string) (*method.Geometry, error) {
	g := &method.Geometry{Kind: method.GeometryPolygon}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		f, err := fields(l, i, 2)
		if err != nil {
			return nil, err
		}
		v, err := floatsAt(f, i, 0, 1)
		if err != nil {
			return nil, err
		}
		g.Polygon = append(g.Polygon, method.Vertex{Mz: v[0], Mobility: v[1]})
	}
	return g, nil
}

func parseDia(lines []string) (*method.Geometry, error) {
	g := &method.Geometry{Kind: method.GeometryWindows}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		f, err := fields(l, i, 7)
		if err != nil {
			return nil, err
		}
		cycle, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, &ParseError{Line: i + 2, Reason: fmt.Sprintf("cycle %q is not an integer", f[1])}
		}
		switch f[0] {
		case "MS1":
			g.MS1Scans++
			g.MS1Cycles = append(g.MS1Cycles, cycle)
		case "PASEF":
			v, err := floatsAt(f, i, 2, 3, 4, 5)
			if err != nil {
				return nil, err
			}
			g.Windows = append(g.Windows, method.Window{
				Cycle: cycle, MobilityLow: v[0], MobilityHigh: v[1], MzLow: v[2], MzHigh: v[3],
			})
		default:
			return nil, &ParseError{Line: i + 2, Reason: fmt.Sprintf("unknown row type %q", f[0])}
		}
	}
	method.SortWindows(g.Windows)
	return g, nil
}

// parseDiagonal rebuilds slices in file order; the slice order is the cycle.
// The m/z bounds are taken at the mobility midpoint, as in reconstruction.
func parseDiagonal(lines []string) (*method.Geometry, error) {
	g := &method.Geometry{Kind: method.GeometryWindows}
	width := 0.0
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		f, err := fields(l, i, 6)
		if err != nil {
			return nil, err
		}
		switch f[0] {
		case "ms":
			g.MS1Scans++
		case "diagonal":
			v, err := floatsAt(f, i, 1, 2, 3, 4, 5)
			if err != nil {
				return nil, err
			}
			width = v[2] - v[1]
			mid := (v[1] + v[4]) / 2
			g.Windows = append(g.Windows, method.Window{
				Cycle:        len(g.Windows) + 1,
				MobilityLow:  v[0],
				MobilityHigh: v[3],
				MzLow:        mid,
				MzHigh:       mid + width,
				Diagonal: &method.DiagonalEdge{
					MzStartLow: v[1], MzEndLow: v[2],
					MzStartHigh: v[4], MzEndHigh: v[4] + width,
				},
			})
		default:
			return nil, &ParseError{Line: i + 2, Reason: fmt.Sprintf("unknown row type %q", f[0])}
		}
	}
	if len(g.Windows) > 0 {
		g.Ramp = &method.Ramp{IsolationWidth: width, Slices: len(g.Windows)}
	}
	return g, nil
}
