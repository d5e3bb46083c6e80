// Package geometry reconstructs the scanned (m/z, 1/K0) region of a segment
// from its scheduling rows.
package geometry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

// Input is everything a reconstructor may use for one segment.
type Input struct {
	Segment int
	Tables  map[string]*reader.Table
	Params  map[string]method.ParameterValue
	Bounds  method.Bounds
}

func (in Input) rows(table string) (*reader.Table, bool) {
	t, ok := in.Tables[table]
	return t, ok && t != nil
}

func (in Input) number(key string) (float64, bool) {
	p, ok := in.Params[key]
	if !ok {
		return 0, false
	}
	return p.Number()
}

func (in Input) vector(key string) ([]float64, bool) {
	p, ok := in.Params[key]
	if !ok || p.Unknown || p.Type != method.TypeNumeric {
		return nil, false
	}
	return p.Numbers, true
}

// Reconstructor builds the geometry of one acquisition mode. A nil geometry
// means no rows could be reconstructed; the returned errors are non-fatal
// warnings.
type Reconstructor interface {
	Reconstruct(in Input) (*method.Geometry, []error)
}

var registry = map[method.Mode]Reconstructor{
	method.ModePASEF:         pasef{},
	method.ModeDiaPASEF:      diaPASEF{},
	method.ModeDiagonalPASEF: diagonalPASEF{},
}

// For returns the reconstructor of mode. Modes without a window concept have
// none.
func For(mode method.Mode) (Reconstructor, bool) {
	r, ok := registry[mode]
	return r, ok
}

// Reconstruct dispatches to the reconstructor of mode. It returns nil for
// modes without a window concept.
func Reconstruct(mode method.Mode, in Input) (*method.Geometry, []error) {
	r, ok := For(mode)
	if !ok {
		return nil, nil
	}
	return r.Reconstruct(in)
}

// Parameter keys that declare the full scan range of a segment.
const (
	KeyMobilityStart = "mobility_start"
	KeyMobilityEnd   = "mobility_end"
	KeyScanBeginMz   = "scan_begin_mz"
	KeyScanEndMz     = "scan_end_mz"
)

// DeclaredBounds returns the scan range declared by normalized parameters.
// An axis is only bounded when both ends are present and ordered.
func DeclaredBounds(params map[string]method.ParameterValue) method.Bounds {
	in := Input{Params: params}
	var b method.Bounds
	if lo, ok := in.number(KeyMobilityStart); ok {
		if hi, ok := in.number(KeyMobilityEnd); ok && lo < hi {
			b.MobilityLow, b.MobilityHigh, b.HasMobility = lo, hi, true
		}
	}
	if lo, ok := in.number(KeyScanBeginMz); ok {
		if hi, ok := in.number(KeyScanEndMz); ok && lo < hi {
			b.MzLow, b.MzHigh, b.HasMz = lo, hi, true
		}
	}
	return b
}

// rowReader decodes typed columns from one table row, remembering the first
// failure so a row can be validated in one pass.
type rowReader struct {
	row reader.Row
	err error
}

func (r *rowReader) float(col string) float64 {
	if r.err != nil {
		return 0
	}
	s, ok := r.row[col]
	if !ok {
		r.err = fmt.Errorf("missing %s", col)
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		r.err = fmt.Errorf("%s %q is not numeric", col, s)
		return 0
	}
	return v
}

func (r *rowReader) int(col string) int {
	v := r.float(col)
	if r.err != nil {
		return 0
	}
	if v != float64(int(v)) {
		r.err = fmt.Errorf("%s %v is not an integer", col, v)
		return 0
	}
	return int(v)
}

func skipped(in Input, t *reader.Table, row int, reason string) error {
	return &method.PartialParseWarning{Segment: in.Segment, Source: t.Name, Row: row, Reason: reason}
}

// clipWindow limits w to the declared bounds and records a warning for each
// moved coordinate. It reports false when nothing of the window remains.
func clipWindow(in Input, w *method.Window) ([]error, bool) {
	var warns []error
	clip := func(axis string, v *float64, clamp func(float64) (float64, bool)) {
		nv, moved := clamp(*v)
		if moved {
			warns = append(warns, &method.GeometryClipWarning{
				Segment: in.Segment, Cycle: w.Cycle, Axis: axis, Value: *v, Bound: nv,
			})
			*v = nv
		}
	}
	clip("mobility", &w.MobilityLow, in.Bounds.ClampMobility)
	clip("mobility", &w.MobilityHigh, in.Bounds.ClampMobility)
	clip("m/z", &w.MzLow, in.Bounds.ClampMz)
	clip("m/z", &w.MzHigh, in.Bounds.ClampMz)
	if d := w.Diagonal; d != nil {
		clip("m/z", &d.MzStartLow, in.Bounds.ClampMz)
		clip("m/z", &d.MzEndLow, in.Bounds.ClampMz)
		clip("m/z", &d.MzStartHigh, in.Bounds.ClampMz)
		clip("m/z", &d.MzEndHigh, in.Bounds.ClampMz)
	}
	return warns, w.MobilityLow < w.MobilityHigh && w.MzLow < w.MzHigh
}
