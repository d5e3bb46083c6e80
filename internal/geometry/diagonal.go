package geometry

import (
	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

// diagonalPASEF evaluates the slices of the Template ramp. Slope and origin
// come from the declared template, never from row spacing.
type diagonalPASEF struct{}

func (diagonalPASEF) Reconstruct(in Input) (*method.Geometry, []error) {
	t, ok := in.rows(reader.TableDiagonal)
	if !ok || len(t.Rows) == 0 {
		return &method.Geometry{Kind: method.GeometryWindows}, nil
	}

	var warns []error
	for i, row := range t.Rows {
		r := rowReader{row: row}
		ramp := method.Ramp{
			Slope:          r.float("slope"),
			Origin:         r.float("origin"),
			PatternWidth:   r.float("width_mz"),
			IsolationWidth: r.float("isolation_mz"),
			Slices:         r.int("number_of_slices"),
		}
		ms1 := 0
		if _, ok := row["insert_ms_scan"]; ok {
			ms1 = r.int("insert_ms_scan")
		}
		switch {
		case r.err != nil:
			warns = append(warns, skipped(in, t, i+1, r.err.Error()))
			continue
		case ramp.Slope == 0:
			warns = append(warns, skipped(in, t, i+1, "slope is zero"))
			continue
		case ramp.Slices <= 0:
			warns = append(warns, skipped(in, t, i+1, "no slices"))
			continue
		}

		g := &method.Geometry{Kind: method.GeometryWindows, MS1Scans: ms1, Ramp: &ramp}
		lo, okLo := in.number(KeyMobilityStart)
		hi, okHi := in.number(KeyMobilityEnd)
		if !okLo || !okHi || lo >= hi {
			warns = append(warns, &method.PartialParseWarning{
				Segment: in.Segment, Source: t.Name, Reason: "ramp mobility range is not declared",
			})
			return g, warns
		}
		g.Windows, warns = slices(in, ramp, lo, hi, warns)
		return g, warns
	}
	return nil, warns
}

// slices computes one window per slice. The m/z start of slice i at
// mobility y is MzAt(y) - width/2 + i*width/n; bounds are taken at the
// mobility midpoint.
func slices(in Input, r method.Ramp, lo, hi float64, warns []error) ([]method.Window, []error) {
	step := r.PatternWidth / float64(r.Slices)
	mid := (lo + hi) / 2
	out := make([]method.Window, 0, r.Slices)
	for i := 0; i < r.Slices; i++ {
		offset := -r.PatternWidth/2 + float64(i)*step
		start := r.MzAt(mid) + offset
		w := method.Window{
			Cycle:        i + 1,
			MzLow:        start,
			MzHigh:       start + r.IsolationWidth,
			MobilityLow:  lo,
			MobilityHigh: hi,
			Diagonal: &method.DiagonalEdge{
				MzStartLow:  r.MzAt(lo) + offset,
				MzEndLow:    r.MzAt(lo) + offset + r.IsolationWidth,
				MzStartHigh: r.MzAt(hi) + offset,
				MzEndHigh:   r.MzAt(hi) + offset + r.IsolationWidth,
			},
		}
		clipWarns, keep := clipWindow(in, &w)
		warns = append(warns, clipWarns...)
		if !keep {
			warns = append(warns, &method.PartialParseWarning{
				Segment: in.Segment, Source: reader.TableDiagonal,
				Reason: "slice lies outside the declared scan range",
			})
			continue
		}
		out = append(out, w)
	}
	return out, warns
}
