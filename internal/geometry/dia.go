package geometry

import (
	"fmt"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

// DiaWindowsSpecification row types.
const (
	diaTypeMS1   = 0
	diaTypePASEF = 1
)

// diaPASEF copies the rectangular windows of DiaWindowsSpecification.
type diaPASEF struct{}

func (diaPASEF) Reconstruct(in Input) (*method.Geometry, []error) {
	t, ok := in.rows(reader.TableDiaWindows)
	if !ok {
		return &method.Geometry{Kind: method.GeometryWindows}, nil
	}

	g := &method.Geometry{Kind: method.GeometryWindows}
	var warns []error
	valid := 0
	for i, row := range t.Rows {
		r := rowReader{row: row}
		typ := r.int("Type")
		if r.err != nil {
			warns = append(warns, skipped(in, t, i+1, r.err.Error()))
			continue
		}
		switch typ {
		case diaTypeMS1:
			c := r.int("CycleId")
			if r.err != nil {
				warns = append(warns, skipped(in, t, i+1, r.err.Error()))
				continue
			}
			valid++
			g.MS1Scans++
			g.MS1Cycles = append(g.MS1Cycles, c)
			continue
		case diaTypePASEF:
		default:
			warns = append(warns, skipped(in, t, i+1, fmt.Sprintf("unknown window type %d", typ)))
			continue
		}

		w := method.Window{
			Cycle:        r.int("CycleId"),
			MobilityLow:  r.float("OneOverK0Start"),
			MobilityHigh: r.float("OneOverK0End"),
		}
		center := r.float("IsolationMz")
		width := r.float("IsolationWidth")
		if r.err != nil {
			warns = append(warns, skipped(in, t, i+1, r.err.Error()))
			continue
		}
		if width <= 0 || w.MobilityLow >= w.MobilityHigh {
			warns = append(warns, skipped(in, t, i+1, "empty window"))
			continue
		}
		valid++
		w.MzLow, w.MzHigh = center-width/2, center+width/2

		clipWarns, keep := clipWindow(in, &w)
		warns = append(warns, clipWarns...)
		if !keep {
			warns = append(warns, skipped(in, t, i+1, "window lies outside the declared scan range"))
			continue
		}
		g.Windows = append(g.Windows, w)
	}

	if valid == 0 && len(t.Rows) > 0 {
		return nil, warns
	}
	method.SortWindows(g.Windows)
	return g, warns
}
