package geometry

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

// Parameter keys of the declared precursor polygon.
const (
	KeyPolygonMz       = "polygon_mz"
	KeyPolygonMobility = "polygon_mobility"
)

// mzMergeTolerance is the m/z distance below which two adjacent mobility
// bins count as scanning the same range.
const mzMergeTolerance = 1e-6

// pasef builds the precursor region. With a PasefSchedule table the region
// is the staircase enclosing every scheduled isolation interval; otherwise
// the declared polygon filter is used as is.
type pasef struct{}

func (pasef) Reconstruct(in Input) (*method.Geometry, []error) {
	if t, ok := in.rows(reader.TablePasefSchedule); ok {
		return fromSchedule(in, t)
	}
	return declaredPolygon(in)
}

// entry is one scheduled isolation: an m/z interval at one mobility.
type entry struct {
	mobility float64
	lo, hi   float64
}

func fromSchedule(in Input, t *reader.Table) (*method.Geometry, []error) {
	var warns []error
	var entries []entry
	for i, row := range t.Rows {
		r := rowReader{row: row}
		mob := r.float("OneOverK0")
		center := r.float("IsolationMz")
		width := r.float("IsolationWidth")
		if r.err != nil {
			warns = append(warns, skipped(in, t, i+1, r.err.Error()))
			continue
		}
		if width < 0 {
			warns = append(warns, skipped(in, t, i+1, fmt.Sprintf("negative isolation width %v", width)))
			continue
		}
		entries = append(entries, entry{mobility: mob, lo: center - width/2, hi: center + width/2})
	}
	if len(entries) == 0 && len(t.Rows) > 0 {
		return nil, warns
	}

	poly := staircase(entries)
	poly, clipWarns := clipPolygon(in, poly)
	warns = append(warns, clipWarns...)
	return &method.Geometry{Kind: method.GeometryPolygon, Polygon: poly}, warns
}

func declaredPolygon(in Input) (*method.Geometry, []error) {
	g := &method.Geometry{Kind: method.GeometryPolygon}
	mz, okMz := in.vector(KeyPolygonMz)
	mob, okMob := in.vector(KeyPolygonMobility)
	if !okMz || !okMob {
		return g, nil
	}

	var warns []error
	n := len(mz)
	if len(mob) != n {
		n = min(n, len(mob))
		warns = append(warns, &method.PartialParseWarning{
			Segment: in.Segment,
			Source:  "polygon filter",
			Reason:  fmt.Sprintf("%d masses but %d mobilities; extra vertices dropped", len(mz), len(mob)),
		})
	}
	poly := make([]method.Vertex, n)
	for i := 0; i < n; i++ {
		poly[i] = method.Vertex{Mz: mz[i], Mobility: mob[i]}
	}
	poly, clipWarns := clipPolygon(in, poly)
	g.Polygon = poly
	return g, append(warns, clipWarns...)
}

// bin is the m/z hull scanned over a mobility band.
type bin struct {
	mobLo, mobHi float64
	lo, hi       float64
}

// staircase returns the polygon enclosing every entry. Entries sharing a
// mobility are merged to their hull, so a wider interval always wins. Each
// distinct mobility owns the band between the midpoints to its neighbours;
// the outermost bands end at the first and last mobility.
func staircase(entries []entry) []method.Vertex {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].mobility < sorted[j].mobility })

	var levels []entry
	for _, e := range sorted {
		if n := len(levels); n > 0 && levels[n-1].mobility == e.mobility {
			levels[n-1].lo = math.Min(levels[n-1].lo, e.lo)
			levels[n-1].hi = math.Max(levels[n-1].hi, e.hi)
			continue
		}
		levels = append(levels, e)
	}

	bins := make([]bin, len(levels))
	for i, l := range levels {
		b := bin{mobLo: l.mobility, mobHi: l.mobility, lo: l.lo, hi: l.hi}
		if i > 0 {
			b.mobLo = (levels[i-1].mobility + l.mobility) / 2
		}
		if i < len(levels)-1 {
			b.mobHi = (l.mobility + levels[i+1].mobility) / 2
		}
		bins[i] = b
	}

	merged := []bin{bins[0]}
	for _, b := range bins[1:] {
		last := &merged[len(merged)-1]
		if scalar.EqualWithinAbs(last.lo, b.lo, mzMergeTolerance) && scalar.EqualWithinAbs(last.hi, b.hi, mzMergeTolerance) {
			last.mobHi = b.mobHi
			last.lo = math.Min(last.lo, b.lo)
			last.hi = math.Max(last.hi, b.hi)
			continue
		}
		merged = append(merged, b)
	}

	poly := make([]method.Vertex, 0, 4*len(merged))
	for _, b := range merged {
		poly = append(poly,
			method.Vertex{Mz: b.hi, Mobility: b.mobLo},
			method.Vertex{Mz: b.hi, Mobility: b.mobHi},
		)
	}
	for i := len(merged) - 1; i >= 0; i-- {
		b := merged[i]
		poly = append(poly,
			method.Vertex{Mz: b.lo, Mobility: b.mobHi},
			method.Vertex{Mz: b.lo, Mobility: b.mobLo},
		)
	}
	return simplify(poly)
}

// simplify drops repeated vertices and vertices lying on the straight line
// between their neighbours, treating the polygon as closed.
func simplify(poly []method.Vertex) []method.Vertex {
	out := append([]method.Vertex(nil), poly...)
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(out) && len(out) > 1; i++ {
			prev := out[(i+len(out)-1)%len(out)]
			cur := out[i]
			if cur == prev {
				out = append(out[:i], out[i+1:]...)
				changed = true
				break
			}
			if len(out) < 3 {
				continue
			}
			next := out[(i+1)%len(out)]
			if collinear(prev, cur, next) {
				out = append(out[:i], out[i+1:]...)
				changed = true
				break
			}
		}
	}
	return out
}

func collinear(a, b, c method.Vertex) bool {
	cross := (b.Mz-a.Mz)*(c.Mobility-a.Mobility) - (b.Mobility-a.Mobility)*(c.Mz-a.Mz)
	return cross == 0
}

// clipPolygon limits every vertex to the declared bounds.
func clipPolygon(in Input, poly []method.Vertex) ([]method.Vertex, []error) {
	var warns []error
	out := make([]method.Vertex, len(poly))
	for i, v := range poly {
		if nv, moved := in.Bounds.ClampMz(v.Mz); moved {
			warns = append(warns, &method.GeometryClipWarning{Segment: in.Segment, Axis: "m/z", Value: v.Mz, Bound: nv})
			v.Mz = nv
		}
		if nv, moved := in.Bounds.ClampMobility(v.Mobility); moved {
			warns = append(warns, &method.GeometryClipWarning{Segment: in.Segment, Axis: "mobility", Value: v.Mobility, Bound: nv})
			v.Mobility = nv
		}
		out[i] = v
	}
	if len(warns) > 0 {
		out = simplify(out)
	}
	return out, warns
}
