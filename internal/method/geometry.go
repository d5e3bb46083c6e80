package method

import "sort"

// GeometryKind distinguishes the two window geometry variants.
type GeometryKind int

const (
	// GeometryPolygon is a single closed region (PASEF).
	GeometryPolygon GeometryKind = iota
	// GeometryWindows is a set of scan windows grouped by cycle (dia-PASEF, diagonal-PASEF).
	GeometryWindows
)

// Vertex is one polygon corner in (m/z, 1/K0) space.
type Vertex struct {
	Mz       float64
	Mobility float64
}

// DiagonalEdge holds the m/z window at both mobility ends of a diagonal
// slice. Start and end differ by the isolation width unless clipped.
type DiagonalEdge struct {
	MzStartLow, MzEndLow   float64 // at MobilityLow
	MzStartHigh, MzEndHigh float64 // at MobilityHigh
}

// Window is one scheduled isolation window. For diagonal slices the m/z
// bounds are evaluated at the mobility midpoint and Diagonal carries the
// full parallelogram.
type Window struct {
	Cycle        int
	MzLow        float64
	MzHigh       float64
	MobilityLow  float64
	MobilityHigh float64
	Diagonal     *DiagonalEdge
}

// Ramp is the declared diagonal-PASEF scan line: mobility = Origin + Slope*m/z.
type Ramp struct {
	Slope          float64
	Origin         float64
	PatternWidth   float64 // width_mz: total m/z width covered by all slices
	IsolationWidth float64 // isolation_mz: width of one slice
	Slices         int
}

// MzAt returns the ramp centre m/z at the given mobility.
func (r Ramp) MzAt(mobility float64) float64 {
	return (mobility - r.Origin) / r.Slope
}

// Geometry is the reconstructed acquisition region of one segment. Segments
// in modes without a window concept have no Geometry at all (nil).
type Geometry struct {
	Kind      GeometryKind
	Polygon   []Vertex
	Windows   []Window
	MS1Scans  int
	MS1Cycles []int // cycle index of each MS1 scan, when the source names them
	Ramp      *Ramp
}

// Cycles returns the distinct cycle indices in ascending order.
func (g *Geometry) Cycles() []int {
	seen := make(map[int]bool)
	var out []int
	for _, w := range g.Windows {
		if !seen[w.Cycle] {
			seen[w.Cycle] = true
			out = append(out, w.Cycle)
		}
	}
	sort.Ints(out)
	return out
}

// CycleWindows returns the windows scheduled in cycle c.
func (g *Geometry) CycleWindows(c int) []Window {
	var out []Window
	for _, w := range g.Windows {
		if w.Cycle == c {
			out = append(out, w)
		}
	}
	return out
}

// Empty reports whether the geometry holds no vertices and no windows.
func (g *Geometry) Empty() bool {
	return len(g.Polygon) == 0 && len(g.Windows) == 0
}

// Clone returns a deep copy so callers cannot alter a published dataset.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	out := &Geometry{
		Kind:     g.Kind,
		MS1Scans: g.MS1Scans,
	}
	if g.MS1Cycles != nil {
		out.MS1Cycles = append([]int(nil), g.MS1Cycles...)
	}
	if g.Polygon != nil {
		out.Polygon = append([]Vertex(nil), g.Polygon...)
	}
	if g.Windows != nil {
		out.Windows = make([]Window, len(g.Windows))
		for i, w := range g.Windows {
			if w.Diagonal != nil {
				d := *w.Diagonal
				w.Diagonal = &d
			}
			out.Windows[i] = w
		}
	}
	if g.Ramp != nil {
		r := *g.Ramp
		out.Ramp = &r
	}
	return out
}

// SortWindows orders windows by cycle, then mobility, then m/z so that
// output built from a window set is deterministic.
func SortWindows(ws []Window) {
	sort.SliceStable(ws, func(i, j int) bool {
		a, b := ws[i], ws[j]
		if a.Cycle != b.Cycle {
			return a.Cycle < b.Cycle
		}
		if a.MobilityLow != b.MobilityLow {
			return a.MobilityLow < b.MobilityLow
		}
		return a.MzLow < b.MzLow
	})
}
