package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

// covers reports whether v lies inside poly or on its boundary.
func covers(poly []method.Vertex, v method.Vertex) bool {
	const eps = 1e-9
	n := len(poly)
	for i := 0; i < n; i++ {
		a, b := poly[i], poly[(i+1)%n]
		cross := (b.Mz-a.Mz)*(v.Mobility-a.Mobility) - (b.Mobility-a.Mobility)*(v.Mz-a.Mz)
		if math.Abs(cross) < eps &&
			v.Mz >= math.Min(a.Mz, b.Mz)-eps && v.Mz <= math.Max(a.Mz, b.Mz)+eps &&
			v.Mobility >= math.Min(a.Mobility, b.Mobility)-eps && v.Mobility <= math.Max(a.Mobility, b.Mobility)+eps {
			return true
		}
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Mobility > v.Mobility) != (b.Mobility > v.Mobility) {
			x := (b.Mz-a.Mz)*(v.Mobility-a.Mobility)/(b.Mobility-a.Mobility) + a.Mz
			if v.Mz < x {
				inside = !inside
			}
		}
	}
	return inside
}

func table(name string, rows ...reader.Row) map[string]*reader.Table {
	return map[string]*reader.Table{name: {Name: name, Rows: rows}}
}

func numericParam(key string, v ...float64) method.ParameterValue {
	return method.ParameterValue{Key: key, Type: method.TypeNumeric, Numbers: v, List: len(v) != 1}
}

func TestStaircaseCoversEveryEntry(t *testing.T) {
	t.Parallel()

	entries := []entry{
		{mobility: 1.20, lo: 700, hi: 725},
		{mobility: 0.80, lo: 400, hi: 425},
		{mobility: 1.00, lo: 550, hi: 575},
		{mobility: 1.00, lo: 540, hi: 590}, // wider interval at the same mobility
		{mobility: 0.90, lo: 450, hi: 500},
		{mobility: 1.40, lo: 900, hi: 950},
	}
	poly := staircase(entries)
	if len(poly) < 4 {
		t.Fatalf("polygon has %d vertices", len(poly))
	}
	for _, e := range entries {
		for _, mz := range []float64{e.lo, (e.lo + e.hi) / 2, e.hi} {
			if !covers(poly, method.Vertex{Mz: mz, Mobility: e.mobility}) {
				t.Errorf("m/z %v at 1/K0 %v is outside the reconstructed polygon %v", mz, e.mobility, poly)
			}
		}
	}
}

func TestStaircaseMergesEqualBins(t *testing.T) {
	t.Parallel()

	entries := []entry{
		{mobility: 0.6, lo: 400, hi: 1000},
		{mobility: 0.8, lo: 400, hi: 1000},
		{mobility: 1.0, lo: 400, hi: 1000},
	}
	want := []method.Vertex{
		{Mz: 1000, Mobility: 0.6},
		{Mz: 1000, Mobility: 1.0},
		{Mz: 400, Mobility: 1.0},
		{Mz: 400, Mobility: 0.6},
	}
	if diff := cmp.Diff(want, staircase(entries), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("staircase mismatch (-want +got):\n%s", diff)
	}
}

func TestStaircaseStep(t *testing.T) {
	t.Parallel()

	entries := []entry{
		{mobility: 0.6, lo: 400, hi: 500},
		{mobility: 1.0, lo: 600, hi: 700},
	}
	want := []method.Vertex{
		{Mz: 500, Mobility: 0.6},
		{Mz: 500, Mobility: 0.8},
		{Mz: 700, Mobility: 0.8},
		{Mz: 700, Mobility: 1.0},
		{Mz: 600, Mobility: 1.0},
		{Mz: 600, Mobility: 0.8},
		{Mz: 400, Mobility: 0.8},
		{Mz: 400, Mobility: 0.6},
	}
	if diff := cmp.Diff(want, staircase(entries), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("staircase mismatch (-want +got):\n%s", diff)
	}
}

func TestPASEFFallsBackToDeclaredPolygon(t *testing.T) {
	t.Parallel()

	in := Input{Params: map[string]method.ParameterValue{
		KeyPolygonMz:       numericParam(KeyPolygonMz, 300, 1200, 1200, 300),
		KeyPolygonMobility: numericParam(KeyPolygonMobility, 0.7, 0.9, 1.3, 1.0),
	}}
	g, warns := Reconstruct(method.ModePASEF, in)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if g == nil || g.Kind != method.GeometryPolygon || len(g.Polygon) != 4 {
		t.Fatalf("expected a 4-vertex polygon, got %+v", g)
	}

	empty, _ := Reconstruct(method.ModePASEF, Input{})
	if empty == nil || !empty.Empty() {
		t.Errorf("PASEF without polygon should give an empty geometry, got %+v", empty)
	}
}

func TestPASEFScheduleAllMalformed(t *testing.T) {
	t.Parallel()

	in := Input{Tables: table(reader.TablePasefSchedule,
		reader.Row{"OneOverK0": "x", "IsolationMz": "500", "IsolationWidth": "2"},
		reader.Row{"OneOverK0": "0.9", "IsolationMz": "", "IsolationWidth": "2"},
	)}
	g, warns := Reconstruct(method.ModePASEF, in)
	if g != nil {
		t.Errorf("expected nil geometry, got %+v", g)
	}
	if len(warns) != 2 {
		t.Errorf("expected 2 warnings, got %d", len(warns))
	}
	for _, w := range warns {
		if !errors.Is(w, method.ErrPartialParse) {
			t.Errorf("warning %v is not a partial parse", w)
		}
	}
}

func diaRow(typ, cycle, imLo, imHi, mz, width string) reader.Row {
	return reader.Row{
		"Id": "1", "Type": typ, "CycleId": cycle,
		"OneOverK0Start": imLo, "OneOverK0End": imHi,
		"IsolationMz": mz, "IsolationWidth": width,
	}
}

func TestDiaPASEFClipsMobility(t *testing.T) {
	t.Parallel()

	in := Input{
		Segment: 0,
		Bounds:  method.Bounds{MobilityLow: 0.6, MobilityHigh: 1.6, HasMobility: true},
		Tables: table(reader.TableDiaWindows,
			diaRow("0", "0", "0", "0", "0", "0"),
			diaRow("1", "1", "1.2", "1.75", "800", "25"),
			diaRow("1", "1", "0.8", "1.2", "600", "25"),
		),
	}
	g, warns := Reconstruct(method.ModeDiaPASEF, in)
	if g == nil {
		t.Fatal("expected geometry")
	}
	if len(g.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(g.Windows))
	}
	if g.MS1Scans != 1 {
		t.Errorf("MS1Scans = %d, want 1", g.MS1Scans)
	}
	clipped := g.Windows[1]
	if clipped.MobilityHigh != 1.6 {
		t.Errorf("MobilityHigh = %v, want 1.6", clipped.MobilityHigh)
	}
	if clipped.MzLow != 787.5 || clipped.MzHigh != 812.5 {
		t.Errorf("m/z = [%v, %v], want [787.5, 812.5]", clipped.MzLow, clipped.MzHigh)
	}

	var cw *method.GeometryClipWarning
	if len(warns) != 1 || !errors.As(warns[0], &cw) {
		t.Fatalf("expected one GeometryClipWarning, got %v", warns)
	}
	if cw.Cycle != 1 || cw.Axis != "mobility" || cw.Value != 1.75 || cw.Bound != 1.6 {
		t.Errorf("unexpected clip warning %+v", cw)
	}
}

func TestDiaPASEFRows(t *testing.T) {
	t.Parallel()

	t.Run("malformed rows are skipped", func(t *testing.T) {
		t.Parallel()
		in := Input{Tables: table(reader.TableDiaWindows,
			diaRow("1", "1", "0.8", "1.0", "500", "25"),
			diaRow("1", "two", "0.8", "1.0", "500", "25"),
		)}
		g, warns := Reconstruct(method.ModeDiaPASEF, in)
		if g == nil || len(g.Windows) != 1 {
			t.Fatalf("expected one window, got %+v", g)
		}
		if len(warns) != 1 || !errors.Is(warns[0], method.ErrPartialParse) {
			t.Errorf("expected one partial parse warning, got %v", warns)
		}
	})

	t.Run("MS1 row without a cycle is not counted", func(t *testing.T) {
		t.Parallel()
		in := Input{Tables: table(reader.TableDiaWindows,
			diaRow("0", "0", "0", "0", "0", "0"),
			diaRow("0", "n/a", "0", "0", "0", "0"),
			diaRow("0", "2", "0", "0", "0", "0"),
			diaRow("1", "1", "0.8", "1.0", "500", "25"),
		)}
		g, warns := Reconstruct(method.ModeDiaPASEF, in)
		if g == nil {
			t.Fatal("expected geometry")
		}
		if diff := cmp.Diff([]int{0, 2}, g.MS1Cycles); diff != "" {
			t.Errorf("MS1Cycles mismatch (-want +got):\n%s", diff)
		}
		if g.MS1Scans != len(g.MS1Cycles) {
			t.Errorf("MS1Scans = %d, want %d", g.MS1Scans, len(g.MS1Cycles))
		}
		var pw *method.PartialParseWarning
		if len(warns) != 1 || !errors.As(warns[0], &pw) || pw.Row != 2 {
			t.Errorf("expected one partial parse warning for row 2, got %v", warns)
		}
	})

	t.Run("all malformed gives no geometry", func(t *testing.T) {
		t.Parallel()
		in := Input{Tables: table(reader.TableDiaWindows, diaRow("1", "1", "a", "b", "c", "d"))}
		if g, _ := Reconstruct(method.ModeDiaPASEF, in); g != nil {
			t.Errorf("expected nil geometry, got %+v", g)
		}
	})

	t.Run("missing table gives empty geometry", func(t *testing.T) {
		t.Parallel()
		g, warns := Reconstruct(method.ModeDiaPASEF, Input{})
		if g == nil || !g.Empty() || len(warns) != 0 {
			t.Errorf("got %+v, %v", g, warns)
		}
	})
}

func TestDiaPASEFCoverage(t *testing.T) {
	t.Parallel()

	rows := []reader.Row{
		diaRow("1", "1", "0.70", "0.95", "450", "25"),
		diaRow("1", "1", "0.95", "1.20", "650", "25"),
		diaRow("1", "2", "0.70", "0.95", "475", "25"),
		diaRow("1", "2", "0.95", "1.20", "675", "25"),
	}
	g, _ := Reconstruct(method.ModeDiaPASEF, Input{Tables: table(reader.TableDiaWindows, rows...)})
	if g == nil || len(g.Windows) != len(rows) {
		t.Fatalf("expected %d windows, got %+v", len(rows), g)
	}
	for _, row := range rows {
		r := rowReader{row: row}
		mz, width := r.float("IsolationMz"), r.float("IsolationWidth")
		lo, hi := r.float("OneOverK0Start"), r.float("OneOverK0End")
		found := false
		for _, w := range g.Windows {
			if w.MzLow <= mz-width/2 && w.MzHigh >= mz+width/2 && w.MobilityLow <= lo && w.MobilityHigh >= hi {
				found = true
			}
		}
		if !found {
			t.Errorf("row %v is not covered", row)
		}
	}
}

func TestDiagonalPASEF(t *testing.T) {
	t.Parallel()

	in := Input{
		Params: map[string]method.ParameterValue{
			KeyMobilityStart: numericParam(KeyMobilityStart, 0.7),
			KeyMobilityEnd:   numericParam(KeyMobilityEnd, 1.3),
		},
		Tables: table(reader.TableDiagonal, reader.Row{
			"slope": "0.001", "origin": "0.3", "width_mz": "400",
			"isolation_mz": "25", "number_of_slices": "4", "insert_ms_scan": "1",
		}),
	}
	g, warns := Reconstruct(method.ModeDiagonalPASEF, in)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if g == nil || g.Ramp == nil || len(g.Windows) != 4 {
		t.Fatalf("expected 4 slices with a ramp, got %+v", g)
	}
	if g.MS1Scans != 1 {
		t.Errorf("MS1Scans = %d, want 1", g.MS1Scans)
	}

	// Centre at the midpoint 1.0 is (1.0-0.3)/0.001 = 700.
	const eps = 1e-9
	wantLow := []float64{500, 600, 700, 800}
	for i, w := range g.Windows {
		if w.Cycle != i+1 {
			t.Errorf("slice %d has cycle %d", i, w.Cycle)
		}
		if math.Abs(w.MzLow-wantLow[i]) > eps || math.Abs(w.MzHigh-wantLow[i]-25) > eps {
			t.Errorf("slice %d m/z = [%v, %v], want [%v, %v]", i, w.MzLow, w.MzHigh, wantLow[i], wantLow[i]+25)
		}
		if w.Diagonal == nil {
			t.Fatalf("slice %d has no diagonal edge", i)
		}
		if math.Abs(w.Diagonal.MzStartLow-(wantLow[i]-300)) > eps || math.Abs(w.Diagonal.MzStartHigh-(wantLow[i]+300)) > eps {
			t.Errorf("slice %d diagonal = %+v", i, *w.Diagonal)
		}
	}
}

func TestDiagonalPASEFClipsEdges(t *testing.T) {
	t.Parallel()

	in := Input{
		Bounds: method.Bounds{MzLow: 400, MzHigh: 1000, HasMz: true},
		Params: map[string]method.ParameterValue{
			KeyMobilityStart: numericParam(KeyMobilityStart, 0.7),
			KeyMobilityEnd:   numericParam(KeyMobilityEnd, 1.3),
		},
		Tables: table(reader.TableDiagonal, reader.Row{
			"slope": "0.001", "origin": "0.2", "width_mz": "400",
			"isolation_mz": "25", "number_of_slices": "4",
		}),
	}
	g, warns := Reconstruct(method.ModeDiagonalPASEF, in)
	if g == nil || len(g.Windows) != 4 {
		t.Fatalf("expected 4 slices, got %+v", g)
	}

	for _, w := range g.Windows {
		d := w.Diagonal
		if d == nil {
			t.Fatalf("cycle %d has no diagonal edge", w.Cycle)
		}
		for _, mz := range []float64{w.MzLow, w.MzHigh, d.MzStartLow, d.MzEndLow, d.MzStartHigh, d.MzEndHigh} {
			if mz < 400 || mz > 1000 {
				t.Errorf("cycle %d: m/z %v outside [400, 1000]: %+v", w.Cycle, mz, *d)
			}
		}
	}

	// At mobility 0.7 the first slice starts at 300; at 1.3 the last ends at 1225.
	first, last := g.Windows[0].Diagonal, g.Windows[3].Diagonal
	if first.MzStartLow != 400 || last.MzEndHigh != 1000 {
		t.Errorf("edges not clamped: first %+v, last %+v", *first, *last)
	}

	var clips int
	for _, w := range warns {
		var cw *method.GeometryClipWarning
		if !errors.As(w, &cw) {
			t.Errorf("unexpected warning %v", w)
			continue
		}
		if cw.Axis != "m/z" || cw.Bound < 400 || cw.Bound > 1000 {
			t.Errorf("clip warning %+v", cw)
		}
		clips++
	}
	// Low edge: 300 and 325. High edge: 1100, 1200, 1025, 1125, 1225.
	// Values that land on a bound may add rounding-sized clips.
	if clips < 7 {
		t.Errorf("expected at least 7 clip warnings, got %d: %v", clips, warns)
	}
}

func TestDiagonalPASEFZeroSlope(t *testing.T) {
	t.Parallel()

	in := Input{Tables: table(reader.TableDiagonal, reader.Row{
		"slope": "0", "origin": "0.3", "width_mz": "400", "isolation_mz": "25", "number_of_slices": "4",
	})}
	g, warns := Reconstruct(method.ModeDiagonalPASEF, in)
	if g != nil {
		t.Errorf("expected nil geometry, got %+v", g)
	}
	if len(warns) != 1 {
		t.Errorf("expected one warning, got %v", warns)
	}
}

func TestGeneralModeHasNoGeometry(t *testing.T) {
	t.Parallel()

	if _, ok := For(method.ModeGeneral); ok {
		t.Error("general mode must not have a reconstructor")
	}
	g, warns := Reconstruct(method.ModeGeneral, Input{Tables: table(reader.TableDiaWindows, diaRow("1", "1", "0.8", "1", "500", "25"))})
	if g != nil || warns != nil {
		t.Errorf("got %+v, %v", g, warns)
	}
}

func TestDeclaredBounds(t *testing.T) {
	t.Parallel()

	b := DeclaredBounds(map[string]method.ParameterValue{
		KeyMobilityStart: numericParam(KeyMobilityStart, 0.6),
		KeyMobilityEnd:   numericParam(KeyMobilityEnd, 1.6),
		KeyScanBeginMz:   numericParam(KeyScanBeginMz, 100),
	})
	if !b.HasMobility || b.MobilityLow != 0.6 || b.MobilityHigh != 1.6 {
		t.Errorf("mobility bounds = %+v", b)
	}
	if b.HasMz {
		t.Error("m/z axis should be unbounded without an end")
	}
}
