package compare

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/normalize"
)

func num(key, unit string, x ...float64) method.ParameterValue {
	return method.ParameterValue{Key: key, Label: key, Type: method.TypeNumeric, Unit: unit, Numbers: x, List: len(x) != 1}
}

func enum(key, raw, text string) method.ParameterValue {
	return method.ParameterValue{Key: key, Label: key, Type: method.TypeEnum, Raw: raw, Text: text, Display: text}
}

func unknown(key, raw string) method.ParameterValue {
	return method.ParameterValue{Key: key, Type: method.TypeEnum, Raw: raw, Unknown: true, Display: "raw:" + raw}
}

func dataset(t *testing.T, path string, segs ...[]method.ParameterValue) *method.Dataset {
	t.Helper()
	specs := make([]method.SegmentSpec, len(segs))
	for i, params := range segs {
		specs[i] = method.SegmentSpec{Start: float64(i * 10), End: float64(i*10 + 10), Params: params}
	}
	specs[len(specs)-1].End = -1
	ds, err := method.NewDataset(path, specs, nil)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return ds
}

func base() []method.ParameterValue {
	return []method.ParameterValue{
		enum("ion_polarity", "0", "Positive"),
		num("collision_energy", "eV", 10),
		num("ramp_time", "ms", 100),
		num("scan_begin_mz", "m/z", 100),
	}
}

func with(params []method.ParameterValue, p method.ParameterValue) []method.ParameterValue {
	out := append([]method.ParameterValue(nil), params...)
	for i := range out {
		if out[i].Key == p.Key {
			out[i] = p
			return out
		}
	}
	return append(out, p)
}

func differing(m *Matrix) []string {
	var out []string
	for _, r := range m.Differences() {
		out = append(out, r.Key)
	}
	return out
}

func TestOneCollisionEnergyDifference(t *testing.T) {
	t.Parallel()

	a := dataset(t, "/data/a.d", base())
	b := dataset(t, "/data/b.d", with(base(), num("collision_energy", "eV", 12)))

	m := Compare([]*method.Dataset{a, b}, nil)
	if diff := cmp.Diff([]string{"collision_energy"}, differing(m)); diff != "" {
		t.Errorf("differing rows mismatch (-want +got):\n%s", diff)
	}
	if len(m.Rows) != 4 {
		t.Errorf("expected 4 rows, got %d", len(m.Rows))
	}

	only := Compare([]*method.Dataset{a, b}, nil, OnlyDifferences(true))
	if len(only.Rows) != 1 || only.Rows[0].Key != "collision_energy" {
		t.Errorf("OnlyDifferences rows = %+v", only.Rows)
	}
}

func TestCompareSymmetric(t *testing.T) {
	t.Parallel()

	a := dataset(t, "/data/a.d", base(), with(base(), num("ramp_time", "ms", 150)))
	b := dataset(t, "/data/b.d", with(base(), unknown("ion_polarity", "7")))
	c := dataset(t, "/data/c.d", with(base(), num("scan_begin_mz", "m/z", 100.00005)))

	forward := Compare([]*method.Dataset{a, b, c}, nil)
	backward := Compare([]*method.Dataset{c, b, a}, nil)
	for _, r := range forward.Rows {
		other, ok := backward.Row(r.Key)
		if !ok {
			t.Fatalf("row %s missing after reordering", r.Key)
		}
		if r.Differs != other.Differs {
			t.Errorf("%s: Differs %v forward, %v backward", r.Key, r.Differs, other.Differs)
		}
		if diff := cmp.Diff(r.SegmentDiffers, other.SegmentDiffers); diff != "" {
			t.Errorf("%s: segment flags differ:\n%s", r.Key, diff)
		}
	}
}

func TestCompareDeterministic(t *testing.T) {
	t.Parallel()

	a := dataset(t, "/data/a.d", base(), base())
	b := dataset(t, "/data/b.d", with(base(), num("collision_energy", "eV", 20)))
	first := Compare([]*method.Dataset{a, b}, nil)
	second := Compare([]*method.Dataset{a, b}, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated comparison differs (-first +second):\n%s", diff)
	}
}

func TestSingleSegmentBoundary(t *testing.T) {
	t.Parallel()

	a := dataset(t, "/data/a.d", base())
	m := Compare([]*method.Dataset{a}, nil)
	if len(m.Columns) != 1 || m.Segments != 1 {
		t.Fatalf("columns = %+v, segments = %d", m.Columns, m.Segments)
	}
	if got := m.Columns[0].Header(); got != "a.d" {
		t.Errorf("Header = %q", got)
	}
	if len(m.Differences()) != 0 {
		t.Errorf("single dataset reports differences: %v", differing(m))
	}
}

func TestSegmentAlignment(t *testing.T) {
	t.Parallel()

	a := dataset(t, "/data/a.d", base(), with(base(), num("collision_energy", "eV", 30)))
	b := dataset(t, "/data/b.d", base())

	m := Compare([]*method.Dataset{a, b}, []string{"collision_energy"})
	var headers []string
	for _, c := range m.Columns {
		headers = append(headers, c.Header())
	}
	want := []string{
		"a.d [segment 1: 0.00 min - 10.00 min]",
		"b.d",
		"a.d [segment 2: 10.00 min - end]",
	}
	if diff := cmp.Diff(want, headers); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}

	row := m.Rows[0]
	if row.Differs {
		t.Error("cells of different segments must not be compared with each other")
	}
	if diff := cmp.Diff([]bool{false, false}, row.SegmentDiffers); diff != "" {
		t.Errorf("segment flags mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiSegmentOneDifference(t *testing.T) {
	t.Parallel()

	a := dataset(t, "/data/a.d", base(), with(base(), num("collision_energy", "eV", 20)))
	b := dataset(t, "/data/b.d", base(), with(base(), num("collision_energy", "eV", 22)))
	same := dataset(t, "/data/c.d", base(), with(base(), num("collision_energy", "eV", 20)))

	tests := []struct {
		name     string
		datasets []*method.Dataset
		want     []string
		segments []bool
	}{
		{"second segment differs", []*method.Dataset{a, b}, []string{"collision_energy"}, []bool{false, true}},
		{"identical methods", []*method.Dataset{a, same}, nil, []bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := Compare(tt.datasets, nil)
			if diff := cmp.Diff(tt.want, differing(m)); diff != "" {
				t.Errorf("differing rows mismatch (-want +got):\n%s", diff)
			}
			row, ok := m.Row("collision_energy")
			if !ok {
				t.Fatal("collision_energy row missing")
			}
			if diff := cmp.Diff(tt.segments, row.SegmentDiffers); diff != "" {
				t.Errorf("segment flags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectionKeepsUnseenKeys(t *testing.T) {
	t.Parallel()

	a := dataset(t, "/data/a.d", base())
	m := Compare([]*method.Dataset{a}, []string{"ramp_time", "cycle_time", "not_a_parameter"})
	var keys []string
	for _, r := range m.Rows {
		keys = append(keys, r.Key)
	}
	if diff := cmp.Diff([]string{"ramp_time", "cycle_time", "not_a_parameter"}, keys); diff != "" {
		t.Errorf("row order mismatch (-want +got):\n%s", diff)
	}
	r, _ := m.Row("cycle_time")
	if r.Cells[0].Present || r.Cells[0].Display() != "N/A" {
		t.Errorf("cycle_time cell = %+v", r.Cells[0])
	}
	if r.Label != "Cycle Time" || r.Unit != "s" {
		t.Errorf("catalogue labels not used: %+v", r)
	}
	if r, _ := m.Row("not_a_parameter"); r.Label != "not_a_parameter" {
		t.Errorf("unknown key label = %q", r.Label)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	eq := Equality{Catalogue: normalize.Default(), Relative: DefaultRelativeTolerance}

	tests := []struct {
		name string
		a, b method.ParameterValue
		want bool
	}{
		{"within m/z tolerance", num("x", "m/z", 500), num("x", "m/z", 500.00005), true},
		{"outside m/z tolerance", num("x", "m/z", 500), num("x", "m/z", 500.01), false},
		{"within relative tolerance", num("x", "", 1e9), num("x", "", 1e9+1), true},
		{"vector equal", num("x", "eV", 20, 59), num("x", "eV", 20, 59), true},
		{"vector length", num("x", "eV", 20, 59), num("x", "eV", 20, 59, 70), false},
		{"different keys", num("x", "eV", 1), num("y", "eV", 1), false},
		{"type mismatch", num("x", "", 1), method.ParameterValue{Key: "x", Type: method.TypeText, Text: "1"}, false},
		{"enum", enum("x", "1", "On"), enum("x", "1", "On"), true},
		{"unknown same raw", unknown("x", "7"), unknown("x", "7"), true},
		{"unknown vs known", unknown("x", "1"), enum("x", "1", "On"), false},
		{"boolean", method.ParameterValue{Key: "x", Type: method.TypeBoolean, Bool: true}, method.ParameterValue{Key: "x", Type: method.TypeBoolean}, false},
		{"text list", method.ParameterValue{Key: "x", Type: method.TypeText, List: true, Items: []string{"a", "b"}},
			method.ParameterValue{Key: "x", Type: method.TypeText, List: true, Items: []string{"a", "b"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := eq.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
			if got := eq.Equal(tt.b, tt.a); got != tt.want {
				t.Errorf("Equal reversed = %v, want %v", got, tt.want)
			}
		})
	}
}
