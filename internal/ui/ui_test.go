package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kronigert/timsCompare/internal/compare"
	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/session"
)

func param(key, label, display string, x float64) method.ParameterValue {
	return method.ParameterValue{
		Key: key, Label: label, Category: "Collision Cell", Type: method.TypeNumeric,
		Unit: "eV", Numbers: []float64{x}, Display: display,
	}
}

func datasets(t *testing.T) []*method.Dataset {
	t.Helper()
	a, err := method.NewDataset("/data/a.d", []method.SegmentSpec{{End: -1, Workflow: "MS", Params: []method.ParameterValue{
		param("collision_energy", "Collision Energy", "10.0 eV", 10),
		param("quench_time", "Quench Time", "0.0 eV", 0),
	}}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := method.NewDataset("/data/b.d", []method.SegmentSpec{{End: -1, Workflow: "MS", Params: []method.ParameterValue{
		param("collision_energy", "Collision Energy", "12.0 eV", 12),
	}}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return []*method.Dataset{a, b}
}

func TestComparisonTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := New(&buf)
	p.Comparison(compare.Compare(datasets(t), nil))
	out := buf.String()

	checks := []struct {
		name   string
		substr string
	}{
		{"first column", "a.d"},
		{"second column", "b.d"},
		{"label with unit", "Collision Energy [eV]"},
		{"value", "12.0 eV"},
		{"absent cell", "N/A"},
		{"diff marker", iconDiffers},
	}
	for _, c := range checks {
		if !strings.Contains(out, c.substr) {
			t.Errorf("expected output to contain %s (%q), got:\n%s", c.name, c.substr, out)
		}
	}
	if n := strings.Count(out, iconDiffers); n != 1 {
		t.Errorf("expected one differing row, got %d:\n%s", n, out)
	}
}

func TestDiffCount(t *testing.T) {
	t.Parallel()

	ds := datasets(t)
	tests := []struct {
		name string
		m    *compare.Matrix
		want string
	}{
		{"differences", compare.Compare(ds, nil), "1 of 2 parameter(s) differ"},
		{"none", compare.Compare(ds[:1], nil), "no differences across 2 parameter(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			New(&buf).DiffCount(tt.m)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestLoaded(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	New(&buf).loaded(Summary{
		Name:     "run.d",
		Mode:     method.ModeDiaPASEF,
		Segments: 2,
		Warnings: 1,
		Size:     2048,
		Modified: now.Add(-3 * time.Hour),
	}, now)

	want := "✓ run.d (dia-pasef, 2 segment(s), 2.0 kB, modified 3 hours ago) 1 warning(s)\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestLoadResultFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf).LoadResult(session.Result{Path: "/data/x.d", Err: errors.New("unsupported method")})
	if got := buf.String(); got != "✗ /data/x.d: unsupported method\n" {
		t.Errorf("got %q", got)
	}
}

func TestDataset(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf).Dataset(datasets(t)[0], []string{"collision_energy", "missing"})
	out := buf.String()
	for _, substr := range []string{"a.d", "segment 1: 0.00 min - end", "Collision Energy", "10.0 eV"} {
		if !strings.Contains(out, substr) {
			t.Errorf("expected %q in:\n%s", substr, out)
		}
	}
	if strings.Contains(out, "Quench Time") {
		t.Errorf("unselected key printed:\n%s", out)
	}
}

func TestTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf).Table([]string{"Key", "Unit"}, [][]string{{"collision_energy", "eV"}, {"polarity", ""}})
	out := buf.String()
	for _, substr := range []string{"Key", "Unit", "collision_energy", "eV", "polarity"} {
		if !strings.Contains(out, substr) {
			t.Errorf("expected %q in:\n%s", substr, out)
		}
	}
}
