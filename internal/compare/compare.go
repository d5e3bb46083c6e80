// Package compare aligns loaded datasets segment by segment and flags the
// parameters whose values differ.
package compare

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/normalize"
)

// DefaultRelativeTolerance is the relative tolerance of numeric equality.
const DefaultRelativeTolerance = 1e-6

// Column is one (dataset, segment) pair of the matrix.
type Column struct {
	Dataset int    // position in the compared dataset list
	Name    string // dataset display name
	Segment int
	Start   float64
	End     float64 // negative means open end
	// Segmented is set when the dataset has more than one segment.
	Segmented bool
}

// Header renders the column title. Columns of segmented datasets carry the
// segment number and its time range.
func (c Column) Header() string {
	if !c.Segmented {
		return c.Name
	}
	end := "end"
	if c.End >= 0 {
		end = fmt.Sprintf("%.2f min", c.End)
	}
	return fmt.Sprintf("%s [segment %d: %.2f min - %s]", c.Name, c.Segment+1, c.Start, end)
}

// Cell is one matrix entry. Absent cells have Present unset.
type Cell struct {
	Value   method.ParameterValue
	Present bool
}

// Display returns the cell text, "N/A" when absent.
func (c Cell) Display() string {
	if !c.Present {
		return "N/A"
	}
	return c.Value.Display
}

// Row holds one parameter across every column.
type Row struct {
	Key      string
	Label    string
	Category string
	Unit     string
	Cells    []Cell
	// Differs is set when any segment index has two present cells that are
	// not value-equal. Cells of different segments are never compared.
	Differs bool
	// SegmentDiffers flags, per segment index, disagreement among the cells
	// of that segment.
	SegmentDiffers []bool
}

// Matrix is the result of a comparison. It holds no reference to the
// datasets and is recomputed on demand.
type Matrix struct {
	Columns  []Column
	Rows     []Row
	Segments int
}

// Row returns the row of key.
func (m *Matrix) Row(key string) (Row, bool) {
	for _, r := range m.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return Row{}, false
}

// Differences returns only the rows that differ.
func (m *Matrix) Differences() []Row {
	var out []Row
	for _, r := range m.Rows {
		if r.Differs {
			out = append(out, r)
		}
	}
	return out
}

// Option configures Compare.
type Option func(*options)

type options struct {
	catalogue *normalize.Catalogue
	relTol    float64
	onlyDiffs bool
}

// WithCatalogue sets the catalogue used for tolerances and row labels.
func WithCatalogue(c *normalize.Catalogue) Option {
	return func(o *options) { o.catalogue = c }
}

// WithRelativeTolerance overrides the relative numeric tolerance.
func WithRelativeTolerance(tol float64) Option {
	return func(o *options) { o.relTol = tol }
}

// OnlyDifferences drops rows that do not differ.
func OnlyDifferences(on bool) Option {
	return func(o *options) { o.onlyDiffs = on }
}

// Compare builds the comparison matrix of datasets. Rows follow keys; when
// keys is empty they are the union of dataset keys in first-seen order.
// Selected keys that no dataset carries still produce a row of absent
// cells. Columns are grouped by segment index, datasets in the given order.
func Compare(datasets []*method.Dataset, keys []string, opts ...Option) *Matrix {
	o := options{relTol: DefaultRelativeTolerance}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalogue == nil {
		o.catalogue = normalize.Default()
	}
	eq := Equality{Catalogue: o.catalogue, Relative: o.relTol}

	m := &Matrix{}
	for _, ds := range datasets {
		m.Segments = max(m.Segments, ds.Len())
	}
	for seg := 0; seg < m.Segments; seg++ {
		for i, ds := range datasets {
			s, err := ds.Segment(seg)
			if err != nil {
				continue
			}
			m.Columns = append(m.Columns, Column{
				Dataset:   i,
				Name:      ds.Name(),
				Segment:   seg,
				Start:     s.Start(),
				End:       s.End(),
				Segmented: ds.Len() > 1,
			})
		}
	}

	if len(keys) == 0 {
		keys = unionKeys(datasets)
	}
	for _, key := range keys {
		row := Row{Key: key, Cells: make([]Cell, len(m.Columns))}
		for i, col := range m.Columns {
			if v, ok := datasets[col.Dataset].Value(col.Segment, key); ok {
				row.Cells[i] = Cell{Value: v, Present: true}
			}
		}
		describe(&row, o.catalogue)
		row.SegmentDiffers = make([]bool, m.Segments)
		for seg := range row.SegmentDiffers {
			row.SegmentDiffers[seg] = eq.differs(row.Cells, func(i int) bool { return m.Columns[i].Segment == seg })
			row.Differs = row.Differs || row.SegmentDiffers[seg]
		}
		if o.onlyDiffs && !row.Differs {
			continue
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

func unionKeys(datasets []*method.Dataset) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ds := range datasets {
		for _, k := range ds.Keys() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// describe fills the row labels from the first present cell, falling back
// to the catalogue definition and finally the key itself.
func describe(row *Row, cat *normalize.Catalogue) {
	for _, c := range row.Cells {
		if c.Present {
			row.Label, row.Category, row.Unit = c.Value.Label, c.Value.Category, c.Value.Unit
			return
		}
	}
	if d, ok := cat.Definition(row.Key); ok {
		row.Label, row.Category, row.Unit = d.Label, d.Category, d.Unit
		return
	}
	row.Label = row.Key
}

// Equality decides whether two parameter values are the same.
type Equality struct {
	Catalogue *normalize.Catalogue
	Relative  float64
}

// Equal reports whether a and b are value-equal. Values of different keys
// or semantic types never are. Unknown values compare by raw text; numbers
// compare within the looser of the unit's absolute tolerance and the
// relative tolerance, element-wise for vectors of equal length.
func (e Equality) Equal(a, b method.ParameterValue) bool {
	if a.Key != b.Key || a.Type != b.Type {
		return false
	}
	if a.Unknown || b.Unknown {
		return a.Unknown && b.Unknown && a.Raw == b.Raw
	}
	switch a.Type {
	case method.TypeNumeric:
		if a.List != b.List || len(a.Numbers) != len(b.Numbers) || a.Unit != b.Unit {
			return false
		}
		abs := 0.0
		if e.Catalogue != nil {
			abs = e.Catalogue.Tolerance(a.Unit)
		}
		for i := range a.Numbers {
			if !scalar.EqualWithinAbsOrRel(a.Numbers[i], b.Numbers[i], abs, e.Relative) {
				return false
			}
		}
		return true
	case method.TypeBoolean:
		return a.Bool == b.Bool
	case method.TypeEnum:
		return a.Text == b.Text
	default:
		if a.List || b.List {
			return a.List == b.List && slices.Equal(a.Items, b.Items)
		}
		return a.Text == b.Text
	}
}

// differs reports whether any two present cells accepted by keep are not
// equal.
func (e Equality) differs(cells []Cell, keep func(int) bool) bool {
	var vals []method.ParameterValue
	for i, c := range cells {
		if c.Present && keep(i) {
			vals = append(vals, c.Value)
		}
	}
	for i := 0; i < len(vals); i++ {
		for j := i + 1; j < len(vals); j++ {
			if !e.Equal(vals[i], vals[j]) {
				return true
			}
		}
	}
	return false
}
