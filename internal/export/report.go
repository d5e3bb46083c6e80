package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	parquet "github.com/parquet-go/parquet-go"

	"github.com/kronigert/timsCompare/internal/compare"
	"github.com/kronigert/timsCompare/internal/method"
)

// ReportRow is one parameter of a comparison report.
type ReportRow struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Category string   `json:"category"`
	Unit     string   `json:"unit,omitempty"`
	Values   []string `json:"values"`
	Differs  bool     `json:"differs"`
}

// Report is the tabular form of a comparison matrix. Columns carry the
// segment boundary markers of segmented datasets.
type Report struct {
	Columns []string    `json:"columns"`
	Rows    []ReportRow `json:"rows"`
}

// NewReport flattens m into display strings.
func NewReport(m *compare.Matrix) *Report {
	r := &Report{Columns: make([]string, len(m.Columns))}
	for i, c := range m.Columns {
		r.Columns[i] = c.Header()
	}
	for _, row := range m.Rows {
		rr := ReportRow{
			Key:      row.Key,
			Label:    row.Label,
			Category: row.Category,
			Unit:     row.Unit,
			Values:   make([]string, len(row.Cells)),
			Differs:  row.Differs,
		}
		for i, c := range row.Cells {
			rr.Values[i] = c.Display()
		}
		r.Rows = append(r.Rows, rr)
	}
	return r
}

// WriteCSV writes the report as one CSV table.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	header := append([]string{"Parameter", "Category", "Unit"}, r.Columns...)
	header = append(header, "Differs")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := append([]string{row.Label, row.Category, row.Unit}, row.Values...)
		rec = append(rec, strconv.FormatBool(row.Differs))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ParquetRow is the long-format record of a Parquet report: one record per
// (parameter, column) cell.
type ParquetRow struct {
	Key      string `parquet:"key"`
	Label    string `parquet:"label"`
	Category string `parquet:"category"`
	Unit     string `parquet:"unit,optional"`
	Column   string `parquet:"column"`
	Value    string `parquet:"value"`
	Differs  bool   `parquet:"differs"`
}

// ParquetRows expands r into long format.
func ParquetRows(r *Report) []ParquetRow {
	out := make([]ParquetRow, 0, len(r.Rows)*len(r.Columns))
	for _, row := range r.Rows {
		for i, col := range r.Columns {
			out = append(out, ParquetRow{
				Key:      row.Key,
				Label:    row.Label,
				Category: row.Category,
				Unit:     row.Unit,
				Column:   col,
				Value:    row.Values[i],
				Differs:  row.Differs,
			})
		}
	}
	return out
}

// WriteParquet writes the report in long format, Snappy compressed.
func WriteParquet(w io.Writer, r *Report) error {
	pw := parquet.NewGenericWriter[ParquetRow](w, parquet.Compression(&parquet.Snappy))
	if rows := ParquetRows(r); len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return fmt.Errorf("writing parquet rows: %w", err)
		}
	}
	return pw.Close()
}

// Formats accepted by Write.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// Write dispatches on format.
func Write(w io.Writer, format string, r *Report) error {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return WriteCSV(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatParquet:
		return WriteParquet(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// ReportValue renders a parameter for the per-dataset report: list values
// are joined with "; ", everything else uses the display text.
func ReportValue(p method.ParameterValue) string {
	if p.Unknown || !p.List {
		return p.Display
	}
	if len(p.Items) > 0 {
		return strings.Join(p.Items, "; ")
	}
	parts := make([]string, len(p.Numbers))
	for i, x := range p.Numbers {
		parts[i] = strconv.FormatFloat(x, 'f', -1, 64)
	}
	return strings.Join(parts, "; ")
}

// WriteDatasetCSV writes the per-dataset report with the columns Segment,
// Category, Parameter and Value. segments selects 0-based segment indices;
// nil selects all. Keys absent from a segment are skipped.
func WriteDatasetCSV(w io.Writer, ds *method.Dataset, keys []string, segments []int) error {
	if segments == nil {
		for i := 0; i < ds.Len(); i++ {
			segments = append(segments, i)
		}
	}
	if keys == nil {
		keys = ds.Keys()
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Segment", "Category", "Parameter", "Value"}); err != nil {
		return err
	}
	for _, i := range segments {
		seg, err := ds.Segment(i)
		if err != nil {
			return err
		}
		for _, k := range keys {
			p, ok := seg.Value(k)
			if !ok {
				continue
			}
			rec := []string{fmt.Sprintf("Segment %d", i+1), p.Category, p.Label, ReportValue(p)}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
