// Package ui renders datasets, load outcomes and comparison tables for the
// terminal.
package ui

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/kronigert/timsCompare/internal/compare"
	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/session"
)

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF") // Cyan, headers
	colorAccent  = lipgloss.Color("#FFD700") // Gold, differing rows
	colorSuccess = lipgloss.Color("#00E676")
	colorDanger  = lipgloss.Color("#FF5252")
	colorMuted   = lipgloss.Color("#636363")
)

// Status icons.
const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconWarning = "⚠"
	iconDiffers = "≠"
)

// Printer writes styled output. Colors follow the capabilities of the
// destination, so plain writers get plain text.
type Printer struct {
	w io.Writer

	header  lipgloss.Style
	differs lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	danger  lipgloss.Style
	warning lipgloss.Style
	border  lipgloss.Style
}

// New creates a printer on w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		header:  r.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1),
		differs: r.NewStyle().Foreground(colorAccent).Bold(true).Padding(0, 1),
		muted:   r.NewStyle().Foreground(colorMuted).Padding(0, 1),
		success: r.NewStyle().Foreground(colorSuccess).Bold(true),
		danger:  r.NewStyle().Foreground(colorDanger).Bold(true),
		warning: r.NewStyle().Foreground(colorAccent),
		border:  r.NewStyle().Foreground(colorMuted),
	}
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, "%s %s\n", p.danger.Render("error:"), msg)
}

// Info prints a de-emphasized line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.w, p.muted.UnsetPadding().Render(msg))
}

// Summary is what LoadResult shows about a loaded directory.
type Summary struct {
	Name     string
	Mode     method.Mode
	Segments int
	Warnings int
	Size     uint64    // bytes below the directory
	Modified time.Time // newest file modification
}

// Summarize collects the directory statistics of a loaded dataset.
func Summarize(e *session.Entry) Summary {
	s := Summary{
		Name:     e.Dataset.Name(),
		Mode:     e.Dataset.Mode(),
		Segments: e.Dataset.Len(),
		Warnings: len(e.Dataset.Warnings()),
	}
	_ = filepath.WalkDir(e.Path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			s.Size += uint64(fi.Size())
			if fi.ModTime().After(s.Modified) {
				s.Modified = fi.ModTime()
			}
		}
		return nil
	})
	return s
}

// LoadResult prints the outcome of one load of a batch.
func (p *Printer) LoadResult(res session.Result) {
	if res.Err != nil {
		fmt.Fprintf(p.w, "%s %s: %v\n", p.danger.Render(iconFailed), res.Path, res.Err)
		return
	}
	p.loaded(Summarize(res.Entry), time.Now())
	for _, w := range res.Entry.Dataset.Warnings() {
		fmt.Fprintf(p.w, "  %s %v\n", p.warning.Render(iconWarning), w)
	}
}

func (p *Printer) loaded(s Summary, now time.Time) {
	line := fmt.Sprintf("%s %s (%s, %d segment(s), %s", p.success.Render(iconDone), s.Name, s.Mode, s.Segments, humanize.Bytes(s.Size))
	if !s.Modified.IsZero() {
		line += ", modified " + humanize.RelTime(s.Modified, now, "ago", "from now")
	}
	line += ")"
	if s.Warnings > 0 {
		line += " " + p.warning.Render(fmt.Sprintf("%d warning(s)", s.Warnings))
	}
	fmt.Fprintln(p.w, line)
}

// Dataset prints the segments of ds and the given parameter keys of each.
func (p *Printer) Dataset(ds *method.Dataset, keys []string) {
	fmt.Fprintf(p.w, "%s  %s\n", p.header.UnsetPadding().Render(ds.Name()), p.muted.UnsetPadding().Render(ds.Path()))
	for _, seg := range ds.Segments() {
		title := fmt.Sprintf("segment %d: %.2f min - %s  %s", seg.Index()+1, seg.Start(), seg.EndDisplay(), seg.Workflow())
		if seg.Calibration() {
			title += " (calibration)"
		}
		fmt.Fprintln(p.w, p.header.UnsetPadding().Render(title))
		t := table.New().
			Border(lipgloss.HiddenBorder()).
			Headers("Category", "Parameter", "Value")
		for _, k := range keys {
			if v, ok := seg.Value(k); ok {
				t.Row(v.Category, v.Label, v.Display)
			}
		}
		fmt.Fprintln(p.w, t.Render())
	}
}

// Comparison renders the matrix as a table. Differing rows are highlighted
// and marked in the last column; absent cells are muted.
func (p *Printer) Comparison(m *compare.Matrix) {
	fmt.Fprintln(p.w, p.ComparisonTable(m))
}

// ComparisonTable returns the rendered comparison table.
func (p *Printer) ComparisonTable(m *compare.Matrix) string {
	headers := []string{"Parameter"}
	for _, c := range m.Columns {
		headers = append(headers, c.Header())
	}
	headers = append(headers, "")

	rows := make([][]string, len(m.Rows))
	for i, r := range m.Rows {
		label := r.Label
		if r.Unit != "" && !strings.Contains(label, "["+r.Unit+"]") {
			label += " [" + r.Unit + "]"
		}
		row := []string{label}
		for _, c := range r.Cells {
			row = append(row, c.Display())
		}
		mark := ""
		if r.Differs {
			mark = iconDiffers
		}
		rows[i] = append(row, mark)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.header
			}
			if row < 0 || row >= len(m.Rows) {
				return p.muted
			}
			r := m.Rows[row]
			if col >= 1 && col <= len(r.Cells) && !r.Cells[col-1].Present {
				return p.muted
			}
			if r.Differs {
				return p.differs
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.Render()
}

// DiffCount prints how many of the compared rows differ.
func (p *Printer) DiffCount(m *compare.Matrix) {
	n := len(m.Differences())
	if n == 0 {
		fmt.Fprintf(p.w, "%s no differences across %d parameter(s)\n", p.success.Render(iconDone), len(m.Rows))
		return
	}
	fmt.Fprintf(p.w, "%s %d of %d parameter(s) differ\n", p.warning.Render(iconDiffers), n, len(m.Rows))
}

// Table prints a plain table with a header row.
func (p *Printer) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(p.w, t.Render())
}
