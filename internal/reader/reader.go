// Package reader reads vendor method directories into raw, unconverted
// segment records and scheduling tables.
package reader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kronigert/timsCompare/internal/method"
)

// MethodFileName is the acquisition method document inside a method directory.
const MethodFileName = "microtofqimpactemacquisition.method"

// Well-known parameter names the reader itself needs.
const (
	PermScanMode = "Mode_ScanMode"
	PermPolarity = "Mode_IonPolarity"
)

// ScanMode describes the acquisition behind one scan-mode code.
type ScanMode struct {
	Workflow string
	Mode     method.Mode
}

// ScanModes maps raw scan-mode codes onto acquisition modes.
type ScanModes map[string]ScanMode

// Record is one raw segment. Fields hold the method and segment scope after
// inheritance from the previous segment; Instrument holds the instrument
// scope, which method parameters fall back to.
type Record struct {
	Index      int
	Start      float64 // minutes
	End        float64 // minutes; negative means open end
	ScanCode   string
	Mode       method.Mode
	Workflow   string
	Polarity   string
	Fields     map[string]RawValue
	Instrument map[string]RawValue
}

// Lookup returns a field from the segment scope, falling back to the
// instrument scope.
func (r *Record) Lookup(permname string) (RawValue, bool) {
	if v, ok := r.Fields[permname]; ok {
		return v, true
	}
	v, ok := r.Instrument[permname]
	return v, ok
}

// Method is the raw content of one method directory.
type Method struct {
	Dir        string
	MethodFile string
	Sources    []string
	Records    []Record
	Tables     map[string]*Table
	Warnings   []error
}

// Table returns the scheduling table with the given name, or nil.
func (m *Method) Table(name string) *Table {
	return m.Tables[name]
}

// Modes reports which acquisition modes occur in the records.
func (m *Method) Modes() map[method.Mode]bool {
	out := make(map[method.Mode]bool)
	for _, r := range m.Records {
		out[r.Mode] = true
	}
	return out
}

// Detection is the outcome of mode detection for a directory.
type Detection struct {
	MethodFile string
	ScanCode   string
	Mode       method.Mode
	Workflow   string
}

// Option configures a read.
type Option func(*options)

type options struct {
	scanModes     ScanModes
	polarityNames map[string]string
	ionSource     string
}

// WithScanModes sets the scan-mode code table used for detection.
func WithScanModes(m ScanModes) Option {
	return func(o *options) { o.scanModes = m }
}

// WithPolarityNames sets the mapping from polarity codes to the names used
// by polarity-dependent blocks.
func WithPolarityNames(m map[string]string) Option {
	return func(o *options) { o.polarityNames = m }
}

// WithIonSource selects source-dependent blocks for the given ion source.
func WithIonSource(source string) Option {
	return func(o *options) { o.ionSource = source }
}

func newOptions(opts []Option) options {
	o := options{
		polarityNames: map[string]string{"0": "positive", "1": "negative"},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Detect locates the method document in dir and resolves the acquisition
// mode of its first scope.
func Detect(dir string, opts ...Option) (Detection, error) {
	o := newOptions(opts)
	doc, err := openMethod(dir)
	if err != nil {
		return Detection{}, err
	}
	recs, err := doc.records(o)
	if err != nil {
		return Detection{}, err
	}
	first := recs[0]
	return Detection{
		MethodFile: doc.file,
		ScanCode:   first.ScanCode,
		Mode:       first.Mode,
		Workflow:   first.Workflow,
	}, nil
}

// Read produces the ordered raw segment records of dir together with the
// scheduling tables of the modes that occur in it. The directory is only
// ever read.
func Read(ctx context.Context, dir string, opts ...Option) (*Method, error) {
	o := newOptions(opts)
	doc, err := openMethod(dir)
	if err != nil {
		return nil, err
	}
	recs, err := doc.records(o)
	if err != nil {
		return nil, err
	}

	m := &Method{
		Dir:        dir,
		MethodFile: doc.file,
		Sources:    sourceNames(doc.method, doc.instrument),
		Records:    recs,
		Tables:     make(map[string]*Table),
	}
	for mode := range m.Modes() {
		for _, spec := range tablesFor(mode) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			t, err := readTable(ctx, dir, spec)
			if err != nil {
				m.Warnings = append(m.Warnings, &method.PartialParseWarning{
					Segment: -1,
					Source:  spec.File,
					Reason:  err.Error(),
				})
				continue
			}
			if t != nil {
				m.Tables[spec.Table] = t
			}
		}
	}
	return m, nil
}

type document struct {
	dir        string
	file       string
	method     *node
	instrument *node
	segments   []*node
}

func openMethod(dir string) (*document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reader: %w", err)
	}
	if !info.IsDir() {
		return nil, &method.UnsupportedMethodError{Path: dir, Reason: "not a directory"}
	}
	file, err := findFile(dir, MethodFileName)
	if err != nil {
		return nil, fmt.Errorf("reader: searching %s: %w", dir, err)
	}
	if file == "" {
		return nil, &method.UnsupportedMethodError{Path: dir, Reason: "no " + MethodFileName + " found"}
	}

	root, err := decodeMethodFile(file)
	if err != nil {
		return nil, &method.CorruptMethodError{Path: file, Reason: "unreadable method document", Err: err}
	}
	doc := &document{
		dir:        dir,
		file:       file,
		method:     root.child("method"),
		instrument: root.child("instrument"),
	}
	if doc.method == nil {
		return nil, &method.CorruptMethodError{Path: file, Reason: "missing <method> element"}
	}
	doc.segments = doc.method.child("qtofimpactemacq").child("timetable").children("segment")
	return doc, nil
}

// bound is the start and end of one segment.
type bound struct {
	start, end float64
}

// segmentBounds validates the timetable ordering keys. A segment without an
// endtime runs to the end of the acquisition and must be last.
func (d *document) segmentBounds() ([]bound, error) {
	var out []bound
	last := 0.0
	for i, seg := range d.segments {
		raw, ok := seg.attr("endtime")
		end := -1.0
		if ok {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, &method.CorruptMethodError{
					Path:   d.file,
					Reason: fmt.Sprintf("segment %d: endtime %q is not numeric", i+1, raw),
				}
			}
			end = v
		}
		if end < 0 && i != len(d.segments)-1 {
			return nil, &method.CorruptMethodError{
				Path:   d.file,
				Reason: fmt.Sprintf("segment %d: open-ended segment is not the last one", i+1),
			}
		}
		if end >= 0 && end < last {
			return nil, &method.CorruptMethodError{
				Path:   d.file,
				Reason: fmt.Sprintf("segment %d: endtime %g precedes previous endtime %g", i+1, end, last),
			}
		}
		out = append(out, bound{start: last, end: end})
		if end >= 0 {
			last = end
		}
	}
	return out, nil
}

func (d *document) polarityOf(s scope, inherited map[string]RawValue, o options) string {
	v, ok := s.findFirst(PermPolarity)
	if !ok {
		v, ok = inherited[PermPolarity]
	}
	code := "0"
	if ok && !v.IsList {
		code = v.Text
	}
	return o.polarityNames[code]
}

// records resolves every segment scope. Each segment starts from the
// previous segment's fields; the first starts from the method scope.
func (d *document) records(o options) ([]Record, error) {
	bounds, err := d.segmentBounds()
	if err != nil {
		return nil, err
	}

	methodScope := scope{root: d.method, skip: "timetable"}
	instScope := scope{root: d.instrument}
	polarity := d.polarityOf(methodScope, nil, o)
	base := methodScope.resolve(polarity, o.ionSource)

	if len(d.segments) == 0 {
		rec := Record{
			Start:      0,
			End:        -1,
			Polarity:   polarity,
			Fields:     base,
			Instrument: instScope.resolve(polarity, o.ionSource),
		}
		if err := d.classify(&rec, o); err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}

	out := make([]Record, 0, len(d.segments))
	prev := base
	for i, seg := range d.segments {
		s := scope{root: seg}
		pol := d.polarityOf(s, prev, o)
		fields := make(map[string]RawValue, len(prev))
		for k, v := range prev {
			fields[k] = v
		}
		for k, v := range s.resolve(pol, o.ionSource) {
			fields[k] = v
		}
		rec := Record{
			Index:      i,
			Start:      bounds[i].start,
			End:        bounds[i].end,
			Polarity:   pol,
			Fields:     fields,
			Instrument: instScope.resolve(pol, o.ionSource),
		}
		if err := d.classify(&rec, o); err != nil {
			return nil, err
		}
		out = append(out, rec)
		prev = fields
	}
	return out, nil
}

func (d *document) classify(rec *Record, o options) error {
	v, ok := rec.Lookup(PermScanMode)
	if !ok || v.IsList || v.Text == "" {
		return &method.UnsupportedMethodError{
			Path:   d.dir,
			Reason: fmt.Sprintf("segment %d declares no scan mode", rec.Index+1),
		}
	}
	sm, ok := o.scanModes[v.Text]
	if !ok {
		return &method.UnsupportedMethodError{
			Path:   d.dir,
			Reason: fmt.Sprintf("unsupported scan mode %q in segment %d starting at %.2f min", v.Text, rec.Index+1, rec.Start),
		}
	}
	rec.ScanCode = v.Text
	rec.Mode = sm.Mode
	rec.Workflow = sm.Workflow
	return nil
}

// findFile walks dir and returns the first file whose name matches name
// case-insensitively, or "" if there is none.
func findFile(dir, name string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(d.Name(), name) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}
