package method

import (
	"fmt"
	"path/filepath"
)

// SegmentSpec describes one segment handed to NewDataset. Params order is
// preserved as the segment's key order.
type SegmentSpec struct {
	Start       float64 // minutes
	End         float64 // minutes; negative means open end
	Mode        Mode
	Workflow    string
	Params      []ParameterValue
	Geometry    *Geometry
	Bounds      Bounds
	Calibration bool
}

// Segment is one time-bounded configuration block of a Dataset.
// It is immutable once its Dataset is built.
type Segment struct {
	index       int
	start, end  float64
	mode        Mode
	workflow    string
	keys        []string
	params      map[string]ParameterValue
	geometry    *Geometry
	bounds      Bounds
	calibration bool
}

// Index returns the 0-based position of the segment in its dataset.
func (s *Segment) Index() int { return s.index }

// Start returns the segment start in minutes.
func (s *Segment) Start() float64 { return s.start }

// End returns the segment end in minutes, or -1 for an open end.
func (s *Segment) End() float64 { return s.end }

// OpenEnd reports whether the segment runs to the end of the acquisition.
func (s *Segment) OpenEnd() bool { return s.end < 0 }

// Mode returns the acquisition mode of the segment.
func (s *Segment) Mode() Mode { return s.mode }

// Workflow returns the workflow name recorded for the segment.
func (s *Segment) Workflow() string { return s.workflow }

// Bounds returns the declared scan range the geometry is clipped to.
func (s *Segment) Bounds() Bounds { return s.bounds }

// Calibration reports whether the segment is a calibration segment.
func (s *Segment) Calibration() bool { return s.calibration }

// Value returns the parameter stored under key.
func (s *Segment) Value(key string) (ParameterValue, bool) {
	v, ok := s.params[key]
	return v, ok
}

// Keys returns the segment's parameter keys in normalization order.
func (s *Segment) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Params returns the segment's parameters in key order.
func (s *Segment) Params() []ParameterValue {
	out := make([]ParameterValue, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.params[k])
	}
	return out
}

// Geometry returns a copy of the segment's window geometry, or nil when the
// segment's mode has no window concept or no rows could be reconstructed.
func (s *Segment) Geometry() *Geometry {
	return s.geometry.Clone()
}

// HasGeometry reports whether window geometry is defined for the segment.
func (s *Segment) HasGeometry() bool {
	return s.geometry != nil
}

// EndDisplay renders the end time the way reports show it.
func (s *Segment) EndDisplay() string {
	if s.OpenEnd() {
		return "end"
	}
	return fmt.Sprintf("%.2f min", s.end)
}

// Dataset is one loaded method directory. It is built atomically by
// NewDataset and never mutated afterwards; refreshing means re-parsing.
type Dataset struct {
	path     string
	name     string
	segments []*Segment
	keys     []string
	warnings []error
}

// NewDataset assembles segments into a Dataset. Segment indices are assigned
// contiguously in the given order. At least one segment is required.
func NewDataset(path string, specs []SegmentSpec, warnings []error) (*Dataset, error) {
	if len(specs) == 0 {
		return nil, &CorruptMethodError{Path: path, Reason: "method defines no segments"}
	}

	d := &Dataset{
		path:     path,
		name:     filepath.Base(path),
		warnings: append([]error(nil), warnings...),
	}
	seen := make(map[string]bool)
	for i, spec := range specs {
		seg := &Segment{
			index:       i,
			start:       spec.Start,
			end:         spec.End,
			mode:        spec.Mode,
			workflow:    spec.Workflow,
			params:      make(map[string]ParameterValue, len(spec.Params)),
			geometry:    spec.Geometry.Clone(),
			bounds:      spec.Bounds,
			calibration: spec.Calibration,
		}
		for _, p := range spec.Params {
			if _, dup := seg.params[p.Key]; !dup {
				seg.keys = append(seg.keys, p.Key)
			}
			seg.params[p.Key] = p
			if !seen[p.Key] {
				seen[p.Key] = true
				d.keys = append(d.keys, p.Key)
			}
		}
		d.segments = append(d.segments, seg)
	}
	return d, nil
}

// Path returns the .d directory the dataset was loaded from.
func (d *Dataset) Path() string { return d.path }

// Name returns the base name of Path.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of segments.
func (d *Dataset) Len() int { return len(d.segments) }

// Mode returns the acquisition mode of the first segment.
func (d *Dataset) Mode() Mode { return d.segments[0].mode }

// Segment returns the segment at index i.
func (d *Dataset) Segment(i int) (*Segment, error) {
	if i < 0 || i >= len(d.segments) {
		return nil, fmt.Errorf("%w: %d (dataset %s has %d)", ErrSegmentOutOfRange, i, d.name, len(d.segments))
	}
	return d.segments[i], nil
}

// Segments returns the segments in acquisition order.
func (d *Dataset) Segments() []*Segment {
	return append([]*Segment(nil), d.segments...)
}

// Value returns the parameter key of segment i.
func (d *Dataset) Value(i int, key string) (ParameterValue, bool) {
	if i < 0 || i >= len(d.segments) {
		return ParameterValue{}, false
	}
	return d.segments[i].Value(key)
}

// Keys returns the union of parameter keys across all segments in
// first-seen order.
func (d *Dataset) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Geometry returns a copy of segment i's geometry, or nil if none is defined.
func (d *Dataset) Geometry(i int) *Geometry {
	if i < 0 || i >= len(d.segments) {
		return nil
	}
	return d.segments[i].Geometry()
}

// Warnings returns the non-fatal conditions recorded during the load.
func (d *Dataset) Warnings() []error {
	return append([]error(nil), d.warnings...)
}

// Workflows returns the distinct workflow names across segments in order.
func (d *Dataset) Workflows() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range d.segments {
		if s.workflow != "" && !seen[s.workflow] {
			seen[s.workflow] = true
			out = append(out, s.workflow)
		}
	}
	return out
}
