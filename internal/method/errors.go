package method

import (
	"errors"
	"fmt"
)

// Sentinel errors for method loading and model access.
var (
	// ErrUnsupportedMethod indicates a directory does not match any known method layout.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrCorruptMethod indicates mandatory method structure could not be located.
	ErrCorruptMethod = errors.New("corrupt method")
	// ErrSegmentOutOfRange indicates a segment index outside the dataset.
	ErrSegmentOutOfRange = errors.New("segment index out of range")
	// ErrPartialParse marks a non-fatal skip of rows or fields during a load.
	ErrPartialParse = errors.New("partial parse")
	// ErrGeometryClip marks a window coordinate clipped to the declared bounds.
	ErrGeometryClip = errors.New("geometry clipped")
)

// UnsupportedMethodError is returned when no acquisition mode can be detected
// for a directory. It is fatal to that load only.
type UnsupportedMethodError struct {
	Path   string
	Reason string
}

// Error returns a human-readable string naming the offending path.
func (e *UnsupportedMethodError) Error() string {
	return "unsupported method " + e.Path + ": " + e.Reason
}

// Is reports whether target is ErrUnsupportedMethod.
func (e *UnsupportedMethodError) Is(target error) bool {
	return target == ErrUnsupportedMethod
}

// CorruptMethodError is returned when mandatory structural elements such as
// the method scope or segment ordering keys are missing or inconsistent.
type CorruptMethodError struct {
	Path   string
	Reason string
	Err    error
}

// Error returns a human-readable string including the underlying cause.
func (e *CorruptMethodError) Error() string {
	if e.Err != nil {
		return "corrupt method " + e.Path + ": " + e.Reason + ": " + e.Err.Error()
	}
	return "corrupt method " + e.Path + ": " + e.Reason
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *CorruptMethodError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCorruptMethod.
func (e *CorruptMethodError) Is(target error) bool {
	return target == ErrCorruptMethod
}

// PartialParseWarning records rows or fields skipped while loading. The load
// itself succeeds. Segment is -1 for dataset-level conditions.
type PartialParseWarning struct {
	Segment int
	Source  string // table or field the condition came from
	Row     int    // 1-based row number, 0 when not row-specific
	Reason  string
}

// Error implements the error interface.
func (w *PartialParseWarning) Error() string {
	loc := w.Source
	if w.Row > 0 {
		loc = fmt.Sprintf("%s row %d", w.Source, w.Row)
	}
	if w.Segment >= 0 {
		return fmt.Sprintf("segment %d: %s: skipped: %s", w.Segment+1, loc, w.Reason)
	}
	return fmt.Sprintf("%s: skipped: %s", loc, w.Reason)
}

// Is reports whether target is ErrPartialParse.
func (w *PartialParseWarning) Is(target error) bool {
	return target == ErrPartialParse
}

// GeometryClipWarning records a window coordinate that exceeded the segment's
// declared bounds and was clipped to them.
type GeometryClipWarning struct {
	Segment int
	Cycle   int
	Axis    string // "mobility" or "m/z"
	Value   float64
	Bound   float64
}

// Error implements the error interface.
func (w *GeometryClipWarning) Error() string {
	return fmt.Sprintf("segment %d: cycle %d: %s %g clipped to %g", w.Segment+1, w.Cycle, w.Axis, w.Value, w.Bound)
}

// Is reports whether target is ErrGeometryClip.
func (w *GeometryClipWarning) Is(target error) bool {
	return target == ErrGeometryClip
}
