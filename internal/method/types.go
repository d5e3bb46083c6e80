package method

import (
	"fmt"
	"strings"
)

// Mode is the acquisition strategy of a segment. It is a closed set: every
// detected scan-mode code maps onto exactly one Mode.
type Mode int

const (
	// ModeGeneral covers acquisitions without a window geometry concept (MS, bbCID, MRM, ...).
	ModeGeneral Mode = iota
	// ModePASEF schedules precursors inside a polygon in (m/z, 1/K0) space.
	ModePASEF
	// ModeDiaPASEF scans rectangular isolation windows per cycle.
	ModeDiaPASEF
	// ModeDiagonalPASEF scans slices along a linear mobility/m/z ramp.
	ModeDiagonalPASEF
)

var modeNames = map[Mode]string{
	ModeGeneral:       "general",
	ModePASEF:         "pasef",
	ModeDiaPASEF:      "dia-pasef",
	ModeDiagonalPASEF: "diagonal-pasef",
}

// String returns the stable lower-case name used in configuration tables.
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// HasGeometry reports whether segments in this mode carry window geometry.
func (m Mode) HasGeometry() bool {
	return m == ModePASEF || m == ModeDiaPASEF || m == ModeDiagonalPASEF
}

// ParseMode maps a configuration name onto a Mode.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return ModeGeneral, fmt.Errorf("unknown acquisition mode %q", s)
}

// SemanticType decides how a parameter is compared and formatted.
type SemanticType string

// Semantic types.
const (
	TypeNumeric SemanticType = "numeric"
	TypeEnum    SemanticType = "enum"
	TypeBoolean SemanticType = "boolean"
	TypeText    SemanticType = "text"
)

// ParameterValue is one normalized parameter of a segment. Two values are
// only comparable when they share the same Key.
type ParameterValue struct {
	Key      string
	Label    string
	Category string
	Type     SemanticType
	Unit     string
	Raw      string // source text; list entries joined with ";"
	Display  string

	Numbers []float64 // numeric: one entry for scalars
	Items   []string  // text: list entries
	List    bool      // vector rather than scalar
	Bool    bool      // boolean: decoded truth value
	Text    string    // enum label or text value
	Unknown bool      // code outside the fixed table, or unparsable number
}

// Number returns the scalar value of a numeric parameter.
func (v ParameterValue) Number() (float64, bool) {
	if v.Type != TypeNumeric || v.List || len(v.Numbers) != 1 {
		return 0, false
	}
	return v.Numbers[0], true
}

// Bounds is the declared full scan range of a segment. Axes without a
// declaration are left unbounded.
type Bounds struct {
	MzLow, MzHigh             float64
	HasMz                     bool
	MobilityLow, MobilityHigh float64
	HasMobility               bool
}

// ClampMz limits v to the declared m/z range and reports whether it moved.
func (b Bounds) ClampMz(v float64) (float64, bool) {
	if !b.HasMz {
		return v, false
	}
	return clamp(v, b.MzLow, b.MzHigh)
}

// ClampMobility limits v to the declared mobility range and reports whether it moved.
func (b Bounds) ClampMobility(v float64) (float64, bool) {
	if !b.HasMobility {
		return v, false
	}
	return clamp(v, b.MobilityLow, b.MobilityHigh)
}

func clamp(v, lo, hi float64) (float64, bool) {
	switch {
	case v < lo:
		return lo, true
	case v > hi:
		return hi, true
	default:
		return v, false
	}
}
