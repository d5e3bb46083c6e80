package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

// Values is an ordered set of normalized parameters for one segment.
type Values struct {
	keys []string
	m    map[string]method.ParameterValue
}

func newValues() *Values {
	return &Values{m: make(map[string]method.ParameterValue)}
}

// Get returns the value stored under key.
func (v *Values) Get(key string) (method.ParameterValue, bool) {
	p, ok := v.m[key]
	return p, ok
}

// Set stores p, keeping the original position when the key already exists.
func (v *Values) Set(p method.ParameterValue) {
	if _, ok := v.m[p.Key]; !ok {
		v.keys = append(v.keys, p.Key)
	}
	v.m[p.Key] = p
}

// Map returns the values keyed by parameter key.
func (v *Values) Map() map[string]method.ParameterValue {
	out := make(map[string]method.ParameterValue, len(v.m))
	for k, p := range v.m {
		out[k] = p
	}
	return out
}

// List returns the values in insertion order.
func (v *Values) List() []method.ParameterValue {
	out := make([]method.ParameterValue, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, v.m[k])
	}
	return out
}

// Normalize converts the recognized fields of rec into typed parameters.
// Fields without a definition for the record's mode are dropped. Values that
// cannot be decoded are kept as unknown and reported as warnings.
func (c *Catalogue) Normalize(rec *reader.Record) (*Values, []error) {
	t := c.modes[rec.Mode]
	out := newValues()
	var warns []error

	for _, d := range t.ordered {
		raw, ok := lookup(rec, d)
		if !ok {
			continue
		}
		if d.IndexBy != "" && raw.IsList {
			var err error
			raw, err = selectIndexed(rec, d, raw)
			if err != nil {
				warns = append(warns, &method.PartialParseWarning{Segment: rec.Index, Source: d.Source, Reason: err.Error()})
			}
		}
		p, err := d.convert(raw)
		if err != nil {
			warns = append(warns, &method.PartialParseWarning{Segment: rec.Index, Source: d.Source, Reason: err.Error()})
		}
		out.Set(p)
	}
	return out, warns
}

func lookup(rec *reader.Record, d *Definition) (reader.RawValue, bool) {
	if d.Location == "instrument" {
		v, ok := rec.Instrument[d.Source]
		return v, ok
	}
	return rec.Lookup(d.Source)
}

// selectIndexed picks the list entry addressed by the driver field. The
// list is kept whole when the driver is missing or out of range.
func selectIndexed(rec *reader.Record, d *Definition, raw reader.RawValue) (reader.RawValue, error) {
	drv, ok := rec.Lookup(d.IndexBy)
	if !ok || drv.IsList {
		return raw, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(drv.Text))
	if err != nil || i < 0 || i >= len(raw.List) {
		return raw, fmt.Errorf("cannot select entry %q of %d via %s", drv.Text, len(raw.List), d.IndexBy)
	}
	return reader.RawValue{Text: raw.List[i]}, nil
}

// convert decodes raw according to the definition.
func (d *Definition) convert(raw reader.RawValue) (method.ParameterValue, error) {
	p := method.ParameterValue{
		Key:      d.Key,
		Label:    d.Label,
		Category: d.Category,
		Type:     d.Type,
		Unit:     d.Unit,
		Raw:      raw.String(),
	}

	switch d.Type {
	case method.TypeNumeric:
		entries := []string{raw.Text}
		if raw.IsList {
			entries = raw.List
			p.List = true
		}
		nums := make([]float64, 0, len(entries))
		for _, e := range entries {
			f, err := strconv.ParseFloat(strings.TrimSpace(e), 64)
			if err != nil {
				p.Unknown = true
				p.Text = p.Raw
				p.Display = "raw:" + p.Raw
				return p, fmt.Errorf("%s: %q is not numeric", d.Key, e)
			}
			nums = append(nums, f*d.Scale)
		}
		p.Numbers = nums
	case method.TypeEnum:
		label, ok := d.Values[raw.Text]
		if raw.IsList || !ok {
			p.Unknown = true
			p.Text = p.Raw
		} else {
			p.Text = label
		}
	case method.TypeBoolean:
		switch {
		case raw.IsList:
			p.Unknown = true
		case contains(d.TrueValues, raw.Text):
			p.Bool = true
		case contains(d.FalseValues, raw.Text):
		default:
			p.Unknown = true
		}
		if p.Unknown {
			p.Text = p.Raw
		}
	case method.TypeText:
		if raw.IsList {
			p.List = true
			p.Items = append([]string(nil), raw.List...)
		}
		p.Text = raw.String()
	}
	p.Display = d.Format(p)
	return p, nil
}

// Format renders p for display.
func (d *Definition) Format(p method.ParameterValue) string {
	if p.Unknown {
		return "raw:" + p.Raw
	}
	var s string
	switch p.Type {
	case method.TypeNumeric:
		if p.List {
			if d.Display == "polygon" {
				return fmt.Sprintf("Polygon (%d points)", len(p.Numbers))
			}
			return fmt.Sprintf("List (%d items)", len(p.Numbers))
		}
		if len(p.Numbers) == 0 {
			return "N/A"
		}
		s = d.formatNumber(p.Numbers[0])
	case method.TypeEnum:
		return p.Text
	case method.TypeBoolean:
		if p.Bool {
			return "On"
		}
		return "Off"
	default:
		if p.List {
			return fmt.Sprintf("List (%d items)", len(p.Items))
		}
		s = p.Text
	}
	if s == "" {
		return "N/A"
	}
	if d.Unit != "" && p.Type == method.TypeNumeric {
		return s + " " + d.Unit
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
