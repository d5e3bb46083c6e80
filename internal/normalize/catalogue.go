// Package normalize maps raw method fields onto stable, typed parameters.
package normalize

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

//go:embed definitions.toml
var definitionsTOML []byte

// Definition describes one normalized parameter.
type Definition struct {
	Key         string              `toml:"key"`
	Source      string              `toml:"source"`
	Label       string              `toml:"label"`
	Category    string              `toml:"category"`
	Type        method.SemanticType `toml:"type"`
	Unit        string              `toml:"unit"`
	Scale       float64             `toml:"scale"`
	Digits      *int                `toml:"digits"`
	Values      map[string]string   `toml:"values"`
	TrueValues  []string            `toml:"true_values"`
	FalseValues []string            `toml:"false_values"`
	IndexBy     string              `toml:"index_by"`
	Location    string              `toml:"location"`
	Modes       []string            `toml:"modes"`
	Derived     bool                `toml:"derived"`
	Display     string              `toml:"display"`
}

type scanModeDef struct {
	Workflow string `toml:"workflow"`
	Mode     string `toml:"mode"`
}

type booleanDef struct {
	TrueValues  []string `toml:"true_values"`
	FalseValues []string `toml:"false_values"`
}

type definitionsFile struct {
	Polarity   map[string]string      `toml:"polarity"`
	Boolean    booleanDef             `toml:"boolean"`
	ScanModes  map[string]scanModeDef `toml:"scan_modes"`
	Tolerances map[string]float64     `toml:"tolerances"`
	Views      map[string][]string    `toml:"views"`
	Parameters []Definition           `toml:"parameter"`
}

// modeTable is the immutable lookup for one acquisition mode.
type modeTable struct {
	bySource map[string]*Definition
	ordered  []*Definition // source-backed definitions in catalogue order
	derived  map[string]*Definition
}

// Catalogue holds the parameter definitions and the tables derived from
// them. It is never mutated after Parse returns.
type Catalogue struct {
	defs       []*Definition
	byKey      map[string]*Definition
	order      map[string]int
	modes      map[method.Mode]*modeTable
	scanModes  reader.ScanModes
	polarity   map[string]string
	tolerances map[string]float64
	views      map[string][]string
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalogue
)

// Default returns the catalogue embedded in the binary. It is parsed once.
func Default() *Catalogue {
	defaultOnce.Do(func() {
		c, err := Parse(definitionsTOML)
		if err != nil {
			panic(fmt.Sprintf("normalize: embedded definitions: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Parse builds a catalogue from TOML definitions.
func Parse(data []byte) (*Catalogue, error) {
	var f definitionsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}

	c := &Catalogue{
		byKey:      make(map[string]*Definition, len(f.Parameters)),
		order:      make(map[string]int, len(f.Parameters)),
		modes:      make(map[method.Mode]*modeTable),
		scanModes:  make(reader.ScanModes, len(f.ScanModes)),
		polarity:   f.Polarity,
		tolerances: f.Tolerances,
		views:      f.Views,
	}

	for code, sm := range f.ScanModes {
		m, err := method.ParseMode(sm.Mode)
		if err != nil {
			return nil, fmt.Errorf("scan mode %s: %w", code, err)
		}
		c.scanModes[code] = reader.ScanMode{Workflow: sm.Workflow, Mode: m}
	}

	for i := range f.Parameters {
		d := f.Parameters[i]
		if err := validateDefinition(&d); err != nil {
			return nil, err
		}
		if _, dup := c.byKey[d.Key]; dup {
			return nil, fmt.Errorf("parameter %q defined twice", d.Key)
		}
		if d.Type == method.TypeBoolean {
			if len(d.TrueValues) == 0 {
				d.TrueValues = f.Boolean.TrueValues
			}
			if len(d.FalseValues) == 0 {
				d.FalseValues = f.Boolean.FalseValues
			}
		}
		if d.Scale == 0 {
			d.Scale = 1
		}
		c.byKey[d.Key] = &d
		c.order[d.Key] = i
		c.defs = append(c.defs, &d)
	}

	for _, m := range []method.Mode{method.ModeGeneral, method.ModePASEF, method.ModeDiaPASEF, method.ModeDiagonalPASEF} {
		t := &modeTable{
			bySource: make(map[string]*Definition),
			derived:  make(map[string]*Definition),
		}
		for _, d := range c.defs {
			if !appliesTo(d, m) {
				continue
			}
			if d.Derived {
				t.derived[d.Key] = d
				continue
			}
			if prev, dup := t.bySource[d.Source]; dup {
				return nil, fmt.Errorf("source %q maps to both %q and %q in mode %s", d.Source, prev.Key, d.Key, m)
			}
			t.bySource[d.Source] = d
			t.ordered = append(t.ordered, d)
		}
		c.modes[m] = t
	}
	return c, nil
}

func validateDefinition(d *Definition) error {
	if d.Key == "" {
		return fmt.Errorf("parameter without key (label %q)", d.Label)
	}
	if !d.Derived && d.Source == "" {
		return fmt.Errorf("parameter %q has no source", d.Key)
	}
	switch d.Type {
	case method.TypeNumeric, method.TypeEnum, method.TypeBoolean, method.TypeText:
	default:
		return fmt.Errorf("parameter %q has unknown type %q", d.Key, d.Type)
	}
	if d.Type == method.TypeEnum && len(d.Values) == 0 {
		return fmt.Errorf("enum parameter %q has no values", d.Key)
	}
	for _, m := range d.Modes {
		if _, err := method.ParseMode(m); err != nil {
			return fmt.Errorf("parameter %q: %w", d.Key, err)
		}
	}
	if d.Label == "" {
		d.Label = d.Key
	}
	if d.Category == "" {
		d.Category = "General"
	}
	return nil
}

func appliesTo(d *Definition, m method.Mode) bool {
	if len(d.Modes) == 0 {
		return true
	}
	for _, name := range d.Modes {
		if name == m.String() {
			return true
		}
	}
	return false
}

// ScanModes returns the scan-mode code table for the reader.
func (c *Catalogue) ScanModes() reader.ScanModes {
	out := make(reader.ScanModes, len(c.scanModes))
	for k, v := range c.scanModes {
		out[k] = v
	}
	return out
}

// PolarityNames returns the polarity code to name table for the reader.
func (c *Catalogue) PolarityNames() map[string]string {
	out := make(map[string]string, len(c.polarity))
	for k, v := range c.polarity {
		out[k] = v
	}
	return out
}

// Definition returns the definition of key.
func (c *Catalogue) Definition(key string) (Definition, bool) {
	d, ok := c.byKey[key]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// Keys returns every catalogue key in definition order.
func (c *Catalogue) Keys() []string {
	out := make([]string, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.Key
	}
	return out
}

// Tolerance returns the absolute comparison tolerance for unit.
func (c *Catalogue) Tolerance(unit string) float64 {
	if v, ok := c.tolerances[unit]; ok {
		return v
	}
	return c.tolerances["default"]
}

// SortKeys orders keys by catalogue position. Unknown keys sort last by name.
func (c *Catalogue) SortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		oi, iok := c.order[keys[i]]
		oj, jok := c.order[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
}

func (d *Definition) digits() int {
	if d.Digits == nil {
		return -1
	}
	return *d.Digits
}

func (d *Definition) formatNumber(v float64) string {
	if n := d.digits(); n >= 0 {
		return strconv.FormatFloat(v, 'f', n, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
