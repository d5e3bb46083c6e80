package normalize

import (
	"fmt"
	"strings"

	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/reader"
)

// Variable is the text value of parameters that the instrument adjusts at
// run time, such as accumulation time under ion charge control.
const Variable = "variable"

// deriver adds computed parameters for one segment.
type deriver struct {
	t    *modeTable
	v    *Values
	rec  *reader.Record
	geo  *method.Geometry
	warn []error
}

// Derive adds the computed parameters of a segment and applies the
// conditional overrides. geo is the segment's reconstructed geometry and
// may be nil.
func (c *Catalogue) Derive(v *Values, rec *reader.Record, geo *method.Geometry) []error {
	d := &deriver{t: c.modes[rec.Mode], v: v, rec: rec, geo: geo}

	d.text("scan_mode", rec.Workflow)
	d.number("segment_start", rec.Start)
	if rec.End < 0 {
		d.text("segment_end", "Open End")
	} else {
		d.number("segment_end", rec.End)
	}
	d.collisionEnergyRamping()
	d.msmsStepping()

	switch rec.Mode {
	case method.ModePASEF:
		d.pasef()
	case method.ModeDiaPASEF:
		d.diaPASEF()
	case method.ModeDiagonalPASEF:
		d.diagonalPASEF()
	}

	d.overrides()
	return d.warn
}

func (d *deriver) def(key string) *Definition {
	return d.t.derived[key]
}

func (d *deriver) base(key string) (method.ParameterValue, bool) {
	def := d.def(key)
	if def == nil {
		return method.ParameterValue{}, false
	}
	return method.ParameterValue{
		Key:      def.Key,
		Label:    def.Label,
		Category: def.Category,
		Type:     def.Type,
		Unit:     def.Unit,
	}, true
}

func (d *deriver) number(key string, x float64) {
	p, ok := d.base(key)
	if !ok {
		return
	}
	p.Type = method.TypeNumeric
	p.Numbers = []float64{x}
	p.Raw = fmt.Sprint(x)
	p.Display = d.def(key).Format(p)
	d.v.Set(p)
}

func (d *deriver) text(key, s string) {
	p, ok := d.base(key)
	if !ok {
		return
	}
	p.Type = method.TypeText
	p.Unit = ""
	p.Text = s
	p.Raw = s
	p.Display = s
	d.v.Set(p)
}

func (d *deriver) items(key string, items []string) {
	p, ok := d.base(key)
	if !ok || len(items) == 0 {
		return
	}
	p.Type = method.TypeText
	p.List = true
	p.Items = items
	p.Raw = strings.Join(items, "; ")
	p.Text = p.Raw
	p.Display = fmt.Sprintf("List (%d items)", len(items))
	d.v.Set(p)
}

// num returns the scalar value of a normalized numeric parameter.
func (d *deriver) num(key string) (float64, bool) {
	p, ok := d.v.Get(key)
	if !ok {
		return 0, false
	}
	return p.Number()
}

func (d *deriver) numOrZero(key string) float64 {
	x, _ := d.num(key)
	return x
}

func (d *deriver) vector(key string) []float64 {
	p, ok := d.v.Get(key)
	if !ok || p.Unknown || p.Type != method.TypeNumeric {
		return nil
	}
	return p.Numbers
}

func (d *deriver) flag(key string) bool {
	p, ok := d.v.Get(key)
	return ok && !p.Unknown && p.Type == method.TypeBoolean && p.Bool
}

// cycleTime sets the cycle time for scans scans of ramp plus quench time.
func (d *deriver) cycleTime(scans int) {
	ramp, ok := d.num("ramp_time")
	if !ok {
		return
	}
	quench := d.numOrZero("quench_time")
	d.number("cycle_time", float64(scans)*(ramp+quench)/1000)
}

func (d *deriver) formatWith(key string, x float64) string {
	p := method.ParameterValue{Type: method.TypeNumeric, Numbers: []float64{x}}
	if def, ok := d.sourceDef(key); ok {
		return def.Format(p)
	}
	return fmt.Sprint(x)
}

func (d *deriver) sourceDef(key string) (*Definition, bool) {
	for _, def := range d.t.ordered {
		if def.Key == key {
			return def, true
		}
	}
	return nil, false
}

func (d *deriver) collisionEnergyRamping() {
	if !d.flag("ce_ramping_advanced") {
		ce := d.vector("ce_ramping_energy")
		mob := d.vector("ce_ramping_mobility")
		if len(ce) >= 2 && len(mob) >= 2 {
			d.text("ce_ramping_start", d.formatWith("ce_ramping_energy", ce[0])+" @ "+d.formatWith("ce_ramping_mobility", mob[0]))
			d.text("ce_ramping_end", d.formatWith("ce_ramping_energy", ce[1])+" @ "+d.formatWith("ce_ramping_mobility", mob[1]))
		}
		return
	}

	mob := d.vector("advanced_ce_mobility")
	ce := d.vector("advanced_ce_energy")
	if len(mob) == 0 || len(ce) == 0 {
		return
	}
	types := d.vector("advanced_ce_entry_type")
	if types == nil {
		types = make([]float64, len(mob))
	}
	if len(mob) != len(ce) || len(ce) != len(types) {
		d.warn = append(d.warn, &method.PartialParseWarning{
			Segment: d.rec.Index,
			Source:  "advanced CE ramping",
			Reason:  fmt.Sprintf("list lengths differ (%d mobilities, %d energies, %d types)", len(mob), len(ce), len(types)),
		})
		return
	}
	out := make([]string, len(mob))
	for i := range mob {
		kind := fmt.Sprint(int(types[i]))
		switch int(types[i]) {
		case 0:
			kind = "base"
		case 1:
			kind = "fixed"
		}
		out[i] = fmt.Sprintf("%s %.2f eV @ %.2f", kind, ce[i], mob[i])
	}
	d.items("advanced_ce_ramping", out)
}

func (d *deriver) msmsStepping() {
	if !d.flag("msms_stepping_active") {
		return
	}
	var out []string
	if ce := d.vector("ce_ramping_energy"); len(ce) == 2 {
		out = append(out, fmt.Sprintf("CE (Scan #1): %.1f - %.1f eV", ce[0], ce[1]))
	}
	if ce := d.vector("ce_ramping_energy_step2"); len(ce) == 2 {
		out = append(out, fmt.Sprintf("CE (Scan #2): %.1f - %.1f eV", ce[0], ce[1]))
	}
	steps := []struct{ key, label string }{
		{"collision_rf_steps", "Collision RF"},
		{"transfer_time_steps", "Transfer Time"},
		{"pre_pulse_storage_steps", "Pre-Pulse Storage"},
	}
	for _, s := range steps {
		unit := ""
		if def, ok := d.sourceDef(s.key); ok && def.Unit != "" {
			unit = " " + def.Unit
		}
		for i, x := range d.vector(s.key) {
			out = append(out, fmt.Sprintf("%s (Scan #%d): %.1f%s", s.label, i+1, x, unit))
		}
	}
	d.items("msms_stepping", out)
}

func (d *deriver) pasef() {
	ramps, _ := d.num("pasef_ramps")
	d.cycleTime(int(ramps) + 1)
}

func (d *deriver) diaPASEF() {
	if d.geo == nil {
		return
	}
	d.number("ms1_scans", float64(d.geo.MS1Scans))
	if len(d.geo.Windows) == 0 {
		return
	}

	cycles := d.geo.Cycles()
	ramps := cycles[len(cycles)-1]
	steps := 0
	for _, c := range cycles {
		if n := len(d.geo.CycleWindows(c)); n > steps {
			steps = n
		}
	}
	d.number("ramps", float64(ramps))
	d.number("steps", float64(steps))

	ws := d.geo.Windows
	width := ws[0].MzHigh - ws[0].MzLow
	static := true
	mzLo, mzHi := ws[0].MzLow, ws[0].MzHigh
	imLo, imHi := ws[0].MobilityLow, ws[0].MobilityHigh
	for _, w := range ws[1:] {
		if !sameWidth(w.MzHigh-w.MzLow, width) {
			static = false
		}
		mzLo, mzHi = min(mzLo, w.MzLow), max(mzHi, w.MzHigh)
		imLo, imHi = min(imLo, w.MobilityLow), max(imHi, w.MobilityHigh)
	}
	if static {
		d.text("mz_width", fmt.Sprintf("static (%.1f)", width))
	} else {
		d.text("mz_width", Variable)
	}
	d.text("scan_area_mz", fmt.Sprintf("%.2f m/z - %.2f m/z", mzLo, mzHi))
	d.text("scan_area_im", fmt.Sprintf("%.4f - %.4f", imLo, imHi))
	d.cycleTime(ramps + d.geo.MS1Scans)
}

func sameWidth(a, b float64) bool {
	diff := a - b
	return diff < 1e-9 && diff > -1e-9
}

func (d *deriver) diagonalPASEF() {
	if d.geo == nil || d.geo.Ramp == nil {
		return
	}
	r := d.geo.Ramp
	d.number("ms1_scans", float64(d.geo.MS1Scans))
	d.number("ramps", float64(r.Slices))
	d.text("mz_width", fmt.Sprintf("%.1f", r.IsolationWidth))

	if lo, ok := d.num("mobility_start"); ok {
		if hi, ok := d.num("mobility_end"); ok {
			d.text("scan_area_im", fmt.Sprintf("%.2f - %.2f", lo, hi))
		}
	}
	if n := len(d.geo.Windows); n > 0 {
		first, last := d.geo.Windows[0], d.geo.Windows[n-1]
		if first.Diagonal != nil && last.Diagonal != nil {
			d.text("scan_area_mz", fmt.Sprintf("%.2f m/z - %.2f m/z",
				first.Diagonal.MzStartLow, last.Diagonal.MzEndHigh))
		}
	}
	d.cycleTime(d.geo.MS1Scans + r.Slices)
}

// overrides applies the duty-cycle lock and ion charge control rules.
func (d *deriver) overrides() {
	if d.flag("duty_cycle_lock") {
		if ramp, ok := d.v.Get("ramp_time"); ok {
			if acc, ok := d.v.Get("accumulation_time"); ok || d.hasSource("accumulation_time") {
				if !ok {
					acc = d.fromSource("accumulation_time")
				}
				acc.Type = ramp.Type
				acc.Numbers = append([]float64(nil), ramp.Numbers...)
				acc.List = ramp.List
				acc.Unknown = ramp.Unknown
				acc.Text = ramp.Text
				acc.Raw = ramp.Raw
				if def, ok := d.sourceDef("accumulation_time"); ok {
					acc.Display = def.Format(acc)
				}
				d.v.Set(acc)
			}
		}
	}

	icc, ok := d.v.Get("icc_mode")
	if !ok || icc.Raw == "" || icc.Raw == "0" {
		return
	}
	for _, key := range []string{"accumulation_time", "duty_cycle_lock", "cycle_time"} {
		p, ok := d.v.Get(key)
		if !ok {
			continue
		}
		p.Type = method.TypeText
		p.Numbers = nil
		p.List = false
		p.Bool = false
		p.Unknown = false
		p.Text = Variable
		p.Display = Variable
		d.v.Set(p)
	}
}

func (d *deriver) hasSource(key string) bool {
	_, ok := d.sourceDef(key)
	return ok
}

func (d *deriver) fromSource(key string) method.ParameterValue {
	def, _ := d.sourceDef(key)
	return method.ParameterValue{
		Key:      def.Key,
		Label:    def.Label,
		Category: def.Category,
		Type:     def.Type,
		Unit:     def.Unit,
	}
}
