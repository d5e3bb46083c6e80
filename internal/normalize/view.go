package normalize

import (
	"sort"

	"github.com/kronigert/timsCompare/internal/method"
)

// DefaultView returns the parameter keys shown by default for the given
// datasets: the general view followed by the view of every workflow that
// occurs, with rows that cannot apply to any of the datasets left out.
func (c *Catalogue) DefaultView(datasets []*method.Dataset) []string {
	if len(datasets) == 0 {
		return nil
	}

	var (
		multiSegment bool
		standardCE   bool
		advancedCE   bool
		iccMode1     bool
		iccMode2     bool
		stepping     bool
	)
	workflows := make(map[string]bool)
	for _, ds := range datasets {
		if ds.Len() > 1 {
			multiSegment = true
		}
		for _, seg := range ds.Segments() {
			if seg.Workflow() != "" {
				workflows[seg.Workflow()] = true
			}
			if rawIs(seg, "ce_ramping_advanced", c.trueValues("ce_ramping_advanced")...) {
				advancedCE = true
			} else {
				standardCE = true
			}
			iccMode1 = iccMode1 || rawIs(seg, "icc_mode", "1")
			iccMode2 = iccMode2 || rawIs(seg, "icc_mode", "2")
			stepping = stepping || rawIs(seg, "msms_stepping_active", c.trueValues("msms_stepping_active")...)
		}
	}

	names := make([]string, 0, len(workflows))
	for wf := range workflows {
		names = append(names, wf)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var ordered []string
	add := func(keys []string) {
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				ordered = append(ordered, k)
			}
		}
	}
	add(c.views["general"])
	for _, wf := range names {
		add(c.views[wf])
	}

	out := ordered[:0]
	for _, k := range ordered {
		switch k {
		case "segment_start", "segment_end":
			if !multiSegment {
				continue
			}
		case "ce_ramping_start", "ce_ramping_end":
			if !standardCE {
				continue
			}
		case "advanced_ce_ramping":
			if !advancedCE {
				continue
			}
		case "icc_target":
			if !iccMode1 {
				continue
			}
		case "icc2_max_tic_target", "icc2_min_accumulation_time", "icc2_reference_tic_capacity", "icc2_smoothing_factor":
			if !iccMode2 {
				continue
			}
		case "msms_stepping":
			if !stepping {
				continue
			}
		case "calibration_segment":
			continue
		}
		out = append(out, k)
	}
	return out
}

func (c *Catalogue) trueValues(key string) []string {
	if d, ok := c.byKey[key]; ok {
		return d.TrueValues
	}
	return nil
}

func rawIs(seg *method.Segment, key string, raws ...string) bool {
	p, ok := seg.Value(key)
	if !ok {
		return false
	}
	for _, r := range raws {
		if p.Raw == r {
			return true
		}
	}
	return false
}
