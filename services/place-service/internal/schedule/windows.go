package schedule

import "time"

// Interval is a half-open [Start, End) span in UTC.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SubtractBlocks removes the given blocks from the base interval and returns
// the remaining open windows in order. Blocks outside the base interval are
// ignored; overlapping blocks are merged first.
func SubtractBlocks(baseStart, baseEnd time.Time, blocks []Interval) []Interval {
	if !baseEnd.After(baseStart) {
		return nil
	}
	var b []Interval
	for _, t := range blocks {
		// Clip to base interval.
		s := t.Start.UTC()
		e := t.End.UTC()
		if e.Before(baseStart) || !s.Before(baseEnd) {
			continue
		}
		if s.Before(baseStart) {
			s = baseStart
		}
		if e.After(baseEnd) {
			e = baseEnd
		}
		if e.After(s) {
			b = append(b, Interval{Start: s, End: e})
		}
	}
	if len(b) == 0 {
		return []Interval{{Start: baseStart, End: baseEnd}}
	}

	// Sort and merge overlapping blocks.
	sortIntervals(b)
	merged := make([]Interval, 0, len(b))
	for _, cur := range b {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}

	// Subtract merged blocks from base.
	var out []Interval
	cursor := baseStart
	for _, m := range merged {
		if m.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if baseEnd.After(cursor) {
		out = append(out, Interval{Start: cursor, End: baseEnd})
	}
	return out
}

func sortIntervals(in []Interval) {
	// Small n; simple insertion sort keeps deps minimal.
	for i := 1; i < len(in); i++ {
		j := i
		for j > 0 && (in[j].Start.Before(in[j-1].Start) || (in[j].Start.Equal(in[j-1].Start) && in[j].End.Before(in[j-1].End))) {
			in[j], in[j-1] = in[j-1], in[j]
			j--
		}
	}
}
