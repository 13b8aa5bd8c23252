package models

import (
	"math"
	"slices"
)

// BufferedRange is a buffered span in seconds.
type BufferedRange struct {
	Start float64
	End   float64
}

// Shift returns the range moved by offset seconds.
func (r BufferedRange) Shift(offset float64) BufferedRange {
	return BufferedRange{Start: r.Start + offset, End: r.End + offset}
}

// NormalizeRanges returns a sorted, non-overlapping copy of ranges.
// Overlapping ranges are merged; touching ranges such as [0,1] and [1,2]
// stay separate. Empty, inverted and non-finite ranges are dropped. The
// input is never modified.
func NormalizeRanges(ranges []BufferedRange) []BufferedRange {
	return normalize(ranges, false)
}

// CoalesceRanges is NormalizeRanges that also joins touching ranges, for
// building contiguous buffered spans out of adjacent segments.
func CoalesceRanges(ranges []BufferedRange) []BufferedRange {
	return normalize(ranges, true)
}

func normalize(ranges []BufferedRange, joinTouching bool) []BufferedRange {
	out := make([]BufferedRange, 0, len(ranges))
	for _, r := range ranges {
		if !finite(r.Start) || !finite(r.End) || r.End <= r.Start {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b BufferedRange) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	merged := out[:0]
	for _, r := range out {
		if n := len(merged); n > 0 && (r.Start < merged[n-1].End || joinTouching && r.Start == merged[n-1].End) {
			merged[n-1].End = math.Max(merged[n-1].End, r.End)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
