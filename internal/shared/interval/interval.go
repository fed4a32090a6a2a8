// Package interval provides half-open interval overlap checks used by the
// scheduling and availability modules.
package interval

import "time"

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Symmetric; an identical non-empty interval
// overlaps itself.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// MinutesOverlap is Overlaps for clock times expressed as minutes since
// midnight, used when comparing recurring slots on the same day.
func MinutesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}
