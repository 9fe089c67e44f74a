package cache

import (
	"slices"
	"time"

	"github.com/colthorp/brisket-go/internal/core"
)

// coverage answers "is any covered timestamp inside [t, t+interval)?" for
// slots visited in ascending order.
type coverage struct {
	sorted []time.Time
}

func newCoverage(covered []time.Time) coverage {
	sorted := slices.Clone(covered)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	return coverage{sorted: sorted}
}

func (c coverage) hasAny(slotStart, slotEnd time.Time) bool {
	i, _ := slices.BinarySearchFunc(c.sorted, slotStart, func(e, target time.Time) int {
		return e.Compare(target)
	})
	return i < len(c.sorted) && c.sorted[i].Before(slotEnd)
}

// MissingRange walks the interval grid from start to end and returns the
// smallest single range spanning every slot [t, t+interval) that holds no
// covered timestamp. A fully covered request yields the empty range
// (start, start).
//
// Cached slots sitting between two gaps fall inside the returned span.
func MissingRange(covered []time.Time, start, end time.Time, interval time.Duration) core.TimeRange {
	cov := newCoverage(covered)

	missing := core.TimeRange{Start: start, End: start}
	found := false
	for t := start; t.Before(end); t = t.Add(interval) {
		next := t.Add(interval)
		if cov.hasAny(t, next) {
			continue
		}
		// Slots are visited in ascending order, so the first gap fixes the
		// lower bound and every later gap only extends the upper one.
		if !found {
			missing.Start = t
			found = true
		}
		if next.After(missing.End) {
			missing.End = next
		}
	}

	return core.NewTimeRange(missing.Start, missing.End)
}

// MissingGaps returns every run of consecutive uncovered slots in
// [start, end), in ascending order.
func MissingGaps(covered []time.Time, start, end time.Time, interval time.Duration) []core.TimeRange {
	cov := newCoverage(covered)

	gaps := make([]core.TimeRange, 0)
	var open *core.TimeRange

	for t := start; t.Before(end); t = t.Add(interval) {
		next := t.Add(interval)
		if cov.hasAny(t, next) {
			if open != nil {
				gaps = append(gaps, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &core.TimeRange{Start: t, End: next}
		} else {
			open.End = next
		}
	}
	if open != nil {
		gaps = append(gaps, *open)
	}

	return gaps
}
