package core

import (
	"fmt"
	"time"
)

// TimeRange is a half-open [Start, End) interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange returns the range [start, end) normalized to UTC.
func NewTimeRange(start, end time.Time) TimeRange {
	return TimeRange{Start: start.UTC(), End: end.UTC()}
}

// Empty reports whether the range contains no instant.
func (r TimeRange) Empty() bool {
	return !r.Start.Before(r.End)
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns End - Start, or zero for an empty range.
func (r TimeRange) Duration() time.Duration {
	if r.Empty() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Slots returns the number of d-sized slots in the range.
func (r TimeRange) Slots(d time.Duration) int {
	return int(r.Duration() / d)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", FormatSnapshotKey(r.Start), FormatSnapshotKey(r.End))
}
