package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/colthorp/brisket-go/internal/core"
)

func TestMissingRange(t *testing.T) {
	tests := []struct {
		name    string
		covered []time.Time
		end     int
		want    core.TimeRange
	}{
		{"empty cache", nil, 3, core.TimeRange{Start: slot(0), End: slot(3)}},
		{"fully covered", []time.Time{slot(0), slot(1), slot(2)}, 3, core.TimeRange{Start: slot(0), End: slot(0)}},
		{"leading gap", []time.Time{slot(2)}, 3, core.TimeRange{Start: slot(0), End: slot(2)}},
		{"trailing gap", []time.Time{slot(0)}, 3, core.TimeRange{Start: slot(1), End: slot(3)}},
		{"bounding span over cached slot", []time.Time{slot(0), slot(3)}, 5, core.TimeRange{Start: slot(1), End: slot(5)}},
		{"out of range coverage ignored", []time.Time{slot(-1), slot(3)}, 3, core.TimeRange{Start: slot(0), End: slot(3)}},
		{"unsorted coverage", []time.Time{slot(2), slot(0), slot(1)}, 3, core.TimeRange{Start: slot(0), End: slot(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MissingRange(tt.covered, slot(0), slot(tt.end), core.SCEDInterval)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Empty(), got.Empty())
		})
	}
}

func TestMissingRangeOffGridTimestampCoversSlot(t *testing.T) {
	// a row stamped 00:07 still covers the 00:05 slot
	covered := []time.Time{slot(0), slot(1).Add(2 * time.Minute)}
	got := MissingRange(covered, slot(0), slot(2), core.SCEDInterval)
	assert.True(t, got.Empty())
}

func TestMissingRangeIsAlwaysSubrange(t *testing.T) {
	covered := []time.Time{slot(1), slot(4), slot(5), slot(9)}
	for end := 1; end <= 12; end++ {
		got := MissingRange(covered, slot(0), slot(end), core.SCEDInterval)
		assert.False(t, got.Start.Before(slot(0)), "end=%d", end)
		assert.False(t, got.End.After(slot(end)), "end=%d", end)
	}
}

func TestMissingGaps(t *testing.T) {
	covered := []time.Time{slot(0), slot(3), slot(4)}

	gaps := MissingGaps(covered, slot(0), slot(7), core.SCEDInterval)
	assert.Equal(t, []core.TimeRange{
		{Start: slot(1), End: slot(3)},
		{Start: slot(5), End: slot(7)},
	}, gaps)

	assert.Empty(t, MissingGaps(covered, slot(3), slot(5), core.SCEDInterval))
	assert.Equal(t, []core.TimeRange{{Start: slot(0), End: slot(2)}}, MissingGaps(nil, slot(0), slot(2), core.SCEDInterval))
}

func TestMissingGapsAgreeWithMissingRange(t *testing.T) {
	covered := []time.Time{slot(2), slot(6)}
	gaps := MissingGaps(covered, slot(0), slot(8), core.SCEDInterval)
	span := MissingRange(covered, slot(0), slot(8), core.SCEDInterval)

	assert.Equal(t, span.Start, gaps[0].Start)
	assert.Equal(t, span.End, gaps[len(gaps)-1].End)
}
