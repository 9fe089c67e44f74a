package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LoadTZ returns the *time.Location for name, or DefaultTZ when name is empty.
func LoadTZ(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTZ
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone '%s': %w", name, err)
	}
	return loc, nil
}

// FloorInterval rounds t down to a multiple of d counted from the zero
// time (time.Truncate). For durations that divide a day, such as the SCED
// interval, that is the same as the wall-clock grid in UTC.
func FloorInterval(t time.Time, d time.Duration) time.Time {
	return t.UTC().Truncate(d)
}

// CeilInterval rounds t up to the nearest multiple of d, in UTC.
func CeilInterval(t time.Time, d time.Duration) time.Time {
	floored := FloorInterval(t, d)
	if floored.Equal(t) {
		return floored
	}
	return floored.Add(d)
}

// IsAligned reports whether t sits exactly on the d grid.
func IsAligned(t time.Time, d time.Duration) bool {
	return FloorInterval(t, d).Equal(t)
}

// FormatSnapshotKey renders the canonical cache key for an interval timestamp.
func FormatSnapshotKey(t time.Time) string {
	return t.UTC().Format(SnapshotKeyFmt)
}

// ParseSnapshotKey parses a cache key back into a UTC timestamp.
// Keys must carry an explicit offset.
func ParseSnapshotKey(key string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot key '%s': %w", key, err)
	}
	return t.UTC(), nil
}

// timestampLayouts are tried in order by ParseTimestamp. pandas writes
// timezone-aware values with a space separator and a +00:00 offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses a timestamp cell from the provider or a cached file.
// Values without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp '%s'", s)
}

// ParseDate parses a YYYY-MM-DD string into a time.Time at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(APIDateFmt, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseDatetime parses a "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD HH:MM" string
// in the given timezone.
func ParseDatetime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{APIDatetimeFmt, "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime '%s' (expected YYYY-MM-DD HH:MM:SS)", s)
}

var relSpecRegex = regexp.MustCompile(`^([mhdw])-(\d+)$`)

// ParseTimeSpec returns a concrete instant for flexible spec strings,
// evaluated against now.
// Supports:
// 1. RFC3339 (offset taken from the string)
// 2. YYYY-MM-DD HH:MM[:SS] in loc
// 3. YYYY-MM-DD (midnight in loc)
// 4. "now"
// 5. Relative forms like m-30 (minutes), h-6 (hours), d-1 (days), w-2 (weeks)
func ParseTimeSpec(spec string, loc *time.Location, now time.Time) (time.Time, error) {
	spec = strings.TrimSpace(spec)

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}
	if t, err := ParseDatetime(spec, loc); err == nil {
		return t, nil
	}
	if t, err := ParseDate(spec, loc); err == nil {
		return t, nil
	}
	if strings.EqualFold(spec, "now") {
		return now, nil
	}

	if matches := relSpecRegex.FindStringSubmatch(strings.ToLower(spec)); matches != nil {
		num, _ := strconv.Atoi(matches[2])
		switch matches[1] {
		case "m":
			return now.Add(-time.Duration(num) * time.Minute), nil
		case "h":
			return now.Add(-time.Duration(num) * time.Hour), nil
		case "d":
			return now.AddDate(0, 0, -num), nil
		case "w":
			return now.AddDate(0, 0, -num*7), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid time specification: '%s'", spec)
}
