// Package core provides shared constants, the dataset vocabulary and time
// helpers for the brisket CLI.
package core

import "time"

// Provider configuration
const (
	APIBaseURL   = "https://api.gridstatus.io/v1"
	APIKeyEnvVar = "GRIDSTATUS_API_KEY"
	DefaultTZ    = "America/Chicago"
)

// SCED interval grid
const (
	SCEDInterval        = 5 * time.Minute
	SCEDTimestampColumn = "sced_timestamp_utc"
)

// Timestamp formats.
//
// SnapshotKeyFmt renders UTC as "+00:00" rather than "Z" so keys match
// caches written by pandas-based tools.
const (
	SnapshotKeyFmt = "2006-01-02T15:04:05-07:00"
	APIDateFmt     = "2006-01-02"
	APIDatetimeFmt = "2006-01-02 15:04:05"
)

// Pagination
const (
	PageSize = 10000
)

// Fetch strategies control which range is sent to the provider once a gap
// has been detected.
const (
	// FetchStrategyFullRange re-fetches the whole requested range.
	FetchStrategyFullRange = "full_range"
	// FetchStrategySpan fetches the single span bounding every gap.
	FetchStrategySpan = "span"
	// FetchStrategyGaps fetches each run of consecutive missing slots.
	FetchStrategyGaps = "gaps"
)

// Cache backends
const (
	BackendFilesystem = "filesystem"
	BackendBolt       = "bolt"
)

// Version is the current CLI version.
const Version = "0.3.0"
