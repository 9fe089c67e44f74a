// Package cache provides interval-snapshot caching for GridStatus SCED data.
//
// # Overview
//
// Each dataset owns one namespace. Inside it, every SCED interval timestamp
// is stored as a single snapshot holding all rows for that timestamp. The
// filesystem layout is:
//
//	<data_dir>/<dataset>/<timestamp>.csv
//
// where <timestamp> is the UTC ISO-8601 form, e.g. 2024-01-01T00:05:00+00:00.
//
// # Snapshot Rules
//
//   - A snapshot, once written, is treated as complete. Covered timestamps are
//     never re-requested on their own.
//   - Writing a key that already exists overwrites it. Replaying the same
//     fetch therefore converges on the same stored state.
//   - A snapshot whose key or content cannot be parsed is skipped with a
//     warning; it never fails the surrounding read.
//
// # Gap Detection
//
// Manager walks the 5-minute grid across the requested range and folds every
// uncovered slot into one bounding span. Any non-empty span triggers a
// provider query (by default over the whole requested range), after which
// the fetched rows are split by timestamp, persisted, and merged with the
// cached rows.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
)

var (
	// ErrInvalidRange is returned when start is not before end.
	ErrInvalidRange = errors.New("invalid time range: start must be before end")
	// ErrUnalignedRange is returned when a boundary is off the SCED grid.
	ErrUnalignedRange = errors.New("time range is not aligned to the SCED interval grid")
)

// Backend is the interface for interval snapshot storage.
// The default implementation is FilesystemBackend which stores CSV files on disk.
type Backend interface {
	// EnsureNamespace creates the storage location for a dataset.
	// It is idempotent.
	EnsureNamespace(dataset core.Dataset) error

	// ReadRange returns the rows of every snapshot whose timestamp lies in
	// [start, end), ordered by timestamp, plus the distinct covered
	// timestamps. Corrupt entries are skipped with a warning.
	ReadRange(ctx context.Context, dataset core.Dataset, start, end time.Time) (*frame.Table, []time.Time, error)

	// WriteSnapshot persists all rows for one timestamp, replacing any
	// existing snapshot with the same key.
	WriteSnapshot(ctx context.Context, dataset core.Dataset, ts time.Time, rows *frame.Table) error

	// Path returns a human-readable location for the snapshot (for debugging).
	Path(dataset core.Dataset, ts time.Time) string
}

// Provider retrieves dataset rows from the remote data source.
// Implementations own retries, authentication and transport.
type Provider interface {
	FetchDataset(ctx context.Context, dataset core.Dataset, start, end time.Time) (*frame.Table, error)
}

// emptyTable returns a table with no rows on the SCED timestamp column.
func emptyTable() *frame.Table {
	return frame.New(core.SCEDTimestampColumn)
}
