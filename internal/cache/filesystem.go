package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
	"github.com/colthorp/brisket-go/internal/logging"
	"github.com/colthorp/brisket-go/internal/observability"
)

const snapshotExt = ".csv"

// FilesystemBackend stores one CSV file per interval timestamp.
// Layout: <root>/<dataset>/<timestamp>.csv
type FilesystemBackend struct {
	root      string
	writeLock sync.Mutex
}

// NewFilesystemBackend creates a new filesystem-based cache backend rooted at root.
func NewFilesystemBackend(root string) *FilesystemBackend {
	return &FilesystemBackend{root: root}
}

// Root returns the cache root directory.
func (b *FilesystemBackend) Root() string {
	return b.root
}

func (b *FilesystemBackend) namespacePath(dataset core.Dataset) string {
	return filepath.Join(b.root, dataset.String())
}

// Path returns the filesystem path for the snapshot at ts.
func (b *FilesystemBackend) Path(dataset core.Dataset, ts time.Time) string {
	return filepath.Join(b.namespacePath(dataset), core.FormatSnapshotKey(ts)+snapshotExt)
}

// EnsureNamespace creates the dataset directory if it does not exist.
func (b *FilesystemBackend) EnsureNamespace(dataset core.Dataset) error {
	if err := os.MkdirAll(b.namespacePath(dataset), 0o755); err != nil {
		return fmt.Errorf("creating cache namespace %s: %w", dataset, err)
	}
	return nil
}

// ReadRange scans the dataset directory and loads every snapshot whose key
// falls in [start, end).
func (b *FilesystemBackend) ReadRange(ctx context.Context, dataset core.Dataset, start, end time.Time) (*frame.Table, []time.Time, error) {
	logger := logging.FromContext(ctx)
	dir := b.namespacePath(dataset)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyTable(), nil, nil
		}
		return nil, nil, fmt.Errorf("reading cache namespace %s: %w", dataset, err)
	}

	window := core.NewTimeRange(start, end)
	tables := make([]*frame.Table, 0)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != snapshotExt {
			continue
		}

		ts, err := core.ParseSnapshotKey(strings.TrimSuffix(name, snapshotExt))
		if err != nil {
			skipEntry(ctx, dataset, name, err)
			continue
		}
		if !window.Contains(ts) {
			continue
		}

		rows, err := readSnapshotFile(filepath.Join(dir, name))
		if err != nil {
			skipEntry(ctx, dataset, name, err)
			continue
		}
		tables = append(tables, rows)
	}

	out := frame.Concat(core.SCEDTimestampColumn, tables...)
	out.SortByTimestamp()
	logger.Debug("read cached snapshots", "dataset", dataset, "range", window, "snapshots", len(tables), "rows", out.Len())

	return out, out.Timestamps(), nil
}

func readSnapshotFile(path string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return decodeSnapshot(f)
}

// WriteSnapshot persists rows atomically using temp file + rename.
// The namespace must already exist.
func (b *FilesystemBackend) WriteSnapshot(ctx context.Context, dataset core.Dataset, ts time.Time, rows *frame.Table) error {
	data, err := encodeSnapshot(rows)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", core.FormatSnapshotKey(ts), err)
	}

	path := b.Path(dataset, ts)

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	// Write to temp file first, then rename (atomic)
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}

	logging.FromContext(ctx).Debug("wrote snapshot", "path", path, "rows", rows.Len())
	return nil
}

// skipEntry reports an unreadable cache entry without failing the read.
func skipEntry(ctx context.Context, dataset core.Dataset, name string, err error) {
	observability.CacheCorruptEntriesTotal.WithLabelValues(dataset.String()).Inc()
	logging.FromContext(ctx).Warn("skipping unreadable cache entry", "dataset", dataset, "entry", name, "err", err)
}
