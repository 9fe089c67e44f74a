package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
	"github.com/colthorp/brisket-go/internal/logging"
)

// BoltFileName is the database file created under the cache root.
const BoltFileName = "brisket.db"

// BoltBackend keeps snapshots in a single bbolt database. Each dataset is a
// bucket; keys are canonical snapshot keys and values hold the same CSV
// payload the filesystem backend writes.
type BoltBackend struct {
	db   *bolt.DB
	path string
}

// OpenBoltBackend opens (or creates) the database at <root>/brisket.db.
func OpenBoltBackend(root string) (*BoltBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", root, err)
	}
	path := filepath.Join(root, BoltFileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database %s: %w", path, err)
	}
	return &BoltBackend{db: db, path: path}, nil
}

// Close releases the database file lock.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Path returns a bucket/key locator for the snapshot at ts.
func (b *BoltBackend) Path(dataset core.Dataset, ts time.Time) string {
	return fmt.Sprintf("%s#%s/%s", b.path, dataset, core.FormatSnapshotKey(ts))
}

// EnsureNamespace creates the dataset bucket if it does not exist.
func (b *BoltBackend) EnsureNamespace(dataset core.Dataset) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dataset.String()))
		return err
	})
	if err != nil {
		return fmt.Errorf("creating cache namespace %s: %w", dataset, err)
	}
	return nil
}

// ReadRange walks every key in the dataset bucket and decodes the snapshots
// whose timestamp lies in [start, end).
func (b *BoltBackend) ReadRange(ctx context.Context, dataset core.Dataset, start, end time.Time) (*frame.Table, []time.Time, error) {
	window := core.NewTimeRange(start, end)
	tables := make([]*frame.Table, 0)

	err := b.db.View(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(dataset.String()))
		if buck == nil {
			return nil
		}

		return buck.ForEach(func(k, v []byte) error {
			key := string(k)
			ts, err := core.ParseSnapshotKey(key)
			if err != nil {
				skipEntry(ctx, dataset, key, err)
				return nil
			}
			if !window.Contains(ts) {
				return nil
			}

			// v is only valid for the life of the transaction; decoding copies it.
			rows, err := decodeSnapshot(bytes.NewReader(v))
			if err != nil {
				skipEntry(ctx, dataset, key, err)
				return nil
			}
			tables = append(tables, rows)
			return nil
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reading cache namespace %s: %w", dataset, err)
	}

	out := frame.Concat(core.SCEDTimestampColumn, tables...)
	out.SortByTimestamp()
	logging.FromContext(ctx).Debug("read cached snapshots", "dataset", dataset, "range", window, "snapshots", len(tables), "rows", out.Len())

	return out, out.Timestamps(), nil
}

// WriteSnapshot stores rows under the snapshot key in one transaction.
// The namespace must already exist.
func (b *BoltBackend) WriteSnapshot(ctx context.Context, dataset core.Dataset, ts time.Time, rows *frame.Table) error {
	data, err := encodeSnapshot(rows)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", core.FormatSnapshotKey(ts), err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(dataset.String()))
		if buck == nil {
			return fmt.Errorf("cache namespace %s does not exist", dataset)
		}
		return buck.Put([]byte(core.FormatSnapshotKey(ts)), data)
	})
	if err != nil {
		return fmt.Errorf("writing snapshot %s: %w", b.Path(dataset, ts), err)
	}

	logging.FromContext(ctx).Debug("wrote snapshot", "path", b.Path(dataset, ts), "rows", rows.Len())
	return nil
}
