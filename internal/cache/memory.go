package cache

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
)

// MemoryBackend is an in-memory cache backend for testing.
type MemoryBackend struct {
	namespaces map[core.Dataset]map[string]*frame.Table
	writes     int
	mu         sync.RWMutex
}

// NewMemoryBackend creates a new in-memory cache backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		namespaces: make(map[core.Dataset]map[string]*frame.Table),
	}
}

// Path returns a dummy path for the snapshot at ts.
func (b *MemoryBackend) Path(dataset core.Dataset, ts time.Time) string {
	return fmt.Sprintf("%s/%s%s", dataset, core.FormatSnapshotKey(ts), snapshotExt)
}

// EnsureNamespace registers the dataset namespace.
func (b *MemoryBackend) EnsureNamespace(dataset core.Dataset) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.namespaces[dataset]; !ok {
		b.namespaces[dataset] = make(map[string]*frame.Table)
	}
	return nil
}

// ReadRange returns copies of the snapshots whose key falls in [start, end).
func (b *MemoryBackend) ReadRange(ctx context.Context, dataset core.Dataset, start, end time.Time) (*frame.Table, []time.Time, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	window := core.NewTimeRange(start, end)
	ns := b.namespaces[dataset]

	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tables := make([]*frame.Table, 0)
	for _, key := range keys {
		ts, err := core.ParseSnapshotKey(key)
		if err != nil {
			skipEntry(ctx, dataset, key, err)
			continue
		}
		if window.Contains(ts) {
			tables = append(tables, copyTable(ns[key]))
		}
	}

	out := frame.Concat(core.SCEDTimestampColumn, tables...)
	out.SortByTimestamp()
	return out, out.Timestamps(), nil
}

// WriteSnapshot stores a copy of rows under the snapshot key.
func (b *MemoryBackend) WriteSnapshot(_ context.Context, dataset core.Dataset, ts time.Time, rows *frame.Table) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ns, ok := b.namespaces[dataset]
	if !ok {
		return fmt.Errorf("cache namespace %s does not exist", dataset)
	}
	ns[core.FormatSnapshotKey(ts)] = copyTable(rows)
	b.writes++
	return nil
}

// Keys returns the stored snapshot keys for a dataset in sorted order (for testing).
func (b *MemoryBackend) Keys(dataset core.Dataset) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.namespaces[dataset]))
	for k := range b.namespaces[dataset] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes returns the number of successful WriteSnapshot calls (for testing).
func (b *MemoryBackend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}

// Seed stores rows directly under an arbitrary key, creating the namespace
// if needed. Keys are not validated so tests can plant corrupt entries.
func (b *MemoryBackend) Seed(dataset core.Dataset, key string, rows *frame.Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.namespaces[dataset]; !ok {
		b.namespaces[dataset] = make(map[string]*frame.Table)
	}
	b.namespaces[dataset][key] = copyTable(rows)
}

// copyTable returns a deep copy to prevent mutation through shared maps.
func copyTable(t *frame.Table) *frame.Table {
	out := frame.New(t.TimestampColumn, t.Columns...)
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, frame.Row{Timestamp: r.Timestamp, Values: maps.Clone(r.Values)})
	}
	return out
}
