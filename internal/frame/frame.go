// Package frame holds tabular SCED rows keyed by interval timestamp.
//
// A Table is a minimal, ordered stand-in for a dataframe: every row carries a
// parsed timestamp plus the remaining columns as opaque strings. Tables keep
// the column order they were built with so CSV output is stable.
package frame

import (
	"slices"
	"time"
)

// Row is one record of a dataset. Values holds every column except the
// timestamp column.
type Row struct {
	Timestamp time.Time
	Values    map[string]string
}

// Table is an ordered set of rows sharing a column layout.
type Table struct {
	// TimestampColumn names the designated timestamp column.
	TimestampColumn string
	// Columns lists the non-timestamp columns in output order.
	Columns []string
	Rows    []Row
}

// New returns an empty table.
func New(timestampColumn string, columns ...string) *Table {
	return &Table{
		TimestampColumn: timestampColumn,
		Columns:         append([]string(nil), columns...),
		Rows:            make([]Row, 0),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append adds rows to the table, registering any columns it has not seen.
func (t *Table) Append(rows ...Row) {
	for _, r := range rows {
		t.addColumns(r.Values)
		t.Rows = append(t.Rows, r)
	}
}

func (t *Table) addColumns(values map[string]string) {
	var missing []string
	for k := range values {
		if !slices.Contains(t.Columns, k) {
			missing = append(missing, k)
		}
	}
	slices.Sort(missing)
	t.Columns = append(t.Columns, missing...)
}

// Timestamps returns the distinct row timestamps in ascending order.
func (t *Table) Timestamps() []time.Time {
	seen := make(map[int64]struct{}, len(t.Rows))
	out := make([]time.Time, 0)
	for _, r := range t.Rows {
		key := r.Timestamp.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r.Timestamp)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// SortByTimestamp orders rows ascending by timestamp. Rows sharing a
// timestamp keep their relative order.
func (t *Table) SortByTimestamp() {
	slices.SortStableFunc(t.Rows, func(a, b Row) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.TimestampColumn, t.Columns...)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Group is the set of rows sharing one timestamp.
type Group struct {
	Timestamp time.Time
	Table     *Table
}

// GroupByTimestamp splits the table into one group per distinct timestamp,
// ordered ascending. Each group inherits the parent's columns.
func (t *Table) GroupByTimestamp() []Group {
	index := make(map[int64]int)
	groups := make([]Group, 0)
	for _, r := range t.Rows {
		key := r.Timestamp.UnixNano()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{
				Timestamp: r.Timestamp,
				Table:     New(t.TimestampColumn, t.Columns...),
			})
		}
		groups[i].Table.Rows = append(groups[i].Table.Rows, r)
	}
	slices.SortFunc(groups, func(a, b Group) int { return a.Timestamp.Compare(b.Timestamp) })
	return groups
}

// Concat joins tables into one, taking the union of their columns in
// first-seen order. A nil or empty list yields an empty table on
// timestampColumn.
func Concat(timestampColumn string, tables ...*Table) *Table {
	out := New(timestampColumn)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !slices.Contains(out.Columns, c) {
				out.Columns = append(out.Columns, c)
			}
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}

// Merge combines cached rows with freshly fetched rows. Cached rows whose
// timestamp appears anywhere in fetched are dropped, then the remainder is
// concatenated with fetched and sorted ascending by timestamp.
func Merge(cached, fetched *Table) *Table {
	timestampColumn := ""
	switch {
	case fetched != nil:
		timestampColumn = fetched.TimestampColumn
	case cached != nil:
		timestampColumn = cached.TimestampColumn
	}

	var kept *Table
	if cached != nil {
		fresh := make(map[int64]struct{})
		if fetched != nil {
			for _, r := range fetched.Rows {
				fresh[r.Timestamp.UnixNano()] = struct{}{}
			}
		}
		kept = cached.Filter(func(r Row) bool {
			_, dup := fresh[r.Timestamp.UnixNano()]
			return !dup
		})
	}

	out := Concat(timestampColumn, kept, fetched)
	out.SortByTimestamp()
	return out
}
