package cache

import (
	"bytes"
	"io"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
)

// encodeSnapshot renders rows in the on-disk CSV format shared by backends.
func encodeSnapshot(rows *frame.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.WriteCSV(&buf, rows, core.FormatSnapshotKey); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeSnapshot parses a CSV snapshot, re-parsing the timestamp column.
func decodeSnapshot(r io.Reader) (*frame.Table, error) {
	return frame.ReadCSV(r, core.SCEDTimestampColumn, core.ParseTimestamp)
}
