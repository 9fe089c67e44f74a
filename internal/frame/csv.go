package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrMissingTimestampColumn is returned when a CSV header lacks the
// designated timestamp column.
var ErrMissingTimestampColumn = errors.New("missing timestamp column")

// TimestampFormatter renders a row timestamp into its CSV cell.
type TimestampFormatter func(time.Time) string

// TimestampParser parses a CSV cell back into a timestamp.
type TimestampParser func(string) (time.Time, error)

// WriteCSV writes the table as header-included, comma-delimited text. The
// timestamp column is written first, followed by Columns in order. Missing
// values are written as empty cells.
func WriteCSV(w io.Writer, t *Table, format TimestampFormatter) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, t.TimestampColumn)
	header = append(header, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, r := range t.Rows {
		record[0] = format(r.Timestamp)
		for i, c := range t.Columns {
			record[i+1] = r.Values[c]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses text written by WriteCSV (or by pandas' to_csv) back into a
// table. The timestamp column may sit at any position in the header.
func ReadCSV(r io.Reader, timestampColumn string, parse TimestampParser) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv: %w", ErrMissingTimestampColumn)
		}
		return nil, err
	}
	header = append([]string(nil), header...)

	tsIndex := -1
	columns := make([]string, 0, len(header))
	for i, h := range header {
		if h == timestampColumn {
			tsIndex = i
			continue
		}
		columns = append(columns, h)
	}
	if tsIndex < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingTimestampColumn, timestampColumn)
	}

	t := New(timestampColumn, columns...)
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}

		ts, err := parse(record[tsIndex])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		values := make(map[string]string, len(header)-1)
		for i, h := range header {
			if i == tsIndex {
				continue
			}
			values[h] = record[i]
		}
		t.Rows = append(t.Rows, Row{Timestamp: ts, Values: values})
	}

	return t, nil
}
