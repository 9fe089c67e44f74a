// Package output provides output formatting utilities for the brisket CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the accepted --format values.
func Formats() []string {
	return []string{FormatCSV, FormatJSON, FormatYAML}
}

// WriteTable renders t to w in the requested format.
func WriteTable(w io.Writer, t *frame.Table, format string) error {
	switch format {
	case "", FormatCSV:
		return frame.WriteCSV(w, t, core.FormatSnapshotKey)
	case FormatJSON:
		return StreamJSON(w, Records(t))
	case FormatYAML:
		return WriteYAML(w, Records(t))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Records flattens t into one map per row, timestamp included.
func Records(t *frame.Table) []map[string]string {
	out := make([]map[string]string, 0, t.Len())
	if t == nil {
		return out
	}
	for _, r := range t.Rows {
		rec := make(map[string]string, len(t.Columns)+1)
		rec[t.TimestampColumn] = core.FormatSnapshotKey(r.Timestamp)
		for _, c := range t.Columns {
			rec[c] = r.Values[c]
		}
		out = append(out, rec)
	}
	return out
}

// StreamJSON writes records as a compact JSON array, one element per line.
func StreamJSON(w io.Writer, records []map[string]string) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, item := range records {
		if i > 0 {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return err
			}
		}
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}

// WriteYAML writes any value as a YAML document.
func WriteYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// PrintJSON writes a single item as formatted JSON.
func PrintJSON(w io.Writer, item interface{}) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// WriteValue renders a non-tabular value (status reports, listings) as JSON
// or YAML. CSV falls back to JSON.
func WriteValue(w io.Writer, v interface{}, format string) error {
	if format == FormatYAML {
		return WriteYAML(w, v)
	}
	return PrintJSON(w, v)
}
