package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/colthorp/brisket-go/internal/frame"
)

func sampleTable() *frame.Table {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := frame.New("sced_timestamp_utc")
	tbl.Append(
		frame.Row{Timestamp: t0, Values: map[string]string{"lambda": "20.1"}},
		frame.Row{Timestamp: t0.Add(5 * time.Minute), Values: map[string]string{"lambda": "21.5"}},
	)
	return tbl
}

func TestWriteTableCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleTable(), FormatCSV))

	assert.Equal(t, "sced_timestamp_utc,lambda\n"+
		"2024-01-01T00:00:00+00:00,20.1\n"+
		"2024-01-01T00:05:00+00:00,21.5\n", buf.String())
}

func TestWriteTableJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleTable(), FormatJSON))

	var got []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-01T00:05:00+00:00", got[1]["sced_timestamp_utc"])
	assert.Equal(t, "21.5", got[1]["lambda"])
}

func TestWriteTableYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleTable(), FormatYAML))

	var got []map[string]string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "20.1", got[0]["lambda"])
}

func TestWriteTableEmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, frame.New("ts"), FormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteTableUnknownFormat(t *testing.T) {
	assert.Error(t, WriteTable(&bytes.Buffer{}, sampleTable(), "parquet"))
}
