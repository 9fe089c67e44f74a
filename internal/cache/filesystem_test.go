package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/logging"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFilesystemBackendLayout(t *testing.T) {
	tmpDir := t.TempDir()
	backend := NewFilesystemBackend(tmpDir)
	ctx := context.Background()

	require.NoError(t, backend.EnsureNamespace(core.ShadowPricesSCED))
	require.NoError(t, backend.WriteSnapshot(ctx, core.ShadowPricesSCED, slot(1), rowsAt(slot(1), "A")))

	// Verify file was created
	expectedPath := filepath.Join(tmpDir, "ercot_shadow_prices_sced", "2024-01-01T00:05:00+00:00.csv")
	assert.Equal(t, expectedPath, backend.Path(core.ShadowPricesSCED, slot(1)))

	data, err := os.ReadFile(expectedPath)
	require.NoError(t, err)
	assert.Equal(t,
		"sced_timestamp_utc,constraint_name,shadow_price\n2024-01-01T00:05:00+00:00,A,5.25\n",
		string(data))

	info, err := os.Stat(expectedPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(expectedPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

func TestFilesystemBackendReadsPandasSnapshots(t *testing.T) {
	tmpDir := t.TempDir()
	backend := NewFilesystemBackend(tmpDir)

	// pandas writes the index column wherever it sits and uses a space separator
	writeFile(t, filepath.Join(tmpDir, "ercot_sced_system_lambda", "2024-01-01T00:10:00+00:00.csv"),
		[]byte("repeated_hour_flag,sced_timestamp_utc,system_lambda\nFalse,2024-01-01 00:10:00+00:00,23.1\n"))

	rows, covered, err := backend.ReadRange(context.Background(), core.SCEDSystemLambda, slot(0), slot(3))
	require.NoError(t, err)
	require.Equal(t, 1, rows.Len())
	assert.Equal(t, slot(2), covered[0])
	assert.Equal(t, "23.1", rows.Rows[0].Values["system_lambda"])
	assert.Equal(t, "False", rows.Rows[0].Values["repeated_hour_flag"])
}

func TestFilesystemBackendIgnoresForeignFiles(t *testing.T) {
	tmpDir := t.TempDir()
	backend := NewFilesystemBackend(tmpDir)
	ctx, logs := logging.NewTestContext(logging.Flags{})

	require.NoError(t, backend.EnsureNamespace(core.LMPByBus))
	require.NoError(t, backend.WriteSnapshot(ctx, core.LMPByBus, slot(0), rowsAt(slot(0), "A")))
	writeFile(t, filepath.Join(tmpDir, "ercot_lmp_by_bus", ".DS_Store"), []byte("junk"))
	writeFile(t, filepath.Join(tmpDir, "ercot_lmp_by_bus", "2024-01-01T00:05:00+00:00.csv.123.tmp"), []byte("partial"))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "ercot_lmp_by_bus", "nested.csv"), 0o755))

	rows, _, err := backend.ReadRange(ctx, core.LMPByBus, slot(0), slot(12))
	require.NoError(t, err)
	assert.Equal(t, 1, rows.Len())
	assert.NotContains(t, logs.String(), "skipping")
}

func TestFilesystemBackendCorruptContent(t *testing.T) {
	tmpDir := t.TempDir()
	backend := NewFilesystemBackend(tmpDir)
	ctx, logs := logging.NewTestContext(logging.Flags{})

	require.NoError(t, backend.EnsureNamespace(core.LMPByBus))
	require.NoError(t, backend.WriteSnapshot(ctx, core.LMPByBus, slot(0), rowsAt(slot(0), "A")))
	// well-formed key, unparseable timestamp cell
	writeFile(t, backend.Path(core.LMPByBus, slot(1)), []byte("sced_timestamp_utc,price\nyesterday,1\n"))

	rows, covered, err := backend.ReadRange(ctx, core.LMPByBus, slot(0), slot(12))
	require.NoError(t, err)
	assert.Equal(t, 1, rows.Len())
	assert.Len(t, covered, 1)
	assert.Contains(t, logs.String(), "2024-01-01T00:05:00+00:00.csv")
}

func TestFilesystemBackendMissingNamespaceReadsEmpty(t *testing.T) {
	backend := NewFilesystemBackend(filepath.Join(t.TempDir(), "does-not-exist"))

	rows, covered, err := backend.ReadRange(context.Background(), core.LMPByBus, slot(0), slot(1))
	require.NoError(t, err)
	assert.Equal(t, 0, rows.Len())
	assert.Empty(t, covered)
}
