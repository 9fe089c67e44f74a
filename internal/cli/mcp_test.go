package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/brisket-go/internal/api"
	"github.com/colthorp/brisket-go/internal/cache"
	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/logging"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type mcpHarness struct {
	server    *mcpServer
	out       *bytes.Buffer
	transport *api.InMemoryTransport
	backend   *cache.MemoryBackend
}

func newMCPHarness(t *testing.T) *mcpHarness {
	t.Helper()
	ctx, _ := logging.NewTestContext(logging.Flags{})

	transport := api.NewInMemoryTransport()
	for i := 0; i < 4; i++ {
		transport.Seed(core.SCEDSystemLambda, map[string]interface{}{
			core.SCEDTimestampColumn: t0.Add(time.Duration(i) * core.SCEDInterval).Format(time.RFC3339),
			"system_lambda":          json.Number("20.5"),
		})
	}
	backend := cache.NewMemoryBackend()
	out := &bytes.Buffer{}

	h := &mcpHarness{out: out, transport: transport, backend: backend}
	h.server = &mcpServer{
		ctx: ctx,
		out: out,
		loc: time.UTC,
		now: func() time.Time { return t0.Add(time.Hour) },
		open: func(cacheOnly bool) (*cache.Manager, func() error, error) {
			var provider cache.Provider
			if !cacheOnly {
				provider = api.NewGridStatusAPI(transport, 0)
			}
			m, err := cache.NewManager(provider, backend, cache.Options{CacheOnly: cacheOnly})
			return m, func() error { return nil }, err
		},
	}
	return h
}

// call sends one request line and returns the decoded response.
func (h *mcpHarness) call(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	h.out.Reset()
	require.NoError(t, h.server.serve(strings.NewReader(line+"\n")))

	scanner := bufio.NewScanner(h.out)
	require.True(t, scanner.Scan(), "expected a response line")
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

// toolPayload decodes the JSON text of a tool result.
func toolPayload(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	result := resp["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &payload), text)
	return payload
}

func TestMCPInitialize(t *testing.T) {
	h := newMCPHarness(t)
	resp := h.call(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	result := resp["result"].(map[string]interface{})
	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "brisket", info["name"])
	assert.Equal(t, core.Version, info["version"])
}

func TestMCPToolsList(t *testing.T) {
	h := newMCPHarness(t)
	resp := h.call(t, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	tools := resp["result"].(map[string]interface{})["tools"].([]interface{})
	require.Len(t, tools, 2)
	assert.Equal(t, "query_dataset", tools[0].(map[string]interface{})["name"])
	assert.Equal(t, "cache_status", tools[1].(map[string]interface{})["name"])
}

func TestMCPNotificationsGetNoResponse(t *testing.T) {
	h := newMCPHarness(t)
	require.NoError(t, h.server.serve(strings.NewReader(
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n"+
			`{"jsonrpc":"2.0","method":"unknown/notification"}`+"\n"+
			"not json\n")))
	assert.Empty(t, h.out.String())
}

func TestMCPUnknownMethod(t *testing.T) {
	h := newMCPHarness(t)
	resp := h.call(t, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)

	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(-32601), errObj["code"])
}

func TestMCPQueryDatasetFetchesThenServesFromCache(t *testing.T) {
	h := newMCPHarness(t)
	call := `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"query_dataset","arguments":{"dataset":"ercot_sced_system_lambda","start":"2024-01-01T00:00:00Z","end":"2024-01-01T00:10:00Z"}}}`

	payload := toolPayload(t, h.call(t, call))
	assert.Equal(t, float64(2), payload["rows_count"])
	assert.Equal(t, "2024-01-01T00:00:00+00:00", payload["start"])
	assert.Equal(t, false, payload["truncated"])
	assert.Equal(t, 1, h.transport.RequestsMade())
	assert.Equal(t, []string{"2024-01-01T00:00:00+00:00", "2024-01-01T00:05:00+00:00"}, h.backend.Keys(core.SCEDSystemLambda))

	payload = toolPayload(t, h.call(t, call))
	assert.Equal(t, float64(2), payload["rows_count"])
	assert.Equal(t, 1, h.transport.RequestsMade(), "second query should be a cache hit")
}

func TestMCPQueryDatasetTruncates(t *testing.T) {
	h := newMCPHarness(t)
	payload := toolPayload(t, h.call(t, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"query_dataset","arguments":{"dataset":"ercot_sced_system_lambda","start":"2024-01-01T00:00:00Z","end":"2024-01-01T00:20:00Z","max_rows":3}}}`))

	assert.Equal(t, float64(4), payload["rows_count"])
	assert.Equal(t, true, payload["truncated"])
	assert.Len(t, payload["rows"], 3)
}

func TestMCPQueryDatasetUnknownDataset(t *testing.T) {
	h := newMCPHarness(t)
	payload := toolPayload(t, h.call(t, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"query_dataset","arguments":{"dataset":"ercot_nope","start":"d-1"}}}`))

	assert.Contains(t, payload["error"], "unknown dataset")
	assert.Len(t, payload["valid_datasets"], len(core.Datasets()))
	assert.Equal(t, 0, h.transport.RequestsMade())
}

func TestMCPCacheStatusNeverCallsProvider(t *testing.T) {
	h := newMCPHarness(t)
	payload := toolPayload(t, h.call(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"cache_status","arguments":{"dataset":"ercot_sced_system_lambda","start":"2024-01-01 00:00","end":"2024-01-01 00:15"}}}`))

	assert.Equal(t, float64(3), payload["total_slots"])
	assert.Equal(t, float64(0), payload["covered_slots"])
	assert.Equal(t, false, payload["complete"])
	assert.Equal(t, 0, h.transport.RequestsMade())
}

func TestMCPUnknownTool(t *testing.T) {
	h := newMCPHarness(t)
	resp := h.call(t, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"fetch_day","arguments":{}}}`)

	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(-32602), errObj["code"])
	assert.Equal(t, "fetch_day", errObj["data"])
}
