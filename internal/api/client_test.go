package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Timeout: 5 * time.Second, MaxRetries: retries})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClientSendsKeyAndDecodesNumbers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "/datasets/ercot_lmp_by_bus/query", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"sced_timestamp_utc":"2024-01-01T00:00:00+00:00","lmp":21.50}],"meta":{"page":2,"hasNextPage":false}}`))
	}, 1)

	resp, err := c.Request(context.Background(), "datasets/ercot_lmp_by_bus/query", map[string]string{"page": "2"})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "21.50", stringify(resp.Data[0]["lmp"]))
	assert.Equal(t, 2, resp.Meta.Page)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad dataset", http.StatusNotFound)
	}, 3)

	_, err := c.Request(context.Background(), "datasets/nope/query", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":[],"meta":{"page":1,"hasNextPage":false}}`))
	}, 2)

	resp, err := c.Request(context.Background(), "datasets/x/query", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientStopsWhenContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Request(ctx, "datasets/x/query", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}, 1)

	for i := 0; i < 6; i++ {
		_, err := c.Request(context.Background(), "datasets/x/query", nil)
		require.Error(t, err)
	}

	_, err := c.Request(context.Background(), "datasets/x/query", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(6), calls.Load())
}
