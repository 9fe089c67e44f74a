package api

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/colthorp/brisket-go/internal/core"
)

// InMemoryTransport is a lightweight simulation of the GridStatus query API.
// Only implements the datasets/{id}/query endpoint, sufficient for unit
// testing cache logic.
type InMemoryTransport struct {
	rows       map[string][]map[string]interface{}
	RequestLog []RequestLogEntry
	// Err, when set, is returned from every request after it is logged.
	Err error
	mu  sync.Mutex
}

// RequestLogEntry records a request made to the transport.
type RequestLogEntry struct {
	Endpoint string
	Params   map[string]string
}

// NewInMemoryTransport creates a new in-memory transport for testing.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		rows:       make(map[string][]map[string]interface{}),
		RequestLog: make([]RequestLogEntry, 0),
	}
}

// Seed adds one or more rows to the dataset's in-memory store.
func (t *InMemoryTransport) Seed(dataset core.Dataset, rows ...map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[dataset.String()] = append(t.rows[dataset.String()], rows...)
}

// RequestsMade returns the number of requests made to this transport.
func (t *InMemoryTransport) RequestsMade() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.RequestLog)
}

// Requests returns a copy of the request log.
func (t *InMemoryTransport) Requests() []RequestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RequestLogEntry(nil), t.RequestLog...)
}

// Reset clears all stored rows and recorded requests.
func (t *InMemoryTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make(map[string][]map[string]interface{})
	t.RequestLog = make([]RequestLogEntry, 0)
	t.Err = nil
}

// Request simulates a low-level GridStatus dataset query.
func (t *InMemoryTransport) Request(_ context.Context, endpoint string, params map[string]string) (*QueryResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Track the call for assertions in unit tests
	t.RequestLog = append(t.RequestLog, RequestLogEntry{
		Endpoint: endpoint,
		Params:   maps.Clone(params),
	})

	if t.Err != nil {
		return nil, t.Err
	}

	dataset, ok := datasetFromEndpoint(endpoint)
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("unknown endpoint %s", endpoint)}
	}

	start, err := parseBound(params["start_time"])
	if err != nil {
		return nil, &APIError{StatusCode: 400, Message: err.Error()}
	}
	end, err := parseBound(params["end_time"])
	if err != nil {
		return nil, &APIError{StatusCode: 400, Message: err.Error()}
	}

	// Filter by [start_time, end_time)
	subset := make([]map[string]interface{}, 0)
	for _, row := range t.rows[dataset] {
		ts, err := core.ParseTimestamp(fmt.Sprint(row[core.SCEDTimestampColumn]))
		if err != nil {
			continue
		}
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && !ts.Before(end) {
			continue
		}
		subset = append(subset, row)
	}

	sort.SliceStable(subset, func(i, j int) bool {
		return fmt.Sprint(subset[i][core.SCEDTimestampColumn]) < fmt.Sprint(subset[j][core.SCEDTimestampColumn])
	})

	// Pagination
	pageSize := core.PageSize
	if s, ok := params["page_size"]; ok && s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			pageSize = parsed
		}
	}
	page := 1
	if p, ok := params["page"]; ok && p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	startIdx := min((page-1)*pageSize, len(subset))
	endIdx := min(startIdx+pageSize, len(subset))

	data := make([]map[string]interface{}, 0, endIdx-startIdx)
	for _, row := range subset[startIdx:endIdx] {
		data = append(data, maps.Clone(row))
	}

	return &QueryResponse{
		Data: data,
		Meta: QueryMeta{
			Page:        page,
			PageSize:    pageSize,
			HasNextPage: endIdx < len(subset),
		},
	}, nil
}

// datasetFromEndpoint extracts the dataset id from "datasets/{id}/query".
func datasetFromEndpoint(endpoint string) (string, bool) {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	if len(parts) != 3 || parts[0] != "datasets" || parts[2] != "query" {
		return "", false
	}
	return parts[1], true
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return core.ParseTimestamp(s)
}
