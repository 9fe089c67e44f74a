package api

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
	"github.com/colthorp/brisket-go/internal/logging"
)

// GridStatusAPI provides a typed convenience layer over the GridStatus REST API.
type GridStatusAPI struct {
	transport Transport
	pageSize  int
}

// NewGridStatusAPI creates a new high-level API client. pageSize <= 0 uses
// core.PageSize.
func NewGridStatusAPI(transport Transport, pageSize int) *GridStatusAPI {
	if pageSize <= 0 {
		pageSize = core.PageSize
	}
	return &GridStatusAPI{
		transport: transport,
		pageSize:  pageSize,
	}
}

// Paginate collects raw rows across paginated responses. Cursor pagination is
// preferred when the API returns one; otherwise the page number advances.
func (api *GridStatusAPI) Paginate(ctx context.Context, endpoint string, params map[string]string) ([]map[string]interface{}, error) {
	logger := logging.FromContext(ctx)

	currentParams := maps.Clone(params)
	if currentParams == nil {
		currentParams = make(map[string]string)
	}

	rows := make([]map[string]interface{}, 0)
	page := 1

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := api.transport.Request(ctx, endpoint, currentParams)
		if err != nil {
			return nil, err
		}
		rows = append(rows, resp.Data...)

		if !resp.Meta.HasNextPage || len(resp.Data) == 0 {
			break
		}

		page++
		if resp.Meta.Cursor != "" {
			currentParams["cursor"] = resp.Meta.Cursor
			delete(currentParams, "page")
		} else {
			currentParams["page"] = strconv.Itoa(page)
		}
		logger.Debug("fetching next page", "endpoint", endpoint, "page", page, "rows", len(rows))
	}

	return rows, nil
}

// FetchDataset returns every row of dataset with a timestamp in [start, end).
func (api *GridStatusAPI) FetchDataset(ctx context.Context, dataset core.Dataset, start, end time.Time) (*frame.Table, error) {
	params := map[string]string{
		"start_time": start.UTC().Format(time.RFC3339),
		"end_time":   end.UTC().Format(time.RFC3339),
		"page_size":  strconv.Itoa(api.pageSize),
		"timezone":   "UTC",
	}

	raw, err := api.Paginate(ctx, fmt.Sprintf("datasets/%s/query", dataset), params)
	if err != nil {
		return nil, err
	}

	return RowsToTable(raw, core.SCEDTimestampColumn)
}

// RowsToTable converts decoded JSON rows into a table keyed by tsCol. Rows
// whose timestamp is missing or unparseable are an error; the provider
// contract guarantees the column.
func RowsToTable(raw []map[string]interface{}, tsCol string) (*frame.Table, error) {
	table := frame.New(tsCol)

	for i, rec := range raw {
		rawTS, ok := rec[tsCol]
		if !ok {
			return nil, fmt.Errorf("row %d: %w", i, frame.ErrMissingTimestampColumn)
		}
		ts, err := core.ParseTimestamp(stringify(rawTS))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		values := make(map[string]string, len(rec)-1)
		for k, v := range rec {
			if k == tsCol {
				continue
			}
			values[k] = stringify(v)
		}
		table.Append(frame.Row{Timestamp: ts, Values: values})
	}

	return table, nil
}

// stringify renders a decoded JSON value as CSV cell text.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
