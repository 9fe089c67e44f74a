// Package api provides the HTTP client and types for the GridStatus API.
package api

import "context"

// QueryMeta contains pagination metadata for dataset query responses.
type QueryMeta struct {
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
	HasNextPage bool   `json:"hasNextPage"`
	Cursor      string `json:"cursor,omitempty"`
}

// QueryResponse represents one page of a dataset query.
//
// Data rows are decoded with json.Number so numeric columns keep the exact
// text the API sent.
type QueryResponse struct {
	Data []map[string]interface{} `json:"data"`
	Meta QueryMeta                `json:"meta"`
}

// Transport is the interface for making API requests.
type Transport interface {
	Request(ctx context.Context, endpoint string, params map[string]string) (*QueryResponse, error)
}
