package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/colthorp/brisket-go/internal/cache"
	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/logging"
	"github.com/colthorp/brisket-go/internal/observability"
	"github.com/colthorp/brisket-go/internal/output"
)

// defaultMaxRows caps query_dataset results unless the caller asks for more.
const defaultMaxRows = 500

func init() {
	mcpCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

// mcpCmd starts the MCP server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI integration",
	Args:  cobra.NoArgs,
	RunE:  handleMCP,
}

func handleMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		observability.StartMetricsServer(addr, logging.FromContext(ctx))
	}

	srv := &mcpServer{
		ctx: ctx,
		out: cmd.OutOrStdout(),
		loc: appConfig.Location(),
		now: time.Now,
		open: func(cacheOnly bool) (*cache.Manager, func() error, error) {
			return openManager(appConfig, cacheOnly)
		},
	}
	return srv.serve(os.Stdin)
}

// MCP Protocol types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPInitializeResult struct {
	ProtocolVersion string        `json:"protocolVersion"`
	ServerInfo      MCPServerInfo `json:"serverInfo"`
	Capabilities    interface{}   `json:"capabilities"`
}

// QueryDatasetParams are the parameters for the query_dataset tool
type QueryDatasetParams struct {
	Dataset   string `json:"dataset"`
	Start     string `json:"start"`
	End       string `json:"end"`
	CacheOnly bool   `json:"cache_only"`
	MaxRows   int    `json:"max_rows"`
}

// CacheStatusParams are the parameters for the cache_status tool
type CacheStatusParams struct {
	Dataset string `json:"dataset"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// mcpServer answers JSON-RPC requests read line by line.
type mcpServer struct {
	ctx  context.Context
	out  io.Writer
	loc  *time.Location
	now  func() time.Time
	open func(cacheOnly bool) (*cache.Manager, func() error, error)
}

// serve reads requests from r until EOF.
func (s *mcpServer) serve(r io.Reader) error {
	logger := logging.FromContext(s.ctx)
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large messages
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			// For parse errors, we can't know the ID, so we log to stderr
			// but don't send a response (which would have id: null and confuse clients)
			logger.Warn("MCP parse error", "err", err)
			continue
		}

		s.handleRequest(&req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

func (s *mcpServer) handleRequest(req *MCPRequest) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notifications don't get responses - silently ignore
		return
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(req)
	default:
		// Notifications (no ID) should be silently ignored per JSON-RPC
		if req.ID != nil {
			s.sendError(req.ID, -32601, "Method not found", req.Method)
		}
	}
}

func (s *mcpServer) handleInitialize(req *MCPRequest) {
	result := MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo: MCPServerInfo{
			Name:    "brisket",
			Version: core.Version,
		},
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
	}
	s.sendResponse(req.ID, result)
}

func rangeSchema() map[string]interface{} {
	return map[string]interface{}{
		"dataset": map[string]interface{}{
			"type":        "string",
			"description": "GridStatus dataset identifier",
			"enum":        datasetNames(),
		},
		"start": map[string]interface{}{
			"type":        "string",
			"description": "Range start: RFC3339, YYYY-MM-DD [HH:MM[:SS]] in " + core.DefaultTZ + ", or relative (h-6, d-1)",
		},
		"end": map[string]interface{}{
			"type":        "string",
			"description": "Exclusive range end, same formats as start",
			"default":     "now",
		},
	}
}

func (s *mcpServer) handleToolsList(req *MCPRequest) {
	queryProps := rangeSchema()
	queryProps["cache_only"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Serve cached rows only; never call GridStatus",
		"default":     false,
	}
	queryProps["max_rows"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum rows to return",
		"default":     defaultMaxRows,
	}

	tools := []MCPToolInfo{
		{
			Name:        "query_dataset",
			Description: "Fetch ERCOT SCED rows for a dataset and time range.\n\nCached 5-minute snapshots are served locally; missing intervals are fetched from GridStatus and cached.\n\nReturns:\n    Dictionary with the aligned range, column names, and rows",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": queryProps,
				"required":   []string{"dataset", "start"},
			},
		},
		{
			Name:        "cache_status",
			Description: "Report which 5-minute intervals of a dataset are cached for a time range, without calling GridStatus.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": rangeSchema(),
				"required":   []string{"dataset", "start"},
			},
		},
	}

	s.sendResponse(req.ID, map[string]interface{}{"tools": tools})
}

func (s *mcpServer) handleToolsCall(req *MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	switch params.Name {
	case "query_dataset":
		s.handleQueryDataset(req.ID, params.Arguments)
	case "cache_status":
		s.handleCacheStatus(req.ID, params.Arguments)
	default:
		s.sendError(req.ID, -32602, "Unknown tool", params.Name)
	}
}

func (s *mcpServer) handleQueryDataset(id interface{}, argsJSON json.RawMessage) {
	var args QueryDatasetParams
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}
	if args.MaxRows <= 0 {
		args.MaxRows = defaultMaxRows
	}

	dataset, err := core.ParseDataset(args.Dataset)
	if err != nil {
		s.sendToolResult(id, map[string]interface{}{
			"error":          err.Error(),
			"valid_datasets": datasetNames(),
		})
		return
	}
	requested, err := parseRange(args.Start, args.End, s.loc, s.now())
	if err != nil {
		s.sendToolResult(id, map[string]interface{}{
			"error": err.Error(),
			"start": args.Start,
			"end":   args.End,
		})
		return
	}

	m, closeFn, err := s.open(args.CacheOnly)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	defer closeFn()

	rows, err := m.Get(s.ctx, dataset, requested.Start, requested.End)
	if err != nil {
		s.sendToolError(id, fmt.Sprintf("Failed to query %s: %v", dataset, err))
		return
	}

	records := output.Records(rows)
	truncated := len(records) > args.MaxRows
	if truncated {
		records = records[:args.MaxRows]
	}

	s.sendToolResult(id, map[string]interface{}{
		"dataset":    dataset.String(),
		"start":      core.FormatSnapshotKey(requested.Start),
		"end":        core.FormatSnapshotKey(requested.End),
		"columns":    append([]string{rows.TimestampColumn}, rows.Columns...),
		"rows_count": rows.Len(),
		"truncated":  truncated,
		"rows":       records,
	})
}

func (s *mcpServer) handleCacheStatus(id interface{}, argsJSON json.RawMessage) {
	var args CacheStatusParams
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}

	dataset, err := core.ParseDataset(args.Dataset)
	if err != nil {
		s.sendToolResult(id, map[string]interface{}{
			"error":          err.Error(),
			"valid_datasets": datasetNames(),
		})
		return
	}
	requested, err := parseRange(args.Start, args.End, s.loc, s.now())
	if err != nil {
		s.sendToolResult(id, map[string]interface{}{
			"error": err.Error(),
			"start": args.Start,
			"end":   args.End,
		})
		return
	}

	m, closeFn, err := s.open(true)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	defer closeFn()

	cov, err := m.Status(s.ctx, dataset, requested.Start, requested.End)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	s.sendToolResult(id, newStatusReport(cov))
}

func (s *mcpServer) sendResponse(id interface{}, result interface{}) {
	s.write(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *mcpServer) sendError(id interface{}, code int, message, data string) {
	s.write(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *mcpServer) write(resp MCPResponse) {
	data, _ := json.Marshal(resp)
	fmt.Fprintln(s.out, string(data))
}

func (s *mcpServer) sendToolResult(id interface{}, result interface{}) {
	s.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": mustMarshal(result),
			},
		},
	})
}

func (s *mcpServer) sendToolError(id interface{}, message string) {
	s.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": message,
			},
		},
		"isError": true,
	})
}

func mustMarshal(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
