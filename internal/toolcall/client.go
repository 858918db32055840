package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"shoptalk/internal/channel"
)

// ToolSpec describes a remote tool advertised by a merchant tool server
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolResult is the concatenated text output of a tool invocation
type ToolResult struct {
	Name string
	Text string
}

// ToolCallError means the tool server was reachable but returned an error,
// either a JSON-RPC error object or a non-2xx HTTP status. Distinct from a
// network-level connection error.
type ToolCallError struct {
	Tool    string
	Code    int
	Message string
}

func (e *ToolCallError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("tool %s failed: %s (code %d)", e.Tool, e.Message, e.Code)
	}
	return fmt.Sprintf("tool server error: %s (code %d)", e.Message, e.Code)
}

// Is makes ToolCallError match ErrToolCall for errors.Is dispatch
func (e *ToolCallError) Is(target error) bool {
	return target == channel.ErrToolCall
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type listToolsResult struct {
	Tools []ToolSpec `json:"tools"`
}

type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type callToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Client speaks the JSON-RPC 2.0 tool-call protocol against merchant tool
// servers. Every call is a single HTTP round trip with no built-in retry;
// retry policy belongs to the caller.
type Client struct {
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a tool-call client with the given per-call timeout
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListTools fetches the tool catalog from a merchant endpoint via tools/list
func (c *Client) ListTools(ctx context.Context, endpoint string) ([]ToolSpec, error) {
	raw, err := c.roundTrip(ctx, endpoint, "tools/list", nil, "")
	if err != nil {
		return nil, err
	}

	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ToolCallError{Message: "malformed tools/list result"}
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("tools_count", len(result.Tools)).
		Msg("Tool catalog fetched")

	return result.Tools, nil
}

// CallTool invokes a single tool via tools/call and concatenates the text
// blocks of the result content
func (c *Client) CallTool(ctx context.Context, endpoint, name string, args map[string]interface{}) (*ToolResult, error) {
	if args == nil {
		args = map[string]interface{}{}
	}

	raw, err := c.roundTrip(ctx, endpoint, "tools/call", callToolParams{Name: name, Arguments: args}, name)
	if err != nil {
		return nil, err
	}

	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ToolCallError{Tool: name, Message: "malformed tools/call result"}
	}

	var texts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.IsError {
		return nil, &ToolCallError{Tool: name, Message: text}
	}

	return &ToolResult{Name: name, Text: text}, nil
}

func (c *Client) roundTrip(ctx context.Context, endpoint, method string, params interface{}, tool string) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid tool endpoint %s: %w", endpoint, channel.ErrValidation)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool server unreachable: %v: %w", err, channel.ErrConnection)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool server response: %v: %w", err, channel.ErrConnection)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ToolCallError{Tool: tool, Code: resp.StatusCode, Message: fmt.Sprintf("HTTP %d from tool server", resp.StatusCode)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &ToolCallError{Tool: tool, Message: "malformed JSON-RPC response"}
	}
	if rpcResp.Error != nil {
		return nil, &ToolCallError{Tool: tool, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	return rpcResp.Result, nil
}
