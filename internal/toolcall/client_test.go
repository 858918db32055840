package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shoptalk/internal/channel"
)

func rpcServer(t *testing.T, handler func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("server failed to decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("request jsonrpc = %q, expected 2.0", req.JSONRPC)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(handler(req))
	}))
}

func TestListTools(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "tools/list" {
			t.Errorf("method = %q, expected tools/list", req.Method)
		}
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"tools": []map[string]interface{}{
					{"name": "search_shop_catalog", "description": "Search the catalog", "inputSchema": map[string]interface{}{"type": "object"}},
					{"name": "update_cart", "description": "Modify the cart"},
				},
			},
		}
	})
	defer server.Close()

	client := NewClient(5 * time.Second)
	tools, err := client.ListTools(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ListTools returned error: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, expected 2", len(tools))
	}
	if tools[0].Name != "search_shop_catalog" {
		t.Errorf("tools[0].Name = %q", tools[0].Name)
	}
}

func TestCallToolConcatenatesTextBlocks(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "tools/call" {
			t.Errorf("method = %q, expected tools/call", req.Method)
		}
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"content": []map[string]interface{}{
					{"type": "text", "text": "Vanilla Candle - $12.00"},
					{"type": "image", "text": "ignored"},
					{"type": "text", "text": "Pine Candle - $14.00"},
				},
			},
		}
	})
	defer server.Close()

	client := NewClient(5 * time.Second)
	result, err := client.CallTool(context.Background(), server.URL, "search_shop_catalog", map[string]interface{}{"query": "candles"})
	if err != nil {
		t.Fatalf("CallTool returned error: %v", err)
	}
	expected := "Vanilla Candle - $12.00\nPine Candle - $14.00"
	if result.Text != expected {
		t.Errorf("result.Text = %q, expected %q", result.Text, expected)
	}
	if result.Name != "search_shop_catalog" {
		t.Errorf("result.Name = %q", result.Name)
	}
}

func TestCallToolRPCError(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "unknown tool"},
		}
	})
	defer server.Close()

	client := NewClient(5 * time.Second)
	_, err := client.CallTool(context.Background(), server.URL, "nope", nil)
	if err == nil {
		t.Fatal("expected error for rpc error response")
	}
	if !errors.Is(err, channel.ErrToolCall) {
		t.Errorf("error %v does not match ErrToolCall", err)
	}
	var tce *ToolCallError
	if !errors.As(err, &tce) {
		t.Fatalf("error %v is not a *ToolCallError", err)
	}
	if tce.Code != -32602 {
		t.Errorf("tce.Code = %d, expected -32602", tce.Code)
	}
}

func TestCallToolNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	_, err := client.CallTool(context.Background(), server.URL, "search_shop_catalog", nil)
	if !errors.Is(err, channel.ErrToolCall) {
		t.Errorf("non-2xx error %v does not match ErrToolCall", err)
	}
	if errors.Is(err, channel.ErrConnection) {
		t.Error("non-2xx response must not be classified as a connection error")
	}
}

func TestCallToolConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(2 * time.Second)
	_, err := client.CallTool(context.Background(), server.URL, "search_shop_catalog", nil)
	if !errors.Is(err, channel.ErrConnection) {
		t.Errorf("transport error %v does not match ErrConnection", err)
	}
	if errors.Is(err, channel.ErrToolCall) {
		t.Error("transport error must not be classified as a tool call error")
	}
}

func TestCallToolIsErrorResult(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"isError": true,
				"content": []map[string]interface{}{{"type": "text", "text": "catalog unavailable"}},
			},
		}
	})
	defer server.Close()

	client := NewClient(5 * time.Second)
	_, err := client.CallTool(context.Background(), server.URL, "search_shop_catalog", nil)
	if !errors.Is(err, channel.ErrToolCall) {
		t.Errorf("isError result %v does not match ErrToolCall", err)
	}
}
