// Package mcp implements the Model Context Protocol surface: JSON-RPC 2.0
// message types, the tool registry with input-schema validation, the resource
// registry with cache integration, and the method dispatcher.
package mcp

import (
	"encoding/json"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Request is a JSON-RPC 2.0 request or notification (ID absent).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"` // string, number, or nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the JSON-RPC error object. Data carries optional field-level
// validation details.
type ErrorDetail struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// JSON-RPC 2.0 standard error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MethodProgress is the notification method used to relay progress events to
// clients that supplied a progress token.
const MethodProgress = "notifications/progress"

// ProgressParams is the payload of a notifications/progress notification.
type ProgressParams struct {
	ProgressToken string  `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total"`
	Message       string  `json:"message,omitempty"`
}

// ProgressNotification builds a notifications/progress JSON-RPC notification.
func ProgressNotification(token string, progress float64, message string) *Request {
	params, _ := json.Marshal(ProgressParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         100,
		Message:       message,
	})
	return &Request{JSONRPC: "2.0", Method: MethodProgress, Params: params}
}

func newResponse(id, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id any, code int, message string, data map[string]any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorDetail{Code: code, Message: message, Data: data},
	}
}
