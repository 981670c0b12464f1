package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// ContentItem is one block of tool-result content. Only text content is
// produced by this server.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the uniform tool-call envelope. Errors are returned as
// content with IsError set, not as JSON-RPC errors (MCP convention).
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextContent wraps a string as a single-item content list.
func TextContent(text string) []ContentItem {
	return []ContentItem{{Type: "text", Text: text}}
}

// JSONContent marshals v as indented JSON into a single text content item.
func JSONContent(v any) []ContentItem {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return TextContent(fmt.Sprintf("%v", v))
	}
	return TextContent(string(data))
}

// errorResult translates a handler error into the "<kind>: <message>"
// envelope.
func errorResult(err error) *ToolResult {
	kind := errdefs.KindOf(err)
	msg := err.Error()
	var e *errdefs.Error
	if errors.As(err, &e) {
		// The typed message already identifies the failure; the wrapped
		// cause chain stays in the logs.
		msg = e.Message
	}
	return &ToolResult{
		Content: TextContent(fmt.Sprintf("%s: %s", kind, msg)),
		IsError: true,
	}
}
