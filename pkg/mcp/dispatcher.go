package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// progressTokenKey carries the tools/call _meta.progressToken through the
// handler context.
type progressTokenKey struct{}

// WithProgressToken attaches a client-supplied progress token to the context.
func WithProgressToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, progressTokenKey{}, token)
}

// ProgressTokenFrom returns the progress token attached to the context, if any.
func ProgressTokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(progressTokenKey{}).(string)
	return token, ok && token != ""
}

// Dispatcher routes JSON-RPC requests to the tool and resource registries.
type Dispatcher struct {
	tools     *ToolRegistry
	resources *ResourceRegistry
	name      string
	version   string
}

// NewDispatcher wires the registries behind the MCP method surface. name and
// version are reported by initialize.
func NewDispatcher(tools *ToolRegistry, resources *ResourceRegistry, name, version string) *Dispatcher {
	return &Dispatcher{tools: tools, resources: resources, name: name, version: version}
}

// callParams is the tools/call parameter shape.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Meta      struct {
		ProgressToken any `json:"progressToken"`
	} `json:"_meta"`
}

// readParams is the resources/read parameter shape.
type readParams struct {
	URI string `json:"uri"`
}

// ResourceContents is one entry of a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Dispatch handles one JSON-RPC request. The returned header carries cache
// metadata for resource reads; it is nil otherwise. A nil response means the
// request was a notification and produced no reply.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, http.Header) {
	if req.JSONRPC != "2.0" {
		return newErrorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"", nil), nil
	}
	if req.Method == "" {
		return newErrorResponse(req.ID, CodeInvalidRequest, "method is required", nil), nil
	}
	if req.IsNotification() {
		// Client-side notifications (e.g. notifications/initialized) are
		// accepted and ignored.
		slog.Debug("Ignoring notification", "method", req.Method)
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return newResponse(req.ID, d.initializeResult()), nil
	case "tools/list":
		return newResponse(req.ID, map[string]any{"tools": d.tools.List()}), nil
	case "resources/list":
		return newResponse(req.ID, map[string]any{"resources": d.resources.List()}), nil
	case "tools/call":
		return d.dispatchToolCall(ctx, req), nil
	case "resources/read":
		return d.dispatchResourceRead(ctx, req)
	default:
		return newErrorResponse(req.ID, CodeMethodNotFound,
			fmt.Sprintf("method %q not found", req.Method), nil), nil
	}
}

func (d *Dispatcher) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    d.name,
			"version": d.version,
		},
	}
}

func (d *Dispatcher) dispatchToolCall(ctx context.Context, req *Request) *Response {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, CodeInvalidParams, "invalid tools/call params", nil)
	}
	if params.Name == "" {
		return newErrorResponse(req.ID, CodeInvalidParams, "tool name is required", nil)
	}
	if token := progressTokenString(params.Meta.ProgressToken); token != "" {
		ctx = WithProgressToken(ctx, token)
	}
	return newResponse(req.ID, d.tools.Execute(ctx, params.Name, params.Arguments))
}

func (d *Dispatcher) dispatchResourceRead(ctx context.Context, req *Request) (*Response, http.Header) {
	var params readParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, CodeInvalidParams, "invalid resources/read params", nil), nil
	}
	if params.URI == "" {
		return newErrorResponse(req.ID, CodeInvalidParams, "resource uri is required", nil), nil
	}

	read, err := d.resources.Read(ctx, params.URI)
	if err != nil {
		return resourceErrorResponse(req.ID, err), nil
	}

	text, err := json.MarshalIndent(read.Value, "", "  ")
	if err != nil {
		return resourceErrorResponse(req.ID, errdefs.Internal("encode resource value", err)), nil
	}

	header := http.Header{}
	if read.CacheControl != "" {
		header.Set("Cache-Control", read.CacheControl)
	}
	if age := int(read.Age / time.Second); read.CacheHit && age > 0 {
		header.Set("Age", strconv.Itoa(age))
	}

	result := map[string]any{
		"contents": []ResourceContents{{
			URI:      read.URI,
			MimeType: "application/json",
			Text:     string(text),
		}},
	}
	return newResponse(req.ID, result), header
}

// resourceErrorResponse maps a typed error to a JSON-RPC error with the
// taxonomy status as its code and field details in data.
func resourceErrorResponse(id any, err error) *Response {
	var data map[string]any
	message := err.Error()
	var e *errdefs.Error
	if errors.As(err, &e) {
		message = fmt.Sprintf("%s: %s", e.Kind, e.Message)
		if len(e.Details) > 0 {
			data = map[string]any{"details": e.Details}
		}
	}
	return newErrorResponse(id, errdefs.HTTPStatus(err), message, data)
}

// progressTokenString normalizes a progress token, which JSON-RPC allows to
// be a string or a number.
func progressTokenString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
