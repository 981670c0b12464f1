package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// ToolHandler executes a validated tool call. Arguments have passed schema
// validation; handlers may still reject semantically invalid combinations
// with typed errors.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Formatter renders a successful handler return into result content. The
// default marshals the value as JSON.
type Formatter func(v any) []ContentItem

// Tool is one registered tool definition.
type Tool struct {
	// Name is the unique snake_case tool name.
	Name        string
	Description string
	// InputSchema is a JSON Schema document for the arguments object.
	InputSchema map[string]any
	Handler     ToolHandler
	// LongRunning marks tools that report through the progress tracker.
	LongRunning bool
	// Timeout, when non-zero, bounds the handler with a context derived from
	// the caller's: whichever fires first cancels the handler.
	Timeout time.Duration
	// Format overrides the default JSON formatter.
	Format Formatter

	compiled *jsonschema.Schema
}

// ToolInfo is the discovery shape returned by tools/list.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolRegistry holds the tool definitions. It is built once at startup and
// read-only afterwards; Execute takes no registry lock.
type ToolRegistry struct {
	tools map[string]*Tool
	order []string // registration order, for stable listings
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool, compiling its input schema. Duplicate names and
// uncompilable schemas are registration errors so misconfiguration fails at
// boot.
func (r *ToolRegistry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q is already registered", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if t.InputSchema == nil {
		t.InputSchema = ObjectSchema(map[string]any{})
	}

	compiled, err := compileSchema(t.Name, t.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: %w", t.Name, err)
	}
	t.compiled = compiled

	r.tools[t.Name] = &t
	r.order = append(r.order, t.Name)
	return nil
}

// List returns all tool schemas in registration order.
func (r *ToolRegistry) List() []ToolInfo {
	out := make([]ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

// Execute runs a tool call and always returns an envelope.
//
// Flow:
//  1. Look up the tool; unknown names return a NotFound envelope.
//  2. Validate arguments against the schema; failures never reach the handler.
//  3. Derive the per-tool timeout context when the tool declares one.
//  4. Run the handler with panic recovery.
//  5. Translate errors via the taxonomy; format successful returns.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) *ToolResult {
	start := time.Now()

	tool, ok := r.tools[name]
	if !ok {
		return errorResult(errdefs.NotFound("tool %q not found", name))
	}

	if err := validateArgs(tool.compiled, args); err != nil {
		slog.Info("Tool call rejected by validation", "tool", name, "error", err)
		return validationResult(err)
	}

	if tool.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tool.Timeout)
		defer cancel()
	}

	value, err := r.runHandler(ctx, tool, args)
	if err != nil {
		if tool.Timeout > 0 && ctx.Err() == context.DeadlineExceeded {
			err = errdefs.Timeout(fmt.Sprintf("tool %q exceeded its %s timeout", tool.Name, tool.Timeout))
		}
		slog.Warn("Tool call failed",
			"tool", name, "duration", time.Since(start), "error", err)
		return errorResult(err)
	}

	slog.Info("Tool call completed", "tool", name, "duration", time.Since(start))
	format := tool.Format
	if format == nil {
		format = JSONContent
	}
	return &ToolResult{Content: format(value)}
}

// runHandler invokes the handler, converting panics into InternalError.
func (r *ToolRegistry) runHandler(ctx context.Context, tool *Tool, args map[string]any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool handler panicked", "tool", tool.Name, "panic", rec)
			err = errdefs.Newf(errdefs.KindInternalError, "tool %q panicked: %v", tool.Name, rec)
		}
	}()
	return tool.Handler(ctx, args)
}

// validationResult renders an InvalidParameters error with its field details
// in the envelope text.
func validationResult(err error) *ToolResult {
	res := errorResult(err)
	var e *errdefs.Error
	if errors.As(err, &e) && len(e.Details) > 0 {
		text := res.Content[0].Text
		for _, d := range e.Details {
			text += fmt.Sprintf("\n  %s: %s", d.Field, d.Message)
		}
		res.Content = TextContent(text)
	}
	return res
}
