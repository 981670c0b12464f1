package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// Schema helpers used by tool definitions. Input schemas are plain JSON
// Schema documents; these builders only cover the shapes the tool set needs.

// ObjectSchema builds an object schema with the given properties and
// required field names. additionalProperties is false: unknown arguments are
// a validation failure, not silent noise.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// StringProp describes a string field.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// EnumProp describes a string field restricted to the given values.
func EnumProp(description string, values ...string) map[string]any {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]any{"type": "string", "description": description, "enum": enum}
}

// IntProp describes an integer field with inclusive bounds. Pass nil to
// leave a bound open.
func IntProp(description string, minimum, maximum *int) map[string]any {
	p := map[string]any{"type": "integer", "description": description}
	if minimum != nil {
		p["minimum"] = *minimum
	}
	if maximum != nil {
		p["maximum"] = *maximum
	}
	return p
}

// BoolProp describes a boolean field.
func BoolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

// ArrayProp describes an array field with the given item schema.
func ArrayProp(description string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": description, "items": items}
}

// IntBound is a convenience for IntProp bounds.
func IntBound(v int) *int { return &v }

// compileSchema compiles a schema document for validation. The document is
// round-tripped through JSON so builder-produced Go values (ints, nested
// maps) become canonical JSON types before compilation.
func compileSchema(name string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateArgs checks raw arguments against a compiled schema. Arguments are
// round-tripped through JSON so callers may pass native Go values. Returns
// an InvalidParameters error carrying one FieldError per leaf violation.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errdefs.Wrap(errdefs.KindInvalidParameters, "arguments are not JSON-encodable", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return errdefs.Wrap(errdefs.KindInvalidParameters, "arguments are not valid JSON", err)
	}

	if err := schema.Validate(instance); err != nil {
		var valErr *jsonschema.ValidationError
		if errors.As(err, &valErr) {
			details := flattenValidationError(valErr)
			return errdefs.InvalidParameters("input validation failed", details...)
		}
		return errdefs.Wrap(errdefs.KindInvalidParameters, "input validation failed", err)
	}
	return nil
}

// flattenValidationError collects the leaf causes of a validation error as
// field-level details.
func flattenValidationError(e *jsonschema.ValidationError) []errdefs.FieldError {
	if len(e.Causes) == 0 {
		return []errdefs.FieldError{{
			Field:   "/" + strings.Join(e.InstanceLocation, "/"),
			Message: e.Error(),
		}}
	}
	var out []errdefs.FieldError
	for _, cause := range e.Causes {
		out = append(out, flattenValidationError(cause)...)
	}
	return out
}
