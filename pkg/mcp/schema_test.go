package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

func TestValidateArgs(t *testing.T) {
	schema, err := compileSchema("test", ObjectSchema(map[string]any{
		"hostname": StringProp("machine hostname"),
		"count":    IntProp("how many", IntBound(1), IntBound(10)),
		"status":   EnumProp("machine status", "ready", "deployed"),
		"force":    BoolProp("skip confirmation"),
		"tags":     ArrayProp("tag names", StringProp("tag")),
	}, "hostname"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
		field   string
	}{
		{
			name: "all fields valid",
			args: map[string]any{
				"hostname": "node-1",
				"count":    3,
				"status":   "ready",
				"force":    true,
				"tags":     []any{"gpu", "fast"},
			},
		},
		{
			name:    "missing required field",
			args:    map[string]any{"count": 3},
			wantErr: true,
			field:   "/",
		},
		{
			name:    "wrong type",
			args:    map[string]any{"hostname": "n", "count": "three"},
			wantErr: true,
			field:   "/count",
		},
		{
			name:    "out of bounds",
			args:    map[string]any{"hostname": "n", "count": 99},
			wantErr: true,
			field:   "/count",
		},
		{
			name:    "not in enum",
			args:    map[string]any{"hostname": "n", "status": "broken"},
			wantErr: true,
			field:   "/status",
		},
		{
			name:    "unknown property rejected",
			args:    map[string]any{"hostname": "n", "bogus": 1},
			wantErr: true,
		},
		{
			name:    "nil args fail required",
			args:    nil,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArgs(schema, tt.args)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var e *errdefs.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, errdefs.KindInvalidParameters, e.Kind)
			require.NotEmpty(t, e.Details)
			if tt.field != "" {
				assert.Equal(t, tt.field, e.Details[0].Field)
			}
		})
	}
}

func TestObjectSchemaShape(t *testing.T) {
	s := ObjectSchema(map[string]any{"a": StringProp("x")}, "a")
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, false, s["additionalProperties"])
	assert.Equal(t, []string{"a"}, s["required"])

	noRequired := ObjectSchema(map[string]any{})
	_, ok := noRequired["required"]
	assert.False(t, ok)
}
