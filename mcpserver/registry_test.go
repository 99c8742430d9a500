package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/jsonrpc"
	"maestro/mcp"
	"maestro/tools"
)

type echoInput struct {
	Text  string `json:"text" jsonschema_description:"Text to echo back."`
	Count int    `json:"count,omitempty" jsonschema_description:"Optional repeat count."`
}

func echoTool() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "echo",
		Description: "Echo text back.",
		InputSchema: tools.GenerateSchema[echoInput](),
		Handler: func(_ context.Context, input json.RawMessage) (map[string]any, error) {
			var in echoInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, err
			}
			return map[string]any{"echo": in.Text}, nil
		},
	}
}

func faultyTool() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "faulty",
		Description: "Always fails.",
		InputSchema: tools.GenerateSchema[struct{}](),
		Handler: func(_ context.Context, _ json.RawMessage) (map[string]any, error) {
			return nil, errors.New("provider exploded")
		},
	}
}

func callParams(name string, payload any) mcp.CallToolRequestParams {
	return mcp.CallToolRequestParams{
		Name:      name,
		Arguments: map[string]any{mcp.ArgumentsKey: payload},
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry, err := NewRegistry(echoTool())
	require.NoError(t, err)
	assert.Error(t, registry.Register(echoTool()))
}

func TestDispatchSuccess(t *testing.T) {
	registry, err := NewRegistry(echoTool())
	require.NoError(t, err)

	result, callErr := registry.Dispatch(context.Background(), callParams("echo", map[string]any{"text": "hello"}))
	require.Nil(t, callErr)
	assert.Equal(t, map[string]any{"echo": "hello"}, result)
}

func TestDispatchIsIdempotent(t *testing.T) {
	registry, err := NewRegistry(echoTool())
	require.NoError(t, err)
	params := callParams("echo", map[string]any{"text": "again"})

	first, callErr := registry.Dispatch(context.Background(), params)
	require.Nil(t, callErr)
	second, callErr := registry.Dispatch(context.Background(), params)
	require.Nil(t, callErr)
	assert.Equal(t, first, second)
}

func TestDispatchToolNotFound(t *testing.T) {
	registry, err := NewRegistry(echoTool())
	require.NoError(t, err)

	_, callErr := registry.Dispatch(context.Background(), callParams("nope", map[string]any{}))
	require.NotNil(t, callErr)
	assert.Equal(t, jsonrpc.CodeToolNotFound, callErr.Code)
}

func TestDispatchValidation(t *testing.T) {
	registry, err := NewRegistry(echoTool())
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload any
	}{
		{"missing required field", map[string]any{"count": float64(2)}},
		{"wrong field type", map[string]any{"text": float64(42)}},
		{"payload not an object", "just a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, callErr := registry.Dispatch(context.Background(), callParams("echo", tt.payload))
			require.NotNil(t, callErr)
			assert.Equal(t, jsonrpc.CodeInvalidParams, callErr.Code)
		})
	}
}

func TestDispatchMissingEnvelope(t *testing.T) {
	registry, err := NewRegistry(echoTool())
	require.NoError(t, err)

	_, callErr := registry.Dispatch(context.Background(), mcp.CallToolRequestParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "not wrapped"},
	})
	require.NotNil(t, callErr)
	assert.Equal(t, jsonrpc.CodeInvalidParams, callErr.Code)
}

func TestDispatchHandlerFaultBecomesStructuredError(t *testing.T) {
	registry, err := NewRegistry(echoTool(), faultyTool())
	require.NoError(t, err)

	_, callErr := registry.Dispatch(context.Background(), callParams("faulty", map[string]any{}))
	require.NotNil(t, callErr)
	assert.Equal(t, jsonrpc.CodeInternalError, callErr.Code)
	assert.Contains(t, callErr.Message, "provider exploded")

	// The registry keeps dispatching after a handler fault.
	result, callErr := registry.Dispatch(context.Background(), callParams("echo", map[string]any{"text": "still here"}))
	require.Nil(t, callErr)
	assert.Equal(t, "still here", result["echo"])
}

func TestToolsListedInRegistrationOrder(t *testing.T) {
	registry, err := NewRegistry(echoTool(), faultyTool())
	require.NoError(t, err)

	listed := registry.Tools()
	require.Len(t, listed, 2)
	assert.Equal(t, "echo", listed[0].Name)
	assert.Equal(t, "faulty", listed[1].Name)
	assert.Contains(t, listed[0].InputSchema.Required, "text")
	assert.NotContains(t, listed[0].InputSchema.Required, "count")
}
