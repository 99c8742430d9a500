// Package tools defines the tool contracts served by maestro-server.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive the input schema from a Go struct.
//   - Providers: get_weather (wttr.in), web_search (Serper).
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"maestro/mcp"
)

// Handler executes a tool against its already-validated payload. The returned
// mapping becomes the call's result verbatim; a non-nil error marks an
// internal fault and is wrapped by the server, never allowed to take the
// process down.
type Handler func(ctx context.Context, input json.RawMessage) (map[string]any, error)

type ToolDefinition struct {
	Name        string
	Description string
	InputSchema mcp.ToolInputSchema
	Handler     Handler
}

// Spec returns the wire-level description advertised through tools/list.
func (d ToolDefinition) Spec() mcp.Tool {
	description := d.Description
	return mcp.Tool{
		Name:        d.Name,
		Description: &description,
		InputSchema: d.InputSchema,
	}
}

// GenerateSchema derives a tool input schema from T's fields and
// jsonschema_description tags. Fields without omitempty are required.
func GenerateSchema[T any]() mcp.ToolInputSchema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: cannot marshal schema: %v", err))
	}
	var out mcp.ToolInputSchema
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("tools: cannot convert schema: %v", err))
	}
	return out
}

// Registry returns all tool definitions wired for the server, backed by their
// default providers.
func Registry() []ToolDefinition {
	return []ToolDefinition{
		NewWeatherTool(NewWeatherProvider()),
		NewSearchTool(NewSearchProvider()),
	}
}
