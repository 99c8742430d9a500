package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"maestro/jsonrpc"
	"maestro/mcp"
	"maestro/tools"
)

// Registry maps tool names to their definitions and guards every dispatch
// with schema validation, so handlers only ever see payloads shaped the way
// their input struct expects.
type Registry struct {
	defs  map[string]tools.ToolDefinition
	order []string
}

func NewRegistry(defs ...tools.ToolDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]tools.ToolDefinition, len(defs))}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(def tools.ToolDefinition) error {
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Tools lists the registered tools in registration order.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name].Spec())
	}
	return out
}

// Dispatch resolves and runs one tools/call request. Every failure mode is a
// structured error, never a crash: unknown tool, a payload that fails schema
// validation, and a handler fault all come back as jsonrpc.Error values so
// the server keeps serving subsequent requests.
func (r *Registry) Dispatch(ctx context.Context, params mcp.CallToolRequestParams) (map[string]any, *jsonrpc.Error) {
	def, ok := r.defs[params.Name]
	if !ok {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeToolNotFound,
			Message: fmt.Sprintf("tool not found: %s", params.Name),
		}
	}

	payload, ok := params.Arguments[mcp.ArgumentsKey]
	if !ok {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: fmt.Sprintf("arguments missing %q envelope", mcp.ArgumentsKey),
		}
	}

	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: fmt.Sprintf("%s payload must be an object", params.Name),
		}
	}

	if err := validateInput(def.InputSchema, fields); err != nil {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: fmt.Sprintf("invalid %s input: %v", params.Name, err),
		}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: err.Error()}
	}

	result, err := def.Handler(ctx, raw)
	if err != nil {
		// Handlers call unreliable external services; their faults become
		// structured errors rather than process failures.
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInternalError,
			Message: fmt.Sprintf("%s failed: %v", params.Name, err),
		}
	}
	return result, nil
}

// validateInput checks required fields and primitive types against the
// tool's declared schema before the handler's typed decode runs.
func validateInput(schema mcp.ToolInputSchema, fields map[string]any) error {
	for _, name := range schema.Required {
		if _, present := fields[name]; !present {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	for name, value := range fields {
		spec, known := schema.Properties[name]
		if !known {
			continue
		}
		declared, _ := spec["type"].(string)
		if declared == "" || value == nil {
			continue
		}
		if !typeMatches(declared, value) {
			return fmt.Errorf("field %q must be of type %s", name, declared)
		}
	}
	return nil
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		// encoding/json decodes every number as float64.
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}
