// Package mcpserver implements the tool-server side of the protocol: a
// newline-delimited JSON-RPC loop over a pair of byte streams, with the
// initialize handshake enforced ahead of any tool call.
package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"maestro/jsonrpc"
	"maestro/mcp"
)

type serverState int

const (
	stateUninitialized serverState = iota
	stateInitializing
	stateReady
)

type Server struct {
	registry *Registry
	info     mcp.Implementation
	state    serverState
	tracer   trace.Tracer
}

func New(registry *Registry, info mcp.Implementation, tp trace.TracerProvider) *Server {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Server{
		registry: registry,
		info:     info,
		tracer:   tp.Tracer("maestro/mcpserver"),
	}
}

// incoming keeps params raw so each method decodes them into its own type.
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// maxLineBytes bounds one request line. Tool payloads can exceed the
// default scanner token cap by a wide margin.
const maxLineBytes = 4 * 1024 * 1024

// Serve reads requests from r one line at a time and writes responses to w
// until r closes. It serves exactly one client; requests are handled strictly
// in order. Serve returns nil on a clean end of stream.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}

		var request incoming
		if err := json.Unmarshal([]byte(line), &request); err != nil {
			if werr := s.respondError(w, "", jsonrpc.CodeParseError, "parse error"); werr != nil {
				return werr
			}
			continue
		}
		if err := s.handle(ctx, w, request); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, w io.Writer, request incoming) error {
	ctx, span := s.tracer.Start(ctx, "mcpserver.handle")
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", request.Method))

	switch request.Method {
	case mcp.MethodInitialize:
		if s.state != stateUninitialized {
			return s.respondError(w, request.ID, jsonrpc.CodeInvalidRequest, "already initialized")
		}
		s.state = stateInitializing
		return s.respond(w, request.ID, mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities:    mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
			ServerInfo:      s.info,
		})

	case mcp.NotifyInitialized, "notifications/initialized":
		// Ready is reachable only through initialize; a stray notification
		// carries no id to answer, so it is dropped and the gate stays shut.
		if s.state != stateInitializing {
			span.AddEvent("initialized notification out of order, ignored")
			return nil
		}
		s.state = stateReady
		span.AddEvent("handshake complete")
		return nil

	case mcp.MethodPing:
		return s.respond(w, request.ID, map[string]any{})

	case mcp.MethodListTools:
		return s.respond(w, request.ID, mcp.ListToolsResult{Tools: s.registry.Tools()})

	case mcp.MethodCallTool:
		if s.state != stateReady {
			return s.respondError(w, request.ID, jsonrpc.CodeNotInitialized, "session not initialized")
		}
		var params mcp.CallToolRequestParams
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return s.respondError(w, request.ID, jsonrpc.CodeInvalidParams, "malformed tools/call params")
		}
		span.SetAttributes(attribute.String("tool.name", params.Name))
		result, callErr := s.registry.Dispatch(ctx, params)
		if callErr != nil {
			span.AddEvent("tool call failed", trace.WithAttributes(
				attribute.Int("rpc.error_code", callErr.Code)))
			return s.writeMessage(w, jsonrpc.Message{JSONRPC: jsonrpc.Version, ID: request.ID, Error: callErr})
		}
		return s.respond(w, request.ID, result)

	default:
		// Unknown notifications are ignored; unknown requests are answered.
		if request.ID == "" {
			return nil
		}
		return s.respondError(w, request.ID, jsonrpc.CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", request.Method))
	}
}

func (s *Server) respond(w io.Writer, id string, result any) error {
	return s.writeMessage(w, jsonrpc.Message{JSONRPC: jsonrpc.Version, ID: id, Result: result})
}

func (s *Server) respondError(w io.Writer, id string, code int, message string) error {
	return s.writeMessage(w, jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   &jsonrpc.Error{Code: code, Message: message},
	})
}

func (s *Server) writeMessage(w io.Writer, message jsonrpc.Message) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
