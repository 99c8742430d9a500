package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"maestro/jsonrpc"
)

// ErrNotReady means a tool call was attempted before the handshake completed.
var ErrNotReady = errors.New("mcp: session not initialized")

type sessionState int

const (
	stateUnstarted sessionState = iota
	stateInitializing
	stateReady
	stateClosed
)

// Session is one client's connection to one tool server. The handshake is
// one-shot: Unstarted -> Initializing on the initialize request, then Ready
// only once the server has answered and the initialized notification is out.
// There is no re-initialization path; a failed handshake leaves the session
// unusable.
type Session struct {
	rpc    *jsonrpc.Client
	info   Implementation
	state  sessionState
	server Implementation
	tools  []Tool
	tracer trace.Tracer
}

func NewSession(conn *jsonrpc.Connection, info Implementation, tp trace.TracerProvider) *Session {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	// Each session announces a unique client identity so server-side traces
	// can tell sessions apart.
	info.Name = fmt.Sprintf("%s-%s", info.Name, uuid.NewString()[:8])
	return &Session{
		rpc:    jsonrpc.NewClient(conn, tp),
		info:   info,
		tracer: tp.Tracer("maestro/mcp"),
	}
}

// Initialize runs the two-step handshake and then fetches the server's tool
// list. It must complete before any CallTool.
func (s *Session) Initialize(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "mcp.Initialize")
	defer span.End()

	if s.state != stateUnstarted {
		return fmt.Errorf("mcp: initialize called twice")
	}
	s.state = stateInitializing

	response, err := s.rpc.Call(ctx, MethodInitialize, InitializeRequestParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      s.info,
	})
	if err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	if response.Error != nil {
		return fmt.Errorf("server rejected initialize: %s", response.Error.Message)
	}

	var result InitializeResult
	if err := decodeResult(response.Result, &result); err != nil {
		return fmt.Errorf("malformed initialize result: %w", err)
	}
	s.server = result.ServerInfo
	span.AddEvent("handshake response received", trace.WithAttributes(
		attribute.String("server.name", result.ServerInfo.Name),
		attribute.String("protocol_version", result.ProtocolVersion)))

	if err := s.rpc.Notify(NotifyInitialized, nil); err != nil {
		return fmt.Errorf("initialized notification failed: %w", err)
	}
	s.state = stateReady

	return s.refreshTools(ctx)
}

func (s *Session) refreshTools(ctx context.Context) error {
	response, err := s.rpc.Call(ctx, MethodListTools, nil)
	if err != nil {
		return fmt.Errorf("tools/list failed: %w", err)
	}
	if response.Error != nil {
		return fmt.Errorf("tools/list rejected: %s", response.Error.Message)
	}
	var result ListToolsResult
	if err := decodeResult(response.Result, &result); err != nil {
		return fmt.Errorf("malformed tools/list result: %w", err)
	}
	// A server answering with nil tools just has none to offer.
	s.tools = result.Tools
	return nil
}

// Tools returns the tools advertised by the server during initialization.
func (s *Session) Tools() []Tool {
	return s.tools
}

// CallTool invokes a named tool with args wrapped under the "input" envelope
// key. Domain failures come back as data: a response with an error member
// becomes an {"error": ...} payload, and a dead transport becomes a
// tool-unavailable payload so the caller still has something to reason about.
// The returned error is non-nil only for a handshake violation or a protocol
// fault on the client's own side.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.CallTool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	if s.state != stateReady {
		return nil, ErrNotReady
	}

	response, err := s.rpc.Call(ctx, MethodCallTool, CallToolRequestParams{
		Name:      name,
		Arguments: map[string]any{ArgumentsKey: args},
	})
	if errors.Is(err, jsonrpc.ErrSessionClosed) {
		s.state = stateClosed
		span.AddEvent("tool server connection lost")
		return map[string]any{"error": fmt.Sprintf("tool %s unavailable: server connection lost", name)}, nil
	}
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return map[string]any{"error": response.Error.Message}, nil
	}
	return response.Result, nil
}

// ServerInfo reports the implementation the server announced during the
// handshake.
func (s *Session) ServerInfo() Implementation {
	return s.server
}

// decodeResult re-marshals an untyped result payload into its protocol type.
func decodeResult(result any, dst any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
