// Package mcp carries the subset of the Model Context Protocol spoken between
// the maestro client and its tool server: the initialize handshake, tool
// listing, and tool invocation.
package mcp

// ProtocolVersion is the protocol revision both sides speak.
const ProtocolVersion = "2024-11-05"

// ServerReadyMarker is the line the server prints on its diagnostic stream
// once it is accepting protocol traffic. Launchers watch for it.
const ServerReadyMarker = "maestro tool server ready"

// Method and notification names.
const (
	MethodInitialize  = "initialize"
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
	MethodPing        = "ping"
	NotifyInitialized = "initialized"
)

// Implementation describes the name and version of one side of the session
type Implementation struct {
	Name    string `json:"name"`    // Name of the implementation
	Version string `json:"version"` // Version of the implementation
}

// ClientCapabilities describes capabilities a client may support
type ClientCapabilities struct {
	Experimental map[string]map[string]any `json:"experimental,omitempty"` // Experimental capabilities
	Sampling     map[string]any            `json:"sampling,omitempty"`     // Present if client supports sampling from an LLM
}

// ServerCapabilities describes capabilities a server may support
type ServerCapabilities struct {
	Logging map[string]any   `json:"logging,omitempty"` // Present if server supports logging
	Tools   *ToolsCapability `json:"tools,omitempty"`   // Present if server offers tools
}

// ToolsCapability represents the tools capability settings
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"` // Whether server supports notifications for tool list changes
}

// InitializeRequestParams contains the parameters for an initialize request
type InitializeRequestParams struct {
	Capabilities    ClientCapabilities `json:"capabilities"`    // Client capabilities
	ClientInfo      Implementation     `json:"clientInfo"`      // Client implementation info
	ProtocolVersion string             `json:"protocolVersion"` // Supported protocol version
}

// InitializeResult is sent from server to client after receiving initialize request
type InitializeResult struct {
	Capabilities    ServerCapabilities `json:"capabilities"`    // Server capabilities
	ProtocolVersion string             `json:"protocolVersion"` // Protocol version to use
	ServerInfo      Implementation     `json:"serverInfo"`      // Server implementation info
}

// CallToolRequestParams contains the parameters for a tool call request.
// Arguments wraps the tool's payload under the single "input" key so every
// tool schema expects one top-level field.
type CallToolRequestParams struct {
	Arguments map[string]any `json:"arguments,omitempty"` // The arguments to pass to the tool
	Name      string         `json:"name"`                // The name of the tool to call
}

// ArgumentsKey is the synthetic envelope key wrapping every tool payload.
const ArgumentsKey = "input"

// Tool is a definition the server offers to the client
type Tool struct {
	Description *string         `json:"description,omitempty"` // Optional description
	InputSchema ToolInputSchema `json:"inputSchema"`           // JSON Schema for parameters
	Name        string          `json:"name"`                  // Tool name
}

// ToolInputSchema describes a tool's expected parameters
type ToolInputSchema struct {
	Properties map[string]map[string]any `json:"properties,omitempty"` // Parameter properties
	Required   []string                  `json:"required,omitempty"`   // Required parameters
	Type       string                    `json:"type"`                 // Must be "object"
}

// ListToolsResult is the server's response to a tools/list request
type ListToolsResult struct {
	Tools []Tool `json:"tools"` // Available tools
}
