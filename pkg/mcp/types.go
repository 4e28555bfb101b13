package mcp

import "encoding/json"

// protocolVersion is the MCP protocol version advertised during initialization.
const protocolVersion = "2024-11-05"

// MCP method constants.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
)

// ConnectionStatus represents the state of an MCP server connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusInitializing ConnectionStatus = "initializing"
	StatusReady        ConnectionStatus = "ready"
)

// ServerInfo is returned by the server during the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies the client implementation.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsCapability indicates tool support and whether the server pushes
// tools/list_changed notifications.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities declares what the client supports (sent during initialize).
type ClientCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ServerCapabilities declares what the server supports (returned during initialize).
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// InitializeParams is sent by the client to begin the initialize handshake.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
}

// InitializeResult is returned by the server from the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// Tool describes a tool exposed by an MCP server. InputSchema is always a
// non-nil JSON object; entries arriving with a null or unparseable schema get
// DefaultInputSchema instead.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// DefaultInputSchema returns the empty-object schema substituted for tools
// that arrive without a usable one.
func DefaultInputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []any{},
	}
}

// toolWire is the tools/list entry as it appears on the wire. Servers disagree
// on the schema key casing, so both are accepted.
type toolWire struct {
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	InputSchema      json.RawMessage `json:"inputSchema,omitempty"`
	InputSchemaSnake json.RawMessage `json:"input_schema,omitempty"`
}

// parseTool converts one raw tools/list entry into a Tool. A null or
// malformed schema falls back to DefaultInputSchema; an entry whose strict
// parse fails is salvaged field by field; only an entry with no usable name is
// dropped (ok=false).
func parseTool(raw json.RawMessage) (Tool, bool) {
	var w toolWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return salvageTool(raw)
	}
	if w.Name == "" {
		return Tool{}, false
	}

	schemaRaw := w.InputSchema
	if len(schemaRaw) == 0 {
		schemaRaw = w.InputSchemaSnake
	}

	// A JSON null leaves the map nil, a non-object fails to unmarshal; both
	// fall back to the default schema.
	var schema map[string]any
	if len(schemaRaw) > 0 {
		if err := json.Unmarshal(schemaRaw, &schema); err != nil {
			schema = nil
		}
	}
	if schema == nil {
		schema = DefaultInputSchema()
	}

	return Tool{
		Name:        w.Name,
		Description: w.Description,
		InputSchema: schema,
	}, true
}

// salvageTool recovers what it can from an entry whose strict parse failed,
// usually because a field carries the wrong JSON type. Whatever name,
// description, and object schema decode individually survive; without a name
// there is nothing to register, so the entry is dropped.
func salvageTool(raw json.RawMessage) (Tool, bool) {
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return Tool{}, false
	}

	var name string
	if err := json.Unmarshal(loose["name"], &name); err != nil || name == "" {
		return Tool{}, false
	}

	tool := Tool{Name: name, InputSchema: DefaultInputSchema()}

	var desc string
	if json.Unmarshal(loose["description"], &desc) == nil {
		tool.Description = desc
	}

	schemaRaw := loose["inputSchema"]
	if len(schemaRaw) == 0 {
		schemaRaw = loose["input_schema"]
	}
	var schema map[string]any
	if json.Unmarshal(schemaRaw, &schema) == nil && schema != nil {
		tool.InputSchema = schema
	}
	return tool, true
}

// toolsListWire is the response from tools/list with entries kept raw so each
// one can be parsed (and fall back) independently.
type toolsListWire struct {
	Tools []json.RawMessage `json:"tools"`
}

// ToolCallParams is the request body for tools/call.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the conventional shape of a tools/call result. Connection
// returns results opaque; consumers that want the content blocks decode into
// this.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is a single content item in an MCP tool result.
type ContentBlock struct {
	Type     string `json:"type"` // "text", "image", "resource"
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // base64 for images
	URI      string `json:"uri,omitempty"`  // for embedded resources
}

// ServerStatus is an external view of a server connection's state.
type ServerStatus struct {
	Name       string           `json:"name"`
	Status     ConnectionStatus `json:"status"`
	ServerInfo *ServerInfo      `json:"serverInfo,omitempty"`
	Tools      []Tool           `json:"tools,omitempty"`
	Version    uint64           `json:"toolsVersion"`
}

// ServerTool pairs a tool with the server it came from.
type ServerTool struct {
	Server string `json:"server"`
	Tool   Tool   `json:"tool"`
}

// ConnectSummary reports the outcome of ConnectAllEnabled.
type ConnectSummary struct {
	Connected []string          `json:"connected,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
	Skipped   []string          `json:"skipped,omitempty"`
}
