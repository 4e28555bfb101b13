// Package tools is the agent-facing tool registry. Native tools and bridged
// MCP tools share one flat namespace; MCP entries are namespaced by their
// composite "mcp_{server}_{tool}" names.
package tools

import "context"

// Tool is a named, schema-described callable the agent can invoke.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input map[string]any) (ToolOutput, error)
}

// ToolOutput is the result of a tool execution. IsError flags a failed call
// whose message should go back to the model rather than abort the turn.
type ToolOutput struct {
	Content string
	IsError bool
}
