package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jg-phare/mcphub/pkg/config"
	"github.com/jg-phare/mcphub/pkg/mcp"
)

// MCPManager is the slice of the mcp.Manager surface the bridge needs.
// Calls go through it by server name on every invocation — no connection
// handle is ever cached, so a reconnect between calls is invisible here.
type MCPManager interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (json.RawMessage, error)
	Servers() map[string]config.ServerConfig
	AllTools() []mcp.ServerTool
	ToolsVersion() uint64
}

// MCPTool proxies one remote tool through the MCP manager.
type MCPTool struct {
	ServerName string
	ToolName   string
	Desc       string
	Schema     map[string]any
	Manager    MCPManager
}

func (m *MCPTool) Name() string {
	return mcp.CompositeToolName(m.ServerName, m.ToolName)
}

func (m *MCPTool) Description() string { return m.Desc }

func (m *MCPTool) InputSchema() map[string]any {
	if m.Schema != nil {
		return m.Schema
	}
	return mcp.DefaultInputSchema()
}

// Execute calls the remote tool. Remote and transport errors become
// error-flagged output for the model instead of aborting the conversation.
func (m *MCPTool) Execute(ctx context.Context, input map[string]any) (ToolOutput, error) {
	raw, err := m.Manager.CallTool(ctx, m.ServerName, m.ToolName, input)
	if err != nil {
		return ToolOutput{Content: fmt.Sprintf("Error: %s", err), IsError: true}, nil
	}

	var result mcp.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// Not the conventional content-block shape; hand back the raw JSON.
		return ToolOutput{Content: string(raw)}, nil
	}

	var b strings.Builder
	for _, block := range result.Content {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		switch block.Type {
		case "text":
			b.WriteString(block.Text)
		case "image":
			b.WriteString("[image]")
		case "resource":
			b.WriteString("[resource]")
		default:
			fmt.Fprintf(&b, "[%s]", block.Type)
		}
	}

	return ToolOutput{Content: b.String(), IsError: result.IsError}, nil
}

// toolAllowed applies a server's allow/deny patterns to a raw MCP tool name.
// Deny wins over allow; an empty allow list allows everything.
func toolAllowed(cfg config.ServerConfig, name string) bool {
	for _, pattern := range cfg.DenyTools {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return false
		}
	}
	if len(cfg.AllowTools) == 0 {
		return true
	}
	for _, pattern := range cfg.AllowTools {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// MCPRefresher mirrors the manager's tool set into a registry. The agent
// calls RefreshIfChanged once per turn; the version sum makes the no-change
// case a couple of atomic loads instead of a rebuild.
type MCPRefresher struct {
	registry *Registry
	manager  MCPManager

	mu          sync.Mutex
	seeded      bool
	lastVersion uint64
}

// NewMCPRefresher creates a refresher syncing manager's tools into registry.
func NewMCPRefresher(registry *Registry, manager MCPManager) *MCPRefresher {
	return &MCPRefresher{registry: registry, manager: manager}
}

// RefreshIfChanged rebuilds the bridged tools when the manager's tools
// version moved. Returns true when a rebuild happened. A spurious rebuild is
// harmless; a missed change is not, so the rebuild re-reads the version
// first.
func (r *MCPRefresher) RefreshIfChanged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.manager.ToolsVersion()
	if r.seeded && v == r.lastVersion {
		return false
	}
	r.refreshLocked()
	return true
}

// Refresh unconditionally rebuilds the bridged MCP tools from the manager's
// live connections, applying each server's allow/deny filters.
func (r *MCPRefresher) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshLocked()
}

func (r *MCPRefresher) refreshLocked() {
	r.lastVersion = r.manager.ToolsVersion()
	r.seeded = true

	configs := r.manager.Servers()

	r.registry.UnregisterMCPTools()
	for _, st := range r.manager.AllTools() {
		if !toolAllowed(configs[st.Server], st.Tool.Name) {
			continue
		}
		r.registry.Register(&MCPTool{
			ServerName: st.Server,
			ToolName:   st.Tool.Name,
			Desc:       st.Tool.Description,
			Schema:     st.Tool.InputSchema,
			Manager:    r.manager,
		})
	}
}
