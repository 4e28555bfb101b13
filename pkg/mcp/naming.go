package mcp

import (
	"fmt"
	"sort"
	"strings"
)

// compositePrefix namespaces MCP tools in the agent's flat tool registry so
// they cannot collide with native tools.
const compositePrefix = "mcp_"

// CompositeToolName builds the external name for a server's tool:
// "mcp_{server}_{tool}".
func CompositeToolName(server, tool string) string {
	return compositePrefix + server + "_" + tool
}

// splitCompositeToolName decomposes a composite name against a set of known
// server names by stripping the "mcp_{server}_" prefix. Tool names may
// themselves contain underscores, so splitting on "_" would be wrong; only a
// known server name can anchor the split. Longer server names are tried first
// so "my_srv" wins over "my".
func splitCompositeToolName(name string, servers []string) (server, tool string, ok bool) {
	rest, found := strings.CutPrefix(name, compositePrefix)
	if !found {
		return "", "", false
	}

	sorted := make([]string, len(servers))
	copy(sorted, servers)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	for _, srv := range sorted {
		if t, found := strings.CutPrefix(rest, srv+"_"); found && t != "" {
			return srv, t, true
		}
	}
	return "", "", false
}

// ResolveToolName decomposes a composite tool name against the currently
// connected servers.
func (m *Manager) ResolveToolName(name string) (server, tool string, err error) {
	m.mu.RLock()
	servers := make([]string, 0, len(m.conns))
	for n := range m.conns {
		servers = append(servers, n)
	}
	m.mu.RUnlock()

	server, tool, ok := splitCompositeToolName(name, servers)
	if !ok {
		return "", "", fmt.Errorf("tool %q does not belong to any connected server", name)
	}
	return server, tool, nil
}
