package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jg-phare/mcphub/pkg/config"
)

// connectAllTimeout bounds each individual attempt in ConnectAllEnabled.
const connectAllTimeout = 10 * time.Second

// ConfigStore is the persistence collaborator: the Manager writes the server
// map through on every config mutation.
type ConfigStore interface {
	SaveServers(map[string]config.ServerConfig) error
}

// Manager owns the persisted server configs (survive disconnects) and the
// live connections (exist only while connected). At most one live connection
// per name; replacing one always tears the predecessor down fully.
//
// Consumers never hold a Connection across turns: they re-resolve by name
// through the Manager, so a reconnect can never leave a stale handle
// reachable.
type Manager struct {
	store ConfigStore
	log   zerolog.Logger

	// dialer creates the connection for a config; tests swap it for one
	// backed by an in-memory transport.
	dialer func(ctx context.Context, name string, cfg config.ServerConfig) (*Connection, error)

	mu      sync.RWMutex
	configs map[string]config.ServerConfig
	conns   map[string]*Connection
}

// NewManager creates a Manager seeded with the persisted server configs.
func NewManager(store ConfigStore, servers map[string]config.ServerConfig, log zerolog.Logger) *Manager {
	configs := make(map[string]config.ServerConfig, len(servers))
	for k, v := range servers {
		configs[k] = v
	}
	m := &Manager{
		store:   store,
		log:     log,
		configs: configs,
		conns:   make(map[string]*Connection),
	}
	m.dialer = m.dial
	return m
}

// Servers returns a copy of the configured server map.
func (m *Manager) Servers() map[string]config.ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]config.ServerConfig, len(m.configs))
	for k, v := range m.configs {
		out[k] = v
	}
	return out
}

// AddServer registers a new server config and persists it. It does not
// connect; adding is a config edit, connecting is explicit.
func (m *Manager) AddServer(name string, cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %q: %w", name, err)
	}

	m.mu.Lock()
	if _, exists := m.configs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("server %q already exists", name)
	}
	m.configs[name] = cfg
	m.mu.Unlock()

	return m.persist()
}

// RemoveServer disconnects the server if live, drops its config, and
// persists.
func (m *Manager) RemoveServer(name string) error {
	m.mu.Lock()
	if _, exists := m.configs[name]; !exists {
		m.mu.Unlock()
		return fmt.Errorf("unknown server %q", name)
	}
	delete(m.configs, name)
	conn := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	return m.persist()
}

// UpsertServer writes the config (insert or replace), persists it, and makes
// the edit take effect immediately: any live connection is torn down and, if
// the config is enabled, re-established.
func (m *Manager) UpsertServer(ctx context.Context, name string, cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %q: %w", name, err)
	}

	m.mu.Lock()
	m.configs[name] = cfg
	conn := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}

	if err := m.persist(); err != nil {
		return err
	}

	if !cfg.Enabled {
		return nil
	}
	return m.ConnectServer(ctx, name)
}

// ConnectServer establishes a live connection for a configured, enabled
// server. Any prior live connection for the name is fully torn down first.
func (m *Manager) ConnectServer(ctx context.Context, name string) error {
	m.mu.Lock()
	cfg, ok := m.configs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown server %q", name)
	}
	if !cfg.Enabled {
		m.mu.Unlock()
		return fmt.Errorf("server %q is disabled", name)
	}
	old := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}

	conn, err := m.dialer(ctx, name, cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	// A concurrent connect for the same name may have won the race; the
	// one-connection-per-name invariant wins over ours.
	raced := m.conns[name]
	m.conns[name] = conn
	m.mu.Unlock()

	if raced != nil {
		raced.Disconnect()
	}
	return nil
}

// dial picks the transport from the config shape: command → stdio subprocess,
// ws/wss url → WebSocket, any other url → streamable HTTP.
func (m *Manager) dial(ctx context.Context, name string, cfg config.ServerConfig) (*Connection, error) {
	switch {
	case cfg.Command != "":
		return ConnectStdio(ctx, name, cfg.Command, cfg.Args, cfg.Env, m.log)
	case strings.HasPrefix(cfg.URL, "ws://"), strings.HasPrefix(cfg.URL, "wss://"):
		return ConnectWebSocket(ctx, name, cfg.URL, cfg.Headers, m.log)
	case cfg.URL != "":
		return ConnectHTTP(ctx, name, cfg.URL, cfg.Headers, m.log)
	default:
		return nil, fmt.Errorf("server %q has neither command nor url", name)
	}
}

// DisconnectServer tears down the live connection for name. Disconnecting a
// configured-but-not-connected server is a no-op; an unknown name is an
// error.
func (m *Manager) DisconnectServer(name string) error {
	m.mu.Lock()
	_, configured := m.configs[name]
	conn := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()

	if conn == nil && !configured {
		return fmt.Errorf("unknown server %q", name)
	}
	if conn != nil {
		conn.Disconnect()
	}
	return nil
}

// ReconnectServer is always disconnect-then-connect from scratch; there is no
// distinct reconnecting state.
func (m *Manager) ReconnectServer(ctx context.Context, name string) error {
	if err := m.DisconnectServer(name); err != nil {
		return err
	}
	return m.ConnectServer(ctx, name)
}

// DisconnectAll tears down every live connection. Configs stay.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
}

// ConnectAllEnabled attempts to connect every enabled server, each under its
// own timeout. Failures are independent: one bad server never aborts the
// rest. Returns a best-effort summary.
func (m *Manager) ConnectAllEnabled(ctx context.Context) ConnectSummary {
	summary := ConnectSummary{Failed: make(map[string]string)}

	for name, cfg := range m.Servers() {
		if !cfg.Enabled {
			summary.Skipped = append(summary.Skipped, name)
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, connectAllTimeout)
		err := m.ConnectServer(attemptCtx, name)
		cancel()

		if err != nil {
			summary.Failed[name] = err.Error()
			m.log.Warn().
				Str("server", name).
				Err(err).
				Str("hint", connectHint(err)).
				Msg("server connect failed")
			continue
		}
		summary.Connected = append(summary.Connected, name)
	}

	sort.Strings(summary.Connected)
	sort.Strings(summary.Skipped)

	m.log.Info().
		Int("connected", len(summary.Connected)).
		Int("failed", len(summary.Failed)).
		Int("skipped", len(summary.Skipped)).
		Msg("connect all enabled servers finished")
	return summary
}

// connectHint maps a connect failure to a remediation hint for the log line.
func connectHint(err error) string {
	var transportErr *TransportError
	var timeoutErr *TimeoutError
	var protoErr *ProtocolError

	switch {
	case errors.As(err, &transportErr) && transportErr.Op == "spawn":
		return "check that the command is installed and on PATH"
	case errors.As(err, &transportErr) && transportErr.Op == "dial":
		return "check that the server URL is reachable"
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return "server did not respond in time; it may be hung or not speaking MCP"
	case errors.As(err, &protoErr):
		return "server sent an invalid MCP payload; check its version"
	default:
		return "inspect the server's own logs"
	}
}

// Sync reconciles the live state against a freshly loaded config map: removed
// servers are disconnected, added or changed ones are upserted, unchanged
// entries are left alone so a file save does not storm every connection.
func (m *Manager) Sync(ctx context.Context, servers map[string]config.ServerConfig) {
	current := m.Servers()

	for name := range current {
		if _, keep := servers[name]; !keep {
			if err := m.RemoveServer(name); err != nil {
				m.log.Warn().Str("server", name).Err(err).Msg("sync remove failed")
			}
		}
	}

	for name, cfg := range servers {
		if prev, ok := current[name]; ok && reflect.DeepEqual(prev, cfg) {
			continue
		}
		if err := m.UpsertServer(ctx, name, cfg); err != nil {
			m.log.Warn().Str("server", name).Err(err).Msg("sync upsert failed")
		}
	}
}

// AllTools flattens (server, tool) pairs across the currently live
// connections only.
func (m *Manager) AllTools() []ServerTool {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	var out []ServerTool
	for _, conn := range conns {
		for _, tool := range conn.Tools() {
			out = append(out, ServerTool{Server: conn.Name(), Tool: tool})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Tool.Name < out[j].Tool.Name
	})
	return out
}

// ToolsVersion is the wrapping sum of every live connection's catalog
// version: a cheap dirty bit the agent polls once per turn. A change in any
// catalog — or a connect/disconnect — changes the sum. False positives are
// fine; false negatives do not occur in normal operation.
func (m *Manager) ToolsVersion() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var v uint64
	for _, conn := range m.conns {
		v += conn.ToolsVersion()
	}
	return v
}

// CallTool invokes a tool on a connected server.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (json.RawMessage, error) {
	m.mu.RLock()
	conn := m.conns[server]
	m.mu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("server %q: %w", server, ErrNotConnected)
	}
	return conn.CallTool(ctx, tool, args)
}

// Ping checks a connected server's responsiveness.
func (m *Manager) Ping(ctx context.Context, server string) error {
	m.mu.RLock()
	conn := m.conns[server]
	m.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("server %q: %w", server, ErrNotConnected)
	}
	return conn.Ping(ctx)
}

// Statuses reports every configured server, live or not, sorted by name.
func (m *Manager) Statuses() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.configs))
	for name := range m.configs {
		status := ServerStatus{Name: name, Status: StatusDisconnected}
		if conn, ok := m.conns[name]; ok {
			status.Status = conn.Status()
			status.ServerInfo = conn.Info()
			status.Tools = conn.Tools()
			status.Version = conn.ToolsVersion()
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// persist writes the config map through to the store.
func (m *Manager) persist() error {
	if m.store == nil {
		return nil
	}
	m.mu.RLock()
	servers := make(map[string]config.ServerConfig, len(m.configs))
	for k, v := range m.configs {
		servers[k] = v
	}
	m.mu.RUnlock()

	if err := m.store.SaveServers(servers); err != nil {
		return fmt.Errorf("persist server configs: %w", err)
	}
	return nil
}
