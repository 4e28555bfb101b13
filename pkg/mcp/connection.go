package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client identity sent during the initialize handshake.
const (
	clientName    = "mcphub"
	clientVersion = "0.1.0"
)

// Operation timeouts. Connection establishment itself has no extra bound
// beyond the OS/library default. Vars so tests can shorten them.
var (
	listToolsTimeout = 10 * time.Second
	callToolTimeout  = 30 * time.Second
	pingTimeout      = 5 * time.Second
)

// Connection owns one live transport to an MCP server: the correlator, the
// tool catalog, and the single background goroutine that reads the transport.
// Connections are created by the Connect* constructors and destroyed by
// Disconnect; nothing else mutates them from outside.
type Connection struct {
	serverName string
	connID     uuid.UUID // distinguishes reconnects of the same name in logs
	transport  Transport
	log        zerolog.Logger

	corr    *correlator
	catalog *Catalog

	mu     sync.RWMutex
	status ConnectionStatus
	info   *ServerInfo

	readerDone chan struct{}
	closeOnce  sync.Once
}

// ConnectStdio spawns command with piped stdio and runs the MCP handshake.
// Spawn failure is terminal for this attempt; no retry.
func ConnectStdio(ctx context.Context, name, command string, args []string, env map[string]string, log zerolog.Logger) (*Connection, error) {
	t, err := newStdioTransport(command, args, env)
	if err != nil {
		return nil, err
	}
	return connect(ctx, name, t, log)
}

// ConnectWebSocket dials url and runs the MCP handshake. Downstream handling
// is identical to stdio.
func ConnectWebSocket(ctx context.Context, name, url string, headers map[string]string, log zerolog.Logger) (*Connection, error) {
	t, err := newWebSocketTransport(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	return connect(ctx, name, t, log)
}

// ConnectHTTP connects to a streamable-HTTP MCP endpoint and runs the
// handshake.
func ConnectHTTP(ctx context.Context, name, url string, headers map[string]string, log zerolog.Logger) (*Connection, error) {
	return connect(ctx, name, newHTTPTransport(url, headers), log)
}

// connect wraps a freshly created transport, starts the reader goroutine, and
// runs the handshake. On any handshake failure the transport is torn down and
// the attempt fails as a whole.
func connect(ctx context.Context, name string, t Transport, log zerolog.Logger) (*Connection, error) {
	c := &Connection{
		serverName: name,
		connID:     uuid.New(),
		transport:  t,
		corr:       newCorrelator(),
		catalog:    &Catalog{},
		status:     StatusConnecting,
		readerDone: make(chan struct{}),
	}
	c.log = log.With().Str("server", name).Str("conn_id", c.connID.String()).Logger()

	go c.readLoop()

	if err := c.initialize(ctx); err != nil {
		c.Disconnect()
		return nil, err
	}
	return c, nil
}

// Name returns the server name this connection belongs to.
func (c *Connection) Name() string { return c.serverName }

// Status returns the connection's lifecycle state.
func (c *Connection) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Info returns the server's self-reported identity, or nil before the
// handshake completed.
func (c *Connection) Info() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Tools returns a copy of the current tool catalog.
func (c *Connection) Tools() []Tool { return c.catalog.Tools() }

// ToolsVersion returns the catalog version for this connection.
func (c *Connection) ToolsVersion() uint64 { return c.catalog.Version() }

func (c *Connection) setStatus(s ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// readLoop is the one goroutine that reads the transport. Responses go to the
// correlator, notifications carrying a tool list go to the catalog, malformed
// messages are logged and skipped. Only EOF or an I/O error ends the loop.
func (c *Connection) readLoop() {
	defer close(c.readerDone)

	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("reader loop ending")
			return
		}
		if len(data) == 0 {
			continue
		}

		var env jsonrpcEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Could be stray log output from the server. Never fatal.
			c.log.Debug().Str("line", truncate(string(data), 200)).Msg("skipping malformed message")
			continue
		}

		switch {
		case env.isResponse():
			resp := jsonrpcResponse{JSONRPC: env.JSONRPC, ID: *env.ID, Result: env.Result, Error: env.Error}
			if !c.corr.deliver(resp) {
				c.log.Debug().Int64("id", resp.ID).Msg("response with no pending request")
			}
		case env.isNotification():
			c.handleNotification(env)
		default:
			c.log.Debug().Str("method", env.Method).Msg("skipping unexpected message shape")
		}
	}
}

// handleNotification reacts to server-initiated notifications. A notification
// whose params carry a tools array replaces the catalog and bumps its version.
func (c *Connection) handleNotification(env jsonrpcEnvelope) {
	if len(env.Params) == 0 {
		c.log.Debug().Str("method", env.Method).Msg("notification ignored")
		return
	}

	var payload toolsListWire
	if err := json.Unmarshal(env.Params, &payload); err != nil || payload.Tools == nil {
		c.log.Debug().Str("method", env.Method).Msg("notification ignored")
		return
	}

	tools, dropped := parseTools(payload.Tools)
	c.catalog.replace(tools)
	c.log.Info().
		Str("method", env.Method).
		Int("tools", len(tools)).
		Int("dropped", dropped).
		Uint64("version", c.catalog.Version()).
		Msg("tool list updated from notification")
}

// initialize runs the MCP handshake: initialize request, initialized
// notification, then the mandatory tool listing. Any failure aborts the whole
// connect attempt.
func (c *Connection) initialize(ctx context.Context) error {
	c.setStatus(StatusInitializing)

	params := InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities: ClientCapabilities{
			Tools: &ToolsCapability{ListChanged: true},
		},
		ClientInfo: ClientInfo{Name: clientName, Version: clientVersion},
	}

	resp, err := c.send(ctx, MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return &ProtocolError{Msg: "initialize result", Err: err}
	}

	c.mu.Lock()
	c.info = &result.ServerInfo
	c.mu.Unlock()

	c.log.Info().
		Str("server_name", result.ServerInfo.Name).
		Str("server_version", result.ServerInfo.Version).
		Str("protocol_version", result.ProtocolVersion).
		Msg("server initialized")

	// Fire-and-forget: completes the handshake, no reply expected.
	if err := c.notify(ctx, MethodInitialized, nil); err != nil {
		return fmt.Errorf("send initialized: %w", err)
	}

	if err := c.loadTools(ctx); err != nil {
		return err
	}

	c.setStatus(StatusReady)
	return nil
}

// loadTools lists the server's tools under listToolsTimeout and replaces the
// catalog. A top-level failure fails the connect attempt — a connection
// without a tool list is not usable. Individual entries that fail to parse
// are dropped or repaired, never fatal.
func (c *Connection) loadTools(ctx context.Context) error {
	resp, err := c.sendWithTimeout(ctx, MethodToolsList, nil, listToolsTimeout)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}

	var result toolsListWire
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return &ProtocolError{Msg: "tools/list result", Err: err}
	}

	tools, dropped := parseTools(result.Tools)
	c.catalog.replace(tools)
	c.log.Info().
		Int("tools", len(tools)).
		Int("dropped", dropped).
		Uint64("version", c.catalog.Version()).
		Msg("tools loaded")
	return nil
}

// parseTools parses each raw entry independently, repairing schemas and
// dropping entries without a name. Returns the parsed tools and the number of
// dropped entries.
func parseTools(raw []json.RawMessage) ([]Tool, int) {
	tools := make([]Tool, 0, len(raw))
	dropped := 0
	for _, entry := range raw {
		tool, ok := parseTool(entry)
		if !ok {
			dropped++
			continue
		}
		tools = append(tools, tool)
	}
	return tools, dropped
}

// CallTool invokes a tool on this connection and returns the raw result. A
// JSON-RPC error from the server surfaces as a *RemoteError.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	// Fail fast when the subprocess has already exited instead of burning
	// the full call timeout.
	if err := c.transport.Alive(); err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}

	resp, err := c.sendWithTimeout(ctx, MethodToolsCall, ToolCallParams{Name: name, Arguments: args}, callToolTimeout)
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	return resp.Result, nil
}

// Ping checks whether the server is responsive.
func (c *Connection) Ping(ctx context.Context) error {
	_, err := c.sendWithTimeout(ctx, MethodPing, nil, pingTimeout)
	return err
}

// Disconnect tears the connection down: close the transport, wait for the
// reader to finish. Idempotent — calling it on an already-disconnected
// connection is a no-op.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		c.setStatus(StatusDisconnected)
		_ = c.transport.Close()
		<-c.readerDone
		c.log.Debug().Msg("disconnected")
	})
}

// send issues one request and waits for the correlated response with no
// timeout beyond ctx. The waiter is registered before the request is written
// so a fast reply cannot arrive unclaimed.
func (c *Connection) send(ctx context.Context, method string, params any) (jsonrpcResponse, error) {
	id := c.corr.nextRequestID()
	ch := c.corr.register(id)

	data, err := json.Marshal(newRequest(id, method, params))
	if err != nil {
		c.corr.remove(id)
		return jsonrpcResponse{}, &ProtocolError{Msg: "marshal request", Err: err}
	}

	if err := c.transport.WriteMessage(ctx, data); err != nil {
		c.corr.remove(id)
		return jsonrpcResponse{}, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		c.corr.remove(id)
		return jsonrpcResponse{}, ctx.Err()
	case <-c.readerDone:
		c.corr.remove(id)
		err := c.transport.Alive()
		if err == nil {
			err = &TransportError{Op: "closed", Err: errors.New("connection closed")}
		}
		return jsonrpcResponse{}, err
	}
}

// sendWithTimeout bounds send with an operation-specific timeout and converts
// a fired deadline into a *TimeoutError.
func (c *Connection) sendWithTimeout(ctx context.Context, method string, params any, timeout time.Duration) (jsonrpcResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.send(callCtx, method, params)
	if errors.Is(err, context.DeadlineExceeded) {
		return jsonrpcResponse{}, &TimeoutError{Op: method, After: timeout}
	}
	return resp, err
}

// notify sends a fire-and-forget notification.
func (c *Connection) notify(ctx context.Context, method string, params any) error {
	data, err := json.Marshal(newNotification(method, params))
	if err != nil {
		return &ProtocolError{Msg: "marshal notification", Err: err}
	}
	return c.transport.WriteMessage(ctx, data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
