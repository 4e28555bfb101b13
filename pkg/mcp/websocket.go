package mcp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
)

// wsTransport talks to an MCP server over a WebSocket. Each JSON-RPC message
// is one text frame.
type wsTransport struct {
	conn *websocket.Conn

	// readCtx governs reads and writes for the life of the connection,
	// independent of any per-call context.
	readCtx context.Context
	cancel  context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu      sync.Mutex
	lastErr error
}

// newWebSocketTransport dials url and wraps the connection. Dial failure is
// terminal for this attempt.
func newWebSocketTransport(ctx context.Context, url string, headers map[string]string) (*wsTransport, error) {
	var opts *websocket.DialOptions
	if len(headers) > 0 {
		h := http.Header{}
		for k, v := range headers {
			h.Set(k, v)
		}
		opts = &websocket.DialOptions{HTTPHeader: h}
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: fmt.Errorf("websocket %s: %w", url, err)}
	}
	conn.SetReadLimit(1 << 20)

	readCtx, cancel := context.WithCancel(context.Background())
	return &wsTransport{
		conn:    conn,
		readCtx: readCtx,
		cancel:  cancel,
	}, nil
}

// ReadMessage returns the next frame. Called only by the connection's reader
// goroutine.
func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.Read(t.readCtx)
	if err != nil {
		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()
		return nil, &TransportError{Op: "read", Err: err}
	}
	return data, nil
}

// WriteMessage sends data as a text frame.
func (t *wsTransport) WriteMessage(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Alive reports nil until a read or write has failed or the transport closed.
func (t *wsTransport) Alive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastErr != nil {
		return &TransportError{Op: "closed", Err: t.lastErr}
	}
	return nil
}

// Close sends a close frame and shuts the connection down. Safe to call
// multiple times.
func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		if t.lastErr == nil {
			t.lastErr = fmt.Errorf("transport closed")
		}
		t.mu.Unlock()
		_ = t.conn.Close(websocket.StatusNormalClosure, "")
		t.cancel()
	})
	return nil
}
