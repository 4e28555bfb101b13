package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeTransport is an in-memory Transport with pre-programmed responses.
// Requests written to it are answered from the handler table; raw messages
// (notifications, out-of-order replies) can be injected directly.
type fakeTransport struct {
	incoming chan []byte

	mu       sync.Mutex
	written  []jsonrpcEnvelope
	handlers map[string]func(env jsonrpcEnvelope) []byte
	silent   map[string]bool // methods that never get a reply
	aliveErr error
	closed   bool
	done     chan struct{}
}

func newFakeTransport() *fakeTransport {
	f := &fakeTransport{
		incoming: make(chan []byte, 64),
		handlers: make(map[string]func(jsonrpcEnvelope) []byte),
		silent:   make(map[string]bool),
		done:     make(chan struct{}),
	}

	f.handlers[MethodInitialize] = func(env jsonrpcEnvelope) []byte {
		return resultResponse(*env.ID, `{"protocolVersion":"2024-11-05","capabilities":{"tools":{"listChanged":true}},"serverInfo":{"name":"fake-server","version":"1.0"}}`)
	}
	f.handlers[MethodToolsList] = func(env jsonrpcEnvelope) []byte {
		return resultResponse(*env.ID, `{"tools":[]}`)
	}
	f.handlers[MethodPing] = func(env jsonrpcEnvelope) []byte {
		return resultResponse(*env.ID, `{}`)
	}
	return f
}

// withTools programs the tools/list reply with a raw tools array.
func (f *fakeTransport) withTools(toolsJSON string) *fakeTransport {
	f.handlers[MethodToolsList] = func(env jsonrpcEnvelope) []byte {
		return resultResponse(*env.ID, fmt.Sprintf(`{"tools":%s}`, toolsJSON))
	}
	return f
}

// withToolCall programs the tools/call reply with a raw result.
func (f *fakeTransport) withToolCall(resultJSON string) *fakeTransport {
	f.handlers[MethodToolsCall] = func(env jsonrpcEnvelope) []byte {
		return resultResponse(*env.ID, resultJSON)
	}
	return f
}

// withError programs an error reply for a method.
func (f *fakeTransport) withError(method string, code int, msg string) *fakeTransport {
	f.handlers[method] = func(env jsonrpcEnvelope) []byte {
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%q}}`, *env.ID, code, msg))
	}
	return f
}

// withSilent makes a method never answer, so the caller's timeout fires.
func (f *fakeTransport) withSilent(method string) *fakeTransport {
	f.silent[method] = true
	return f
}

// inject queues a raw message as if the server had sent it.
func (f *fakeTransport) inject(raw string) {
	select {
	case f.incoming <- []byte(raw):
	case <-f.done:
	}
}

// requests returns the requests written so far for a method.
func (f *fakeTransport) requests(method string) []jsonrpcEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []jsonrpcEnvelope
	for _, env := range f.written {
		if env.Method == method {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.incoming:
		return data, nil
	case <-f.done:
		return nil, &TransportError{Op: "read", Err: io.EOF}
	}
}

func (f *fakeTransport) WriteMessage(_ context.Context, data []byte) error {
	var env jsonrpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return &TransportError{Op: "write", Err: fmt.Errorf("transport closed")}
	}
	f.written = append(f.written, env)
	handler := f.handlers[env.Method]
	silent := f.silent[env.Method]
	f.mu.Unlock()

	// Notifications get no reply by definition.
	if env.ID == nil || silent || handler == nil {
		return nil
	}

	f.inject(string(handler(env)))
	return nil
}

func (f *fakeTransport) Alive() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aliveErr
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func resultResponse(id int64, resultJSON string) []byte {
	return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, resultJSON))
}

// newTestConn runs the full connect handshake over a fake transport.
func newTestConn(t *testing.T, ft *fakeTransport) *Connection {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := connect(ctx, "test", ft, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Disconnect)
	return conn
}
