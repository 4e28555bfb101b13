package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// httpTestServer is a minimal streamable-HTTP MCP server: JSON replies by
// default, SSE framing when sse is set, and a session id handed out on
// initialize.
func httpTestServer(t *testing.T, tools string, sse bool) (*httptest.Server, *httpRequestLog) {
	t.Helper()

	reqLog := &httpRequestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var env jsonrpcEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		reqLog.add(r.Header.Get("Mcp-Session-Id"), env)

		// Notifications are accepted with no body.
		if env.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		var reply []byte
		switch env.Method {
		case MethodInitialize:
			w.Header().Set("Mcp-Session-Id", "session-abc")
			reply = resultResponse(*env.ID, `{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"http-server","version":"3.0"}}`)
		case MethodToolsList:
			reply = resultResponse(*env.ID, fmt.Sprintf(`{"tools":%s}`, tools))
		case MethodToolsCall:
			reply = resultResponse(*env.ID, `{"content":[{"type":"text","text":"done"}]}`)
		case MethodPing:
			reply = resultResponse(*env.ID, `{}`)
		default:
			reply = []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, *env.ID))
		}

		if sse {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", reply)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, reqLog
}

type httpRequestLog struct {
	mu       sync.Mutex
	sessions []string
	methods  []string
}

func (l *httpRequestLog) add(session string, env jsonrpcEnvelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, session)
	l.methods = append(l.methods, env.Method)
}

func (l *httpRequestLog) snapshot() ([]string, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sessions...), append([]string(nil), l.methods...)
}

func TestConnectHTTP_JSONResponses(t *testing.T) {
	srv, reqLog := httpTestServer(t, `[{"name":"fetch","inputSchema":{"type":"object"}}]`, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := ConnectHTTP(ctx, "http", srv.URL, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(conn.Disconnect)

	if got := conn.Status(); got != StatusReady {
		t.Errorf("status = %s, want %s", got, StatusReady)
	}
	if info := conn.Info(); info == nil || info.Name != "http-server" {
		t.Errorf("server info = %+v", info)
	}
	if tools := conn.Tools(); len(tools) != 1 || tools[0].Name != "fetch" {
		t.Errorf("tools = %+v", tools)
	}

	raw, err := conn.CallTool(ctx, "fetch", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "done" {
		t.Errorf("result = %+v", result)
	}

	// The session id from initialize must ride along on later requests.
	sessions, methods := reqLog.snapshot()
	for i, method := range methods {
		if method == MethodInitialize {
			continue
		}
		if sessions[i] != "session-abc" {
			t.Errorf("request %d (%s) session = %q, want session-abc", i, method, sessions[i])
		}
	}
}

func TestConnectHTTP_SSEResponses(t *testing.T) {
	srv, _ := httpTestServer(t, `[{"name":"stream","inputSchema":{}}]`, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := ConnectHTTP(ctx, "http", srv.URL, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(conn.Disconnect)

	if got := conn.Status(); got != StatusReady {
		t.Errorf("status = %s, want %s", got, StatusReady)
	}
	if tools := conn.Tools(); len(tools) != 1 || tools[0].Name != "stream" {
		t.Errorf("tools = %+v", tools)
	}
	if err := conn.Ping(ctx); err != nil {
		t.Errorf("ping over sse: %v", err)
	}
}

func TestHTTPTransport_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such endpoint", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	tr := newHTTPTransport(srv.URL, nil)
	t.Cleanup(func() { _ = tr.Close() })

	err := tr.WriteMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err == nil {
		t.Fatal("expected error for HTTP 404")
	}
}

func TestHTTPTransport_AliveUntilClosed(t *testing.T) {
	tr := newHTTPTransport("http://127.0.0.1:1/mcp", nil)

	if err := tr.Alive(); err != nil {
		t.Errorf("alive = %v, want nil before close", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.Alive() == nil {
		t.Error("alive should report an error after close")
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
}
