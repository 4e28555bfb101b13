package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// httpTransport talks to an MCP server via streamable HTTP. Each outgoing
// message is an HTTP POST; response bodies (immediate JSON or an SSE stream)
// are queued onto an inbox so the connection's reader loop sees the same
// message stream it would on a duplex channel.
type httpTransport struct {
	url     string
	headers map[string]string
	client  *http.Client

	inbox chan []byte
	done  chan struct{}

	mu        sync.Mutex
	sessionID string // Mcp-Session-Id assigned by the server
	closeOnce sync.Once
}

func newHTTPTransport(url string, headers map[string]string) *httpTransport {
	return &httpTransport{
		url:     url,
		headers: headers,
		client:  &http.Client{},
		inbox:   make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

// ReadMessage returns the next queued response message.
func (t *httpTransport) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-t.inbox:
		if !ok {
			return nil, &TransportError{Op: "read", Err: io.EOF}
		}
		return data, nil
	case <-t.done:
		return nil, &TransportError{Op: "read", Err: io.EOF}
	}
}

// WriteMessage POSTs one message and queues whatever the server sends back.
func (t *httpTransport) WriteMessage(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", t.sessionID)
	}
	t.mu.Unlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusNoContent:
		// Notification accepted, nothing to queue.
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return &TransportError{Op: "write", Err: fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.queueSSE(resp.Body)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	if len(bytes.TrimSpace(body)) > 0 {
		t.queue(body)
	}
	return nil
}

// queueSSE reads an SSE stream and queues every data event.
func (t *httpTransport) queueSSE(body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			t.queue([]byte(data))
		}
	}
}

func (t *httpTransport) queue(data []byte) {
	select {
	case t.inbox <- data:
	case <-t.done:
	}
}

// Alive reports nil until the transport is closed; HTTP has no standing
// connection to probe.
func (t *httpTransport) Alive() error {
	select {
	case <-t.done:
		return &TransportError{Op: "closed", Err: fmt.Errorf("transport closed")}
	default:
		return nil
	}
}

// Close releases the transport. Safe to call more than once.
func (t *httpTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}
