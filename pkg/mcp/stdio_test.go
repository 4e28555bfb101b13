package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newCatTransport(t *testing.T) *stdioTransport {
	t.Helper()
	tr, err := newStdioTransport("cat", nil, nil)
	if err != nil {
		t.Fatalf("spawn cat: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestStdioTransport_RoundTrip(t *testing.T) {
	tr := newCatTransport(t)

	msg := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	if err := tr.WriteMessage(context.Background(), []byte(msg)); err != nil {
		t.Fatal(err)
	}
	got, err := tr.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != msg {
		t.Errorf("got %q, want %q", got, msg)
	}

	if err := tr.Alive(); err != nil {
		t.Errorf("alive = %v, want nil while running", err)
	}
}

func TestStdioTransport_SpawnFailure(t *testing.T) {
	_, err := newStdioTransport("definitely-not-a-real-binary-48151623", nil, nil)
	if err == nil {
		t.Fatal("expected spawn failure")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Op != "spawn" {
		t.Errorf("error = %v, want spawn TransportError", err)
	}
}

func TestStdioTransport_EnvPassedToChild(t *testing.T) {
	tr, err := newStdioTransport("sh", []string{"-c", `printf '%s\n' "$MCP_TEST_VALUE"`}, map[string]string{"MCP_TEST_VALUE": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	got, err := tr.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("child env value = %q, want hello", got)
	}
}

func TestStdioTransport_AliveAfterExit(t *testing.T) {
	tr, err := newStdioTransport("sh", []string{"-c", "exit 3"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	waitFor(t, 5*time.Second, func() bool { return tr.Alive() != nil })

	aliveErr := tr.Alive()
	if !strings.Contains(aliveErr.Error(), "process exited") {
		t.Errorf("alive = %v, want exit report", aliveErr)
	}
	if !strings.Contains(aliveErr.Error(), "3") {
		t.Errorf("alive = %v, want exit status 3", aliveErr)
	}
}

func TestStdioTransport_StderrSurfacedOnReadFailure(t *testing.T) {
	tr, err := newStdioTransport("sh", []string{"-c", "echo boom >&2; exit 1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	_, readErr := tr.ReadMessage()
	if readErr == nil {
		t.Fatal("expected read to fail after child exit")
	}
	if !strings.Contains(readErr.Error(), "boom") {
		t.Errorf("read error = %v, want stderr tail included", readErr)
	}
}

func TestStdioTransport_PartialFinalLine(t *testing.T) {
	// Output without a trailing newline must still be delivered.
	tr, err := newStdioTransport("sh", []string{"-c", `printf '{"jsonrpc":"2.0"}'`}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	got, readErr := tr.ReadMessage()
	if readErr != nil {
		t.Fatal(readErr)
	}
	if string(got) != `{"jsonrpc":"2.0"}` {
		t.Errorf("got %q", got)
	}
}

func TestStdioTransport_CloseTerminatesChild(t *testing.T) {
	tr := newCatTransport(t)

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.Alive() == nil {
		t.Error("child should be dead after close")
	}

	// Idempotent.
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
}
