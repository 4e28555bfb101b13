package mcp

import "context"

// Transport is a duplex channel of JSON messages to one MCP server. It does
// no protocol work itself: correlation and routing live in the Connection,
// whose reader goroutine is the only caller of ReadMessage.
type Transport interface {
	// ReadMessage blocks until the next complete JSON message arrives.
	// It returns an error only when the channel is no longer usable
	// (EOF, closed socket, dead process).
	ReadMessage() ([]byte, error)

	// WriteMessage sends one JSON message. Implementations serialize
	// concurrent writers internally.
	WriteMessage(ctx context.Context, data []byte) error

	// Alive is a non-blocking liveness check. It returns nil while the
	// channel is usable and a descriptive error once it is not.
	Alive() error

	// Close tears the channel down. Safe to call more than once.
	Close() error
}
