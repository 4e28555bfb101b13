package mcp

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned by Manager operations that target a server
// without a live connection.
var ErrNotConnected = errors.New("server not connected")

// TransportError wraps a failure at the transport layer: spawning a process,
// dialing a socket, or reading/writing the underlying channel.
type TransportError struct {
	Op  string // "spawn", "dial", "write", "read", "closed"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError indicates the server sent JSON we could not make sense of
// where a well-formed message was required.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Msg, e.Err)
	}
	return "protocol: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RemoteError is the JSON-RPC error object returned by an MCP server. It is a
// domain error, not a transport failure: the connection stays usable.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// TimeoutError indicates an operation did not complete within its bound.
type TimeoutError struct {
	Op    string // "tools/list", "tools/call", ...
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}
