package mcp

import (
	"sync"
	"sync/atomic"
)

// correlator matches asynchronous JSON-RPC responses to their requests. Each
// outstanding request id maps to a one-shot buffered channel; an entry is
// removed exactly once, either by deliver (matching response arrived) or by
// remove (the caller's timeout fired or the transport died).
type correlator struct {
	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan jsonrpcResponse
}

func newCorrelator() *correlator {
	return &correlator{
		pending: make(map[int64]chan jsonrpcResponse),
	}
}

// nextRequestID mints a fresh request id. Monotonic per connection.
func (c *correlator) nextRequestID() int64 {
	return c.nextID.Add(1)
}

// register creates the waiter for id. Must happen before the request is
// written so a fast reply cannot beat the registration.
func (c *correlator) register(id int64) chan jsonrpcResponse {
	ch := make(chan jsonrpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// remove drops the waiter for id, if still present.
func (c *correlator) remove(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// deliver routes a response to its waiter. Returns false when no waiter is
// registered for the id (already timed out, or never ours).
func (c *correlator) deliver(resp jsonrpcResponse) bool {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		ch <- resp
	}
	return ok
}

// outstanding reports the number of requests still awaiting a response.
func (c *correlator) outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
