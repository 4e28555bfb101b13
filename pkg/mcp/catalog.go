package mcp

import "sync"

// Catalog holds one connection's tool list plus a version counter that bumps
// (wrapping) on every successful reload. Reads vastly outnumber writes: the
// agent polls Version once per turn and only re-reads Tools on a change.
type Catalog struct {
	mu      sync.RWMutex
	tools   []Tool
	version uint64
}

// Tools returns a copy of the current tool list.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Version returns the current catalog version. Starts at 0; a connection that
// has loaded its tools at least once is always past 0 (modulo wraparound).
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// replace installs a new tool list and bumps the version.
func (c *Catalog) replace(tools []Tool) {
	c.mu.Lock()
	c.tools = tools
	c.version++
	c.mu.Unlock()
}
