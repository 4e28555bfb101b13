package mcp

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCorrelator_IDsAreMonotonic(t *testing.T) {
	c := newCorrelator()
	prev := c.nextRequestID()
	for i := 0; i < 100; i++ {
		id := c.nextRequestID()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestCorrelator_DeliverRemovesExactlyOnce(t *testing.T) {
	c := newCorrelator()
	id := c.nextRequestID()
	ch := c.register(id)

	resp := jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: json.RawMessage(`{}`)}
	if !c.deliver(resp) {
		t.Fatal("first deliver should find the waiter")
	}
	if c.deliver(resp) {
		t.Fatal("second deliver must not find the waiter again")
	}

	select {
	case got := <-ch:
		if got.ID != id {
			t.Errorf("delivered id = %d, want %d", got.ID, id)
		}
	default:
		t.Fatal("waiter channel should hold the response")
	}
}

func TestCorrelator_RemoveThenDeliver(t *testing.T) {
	c := newCorrelator()
	id := c.nextRequestID()
	c.register(id)
	c.remove(id)

	if c.deliver(jsonrpcResponse{ID: id}) {
		t.Fatal("deliver after remove should report no waiter")
	}
	if n := c.outstanding(); n != 0 {
		t.Errorf("outstanding = %d, want 0", n)
	}
}

func TestCorrelator_UnknownIDIsDropped(t *testing.T) {
	c := newCorrelator()
	if c.deliver(jsonrpcResponse{ID: 999}) {
		t.Fatal("unknown id should not be delivered anywhere")
	}
}

func TestCorrelator_ConcurrentRegisterDeliver(t *testing.T) {
	c := newCorrelator()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := c.nextRequestID()
			ch := c.register(id)
			if !c.deliver(jsonrpcResponse{ID: id}) {
				t.Errorf("deliver for id %d found no waiter", id)
				return
			}
			got := <-ch
			if got.ID != id {
				t.Errorf("got id %d, want %d", got.ID, id)
			}
		}()
	}
	wg.Wait()

	if n := c.outstanding(); n != 0 {
		t.Errorf("outstanding = %d, want 0", n)
	}
}
