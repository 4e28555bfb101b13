package mcp

import "encoding/json"

// jsonrpcRequest is a JSON-RPC 2.0 request message.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"` // nil for notifications
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response message.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// jsonrpcEnvelope is the loose shape the reader loop uses to classify an
// incoming message before routing it: a response carries an id plus result or
// error, a notification carries a method and no id.
type jsonrpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// isResponse reports whether the envelope is a reply to one of our requests.
func (e *jsonrpcEnvelope) isResponse() bool {
	return e.ID != nil && (e.Result != nil || e.Error != nil)
}

// isNotification reports whether the envelope is a server-initiated
// notification (no id, method present).
func (e *jsonrpcEnvelope) isNotification() bool {
	return e.ID == nil && e.Method != ""
}

// newRequest creates a JSON-RPC 2.0 request with the given id, method, and params.
func newRequest(id int64, method string, params any) jsonrpcRequest {
	return jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  params,
	}
}

// newNotification creates a JSON-RPC 2.0 notification (no id, no response expected).
func newNotification(method string, params any) jsonrpcRequest {
	return jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}
