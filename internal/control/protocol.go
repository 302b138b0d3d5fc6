// Package control exposes the connection manager's commands over a local
// unix socket, one JSON request and response per connection.
package control

// Request is a command invocation from a client.
type Request struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	ID     int    `json:"id,omitempty"`
}

// Response carries the result of a Request.
type Response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     int    `json:"id,omitempty"`
}

// AckResult acknowledges a command without a payload.
type AckResult struct {
	OK bool `json:"ok"`
}

// Personal.AI order the ending
