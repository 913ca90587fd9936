package proxy

import (
	"encoding/json"
)

// wireError mirrors the JSON-RPC 2.0 error object shape. Defined locally
// rather than imported so that CreateJSONRPCError never depends on the
// SDK's WireError construction details.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

// CreateJSONRPCError builds a complete JSON-RPC 2.0 error response line
// (without trailing newline) for the given request id.
func CreateJSONRPCError(id json.RawMessage, code int, message string) []byte {
	resp := wireResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &wireError{Code: code, Message: message},
	}
	out, err := json.Marshal(resp)
	if err != nil {
		// json.Marshal on this fixed shape cannot fail; fall back to a
		// minimal literal rather than panic.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return out
}

// CreateJSONRPCResult builds a complete JSON-RPC 2.0 success response
// line (without trailing newline) for the given request id and result
// value.
func CreateJSONRPCResult(id json.RawMessage, result any) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	resp := wireResponse{JSONRPC: "2.0", ID: id, Result: raw}
	return json.Marshal(resp)
}

// SafeErrorMessage returns the client-facing text for err: err.Error()
// as is, or "internal proxy error" for a nil error or empty text. The
// text is not filtered, so wrapped errors reach the client in full.
func SafeErrorMessage(err error) string {
	if err == nil {
		return "internal proxy error"
	}
	msg := err.Error()
	if msg == "" {
		return "internal proxy error"
	}
	return msg
}
