package gateway

import "encoding/json"

// Error codes carried in ack frames.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

const (
	frameAck   = "ack"
	frameError = "error"
	framePush  = "push"
)

// Request is an inbound client frame. A request without Ack is
// fire-and-forget.
type Request struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     *uint64         `json:"ack,omitempty"`
}

// ErrorBody is the structured error of a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AckFrame answers a request that carried an ack id.
type AckFrame struct {
	Type   string     `json:"type"`
	Ack    uint64     `json:"ack"`
	Error  *ErrorBody `json:"error"`
	Result any        `json:"result"`
}

// ErrorFrame is a connection-level error not tied to an ack id.
type ErrorFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// PushFrame is an unsolicited room emission.
type PushFrame struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}
