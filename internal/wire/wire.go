// Package wire defines the JSON frames exchanged between a dashboard client
// and an agent backend over the session socket.
//
// Every frame is a single flat JSON object. Server frames carry a "type"
// discriminator; a client chat frame carries none and is recognized by its
// non-empty "message" field.
package wire

import "encoding/json"

// Frame kinds carried in the "type" field, plus the synthetic KindChat used
// to classify untyped client chat frames.
const (
	KindAck              = "ack"
	KindProcessingStart  = "processing_start"
	KindAgentThinking    = "agent_thinking"
	KindAgentUpdate      = "agent_update"
	KindAgentResponse    = "agent_response"
	KindToolExecution    = "tool_execution"
	KindToolResult       = "tool_result"
	KindError            = "error"
	KindPing             = "ping"
	KindPong             = "pong"
	KindConnectionStatus = "connection_status"

	KindChat = "chat"
)

// Frame is the envelope for every message crossing the socket. Fields are a
// union over all frame kinds; omitempty keeps each encoded frame down to the
// fields its kind uses.
type Frame struct {
	Type      string `json:"type,omitempty"`
	RequestID string `json:"requestId,omitempty"`

	// Chat, agent_response and error frames.
	Message string `json:"message,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Agent   string `json:"agent,omitempty"`

	// Tool frames.
	Tool        string          `json:"tool,omitempty"`
	ExecutionID string          `json:"executionId,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`

	// Keepalive frames carry Unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`

	// connection_status frames.
	Status    string `json:"status,omitempty"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Kind classifies a decoded frame. Untyped frames with message text are chat
// frames; anything else untyped is unclassified and returns "".
func (f Frame) Kind() string {
	if f.Type != "" {
		return f.Type
	}
	if f.Message != "" {
		return KindChat
	}
	return ""
}

// Chat builds the client frame carrying user text correlated by request id.
// An empty agent leaves the addressee to the server default.
func Chat(message, requestID, agent string) Frame {
	return Frame{Message: message, RequestID: requestID, Agent: agent}
}

// Ping builds a keepalive probe stamped with Unix milliseconds.
func Ping(timestampMillis int64) Frame {
	return Frame{Type: KindPing, Timestamp: timestampMillis}
}

// Pong builds the reply to an inbound ping.
func Pong(timestampMillis int64) Frame {
	return Frame{Type: KindPong, Timestamp: timestampMillis}
}
