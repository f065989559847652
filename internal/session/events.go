package session

import (
	"encoding/json"
	"errors"
	"time"
)

// Status identifies the connection lifecycle phase.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Sentinel errors returned by Session operations.
var (
	ErrSessionClosed      = errors.New("session is closed")
	ErrNotConnected       = errors.New("session is not connected")
	ErrRequestOutstanding = errors.New("a request is already outstanding")
	ErrEmptyMessage       = errors.New("message is required")
	ErrMaxReconnects      = errors.New("maximum reconnect attempts exceeded")
)

// ErrorKind classifies session failures for logs and synthetic transcript
// entries.
type ErrorKind string

const (
	ErrorKindConnectTimeout  ErrorKind = "connect_timeout"
	ErrorKindTransportClosed ErrorKind = "transport_closed"
	ErrorKindMaxReconnects   ErrorKind = "max_reconnects_exceeded"
	ErrorKindRequestTimeout  ErrorKind = "request_timeout"
	ErrorKindServerError     ErrorKind = "server_error"
	ErrorKindDecodeError     ErrorKind = "decode_error"
)

// EntryKind identifies who produced a transcript entry.
type EntryKind string

const (
	EntryUser  EntryKind = "user"
	EntryAgent EntryKind = "agent"
	EntryError EntryKind = "error"
)

// Entry is one line of the session transcript: a user message, a finalized
// agent response, or a synthetic error the user should see.
type Entry struct {
	Kind      EntryKind
	RequestID string
	Agent     string
	Text      string
	ErrorKind ErrorKind
	At        time.Time
}

// ToolStatus tracks a tool execution through its lifecycle.
type ToolStatus string

const (
	ToolExecuting ToolStatus = "executing"
	ToolComplete  ToolStatus = "complete"
	ToolError     ToolStatus = "error"
)

// ToolExecution records one server-reported tool invocation. Entries change
// only to transition status and attach the result.
type ToolExecution struct {
	ExecutionID string
	ToolName    string
	Status      ToolStatus
	Params      json.RawMessage
	Result      json.RawMessage
	Error       string
	StartedAt   time.Time
	EndedAt     time.Time
}

// Stats is a point-in-time snapshot of the session counters. Faults counts
// every classified failure since the session was created.
type Stats struct {
	Status            Status
	ReconnectAttempts uint
	FramesReceived    uint64
	Faults            map[ErrorKind]uint64
	LastOpenedAt      time.Time
	LastPongAt        time.Time
}

// Callbacks notifies the caller about session events. Every field is
// optional. Callbacks run synchronously while the session holds its internal
// lock: they must return promptly and must not call back into the Session.
type Callbacks struct {
	// StatusChanged fires on every connection state transition.
	StatusChanged func(Status)
	// EntryAppended fires when a new transcript entry lands.
	EntryAppended func(Entry)
	// EntryReplaced fires when a duplicate final response updates an
	// existing transcript entry in place.
	EntryReplaced func(Entry)
	// ActivityChanged reports the human-readable progress line, empty when
	// the agent is idle.
	ActivityChanged func(string)
	// ToolUpdated fires when a tool execution starts or resolves.
	ToolUpdated func(ToolExecution)
	// ConnectionLost fires once when reconnection gives up; Connect resets
	// the condition.
	ConnectionLost func(error)
	// Logf receives operational log lines; defaults to log.Printf.
	Logf func(format string, args ...any)
}
