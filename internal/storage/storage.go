// Package storage defines the persistence records and interfaces for the
// console's session transcripts. The session engine never touches these: the
// console persists finalized messages itself, so the engine stays free of
// storage concerns.
package storage

import (
	"context"
	"time"
)

// Sender identifies which side of the conversation wrote a message.
type Sender string

// Message senders recorded in transcript rows.
const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// MessageRecord stores one finalized transcript message.
//
// Rows are keyed by (user, session, request, sender); saving a record with a
// key that already exists replaces the stored body, matching the engine's
// replace-on-duplicate rule for re-sent final responses.
type MessageRecord struct {
	ID        string
	UserID    string
	SessionID string
	RequestID string
	Sender    Sender
	Agent     string
	Body      string
	SentAt    time.Time
}

// TelemetryEvent stores one operational session event.
type TelemetryEvent struct {
	ID             string
	Kind           string
	UserID         string
	SessionID      string
	RequestID      string
	DurationMillis int64
	At             time.Time
}

// TranscriptStore persists transcript messages and session telemetry.
type TranscriptStore interface {
	SaveMessage(ctx context.Context, record MessageRecord) error
	ListSessionMessages(ctx context.Context, userID, sessionID string, limit int) ([]MessageRecord, error)
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
	Close() error
}
