// Package sqlite provides the SQLite-backed transcript store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/agentwire/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/agentwire/internal/platform/timeouts"
	"github.com/louisbranch/agentwire/internal/storage"
	"github.com/louisbranch/agentwire/internal/storage/sqlite/migrations"
)

// Store implements storage.TranscriptStore on a local SQLite database.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("open sqlite store: path is required")
	}

	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), timeouts.StoreOpen)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// SaveMessage inserts a transcript message, replacing the body of an
// existing row with the same (user, session, request, sender) key.
func (s *Store) SaveMessage(ctx context.Context, msg storage.MessageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errors.New("save message: store is not initialized")
	}
	if strings.TrimSpace(msg.ID) == "" {
		return errors.New("save message: id is required")
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return errors.New("save message: user id is required")
	}
	if strings.TrimSpace(msg.SessionID) == "" {
		return errors.New("save message: session id is required")
	}
	if strings.TrimSpace(msg.RequestID) == "" {
		return errors.New("save message: request id is required")
	}
	if msg.Sender != storage.SenderUser && msg.Sender != storage.SenderAgent {
		return fmt.Errorf("save message: unknown sender %q", msg.Sender)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO transcript_messages (id, user_id, session_id, request_id, sender, agent, body, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id, request_id, sender) DO UPDATE SET
			agent = excluded.agent,
			body = excluded.body,
			sent_at = excluded.sent_at
	`, msg.ID, msg.UserID, msg.SessionID, msg.RequestID, string(msg.Sender), msg.Agent, msg.Body, toMillis(msg.SentAt))
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListSessionMessages returns up to limit messages for the session ordered
// oldest first. A non-positive limit returns every message.
func (s *Store) ListSessionMessages(ctx context.Context, userID, sessionID string, limit int) ([]storage.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, errors.New("list session messages: store is not initialized")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("list session messages: user id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("list session messages: session id is required")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, user_id, session_id, request_id, sender, agent, body, sent_at
		FROM transcript_messages
		WHERE user_id = ? AND session_id = ?
		ORDER BY sent_at ASC, id ASC
		LIMIT ?
	`, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	var msgs []storage.MessageRecord
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	return msgs, nil
}

func scanMessage(rows *sql.Rows) (storage.MessageRecord, error) {
	var msg storage.MessageRecord
	var sender string
	var sentAt int64
	if err := rows.Scan(&msg.ID, &msg.UserID, &msg.SessionID, &msg.RequestID, &sender, &msg.Agent, &msg.Body, &sentAt); err != nil {
		return storage.MessageRecord{}, fmt.Errorf("scan message: %w", err)
	}
	msg.Sender = storage.Sender(sender)
	msg.SentAt = fromMillis(sentAt)
	return msg, nil
}

// AppendTelemetryEvent records one lifecycle event for later inspection.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errors.New("append telemetry event: store is not initialized")
	}
	if strings.TrimSpace(event.ID) == "" {
		return errors.New("append telemetry event: id is required")
	}
	if strings.TrimSpace(event.Kind) == "" {
		return errors.New("append telemetry event: kind is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO telemetry_events (id, kind, user_id, session_id, request_id, duration_millis, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Kind, event.UserID, event.SessionID, event.RequestID, event.DurationMillis, toMillis(event.At))
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
