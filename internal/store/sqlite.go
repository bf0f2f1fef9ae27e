// Package store provides storage backends for LoanFlow.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the database file; the directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore: ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore: migrations applied")

	return &SQLiteStore{db: db}, nil
}

// CreateSession inserts a new session row and returns its identifier.
func (s *SQLiteStore) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, completed, created_at, updated_at) VALUES (?, 0, ?, ?)`,
		id, now, now)
	if err != nil {
		slog.Error("SQLiteStore.CreateSession failed", "error", err)
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	slog.Debug("SQLiteStore.CreateSession succeeded", "sessionID", id)
	return id, nil
}

// AddMessage appends one conversation turn for a session.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID, content string, isBot bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, message, is_bot, seq, created_at)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE session_id = ?), ?)`,
		sessionID, content, isBot, sessionID, time.Now())
	if err != nil {
		slog.Error("SQLiteStore.AddMessage failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert message for session %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore.AddMessage succeeded", "sessionID", sessionID, "isBot", isBot)
	return nil
}

// ListMessages returns a session's conversation turns in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, message, is_bot, seq, created_at FROM chat_messages WHERE session_id = ? ORDER BY seq`,
		sessionID)
	if err != nil {
		slog.Error("SQLiteStore.ListMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.SessionID, &m.Content, &m.IsBot, &m.Seq, &m.CreatedAt); err != nil {
			slog.Error("SQLiteStore.ListMessages scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore.ListMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slog.Debug("SQLiteStore.ListMessages succeeded", "sessionID", sessionID, "count", len(messages))
	return messages, nil
}

// UpsertAnswer stores or overwrites a validated answer.
func (s *SQLiteStore) UpsertAnswer(ctx context.Context, sessionID, questionID, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_answers (session_id, question_id, value, updated_at) VALUES (?, ?, ?, ?)`,
		sessionID, questionID, value, time.Now())
	if err != nil {
		slog.Error("SQLiteStore.UpsertAnswer failed", "error", err, "sessionID", sessionID, "questionID", questionID)
		return fmt.Errorf("failed to upsert answer %s: %w", questionID, err)
	}
	slog.Debug("SQLiteStore.UpsertAnswer succeeded", "sessionID", sessionID, "questionID", questionID)
	return nil
}

// GetAnswers returns the question-id -> value map for a session.
func (s *SQLiteStore) GetAnswers(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, value FROM session_answers WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore.GetAnswers query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var questionID, value string
		if err := rows.Scan(&questionID, &value); err != nil {
			slog.Error("SQLiteStore.GetAnswers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan answer row: %w", err)
		}
		answers[questionID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answer rows: %w", err)
	}
	return answers, nil
}

// GetSession returns the session row, or nil when unknown.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, completed, created_at, updated_at FROM chat_sessions WHERE id = ?`, sessionID).
		Scan(&sess.ID, &sess.Completed, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetSession failed", "error", err, "sessionID", sessionID)
		return nil, err
	}
	return &sess, nil
}

// MarkCompleted sets the session's completion flag.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET completed = 1, updated_at = ? WHERE id = ?`, time.Now(), sessionID)
	if err != nil {
		slog.Error("SQLiteStore.MarkCompleted failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to mark session %s completed: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore.MarkCompleted succeeded", "sessionID", sessionID)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("SQLiteStore: closing database connection")
	return s.db.Close()
}
