// Package store provides storage backends for LoanFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore: failed to open connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore: ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore: migrations applied")

	return &PostgresStore{db: db}, nil
}

// CreateSession inserts a new session row and returns its identifier.
func (s *PostgresStore) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, completed, created_at, updated_at) VALUES ($1, FALSE, $2, $3)`,
		id, now, now)
	if err != nil {
		slog.Error("PostgresStore.CreateSession failed", "error", err)
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	slog.Debug("PostgresStore.CreateSession succeeded", "sessionID", id)
	return id, nil
}

// AddMessage appends one conversation turn for a session.
func (s *PostgresStore) AddMessage(ctx context.Context, sessionID, content string, isBot bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, message, is_bot, seq, created_at)
		 VALUES ($1, $2, $3, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE session_id = $1), $4)`,
		sessionID, content, isBot, time.Now())
	if err != nil {
		slog.Error("PostgresStore.AddMessage failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert message for session %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore.AddMessage succeeded", "sessionID", sessionID, "isBot", isBot)
	return nil
}

// ListMessages returns a session's conversation turns in append order.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, message, is_bot, seq, created_at FROM chat_messages WHERE session_id = $1 ORDER BY seq`,
		sessionID)
	if err != nil {
		slog.Error("PostgresStore.ListMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.SessionID, &m.Content, &m.IsBot, &m.Seq, &m.CreatedAt); err != nil {
			slog.Error("PostgresStore.ListMessages scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slog.Debug("PostgresStore.ListMessages succeeded", "sessionID", sessionID, "count", len(messages))
	return messages, nil
}

// UpsertAnswer stores or overwrites a validated answer.
func (s *PostgresStore) UpsertAnswer(ctx context.Context, sessionID, questionID, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_answers (session_id, question_id, value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		sessionID, questionID, value, time.Now())
	if err != nil {
		slog.Error("PostgresStore.UpsertAnswer failed", "error", err, "sessionID", sessionID, "questionID", questionID)
		return fmt.Errorf("failed to upsert answer %s: %w", questionID, err)
	}
	slog.Debug("PostgresStore.UpsertAnswer succeeded", "sessionID", sessionID, "questionID", questionID)
	return nil
}

// GetAnswers returns the question-id -> value map for a session.
func (s *PostgresStore) GetAnswers(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, value FROM session_answers WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore.GetAnswers query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var questionID, value string
		if err := rows.Scan(&questionID, &value); err != nil {
			slog.Error("PostgresStore.GetAnswers scan failed", "error", err)
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
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, completed, created_at, updated_at FROM chat_sessions WHERE id = $1`, sessionID).
		Scan(&sess.ID, &sess.Completed, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetSession failed", "error", err, "sessionID", sessionID)
		return nil, err
	}
	return &sess, nil
}

// MarkCompleted sets the session's completion flag.
func (s *PostgresStore) MarkCompleted(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET completed = TRUE, updated_at = $1 WHERE id = $2`, time.Now(), sessionID)
	if err != nil {
		slog.Error("PostgresStore.MarkCompleted failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to mark session %s completed: %w", sessionID, err)
	}
	slog.Debug("PostgresStore.MarkCompleted succeeded", "sessionID", sessionID)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore: closing database connection")
	return s.db.Close()
}
