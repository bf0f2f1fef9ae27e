// Package store provides storage backends for LoanFlow.
//
// It persists intake sessions, their append-only conversation log, and the
// validated answers. Backends exist for SQLite, PostgreSQL, and in-memory
// use in tests. Persistence is best-effort relative to the user-visible
// conversation: callers log failures and keep going.
package store

import (
	"context"
	"strings"
	"time"
)

// Message is one persisted conversation turn.
type Message struct {
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	IsBot     bool      `json:"is_bot"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a persisted intake session row.
type Session struct {
	ID        string    `json:"id"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the persistence adapter used by the flow engine.
type Store interface {
	// CreateSession creates a new session and returns its identifier.
	CreateSession(ctx context.Context) (string, error)

	// AddMessage durably appends one conversation turn.
	AddMessage(ctx context.Context, sessionID, content string, isBot bool) error

	// ListMessages returns a session's conversation turns in append order.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)

	// UpsertAnswer stores a validated answer, overwriting any prior value
	// for the same question in the same session.
	UpsertAnswer(ctx context.Context, sessionID, questionID, value string) error

	// GetAnswers returns the question-id -> value map for a session.
	GetAnswers(ctx context.Context, sessionID string) (map[string]string, error)

	// GetSession returns the session row, or nil if it does not exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// MarkCompleted sets the session's completion flag.
	MarkCompleted(ctx context.Context, sessionID string) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures store Opts.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// otherwise. File paths are treated as SQLite databases.
func DetectDSNType(dsn string) string {
	if strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
