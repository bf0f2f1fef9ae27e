package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a Store kept entirely in process memory, used in tests
// and as a fallback when no database is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
	answers  map[string]map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
		answers:  make(map[string]map[string]string),
	}
}

// CreateSession creates a new session with a generated identifier.
func (s *InMemoryStore) CreateSession(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := time.Now()
	s.sessions[id] = &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	return id, nil
}

// AddMessage appends one conversation turn.
func (s *InMemoryStore) AddMessage(ctx context.Context, sessionID, content string, isBot bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	s.messages[sessionID] = append(msgs, Message{
		SessionID: sessionID,
		Content:   content,
		IsBot:     isBot,
		Seq:       len(msgs) + 1,
		CreatedAt: time.Now(),
	})
	return nil
}

// ListMessages returns a session's turns in append order.
func (s *InMemoryStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// UpsertAnswer stores or overwrites a validated answer.
func (s *InMemoryStore) UpsertAnswer(ctx context.Context, sessionID, questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers, ok := s.answers[sessionID]
	if !ok {
		answers = make(map[string]string)
		s.answers[sessionID] = answers
	}
	answers[questionID] = value
	return nil
}

// GetAnswers returns the stored answers for a session.
func (s *InMemoryStore) GetAnswers(ctx context.Context, sessionID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.answers[sessionID]))
	for k, v := range s.answers[sessionID] {
		out[k] = v
	}
	return out, nil
}

// GetSession returns the session row, or nil when unknown.
func (s *InMemoryStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

// MarkCompleted sets the completion flag.
func (s *InMemoryStore) MarkCompleted(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	sess.Completed = true
	sess.UpdatedAt = time.Now()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
