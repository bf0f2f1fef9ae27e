// Package models defines the core data structures for LoanFlow.
//
// It includes the question catalog types, answer records, conversation entries,
// and the per-session state owned by the flow engine.
package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// InputKind describes what kind of answer a question expects.
type InputKind string

const (
	// InputKindText expects free text.
	InputKindText InputKind = "text"
	// InputKindNumber expects a digits-only amount.
	InputKindNumber InputKind = "number"
	// InputKindDate expects a YYYY-MM-DD date.
	InputKindDate InputKind = "date"
	// InputKindEmail expects an email address.
	InputKindEmail InputKind = "email"
	// InputKindFile expects an uploaded document.
	InputKindFile InputKind = "file"
)

// Error variables for better error handling and testability
var (
	ErrEmptySubmission = errors.New("submission is empty or whitespace-only")
	ErrSessionNotFound = errors.New("session not found")
)

// Verdict is the result of validating a raw answer: a validity flag plus a
// human-readable reason. Reason is empty when the answer is valid.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidVerdict returns a passing verdict.
func ValidVerdict() Verdict {
	return Verdict{Valid: true}
}

// InvalidVerdict returns a failing verdict with the given reason.
func InvalidVerdict(reason string) Verdict {
	return Verdict{Valid: false, Reason: reason}
}

// FileRef describes an uploaded document by reference. The engine never holds
// file bytes; uploads happen at the boundary and only the retrieval URL plus
// declared media type travel through the flow.
type FileRef struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	URL       string `json:"url"`
}

// Input is a single submission: either text or a file reference, never both.
type Input struct {
	Text string   `json:"text,omitempty"`
	File *FileRef `json:"file,omitempty"`
}

// TextInput wraps raw text as an Input.
func TextInput(text string) Input {
	return Input{Text: text}
}

// FileInput wraps an uploaded file reference as an Input.
func FileInput(ref FileRef) Input {
	return Input{File: &ref}
}

// IsFile reports whether the input carries a file payload.
func (in Input) IsFile() bool {
	return in.File != nil
}

// IsBlank reports whether the input is empty or whitespace-only. File inputs
// are never blank.
func (in Input) IsBlank() bool {
	return in.File == nil && strings.TrimSpace(in.Text) == ""
}

// Display returns the user-visible rendering of the input for conversation
// logging: the raw text, or the file name for uploads.
func (in Input) Display() string {
	if in.File != nil {
		return in.File.Name
	}
	return in.Text
}

// QuestionDefinition describes one step of the intake flow. Definitions are
// immutable; the full ordered catalog is fixed at flow start.
type QuestionDefinition struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Kind        InputKind `json:"kind"`
	Rule        string    `json:"rule"`
	Placeholder string    `json:"placeholder,omitempty"`
	Section     string    `json:"section"`
}

// AnswerRecord stores a validated answer for one question. Created only after
// the answer passed validation; a later submission for the same question
// overwrites the prior record.
type AnswerRecord struct {
	QuestionID string    `json:"question_id"`
	Value      string    `json:"value"`
	Verdict    Verdict   `json:"verdict"`
	AnsweredAt time.Time `json:"answered_at"`
}

// ConversationEntry is a single turn of the conversation. Entries form an
// append-only log and are never mutated or deleted.
type ConversationEntry struct {
	Seq       int       `json:"seq"`
	Content   string    `json:"content"`
	IsBot     bool      `json:"is_bot"`
	Timestamp time.Time `json:"timestamp"`
}

// Celebration is the derived event emitted when a section of the flow
// completes, and once more at overall completion.
type Celebration struct {
	Section string `json:"section,omitempty"`
	Message string `json:"message"`
	Final   bool   `json:"final"`
}

// SessionState is the mutable core of one intake session, owned exclusively
// by the flow engine for the session's lifetime. CurrentIndex only increases
// by exactly 1 per successful validation and is clamped at the question count
// once Completed is set.
type SessionState struct {
	SessionID      string                  `json:"session_id"`
	CurrentIndex   int                     `json:"current_index"`
	Answers        map[string]AnswerRecord `json:"answers"`
	LastCelebrated string                  `json:"last_celebrated,omitempty"`
	Completed      bool                    `json:"completed"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// ToJSON serializes the session state to a JSON string.
func (s *SessionState) ToJSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON deserializes session state from a JSON string.
func (s *SessionState) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), s)
}

// AnswerValues flattens the answer records to a question-id -> raw-value map,
// used as responder context and for persistence.
func (s *SessionState) AnswerValues() map[string]string {
	values := make(map[string]string, len(s.Answers))
	for id, rec := range s.Answers {
		values[id] = rec.Value
	}
	return values
}
