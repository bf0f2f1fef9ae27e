package models

import (
	"fmt"
	"strings"
)

// SubmitMessageRequest is the body of POST /sessions/{id}/messages.
type SubmitMessageRequest struct {
	Content string `json:"content"`
}

// Validate checks that the submission carries usable text.
func (r SubmitMessageRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("content must not be empty")
	}
	return nil
}

// VoiceFrame is one message on the voice websocket channel. Inbound frames
// carry a transcribed utterance; outbound frames carry bot entries and
// celebration events.
type VoiceFrame struct {
	Type        string              `json:"type"`
	Content     string              `json:"content,omitempty"`
	Entries     []ConversationEntry `json:"entries,omitempty"`
	Celebration *Celebration        `json:"celebration,omitempty"`
	Completed   bool                `json:"completed,omitempty"`
	Rejected    bool                `json:"rejected,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Voice frame types.
const (
	VoiceFrameUtterance = "utterance"
	VoiceFrameReply     = "reply"
	VoiceFrameError     = "error"
)
