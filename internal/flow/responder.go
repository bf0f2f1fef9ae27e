package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nimblefin/loanflow/internal/genai"
	"github.com/openai/openai-go"
)

// Mode identifies which conversational mode a responder call serves.
type Mode string

const (
	// ModeIntake keeps the model on-topic while mandatory questions remain.
	ModeIntake Mode = "intake"
	// ModeCompletion answers general questions about the collected application.
	ModeCompletion Mode = "completion"
)

// PromptContext carries the context a responder needs to compose its prompt:
// the current question identifier during intake, or the JSON-serialized
// answer map after completion.
type PromptContext struct {
	Mode        Mode
	QuestionID  string
	AnswersJSON string
}

// Responder generates a natural-language reply for free-form or off-script
// input. Implementations are fallible and latency-bearing; callers fall back
// to FallbackReply on any error.
type Responder interface {
	Respond(ctx context.Context, userMessage string, pctx PromptContext) (string, error)
}

// FallbackReply is returned to the user whenever the responder fails or a
// bounded wait elapses without a reply.
const FallbackReply = "I apologize, but I'm having trouble processing that. Could you please answer the current question?"

const rolePrompt = "You are a helpful loan application assistant. Keep responses professional, concise, and friendly. Don't provide specific loan terms or conditions."

// GenAIResponder implements Responder on top of the GenAI chat client.
type GenAIResponder struct {
	client genai.ClientInterface
}

// NewGenAIResponder creates a responder backed by the given GenAI client.
func NewGenAIResponder(client genai.ClientInterface) *GenAIResponder {
	return &GenAIResponder{client: client}
}

// Respond composes the mode-appropriate prompt and generates a reply.
func (r *GenAIResponder) Respond(ctx context.Context, userMessage string, pctx PromptContext) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("genai client not configured")
	}

	systemPrompt := rolePrompt
	switch pctx.Mode {
	case ModeIntake:
		systemPrompt += fmt.Sprintf(" You are currently asking the user about %s. If the user asks something unrelated, politely acknowledge their question and guide them back to providing the required information.", pctx.QuestionID)
	case ModeCompletion:
		systemPrompt += " The applicant has finished the intake questions. Answer general questions about their application using the collected data below."
		if pctx.AnswersJSON != "" {
			systemPrompt += "\n\nApplication data (JSON):\n" + pctx.AnswersJSON
		}
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userMessage),
	}

	reply, err := r.client.GenerateWithMessages(ctx, messages)
	if err != nil {
		slog.Error("GenAIResponder.Respond: generation failed", "mode", pctx.Mode, "questionID", pctx.QuestionID, "error", err)
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	slog.Debug("GenAIResponder.Respond: generated reply", "mode", pctx.Mode, "replyLength", len(reply))
	return reply, nil
}
