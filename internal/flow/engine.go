package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimblefin/loanflow/internal/models"
	"github.com/nimblefin/loanflow/internal/store"
	"github.com/nimblefin/loanflow/internal/validate"
)

// Engine is the intake state machine. It tracks each session's position in
// the question catalog, applies validators, advances or rejects, detects
// section transitions, and switches to free-form responder mode once every
// question is answered.
//
// Each session is Active(i) for 0 <= i < N, then Completed. The index only
// moves forward, by exactly 1 per successful validation, and is clamped at N
// once the completion flag is set.
type Engine struct {
	questions  []models.QuestionDefinition
	validators *validate.Registry
	store      store.Store
	responder  Responder
	now        func() time.Time

	// respondOnRejection folds a responder reply into rejection messages
	// instead of showing the validator's message alone.
	respondOnRejection bool

	mu       sync.Mutex
	sessions map[string]*session
}

// session holds one conversation's state. The mutex serializes submits so a
// second submission cannot interleave while one is in flight.
type session struct {
	mu      sync.Mutex
	state   models.SessionState
	entries []models.ConversationEntry
}

// Option configures an Engine.
type Option func(*Engine)

// WithQuestions overrides the default question catalog.
func WithQuestions(questions []models.QuestionDefinition) Option {
	return func(e *Engine) {
		e.questions = questions
	}
}

// WithClock overrides the engine clock, used for timestamps and age checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithResponderOnRejection routes rejected input through the responder and
// folds its reply into the rejection message.
func WithResponderOnRejection(enabled bool) Option {
	return func(e *Engine) {
		e.respondOnRejection = enabled
	}
}

// NewEngine creates a flow engine backed by the given store and responder.
// Both collaborators are best-effort: their failures never corrupt session
// state or block the in-memory conversation.
func NewEngine(st store.Store, responder Responder, opts ...Option) *Engine {
	e := &Engine{
		questions: Questions(),
		store:     st,
		responder: responder,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validators = validate.NewRegistry(e.now)
	slog.Debug("Engine.NewEngine: created", "questionCount", len(e.questions), "respondOnRejection", e.respondOnRejection)
	return e
}

// StartResult describes a freshly created session.
type StartResult struct {
	SessionID string                     `json:"session_id"`
	Entries   []models.ConversationEntry `json:"entries"`
	Question  *models.QuestionDefinition `json:"question"`
}

// SubmitResult describes what one submission produced: the conversation
// entries appended this turn, an optional celebration event, and whether the
// input was rejected or the session completed.
type SubmitResult struct {
	Entries      []models.ConversationEntry `json:"entries"`
	Celebration  *models.Celebration        `json:"celebration,omitempty"`
	Rejected     bool                       `json:"rejected"`
	Notice       string                     `json:"notice,omitempty"`
	Completed    bool                       `json:"completed"`
	NextQuestion *models.QuestionDefinition `json:"next_question,omitempty"`
}

// StartSession creates a new session and appends the first question prompt.
func (e *Engine) StartSession(ctx context.Context) (*StartResult, error) {
	if len(e.questions) == 0 {
		return nil, fmt.Errorf("question catalog is empty")
	}

	id, err := e.store.CreateSession(ctx)
	if err != nil {
		// Persistence is best-effort; the conversation proceeds in memory.
		id = uuid.NewString()
		slog.Warn("Engine.StartSession: store create failed, using local session ID", "error", err, "sessionID", id)
	}

	now := e.now()
	sess := &session{
		state: models.SessionState{
			SessionID: id,
			Answers:   make(map[string]models.AnswerRecord),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	first := e.appendEntry(ctx, sess, e.questions[0].Prompt, true)

	slog.Info("Engine.StartSession: session started", "sessionID", id)
	q := e.questions[0]
	return &StartResult{
		SessionID: id,
		Entries:   []models.ConversationEntry{first},
		Question:  &q,
	}, nil
}

// Submit processes one user submission for the given session. Empty or
// whitespace-only input is rejected before any entry is logged; the input
// boundary is expected to have filtered it already.
func (e *Engine) Submit(ctx context.Context, sessionID string, in models.Input) (*SubmitResult, error) {
	if in.IsBlank() {
		return nil, models.ErrEmptySubmission
	}

	sess, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.Completed {
		return e.submitCompleted(ctx, sess, in), nil
	}
	return e.submitActive(ctx, sess, in), nil
}

// submitActive handles a submission while unanswered questions remain.
func (e *Engine) submitActive(ctx context.Context, sess *session, in models.Input) *SubmitResult {
	i := sess.state.CurrentIndex
	q := e.questions[i]
	result := &SubmitResult{}

	// The user's raw input is logged even when later rejected.
	result.Entries = append(result.Entries, e.appendEntry(ctx, sess, in.Display(), false))

	verdict := e.validators.Validate(q.Rule, in)
	if !verdict.Valid {
		rejection := fmt.Sprintf("Sorry, %q doesn't look right. %s", in.Display(), verdict.Reason)
		if e.respondOnRejection && e.responder != nil {
			reply, err := e.responder.Respond(ctx, in.Display(), PromptContext{Mode: ModeIntake, QuestionID: q.ID})
			if err != nil {
				slog.Warn("Engine.submitActive: rejection responder failed, using validator message", "sessionID", sess.state.SessionID, "questionID", q.ID, "error", err)
			} else {
				rejection = reply + "\n\n" + rejection
			}
		}
		result.Entries = append(result.Entries, e.appendEntry(ctx, sess, rejection, true))
		result.Rejected = true
		result.Notice = "Invalid input: please check your answer and try again."
		result.NextQuestion = &q
		slog.Debug("Engine.submitActive: rejected", "sessionID", sess.state.SessionID, "questionID", q.ID, "reason", verdict.Reason)
		return result
	}

	value := in.Text
	if in.IsFile() {
		value = in.File.URL
	}
	now := e.now()
	sess.state.Answers[q.ID] = models.AnswerRecord{
		QuestionID: q.ID,
		Value:      value,
		Verdict:    verdict,
		AnsweredAt: now,
	}
	sess.state.UpdatedAt = now
	if err := e.store.UpsertAnswer(ctx, sess.state.SessionID, q.ID, value); err != nil {
		slog.Warn("Engine.submitActive: answer persistence failed", "sessionID", sess.state.SessionID, "questionID", q.ID, "error", err)
	}

	if i+1 < len(e.questions) {
		current, next := sectionAt(e.questions, i), sectionAt(e.questions, i+1)
		if current != next && sess.state.LastCelebrated != current {
			result.Celebration = &models.Celebration{Section: current, Message: sectionMessages[current]}
			sess.state.LastCelebrated = current
			slog.Info("Engine.submitActive: section completed", "sessionID", sess.state.SessionID, "section", current)
		}
		sess.state.CurrentIndex = i + 1
		nextQ := e.questions[i+1]
		result.Entries = append(result.Entries, e.appendEntry(ctx, sess, nextQ.Prompt, true))
		result.NextQuestion = &nextQ
		return result
	}

	// Final question answered: clamp the index and switch modes.
	sess.state.Completed = true
	sess.state.CurrentIndex = len(e.questions)
	if err := e.store.MarkCompleted(ctx, sess.state.SessionID); err != nil {
		slog.Warn("Engine.submitActive: completion persistence failed", "sessionID", sess.state.SessionID, "error", err)
	}
	result.Entries = append(result.Entries, e.appendEntry(ctx, sess, CompletionMessage, true))
	result.Celebration = &models.Celebration{Message: FinalCelebrationMessage, Final: true}
	result.Completed = true
	slog.Info("Engine.submitActive: session completed", "sessionID", sess.state.SessionID, "answers", len(sess.state.Answers))
	return result
}

// submitCompleted routes input to the responder with the full answer map as
// context. No validation occurs; any input is treated as a free-form question.
func (e *Engine) submitCompleted(ctx context.Context, sess *session, in models.Input) *SubmitResult {
	result := &SubmitResult{Completed: true}
	result.Entries = append(result.Entries, e.appendEntry(ctx, sess, in.Display(), false))

	reply := FallbackReply
	if e.responder != nil {
		answersJSON, err := json.Marshal(sess.state.AnswerValues())
		if err != nil {
			slog.Error("Engine.submitCompleted: answer context marshal failed", "sessionID", sess.state.SessionID, "error", err)
		}
		generated, err2 := e.responder.Respond(ctx, in.Display(), PromptContext{
			Mode:        ModeCompletion,
			AnswersJSON: string(answersJSON),
		})
		if err2 != nil {
			slog.Warn("Engine.submitCompleted: responder failed, using fallback reply", "sessionID", sess.state.SessionID, "error", err2)
		} else {
			reply = generated
		}
	}

	result.Entries = append(result.Entries, e.appendEntry(ctx, sess, reply, true))
	return result
}

// appendEntry appends a turn to the in-memory log and persists it best-effort.
func (e *Engine) appendEntry(ctx context.Context, sess *session, content string, isBot bool) models.ConversationEntry {
	entry := models.ConversationEntry{
		Seq:       len(sess.entries) + 1,
		Content:   content,
		IsBot:     isBot,
		Timestamp: e.now(),
	}
	sess.entries = append(sess.entries, entry)
	if err := e.store.AddMessage(ctx, sess.state.SessionID, content, isBot); err != nil {
		slog.Warn("Engine.appendEntry: message persistence failed", "sessionID", sess.state.SessionID, "isBot", isBot, "error", err)
	}
	return entry
}

// session looks up a live session by ID.
func (e *Engine) session(sessionID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// Transcript returns a copy of the session's ordered conversation log.
func (e *Engine) Transcript(sessionID string) ([]models.ConversationEntry, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]models.ConversationEntry, len(sess.entries))
	copy(out, sess.entries)
	return out, nil
}

// State returns a copy of the session's current state for hosts and tests.
func (e *Engine) State(sessionID string) (models.SessionState, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return models.SessionState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	state := sess.state
	state.Answers = make(map[string]models.AnswerRecord, len(sess.state.Answers))
	for id, rec := range sess.state.Answers {
		state.Answers[id] = rec
	}
	return state, nil
}

// CurrentQuestion returns the definition the session is waiting on, or nil
// once the session is completed.
func (e *Engine) CurrentQuestion(sessionID string) (*models.QuestionDefinition, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.Completed {
		return nil, nil
	}
	q := e.questions[sess.state.CurrentIndex]
	return &q, nil
}

// EndSession discards a session's in-memory state. In-flight persistence or
// responder calls for it are allowed to fail harmlessly.
func (e *Engine) EndSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, sessionID)
	slog.Debug("Engine.EndSession: session discarded", "sessionID", sessionID)
}
