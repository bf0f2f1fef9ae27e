package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nimblefin/loanflow/internal/models"
	"github.com/nimblefin/loanflow/internal/store"
	"github.com/nimblefin/loanflow/internal/validate"
)

// stubResponder records calls and returns a canned reply or error.
type stubResponder struct {
	reply string
	err   error
	calls []PromptContext
}

func (s *stubResponder) Respond(ctx context.Context, userMessage string, pctx PromptContext) (string, error) {
	s.calls = append(s.calls, pctx)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

// failingStore wraps a Store and fails every write, to prove persistence is
// best-effort.
type failingStore struct {
	store.Store
}

func (f *failingStore) CreateSession(ctx context.Context) (string, error) {
	return "", errors.New("database unreachable")
}

func (f *failingStore) AddMessage(ctx context.Context, sessionID, content string, isBot bool) error {
	return errors.New("database unreachable")
}

func (f *failingStore) UpsertAnswer(ctx context.Context, sessionID, questionID, value string) error {
	return errors.New("database unreachable")
}

func (f *failingStore) MarkCompleted(ctx context.Context, sessionID string) error {
	return errors.New("database unreachable")
}

// threeQuestions is a minimal catalog spanning two sections.
func threeQuestions() []models.QuestionDefinition {
	return []models.QuestionDefinition{
		{ID: "name", Prompt: "What is your name?", Kind: models.InputKindText, Rule: validate.RuleFullName, Section: "identity"},
		{ID: "gender", Prompt: "What is your gender?", Kind: models.InputKindText, Rule: validate.RuleGender, Section: "identity"},
		{ID: "city", Prompt: "Which city do you live in?", Kind: models.InputKindText, Rule: validate.RuleCityName, Section: "contact"},
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.InMemoryStore, *stubResponder) {
	t.Helper()
	st := store.NewInMemoryStore()
	responder := &stubResponder{reply: "Happy to help with that."}
	opts = append([]Option{WithQuestions(threeQuestions())}, opts...)
	return NewEngine(st, responder, opts...), st, responder
}

func startSession(t *testing.T, e *Engine) string {
	t.Helper()
	res, err := e.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return res.SessionID
}

func TestStartSessionAsksFirstQuestion(t *testing.T) {
	e, st, _ := newTestEngine(t)
	res, err := e.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if len(res.Entries) != 1 || !res.Entries[0].IsBot || res.Entries[0].Content != "What is your name?" {
		t.Fatalf("unexpected opening entries: %+v", res.Entries)
	}
	if res.Question == nil || res.Question.ID != "name" {
		t.Fatalf("unexpected opening question: %+v", res.Question)
	}

	msgs, _ := st.ListMessages(context.Background(), res.SessionID)
	if len(msgs) != 1 || !msgs[0].IsBot {
		t.Errorf("opening prompt not persisted: %+v", msgs)
	}
}

func TestValidAnswerAdvancesByExactlyOne(t *testing.T) {
	e, st, _ := newTestEngine(t)
	id := startSession(t, e)

	res, err := e.Submit(context.Background(), id, models.TextInput("Priya Sharma"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Rejected {
		t.Fatalf("valid answer rejected: %+v", res)
	}
	if res.NextQuestion == nil || res.NextQuestion.ID != "gender" {
		t.Fatalf("unexpected next question: %+v", res.NextQuestion)
	}

	state, _ := e.State(id)
	if state.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", state.CurrentIndex)
	}
	rec, ok := state.Answers["name"]
	if !ok {
		t.Fatal("answer record missing")
	}
	if rec.Value != "Priya Sharma" {
		t.Errorf("stored value %q, want the exact raw input", rec.Value)
	}

	answers, _ := st.GetAnswers(context.Background(), id)
	if answers["name"] != "Priya Sharma" {
		t.Errorf("answer not persisted upstream: %v", answers)
	}
}

func TestInvalidAnswerNeverAdvances(t *testing.T) {
	e, _, _ := newTestEngine(t)
	id := startSession(t, e)

	for i := 0; i < 3; i++ {
		res, err := e.Submit(context.Background(), id, models.TextInput("Priya"))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if !res.Rejected {
			t.Fatal("invalid answer accepted")
		}
		if res.Notice == "" {
			t.Error("rejection carries no notice")
		}
		rejection := res.Entries[len(res.Entries)-1]
		if !rejection.IsBot || !strings.Contains(rejection.Content, "Priya") {
			t.Errorf("rejection entry does not embed the raw input: %q", rejection.Content)
		}
	}

	state, _ := e.State(id)
	if state.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d after repeated rejections, want 0", state.CurrentIndex)
	}
	if len(state.Answers) != 0 {
		t.Errorf("answer records created for rejected input: %v", state.Answers)
	}
}

func TestIndexIsMonotonicAndClamped(t *testing.T) {
	e, _, _ := newTestEngine(t)
	id := startSession(t, e)

	answers := []string{"Priya Sharma", "female", "Mumbai"}
	prev := 0
	for _, a := range answers {
		if _, err := e.Submit(context.Background(), id, models.TextInput(a)); err != nil {
			t.Fatalf("Submit(%q) failed: %v", a, err)
		}
		state, _ := e.State(id)
		if state.CurrentIndex < prev {
			t.Fatalf("index regressed from %d to %d", prev, state.CurrentIndex)
		}
		if state.CurrentIndex > len(threeQuestions()) {
			t.Fatalf("index %d exceeds question count", state.CurrentIndex)
		}
		prev = state.CurrentIndex
	}

	state, _ := e.State(id)
	if !state.Completed || state.CurrentIndex != len(threeQuestions()) {
		t.Errorf("final state = %+v, want completed with clamped index", state)
	}
}

func TestTranscriptAfterTwoValidAnswers(t *testing.T) {
	e, _, _ := newTestEngine(t)
	id := startSession(t, e)

	if _, err := e.Submit(context.Background(), id, models.TextInput("Priya Sharma")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := e.Submit(context.Background(), id, models.TextInput("female")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// bot-q1, user-a1, bot-q2, user-a2, bot-q3
	entries, err := e.Transcript(id)
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5: %+v", len(entries), entries)
	}
	wantBot := []bool{true, false, true, false, true}
	for i, entry := range entries {
		if entry.IsBot != wantBot[i] {
			t.Errorf("entry %d IsBot = %v, want %v", i, entry.IsBot, wantBot[i])
		}
		if entry.Seq != i+1 {
			t.Errorf("entry %d Seq = %d, want %d", i, entry.Seq, i+1)
		}
	}

	// An invalid third answer logs the exchange but leaves the session at
	// the same question with no new answer record.
	if _, err := e.Submit(context.Background(), id, models.TextInput("X")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	entries, _ = e.Transcript(id)
	if len(entries) != 7 {
		t.Errorf("got %d entries after rejection, want 7", len(entries))
	}
	state, _ := e.State(id)
	if state.CurrentIndex != 2 || state.Completed {
		t.Errorf("state after rejection = %+v, want Active(2)", state)
	}
	if len(state.Answers) != 2 {
		t.Errorf("got %d answer records, want 2", len(state.Answers))
	}
}

func TestCelebrationFiresOncePerSectionBoundary(t *testing.T) {
	e, _, _ := newTestEngine(t)
	id := startSession(t, e)

	res, _ := e.Submit(context.Background(), id, models.TextInput("Priya Sharma"))
	if res.Celebration != nil {
		t.Errorf("celebration fired mid-section: %+v", res.Celebration)
	}

	res, _ = e.Submit(context.Background(), id, models.TextInput("female"))
	if res.Celebration == nil || res.Celebration.Section != "identity" || res.Celebration.Final {
		t.Fatalf("expected identity section celebration, got %+v", res.Celebration)
	}

	state, _ := e.State(id)
	if state.LastCelebrated != "identity" {
		t.Errorf("LastCelebrated = %q, want identity", state.LastCelebrated)
	}

	res, _ = e.Submit(context.Background(), id, models.TextInput("Mumbai"))
	if res.Celebration == nil || !res.Celebration.Final {
		t.Fatalf("expected terminal celebration, got %+v", res.Celebration)
	}
	if !res.Completed {
		t.Error("final answer did not complete the session")
	}
}

func TestCelebrationsAcrossFullCatalog(t *testing.T) {
	st := store.NewInMemoryStore()
	e := NewEngine(st, &stubResponder{reply: "ok"})
	id := startSession(t, e)

	answers := []models.Input{
		models.TextInput("Priya Sharma"),
		models.TextInput("female"),
		models.TextInput("1990-05-20"),
		models.TextInput("ABCDE1234F"),
		models.TextInput("salaried"),
		models.TextInput("Acme Widgets Pvt Ltd"),
		models.TextInput("85000"),
		models.FileInput(models.FileRef{Name: "payslip.pdf", MediaType: "application/pdf", URL: "memory://payslip.pdf"}),
		models.TextInput("14 MG Road, 4th Floor"),
		models.TextInput("Near Trinity Metro"),
		models.TextInput("Bengaluru"),
		models.TextInput("Karnataka"),
		models.TextInput("560001"),
		models.TextInput("priya@acme.co.in"),
		models.TextInput("Bengaluru"),
		models.TextInput("560034"),
	}

	var sections []string
	finals := 0
	for i, in := range answers {
		res, err := e.Submit(context.Background(), id, in)
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		if res.Rejected {
			t.Fatalf("answer %d rejected: %+v", i, res.Entries[len(res.Entries)-1])
		}
		if res.Celebration != nil {
			if res.Celebration.Final {
				finals++
			} else {
				sections = append(sections, res.Celebration.Section)
			}
		}
	}

	want := []string{SectionIdentity, SectionEmployment, SectionOfficeAddress}
	if len(sections) != len(want) {
		t.Fatalf("section celebrations = %v, want %v", sections, want)
	}
	for i := range want {
		if sections[i] != want[i] {
			t.Errorf("celebration %d = %q, want %q", i, sections[i], want[i])
		}
	}
	if finals != 1 {
		t.Errorf("terminal celebration fired %d times, want 1", finals)
	}

	state, _ := e.State(id)
	if rec := state.Answers["payslip"]; rec.Value != "memory://payslip.pdf" {
		t.Errorf("payslip answer = %q, want the retrieval URL", rec.Value)
	}
}

func TestCompletedModeRoutesToResponder(t *testing.T) {
	e, _, responder := newTestEngine(t)
	id := startSession(t, e)
	for _, a := range []string{"Priya Sharma", "female", "Mumbai"} {
		if _, err := e.Submit(context.Background(), id, models.TextInput(a)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	res, err := e.Submit(context.Background(), id, models.TextInput("When will my loan be approved?"))
	if err != nil {
		t.Fatalf("Submit in completion mode failed: %v", err)
	}
	if !res.Completed || res.Rejected {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("got %d entries, want user turn plus reply", len(res.Entries))
	}
	if res.Entries[1].Content != "Happy to help with that." {
		t.Errorf("reply = %q", res.Entries[1].Content)
	}

	if len(responder.calls) != 1 {
		t.Fatalf("responder called %d times, want 1", len(responder.calls))
	}
	call := responder.calls[0]
	if call.Mode != ModeCompletion {
		t.Errorf("responder mode = %q, want completion", call.Mode)
	}
	for _, field := range []string{"name", "gender", "city", "Priya Sharma"} {
		if !strings.Contains(call.AnswersJSON, field) {
			t.Errorf("answer context %q missing %q", call.AnswersJSON, field)
		}
	}

	// No validation in completion mode: arbitrary input is accepted.
	state, _ := e.State(id)
	if state.CurrentIndex != len(threeQuestions()) {
		t.Errorf("completion-mode submit moved the index to %d", state.CurrentIndex)
	}
}

func TestResponderFailureYieldsFallback(t *testing.T) {
	st := store.NewInMemoryStore()
	responder := &stubResponder{err: errors.New("model timeout")}
	e := NewEngine(st, responder, WithQuestions(threeQuestions()))
	id := startSession(t, e)
	for _, a := range []string{"Priya Sharma", "female", "Mumbai"} {
		if _, err := e.Submit(context.Background(), id, models.TextInput(a)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	res, err := e.Submit(context.Background(), id, models.TextInput("What happens next?"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Entries[1].Content != FallbackReply {
		t.Errorf("reply = %q, want fallback", res.Entries[1].Content)
	}
}

func TestResponderOnRejectionFoldsReply(t *testing.T) {
	st := store.NewInMemoryStore()
	responder := &stubResponder{reply: "Let's keep going with your application."}
	e := NewEngine(st, responder, WithQuestions(threeQuestions()), WithResponderOnRejection(true))
	id := startSession(t, e)

	res, err := e.Submit(context.Background(), id, models.TextInput("why do you need this?"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.Rejected {
		t.Fatal("off-script input not rejected")
	}
	rejection := res.Entries[len(res.Entries)-1].Content
	if !strings.Contains(rejection, "Let's keep going with your application.") {
		t.Errorf("rejection %q does not fold in the responder reply", rejection)
	}
	if len(responder.calls) != 1 || responder.calls[0].Mode != ModeIntake || responder.calls[0].QuestionID != "name" {
		t.Errorf("responder context = %+v, want intake mode for question name", responder.calls)
	}
}

func TestEmptySubmissionRejectedAtBoundary(t *testing.T) {
	e, _, _ := newTestEngine(t)
	id := startSession(t, e)

	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := e.Submit(context.Background(), id, models.TextInput(in)); !errors.Is(err, models.ErrEmptySubmission) {
			t.Errorf("Submit(%q) error = %v, want ErrEmptySubmission", in, err)
		}
	}

	entries, _ := e.Transcript(id)
	if len(entries) != 1 {
		t.Errorf("blank submissions were logged: %+v", entries)
	}
}

func TestFileWhereTextExpectedIsRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	id := startSession(t, e)

	res, err := e.Submit(context.Background(), id, models.FileInput(models.FileRef{Name: "resume.pdf", URL: "memory://resume.pdf"}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.Rejected {
		t.Fatal("file payload accepted for a text question")
	}
	state, _ := e.State(id)
	if state.CurrentIndex != 0 || len(state.Answers) != 0 {
		t.Errorf("state corrupted by rejected file: %+v", state)
	}
}

func TestPersistenceFailuresDoNotBlockFlow(t *testing.T) {
	st := &failingStore{Store: store.NewInMemoryStore()}
	e := NewEngine(st, &stubResponder{reply: "ok"}, WithQuestions(threeQuestions()))

	res, err := e.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession failed despite best-effort persistence: %v", err)
	}
	id := res.SessionID
	if id == "" {
		t.Fatal("no local session ID generated")
	}

	for _, a := range []string{"Priya Sharma", "female", "Mumbai"} {
		r, err := e.Submit(context.Background(), id, models.TextInput(a))
		if err != nil {
			t.Fatalf("Submit(%q) failed: %v", a, err)
		}
		if r.Rejected {
			t.Fatalf("Submit(%q) rejected", a)
		}
	}

	state, _ := e.State(id)
	if !state.Completed {
		t.Error("flow did not complete while persistence was failing")
	}
	entries, _ := e.Transcript(id)
	if len(entries) != 7 {
		t.Errorf("in-memory log has %d entries, want 7", len(entries))
	}
}

func TestUnknownSessionAndLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if _, err := e.Submit(context.Background(), "nope", models.TextInput("hello")); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Submit for unknown session error = %v", err)
	}

	id := startSession(t, e)
	q, err := e.CurrentQuestion(id)
	if err != nil || q == nil || q.ID != "name" {
		t.Errorf("CurrentQuestion = (%+v, %v)", q, err)
	}

	e.EndSession(id)
	if _, err := e.Submit(context.Background(), id, models.TextInput("Priya Sharma")); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Submit after EndSession error = %v", err)
	}
}

func TestSessionStateSerializes(t *testing.T) {
	e, _, _ := newTestEngine(t, WithClock(func() time.Time {
		return time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	}))
	id := startSession(t, e)
	if _, err := e.Submit(context.Background(), id, models.TextInput("Priya Sharma")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	state, _ := e.State(id)
	encoded, err := state.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var restored models.SessionState
	if err := restored.FromJSON(encoded); err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if restored.CurrentIndex != state.CurrentIndex || restored.SessionID != state.SessionID {
		t.Errorf("restored state %+v does not match %+v", restored, state)
	}
	if restored.Answers["name"].Value != "Priya Sharma" {
		t.Errorf("restored answer = %+v", restored.Answers["name"])
	}
}

func TestConcurrentSubmitsStaySerialized(t *testing.T) {
	e, _, _ := newTestEngine(t)
	id := startSession(t, e)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			// A mix of valid and invalid answers for the same question.
			in := models.TextInput(fmt.Sprintf("Invalid%d", i))
			if i == 0 {
				in = models.TextInput("Priya Sharma")
			}
			e.Submit(context.Background(), id, in)
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	state, _ := e.State(id)
	if state.CurrentIndex > 2 {
		t.Errorf("index %d after concurrent submits for two questions", state.CurrentIndex)
	}
	entries, _ := e.Transcript(id)
	for i, entry := range entries {
		if entry.Seq != i+1 {
			t.Errorf("entry %d has seq %d; log interleaved", i, entry.Seq)
		}
	}
}
