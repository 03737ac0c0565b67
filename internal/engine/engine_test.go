package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goedu/assessment-engine/internal/clock"
	"github.com/goedu/assessment-engine/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeCatalog struct {
	defs map[int64]*model.TestDefinition
}

func (c *fakeCatalog) FetchDefinition(_ context.Context, testID int64) (*model.TestDefinition, error) {
	def, ok := c.defs[testID]
	if !ok {
		return nil, ErrTestNotFound
	}
	return def, nil
}

type fakeResultSink struct {
	mu      sync.Mutex
	results []*model.Result
	err     error
}

func (s *fakeResultSink) SaveResult(_ context.Context, result *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, result)
	return nil
}

func (s *fakeResultSink) saved() []*model.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Result(nil), s.results...)
}

type savedAnswer struct {
	questionID int64
	answerID   int64
}

type fakeAnswerSink struct {
	mu    sync.Mutex
	calls []savedAnswer
}

func (s *fakeAnswerSink) SaveAnswer(_ context.Context, _ uuid.UUID, _ int, _ int64, questionID, answerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, savedAnswer{questionID, answerID})
	return nil
}

// ─── Fixtures ───────────────────────────────────────────────────────

func quizDefinition() *model.TestDefinition {
	return &model.TestDefinition{
		ID:               1,
		Title:            "Short Quiz",
		TimeLimitSeconds: 60,
		PassScorePercent: 70,
		Questions: []model.Question{
			{
				ID:     10,
				Points: 5,
				Answers: []model.Answer{
					{ID: 101, IsCorrect: true},
					{ID: 102},
				},
			},
			{
				ID:     20,
				Points: 10,
				Answers: []model.Answer{
					{ID: 201},
					{ID: 202, IsCorrect: true},
				},
			},
		},
	}
}

type fixture struct {
	engine  *Engine
	clk     *clock.Manual
	results *fakeResultSink
	answers *fakeAnswerSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	results := &fakeResultSink{}
	answers := &fakeAnswerSink{}
	cat := &fakeCatalog{defs: map[int64]*model.TestDefinition{1: quizDefinition()}}
	return &fixture{
		engine:  New(cat, results, answers, clk, zerolog.Nop(), time.Hour),
		clk:     clk,
		results: results,
		answers: answers,
	}
}

// tick drives the countdown deterministically, bypassing the timer
// goroutine (manual clock tickers never fire).
func (f *fixture) tick(t *testing.T, sessionID uuid.UUID, seconds int) {
	t.Helper()
	s, err := f.engine.lookup(sessionID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	for i := 0; i < seconds; i++ {
		f.clk.Advance(time.Second)
		f.engine.applyTick(s, 1)
	}
}

// ─── Start ──────────────────────────────────────────────────────────

func TestStartSession(t *testing.T) {
	f := newFixture(t)

	snap, err := f.engine.StartSession(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if snap.Status != model.SessionStatusActive {
		t.Errorf("Status = %s, want ACTIVE", snap.Status)
	}
	if snap.RemainingSeconds != 60 {
		t.Errorf("RemainingSeconds = %d, want 60", snap.RemainingSeconds)
	}
	if snap.CurrentQuestionIndex != 0 {
		t.Errorf("CurrentQuestionIndex = %d, want 0", snap.CurrentQuestionIndex)
	}
	if snap.QuestionCount != 2 {
		t.Errorf("QuestionCount = %d, want 2", snap.QuestionCount)
	}
	if len(snap.AnsweredQuestionIDs) != 0 {
		t.Errorf("AnsweredQuestionIDs = %v, want empty", snap.AnsweredQuestionIDs)
	}
}

func TestStartSessionRejectsSecondActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("first StartSession failed: %v", err)
	}

	if _, err := f.engine.StartSession(ctx, 1, 1); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("second StartSession = %v, want ErrSessionAlreadyActive", err)
	}

	// The original session is untouched by the failed start.
	snap, err := f.engine.Snapshot(first.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Status != model.SessionStatusActive {
		t.Errorf("Status = %s, want ACTIVE", snap.Status)
	}

	// Terminating the first session frees the slot.
	if _, err := f.engine.Submit(ctx, first.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.engine.StartSession(ctx, 1, 1); err != nil {
		t.Fatalf("StartSession after submit failed: %v", err)
	}
}

func TestStartSessionDifferentUsersIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.StartSession(ctx, 1, 1); err != nil {
		t.Fatalf("user 1 StartSession failed: %v", err)
	}
	if _, err := f.engine.StartSession(ctx, 2, 1); err != nil {
		t.Fatalf("user 2 StartSession failed: %v", err)
	}
}

func TestStartSessionUnknownTest(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.StartSession(context.Background(), 1, 999); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("StartSession = %v, want ErrTestNotFound", err)
	}

	// The failed start must not claim the user's active slot.
	if _, err := f.engine.StartSession(context.Background(), 1, 1); err != nil {
		t.Fatalf("StartSession after failure = %v, want success", err)
	}
}

func TestStartSessionInvalidDefinition(t *testing.T) {
	tests := []struct {
		name string
		def  *model.TestDefinition
	}{
		{
			name: "no questions",
			def:  &model.TestDefinition{ID: 2, TimeLimitSeconds: 60},
		},
		{
			name: "zero time limit",
			def: &model.TestDefinition{
				ID:        2,
				Questions: []model.Question{{ID: 1, Points: 1}},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			cat := f.engine.catalog.(*fakeCatalog)
			cat.defs[2] = tc.def

			if _, err := f.engine.StartSession(context.Background(), 1, 2); !errors.Is(err, ErrInvalidTestDefinition) {
				t.Fatalf("StartSession = %v, want ErrInvalidTestDefinition", err)
			}
		})
	}
}

// ─── Answers ────────────────────────────────────────────────────────

func TestRecordAnswerOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if err := f.engine.RecordAnswer(ctx, snap.ID, 10, 102); err != nil {
		t.Fatalf("first RecordAnswer failed: %v", err)
	}
	if err := f.engine.RecordAnswer(ctx, snap.ID, 10, 101); err != nil {
		t.Fatalf("overwriting RecordAnswer failed: %v", err)
	}

	after, err := f.engine.Snapshot(snap.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(after.AnsweredQuestionIDs) != 1 || after.AnsweredQuestionIDs[0] != 10 {
		t.Errorf("AnsweredQuestionIDs = %v, want [10]", after.AnsweredQuestionIDs)
	}

	// Only the final pick counts on submit.
	result, err := f.engine.Submit(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.AnswersSnapshot[10] != 101 {
		t.Errorf("AnswersSnapshot[10] = %d, want 101", result.AnswersSnapshot[10])
	}
	if result.Score != 5 {
		t.Errorf("Score = %d, want 5", result.Score)
	}

	// Both writes hit the autosave sink.
	if got := len(f.answers.calls); got != 2 {
		t.Errorf("autosave calls = %d, want 2", got)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if err := f.engine.RecordAnswer(ctx, snap.ID, 999, 101); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("unknown question: got %v, want ErrUnknownQuestion", err)
	}
	if err := f.engine.RecordAnswer(ctx, snap.ID, 10, 999); !errors.Is(err, ErrUnknownAnswer) {
		t.Errorf("unknown answer: got %v, want ErrUnknownAnswer", err)
	}
	// Answer ID belonging to a different question is rejected too.
	if err := f.engine.RecordAnswer(ctx, snap.ID, 10, 202); !errors.Is(err, ErrUnknownAnswer) {
		t.Errorf("cross-question answer: got %v, want ErrUnknownAnswer", err)
	}
	if err := f.engine.RecordAnswer(ctx, uuid.New(), 10, 101); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: got %v, want ErrSessionNotFound", err)
	}

	// Rejected answers are not autosaved.
	if got := len(f.answers.calls); got != 0 {
		t.Errorf("autosave calls = %d, want 0", got)
	}
}

func TestRecordAnswerAfterTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := f.engine.Submit(ctx, snap.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := f.engine.RecordAnswer(ctx, snap.ID, 10, 101); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("RecordAnswer = %v, want ErrSessionNotActive", err)
	}
}

// ─── Navigation ─────────────────────────────────────────────────────

func TestNavigateTo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if err := f.engine.NavigateTo(snap.ID, 1); err != nil {
		t.Fatalf("NavigateTo failed: %v", err)
	}
	after, _ := f.engine.Snapshot(snap.ID)
	if after.CurrentQuestionIndex != 1 {
		t.Errorf("CurrentQuestionIndex = %d, want 1", after.CurrentQuestionIndex)
	}

	if err := f.engine.NavigateTo(snap.ID, -1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("negative index: got %v, want ErrIndexOutOfRange", err)
	}
	if err := f.engine.NavigateTo(snap.ID, 2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("index past end: got %v, want ErrIndexOutOfRange", err)
	}

	// Failed navigation leaves the pointer alone.
	after, _ = f.engine.Snapshot(snap.ID)
	if after.CurrentQuestionIndex != 1 {
		t.Errorf("CurrentQuestionIndex after failures = %d, want 1", after.CurrentQuestionIndex)
	}
}

func TestNavigateAfterTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := f.engine.Cancel(ctx, snap.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if err := f.engine.NavigateTo(snap.ID, 1); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("NavigateTo = %v, want ErrSessionNotActive", err)
	}
}

// ─── Submit / Cancel ────────────────────────────────────────────────

func TestSubmitIsIdempotentPerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := f.engine.RecordAnswer(ctx, snap.ID, 20, 202); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}

	result, err := f.engine.Submit(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Score != 10 || result.MaxScore != 15 || result.Percentage != 67 || result.IsPassed {
		t.Errorf("Result = %+v, want 10/15, 67%%, not passed", result)
	}

	// Second submit fails; exactly one result ever exists.
	if _, err := f.engine.Submit(ctx, snap.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("second Submit = %v, want ErrSessionNotActive", err)
	}

	got, err := f.engine.Result(snap.ID)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if got != result {
		t.Error("Result returned a different object than Submit produced")
	}

	if saved := f.results.saved(); len(saved) != 1 {
		t.Errorf("sink received %d results, want 1", len(saved))
	}
}

func TestSubmitCountsTimeSpent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	f.tick(t, snap.ID, 25)

	result, err := f.engine.Submit(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.TimeSpentSeconds != 25 {
		t.Errorf("TimeSpentSeconds = %d, want 25", result.TimeSpentSeconds)
	}
}

func TestSubmitSurvivesSinkFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.results.err = errors.New("redis down")

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	// The terminal transition holds even when persistence fails.
	result, err := f.engine.Submit(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result == nil {
		t.Fatal("Submit returned nil result")
	}

	after, _ := f.engine.Snapshot(snap.ID)
	if after.Status != model.SessionStatusSubmitted {
		t.Errorf("Status = %s, want SUBMITTED", after.Status)
	}
}

func TestCancelProducesNoResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := f.engine.RecordAnswer(ctx, snap.ID, 10, 101); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}

	if err := f.engine.Cancel(ctx, snap.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	after, _ := f.engine.Snapshot(snap.ID)
	if after.Status != model.SessionStatusCancelled {
		t.Errorf("Status = %s, want CANCELLED", after.Status)
	}

	if _, err := f.engine.Result(snap.ID); !errors.Is(err, ErrResultNotReady) {
		t.Errorf("Result = %v, want ErrResultNotReady", err)
	}
	if saved := f.results.saved(); len(saved) != 0 {
		t.Errorf("sink received %d results, want 0", len(saved))
	}

	// The user may start again immediately.
	if _, err := f.engine.StartSession(ctx, 1, 1); err != nil {
		t.Fatalf("StartSession after cancel failed: %v", err)
	}
}

// ─── Countdown / Expiry ─────────────────────────────────────────────

func TestCountdownExpiresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := f.engine.RecordAnswer(ctx, snap.ID, 10, 101); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}

	// Countdown stays observable all the way down.
	f.tick(t, snap.ID, 59)
	mid, _ := f.engine.Snapshot(snap.ID)
	if mid.RemainingSeconds != 1 {
		t.Fatalf("RemainingSeconds = %d, want 1", mid.RemainingSeconds)
	}
	if mid.Status != model.SessionStatusActive {
		t.Fatalf("Status = %s, want ACTIVE", mid.Status)
	}

	// The final tick forces submission with whatever was answered.
	f.tick(t, snap.ID, 1)

	after, _ := f.engine.Snapshot(snap.ID)
	if after.Status != model.SessionStatusExpired {
		t.Errorf("Status = %s, want EXPIRED", after.Status)
	}
	if after.RemainingSeconds != 0 {
		t.Errorf("RemainingSeconds = %d, want 0", after.RemainingSeconds)
	}

	result, err := f.engine.Result(snap.ID)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if result.Score != 5 {
		t.Errorf("Score = %d, want 5", result.Score)
	}
	if result.TimeSpentSeconds != 60 {
		t.Errorf("TimeSpentSeconds = %d, want 60", result.TimeSpentSeconds)
	}

	// Expiry released the active slot.
	if _, err := f.engine.StartSession(ctx, 1, 1); err != nil {
		t.Fatalf("StartSession after expiry failed: %v", err)
	}
}

func TestTickOvershootClampsToZero(t *testing.T) {
	f := newFixture(t)

	snap, err := f.engine.StartSession(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	// A delayed tick can report more elapsed time than remains.
	s, _ := f.engine.lookup(snap.ID)
	if done := f.engine.applyTick(s, 90); !done {
		t.Fatal("applyTick did not report terminal")
	}

	after, _ := f.engine.Snapshot(snap.ID)
	if after.RemainingSeconds != 0 {
		t.Errorf("RemainingSeconds = %d, want 0", after.RemainingSeconds)
	}
	if after.Status != model.SessionStatusExpired {
		t.Errorf("Status = %s, want EXPIRED", after.Status)
	}
}

func TestTickAfterSubmitIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := f.engine.Submit(ctx, snap.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// A racing tick that lost the terminal transition must change nothing.
	s, _ := f.engine.lookup(snap.ID)
	if done := f.engine.applyTick(s, 1); !done {
		t.Fatal("applyTick on terminal session did not report terminal")
	}

	after, _ := f.engine.Snapshot(snap.ID)
	if after.Status != model.SessionStatusSubmitted {
		t.Errorf("Status = %s, want SUBMITTED", after.Status)
	}
	if saved := f.results.saved(); len(saved) != 1 {
		t.Errorf("sink received %d results, want 1", len(saved))
	}
}

// ─── Retention sweep ────────────────────────────────────────────────

func TestSweepRemovesStaleTerminalSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	finished, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := f.engine.Submit(ctx, finished.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	active, err := f.engine.StartSession(ctx, 2, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	// Within retention: both still readable.
	f.clk.Advance(30 * time.Minute)
	f.engine.sweep()
	if _, err := f.engine.Snapshot(finished.ID); err != nil {
		t.Fatalf("terminal session swept before retention: %v", err)
	}

	// Past retention: the terminal one goes, the active one stays.
	f.clk.Advance(31 * time.Minute)
	f.engine.sweep()
	if _, err := f.engine.Snapshot(finished.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Snapshot = %v, want ErrSessionNotFound", err)
	}
	if _, err := f.engine.Snapshot(active.ID); err != nil {
		t.Errorf("active session swept: %v", err)
	}
}

// ─── ActiveSession lookup ───────────────────────────────────────────

func TestActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.ActiveSession(1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("ActiveSession = %v, want ErrSessionNotFound", err)
	}

	snap, err := f.engine.StartSession(ctx, 1, 1)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	got, err := f.engine.ActiveSession(1)
	if err != nil {
		t.Fatalf("ActiveSession failed: %v", err)
	}
	if got.ID != snap.ID {
		t.Errorf("ActiveSession ID = %s, want %s", got.ID, snap.ID)
	}

	if _, err := f.engine.Submit(ctx, snap.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.engine.ActiveSession(1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("ActiveSession after submit = %v, want ErrSessionNotFound", err)
	}
}
