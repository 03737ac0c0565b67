// Package engine owns the lifecycle of timed assessment sessions: start,
// answer recording, navigation, countdown, and the single terminal
// transition that produces a graded result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goedu/assessment-engine/internal/clock"
	"github.com/goedu/assessment-engine/internal/grading"
	"github.com/goedu/assessment-engine/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// tickInterval is the countdown resolution.
const tickInterval = time.Second

// Catalog resolves immutable test definitions. A definition must not change
// for the lifetime of any session that references it.
type Catalog interface {
	FetchDefinition(ctx context.Context, testID int64) (*model.TestDefinition, error)
}

// ResultSink persists graded results. Delivery is at-least-once and must be
// idempotent on the session ID; a sink failure never rolls back the
// in-memory terminal transition.
type ResultSink interface {
	SaveResult(ctx context.Context, result *model.Result) error
}

// AnswerSink receives every recorded answer for autosave persistence.
// Best-effort: failures are logged, not surfaced to the caller.
type AnswerSink interface {
	SaveAnswer(ctx context.Context, sessionID uuid.UUID, userID int, testID int64, questionID, answerID int64) error
}

// session is one attempt. Its mutex serializes explicit operations and clock
// ticks, which is the only synchronization the state machine needs: the
// first terminal transition closes done, cancelling tick delivery, and every
// later mutation fails with ErrSessionNotActive.
type session struct {
	mu sync.Mutex

	id        uuid.UUID
	userID    int
	testID    int64
	def       *model.TestDefinition
	status    model.SessionStatus
	startedAt time.Time
	endedAt   time.Time
	remaining int
	index     int
	answers   map[int64]int64
	result    *model.Result
	done      chan struct{}
}

// Engine is the session state machine. Sessions for different users are
// fully independent; the registry map is the only shared mutable state.
type Engine struct {
	catalog   Catalog
	results   ResultSink
	answerLog AnswerSink
	clk       clock.Clock
	log       zerolog.Logger
	registry  *Registry
	retention time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

// New creates an Engine. answerLog may be nil to disable autosave fan-out.
// retention controls how long terminal sessions stay readable before the
// janitor sweeps them.
func New(catalog Catalog, results ResultSink, answerLog AnswerSink, clk clock.Clock, log zerolog.Logger, retention time.Duration) *Engine {
	return &Engine{
		catalog:   catalog,
		results:   results,
		answerLog: answerLog,
		clk:       clk,
		log:       log.With().Str("component", "session_engine").Logger(),
		registry:  NewRegistry(),
		retention: retention,
		sessions:  make(map[uuid.UUID]*session),
	}
}

// StartSession creates and registers a new Active session for the user and
// starts its countdown. No partial session is registered when the catalog
// fetch or validation fails.
func (e *Engine) StartSession(ctx context.Context, userID int, testID int64) (*model.SessionSnapshot, error) {
	def, err := e.catalog.FetchDefinition(ctx, testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("fetch test definition: %w", err)
	}
	if len(def.Questions) == 0 || def.TimeLimitSeconds <= 0 {
		return nil, ErrInvalidTestDefinition
	}

	s := &session{
		id:        uuid.New(),
		userID:    userID,
		testID:    testID,
		def:       def,
		status:    model.SessionStatusActive,
		startedAt: e.clk.Now(),
		remaining: def.TimeLimitSeconds,
		answers:   make(map[int64]int64),
		done:      make(chan struct{}),
	}

	if err := e.registry.Register(userID, s.id); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	go e.runTimer(s)

	e.log.Info().
		Str("session_id", s.id.String()).
		Int("user_id", userID).
		Int64("test_id", testID).
		Int("time_limit", def.TimeLimitSeconds).
		Msg("Session started")

	return snapshotLocked(s), nil
}

// RecordAnswer records (or overwrites) the chosen answer for a question.
// Overwrite semantics model "change my answer before submitting"; the
// answers map never grows beyond the question count. Does not consume time.
func (e *Engine) RecordAnswer(ctx context.Context, sessionID uuid.UUID, questionID, answerID int64) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.status != model.SessionStatusActive {
		s.mu.Unlock()
		return ErrSessionNotActive
	}

	q := s.def.QuestionByID(questionID)
	if q == nil {
		s.mu.Unlock()
		return ErrUnknownQuestion
	}
	if q.AnswerByID(answerID) == nil {
		s.mu.Unlock()
		return ErrUnknownAnswer
	}

	s.answers[questionID] = answerID
	s.mu.Unlock()

	if e.answerLog != nil {
		if err := e.answerLog.SaveAnswer(ctx, s.id, s.userID, s.testID, questionID, answerID); err != nil {
			e.log.Warn().Err(err).
				Str("session_id", s.id.String()).
				Int64("question_id", questionID).
				Msg("Answer autosave failed")
		}
	}
	return nil
}

// NavigateTo moves the current question pointer. Pure view positioning; it
// never gates submission or affects grading.
func (e *Engine) NavigateTo(sessionID uuid.UUID, index int) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusActive {
		return ErrSessionNotActive
	}
	if index < 0 || index >= len(s.def.Questions) {
		return ErrIndexOutOfRange
	}
	s.index = index
	return nil
}

// Submit manually terminates an Active session and grades it. A second call
// on the same session fails with ErrSessionNotActive, guaranteeing at most
// one Result per session.
func (e *Engine) Submit(ctx context.Context, sessionID uuid.UUID) (*model.Result, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusActive {
		return nil, ErrSessionNotActive
	}
	return e.terminateLocked(ctx, s, model.SessionStatusSubmitted), nil
}

// Cancel discards an Active session without grading. No Result is produced.
func (e *Engine) Cancel(ctx context.Context, sessionID uuid.UUID) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusActive {
		return ErrSessionNotActive
	}
	e.terminateLocked(ctx, s, model.SessionStatusCancelled)
	return nil
}

// Snapshot returns the caller-visible view of a session. Answer correctness
// is never exposed here.
func (e *Engine) Snapshot(sessionID uuid.UUID) (*model.SessionSnapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotLocked(s), nil
}

// ActiveSession returns the snapshot of the user's currently Active session.
func (e *Engine) ActiveSession(userID int) (*model.SessionSnapshot, error) {
	id, ok := e.registry.Active(userID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.Snapshot(id)
}

// Result returns the graded result of a terminated session. Active and
// cancelled sessions have none.
func (e *Engine) Result(sessionID uuid.UUID) (*model.Result, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return nil, ErrResultNotReady
	}
	return s.result, nil
}

// Run sweeps terminal sessions past the retention window until ctx is done.
// Call in a goroutine.
func (e *Engine) Run(ctx context.Context) {
	t := e.clk.NewTicker(time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			e.sweep()
		}
	}
}

// ─── Internal ───────────────────────────────────────────────────────

func (e *Engine) lookup(sessionID uuid.UUID) (*session, error) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// runTimer delivers clock ticks to the session until it terminates. Closing
// s.done cancels delivery, so a tick can never fire after (or re-trigger)
// submission.
func (e *Engine) runTimer(s *session) {
	t := e.clk.NewTicker(tickInterval)
	defer t.Stop()

	last := e.clk.Now()
	for {
		select {
		case <-s.done:
			return
		case now := <-t.C():
			elapsed := int(now.Sub(last) / time.Second)
			if elapsed < 1 {
				elapsed = 1
			}
			last = now
			if e.applyTick(s, elapsed) {
				return
			}
		}
	}
}

// applyTick consumes elapsed seconds of budget. Reaching zero forces
// expiry through the same terminal path as manual submission. Returns true
// once the session is terminal.
func (e *Engine) applyTick(s *session, elapsed int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusActive {
		return true
	}

	s.remaining -= elapsed
	if s.remaining <= 0 {
		s.remaining = 0
		e.terminateLocked(context.Background(), s, model.SessionStatusExpired)
		return true
	}
	return false
}

// terminateLocked performs the single terminal transition: sets the status,
// cancels tick delivery, frees the user's active slot, and — for Submitted
// and Expired — grades the answer snapshot and hands the Result to the sink.
// Caller must hold s.mu, and must have verified the session is Active.
func (e *Engine) terminateLocked(ctx context.Context, s *session, status model.SessionStatus) *model.Result {
	now := e.clk.Now()
	s.status = status
	s.endedAt = now
	close(s.done)
	e.registry.Release(s.userID, s.id)

	if status == model.SessionStatusCancelled {
		e.log.Info().
			Str("session_id", s.id.String()).
			Int("user_id", s.userID).
			Msg("Session cancelled")
		return nil
	}

	outcome := grading.Grade(s.def, s.answers)

	snapshot := make(map[int64]int64, len(s.answers))
	for qid, aid := range s.answers {
		snapshot[qid] = aid
	}

	s.result = &model.Result{
		SessionID:        s.id,
		TestID:           s.testID,
		UserID:           s.userID,
		Score:            outcome.Score,
		MaxScore:         outcome.MaxScore,
		Percentage:       outcome.Percentage,
		IsPassed:         outcome.IsPassed,
		TimeSpentSeconds: s.def.TimeLimitSeconds - s.remaining,
		AnswersSnapshot:  snapshot,
		StartedAt:        s.startedAt,
		CompletedAt:      now,
	}

	if err := e.results.SaveResult(ctx, s.result); err != nil {
		// At-least-once: the sink retries on the idempotent session key.
		e.log.Error().Err(err).
			Str("session_id", s.id.String()).
			Msg("Result persistence failed")
	}

	e.log.Info().
		Str("session_id", s.id.String()).
		Int("user_id", s.userID).
		Str("status", string(status)).
		Int("score", outcome.Score).
		Int("percentage", outcome.Percentage).
		Bool("passed", outcome.IsPassed).
		Msg("Session graded")

	return s.result
}

func (e *Engine) sweep() {
	cutoff := e.clk.Now().Add(-e.retention)

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, s := range e.sessions {
		s.mu.Lock()
		stale := s.status.Terminal() && s.endedAt.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(e.sessions, id)
		}
	}
}

// snapshotLocked builds a SessionSnapshot. Caller must hold s.mu (or own the
// session exclusively, as StartSession does before publishing it).
func snapshotLocked(s *session) *model.SessionSnapshot {
	answered := make([]int64, 0, len(s.answers))
	for qid := range s.answers {
		answered = append(answered, qid)
	}
	sort.Slice(answered, func(i, j int) bool { return answered[i] < answered[j] })

	return &model.SessionSnapshot{
		ID:                   s.id,
		UserID:               s.userID,
		TestID:               s.testID,
		Status:               s.status,
		StartedAt:            s.startedAt,
		RemainingSeconds:     s.remaining,
		CurrentQuestionIndex: s.index,
		QuestionCount:        len(s.def.Questions),
		AnsweredQuestionIDs:  answered,
	}
}
