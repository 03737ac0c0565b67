package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates assessment session states.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusSubmitted SessionStatus = "SUBMITTED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether no further status transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusExpired || s == SessionStatusCancelled
}

// SessionSnapshot is the caller-visible view of a session. It exposes which
// questions are answered but never the chosen answers' correctness.
type SessionSnapshot struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               int           `json:"user_id"`
	TestID               int64         `json:"test_id"`
	Status               SessionStatus `json:"status"`
	StartedAt            time.Time     `json:"started_at"`
	RemainingSeconds     int           `json:"remaining_seconds"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	QuestionCount        int           `json:"question_count"`
	AnsweredQuestionIDs  []int64       `json:"answered_question_ids"`
}

// RecordAnswerRequest is the payload for recording (or overwriting) an answer.
type RecordAnswerRequest struct {
	QuestionID int64 `json:"question_id" binding:"required,min=1"`
	AnswerID   int64 `json:"answer_id" binding:"required,min=1"`
}

// NavigateRequest is the payload for moving the current question pointer.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}
