package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the immutable graded outcome of a terminated session.
// Created exactly once, at the moment of termination.
type Result struct {
	SessionID        uuid.UUID       `json:"session_id"`
	TestID           int64           `json:"test_id"`
	UserID           int             `json:"user_id"`
	Score            int             `json:"score"`
	MaxScore         int             `json:"max_score"`
	Percentage       int             `json:"percentage"`
	IsPassed         bool            `json:"is_passed"`
	TimeSpentSeconds int             `json:"time_spent"`
	AnswersSnapshot  map[int64]int64 `json:"answers"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      time.Time       `json:"completed_at"`
}

// UserProgress aggregates a user's result history into typed counters.
// Progress is always computed from numeric fields, never parsed back out of
// display strings.
type UserProgress struct {
	TotalTests     int     `json:"total_tests"`
	CompletedTests int     `json:"completed_tests"`
	PassedTests    int     `json:"passed_tests"`
	AverageScore   float64 `json:"average_score"`
	TotalPoints    int     `json:"total_points"`
}
