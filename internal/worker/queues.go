package worker

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/goedu/assessment-engine/internal/config"
	"github.com/goedu/assessment-engine/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// answerPayload is the queue record for one recorded answer.
type answerPayload struct {
	SessionID  string `json:"session_id"`
	UserID     int    `json:"user_id"`
	TestID     int64  `json:"test_id"`
	QuestionID int64  `json:"question_id"`
	AnswerID   int64  `json:"answer_id"`
}

// ResultQueue implements engine.ResultSink by queueing graded results for
// the ResultWorker. At-least-once delivery; the worker's insert is
// idempotent on session_id.
type ResultQueue struct {
	rdb *redis.Client
}

// NewResultQueue creates a ResultQueue.
func NewResultQueue(rdb *redis.Client) *ResultQueue {
	return &ResultQueue{rdb: rdb}
}

// SaveResult queues a result for persistence.
func (q *ResultQueue) SaveResult(ctx context.Context, result *model.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err()
}

// AnswerQueue implements engine.AnswerSink: it mirrors the answer into the
// session's Redis hash for live review and queues it for persistence.
type AnswerQueue struct {
	rdb *redis.Client
}

// NewAnswerQueue creates an AnswerQueue.
func NewAnswerQueue(rdb *redis.Client) *AnswerQueue {
	return &AnswerQueue{rdb: rdb}
}

// SaveAnswer mirrors and queues one recorded answer.
func (q *AnswerQueue) SaveAnswer(ctx context.Context, sessionID uuid.UUID, userID int, testID int64, questionID, answerID int64) error {
	mirrorKey := config.CacheKey.SessionAnswersKey(sessionID.String())
	if err := q.rdb.HSet(ctx, mirrorKey, strconv.FormatInt(questionID, 10), answerID).Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(answerPayload{
		SessionID:  sessionID.String(),
		UserID:     userID,
		TestID:     testID,
		QuestionID: questionID,
		AnswerID:   answerID,
	})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw).Err()
}
