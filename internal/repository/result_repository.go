package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/goedu/assessment-engine/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository handles the append-only result store. Writes are keyed by
// session ID and idempotent, so retried persistence of the same terminal
// result is safe.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Save inserts a result. A duplicate session ID is a no-op.
func (r *ResultRepository) Save(ctx context.Context, res *model.Result) error {
	answersJSON, err := marshalAnswers(res.AnswersSnapshot)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO results
		   (session_id, test_id, user_id, score, max_score, percentage,
		    is_passed, time_spent_seconds, answers, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id) DO NOTHING`,
		res.SessionID, res.TestID, res.UserID, res.Score, res.MaxScore,
		res.Percentage, res.IsPassed, res.TimeSpentSeconds, answersJSON,
		res.StartedAt, res.CompletedAt,
	)
	return err
}

// GetBySession retrieves the result of a terminated session.
func (r *ResultRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Result, error) {
	res := &model.Result{}
	var answersJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, test_id, user_id, score, max_score, percentage,
		        is_passed, time_spent_seconds, answers, started_at, completed_at
		 FROM results
		 WHERE session_id = $1`, sessionID,
	).Scan(
		&res.SessionID, &res.TestID, &res.UserID, &res.Score, &res.MaxScore,
		&res.Percentage, &res.IsPassed, &res.TimeSpentSeconds, &answersJSON,
		&res.StartedAt, &res.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if res.AnswersSnapshot, err = unmarshalAnswers(answersJSON); err != nil {
		return nil, err
	}
	return res, nil
}

// ListByUser retrieves a user's result history, newest first.
func (r *ResultRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Result, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT session_id, test_id, user_id, score, max_score, percentage,
		        is_passed, time_spent_seconds, answers, started_at, completed_at
		 FROM results
		 WHERE user_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var res model.Result
		var answersJSON []byte
		if err := rows.Scan(
			&res.SessionID, &res.TestID, &res.UserID, &res.Score, &res.MaxScore,
			&res.Percentage, &res.IsPassed, &res.TimeSpentSeconds, &answersJSON,
			&res.StartedAt, &res.CompletedAt,
		); err != nil {
			return nil, 0, err
		}
		if res.AnswersSnapshot, err = unmarshalAnswers(answersJSON); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// ProgressByUser aggregates a user's history into typed counters. Completed
// and passed counts are per distinct test; the average spans all attempts.
func (r *ResultRepository) ProgressByUser(ctx context.Context, userID int) (*model.UserProgress, error) {
	p := &model.UserProgress{}
	err := r.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM tests WHERE is_active),
		   COUNT(DISTINCT test_id),
		   COUNT(DISTINCT test_id) FILTER (WHERE is_passed),
		   COALESCE(AVG(percentage), 0),
		   COALESCE(SUM(score), 0)
		 FROM results
		 WHERE user_id = $1`, userID,
	).Scan(&p.TotalTests, &p.CompletedTests, &p.PassedTests, &p.AverageScore, &p.TotalPoints)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Answer snapshots are stored as a JSONB object keyed by question ID.
func marshalAnswers(answers map[int64]int64) ([]byte, error) {
	m := make(map[string]int64, len(answers))
	for qid, aid := range answers {
		m[strconv.FormatInt(qid, 10)] = aid
	}
	return json.Marshal(m)
}

func unmarshalAnswers(raw []byte) (map[int64]int64, error) {
	if len(raw) == 0 {
		return map[int64]int64{}, nil
	}
	var m map[string]int64
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	answers := make(map[int64]int64, len(m))
	for k, aid := range m {
		qid, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, err
		}
		answers[qid] = aid
	}
	return answers, nil
}
