package repository

import (
	"context"
	"errors"

	"github.com/goedu/assessment-engine/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested catalog row does not exist.
var ErrNotFound = errors.New("not found")

// TestRepository handles test catalog data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetDefinition loads a full test definition: the test row plus its ordered
// questions and answer options, correctness flags included.
func (r *TestRepository) GetDefinition(ctx context.Context, testID int64) (*model.TestDefinition, error) {
	def := &model.TestDefinition{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, time_limit_seconds, pass_score_percent
		 FROM tests
		 WHERE id = $1 AND is_active`, testID,
	).Scan(&def.ID, &def.Title, &def.Description, &def.TimeLimitSeconds, &def.PassScorePercent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question, points, order_num
		 FROM questions
		 WHERE test_id = $1
		 ORDER BY order_num, id`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questionIDs := make([]int64, 0, 16)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		def.Questions = append(def.Questions, q)
		questionIDs = append(questionIDs, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questionIDs) == 0 {
		return def, nil
	}

	answerRows, err := r.pool.Query(ctx,
		`SELECT id, question_id, answer, is_correct, order_num
		 FROM answers
		 WHERE question_id = ANY($1)
		 ORDER BY order_num, id`, questionIDs,
	)
	if err != nil {
		return nil, err
	}
	defer answerRows.Close()

	byQuestion := make(map[int64]*model.Question, len(def.Questions))
	for i := range def.Questions {
		byQuestion[def.Questions[i].ID] = &def.Questions[i]
	}

	for answerRows.Next() {
		var a model.Answer
		var questionID int64
		if err := answerRows.Scan(&a.ID, &questionID, &a.Text, &a.IsCorrect, &a.OrderNum); err != nil {
			return nil, err
		}
		if q, ok := byQuestion[questionID]; ok {
			q.Answers = append(q.Answers, a)
		}
	}
	return def, answerRows.Err()
}

// List retrieves active tests as paginated summaries.
func (r *TestRepository) List(ctx context.Context, limit, offset int) ([]model.TestSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE is_active`,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.title, t.description, t.time_limit_seconds, t.pass_score_percent,
		        COUNT(q.id) AS question_count,
		        COALESCE(SUM(q.points), 0) AS max_score
		 FROM tests t
		 LEFT JOIN questions q ON q.test_id = t.id
		 WHERE t.is_active
		 GROUP BY t.id
		 ORDER BY t.id
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []model.TestSummary
	for rows.Next() {
		var t model.TestSummary
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.TimeLimitSeconds, &t.PassScorePercent,
			&t.QuestionCount, &t.MaxScore,
		); err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}

// ListActiveIDs returns the IDs of all active tests. Used for cache prewarm.
func (r *TestRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tests WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
