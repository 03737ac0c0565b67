package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goedu/assessment-engine/internal/config"
	"github.com/goedu/assessment-engine/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

const insertResultSQL = `
	INSERT INTO results
	  (session_id, test_id, user_id, score, max_score, percentage,
	   is_passed, time_spent_seconds, answers, started_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (session_id) DO NOTHING
`

// ResultWorker consumes persist_results_queue and writes graded results to
// PostgreSQL. Inserts are keyed by session_id and idempotent, so requeued
// payloads are safe to replay.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// Start begins the worker loop with batching. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.Result, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var res model.Result
			if err := json.Unmarshal([]byte(item[1]), &res); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &res)
		}
	}
}

// flushSafe writes a batch; on batch failure it falls back to per-row
// inserts and requeues whatever still fails.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.Result) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk result insert failed, using fallback")

		for _, res := range batch {
			if err := w.persistSingle(ctx, res); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(res)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	// Persisted results no longer need their Redis answer mirrors.
	w.bulkClearAnswerMirrors(ctx, batch)
}

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*model.Result) error {
	b := &pgx.Batch{}
	for _, res := range batch {
		answersJSON, err := json.Marshal(res.AnswersSnapshot)
		if err != nil {
			return err
		}
		b.Queue(insertResultSQL,
			res.SessionID, res.TestID, res.UserID, res.Score, res.MaxScore,
			res.Percentage, res.IsPassed, res.TimeSpentSeconds, answersJSON,
			res.StartedAt, res.CompletedAt,
		)
	}

	br := w.pool.SendBatch(ctx, b)
	defer br.Close()

	for range batch {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (w *ResultWorker) bulkClearAnswerMirrors(ctx context.Context, batch []*model.Result) {
	pipe := w.rdb.Pipeline()
	for _, res := range batch {
		pipe.Del(ctx, config.CacheKey.SessionAnswersKey(res.SessionID.String()))
	}
	_, _ = pipe.Exec(ctx)
}

func (w *ResultWorker) persistSingle(ctx context.Context, res *model.Result) error {
	answersJSON, err := json.Marshal(res.AnswersSnapshot)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx, insertResultSQL,
		res.SessionID, res.TestID, res.UserID, res.Score, res.MaxScore,
		res.Percentage, res.IsPassed, res.TimeSpentSeconds, answersJSON,
		res.StartedAt, res.CompletedAt,
	)
	return err
}
