// Package catalog serves immutable test definitions: authoritative reads
// from PostgreSQL for the engine, and a Redis-cached student payload (with
// correctness flags stripped) for the HTTP surface.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goedu/assessment-engine/internal/config"
	"github.com/goedu/assessment-engine/internal/engine"
	"github.com/goedu/assessment-engine/internal/model"
	"github.com/goedu/assessment-engine/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Service implements engine.Catalog on top of the test repository, and owns
// the Redis payload fast lane.
type Service struct {
	testRepo *repository.TestRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewService creates a catalog Service.
func NewService(testRepo *repository.TestRepository, rdb *redis.Client, log zerolog.Logger) *Service {
	return &Service{
		testRepo: testRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "catalog").Logger(),
	}
}

// FetchDefinition loads the full definition, correctness flags included.
// Always reads PostgreSQL: the definition is the grading source of truth and
// must be immutable for the lifetime of the session that pins it.
func (s *Service) FetchDefinition(ctx context.Context, testID int64) (*model.TestDefinition, error) {
	def, err := s.testRepo.GetDefinition(ctx, testID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, engine.ErrTestNotFound
		}
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return def, nil
}

// ListTests returns paginated catalog summaries.
func (s *Service) ListTests(ctx context.Context, limit, offset int) ([]model.TestSummary, int, error) {
	return s.testRepo.List(ctx, limit, offset)
}

// GetTestPayload returns the student-facing payload, Redis-first with a
// PostgreSQL fallback that self-heals the cache.
func (s *Service) GetTestPayload(ctx context.Context, testID int64) (*model.TestPayload, error) {
	key := config.CacheKey.TestPayloadKey(testID)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var payload model.TestPayload
		if err := json.Unmarshal(data, &payload); err == nil {
			return &payload, nil
		}
		// Corrupt cache entry: fall through and rebuild from the database.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	def, err := s.FetchDefinition(ctx, testID)
	if err != nil {
		return nil, err
	}

	payload := model.PayloadFromDefinition(def)
	if err := s.cachePayload(ctx, payload); err != nil {
		s.log.Warn().Err(err).Int64("test_id", testID).Msg("Payload cache write failed")
	}
	return payload, nil
}

// WarmTestCache builds and caches the payload for one test.
func (s *Service) WarmTestCache(ctx context.Context, testID int64) error {
	def, err := s.FetchDefinition(ctx, testID)
	if err != nil {
		return err
	}
	return s.cachePayload(ctx, model.PayloadFromDefinition(def))
}

// PrewarmAllCaches loads every active test into Redis. Called on startup
// BEFORE accepting traffic to avoid lazy-load races under thundering herd.
func (s *Service) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.testRepo.ListActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active tests: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No active tests to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if err := s.WarmTestCache(ctx, id); err != nil {
			s.log.Warn().Err(err).Int64("test_id", id).Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *Service) cachePayload(ctx context.Context, payload *model.TestPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	key := config.CacheKey.TestPayloadKey(payload.ID)
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("cache payload: %w", err)
	}
	return nil
}
