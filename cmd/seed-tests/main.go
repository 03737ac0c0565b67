package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goedu/assessment-engine/internal/config"
	"github.com/goedu/assessment-engine/internal/database"
	"github.com/goedu/assessment-engine/internal/logger"
)

// seedAnswer is one answer option for a seeded question.
type seedAnswer struct {
	text    string
	correct bool
}

type seedQuestion struct {
	text    string
	points  int
	answers []seedAnswer
}

type seedTest struct {
	title            string
	description      string
	timeLimitSeconds int
	passScorePercent int
	questions        []seedQuestion
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	tests := []seedTest{
		{
			title:            "Go Fundamentals",
			description:      "Basic syntax, types, and control flow.",
			timeLimitSeconds: 600,
			passScorePercent: 70,
			questions: []seedQuestion{
				{
					text:   "Which keyword declares a new variable with inferred type?",
					points: 5,
					answers: []seedAnswer{
						{text: "var x = 1", correct: false},
						{text: "x := 1", correct: true},
						{text: "let x = 1", correct: false},
						{text: "def x = 1", correct: false},
					},
				},
				{
					text:   "What is the zero value of a pointer?",
					points: 10,
					answers: []seedAnswer{
						{text: "0", correct: false},
						{text: "undefined", correct: false},
						{text: "nil", correct: true},
						{text: "empty struct", correct: false},
					},
				},
				{
					text:   "Which construct is used to wait for multiple goroutines?",
					points: 10,
					answers: []seedAnswer{
						{text: "sync.WaitGroup", correct: true},
						{text: "time.Sleep", correct: false},
						{text: "select {}", correct: false},
						{text: "runtime.Gosched", correct: false},
					},
				},
			},
		},
		{
			title:            "SQL Basics",
			description:      "Joins, aggregates, and constraints.",
			timeLimitSeconds: 300,
			passScorePercent: 60,
			questions: []seedQuestion{
				{
					text:   "Which JOIN returns all rows from the left table?",
					points: 5,
					answers: []seedAnswer{
						{text: "INNER JOIN", correct: false},
						{text: "LEFT JOIN", correct: true},
						{text: "CROSS JOIN", correct: false},
					},
				},
				{
					text:   "Which constraint guarantees uniqueness?",
					points: 5,
					answers: []seedAnswer{
						{text: "CHECK", correct: false},
						{text: "UNIQUE", correct: true},
						{text: "NOT NULL", correct: false},
					},
				},
			},
		},
	}

	fmt.Printf("=== Seeding %d Tests ===\n", len(tests))

	for _, t := range tests {
		var testID int64
		err := pool.QueryRow(ctx,
			`INSERT INTO tests (title, description, time_limit_seconds, pass_score_percent, is_active)
			 VALUES ($1, $2, $3, $4, TRUE)
			 RETURNING id`,
			t.title, t.description, t.timeLimitSeconds, t.passScorePercent,
		).Scan(&testID)
		if err != nil {
			log.Fatal().Err(err).Str("title", t.title).Msg("Failed to insert test")
		}

		for qi, q := range t.questions {
			var questionID int64
			err := pool.QueryRow(ctx,
				`INSERT INTO questions (test_id, question, points, order_num)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				testID, q.text, q.points, qi+1,
			).Scan(&questionID)
			if err != nil {
				log.Fatal().Err(err).Str("title", t.title).Msg("Failed to insert question")
			}

			for ai, a := range q.answers {
				_, err := pool.Exec(ctx,
					`INSERT INTO answers (question_id, answer, is_correct, order_num)
					 VALUES ($1, $2, $3, $4)`,
					questionID, a.text, a.correct, ai+1,
				)
				if err != nil {
					log.Fatal().Err(err).Str("title", t.title).Msg("Failed to insert answer")
				}
			}
		}

		fmt.Printf("Seeded '%s' (ID: %d, %d questions)\n", t.title, testID, len(t.questions))
	}

	fmt.Println("\nSeed completed!")
}
