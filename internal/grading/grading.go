// Package grading implements the pure scoring function for finished
// assessment sessions.
package grading

import (
	"math"

	"github.com/goedu/assessment-engine/internal/model"
)

// Outcome is the score breakdown of a graded answer snapshot.
type Outcome struct {
	Score      int
	MaxScore   int
	Percentage int
	IsPassed   bool
}

// Grade scores an answer snapshot against a test definition. It is
// deterministic and side-effect free: grading the same (definition, answers)
// pair always yields an identical Outcome.
//
// Credit for a question is awarded iff the chosen answer exists and carries
// IsCorrect. Unanswered and incorrectly answered questions contribute zero.
// Percentage is rounded half-up to the nearest integer; a test with zero
// attainable points grades to zero percent.
func Grade(def *model.TestDefinition, answers map[int64]int64) Outcome {
	score := 0
	maxScore := 0

	for i := range def.Questions {
		q := &def.Questions[i]
		maxScore += q.Points

		answerID, ok := answers[q.ID]
		if !ok {
			continue
		}
		if a := q.AnswerByID(answerID); a != nil && a.IsCorrect {
			score += q.Points
		}
	}

	percentage := 0
	if maxScore > 0 {
		percentage = int(math.Round(float64(score) / float64(maxScore) * 100))
	}

	return Outcome{
		Score:      score,
		MaxScore:   maxScore,
		Percentage: percentage,
		IsPassed:   percentage >= def.PassScorePercent,
	}
}
