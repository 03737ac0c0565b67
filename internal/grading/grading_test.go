package grading

import (
	"testing"

	"github.com/goedu/assessment-engine/internal/model"
)

// twoQuestionTest mirrors a short quiz: Q1 worth 5 points, Q2 worth 10,
// pass threshold 70%.
func twoQuestionTest() *model.TestDefinition {
	return &model.TestDefinition{
		ID:               1,
		Title:            "Short Quiz",
		TimeLimitSeconds: 60,
		PassScorePercent: 70,
		Questions: []model.Question{
			{
				ID:     10,
				Points: 5,
				Answers: []model.Answer{
					{ID: 101, IsCorrect: true},
					{ID: 102},
				},
			},
			{
				ID:     20,
				Points: 10,
				Answers: []model.Answer{
					{ID: 201},
					{ID: 202, IsCorrect: true},
				},
			},
		},
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name    string
		answers map[int64]int64
		want    Outcome
	}{
		{
			name:    "only ten point question correct",
			answers: map[int64]int64{20: 202},
			want:    Outcome{Score: 10, MaxScore: 15, Percentage: 67, IsPassed: false},
		},
		{
			name:    "all correct",
			answers: map[int64]int64{10: 101, 20: 202},
			want:    Outcome{Score: 15, MaxScore: 15, Percentage: 100, IsPassed: true},
		},
		{
			name:    "no answers",
			answers: map[int64]int64{},
			want:    Outcome{Score: 0, MaxScore: 15, Percentage: 0, IsPassed: false},
		},
		{
			name:    "wrong answers score zero",
			answers: map[int64]int64{10: 102, 20: 201},
			want:    Outcome{Score: 0, MaxScore: 15, Percentage: 0, IsPassed: false},
		},
		{
			name:    "only five point question correct",
			answers: map[int64]int64{10: 101, 20: 201},
			want:    Outcome{Score: 5, MaxScore: 15, Percentage: 33, IsPassed: false},
		},
		{
			name:    "answer id from another question gets no credit",
			answers: map[int64]int64{10: 202},
			want:    Outcome{Score: 0, MaxScore: 15, Percentage: 0, IsPassed: false},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Grade(twoQuestionTest(), tc.answers)
			if got != tc.want {
				t.Errorf("Grade() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestGradeRoundsHalfUp(t *testing.T) {
	// 1 of 8 single-point questions correct = 12.5% — must round to 13.
	def := &model.TestDefinition{
		PassScorePercent: 50,
	}
	for i := int64(1); i <= 8; i++ {
		def.Questions = append(def.Questions, model.Question{
			ID:     i,
			Points: 1,
			Answers: []model.Answer{
				{ID: i * 100, IsCorrect: true},
			},
		})
	}

	got := Grade(def, map[int64]int64{1: 100})
	if got.Percentage != 13 {
		t.Errorf("Percentage = %d, want 13", got.Percentage)
	}
}

func TestGradeZeroMaxScore(t *testing.T) {
	def := &model.TestDefinition{
		PassScorePercent: 70,
		Questions: []model.Question{
			// Degenerate question without points contributes nothing.
		},
	}

	got := Grade(def, map[int64]int64{})
	if got.Percentage != 0 || got.IsPassed {
		t.Errorf("zero max score graded to %+v, want 0%% and not passed", got)
	}
}

func TestGradePassAtExactThreshold(t *testing.T) {
	// 70% exactly meets a 70 threshold.
	def := &model.TestDefinition{
		PassScorePercent: 70,
		Questions: []model.Question{
			{ID: 1, Points: 7, Answers: []model.Answer{{ID: 11, IsCorrect: true}}},
			{ID: 2, Points: 3, Answers: []model.Answer{{ID: 21, IsCorrect: true}}},
		},
	}

	got := Grade(def, map[int64]int64{1: 11})
	if got.Percentage != 70 || !got.IsPassed {
		t.Errorf("Grade() = %+v, want Percentage 70 and IsPassed", got)
	}
}

func TestGradeIsDeterministic(t *testing.T) {
	def := twoQuestionTest()
	answers := map[int64]int64{10: 101, 20: 201}

	first := Grade(def, answers)
	for i := 0; i < 10; i++ {
		if got := Grade(def, answers); got != first {
			t.Fatalf("Grade() not deterministic: %+v vs %+v", got, first)
		}
	}
}
