package model

// TestDefinition is the immutable definition of a timed test: questions,
// answers, time limit, passing threshold. Owned by the test catalog; the
// session engine treats it as read-only for the lifetime of any attempt.
type TestDefinition struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitSeconds int        `json:"time_limit"`
	PassScorePercent int        `json:"pass_score"`
	Questions        []Question `json:"questions"`
}

// Question is a single test question with its ordered answer options.
type Question struct {
	ID       int64    `json:"id"`
	Text     string   `json:"question"`
	Points   int      `json:"points"`
	OrderNum int      `json:"order"`
	Answers  []Answer `json:"answers"`
}

// Answer is one selectable option of a question. Exactly one answer per
// question is expected to carry IsCorrect.
type Answer struct {
	ID        int64  `json:"id"`
	Text      string `json:"answer"`
	IsCorrect bool   `json:"is_correct"`
	OrderNum  int    `json:"order"`
}

// MaxScore sums the point values of all questions.
func (t *TestDefinition) MaxScore() int {
	total := 0
	for _, q := range t.Questions {
		total += q.Points
	}
	return total
}

// QuestionByID returns the question with the given ID, or nil.
func (t *TestDefinition) QuestionByID(questionID int64) *Question {
	for i := range t.Questions {
		if t.Questions[i].ID == questionID {
			return &t.Questions[i]
		}
	}
	return nil
}

// AnswerByID returns the answer option with the given ID, or nil.
func (q *Question) AnswerByID(answerID int64) *Answer {
	for i := range q.Answers {
		if q.Answers[i].ID == answerID {
			return &q.Answers[i]
		}
	}
	return nil
}

// TestSummary is a catalog listing entry (no questions attached).
type TestSummary struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	TimeLimitSeconds int    `json:"time_limit"`
	PassScorePercent int    `json:"pass_score"`
	QuestionCount    int    `json:"question_count"`
	MaxScore         int    `json:"max_score"`
}

// TestPayload is the Redis-cached, student-facing form of a test. Answer
// options never carry correctness flags here.
type TestPayload struct {
	ID               int64             `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	TimeLimitSeconds int               `json:"time_limit"`
	PassScorePercent int               `json:"pass_score"`
	Questions        []QuestionForUser `json:"questions"`
}

// QuestionForUser is a question stripped of answer correctness.
type QuestionForUser struct {
	ID       int64           `json:"id"`
	Text     string          `json:"question"`
	Points   int             `json:"points"`
	OrderNum int             `json:"order"`
	Answers  []AnswerForUser `json:"answers"`
}

// AnswerForUser is an answer option stripped of the IsCorrect flag.
type AnswerForUser struct {
	ID       int64  `json:"id"`
	Text     string `json:"answer"`
	OrderNum int    `json:"order"`
}

// PayloadFromDefinition builds the student-facing payload from a full
// definition, dropping every IsCorrect flag.
func PayloadFromDefinition(def *TestDefinition) *TestPayload {
	questions := make([]QuestionForUser, len(def.Questions))
	for i, q := range def.Questions {
		answers := make([]AnswerForUser, len(q.Answers))
		for j, a := range q.Answers {
			answers[j] = AnswerForUser{ID: a.ID, Text: a.Text, OrderNum: a.OrderNum}
		}
		questions[i] = QuestionForUser{
			ID:       q.ID,
			Text:     q.Text,
			Points:   q.Points,
			OrderNum: q.OrderNum,
			Answers:  answers,
		}
	}
	return &TestPayload{
		ID:               def.ID,
		Title:            def.Title,
		Description:      def.Description,
		TimeLimitSeconds: def.TimeLimitSeconds,
		PassScorePercent: def.PassScorePercent,
		Questions:        questions,
	}
}
