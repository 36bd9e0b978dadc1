// Package grading decides whether answers are correct and turns a set of
// decisions into a percentage score. Every function is total: malformed,
// missing or mismatched answers are graded incorrect and never cause an error.
package grading

import (
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/pavelanni/quizhall/internal/model"
)

// Evaluate reports whether answer is a correct response to q.
func Evaluate(q model.Question, answer any) bool {
	if answer == nil {
		return false
	}
	switch k := q.Key.(type) {
	case model.ChoiceKey:
		s, ok := stringForm(answer)
		return ok && s == formatInt(k.Index)
	case model.TruthKey:
		return truthy(answer) == k.Value
	case model.TextKey:
		s, ok := answer.(string)
		if !ok {
			return false
		}
		return fold(s) == fold(k.Text)
	case model.OrderKey:
		items, ok := sequence(answer)
		if !ok || len(items) != len(k.Items) {
			return false
		}
		for i, item := range items {
			s, ok := stringForm(item)
			if !ok || s != k.Items[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Outcome is the grading decision for one question position.
type Outcome struct {
	QuestionID string
	Answer     any
	Correct    bool
}

// Report aggregates the outcomes of one attempt.
type Report struct {
	Outcomes []Outcome
	Correct  int
	Total    int
	Score    int
}

// Grade evaluates answers[k] against questions[k]. Missing answers count as unanswered.
func Grade(questions []model.Question, answers []any) Report {
	r := Report{Total: len(questions), Outcomes: make([]Outcome, len(questions))}
	for i, q := range questions {
		var ans any
		if i < len(answers) {
			ans = answers[i]
		}
		ok := Evaluate(q, ans)
		if ok {
			r.Correct++
		}
		r.Outcomes[i] = Outcome{QuestionID: q.ID, Answer: ans, Correct: ok}
	}
	r.Score = Percent(r.Correct, r.Total)
	return r
}

// Score returns the percentage (0-100) of questions answered correctly.
func Score(questions []model.Question, answers []any) int {
	return Grade(questions, answers).Score
}

// Percent rounds correct/total*100 half-up. An empty total scores 0.
func Percent(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(correct)/float64(total)*100 + 0.5))
}

// fold trims and case-folds s. A Caser is stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
