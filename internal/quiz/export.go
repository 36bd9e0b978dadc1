package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/quizhall/internal/assembly"
	"github.com/pavelanni/quizhall/internal/grading"
	"github.com/pavelanni/quizhall/internal/model"
)

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}

// ExportAttempts builds export-ready results for every attempt, newest first.
func (s *Service) ExportAttempts(ctx context.Context) (model.AttemptsExport, error) {
	standings, err := s.Progress(ctx)
	if err != nil {
		return model.AttemptsExport{}, err
	}
	pool, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return model.AttemptsExport{}, fmt.Errorf("list questions: %w", err)
	}

	results := make([]model.AttemptResult, 0, len(standings))
	for _, st := range standings {
		a, err := s.repo.GetAttempt(ctx, st.AttemptID)
		if err != nil {
			return model.AttemptsExport{}, fmt.Errorf("get attempt %s: %w", st.AttemptID, err)
		}

		var questions []model.QuestionResult
		if len(a.QuestionIDs) > 0 {
			for i, slot := range assembly.Lookup(a.QuestionIDs, pool) {
				var answer any
				if i < len(a.Answers) {
					answer = a.Answers[i]
				}
				qr := model.QuestionResult{QuestionID: slot.ID, Answer: answer}
				if slot.Found {
					qr.Text = slot.Question.Text
					qr.Type = slot.Question.Type()
					qr.Correct = grading.Evaluate(slot.Question, answer)
				}
				questions = append(questions, qr)
			}
		}

		results = append(results, model.AttemptResult{
			AttemptID:   a.ID,
			UserID:      a.UserID,
			DisplayName: st.DisplayName,
			ExamID:      a.ExamID,
			ExamTitle:   st.ExamTitle,
			Score:       a.Score,
			Timestamp:   a.Timestamp,
			Questions:   questions,
		})
	}

	return model.AttemptsExport{GeneratedAt: s.now().UTC(), Results: results}, nil
}
