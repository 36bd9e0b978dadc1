package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizhall/internal/model"
)

const questionColumns = `id, text, type, options_json, answer_json, explanation, category_id, category_name, created_at`

// CreateQuestion stores a question.
func (s *Store) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	args, err := questionArgs(*q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		args...,
	)
	return err
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	return q, notFound(err)
}

// UpdateQuestion replaces the editable fields of a question.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	args, err := questionArgs(q)
	if err != nil {
		return err
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE questions SET text = $1, type = $2, options_json = $3, answer_json = $4,
		 explanation = $5, category_id = $6, category_name = $7 WHERE id = $8`,
		append(args[1:8:8], args[0])...,
	))
}

// DeleteQuestion removes a question.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id))
}

// ListQuestions returns all questions in creation order.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

func questionArgs(q model.Question) ([]any, error) {
	options := q.Options
	if options == nil {
		options = []string{}
	}
	opts, err := encodeJSON(options)
	if err != nil {
		return nil, err
	}
	answer, err := model.MarshalAnswerKey(q.Key)
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}
	return []any{
		q.ID, q.Text, string(q.Type()), opts, string(answer),
		q.Explanation, q.CategoryID, q.CategoryName, toUnix(q.CreatedAt),
	}, nil
}

func scanQuestion(sc scanner) (model.Question, error) {
	var (
		q              model.Question
		typ, opts, ans string
		created        int64
	)
	if err := sc.Scan(&q.ID, &q.Text, &typ, &opts, &ans, &q.Explanation, &q.CategoryID, &q.CategoryName, &created); err != nil {
		return model.Question{}, err
	}
	options, err := decodeStrings(opts)
	if err != nil {
		return model.Question{}, fmt.Errorf("decode options of %s: %w", q.ID, err)
	}
	if len(options) > 0 {
		q.Options = options
	}
	q.Key, err = model.DecodeAnswerKey(model.QuestionType(typ), json.RawMessage(ans), q.Options)
	if err != nil {
		return model.Question{}, fmt.Errorf("decode answer of %s: %w", q.ID, err)
	}
	q.CreatedAt = fromUnix(created)
	return q, nil
}
