package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pavelanni/quizhall/internal/model"
)

// CreateSitting stores a started exam with its question snapshot.
func (s *Store) CreateSitting(ctx context.Context, st *model.Sitting) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	questions, err := encodeJSON(st.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sittings (id, user_id, exam_id, questions_json, started_at) VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.UserID, st.ExamID, questions, toUnix(st.StartedAt),
	)
	return err
}

// GetSitting returns an open sitting by ID.
func (s *Store) GetSitting(ctx context.Context, id string) (model.Sitting, error) {
	var (
		st        model.Sitting
		questions string
		started   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, exam_id, questions_json, started_at FROM sittings WHERE id = $1`, id,
	).Scan(&st.ID, &st.UserID, &st.ExamID, &questions, &started)
	if err != nil {
		return model.Sitting{}, notFound(err)
	}
	if err := json.Unmarshal([]byte(questions), &st.Questions); err != nil {
		return model.Sitting{}, fmt.Errorf("decode sitting %s: %w", id, err)
	}
	st.StartedAt = fromUnix(started)
	return st, nil
}

// ConsumeSitting deletes a sitting. It returns model.ErrNotFound when the
// sitting was already consumed.
func (s *Store) ConsumeSitting(ctx context.Context, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM sittings WHERE id = $1`, id))
}

const attemptColumns = `id, user_id, exam_id, question_ids_json, answers_json, score, created_at`

// CreateAttempt stores a completed attempt.
func (s *Store) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ids, err := encodeJSON(nonNil(a.QuestionIDs))
	if err != nil {
		return err
	}
	answers := a.Answers
	if answers == nil {
		answers = []any{}
	}
	ans, err := encodeJSON(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (`+attemptColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.ExamID, ids, ans, a.Score, toUnix(a.Timestamp),
	)
	return err
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, id string) (model.Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	a, err := scanAttempt(row)
	return a, notFound(err)
}

// ListAttempts returns all attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context) ([]model.Attempt, error) {
	return s.queryAttempts(ctx, `SELECT `+attemptColumns+` FROM attempts ORDER BY created_at DESC, id`)
}

// TopAttempts returns the best attempts by score, earlier first on ties.
func (s *Store) TopAttempts(ctx context.Context, limit int) ([]model.Attempt, error) {
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM attempts ORDER BY score DESC, created_at ASC, id LIMIT $1`, limit)
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...any) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanAttempt(sc scanner) (model.Attempt, error) {
	var (
		a        model.Attempt
		ids, ans string
		created  int64
	)
	if err := sc.Scan(&a.ID, &a.UserID, &a.ExamID, &ids, &ans, &a.Score, &created); err != nil {
		return model.Attempt{}, err
	}
	qids, err := decodeStrings(ids)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("decode question ids of %s: %w", a.ID, err)
	}
	if len(qids) > 0 {
		a.QuestionIDs = qids
	}
	if err := json.Unmarshal([]byte(ans), &a.Answers); err != nil {
		return model.Attempt{}, fmt.Errorf("decode answers of %s: %w", a.ID, err)
	}
	a.Timestamp = fromUnix(created)
	return a, nil
}
