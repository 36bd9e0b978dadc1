package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizhall/internal/model"
)

// CreateCategory stores a category.
func (s *Store) CreateCategory(ctx context.Context, c *model.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Description, toUnix(c.CreatedAt),
	)
	return err
}

// GetCategory returns a category by ID.
func (s *Store) GetCategory(ctx context.Context, id string) (model.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	return c, notFound(err)
}

// GetCategoryByName returns a category by its unique name.
func (s *Store) GetCategoryByName(ctx context.Context, name string) (model.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM categories WHERE name = $1`, name)
	c, err := scanCategory(row)
	return c, notFound(err)
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category and unassigns its questions.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE questions SET category_id = '', category_name = $1 WHERE category_id = $2`,
		model.UnassignedCategory, id,
	); err != nil {
		return fmt.Errorf("unassign questions: %w", err)
	}
	if err := affected(tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)); err != nil {
		return err
	}
	return tx.Commit()
}

func scanCategory(sc scanner) (model.Category, error) {
	var (
		c       model.Category
		created int64
	)
	if err := sc.Scan(&c.ID, &c.Name, &c.Description, &created); err != nil {
		return model.Category{}, err
	}
	c.CreatedAt = fromUnix(created)
	return c, nil
}

const examColumns = `id, title, description, question_ids_json, random_count, created_at`

// CreateExam stores an exam definition.
func (s *Store) CreateExam(ctx context.Context, e *model.Exam) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	ids, err := encodeJSON(nonNil(e.QuestionIDs))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exams (`+examColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Title, e.Description, ids, e.RandomCount, toUnix(e.CreatedAt),
	)
	return err
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id string) (model.Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	e, err := scanExam(row)
	return e, notFound(err)
}

// UpdateExam replaces an exam definition.
func (s *Store) UpdateExam(ctx context.Context, e model.Exam) error {
	ids, err := encodeJSON(nonNil(e.QuestionIDs))
	if err != nil {
		return err
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE exams SET title = $1, description = $2, question_ids_json = $3, random_count = $4 WHERE id = $5`,
		e.Title, e.Description, ids, e.RandomCount, e.ID,
	))
}

// DeleteExam removes an exam. Attempts referencing it are kept.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id))
}

// ListExams returns all exams, oldest first.
func (s *Store) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

func scanExam(sc scanner) (model.Exam, error) {
	var (
		e       model.Exam
		ids     string
		created int64
	)
	if err := sc.Scan(&e.ID, &e.Title, &e.Description, &ids, &e.RandomCount, &created); err != nil {
		return model.Exam{}, err
	}
	qids, err := decodeStrings(ids)
	if err != nil {
		return model.Exam{}, fmt.Errorf("decode question ids of %s: %w", e.ID, err)
	}
	if len(qids) > 0 {
		e.QuestionIDs = qids
	}
	e.CreatedAt = fromUnix(created)
	return e, nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
