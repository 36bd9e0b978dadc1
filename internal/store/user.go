package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizhall/internal/model"
)

const userColumns = `id, username, name, email, password_hash, is_admin, active, badges_json, attempts_json, created_at`

// CreateUser inserts a new user with an empty progress profile.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Badges = nonNil(u.Badges)
	u.Attempts = nonNil(u.Attempts)
	badges, err := encodeJSON(u.Badges)
	if err != nil {
		return err
	}
	attempts, err := encodeJSON(u.Attempts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Username, u.Name, u.Email, u.PasswordHash, u.IsAdmin, u.Active, badges, attempts, toUnix(u.CreatedAt),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return err
	}
	slog.Info("created user", "id", u.ID, "username", u.Username, "admin", u.IsAdmin)
	return nil
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetUserByID returns a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserProgress replaces the badges and attempt ids of a user.
func (s *Store) UpdateUserProgress(ctx context.Context, id string, badges, attempts []string) error {
	b, err := encodeJSON(nonNil(badges))
	if err != nil {
		return err
	}
	a, err := encodeJSON(nonNil(attempts))
	if err != nil {
		return err
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE users SET badges_json = $1, attempts_json = $2 WHERE id = $3`, b, a, id))
}

// ToggleUserActive flips the active flag on a user.
func (s *Store) ToggleUserActive(ctx context.Context, id string) error {
	return affected(s.db.ExecContext(ctx, `UPDATE users SET active = NOT active WHERE id = $1`, id))
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func scanUser(sc scanner) (model.User, error) {
	var (
		u                model.User
		badges, attempts string
		created          int64
	)
	if err := sc.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.Active,
		&badges, &attempts, &created); err != nil {
		return model.User{}, err
	}
	var err error
	if u.Badges, err = decodeStrings(badges); err != nil {
		return model.User{}, fmt.Errorf("decode badges of %s: %w", u.ID, err)
	}
	if u.Attempts, err = decodeStrings(attempts); err != nil {
		return model.User{}, fmt.Errorf("decode attempts of %s: %w", u.ID, err)
	}
	u.CreatedAt = fromUnix(created)
	return u, nil
}
