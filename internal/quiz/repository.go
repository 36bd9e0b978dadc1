package quiz

import (
	"context"

	"github.com/pavelanni/quizhall/internal/model"
)

// QuestionStore persists the question bank.
type QuestionStore interface {
	// CreateQuestion assigns ID and CreatedAt when they are empty.
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestion(ctx context.Context, id string) (model.Question, error)
	UpdateQuestion(ctx context.Context, q model.Question) error
	DeleteQuestion(ctx context.Context, id string) error
	// ListQuestions returns the bank in storage (creation) order.
	ListQuestions(ctx context.Context) ([]model.Question, error)
}

// CategoryStore persists question categories.
type CategoryStore interface {
	CreateCategory(ctx context.Context, c *model.Category) error
	GetCategory(ctx context.Context, id string) (model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	// DeleteCategory removes the category and marks its questions Unassigned.
	DeleteCategory(ctx context.Context, id string) error
}

// ExamStore persists exam definitions.
type ExamStore interface {
	CreateExam(ctx context.Context, e *model.Exam) error
	GetExam(ctx context.Context, id string) (model.Exam, error)
	UpdateExam(ctx context.Context, e model.Exam) error
	DeleteExam(ctx context.Context, id string) error
	ListExams(ctx context.Context) ([]model.Exam, error)
}

// SittingStore persists started exams until they are submitted.
type SittingStore interface {
	CreateSitting(ctx context.Context, s *model.Sitting) error
	GetSitting(ctx context.Context, id string) (model.Sitting, error)
	// ConsumeSitting deletes the sitting once its attempt is stored. It
	// returns model.ErrNotFound when the sitting is already gone.
	ConsumeSitting(ctx context.Context, id string) error
}

// AttemptStore persists completed attempts. Attempts are never updated.
type AttemptStore interface {
	// CreateAttempt fails when an attempt with the same id exists.
	CreateAttempt(ctx context.Context, a *model.Attempt) error
	GetAttempt(ctx context.Context, id string) (model.Attempt, error)
	// ListAttempts returns every attempt, newest first.
	ListAttempts(ctx context.Context) ([]model.Attempt, error)
	// TopAttempts returns up to limit attempts by score descending, earlier first on ties.
	TopAttempts(ctx context.Context, limit int) ([]model.Attempt, error)
}

// UserStore persists accounts and their progress profile.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	// UpdateUserProgress replaces the badge and attempt lists of a user.
	UpdateUserProgress(ctx context.Context, id string, badges, attempts []string) error
	ToggleUserActive(ctx context.Context, id string) error
	UserCount(ctx context.Context) (int, error)
}

// AuthSessionStore persists login sessions referenced by API tokens.
type AuthSessionStore interface {
	CreateAuthSession(ctx context.Context, userID string) (*model.AuthSession, error)
	// GetAuthSession returns nil without error when the session is missing or expired.
	GetAuthSession(ctx context.Context, id string) (*model.AuthSession, error)
	DeleteAuthSession(ctx context.Context, id string) error
	CleanupExpiredSessions(ctx context.Context) error
}

// ImportLedger is a small key-value table, used to remember imported files.
type ImportLedger interface {
	SetMetadata(ctx context.Context, key, value string) error
	// GetMetadata returns "" without error for a missing key.
	GetMetadata(ctx context.Context, key string) (string, error)
}

// Repository is everything the service needs from a storage backend.
type Repository interface {
	QuestionStore
	CategoryStore
	ExamStore
	SittingStore
	AttemptStore
	UserStore
	AuthSessionStore
	ImportLedger
	Close() error
}

// Ranker keeps a leaderboard of attempts outside the repository.
type Ranker interface {
	Record(ctx context.Context, a model.Attempt) error
	// Top returns attempt ids, best first.
	Top(ctx context.Context, limit int) ([]string, error)
	// Rank returns the 1-based position of an attempt, or -1 if it is not ranked.
	Rank(ctx context.Context, attemptID string) (int64, error)
}
