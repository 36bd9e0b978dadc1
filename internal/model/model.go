package model

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by every repository backend when a record does not exist.
var ErrNotFound = errors.New("not found")

// UnassignedCategory is shown for questions whose category was removed.
const UnassignedCategory = "Unassigned"

// User represents a system user and their progress profile.
type User struct {
	ID           string    `json:"uid"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	Active       bool      `json:"active"`
	Badges       []string  `json:"badges"`
	Attempts     []string  `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DisplayName returns the name shown on leaderboards: name, then email, then uid.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Session is the caller identity passed explicitly into exam operations.
type Session struct {
	UserID  string
	Name    string
	IsAdmin bool
}

// SessionFor builds the session value for an authenticated user.
func SessionFor(u *User) Session {
	return Session{UserID: u.ID, Name: u.DisplayName(), IsAdmin: u.IsAdmin}
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Category groups questions for organization only.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ExamMode is the question selection mode of an exam.
type ExamMode string

const (
	ModeFixed  ExamMode = "fixed"
	ModeRandom ExamMode = "random"
	ModeAll    ExamMode = "all"
)

// Exam is a named, gradable bundle of questions.
type Exam struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	QuestionIDs []string  `json:"questionIds"`
	RandomCount int       `json:"randomCount,omitempty"` // 0 means unset
	CreatedAt   time.Time `json:"createdAt"`
}

// Mode derives the selection mode. A non-empty id list wins over a random count.
func (e Exam) Mode() ExamMode {
	switch {
	case len(e.QuestionIDs) > 0:
		return ModeFixed
	case e.RandomCount > 0:
		return ModeRandom
	default:
		return ModeAll
	}
}

// Normalize clears the fields that do not belong to mode, so that at most one
// selection mode is active. An empty mode keeps the derived one.
func (e *Exam) Normalize(mode ExamMode) {
	if mode == "" {
		mode = e.Mode()
	}
	switch mode {
	case ModeFixed:
		e.RandomCount = 0
	case ModeRandom:
		e.QuestionIDs = nil
	default:
		e.QuestionIDs = nil
		e.RandomCount = 0
	}
}

// Sitting is an exam that was started but not yet submitted. It holds the
// questions resolved at start time so grading never depends on later edits.
type Sitting struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ExamID    string     `json:"examId"`
	Questions []Question `json:"questions"`
	StartedAt time.Time  `json:"startedAt"`
}

// QuestionIDs returns the ordered ids of the sitting's questions.
func (s Sitting) QuestionIDs() []string {
	ids := make([]string, len(s.Questions))
	for i, q := range s.Questions {
		ids[i] = q.ID
	}
	return ids
}

// Attempt is one completed submission of an exam. Answers[k] refers to QuestionIDs[k].
type Attempt struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ExamID      string    `json:"examId"`
	QuestionIDs []string  `json:"questionIds"`
	Answers     []any     `json:"answers"`
	Score       int       `json:"score"`
	Timestamp   time.Time `json:"timestamp"`
}
