// Package quiz runs the exam lifecycle: start a sitting, submit answers,
// review an attempt, and rank attempts on the leaderboard.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizhall/internal/assembly"
	"github.com/pavelanni/quizhall/internal/badge"
	"github.com/pavelanni/quizhall/internal/grading"
	"github.com/pavelanni/quizhall/internal/model"
)

var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrNoQuestions     = errors.New("exam has no questions")
	ErrSittingNotFound = errors.New("sitting not found or already submitted")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrForbidden       = errors.New("forbidden")
)

// DefaultLeaderboardSize is the number of entries shown on the leaderboard.
const DefaultLeaderboardSize = 10

// Service coordinates assembly, grading and badges over a Repository.
type Service struct {
	repo   Repository
	ranker Ranker
	badges *badge.Engine
	intN   assembly.IntN
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRanker routes leaderboard reads and writes through r.
func WithRanker(r Ranker) Option {
	return func(s *Service) { s.ranker = r }
}

// WithRandom sets the random source used for random-mode exams.
func WithRandom(intN assembly.IntN) Option {
	return func(s *Service) { s.intN = intN }
}

// WithBadgeEngine replaces the default badge rules.
func WithBadgeEngine(e *badge.Engine) Option {
	return func(s *Service) { s.badges = e }
}

// WithClock sets the time source for sittings and attempts.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		badges: badge.New(),
		intN:   assembly.DefaultIntN,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Repo returns the underlying repository.
func (s *Service) Repo() Repository { return s.repo }

// Sheet is what an exam taker receives when starting an exam.
type Sheet struct {
	SittingID string                 `json:"sittingId"`
	ExamID    string                 `json:"examId"`
	Title     string                 `json:"title"`
	Questions []model.PublicQuestion `json:"questions"`
}

// Start assembles the questions for examID and opens a sitting for the caller.
func (s *Service) Start(ctx context.Context, sess model.Session, examID string) (Sheet, error) {
	exam, err := s.repo.GetExam(ctx, examID)
	if errors.Is(err, model.ErrNotFound) {
		return Sheet{}, ErrExamNotFound
	}
	if err != nil {
		return Sheet{}, fmt.Errorf("get exam: %w", err)
	}
	pool, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return Sheet{}, fmt.Errorf("list questions: %w", err)
	}

	questions := assembly.Resolve(exam, pool, s.intN)
	if len(questions) == 0 {
		return Sheet{}, ErrNoQuestions
	}

	sitting := model.Sitting{
		ID:        uuid.NewString(),
		UserID:    sess.UserID,
		ExamID:    exam.ID,
		Questions: questions,
		StartedAt: s.now(),
	}
	if err := s.repo.CreateSitting(ctx, &sitting); err != nil {
		return Sheet{}, fmt.Errorf("create sitting: %w", err)
	}
	slog.Info("exam started", "exam", exam.ID, "user", sess.UserID, "sitting", sitting.ID,
		"mode", exam.Mode(), "questions", len(questions))

	sheet := Sheet{
		SittingID: sitting.ID,
		ExamID:    exam.ID,
		Title:     exam.Title,
		Questions: make([]model.PublicQuestion, len(questions)),
	}
	for i, q := range questions {
		sheet.Questions[i] = q.Public()
	}
	return sheet, nil
}

// Result is the outcome of a submission.
type Result struct {
	AttemptID string   `json:"attemptId"`
	Score     int      `json:"score"`
	Correct   int      `json:"correct"`
	Total     int      `json:"total"`
	NewBadges []string `json:"newBadges"`
	Badges    []string `json:"badges"`
	// Rank is the 1-based leaderboard position, set when a ranker is configured.
	Rank      int64    `json:"rank,omitempty"`
}

// Submit grades answers against the questions of the sitting, records the
// attempt and updates the caller's profile. A sitting yields one attempt.
//
// The attempt is stored under the sitting id and the sitting is deleted
// last, so a submit that failed part-way can be retried and resumes the
// attempt already written.
func (s *Service) Submit(ctx context.Context, sess model.Session, sittingID string, answers []any) (Result, error) {
	sitting, err := s.repo.GetSitting(ctx, sittingID)
	if errors.Is(err, model.ErrNotFound) {
		return Result{}, ErrSittingNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("get sitting: %w", err)
	}
	if sitting.UserID != sess.UserID {
		return Result{}, ErrForbidden
	}

	user, err := s.repo.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("get user: %w", err)
	}

	attempt, err := s.repo.GetAttempt(ctx, sitting.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		stored := make([]any, len(sitting.Questions))
		copy(stored, answers)
		attempt = model.Attempt{
			ID:          sitting.ID,
			UserID:      sess.UserID,
			ExamID:      sitting.ExamID,
			QuestionIDs: sitting.QuestionIDs(),
			Answers:     stored,
			Timestamp:   s.now(),
		}
		attempt.Score = grading.Grade(sitting.Questions, stored).Score
		if err := s.repo.CreateAttempt(ctx, &attempt); err != nil {
			// A concurrent submit of the same sitting won the insert.
			if _, getErr := s.repo.GetAttempt(ctx, sitting.ID); getErr == nil {
				return Result{}, ErrSittingNotFound
			}
			return Result{}, fmt.Errorf("create attempt: %w", err)
		}
	case err != nil:
		return Result{}, fmt.Errorf("get attempt: %w", err)
	default:
		slog.Info("resuming submission", "sitting", sitting.ID, "user", sess.UserID)
	}
	report := grading.Grade(sitting.Questions, attempt.Answers)

	prior := slices.DeleteFunc(slices.Clone(user.Attempts), func(id string) bool { return id == attempt.ID })
	earned := s.badges.Award(badge.Input{
		Score:         report.Score,
		Current:       user.Badges,
		PriorAttempts: len(prior),
	})
	badges := badge.Merge(user.Badges, earned)
	if !slices.Contains(user.Attempts, attempt.ID) {
		attempts := append(prior, attempt.ID)
		if err := s.repo.UpdateUserProgress(ctx, user.ID, badges, attempts); err != nil {
			return Result{}, fmt.Errorf("update progress: %w", err)
		}
	}

	res := Result{
		AttemptID: attempt.ID,
		Score:     report.Score,
		Correct:   report.Correct,
		Total:     report.Total,
		NewBadges: earned,
		Badges:    badges,
	}
	if s.ranker != nil {
		if err := s.ranker.Record(ctx, attempt); err != nil {
			slog.Warn("leaderboard update failed", "attempt", attempt.ID, "error", err)
		} else if rank, err := s.ranker.Rank(ctx, attempt.ID); err != nil {
			slog.Warn("leaderboard rank failed", "attempt", attempt.ID, "error", err)
		} else if rank > 0 {
			res.Rank = rank
		}
	}

	if err := s.repo.ConsumeSitting(ctx, sitting.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
		slog.Warn("sitting not removed", "sitting", sitting.ID, "error", err)
	}
	slog.Info("exam submitted", "exam", attempt.ExamID, "user", user.ID, "attempt", attempt.ID,
		"score", attempt.Score, "badges", earned)
	return res, nil
}

// ReviewItem is one question of a reviewed attempt.
type ReviewItem struct {
	QuestionID  string             `json:"questionId"`
	Text        string             `json:"text"`
	Type        model.QuestionType `json:"type,omitempty"`
	Options     []string           `json:"options,omitempty"`
	Missing     bool               `json:"missing,omitempty"`
	Answer      any                `json:"answer"`
	AnswerText  string             `json:"answerText"`
	CorrectText string             `json:"correctText,omitempty"`
	Correct     bool               `json:"correct"`
	Explanation string             `json:"explanation,omitempty"`
}

// Review is a graded attempt shown back to its owner.
type Review struct {
	AttemptID string       `json:"attemptId"`
	ExamID    string       `json:"examId"`
	ExamTitle string       `json:"examTitle"`
	Score     int          `json:"score"`
	Timestamp time.Time    `json:"timestamp"`
	Items     []ReviewItem `json:"items"`
}

// Review rebuilds an attempt with per-question outcomes. Only the owner and
// admins may review an attempt.
func (s *Service) Review(ctx context.Context, sess model.Session, attemptID string) (Review, error) {
	a, err := s.repo.GetAttempt(ctx, attemptID)
	if errors.Is(err, model.ErrNotFound) {
		return Review{}, ErrAttemptNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("get attempt: %w", err)
	}
	if a.UserID != sess.UserID && !sess.IsAdmin {
		return Review{}, ErrForbidden
	}

	exam, err := s.repo.GetExam(ctx, a.ExamID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return Review{}, fmt.Errorf("get exam: %w", err)
	}
	pool, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return Review{}, fmt.Errorf("list questions: %w", err)
	}
	slots, err := assembly.Reconstruct(a, exam, pool)
	if err != nil {
		return Review{}, err
	}

	r := Review{
		AttemptID: a.ID,
		ExamID:    a.ExamID,
		ExamTitle: titleOr(exam, a.ExamID),
		Score:     a.Score,
		Timestamp: a.Timestamp,
		Items:     make([]ReviewItem, len(slots)),
	}
	for i, slot := range slots {
		var answer any
		if i < len(a.Answers) {
			answer = a.Answers[i]
		}
		item := ReviewItem{
			QuestionID: slot.ID,
			Answer:     answer,
			Missing:    !slot.Found,
		}
		if slot.Found {
			q := slot.Question
			item.Text = q.Text
			item.Type = q.Type()
			item.Options = q.Options
			item.AnswerText = grading.FormatAnswer(q, answer)
			item.CorrectText = grading.FormatKey(q)
			item.Correct = grading.Evaluate(q, answer)
			item.Explanation = q.Explanation
		} else {
			item.AnswerText = grading.FormatAnswer(model.Question{}, answer)
		}
		r.Items[i] = item
	}
	return r, nil
}

// Standing is an attempt decorated for the leaderboard and progress views.
type Standing struct {
	Rank        int       `json:"rank,omitempty"`
	AttemptID   string    `json:"attemptId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ExamID      string    `json:"examId"`
	ExamTitle   string    `json:"examTitle"`
	Score       int       `json:"score"`
	Timestamp   time.Time `json:"timestamp"`
}

// Leaderboard returns the best attempts, highest score first.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	attempts, err := s.topAttempts(ctx, limit)
	if err != nil {
		return nil, err
	}
	standings, err := s.decorate(ctx, attempts)
	if err != nil {
		return nil, err
	}
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

func (s *Service) topAttempts(ctx context.Context, limit int) ([]model.Attempt, error) {
	if s.ranker == nil {
		return s.repo.TopAttempts(ctx, limit)
	}
	ids, err := s.ranker.Top(ctx, limit)
	if err != nil {
		slog.Warn("leaderboard read failed, using repository", "error", err)
		return s.repo.TopAttempts(ctx, limit)
	}
	attempts := make([]model.Attempt, 0, len(ids))
	for _, id := range ids {
		a, err := s.repo.GetAttempt(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get attempt %s: %w", id, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// Progress returns every attempt, newest first.
func (s *Service) Progress(ctx context.Context) ([]Standing, error) {
	attempts, err := s.repo.ListAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return s.decorate(ctx, attempts)
}

// WarmRanker records every stored attempt with the ranker.
func (s *Service) WarmRanker(ctx context.Context) error {
	if s.ranker == nil {
		return nil
	}
	attempts, err := s.repo.ListAttempts(ctx)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	for _, a := range attempts {
		if err := s.ranker.Record(ctx, a); err != nil {
			return fmt.Errorf("record attempt %s: %w", a.ID, err)
		}
	}
	slog.Info("leaderboard warmed", "attempts", len(attempts))
	return nil
}

func (s *Service) decorate(ctx context.Context, attempts []model.Attempt) ([]Standing, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	exams, err := s.repo.ListExams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	titles := make(map[string]model.Exam, len(exams))
	for _, e := range exams {
		titles[e.ID] = e
	}

	out := make([]Standing, len(attempts))
	for i, a := range attempts {
		name, ok := names[a.UserID]
		if !ok || name == "" {
			name = a.UserID
		}
		out[i] = Standing{
			AttemptID:   a.ID,
			UserID:      a.UserID,
			DisplayName: name,
			ExamID:      a.ExamID,
			ExamTitle:   titleOr(titles[a.ExamID], a.ExamID),
			Score:       a.Score,
			Timestamp:   a.Timestamp,
		}
	}
	return out, nil
}

func titleOr(e model.Exam, fallback string) string {
	if e.Title != "" {
		return e.Title
	}
	return fallback
}
