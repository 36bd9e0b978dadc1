package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/quizhall/internal/assembly"
	"github.com/pavelanni/quizhall/internal/auth"
	appI18n "github.com/pavelanni/quizhall/internal/i18n"
	"github.com/pavelanni/quizhall/internal/model"
	"github.com/pavelanni/quizhall/internal/quiz"
)

// maxLeaderboardSize caps the limit query parameter of the leaderboard.
const maxLeaderboardSize = 100

// Explainer drafts question explanations.
type Explainer interface {
	DraftExplanation(ctx context.Context, q model.Question) (string, error)
}

// Config holds HTTP-level settings.
type Config struct {
	SecureCookies  bool
	AllowSignup    bool
	AllowedOrigins []string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc       *quiz.Service
	repo      quiz.Repository
	tokens    *auth.Issuer
	explainer Explainer
	config    Config
}

// New creates a new Handler. explainer may be nil, which disables
// explanation drafting.
func New(svc *quiz.Service, tokens *auth.Issuer, explainer Explainer, cfg Config) *Handler {
	return &Handler{
		svc:       svc,
		repo:      svc.Repo(),
		tokens:    tokens,
		explainer: explainer,
		config:    cfg,
	}
}

// Router builds the full HTTP handler with the shared middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if len(h.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", csrfHeaderName},
			ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/api/auth/login", h.handleLogin)
	r.Post("/api/auth/register", h.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth, h.csrfMiddleware)

		r.Post("/api/auth/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)
		r.Get("/api/exams", h.handleListExams)
		r.Post("/api/exams/{examID}/start", h.handleStartExam)
		r.Post("/api/sittings/{sittingID}/submit", h.handleSubmit)
		r.Get("/api/attempts/{attemptID}", h.handleReview)
		r.Get("/api/leaderboard", h.handleLeaderboard)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Get("/questions", h.handleListQuestions)
			r.Post("/questions", h.handleCreateQuestion)
			r.Post("/questions/import", h.handleImportQuestions)
			r.Get("/questions/export", h.handleExportQuestions)
			r.Get("/questions/{questionID}", h.handleGetQuestion)
			r.Put("/questions/{questionID}", h.handleUpdateQuestion)
			r.Delete("/questions/{questionID}", h.handleDeleteQuestion)
			r.Post("/questions/{questionID}/explain", h.handleExplainQuestion)

			r.Get("/categories", h.handleListCategories)
			r.Post("/categories", h.handleCreateCategory)
			r.Delete("/categories/{categoryID}", h.handleDeleteCategory)

			r.Get("/exams", h.handleAdminListExams)
			r.Post("/exams", h.handleCreateExam)
			r.Get("/exams/{examID}", h.handleGetExam)
			r.Put("/exams/{examID}", h.handleUpdateExam)
			r.Delete("/exams/{examID}", h.handleDeleteExam)

			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle-active", h.handleToggleUserActive)

			r.Get("/progress", h.handleProgress)
		})
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.repo.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "app": appI18n.T(r.Context(), "AppTitle")})
}

type meResponse struct {
	*model.User
	BadgeLabels []string `json:"badgeLabels"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		User:        user,
		BadgeLabels: appI18n.BadgeLabels(r.Context(), user.Badges),
	})
}

type examSummary struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Mode          model.ExamMode `json:"mode"`
	QuestionCount int            `json:"questionCount"`
	QuestionsText string         `json:"questionsText"`
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.repo.ListExams(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	pool, err := h.repo.ListQuestions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]examSummary, len(exams))
	for i, e := range exams {
		// Counts are upper bounds: fixed lists may name deleted questions.
		n := len(pool)
		switch e.Mode() {
		case model.ModeFixed:
			n = len(e.QuestionIDs)
		case model.ModeRandom:
			n = min(e.RandomCount, len(pool))
		}
		out[i] = examSummary{
			ID:            e.ID,
			Title:         e.Title,
			Description:   e.Description,
			Mode:          e.Mode(),
			QuestionCount: n,
			QuestionsText: appI18n.Tp(r.Context(), "QuestionsCount", n),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.svc.Start(r.Context(), sessionFrom(r), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sheet)
}

type submitRequest struct {
	Answers []any `json:"answers"`
}

type submitResponse struct {
	quiz.Result
	ScoreText      string   `json:"scoreText"`
	NewBadgeLabels []string `json:"newBadgeLabels"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Submit(r.Context(), sessionFrom(r), chi.URLParam(r, "sittingID"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		Result:         res,
		ScoreText:      appI18n.Td(r.Context(), "ScoreN", map[string]any{"Score": res.Score}),
		NewBadgeLabels: appI18n.BadgeLabels(r.Context(), res.NewBadges),
	})
}

type reviewItem struct {
	quiz.ReviewItem
	Verdict string `json:"verdict"`
}

type reviewResponse struct {
	quiz.Review
	ScoreText string       `json:"scoreText"`
	Items     []reviewItem `json:"items"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	rv, err := h.svc.Review(r.Context(), sessionFrom(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	resp := reviewResponse{
		Review:    rv,
		ScoreText: appI18n.Td(ctx, "ScoreN", map[string]any{"Score": rv.Score}),
		Items:     make([]reviewItem, len(rv.Items)),
	}
	for i, it := range rv.Items {
		if it.Missing {
			it.Text = appI18n.T(ctx, "Missing")
		}
		if it.Type == model.TypeTrueFalse {
			it.CorrectText = appI18n.Bool(ctx, it.CorrectText == "True")
			if it.Answer != nil {
				it.AnswerText = appI18n.Bool(ctx, it.AnswerText == "True")
			}
		}
		if it.Answer == nil {
			it.AnswerText = appI18n.T(ctx, "NoAnswer")
		}
		resp.Items[i] = reviewItem{ReviewItem: it, Verdict: appI18n.Verdict(ctx, it.Correct)}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := quiz.DefaultLeaderboardSize
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLeaderboardSize)
	}
	standings, err := h.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(standings))
}

func sessionFrom(r *http.Request) model.Session {
	return model.SessionFor(model.UserFromContext(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service and repository errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, quiz.ErrExamNotFound),
		errors.Is(err, quiz.ErrSittingNotFound),
		errors.Is(err, quiz.ErrAttemptNotFound),
		errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quiz.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, quiz.ErrNoQuestions), errors.Is(err, assembly.ErrNotReplayable):
		status = http.StatusConflict
	case errors.Is(err, quiz.ErrInvalidDocument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeErrorMessage(w, status, "internal error")
		return
	}
	writeErrorMessage(w, status, err.Error())
}

// decodeJSON reads a JSON request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
