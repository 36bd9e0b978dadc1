package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizhall/internal/model"
	"github.com/pavelanni/quizhall/internal/quiz"
)

// maxImportSize bounds uploaded question documents.
const maxImportSize = 10 << 20

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.repo.ListQuestions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(questions))
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.repo.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// readQuestion decodes and validates a question body, resolving its category.
func (h *Handler) readQuestion(w http.ResponseWriter, r *http.Request) (model.Question, bool) {
	var q model.Question
	if !decodeJSON(w, r, &q) {
		return q, false
	}
	if strings.TrimSpace(q.Text) == "" {
		writeErrorMessage(w, http.StatusBadRequest, "text is required")
		return q, false
	}
	switch q.Key.(type) {
	case model.ChoiceKey, model.TruthKey, model.TextKey, model.OrderKey:
	default:
		writeErrorMessage(w, http.StatusBadRequest, "type must be one of mcq, truefalse, short, drag")
		return q, false
	}
	if k, ok := q.Key.(model.ChoiceKey); ok && (k.Index < 0 || k.Index >= len(q.Options)) {
		writeErrorMessage(w, http.StatusBadRequest, "answer must be the index of an option")
		return q, false
	}

	q.CategoryName = ""
	if q.CategoryID != "" {
		c, err := h.repo.GetCategory(r.Context(), q.CategoryID)
		if isNotFound(err) {
			writeErrorMessage(w, http.StatusBadRequest, "unknown category")
			return q, false
		}
		if err != nil {
			writeError(w, r, err)
			return q, false
		}
		q.CategoryName = c.Name
	}
	return q, true
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := h.readQuestion(w, r)
	if !ok {
		return
	}
	q.ID = ""
	if err := h.repo.CreateQuestion(r.Context(), &q); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("question created", "id", q.ID, "type", q.Type())
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := h.readQuestion(w, r)
	if !ok {
		return
	}
	q.ID = chi.URLParam(r, "questionID")
	if err := h.repo.UpdateQuestion(r.Context(), q); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.repo.GetQuestion(r.Context(), q.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionID")
	if err := h.repo.DeleteQuestion(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("question deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleImportQuestions accepts either a multipart upload (field "file") or
// a raw JSON body. The target category comes from the categoryId form value
// or query parameter.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	var (
		data []byte
		name = "request body"
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxImportSize); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "file too large")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		defer file.Close()
		name = header.Filename
		data, err = io.ReadAll(file)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "failed to read file")
			return
		}
	} else {
		data, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "file too large")
			return
		}
	}

	categoryID := r.FormValue("categoryId")
	if categoryID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "categoryId is required")
		return
	}
	category, err := h.repo.GetCategory(r.Context(), categoryID)
	if isNotFound(err) {
		writeErrorMessage(w, http.StatusBadRequest, "unknown category")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	force, _ := strconv.ParseBool(r.FormValue("force"))
	report, err := quiz.ImportOnce(r.Context(), h.repo, data, category, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("uploaded questions via admin", "source", name, "category", category.Name,
		"imported", report.Imported, "skipped", report.Skipped, "duplicate", report.AlreadyImported)
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleExportQuestions(w http.ResponseWriter, r *http.Request) {
	data, err := quiz.ExportQuestions(r.Context(), h.repo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="questions.json"`)
	_, _ = w.Write(data)
}

// handleExplainQuestion drafts an explanation with the LLM. With save=true
// the draft replaces the stored explanation.
func (h *Handler) handleExplainQuestion(w http.ResponseWriter, r *http.Request) {
	if h.explainer == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "explanation drafting is not configured")
		return
	}
	q, err := h.repo.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	draft, err := h.explainer.DraftExplanation(r.Context(), q)
	if err != nil {
		slog.Error("LLM explanation failed", "question", q.ID, "error", err)
		writeErrorMessage(w, http.StatusBadGateway, "explanation drafting failed")
		return
	}
	saved := false
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		q.Explanation = draft
		if err := h.repo.UpdateQuestion(r.Context(), q); err != nil {
			writeError(w, r, err)
			return
		}
		saved = true
	}
	writeJSON(w, http.StatusOK, map[string]any{"questionId": q.ID, "explanation": draft, "saved": saved})
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.repo.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(cats))
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c model.Category
	if !decodeJSON(w, r, &c) {
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	if c.Name == model.UnassignedCategory {
		writeErrorMessage(w, http.StatusBadRequest, "name is reserved")
		return
	}
	if _, err := h.repo.GetCategoryByName(r.Context(), c.Name); err == nil {
		writeErrorMessage(w, http.StatusConflict, "category already exists")
		return
	} else if !isNotFound(err) {
		writeError(w, r, err)
		return
	}
	c.ID = ""
	if err := h.repo.CreateCategory(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "categoryID")
	if err := h.repo.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("category deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// examRequest is an exam definition as written by admins. Mode, when set,
// picks which of QuestionIDs and RandomCount stays active.
type examRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	QuestionIDs []string       `json:"questionIds"`
	RandomCount int            `json:"randomCount"`
	Mode        model.ExamMode `json:"mode"`
}

func (h *Handler) readExam(w http.ResponseWriter, r *http.Request) (model.Exam, bool) {
	var req examRequest
	if !decodeJSON(w, r, &req) {
		return model.Exam{}, false
	}
	if strings.TrimSpace(req.Title) == "" {
		writeErrorMessage(w, http.StatusBadRequest, "title is required")
		return model.Exam{}, false
	}
	switch req.Mode {
	case "", model.ModeFixed, model.ModeRandom, model.ModeAll:
	default:
		writeErrorMessage(w, http.StatusBadRequest, "mode must be fixed, random or all")
		return model.Exam{}, false
	}
	if req.RandomCount < 0 {
		writeErrorMessage(w, http.StatusBadRequest, "randomCount must not be negative")
		return model.Exam{}, false
	}
	e := model.Exam{
		Title:       req.Title,
		Description: req.Description,
		QuestionIDs: req.QuestionIDs,
		RandomCount: req.RandomCount,
	}
	e.Normalize(req.Mode)
	return e, true
}

func (h *Handler) handleAdminListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.repo.ListExams(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(exams))
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.repo.GetExam(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	e, ok := h.readExam(w, r)
	if !ok {
		return
	}
	if err := h.repo.CreateExam(r.Context(), &e); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("exam created", "id", e.ID, "mode", e.Mode())
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	e, ok := h.readExam(w, r)
	if !ok {
		return
	}
	e.ID = chi.URLParam(r, "examID")
	if err := h.repo.UpdateExam(r.Context(), e); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.repo.GetExam(r.Context(), e.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "examID")
	if err := h.repo.DeleteExam(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("exam deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(users))
}

type createUserRequest struct {
	credentials
	IsAdmin bool `json:"isAdmin"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, status, msg := h.createUser(r.Context(), req.credentials, req.IsAdmin)
	if user == nil {
		writeErrorMessage(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// createUser validates and stores a new account. On failure it returns a nil
// user with the HTTP status and message to report.
func (h *Handler) createUser(ctx context.Context, req credentials, admin bool) (*model.User, int, string) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, http.StatusBadRequest, "username and password required"
	}
	if _, err := h.repo.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, http.StatusConflict, "username already taken"
	} else if !isNotFound(err) {
		slog.Error("failed to check username", "error", err)
		return nil, http.StatusInternalServerError, "internal error"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		return nil, http.StatusInternalServerError, "internal error"
	}
	user := &model.User{
		Username:     req.Username,
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		IsAdmin:      admin,
		Active:       true,
		Badges:       []string{},
		Attempts:     []string{},
	}
	if err := h.repo.CreateUser(ctx, user); err != nil {
		slog.Error("failed to create user", "error", err)
		return nil, http.StatusInternalServerError, "internal error"
	}
	return user, 0, ""
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if current := model.UserFromContext(r.Context()); current != nil && current.ID == id {
		writeErrorMessage(w, http.StatusBadRequest, "cannot deactivate yourself")
		return
	}
	if err := h.repo.ToggleUserActive(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.repo.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user active toggled", "id", id, "active", user.Active)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	standings, err := h.svc.Progress(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(standings))
}
