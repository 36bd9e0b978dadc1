package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizhall/internal/auth"
	appI18n "github.com/pavelanni/quizhall/internal/i18n"
	"github.com/pavelanni/quizhall/internal/model"
	"github.com/pavelanni/quizhall/internal/quiz"
	"github.com/pavelanni/quizhall/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeExplainer struct {
	text string
	err  error
}

func (f fakeExplainer) DraftExplanation(context.Context, model.Question) (string, error) {
	return f.text, f.err
}

type testEnv struct {
	t       *testing.T
	repo    *store.Store
	router  http.Handler
	admin   string
	learner string
}

func newEnv(t *testing.T, explainer Explainer, cfg Config) *testEnv {
	t.Helper()
	repo, err := store.New(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	env := &testEnv{t: t, repo: repo}
	env.seedUser("admin", "adminpw", "Administrator", true)
	env.seedUser("ana", "secret", "Ana", false)

	h := New(quiz.NewService(repo), auth.NewIssuer("test-secret"), explainer, cfg)
	env.router = h.Router()
	env.admin = env.login("admin", "adminpw").Token
	env.learner = env.login("ana", "secret").Token
	return env
}

func (e *testEnv) seedUser(username, password, name string, admin bool) {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		e.t.Fatalf("hash: %v", err)
	}
	u := &model.User{Username: username, Name: name, PasswordHash: string(hash), IsAdmin: admin, Active: true}
	if err := e.repo.CreateUser(context.Background(), u); err != nil {
		e.t.Fatalf("CreateUser: %v", err)
	}
}

func (e *testEnv) login(username, password string) loginResponse {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	if rec.Code != http.StatusOK {
		e.t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body)
	}
	var resp loginResponse
	decode(e.t, rec, &resp)
	return resp
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body)
	}
}

// createCategory and friends go through the admin API.
func (e *testEnv) createCategory(name string) model.Category {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/admin/categories", e.admin, map[string]string{"name": name})
	expectStatus(e.t, rec, http.StatusCreated)
	var c model.Category
	decode(e.t, rec, &c)
	return c
}

func (e *testEnv) createQuestion(doc string) model.Question {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/admin/questions", e.admin, doc)
	expectStatus(e.t, rec, http.StatusCreated)
	var q model.Question
	decode(e.t, rec, &q)
	return q
}

func TestHealth(t *testing.T) {
	env := newEnv(t, nil, Config{})
	rec := env.do(http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestLogin(t *testing.T) {
	env := newEnv(t, nil, Config{})

	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"wrong password", "ana", "nope", http.StatusUnauthorized},
		{"unknown user", "bob", "secret", http.StatusUnauthorized},
		{"ok", "ana", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": tt.username, "password": tt.password})
			expectStatus(t, rec, tt.want)
			if tt.want == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), "Invalid username or password.") {
				t.Errorf("expected localized login error, got %s", rec.Body)
			}
		})
	}
}

func TestMe(t *testing.T) {
	env := newEnv(t, nil, Config{})

	rec := env.do(http.MethodGet, "/api/me", env.learner, nil)
	expectStatus(t, rec, http.StatusOK)
	var me struct {
		Username string   `json:"username"`
		IsAdmin  bool     `json:"isAdmin"`
		Badges   []string `json:"badges"`
	}
	decode(t, rec, &me)
	if me.Username != "ana" || me.IsAdmin {
		t.Errorf("unexpected profile %+v", me)
	}
	if strings.Contains(rec.Body.String(), "PasswordHash") || strings.Contains(rec.Body.String(), "$2a$") {
		t.Error("profile must not expose the password hash")
	}
}

func TestRequireAuth(t *testing.T) {
	env := newEnv(t, nil, Config{})

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"garbage", "Bearer not-a-token"},
		{"wrong scheme", "Basic " + env.learner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			expectStatus(t, env.serve(req), http.StatusUnauthorized)
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newEnv(t, nil, Config{})

	expectStatus(t, env.do(http.MethodPost, "/api/auth/logout", env.learner, nil), http.StatusNoContent)
	expectStatus(t, env.do(http.MethodGet, "/api/me", env.learner, nil), http.StatusUnauthorized)
}

func TestCookieAuthRequiresCSRFHeader(t *testing.T) {
	env := newEnv(t, nil, Config{})

	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "ana", "password": "secret"})
	expectStatus(t, rec, http.StatusOK)
	cookies := rec.Result().Cookies()
	var csrf string
	for _, c := range cookies {
		if c.Name == csrfCookieName {
			csrf = c.Value
		}
	}
	if csrf == "" {
		t.Fatal("login should set the csrf cookie")
	}

	withCookies := func(method, path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader("{}"))
		for _, c := range cookies {
			req.AddCookie(c)
		}
		if header != "" {
			req.Header.Set(csrfHeaderName, header)
		}
		return env.serve(req)
	}

	expectStatus(t, withCookies(http.MethodGet, "/api/me", ""), http.StatusOK)
	expectStatus(t, withCookies(http.MethodPost, "/api/exams/nope/start", ""), http.StatusForbidden)
	expectStatus(t, withCookies(http.MethodPost, "/api/exams/nope/start", "forged"), http.StatusForbidden)
	// The token matches, so the request reaches the service, which reports the missing exam.
	expectStatus(t, withCookies(http.MethodPost, "/api/exams/nope/start", csrf), http.StatusNotFound)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newEnv(t, nil, Config{})

	expectStatus(t, env.do(http.MethodGet, "/api/admin/questions", env.learner, nil), http.StatusForbidden)
	expectStatus(t, env.do(http.MethodGet, "/api/admin/questions", env.admin, nil), http.StatusOK)
}

func TestExamFlow(t *testing.T) {
	env := newEnv(t, nil, Config{})

	cat := env.createCategory("Arithmetic")
	q1 := env.createQuestion(`{"text":"2 + 2 = ?","type":"mcq","options":["3","4"],"answer":1,"explanation":"Basic sum.","categoryId":"` + cat.ID + `"}`)
	q2 := env.createQuestion(`{"text":"Zero is even","type":"truefalse","answer":"true"}`)
	if q1.CategoryName != "Arithmetic" {
		t.Errorf("question category name = %q", q1.CategoryName)
	}

	rec := env.do(http.MethodPost, "/api/admin/exams", env.admin, map[string]any{
		"title": "Warm-up", "questionIds": []string{q2.ID, q1.ID},
	})
	expectStatus(t, rec, http.StatusCreated)
	var exam model.Exam
	decode(t, rec, &exam)

	rec = env.do(http.MethodGet, "/api/exams", env.learner, nil)
	expectStatus(t, rec, http.StatusOK)
	var exams []examSummary
	decode(t, rec, &exams)
	if len(exams) != 1 || exams[0].Mode != model.ModeFixed {
		t.Fatalf("unexpected exam list %+v", exams)
	}
	if exams[0].QuestionCount != 2 || exams[0].QuestionsText != "2 questions" {
		t.Errorf("question count = %d %q", exams[0].QuestionCount, exams[0].QuestionsText)
	}

	rec = env.do(http.MethodPost, "/api/exams/"+exam.ID+"/start", env.learner, nil)
	expectStatus(t, rec, http.StatusCreated)
	if strings.Contains(rec.Body.String(), `"answer"`) || strings.Contains(rec.Body.String(), "Basic sum.") {
		t.Errorf("sheet leaks answer keys: %s", rec.Body)
	}
	var sheet quiz.Sheet
	decode(t, rec, &sheet)
	if len(sheet.Questions) != 2 || sheet.Questions[0].ID != q2.ID {
		t.Fatalf("unexpected sheet %+v", sheet)
	}

	submitPath := "/api/sittings/" + sheet.SittingID + "/submit"
	rec = env.do(http.MethodPost, submitPath, env.admin, map[string]any{"answers": []any{true, 1}})
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.do(http.MethodPost, submitPath, env.learner, map[string]any{"answers": []any{true, 1}})
	expectStatus(t, rec, http.StatusCreated)
	var res submitResponse
	decode(t, rec, &res)
	if res.Score != 100 || res.ScoreText != "Score: 100%" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.NewBadgeLabels) != 2 || res.NewBadgeLabels[0] != "First Attempt" {
		t.Errorf("new badge labels = %v", res.NewBadgeLabels)
	}

	expectStatus(t, env.do(http.MethodPost, submitPath, env.learner, map[string]any{"answers": []any{true, 1}}), http.StatusNotFound)

	rec = env.do(http.MethodGet, "/api/attempts/"+res.AttemptID, env.learner, nil)
	expectStatus(t, rec, http.StatusOK)
	var review struct {
		Score int `json:"score"`
		Items []struct {
			QuestionID  string `json:"questionId"`
			Verdict     string `json:"verdict"`
			AnswerText  string `json:"answerText"`
			CorrectText string `json:"correctText"`
		} `json:"items"`
	}
	decode(t, rec, &review)
	if len(review.Items) != 2 || review.Items[1].QuestionID != q1.ID || review.Items[1].Verdict != "Correct" || review.Items[1].CorrectText != "4" {
		t.Fatalf("unexpected review %+v", review)
	}
	if review.Items[0].AnswerText != "True" || review.Items[0].CorrectText != "True" {
		t.Errorf("true/false texts = %q %q", review.Items[0].AnswerText, review.Items[0].CorrectText)
	}

	rec = env.do(http.MethodGet, "/api/leaderboard?limit=5", env.learner, nil)
	expectStatus(t, rec, http.StatusOK)
	var board []quiz.Standing
	decode(t, rec, &board)
	if len(board) != 1 || board[0].DisplayName != "Ana" || board[0].ExamTitle != "Warm-up" || board[0].Rank != 1 {
		t.Errorf("unexpected leaderboard %+v", board)
	}
	expectStatus(t, env.do(http.MethodGet, "/api/leaderboard?limit=x", env.learner, nil), http.StatusBadRequest)

	rec = env.do(http.MethodGet, "/api/admin/progress", env.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var progress []quiz.Standing
	decode(t, rec, &progress)
	if len(progress) != 1 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestReviewLocalizesMissingQuestion(t *testing.T) {
	env := newEnv(t, nil, Config{})

	q := env.createQuestion(`{"text":"Capital of France?","type":"short","answer":"Paris"}`)
	rec := env.do(http.MethodPost, "/api/admin/exams", env.admin, map[string]any{"title": "Geo", "questionIds": []string{q.ID}})
	expectStatus(t, rec, http.StatusCreated)
	var exam model.Exam
	decode(t, rec, &exam)

	rec = env.do(http.MethodPost, "/api/exams/"+exam.ID+"/start", env.learner, nil)
	var sheet quiz.Sheet
	decode(t, rec, &sheet)
	rec = env.do(http.MethodPost, "/api/sittings/"+sheet.SittingID+"/submit", env.learner, map[string]any{"answers": []any{"paris"}})
	expectStatus(t, rec, http.StatusCreated)
	var res submitResponse
	decode(t, rec, &res)

	expectStatus(t, env.do(http.MethodDelete, "/api/admin/questions/"+q.ID, env.admin, nil), http.StatusNoContent)

	req := httptest.NewRequest(http.MethodGet, "/api/attempts/"+res.AttemptID, nil)
	req.Header.Set("Authorization", "Bearer "+env.learner)
	req.Header.Set("Accept-Language", "ru")
	rec = env.serve(req)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Этот вопрос был удалён.") || !strings.Contains(rec.Body.String(), `"missing":true`) {
		t.Errorf("expected localized placeholder, got %s", rec.Body)
	}
}

func TestQuestionValidation(t *testing.T) {
	env := newEnv(t, nil, Config{})

	tests := []struct {
		name string
		doc  string
	}{
		{"no text", `{"type":"short","answer":"x"}`},
		{"unknown type", `{"text":"x","type":"essay"}`},
		{"mcq index out of range", `{"text":"x","type":"mcq","options":["a"],"answer":3}`},
		{"malformed answer", `{"text":"x","type":"drag","answer":"ab"}`},
		{"unknown category", `{"text":"x","type":"short","answer":"x","categoryId":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(http.MethodPost, "/api/admin/questions", env.admin, tt.doc), http.StatusBadRequest)
		})
	}
}

func TestUpdateQuestion(t *testing.T) {
	env := newEnv(t, nil, Config{})

	q := env.createQuestion(`{"text":"Old","type":"short","answer":"a"}`)
	rec := env.do(http.MethodPut, "/api/admin/questions/"+q.ID, env.admin, `{"text":"New","type":"short","answer":"b"}`)
	expectStatus(t, rec, http.StatusOK)
	var got model.Question
	decode(t, rec, &got)
	if got.Text != "New" || got.Key != (model.TextKey{Text: "b"}) || got.ID != q.ID {
		t.Errorf("unexpected updated question %+v", got)
	}
	expectStatus(t, env.do(http.MethodPut, "/api/admin/questions/missing", env.admin, `{"text":"x","type":"short","answer":"b"}`), http.StatusNotFound)
}

func TestImportAndExport(t *testing.T) {
	env := newEnv(t, nil, Config{})
	cat := env.createCategory("Imported")

	doc := `[
		{"text":"One","type":"short","answer":"1"},
		{"text":"Two","type":"truefalse","answer":false},
		{"type":"mcq","options":["a"],"answer":0}
	]`

	rec := env.do(http.MethodPost, "/api/admin/questions/import?categoryId="+cat.ID, env.admin, doc)
	expectStatus(t, rec, http.StatusOK)
	var report quiz.ImportReport
	decode(t, rec, &report)
	if report.Imported != 2 || report.Skipped != 1 {
		t.Errorf("unexpected report %+v", report)
	}

	rec = env.do(http.MethodPost, "/api/admin/questions/import?categoryId="+cat.ID, env.admin, doc)
	expectStatus(t, rec, http.StatusOK)
	report = quiz.ImportReport{}
	decode(t, rec, &report)
	if !report.AlreadyImported {
		t.Errorf("second import should be detected, got %+v", report)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("categoryId", cat.ID)
	_ = mw.WriteField("force", "true")
	fw, _ := mw.CreateFormFile("file", "questions.json")
	_, _ = fw.Write([]byte(doc))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/questions/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.admin)
	rec = env.serve(req)
	expectStatus(t, rec, http.StatusOK)
	report = quiz.ImportReport{}
	decode(t, rec, &report)
	if report.Imported != 2 {
		t.Errorf("forced multipart import = %+v", report)
	}

	expectStatus(t, env.do(http.MethodPost, "/api/admin/questions/import", env.admin, doc), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/questions/import?categoryId=nope", env.admin, doc), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/questions/import?categoryId="+cat.ID, env.admin, `{"text":"x"}`), http.StatusBadRequest)

	rec = env.do(http.MethodGet, "/api/admin/questions/export", env.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "questions.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var exported []model.Question
	decode(t, rec, &exported)
	if len(exported) != 4 || exported[0].CategoryName != "Imported" {
		t.Errorf("unexpected export %+v", exported)
	}
}

func TestCategories(t *testing.T) {
	env := newEnv(t, nil, Config{})

	cat := env.createCategory("History")
	expectStatus(t, env.do(http.MethodPost, "/api/admin/categories", env.admin, map[string]string{"name": "History"}), http.StatusConflict)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/categories", env.admin, map[string]string{"name": " "}), http.StatusBadRequest)

	q := env.createQuestion(`{"text":"1066?","type":"short","answer":"Hastings","categoryId":"` + cat.ID + `"}`)
	expectStatus(t, env.do(http.MethodDelete, "/api/admin/categories/"+cat.ID, env.admin, nil), http.StatusNoContent)
	expectStatus(t, env.do(http.MethodDelete, "/api/admin/categories/"+cat.ID, env.admin, nil), http.StatusNotFound)

	rec := env.do(http.MethodGet, "/api/admin/questions/"+q.ID, env.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var got model.Question
	decode(t, rec, &got)
	if got.CategoryID != "" || got.CategoryName != model.UnassignedCategory {
		t.Errorf("question should be unassigned, got %q/%q", got.CategoryID, got.CategoryName)
	}
}

func TestExamModes(t *testing.T) {
	env := newEnv(t, nil, Config{})

	tests := []struct {
		name      string
		body      map[string]any
		wantMode  model.ExamMode
		wantCount int
		wantIDs   int
	}{
		{"explicit random wins", map[string]any{"title": "R", "mode": "random", "questionIds": []string{"a"}, "randomCount": 2}, model.ModeRandom, 2, 0},
		{"list wins without mode", map[string]any{"title": "F", "questionIds": []string{"a"}, "randomCount": 2}, model.ModeFixed, 0, 1},
		{"all", map[string]any{"title": "A", "mode": "all", "questionIds": []string{"a"}}, model.ModeAll, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/admin/exams", env.admin, tt.body)
			expectStatus(t, rec, http.StatusCreated)
			var e model.Exam
			decode(t, rec, &e)
			if e.Mode() != tt.wantMode || e.RandomCount != tt.wantCount || len(e.QuestionIDs) != tt.wantIDs {
				t.Errorf("unexpected exam %+v", e)
			}
		})
	}

	expectStatus(t, env.do(http.MethodPost, "/api/admin/exams", env.admin, map[string]any{"title": "X", "mode": "weird"}), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/exams", env.admin, map[string]any{"mode": "all"}), http.StatusBadRequest)
}

func TestUpdateAndDeleteExam(t *testing.T) {
	env := newEnv(t, nil, Config{})

	rec := env.do(http.MethodPost, "/api/admin/exams", env.admin, map[string]any{"title": "Old"})
	var e model.Exam
	decode(t, rec, &e)

	rec = env.do(http.MethodPut, "/api/admin/exams/"+e.ID, env.admin, map[string]any{"title": "New", "randomCount": 3})
	expectStatus(t, rec, http.StatusOK)
	var got model.Exam
	decode(t, rec, &got)
	if got.Title != "New" || got.Mode() != model.ModeRandom {
		t.Errorf("unexpected exam %+v", got)
	}

	expectStatus(t, env.do(http.MethodDelete, "/api/admin/exams/"+e.ID, env.admin, nil), http.StatusNoContent)
	expectStatus(t, env.do(http.MethodGet, "/api/admin/exams/"+e.ID, env.admin, nil), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodPost, "/api/exams/"+e.ID+"/start", env.learner, nil), http.StatusNotFound)
}

func TestStartEmptyExam(t *testing.T) {
	env := newEnv(t, nil, Config{})

	rec := env.do(http.MethodPost, "/api/admin/exams", env.admin, map[string]any{"title": "Empty", "questionIds": []string{"gone"}})
	var e model.Exam
	decode(t, rec, &e)
	expectStatus(t, env.do(http.MethodPost, "/api/exams/"+e.ID+"/start", env.learner, nil), http.StatusConflict)
}

func TestExplainQuestion(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newEnv(t, nil, Config{})
		q := env.createQuestion(`{"text":"x","type":"short","answer":"y"}`)
		expectStatus(t, env.do(http.MethodPost, "/api/admin/questions/"+q.ID+"/explain", env.admin, nil), http.StatusServiceUnavailable)
	})

	t.Run("draft and save", func(t *testing.T) {
		env := newEnv(t, fakeExplainer{text: "Because y."}, Config{})
		q := env.createQuestion(`{"text":"x","type":"short","answer":"y"}`)

		rec := env.do(http.MethodPost, "/api/admin/questions/"+q.ID+"/explain", env.admin, nil)
		expectStatus(t, rec, http.StatusOK)
		stored, _ := env.repo.GetQuestion(context.Background(), q.ID)
		if stored.Explanation != "" {
			t.Error("draft without save should not be stored")
		}

		rec = env.do(http.MethodPost, "/api/admin/questions/"+q.ID+"/explain?save=true", env.admin, nil)
		expectStatus(t, rec, http.StatusOK)
		stored, _ = env.repo.GetQuestion(context.Background(), q.ID)
		if stored.Explanation != "Because y." {
			t.Errorf("explanation = %q", stored.Explanation)
		}
	})

	t.Run("llm failure", func(t *testing.T) {
		env := newEnv(t, fakeExplainer{err: errors.New("down")}, Config{})
		q := env.createQuestion(`{"text":"x","type":"short","answer":"y"}`)
		expectStatus(t, env.do(http.MethodPost, "/api/admin/questions/"+q.ID+"/explain", env.admin, nil), http.StatusBadGateway)
	})
}

func TestRegister(t *testing.T) {
	body := map[string]string{"username": "zoe", "password": "pw", "email": "zoe@example.com"}

	t.Run("disabled", func(t *testing.T) {
		env := newEnv(t, nil, Config{})
		expectStatus(t, env.do(http.MethodPost, "/api/auth/register", "", body), http.StatusForbidden)
	})

	t.Run("enabled", func(t *testing.T) {
		env := newEnv(t, nil, Config{AllowSignup: true})
		rec := env.do(http.MethodPost, "/api/auth/register", "", body)
		expectStatus(t, rec, http.StatusCreated)
		var resp loginResponse
		decode(t, rec, &resp)
		if resp.Token == "" || resp.User.IsAdmin || len(resp.User.Badges) != 0 {
			t.Errorf("unexpected registration %+v", resp)
		}
		expectStatus(t, env.do(http.MethodGet, "/api/me", resp.Token, nil), http.StatusOK)
		expectStatus(t, env.do(http.MethodPost, "/api/auth/register", "", body), http.StatusConflict)
	})
}

func TestUsers(t *testing.T) {
	env := newEnv(t, nil, Config{})

	rec := env.do(http.MethodPost, "/api/admin/users", env.admin, map[string]any{"username": "mentor", "password": "pw", "isAdmin": true})
	expectStatus(t, rec, http.StatusCreated)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/users", env.admin, map[string]any{"username": "mentor", "password": "pw"}), http.StatusConflict)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/users", env.admin, map[string]any{"username": "x"}), http.StatusBadRequest)

	rec = env.do(http.MethodGet, "/api/admin/users", env.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var users []model.User
	decode(t, rec, &users)
	if len(users) != 3 {
		t.Fatalf("users = %d, want 3", len(users))
	}

	ana, err := env.repo.GetUserByUsername(context.Background(), "ana")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	rec = env.do(http.MethodPost, "/api/admin/users/"+ana.ID+"/toggle-active", env.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, env.do(http.MethodGet, "/api/me", env.learner, nil), http.StatusUnauthorized)
	expectStatus(t, env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "ana", "password": "secret"}), http.StatusUnauthorized)
}
