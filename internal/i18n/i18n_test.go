package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Quiz Hall" {
		t.Errorf("T(AppTitle) = %q, want 'Quiz Hall'", got)
	}
	if got := Verdict(ctx, false); got != "Incorrect" {
		t.Errorf("Verdict(false) = %q", got)
	}
	if got := Bool(ctx, true); got != "True" {
		t.Errorf("Bool(true) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "AppTitle"); got != "Зал тестов" {
		t.Errorf("T(AppTitle) = %q, want 'Зал тестов'", got)
	}
	if got := BadgeLabel(ctx, "high_score"); got != "Высокий балл" {
		t.Errorf("BadgeLabel(high_score) = %q", got)
	}
}

func TestBadgeLabels(t *testing.T) {
	ctx := initLang(t, "en")

	got := BadgeLabels(ctx, []string{"first_attempt", "high_score", "custom"})
	want := []string{"First Attempt", "High Score", "custom"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BadgeLabels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsCount", 1); got != "1 question" {
		t.Errorf("Tp(QuestionsCount, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsCount", 5); got != "5 questions" {
		t.Errorf("Tp(QuestionsCount, 5) = %q", got)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "QuestionsCount", 3); got != "3 вопроса" {
		t.Errorf("Tp(ru, 3) = %q", got)
	}
	if got := Tp(ru, "QuestionsCount", 5); got != "5 вопросов" {
		t.Errorf("Tp(ru, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Td(ctx, "ScoreN", map[string]any{"Score": 75}); got != "Score: 75%" {
		t.Errorf("Td(ScoreN) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "de")
	if got := T(ctx, "Correct"); got != "Correct" {
		t.Errorf("T(Correct) = %q, want default language", got)
	}
}

func TestMiddlewareUsesAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Correct")
	}))

	tests := []struct {
		name, url, header, want string
	}{
		{"header", "/", "ru-RU,ru;q=0.9,en;q=0.8", "Верно"},
		{"query wins", "/?lang=en", "ru", "Correct"},
		{"none", "/", "", "Correct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("T(Correct) = %q, want %q", got, tt.want)
			}
		})
	}
}
