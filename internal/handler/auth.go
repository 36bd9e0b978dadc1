package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/quizhall/internal/i18n"
	"github.com/pavelanni/quizhall/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
)

type authCtxKey struct{}

// authInfo describes how the current request was authenticated.
type authInfo struct {
	sessionID string
	viaCookie bool
}

func withAuthInfo(ctx context.Context, info authInfo) context.Context {
	return context.WithValue(ctx, authCtxKey{}, info)
}

func authInfoFrom(ctx context.Context) authInfo {
	info, _ := ctx.Value(authCtxKey{}).(authInfo)
	return info
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// bearerToken returns the token from the Authorization header, or from the
// session cookie when the header is absent.
func bearerToken(r *http.Request) (token string, viaCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok), false
		}
		return "", false
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value, true
	}
	return "", false
}

// requireAuth is middleware that checks for a valid token backed by a live
// login session.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, viaCookie := bearerToken(r)
		if token == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := h.tokens.Parse(token)
		if err != nil {
			slog.Debug("rejected token", "error", err)
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		authSess, err := h.repo.GetAuthSession(r.Context(), claims.SessionID())
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			writeErrorMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		if authSess == nil || authSess.UserID != claims.UserID() {
			writeErrorMessage(w, http.StatusUnauthorized, "session expired")
			return
		}

		user, err := h.repo.GetUserByID(r.Context(), authSess.UserID)
		if err != nil || user == nil || !user.Active {
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		ctx = withAuthInfo(ctx, authInfo{sessionID: authSess.ID, viaCookie: viaCookie})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// csrfMiddleware enforces the double-submit check for cookie-authenticated
// requests that change state. Bearer-token clients are not exposed to CSRF.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !authInfoFrom(r.Context()).viaCookie {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			slog.Warn("CSRF cookie missing")
			writeErrorMessage(w, http.StatusForbidden, "csrf token missing")
			return
		}
		headerToken := r.Header.Get(csrfHeaderName)
		if headerToken == "" {
			slog.Warn("CSRF header token missing")
			writeErrorMessage(w, http.StatusForbidden, "csrf token missing")
			return
		}
		if len(headerToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch")
			writeErrorMessage(w, http.StatusForbidden, "invalid csrf token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects authenticated users without the admin flag.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := model.UserFromContext(r.Context())
		if user == nil {
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdmin {
			writeErrorMessage(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	CSRFToken string      `json:"csrfToken"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.repo.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !isNotFound(err) {
		slog.Error("failed to get user", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !user.Active {
		h.loginError(w, r)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.loginError(w, r)
		return
	}
	h.startSession(w, r, user, http.StatusOK)
}

// handleRegister creates a learner account with an empty profile and signs
// it in.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.config.AllowSignup {
		writeErrorMessage(w, http.StatusForbidden, "sign-up is disabled")
		return
	}
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	user, status, msg := h.createUser(r.Context(), req, false)
	if user == nil {
		writeErrorMessage(w, status, msg)
		return
	}
	h.startSession(w, r, user, http.StatusCreated)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *model.User, status int) {
	sess, err := h.repo.CreateAuthSession(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	token, err := h.tokens.Issue(user, sess)
	if err != nil {
		slog.Error("failed to sign token", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	csrf, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    csrf,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("user signed in", "user", user.ID, "username", user.Username)
	writeJSON(w, status, loginResponse{
		Token:     token,
		CSRFToken: csrf,
		ExpiresAt: sess.ExpiresAt,
		User:      user,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := authInfoFrom(r.Context()).sessionID; id != "" {
		if err := h.repo.DeleteAuthSession(r.Context(), id); err != nil && !isNotFound(err) {
			slog.Error("failed to delete auth session", "error", err)
		}
	}
	for _, name := range []string{sessionCookieName, csrfCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == sessionCookieName,
			Secure:   h.config.SecureCookies,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loginError(w http.ResponseWriter, r *http.Request) {
	writeErrorMessage(w, http.StatusUnauthorized, appI18n.T(r.Context(), "LoginError"))
}
