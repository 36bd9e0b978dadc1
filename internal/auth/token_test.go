package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/quizhall/internal/model"
)

func testSession(ttl time.Duration) *model.AuthSession {
	now := time.Now()
	return &model.AuthSession{ID: "sess-1", UserID: "u-1", CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

func TestIssueAndParse(t *testing.T) {
	a := NewIssuer("secret")
	u := &model.User{ID: "u-1", IsAdmin: true}

	tok, err := a.Issue(u, testSession(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.SessionID() != "sess-1" || c.UserID() != "u-1" || !c.Admin {
		t.Errorf("unexpected claims %+v", c)
	}
}

func TestParseRejects(t *testing.T) {
	a := NewIssuer("secret")
	u := &model.User{ID: "u-1"}

	expired, _ := a.Issue(u, testSession(-time.Minute))
	otherKey, _ := NewIssuer("other").Issue(u, testSession(time.Hour))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID: "s", Subject: "u", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID: "s", Subject: "u", Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	wrongIssuer, _ := foreign.SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"empty", ""},
		{"expired", expired},
		{"wrong key", otherKey},
		{"alg none", unsigned},
		{"wrong issuer", wrongIssuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
