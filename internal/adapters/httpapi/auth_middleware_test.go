package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ironledger/memberd/internal/platform/auth/jwtverifier"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret, issuer, sub string, ttl time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func newAuthProbe(t *testing.T) http.Handler {
	t.Helper()
	mw := NewAuthMiddleware(jwtverifier.New(testSecret, "memberd"))
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, ok := SubjectFromContext(r.Context())
		if !ok || sub == "" {
			http.Error(w, "missing subject", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sub))
	}))
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	t.Parallel()
	h := newAuthProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/members", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, "memberd", "user|42", time.Minute))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "user|42" {
		t.Fatalf("subject=%q", rec.Body.String())
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	t.Parallel()
	h := newAuthProbe(t)

	cases := []struct {
		name  string
		authz string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer   "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + mintToken(t, "other-secret", "memberd", "user|42", time.Minute)},
		{"wrong issuer", "Bearer " + mintToken(t, testSecret, "someone-else", "user|42", time.Minute)},
		{"expired", "Bearer " + mintToken(t, testSecret, "memberd", "user|42", -time.Minute)},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/members", nil)
		if tc.authz != "" {
			req.Header.Set("Authorization", tc.authz)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status=%d, want 401", tc.name, rec.Code)
		}
	}
}

func TestAuthMiddleware_SkipsInfraPaths(t *testing.T) {
	t.Parallel()

	mw := NewAuthMiddleware(jwtverifier.New(testSecret, "memberd"))
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz should bypass auth, status=%d", rec.Code)
	}
}

func TestDevAuthMiddleware_SubjectHeader(t *testing.T) {
	t.Parallel()

	mw := NewDevAuthMiddleware("dev|fallback")
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := SubjectFromContext(r.Context())
		_, _ = w.Write([]byte(sub))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/members", nil)
	req.Header.Set("X-Debug-Subject", "dev|alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "dev|alice" {
		t.Fatalf("subject=%q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/members", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "dev|fallback" {
		t.Fatalf("fallback subject=%q", rec.Body.String())
	}
}
