package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "lending-secret"

func newTestAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:       true,
		HMACSecret:    testSecret,
		Issuer:        "lendcore",
		Audience:      "lendingd",
		OptionalPaths: []string{"/v1/pools"},
	}, nil)
}

func serveWithToken(t *testing.T, auth *Authenticator, path, token string, scopes ...string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var subject string
	handler := auth.Middleware(scopes...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res, subject
}

func TestAuthenticatorAcceptsScopedToken(t *testing.T) {
	auth := newTestAuth()
	token, err := MintToken(testSecret, "lendcore", "lendingd", "alice", []string{ScopeUser}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	res, subject := serveWithToken(t, auth, "/v1/transfers", token, ScopeUser)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if subject != "alice" {
		t.Fatalf("expected subject alice, got %q", subject)
	}
}

func TestAuthenticatorRejectsMissingScope(t *testing.T) {
	auth := newTestAuth()
	token, err := MintToken(testSecret, "lendcore", "lendingd", "alice", []string{ScopeUser}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	res, _ := serveWithToken(t, auth, "/v1/admin/pools", token, ScopeAdmin)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestAuthenticatorAdminSatisfiesAnyScope(t *testing.T) {
	auth := newTestAuth()
	token, err := MintToken(testSecret, "lendcore", "lendingd", "ops", []string{ScopeAdmin}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	res, _ := serveWithToken(t, auth, "/v1/maintenance/refresh", token, ScopeOperator)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := newTestAuth()
	now := time.Now()
	expired, _ := MintToken(testSecret, "lendcore", "lendingd", "alice", []string{ScopeUser}, time.Minute, now.Add(-time.Hour))
	wrongSecret, _ := MintToken("other", "lendcore", "lendingd", "alice", []string{ScopeUser}, time.Hour, now)
	wrongAudience, _ := MintToken(testSecret, "lendcore", "explorer", "alice", []string{ScopeUser}, time.Hour, now)
	noAudience, _ := MintToken(testSecret, "lendcore", "", "alice", []string{ScopeUser}, time.Hour, now)

	cases := map[string]string{
		"missing":        "",
		"expired":        expired,
		"wrong secret":   wrongSecret,
		"wrong audience": wrongAudience,
		"no audience":    noAudience,
		"garbage":        "not-a-token",
	}
	for name, token := range cases {
		res, _ := serveWithToken(t, auth, "/v1/transfers", token, ScopeUser)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, res.Code)
		}
	}
}

func TestAuthenticatorOptionalPaths(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		OptionalPaths:  []string{"/v1/pools"},
		AllowAnonymous: true,
	}, nil)
	res, _ := serveWithToken(t, auth, "/v1/pools/EOS", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected anonymous access, got %d", res.Code)
	}
	res, _ = serveWithToken(t, auth, "/v1/transfers", "", ScopeUser)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 outside optional paths, got %d", res.Code)
	}
}

func TestMintTokenValidation(t *testing.T) {
	if _, err := MintToken("", "", "", "alice", nil, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := MintToken(testSecret, "", "", "alice", nil, 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
