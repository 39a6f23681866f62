package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

type limitedCall struct {
	route  string
	method string
	path   string
	apiKey string
	want   int
}

func runCalls(t *testing.T, limiter *RateLimiter, calls []limitedCall) {
	t.Helper()
	handlers := map[string]http.Handler{}
	for i, c := range calls {
		h, ok := handlers[c.route]
		if !ok {
			h = limiter.Middleware(c.route)(okHandler())
			handlers[c.route] = h
		}
		req := httptest.NewRequest(c.method, c.path, nil)
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("call %d %s %s: expected %d, got %d", i, c.method, c.path, c.want, rec.Code)
		}
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Fatalf("call %d: missing Retry-After", i)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	single := RateLimit{RatePerSecond: 0.5, Burst: 1}
	cases := []struct {
		name   string
		limits map[string]RateLimit
		calls  []limitedCall
	}{
		{
			name:   "burst exhausted",
			limits: map[string]RateLimit{"lending": single},
			calls: []limitedCall{
				{"lending", http.MethodPost, "/v1/transfers", "", http.StatusOK},
				{"lending", http.MethodPost, "/v1/transfers", "", http.StatusTooManyRequests},
			},
		},
		{
			name:   "routes keep separate buckets",
			limits: map[string]RateLimit{"lending": single, "admin": single},
			calls: []limitedCall{
				{"lending", http.MethodPost, "/v1/transfers", "ops", http.StatusOK},
				{"admin", http.MethodPost, "/v1/admin/rates", "ops", http.StatusOK},
				{"admin", http.MethodPost, "/v1/admin/rates", "ops", http.StatusTooManyRequests},
			},
		},
		{
			name:   "api keys keep separate buckets",
			limits: map[string]RateLimit{"lending": single},
			calls: []limitedCall{
				{"lending", http.MethodPost, "/v1/actions/borrow", "alice", http.StatusOK},
				{"lending", http.MethodPost, "/v1/actions/borrow", "bob", http.StatusOK},
				{"lending", http.MethodPost, "/v1/actions/borrow", "alice", http.StatusTooManyRequests},
			},
		},
		{
			name: "priced routes drain faster",
			limits: map[string]RateLimit{"lending": {
				RatePerSecond: 0.5, Burst: 4, DefaultTokens: 1,
				Tokens: map[string]int{"POST /v1/actions/redeemall": 3},
			}},
			calls: []limitedCall{
				{"lending", http.MethodPost, "/v1/actions/redeemall", "", http.StatusOK},
				{"lending", http.MethodPost, "/v1/actions/redeemall", "", http.StatusTooManyRequests},
				{"lending", http.MethodPost, "/v1/transfers", "", http.StatusOK},
			},
		},
		{
			name:   "unconfigured route passes",
			limits: map[string]RateLimit{},
			calls: []limitedCall{
				{"query", http.MethodGet, "/v1/pools", "", http.StatusOK},
				{"query", http.MethodGet, "/v1/pools", "", http.StatusOK},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runCalls(t, NewRateLimiter(tc.limits, nil), tc.calls)
		})
	}
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"query": {RatePerSecond: 1, Burst: 1}}, nil)
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return now }

	runCalls(t, limiter, []limitedCall{{"query", http.MethodGet, "/v1/orders", "alice", http.StatusOK}})
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one client, got %d", len(limiter.visitors))
	}
	now = now.Add(limiter.idle * 2)
	runCalls(t, limiter, []limitedCall{{"query", http.MethodGet, "/v1/orders", "bob", http.StatusOK}})
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected idle client swept, got %d", len(limiter.visitors))
	}
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	if got := clientID(req); got != "10.0.0.7" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1")
	if got := clientID(req); got != "192.0.2.1" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
	req.Header.Set("X-API-Key", "k1")
	if got := clientID(req); got != "key:k1" {
		t.Fatalf("expected api key identity, got %q", got)
	}
}
