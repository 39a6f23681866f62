package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendcore/core/state"
	"lendcore/gateway/middleware"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/services/lendingd/idempotency"
	"lendcore/services/lendingd/outbox"
	"lendcore/services/lendingd/pricefeed"
	"lendcore/services/lendingd/service"
	"lendcore/services/lendingd/testutil"
	"lendcore/storage"
)

const testSecret = "server-secret"

type harness struct {
	srv    *httptest.Server
	engine *lending.Engine
	outbox *outbox.Store
	pauses *service.Pauses
}

type harnessOptions struct {
	auth  bool
	idem  bool
	quota nativecommon.Quota
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	clock := testutil.NewClock()
	feed := pricefeed.New(testutil.Prices(), nil, 0, nil)
	pauses := service.NewPauses(nil)
	engine := lending.NewEngine(lending.DefaultParams())
	engine.SetClock(clock.Now)
	engine.SetOracle(feed)
	engine.SetPauses(pauses)
	engine.SetAccounts(service.NewDirectory(nil, nil))
	engine.SetVotes(service.StaticVotes{})

	box, err := outbox.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = box.Close() })

	manager := state.NewManager(storage.NewMemDB())
	svc, err := service.New(service.Config{
		Engine: engine,
		State:  manager,
		Outbox: box,
		Prices: feed,
		Oracle: feed,
		Quota:  opts.quota,
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx, testutil.PoolSpecs(), testutil.OpenFeatures("eos", "usdt")))
	_, err = svc.RefreshPrices(ctx)
	require.NoError(t, err)

	cfg := Config{
		Service:     svc,
		Feed:        feed,
		Outbox:      box,
		State:       manager,
		Pauses:      pauses,
		AuthEnabled: opts.auth,
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    opts.auth,
			HMACSecret: testSecret,
			Issuer:     "lendcore",
			Audience:   "lendingd",
		}, nil),
	}
	if opts.idem {
		store, err := idempotency.Open(filepath.Join(t.TempDir(), "idem.db"), time.Hour, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		cfg.Idempotency = store
	}
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, engine: engine, outbox: box, pauses: pauses}
}

func token(t *testing.T, subject string, scopes ...string) string {
	t.Helper()
	tok, err := middleware.MintToken(testSecret, "lendcore", "lendingd", subject, scopes, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func deposit(from, amount string) transferRequest {
	return transferRequest{From: from, Contract: testutil.EOS.Contract, Quantity: amount, Memo: lending.MemoDeposit}
}

func TestTransferDeposit(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp := h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "100.0000 EOS"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[outcomeResponse](t, resp)
	require.NotEmpty(t, out.Effects)
	require.NotNil(t, out.Snapshot)
	require.NotNil(t, out.BatchID)

	pool, err := h.engine.Pool("eos")
	require.NoError(t, err)
	assert.EqualValues(t, 100_0000, pool.AvailableDeposit.Amount)

	resp = h.do(t, http.MethodGet, "/v1/pools/eos", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[lending.Pool](t, resp)
	assert.Equal(t, "eos", got.Name)
}

func TestAccountNamesAreFolded(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp := h.do(t, http.MethodPost, "/v1/transfers", deposit("  Alice ", "5.0000 EOS"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[outcomeResponse](t, resp)
	for _, e := range out.Effects {
		if e.Account != "" {
			assert.Equal(t, "alice", e.Account)
		}
	}
}

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"zero amount", http.MethodPost, "/v1/transfers", deposit("alice", "0.0000 EOS"), http.StatusBadRequest},
		{"bad quantity", http.MethodPost, "/v1/transfers", deposit("alice", "lots"), http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/transfers", map[string]string{"sender": "alice"}, http.StatusBadRequest},
		{"unknown pool", http.MethodGet, "/v1/pools/nope", nil, http.StatusNotFound},
		{"unknown order", http.MethodGet, "/v1/orders/42", nil, http.StatusNotFound},
		{"bad order id", http.MethodGet, "/v1/orders/x", nil, http.StatusBadRequest},
		{"no health", http.MethodGet, "/v1/health/alice", nil, http.StatusNotFound},
		{"duplicate pool", http.MethodPost, "/v1/admin/pools", addPoolRequest{
			Name: "eos", Anchor: testutil.EOS.String(), Share: testutil.PZEOS.String(), Config: testutil.PoolConfig(),
		}, http.StatusConflict},
		{"bad borrow type", http.MethodPost, "/v1/actions/borrow", actionRequest{
			Account: "alice", Contract: testutil.EOS.Contract, Quantity: "1.0000 EOS", Type: "fixed",
		}, http.StatusBadRequest},
		{"withdraw without shares", http.MethodPost, "/v1/actions/withdraw", actionRequest{
			Account: "alice", Contract: testutil.EOS.Contract, Quantity: "1.0000 EOS",
		}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.do(t, tc.method, tc.path, tc.body, nil)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestPauseBlocksOperations(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp := h.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Paused: true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, h.pauses.IsPaused(moduleName))

	resp = h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "1.0000 EOS"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.Equal(t, true, health["paused"])

	h.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Paused: false}, nil)
	resp = h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "1.0000 EOS"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthScopesAndOwnership(t *testing.T) {
	h := newHarness(t, harnessOptions{auth: true})
	bearer := func(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

	resp := h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "1.0000 EOS"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bob := token(t, "bob", middleware.ScopeUser)
	resp = h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "1.0000 EOS"), bearer(bob))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/transfers", deposit("bob", "1.0000 EOS"), bearer(bob))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/admin/claimearn", nil, bearer(bob))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := token(t, "ops", middleware.ScopeAdmin)
	resp = h.do(t, http.MethodPost, "/v1/transfers", deposit("carol", "1.0000 EOS"), bearer(admin))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/v1/maintenance/cachehealth", nil, bearer(admin))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Queries stay public.
	resp = h.do(t, http.MethodGet, "/v1/pools", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIdempotentReplay(t *testing.T) {
	h := newHarness(t, harnessOptions{idem: true})
	headers := map[string]string{idempotency.HeaderKey: "dep-1"}

	first := h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "10.0000 EOS"), headers)
	require.Equal(t, http.StatusOK, first.StatusCode)
	firstOut := decode[outcomeResponse](t, first)

	second := h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "10.0000 EOS"), headers)
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	secondOut := decode[outcomeResponse](t, second)
	assert.Equal(t, firstOut.BatchID, secondOut.BatchID)

	pool, err := h.engine.Pool("eos")
	require.NoError(t, err)
	assert.EqualValues(t, 10_0000, pool.AvailableDeposit.Amount)

	mismatch := h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "11.0000 EOS"), headers)
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.StatusCode)
}

func TestQuotaThrottles(t *testing.T) {
	h := newHarness(t, harnessOptions{quota: nativecommon.Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 3600}})

	resp := h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "1.0000 EOS"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "1.0000 EOS"), nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/v1/accounts/alice", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	account := decode[map[string]json.RawMessage](t, resp)
	assert.Contains(t, account, "position")
	assert.Contains(t, account, "quota")
}

func TestOutboxListAndAck(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp := h.do(t, http.MethodPost, "/v1/transfers", deposit("alice", "5.0000 EOS"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[outcomeResponse](t, resp)
	require.NotNil(t, out.BatchID)

	resp = h.do(t, http.MethodGet, "/v1/outbox?limit=500", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decode[[]struct {
		ID        uuid.UUID        `json:"id"`
		Operation string           `json:"operation"`
		Effects   []lending.Effect `json:"effects"`
	}](t, resp)
	require.NotEmpty(t, items)
	last := items[len(items)-1]
	assert.Equal(t, *out.BatchID, last.ID)
	assert.Equal(t, "transfer", last.Operation)
	assert.Equal(t, out.Effects, last.Effects)

	resp = h.do(t, http.MethodPost, "/v1/outbox/"+out.BatchID.String()+"/ack", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending, err := h.outbox.Pending(context.Background(), 500)
	require.NoError(t, err)
	for _, b := range pending {
		assert.NotEqual(t, *out.BatchID, b.ID)
	}

	resp = h.do(t, http.MethodPost, "/v1/outbox/"+uuid.NewString()+"/ack", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMaintenanceAndPrices(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp := h.do(t, http.MethodPost, "/v1/admin/prices", priceRequest{Token: testutil.EOS.String(), Price: decimal.NewFromInt(2)}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/v1/prices", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	quotes := decode[[]pricefeed.Quote](t, resp)
	assert.Len(t, quotes, 2)

	resp = h.do(t, http.MethodPost, "/v1/maintenance/health", healthRequest{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[outcomeResponse](t, resp)
	require.NotNil(t, out.Summary)

	resp = h.do(t, http.MethodGet, "/v1/snapshot", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[map[string]json.RawMessage](t, resp)
	assert.Contains(t, snap, "store")
	assert.Contains(t, snap, "persisted")
}
