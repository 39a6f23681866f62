package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lendcore/core/state"
	"lendcore/gateway/middleware"
	"lendcore/native/lending"
	"lendcore/services/lendingd/testutil"
	"lendcore/storage"
)

func seedState(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.NewLevelDB(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	engine := lending.NewEngine(lending.DefaultParams())
	clock := testutil.NewClock()
	engine.SetClock(clock.Now)
	for _, spec := range testutil.PoolSpecs() {
		if _, err := engine.AddPool(spec); err != nil {
			t.Fatalf("add pool: %v", err)
		}
	}
	manager := state.NewManager(db)
	if _, err := manager.PutLendingSnapshot(engine.Snapshot(), clock.Now()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	return dir
}

func TestSnapshotCommand(t *testing.T) {
	dir := seedState(t)
	var out bytes.Buffer
	if err := runSnapshot([]string{"-data", dir}, &out); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var decoded struct {
		Info  state.SnapshotInfo `json:"info"`
		Store json.RawMessage    `json:"store"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Info.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", decoded.Info.Sequence)
	}
	if len(decoded.Store) == 0 {
		t.Fatalf("expected store body")
	}

	if err := runSnapshot([]string{"-data", dir, "-seq", "9"}, &out); err == nil {
		t.Fatalf("expected error for missing sequence")
	}
}

func TestReportCommand(t *testing.T) {
	dir := seedState(t)
	outDir := filepath.Join(t.TempDir(), "reports")
	var out bytes.Buffer
	if err := runReport([]string{"-data", dir, "-out", outDir}, &out); err != nil {
		t.Fatalf("report: %v", err)
	}
	lines := strings.Fields(out.String())
	if len(lines) != 6 {
		t.Fatalf("expected 6 files, got %v", lines)
	}
	for _, f := range lines {
		if !strings.HasPrefix(f, outDir) {
			t.Fatalf("file %s outside %s", f, outDir)
		}
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv(defaultSecretEnv, "lendctl-secret")
	var out bytes.Buffer
	if err := runToken([]string{"-subject", "alice", "-scope", "lending:user, lending:operator"}, &out); err != nil {
		t.Fatalf("token: %v", err)
	}
	token := strings.TrimSpace(out.String())

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    true,
		HMACSecret: "lendctl-secret",
		Issuer:     "lendcore",
		Audience:   "lendingd",
	}, nil)
	var subject string
	handler := auth.Middleware(middleware.ScopeOperator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = middleware.SubjectFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if subject != "alice" {
		t.Fatalf("expected subject alice, got %q", subject)
	}

	if err := runToken([]string{"-ttl", time.Minute.String()}, &out); err == nil {
		t.Fatalf("expected error without subject")
	}
}
