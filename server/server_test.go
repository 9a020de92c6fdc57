package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/reel-relay/db"
	"github.com/onnwee/reel-relay/telemetry"
	"github.com/onnwee/reel-relay/testutil"
)

func TestHealthzAndCorrelationHeader(t *testing.T) {
	telemetry.Init()
	database := testutil.SetupTestDB(t)
	mux := NewMux(database)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}

	// A provided correlation id is echoed back.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-1" {
		t.Errorf("X-Correlation-ID = %q, want corr-1", got)
	}
}

func TestReadyzRequiresCredentials(t *testing.T) {
	telemetry.Init()
	database := testutil.SetupTestDB(t)
	if _, err := database.Exec(`DELETE FROM ig_credentials`); err != nil {
		t.Fatalf("clean: %v", err)
	}
	mux := NewMux(database)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without credentials = %d, want 503", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["failed_check"] != "credentials" {
		t.Errorf("failed_check = %q, want credentials", body["failed_check"])
	}

	store := &db.CredentialStore{DB: database}
	ctx := context.Background()
	if err := store.SetUsername(ctx, "alice"); err != nil {
		t.Fatalf("SetUsername: %v", err)
	}
	if err := store.SetPassword(ctx, "pw"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz with credentials = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestStatusReportsBookkeeping(t *testing.T) {
	telemetry.Init()
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	if err := db.SetKV(ctx, database, "last_update_at", "2026-01-02T03:04:05Z"); err != nil {
		t.Fatalf("SetKV: %v", err)
	}
	if err := db.SetKV(ctx, database, "last_upload_result", "ok"); err != nil {
		t.Fatalf("SetKV: %v", err)
	}
	mux := NewMux(database)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["last_update_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("last_update_at = %q", body["last_update_at"])
	}
	if body["last_upload_result"] != "ok" {
		t.Errorf("last_upload_result = %q", body["last_upload_result"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	telemetry.Init()
	database := testutil.SetupTestDB(t)
	mux := NewMux(database)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d, want 200", rec.Code)
	}
}
