package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/onnwee/reel-relay/db"
)

// Handlers bundles the ops endpoints' shared dependencies.
type Handlers struct {
	db *sql.DB
}

// HandleHealthz responds to liveness probes by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes with detailed checks: the
// database must answer and the credential record must be fully captured
// before uploads can succeed.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"credentials", func() error {
			store := &db.CredentialStore{DB: h.db}
			cred, found, err := store.Get(r.Context())
			if err != nil {
				return err
			}
			if !found || cred.Username == "" || cred.Password == "" {
				return fmt.Errorf("instagram credentials not fully set")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports dispatcher bookkeeping from the kv table: when the
// last update arrived and how the last upload went.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lastUpdate, err := db.GetKV(ctx, h.db, "last_update_at")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	lastUploadAt, err := db.GetKV(ctx, h.db, "last_upload_at")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	lastUploadResult, err := db.GetKV(ctx, h.db, "last_upload_result")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"last_update_at":     lastUpdate,
		"last_upload_at":     lastUploadAt,
		"last_upload_result": lastUploadResult,
	})
}
