// Package testutil provides httptest doubles for the external services and a
// Postgres test database helper.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTelegramServer mocks the Telegram Bot API for a fixed test token.
type MockTelegramServer struct {
	*httptest.Server
	Token    string
	Handlers map[string]http.HandlerFunc
}

// NewMockTelegramServer creates a mock Bot API server routing on URL path.
func NewMockTelegramServer(t *testing.T, token string) *MockTelegramServer {
	t.Helper()
	m := &MockTelegramServer{
		Token:    token,
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Method registers a handler for a Bot API method (e.g. "sendMessage").
func (m *MockTelegramServer) Method(name string, handler http.HandlerFunc) {
	m.Handlers["/bot"+m.Token+"/"+name] = handler
}

// MockResult registers a method that replies ok=true with the given result.
func (m *MockTelegramServer) MockResult(name string, result any) {
	m.Method(name, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result}) //nolint:errcheck // test mock response
	})
}

// MockFile registers a file download path with fixed content.
func (m *MockTelegramServer) MockFile(filePath string, content []byte) {
	m.Handlers["/file/bot"+m.Token+"/"+filePath] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content) //nolint:errcheck // test mock response
	}
}

// MockInstagramServer mocks the Instagram private API login/upload endpoints.
type MockInstagramServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockInstagramServer creates a mock Instagram API server.
func NewMockInstagramServer(t *testing.T) *MockInstagramServer {
	t.Helper()
	m := &MockInstagramServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockLoginOK accepts any login and sets a session cookie.
func (m *MockInstagramServer) MockLoginOK(sessionID string) {
	m.Handlers["/api/v1/accounts/login/"] = func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: sessionID})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck // test mock response
	}
}

// MockLoginRejected rejects every login with the given message.
func (m *MockInstagramServer) MockLoginRejected(message string) {
	m.Handlers["/api/v1/accounts/login/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "fail", "message": message}) //nolint:errcheck // test mock response
	}
}

// MockClipUploadOK accepts every clip upload.
func (m *MockInstagramServer) MockClipUploadOK() {
	m.Handlers["/api/v1/clips/upload/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck // test mock response
	}
}
