package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gymjournal/internal/metrics"
)

// statusMetrics はRecordHTTPStatusの値だけを記録する。
type statusMetrics struct {
	metrics.Nop

	mu       sync.Mutex
	statuses []int
}

func (m *statusMetrics) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	rec := &statusMetrics{}
	handler := NewMetricsMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if len(rec.statuses) != 2 || rec.statuses[0] != http.StatusOK || rec.statuses[1] != http.StatusNotFound {
		t.Errorf("statuses = %v, want [200 404]", rec.statuses)
	}
}

// TestMiddlewareChain_ClientIDThenCSRF は
// ClientID -> CSRF のチェーンで、GETで得たトークンをフォームで送ると通ることを検証する。
func TestMiddlewareChain_ClientIDThenCSRF(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewClientIDMiddleware(ClientIDConfig{}))
	r.Use(NewCSRFMiddleware(CSRFConfig{}))

	var gotToken, gotClient string
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		gotToken = CSRFTokenFromContext(r.Context())
		gotClient, _ = ClientIDFromContext(r.Context())
	})
	r.Post("/intents/save", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if gotToken == "" || gotClient == "" {
		t.Fatalf("token = %q, client = %q; both should be set", gotToken, gotClient)
	}
	cookies := w.Result().Cookies()

	req := httptest.NewRequest(http.MethodPost, "/intents/save", nil)
	req.Header.Set("X-CSRF-Token", gotToken)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusSeeOther)
	}

	// 最後のリクエストログにclient_idが含まれる
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["client_id"] != gotClient {
		t.Errorf("client_id = %v, want %q", entry["client_id"], gotClient)
	}
}

func TestRecoveryMiddleware_PanicReturns500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy should be set")
	}
}
