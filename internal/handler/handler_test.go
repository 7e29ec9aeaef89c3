package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/gymjournal/internal/client"
	"github.com/hitoshi/gymjournal/internal/codec"
	"github.com/hitoshi/gymjournal/internal/journal"
	"github.com/hitoshi/gymjournal/internal/middleware"
)

// --- モック定義 ---

// mockBridge はclient.Bridgeのモック実装。
type mockBridge struct {
	beginSignInFn    func(ctx context.Context) (string, string, error)
	completeSignInFn func(ctx context.Context, code string) (json.RawMessage, error)
	restoreFn        func(ctx context.Context, token string) (json.RawMessage, error)
	endSignInFn      func(ctx context.Context, token string) error
	saveEntryFn      func(ctx context.Context, payload []byte) error

	mu    sync.Mutex
	sinks map[string]func(json.RawMessage)
}

func (m *mockBridge) BeginSignIn(ctx context.Context) (string, string, error) {
	if m.beginSignInFn != nil {
		return m.beginSignInFn(ctx)
	}
	return "https://idp.example.com/auth?state=st-1", "st-1", nil
}

func (m *mockBridge) CompleteSignIn(ctx context.Context, code string) (json.RawMessage, error) {
	if m.completeSignInFn != nil {
		return m.completeSignInFn(ctx, code)
	}
	return sessionPayload("tok-1", "lifter@example.com", "u1"), nil
}

func (m *mockBridge) Restore(ctx context.Context, token string) (json.RawMessage, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, token)
	}
	return nil, nil
}

func (m *mockBridge) EndSignIn(ctx context.Context, token string) error {
	if m.endSignInFn != nil {
		return m.endSignInFn(ctx, token)
	}
	return nil
}

func (m *mockBridge) SaveEntry(ctx context.Context, payload []byte) error {
	if m.saveEntryFn != nil {
		return m.saveEntryFn(ctx, payload)
	}
	return nil
}

func (m *mockBridge) Watch(ctx context.Context, uid string, sink func(json.RawMessage)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sinks == nil {
		m.sinks = make(map[string]func(json.RawMessage))
	}
	m.sinks[uid] = sink
	return func() {}, nil
}

// push はuidの購読にスナップショットを流す。
func (m *mockBridge) push(t *testing.T, uid string, entries ...journal.JournalEntry) {
	t.Helper()
	m.mu.Lock()
	sink := m.sinks[uid]
	m.mu.Unlock()
	if sink == nil {
		t.Fatalf("no subscription for %q", uid)
	}
	payload, err := codec.EncodeSnapshot(entries)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	sink(payload)
}

func sessionPayload(token, email, uid string) json.RawMessage {
	b, err := codec.EncodeSession(token, email, uid)
	if err != nil {
		panic(err)
	}
	return b
}

// --- テストサーバー ---

type testEnv struct {
	router   http.Handler
	registry *client.Registry
	bridge   *mockBridge
}

func newTestEnv(t *testing.T, b *mockBridge) *testEnv {
	t.Helper()
	return newTestEnvWithLimits(t, b, middleware.DefaultRateLimiterConfig())
}

func newTestEnvWithLimits(t *testing.T, b *mockBridge, limits middleware.RateLimiterConfig) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg := client.NewRegistry(client.DefaultRegistryConfig(), client.Options{Bridge: b, Logger: logger})
	rl := middleware.NewRateLimiter(limits)
	t.Cleanup(func() {
		reg.Close()
		rl.Stop()
	})

	router := NewRouter(&RouterDeps{
		Clients:     reg,
		RateLimiter: rl,
		Logger:      logger,
		Cookies: CookieConfig{
			BaseURL:       "/",
			SessionMaxAge: 3600,
		},
	})
	return &testEnv{router: router, registry: reg, bridge: b}
}

// browser はCookieを保持してルーターにリクエストを送る。
type browser struct {
	t       *testing.T
	env     *testEnv
	cookies map[string]*http.Cookie
}

// newBrowser はトップページを開いてクライアントIDとCSRFトークンを取得したブラウザを返す。
func (e *testEnv) newBrowser(t *testing.T) *browser {
	t.Helper()
	b := &browser{t: t, env: e, cookies: make(map[string]*http.Cookie)}
	resp := b.get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", resp.StatusCode)
	}
	return b
}

func (b *browser) do(req *http.Request) *http.Response {
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	w := httptest.NewRecorder()
	b.env.router.ServeHTTP(w, req)

	resp := w.Result()
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return resp
}

func (b *browser) get(path string) *http.Response {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// postForm はCSRFトークンをフォームに埋め込んで送信する。
func (b *browser) postForm(path string, form url.Values) *http.Response {
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFormField, b.cookieValue("csrf_token"))
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// postJSON はCSRFトークンをヘッダーで送信する。
func (b *browser) postJSON(path, body string) *http.Response {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", b.cookieValue("csrf_token"))
	return b.do(req)
}

func (b *browser) cookieValue(name string) string {
	if c, ok := b.cookies[name]; ok {
		return c.Value
	}
	return ""
}

// runtime はこのブラウザのRuntimeを返す。
func (b *browser) runtime() *client.Runtime {
	b.t.Helper()
	rt, ok := b.env.registry.Get(b.cookieValue("client_id"))
	if !ok {
		b.t.Fatal("runtime should exist for the browser")
	}
	return rt
}

// signIn はサインインからコールバックまでを通す。
func (b *browser) signIn() {
	b.t.Helper()
	resp := b.postForm("/intents/sign-in", nil)
	if resp.StatusCode != http.StatusSeeOther {
		b.t.Fatalf("sign-in status = %d, want 303", resp.StatusCode)
	}
	state := b.cookieValue("oauth_state")
	resp = b.get("/auth/google/callback?code=auth-code&state=" + url.QueryEscape(state))
	if resp.StatusCode != http.StatusSeeOther {
		b.t.Fatalf("callback status = %d, want 303", resp.StatusCode)
	}
	if b.runtime().State().Auth.Status() != journal.SignedIn {
		b.t.Fatal("browser should be signed in")
	}
}

// waitFor は条件を満たすまで状態をポーリングする。
func waitFor(t *testing.T, rt *client.Runtime, cond func(journal.State) bool) journal.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := rt.State()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met; state = %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("response should be JSON: %v", err)
	}
}
