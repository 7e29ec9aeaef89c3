// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gymjournal/internal/client"
	"github.com/hitoshi/gymjournal/internal/journal"
	"github.com/hitoshi/gymjournal/internal/middleware"
	"github.com/hitoshi/gymjournal/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
	oauthStateMaxAge  = 600 // 10分
)

// Clients はクライアントIDに対応するRuntimeを返す。
// client.Registryが実装する。
type Clients interface {
	GetOrCreate(id string) *client.Runtime
}

// CookieConfig はセッション関連Cookieとリダイレクト先の設定。
type CookieConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// redirectTarget はフォーム送信後の戻り先を返す。
func (c CookieConfig) redirectTarget() string {
	if c.BaseURL == "" {
		return "/"
	}
	return c.BaseURL
}

func (c CookieConfig) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   c.SessionMaxAge,
		HttpOnly: true,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setOAuthState はstateをCookieに保存する（CSRF対策）。
func (c CookieConfig) setOAuthState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clearOAuthState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// runtimeResolver はリクエストのクライアントIDからRuntimeを取り出す。
type runtimeResolver struct {
	clients Clients
	config  CookieConfig
}

// resolve はクライアントのRuntimeを返す。
// 未ログインのRuntimeにセッションCookieが残っていれば、セッションの復元を試みる。
// 復元できなかった場合と、認証エラーでサインアウトした場合はCookieを削除する。
func (rr runtimeResolver) resolve(w http.ResponseWriter, r *http.Request) (*client.Runtime, bool) {
	clientID, err := middleware.ClientIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewClientNotFoundError())
		return nil, false
	}

	rt := rr.clients.GetOrCreate(clientID)
	st := rt.State()
	if st.Auth.Status() != journal.SignedOut {
		return rt, true
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return rt, true
	}

	// 認証エラーで破棄されたセッションは復元しない
	if !st.Err.IsZero() && st.Err.Channel == journal.ChannelAuth {
		rr.config.clearSession(w)
		return rt, true
	}

	st, err = rt.Restore(r.Context(), cookie.Value)
	if err != nil {
		// 終了済みのRuntimeは後続の操作でエラーになる
		return rt, true
	}
	if st.Auth.Status() != journal.SignedIn {
		rr.config.clearSession(w)
	}
	return rt, true
}

// writeDispatchError はRuntimeの操作エラーをレスポンスに変換する。
func writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, client.ErrClosed):
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewRuntimeClosedError())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// クライアントが切断済み
		slog.Warn("request canceled",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	default:
		slog.Error("failed to dispatch intent",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
