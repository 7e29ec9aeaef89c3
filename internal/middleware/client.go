// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// clientCookieName はブラウザごとのクライアントIDを保持するCookieの名前。
const clientCookieName = "client_id"

// clientCookieMaxAge はクライアントIDCookieの有効期間（秒）。30日。
const clientCookieMaxAge = 30 * 24 * 60 * 60

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// clientIDContextKey はリクエストコンテキストにクライアントIDを格納するためのキー。
	clientIDContextKey = contextKey("client_id")
	// csrfTokenContextKey はリクエストコンテキストにCSRFトークンを格納するためのキー。
	csrfTokenContextKey = contextKey("csrf_token")
)

// ClientIDConfig はクライアントIDミドルウェアの設定。
type ClientIDConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewClientIDMiddleware はCookieからクライアントIDを読み取り、リクエストコンテキストに注入する。
// Cookieが無い場合や値がUUIDでない場合は新しいIDを発行してCookieに設定する。
func NewClientIDMiddleware(config ClientIDConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if cookie, err := r.Cookie(clientCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					clientID = id.String()
				}
			}

			if clientID == "" {
				clientID = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     clientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   clientCookieMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), clientIDContextKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIDFromContext はリクエストコンテキストからクライアントIDを取得する。
// クライアントIDミドルウェアを通過したリクエストでのみ有効。
func ClientIDFromContext(ctx context.Context) (string, error) {
	clientID, ok := ctx.Value(clientIDContextKey).(string)
	if !ok || clientID == "" {
		return "", fmt.Errorf("client ID not found in context")
	}
	return clientID, nil
}

// ContextWithClientID はコンテキストにクライアントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey, clientID)
}
