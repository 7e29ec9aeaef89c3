package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gymjournal/internal/metrics"
	"github.com/hitoshi/gymjournal/internal/middleware"
	"github.com/hitoshi/gymjournal/internal/render"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// クライアント
	Clients Clients
	Title   string

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.Recorder

	// Cookie・リダイレクト
	Cookies CookieConfig

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Metrics → ClientID → Logging → RateLimit(General) → CSRF
//
// 意図エンドポイントにはさらにRateLimit(Intent)を適用する。
// /health と /metrics はクライアントIDを発行しないようチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewMetricsMiddleware(rec))

	journalHandler := NewJournalHandler(deps.Clients, deps.Cookies, deps.Title)
	authHandler := NewAuthHandler(deps.Clients, deps.Cookies)
	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookies.CookieSecure,
		CookieDomain: deps.Cookies.CookieDomain,
	}

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- クライアント向けのルート ---
	// ミドルウェアスタック: ClientID → Logging → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientIDMiddleware(middleware.ClientIDConfig{
			CookieSecure: deps.Cookies.CookieSecure,
			CookieDomain: deps.Cookies.CookieDomain,
		}))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Get("/", journalHandler.Page)
		r.Get("/auth/google/callback", authHandler.Callback)

		// HTMLフォームからの意図
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.IntentMiddleware())

			r.Post(render.PathSignIn, journalHandler.SignIn)
			r.Post(render.PathSignOut, journalHandler.SignOut)
			r.Post(render.PathSave, journalHandler.Save)
			r.Post("/intents/draft/{field}", journalHandler.Draft)
		})

		// JSON API
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
			r.Get("/state", journalHandler.State)
			r.With(deps.RateLimiter.IntentMiddleware()).Post("/intents", journalHandler.Intent)
		})
	})

	return r
}
