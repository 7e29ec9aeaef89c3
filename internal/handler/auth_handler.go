package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/gymjournal/internal/client"
	"github.com/hitoshi/gymjournal/internal/codec"
	"github.com/hitoshi/gymjournal/internal/journal"
	"github.com/hitoshi/gymjournal/internal/middleware"
	"github.com/hitoshi/gymjournal/internal/model"
)

// コールバックで検出した失敗のコード
const (
	codeInvalidState = "auth/invalid-state"
	codeMissingCode  = "auth/missing-code"
)

// AuthHandler はOAuthコールバックのHTTPハンドラー。
// サインインの開始はJournalHandler.SignInが行う。
type AuthHandler struct {
	runtimes runtimeResolver
	config   CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(clients Clients, config CookieConfig) *AuthHandler {
	return &AuthHandler{
		runtimes: runtimeResolver{clients: clients, config: config},
		config:   config,
	}
}

// Callback はOAuthコールバックを処理する。
// 結果はsession-establishedまたはauth-errorとしてクライアントの状態に反映し、
// 成功時はセッションCookieを設定してページに戻す。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		// 結果待ちのクライアントだけを失敗に戻す。それ以外の状態には触れない。
		if rt.State().Auth.Status() == journal.SigningIn {
			h.fail(w, r, rt, &codec.Failure{Code: codeInvalidState, Message: model.NewInvalidOAuthStateError().Message})
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidOAuthStateError())
		return
	}

	// stateクッキーを削除
	h.config.clearOAuthState(w)

	// 2. IdPが返したエラー（同意拒否など）
	if idpErr := query.Get("error"); idpErr != "" {
		h.fail(w, r, rt, &codec.Failure{Code: "auth/" + idpErr, Message: query.Get("error_description")})
		return
	}

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		h.fail(w, r, rt, &codec.Failure{Code: codeMissingCode, Message: "認可コードがありません。"})
		return
	}

	// 4. 認証処理
	st, err := rt.CompleteSignIn(r.Context(), code)
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}

	// 5. セッションCookieを設定（HTTP Only）。失敗時は古いセッションCookieを残さない。
	if sess, ok := st.Auth.Session(); ok {
		h.config.setSession(w, sess.Token)
	} else {
		h.config.clearSession(w)
	}

	// 6. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.redirectTarget(), http.StatusSeeOther)
}

// fail はauth-errorを状態に反映してページに戻す。
// セッションは認証エラーで破棄されるため、次のリクエストで復元しないようCookieも削除する。
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, rt *client.Runtime, f *codec.Failure) {
	if _, err := rt.Apply(r.Context(), codec.Inbound{Kind: codec.KindAuthError, Payload: codec.EncodeFailure(f)}); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	h.config.clearSession(w)
	http.Redirect(w, r, h.config.redirectTarget(), http.StatusSeeOther)
}
