package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gymjournal/internal/client"
	"github.com/hitoshi/gymjournal/internal/journal"
	"github.com/hitoshi/gymjournal/internal/middleware"
	"github.com/hitoshi/gymjournal/internal/model"
	"github.com/hitoshi/gymjournal/internal/render"
)

// maxIntentBodyBytes は意図リクエスト本文の上限。
const maxIntentBodyBytes = 64 << 10

// JSON APIで受け付ける意図名
const (
	IntentSignIn       = "sign-in"
	IntentSignOut      = "sign-out"
	IntentSave         = "save"
	IntentDraftContent = "draft-content"
	IntentDraftDate    = "draft-date"
	IntentDraftTime    = "draft-time"
)

// JournalHandler はページ表示とユーザー操作（意図）のHTTPハンドラー。
// 意図はそれぞれ状態機械のイベント1つに対応する。
type JournalHandler struct {
	runtimes runtimeResolver
	config   CookieConfig
	title    string
}

// NewJournalHandler はJournalHandlerを生成する。
func NewJournalHandler(clients Clients, config CookieConfig, title string) *JournalHandler {
	return &JournalHandler{
		runtimes: runtimeResolver{clients: clients, config: config},
		config:   config,
		title:    title,
	}
}

// Page は現在の状態を描画したHTMLを返す。
// GET /
func (h *JournalHandler) Page(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}

	doc := render.Page(rt.State(), render.Options{
		Title:     h.title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := render.Write(w, doc); err != nil {
		slog.Error("failed to write page", slog.String("error", err.Error()))
	}
}

// SignIn はサインインを依頼し、IdPの認可画面にリダイレクトする。
// 認可URLを取得できなかった場合はエラーを状態に反映してページに戻す。
// POST /intents/sign-in
func (h *JournalHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}

	out, err := rt.Dispatch(r.Context(), journal.RequestSignIn{})
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}

	if out.Redirect == "" {
		http.Redirect(w, r, h.config.redirectTarget(), http.StatusSeeOther)
		return
	}
	h.config.setOAuthState(w, out.OAuthState)
	http.Redirect(w, r, out.Redirect, http.StatusSeeOther)
}

// SignOut はサインアウトを依頼し、セッションCookieを削除する。
// POST /intents/sign-out
func (h *JournalHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}

	if _, err := rt.Dispatch(r.Context(), journal.RequestSignOut{}); err != nil {
		writeDispatchError(w, r, err)
		return
	}

	h.config.clearSession(w)
	http.Redirect(w, r, h.config.redirectTarget(), http.StatusSeeOther)
}

// Save はフォームの入力内容を下書きに反映してから保存を依頼する。
// フォームに含まれない入力欄は下書きの値をそのまま使う。
// POST /intents/save
func (h *JournalHandler) Save(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIntentError(err.Error()))
		return
	}

	events := make([]journal.Event, 0, 4)
	if vs, ok := r.PostForm["content"]; ok {
		events = append(events, journal.DraftContentChanged{Value: vs[0]})
	}
	if vs, ok := r.PostForm["date"]; ok {
		events = append(events, journal.DraftDateChanged{Value: vs[0]})
	}
	if vs, ok := r.PostForm["time"]; ok {
		events = append(events, journal.DraftTimeChanged{Value: vs[0]})
	}
	events = append(events, journal.RequestSave{})

	for _, ev := range events {
		if _, err := rt.Dispatch(r.Context(), ev); err != nil {
			writeDispatchError(w, r, err)
			return
		}
	}

	http.Redirect(w, r, h.config.redirectTarget(), http.StatusSeeOther)
}

// Draft は下書きの1フィールドを更新する。
// 値は "value" フィールド、なければフィールド名と同じ名前のフォーム値から読む。
// POST /intents/draft/{field}
func (h *JournalHandler) Draft(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")
	if draftEvent(field, "") == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownFieldError(field))
		return
	}

	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIntentError(err.Error()))
		return
	}
	value := r.PostFormValue("value")
	if _, ok := r.PostForm["value"]; !ok {
		value = r.PostFormValue(field)
	}

	if _, err := rt.Dispatch(r.Context(), draftEvent(field, value)); err != nil {
		writeDispatchError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// State は現在の状態をJSONで返す。セッショントークンは含めない。
// GET /api/state
func (h *JournalHandler) State(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStateView(rt.State()))
}

// intentRequest はPOST /api/intents のリクエストボディ。
type intentRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// intentResponse はPOST /api/intents のレスポンスボディ。
type intentResponse struct {
	State    stateView `json:"state"`
	Redirect string    `json:"redirect,omitempty"`
}

// Intent はJSONで送られた意図を処理し、遷移後の状態を返す。
// sign-inで認可URLが得られた場合はredirectに含める。
// POST /api/intents
func (h *JournalHandler) Intent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIntentBodyBytes)

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIntentError(err.Error()))
		return
	}

	ev := intentEvent(req)
	if ev == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnknownIntentError(req.Name))
		return
	}

	rt, ok := h.runtimes.resolve(w, r)
	if !ok {
		return
	}

	out, err := rt.Dispatch(r.Context(), ev)
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}

	switch req.Name {
	case IntentSignIn:
		if out.Redirect != "" {
			h.config.setOAuthState(w, out.OAuthState)
		}
	case IntentSignOut:
		h.config.clearSession(w)
	}

	writeJSON(w, http.StatusOK, intentResponse{
		State:    newStateView(out.State),
		Redirect: out.Redirect,
	})
}

// intentEvent は意図名に対応するイベントを返す。未定義の名前はnil。
func intentEvent(req intentRequest) journal.Event {
	switch req.Name {
	case IntentSignIn:
		return journal.RequestSignIn{}
	case IntentSignOut:
		return journal.RequestSignOut{}
	case IntentSave:
		return journal.RequestSave{}
	case IntentDraftContent:
		return draftEvent("content", req.Value)
	case IntentDraftDate:
		return draftEvent("date", req.Value)
	case IntentDraftTime:
		return draftEvent("time", req.Value)
	default:
		return nil
	}
}

// draftEvent は下書きフィールド名に対応する変更イベントを返す。未定義の名前はnil。
func draftEvent(field, value string) journal.Event {
	switch field {
	case "content":
		return journal.DraftContentChanged{Value: value}
	case "date":
		return journal.DraftDateChanged{Value: value}
	case "time":
		return journal.DraftTimeChanged{Value: value}
	default:
		return nil
	}
}

// --- 状態のJSON表現 ---

type errorView struct {
	Code       *string `json:"code"`
	Message    *string `json:"message"`
	Credential *string `json:"credential"`
	Channel    string  `json:"channel,omitempty"`
}

type draftView struct {
	Content string `json:"content"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

type entryView struct {
	Content string `json:"content"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

// stateView はGET /api/state のレスポンスボディ。
type stateView struct {
	Status    string      `json:"status"`
	Email     *string     `json:"email"`
	UID       *string     `json:"uid"`
	Error     errorView   `json:"error"`
	ErrorLine string      `json:"error_line"`
	Draft     draftView   `json:"draft"`
	Entries   []entryView `json:"entries"`
}

func newStateView(s journal.State) stateView {
	v := stateView{
		Status: s.Auth.Status().String(),
		Error: errorView{
			Code:       s.Err.Code,
			Message:    s.Err.Message,
			Credential: s.Err.Credential,
			Channel:    string(s.Err.Channel),
		},
		ErrorLine: render.ErrorLine(s.Err),
		Draft: draftView{
			Content: s.Draft.Content,
			Date:    s.Draft.Date,
			Time:    s.Draft.Time,
		},
		Entries: make([]entryView, 0, len(s.Entries)),
	}
	if sess, ok := s.Auth.Session(); ok {
		v.Email = journal.StringPtr(sess.Email)
		v.UID = journal.StringPtr(sess.UID)
	}
	for _, e := range s.Entries {
		v.Entries = append(v.Entries, entryView{Content: e.Content, Date: e.Date, Time: e.Time})
	}
	return v
}

var _ Clients = (*client.Registry)(nil)
