// Package bridge はクライアントランタイムから見た外部の認証・データブリッジを実装する。
//
// 本人確認はGoogle、記録の永続化と検索はPostgreSQLに委譲し、
// 結果はcodecのワイヤ形式のペイロードとしてランタイムに返す。
package bridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/gymjournal/internal/auth"
	"github.com/hitoshi/gymjournal/internal/codec"
	"github.com/hitoshi/gymjournal/internal/model"
	"github.com/hitoshi/gymjournal/internal/repository"
)

// ブリッジが報告する失敗コード
const (
	CodePermissionDenied = "permission-denied"
	CodeInvalidArgument  = "invalid-argument"
	CodeUnavailable      = "unavailable"
	CodeSessionNotFound  = "auth/session-not-found"
	CodeSignInFailed     = "auth/sign-in-failed"
)

// AuthService はBackendが必要とする認証サービスのインターフェース。
type AuthService interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.Login, error)
	Restore(ctx context.Context, sessionID string) (*auth.Login, error)
	Logout(ctx context.Context, sessionID string) error
}

// Watcher はuidごとの記録一覧の購読を提供する。
type Watcher interface {
	Watch(ctx context.Context, uid string, sink func(json.RawMessage)) (stop func(), err error)
}

// MarkupChecker は記録本文にHTMLタグが含まれるかを判定する。
type MarkupChecker interface {
	ContainsMarkup(raw string) bool
}

// Backend はclient.Bridgeの実装。
type Backend struct {
	auth    AuthService
	entries repository.EntryRepository
	watcher Watcher
	markup  MarkupChecker
	now     func() time.Time
}

// NewBackend はBackendを生成する。
func NewBackend(authSvc AuthService, entries repository.EntryRepository, watcher Watcher, markup MarkupChecker) *Backend {
	return &Backend{
		auth:    authSvc,
		entries: entries,
		watcher: watcher,
		markup:  markup,
		now:     time.Now,
	}
}

// BeginSignIn はCSRF対策用のstateを生成し、IdPの認可URLを返す。
func (b *Backend) BeginSignIn(ctx context.Context) (string, string, error) {
	state, err := generateState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return b.auth.GetLoginURL(state), state, nil
}

// CompleteSignIn は認可コードでログインし、session-establishedペイロードを返す。
// トークンにはバックエンドのセッションIDを使う。
func (b *Backend) CompleteSignIn(ctx context.Context, code string) (json.RawMessage, error) {
	login, err := b.auth.HandleCallback(ctx, code)
	if err != nil {
		slog.Error("sign-in failed", slog.String("error", err.Error()))
		return nil, &codec.Failure{Code: CodeSignInFailed, Message: "サインインに失敗しました。"}
	}
	return sessionPayload(login)
}

// Restore はセッションIDからsession-establishedペイロードを返す。
// 有効なセッションがない場合はnilを返す。
func (b *Backend) Restore(ctx context.Context, token string) (json.RawMessage, error) {
	login, err := b.auth.Restore(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if login == nil {
		return nil, nil
	}
	return sessionPayload(login)
}

// EndSignIn はセッションを破棄する。
func (b *Backend) EndSignIn(ctx context.Context, token string) error {
	if token == "" {
		return &codec.Failure{Code: CodeSessionNotFound, Message: "セッションがありません。"}
	}
	if err := b.auth.Logout(ctx, token); err != nil {
		slog.Error("sign-out failed", slog.String("error", err.Error()))
		return &codec.Failure{Code: CodeUnavailable, Message: "サインアウトに失敗しました。"}
	}
	return nil
}

// SaveEntry はsave-entryペイロードを検証して記録を追加する。
// uidがnullの場合とHTMLタグを含む本文は拒否する。本文は書き換えずに保存する。
func (b *Backend) SaveEntry(ctx context.Context, payload []byte) error {
	req, err := codec.DecodeSaveEntry(payload)
	if err != nil {
		return &codec.Failure{Code: CodeInvalidArgument, Message: err.Error()}
	}
	if req.UID == nil || *req.UID == "" {
		return &codec.Failure{Code: CodePermissionDenied, Message: model.NewNotSignedInError().Message}
	}

	if b.markup.ContainsMarkup(req.Content) {
		return &codec.Failure{
			Code:    CodeInvalidArgument,
			Message: model.NewEntryRejectedError("本文にHTMLタグは使えません").Message,
		}
	}
	if err := validateEntry(req.Content, req.Date, req.Time); err != nil {
		return err
	}

	entry := &model.Entry{
		ID:        uuid.New().String(),
		UserID:    *req.UID,
		Content:   req.Content,
		Date:      req.Date,
		Time:      req.Time,
		CreatedAt: b.now().UTC(),
	}
	if err := b.entries.Create(ctx, entry); err != nil {
		slog.Error("failed to save entry",
			slog.String("user_id", entry.UserID),
			slog.String("error", err.Error()),
		)
		return &codec.Failure{Code: CodeUnavailable, Message: "記録の保存に失敗しました。"}
	}

	slog.Info("entry saved",
		slog.String("entry_id", entry.ID),
		slog.String("user_id", entry.UserID),
	)
	return nil
}

// Watch はuidの記録一覧を購読する。
func (b *Backend) Watch(ctx context.Context, uid string, sink func(json.RawMessage)) (func(), error) {
	if uid == "" {
		return nil, &codec.Failure{Code: CodePermissionDenied, Message: "uid is required"}
	}
	return b.watcher.Watch(ctx, uid, sink)
}

func validateEntry(content, date, tm string) error {
	var reason string
	switch {
	case utf8.RuneCountInString(content) > model.MaxEntryContentLength:
		reason = fmt.Sprintf("本文は%d文字以内で入力してください", model.MaxEntryContentLength)
	case utf8.RuneCountInString(date) > model.MaxEntryDateLength:
		reason = fmt.Sprintf("日付は%d文字以内で入力してください", model.MaxEntryDateLength)
	case utf8.RuneCountInString(tm) > model.MaxEntryTimeLength:
		reason = fmt.Sprintf("時刻は%d文字以内で入力してください", model.MaxEntryTimeLength)
	default:
		return nil
	}
	return &codec.Failure{Code: CodeInvalidArgument, Message: model.NewEntryRejectedError(reason).Message}
}

func sessionPayload(login *auth.Login) (json.RawMessage, error) {
	if login == nil || login.Session == nil || login.Lifter == nil {
		return nil, fmt.Errorf("incomplete login")
	}
	return codec.EncodeSession(login.Session.ID, login.Lifter.Email, login.Lifter.ID)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
