// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, journal, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnknownIntent   = "UNKNOWN_INTENT"
	ErrCodeInvalidIntent   = "INVALID_INTENT"
	ErrCodeUnknownField    = "UNKNOWN_FIELD"
	ErrCodeInvalidState    = "INVALID_OAUTH_STATE"
	ErrCodeClientNotFound  = "CLIENT_NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeNotSignedIn     = "NOT_SIGNED_IN"
	ErrCodeEntryRejected   = "ENTRY_REJECTED"
	ErrCodeRuntimeShutdown = "RUNTIME_CLOSED"
)

// NewUnknownIntentError は未定義の意図名エラーを生成する。
func NewUnknownIntentError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownIntent,
		Message:  fmt.Sprintf("未定義の操作です: %s", name),
		Category: "validation",
		Action:   "sign-in、sign-out、save、draft-content、draft-date、draft-time のいずれかを指定してください。",
	}
}

// NewInvalidIntentError はリクエスト本文が不正な場合のエラーを生成する。
func NewInvalidIntentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIntent,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "JSON形式で name と value を指定してください。",
	}
}

// NewUnknownFieldError は下書きの未定義フィールドを指定した場合のエラーを生成する。
func NewUnknownFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownField,
		Message:  fmt.Sprintf("未定義の入力欄です: %s", field),
		Category: "validation",
		Action:   "content、date、time のいずれかを指定してください。",
	}
}

// NewInvalidOAuthStateError はOAuthコールバックのstate不一致エラーを生成する。
func NewInvalidOAuthStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "ログイン要求の検証に失敗しました。",
		Category: "auth",
		Action:   "もう一度サインインしてください。",
	}
}

// NewClientNotFoundError はクライアント識別子が無い場合のエラーを生成する。
func NewClientNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeClientNotFound,
		Message:  "クライアントが特定できません。",
		Category: "system",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewRuntimeClosedError はクライアントのランタイムが終了済みの場合のエラーを生成する。
func NewRuntimeClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeRuntimeShutdown,
		Message:  "クライアントのセッションは終了しました。",
		Category: "system",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewNotSignedInError はサインインしていない状態で保存しようとした場合のエラーを生成する。
func NewNotSignedInError() *APIError {
	return &APIError{
		Code:     ErrCodeNotSignedIn,
		Message:  "サインインしていません。",
		Category: "auth",
		Action:   "サインインしてから記録を保存してください。",
	}
}

// NewEntryRejectedError は記録の検証に失敗した場合のエラーを生成する。
func NewEntryRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryRejected,
		Message:  fmt.Sprintf("記録を保存できません: %s", reason),
		Category: "journal",
		Action:   "入力内容を確認してください。",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "操作が多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
