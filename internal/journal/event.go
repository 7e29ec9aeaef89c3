package journal

// Event は状態機械への入力。UIの意図と外部ブリッジからの通知の両方を含む。
type Event interface {
	// Name はログ・メトリクス用のイベント名を返す。
	Name() string
}

// RequestSignIn はサインインボタンの押下。
type RequestSignIn struct{}

// RequestSignOut はサインアウトボタンの押下。
type RequestSignOut struct{}

// AuthSucceeded はセッション確立の通知。
type AuthSucceeded struct {
	Session Session
}

// AuthFailed は認証エラーの通知。
type AuthFailed struct {
	Err ErrorInfo
}

// SaveFailed は保存エラーの通知。
// ワイヤ上はauth-errorと同じ形だが、セッションは維持する。
type SaveFailed struct {
	Err ErrorInfo
}

// DecodeFailed は受信ペイロードのスキーマ検証失敗。
type DecodeFailed struct {
	Channel Channel
	Reason  string
}

// DraftContentChanged は本文フィールドの変更。
type DraftContentChanged struct{ Value string }

// DraftDateChanged は日付フィールドの変更。
type DraftDateChanged struct{ Value string }

// DraftTimeChanged は時刻フィールドの変更。
type DraftTimeChanged struct{ Value string }

// RequestSave は保存ボタンの押下。
type RequestSave struct{}

// JournalSnapshotReceived は記録一覧のスナップショット受信。
type JournalSnapshotReceived struct {
	Entries []JournalEntry
}

func (RequestSignIn) Name() string           { return "request_sign_in" }
func (RequestSignOut) Name() string          { return "request_sign_out" }
func (AuthSucceeded) Name() string           { return "auth_succeeded" }
func (AuthFailed) Name() string              { return "auth_failed" }
func (SaveFailed) Name() string              { return "save_failed" }
func (DecodeFailed) Name() string            { return "decode_failed" }
func (DraftContentChanged) Name() string     { return "draft_content_changed" }
func (DraftDateChanged) Name() string        { return "draft_date_changed" }
func (DraftTimeChanged) Name() string        { return "draft_time_changed" }
func (RequestSave) Name() string             { return "request_save" }
func (JournalSnapshotReceived) Name() string { return "journal_snapshot_received" }
