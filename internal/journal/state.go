// Package journal はジムジャーナルクライアントの状態機械を提供する。
//
// 状態の遷移は Update のみが行い、I/O は一切行わない。
// 外部ブリッジへの依頼は Effect として呼び出し側に返す。
package journal

// Session は認証済みユーザーを表す。
// トークンは外部ブリッジが発行した不透明な値で、クライアント側では検証しない。
type Session struct {
	Token string
	Email string
	UID   string
}

// AuthStatus は認証状態の種別を表す。
type AuthStatus int

const (
	// SignedOut は未ログイン状態。
	SignedOut AuthStatus = iota
	// SigningIn はサインインを依頼済みで結果待ちの状態。
	SigningIn
	// SignedIn はセッションが確立している状態。
	SignedIn
)

// String はログ出力用の名前を返す。
func (s AuthStatus) String() string {
	switch s {
	case SignedOut:
		return "signed_out"
	case SigningIn:
		return "signing_in"
	case SignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}

// Auth は {SignedOut, SigningIn, SignedIn(Session)} のタグ付き状態。
// セッションはSignedInのときだけ取り出せる。ゼロ値はSignedOut。
type Auth struct {
	status  AuthStatus
	session Session
}

// SignedOutAuth は未ログイン状態を返す。
func SignedOutAuth() Auth { return Auth{status: SignedOut} }

// SigningInAuth はサインイン結果待ちの状態を返す。
func SigningInAuth() Auth { return Auth{status: SigningIn} }

// SignedInAuth はセッション確立済みの状態を返す。
func SignedInAuth(s Session) Auth { return Auth{status: SignedIn, session: s} }

// Status は認証状態の種別を返す。
func (a Auth) Status() AuthStatus { return a.status }

// Session はSignedInのときにセッションとtrueを返す。
func (a Auth) Session() (Session, bool) {
	if a.status != SignedIn {
		return Session{}, false
	}
	return a.session, true
}

// Channel はエラーの発生経路を表す。表示には影響しない。
type Channel string

const (
	ChannelNone   Channel = ""
	ChannelAuth   Channel = "auth"
	ChannelSave   Channel = "save"
	ChannelDecode Channel = "decode"
)

// ErrorInfo は最後に観測した失敗を表す。
// 3フィールドすべてがnilの場合は「エラーなし」を意味する。
type ErrorInfo struct {
	Code       *string
	Message    *string
	Credential *string

	Channel Channel
}

// IsZero はエラーが存在しない場合にtrueを返す。
func (e ErrorInfo) IsZero() bool {
	return e.Code == nil && e.Message == nil && e.Credential == nil
}

// DraftEntry は入力中のフォーム内容。日付・時刻は検証しない。
type DraftEntry struct {
	Content string
	Date    string
	Time    string
}

// JournalEntry は保存済みの記録。受信後は変更しない。
type JournalEntry struct {
	Content string
	Date    string
	Time    string
}

// State はクライアントのUI状態全体。
type State struct {
	Auth    Auth
	Err     ErrorInfo
	Draft   DraftEntry
	Entries []JournalEntry
}

// Initial は起動直後の状態を返す。
func Initial() State {
	return State{Auth: SignedOutAuth()}
}

// Clone はEntriesを複製した状態のコピーを返す。
// 描画側に渡した後で内部のスライスが書き換わらないようにするため。
func (s State) Clone() State {
	c := s
	if s.Entries != nil {
		c.Entries = make([]JournalEntry, len(s.Entries))
		copy(c.Entries, s.Entries)
	}
	return c
}

// StringPtr は文字列のポインタを返す。ErrorInfo構築用。
func StringPtr(s string) *string { return &s }
