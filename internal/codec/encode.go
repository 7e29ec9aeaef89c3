package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/gymjournal/internal/journal"
)

// saveEntryPayload はsave-entryのワイヤ形式。
// UIDはomitemptyを付けず、nilのときもnullとして出力する。
type saveEntryPayload struct {
	Content string  `json:"content"`
	Date    string  `json:"date"`
	Time    string  `json:"time"`
	UID     *string `json:"uid"`
}

// EncodeSaveEntry はsave-entry依頼をJSONに変換する。
// 4フィールドを常に出力し、セッションがない場合はuidをnullにする。
func EncodeSaveEntry(req journal.SaveEntryRequest) ([]byte, error) {
	b, err := json.Marshal(saveEntryPayload{
		Content: req.Content,
		Date:    req.Date,
		Time:    req.Time,
		UID:     req.UID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode save-entry: %w", err)
	}
	return b, nil
}

// SaveEntry はブリッジ側で受け取ったsave-entryペイロード。
type SaveEntry struct {
	Content string
	Date    string
	Time    string
	UID     *string
}

// DecodeSaveEntry はsave-entryペイロードを読み取る。
// ブリッジ側の入口で使う。uidがnullでもエラーにはしない。
func DecodeSaveEntry(payload []byte) (SaveEntry, error) {
	var p saveEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return SaveEntry{}, fmt.Errorf("failed to decode save-entry: %w", err)
	}
	return SaveEntry{Content: p.Content, Date: p.Date, Time: p.Time, UID: p.UID}, nil
}

// sessionPayload はsession-establishedのワイヤ形式。
type sessionPayload struct {
	Token string `json:"token"`
	Email string `json:"email"`
	UID   string `json:"uid"`
}

// EncodeSession はsession-establishedペイロードを生成する。ブリッジ側で使う。
func EncodeSession(token, email, uid string) ([]byte, error) {
	b, err := json.Marshal(sessionPayload{Token: token, Email: email, UID: uid})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return b, nil
}

// entryPayload はjournal-snapshot要素のワイヤ形式。
type entryPayload struct {
	Content string `json:"content"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

// EncodeSnapshot はjournal-snapshotペイロードを生成する。ブリッジ側で使う。
// 空の場合もnullではなく空配列を出力する。
func EncodeSnapshot(entries []journal.JournalEntry) ([]byte, error) {
	items := make([]entryPayload, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryPayload{Content: e.Content, Date: e.Date, Time: e.Time})
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

// Failure は外部ブリッジが報告する失敗。auth-error形のフィールドを持つ。
// 空文字列のフィールドはnullとして送られる。
type Failure struct {
	Code       string
	Message    string
	Credential string
}

// Error はerrorインターフェースを実装する。
func (f *Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// errorPayload はauth-errorのワイヤ形式。
type errorPayload struct {
	Code       *string `json:"code"`
	Message    *string `json:"message"`
	Credential *string `json:"credential"`
}

// EncodeFailure はエラーをauth-error形のペイロードに変換する。
// *Failureを含む場合はそのフィールドを使い、それ以外はmessageだけを設定する。
func EncodeFailure(err error) json.RawMessage {
	var p errorPayload

	var f *Failure
	if errors.As(err, &f) {
		p.Code = nonEmpty(f.Code)
		p.Message = nonEmpty(f.Message)
		p.Credential = nonEmpty(f.Credential)
	} else if err != nil {
		p.Message = nonEmpty(err.Error())
	}

	// 文字列ポインタのみなのでMarshalは失敗しない
	b, _ := json.Marshal(p)
	return b
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
