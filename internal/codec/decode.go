// Package codec は状態機械の型と外部ブリッジとのJSONペイロードを相互変換する。
//
// 受信ペイロードはすべてスキーマ検証してからイベントに変換する。
// 部分的なデコードは行わず、検証に失敗した場合はDecodeFailedイベントになる。
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/gymjournal/internal/journal"
)

// Kind は受信ペイロードの種類。
type Kind string

const (
	// KindSessionEstablished はセッション確立の通知。
	KindSessionEstablished Kind = "session-established"
	// KindAuthError は認証エラーの通知。
	KindAuthError Kind = "auth-error"
	// KindSaveError は保存エラーの通知。形はauth-errorと同じ。
	KindSaveError Kind = "save-error"
	// KindJournalSnapshot は記録一覧のスナップショット。
	KindJournalSnapshot Kind = "journal-snapshot"
)

// Inbound は外部ブリッジから届いた未検証のペイロード。
type Inbound struct {
	Kind    Kind
	Payload json.RawMessage
}

// DecodeError はスキーマ検証の失敗を表す。
// Error()の文字列がそのままErrorInfo.messageとして表示される。
type DecodeError struct {
	Kind    Kind
	Path    string
	Problem string
}

// Error はerrorインターフェースを実装する。
func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Problem)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Problem)
}

// Decode は受信ペイロードを検証し、対応するイベントに変換する。
// 検証に失敗した場合、どの種類のペイロードでもDecodeFailedを返す。
func Decode(in Inbound) journal.Event {
	switch in.Kind {
	case KindSessionEstablished:
		sess, err := DecodeSession(in.Payload)
		if err != nil {
			return decodeFailed(err)
		}
		return journal.AuthSucceeded{Session: sess}

	case KindAuthError, KindSaveError:
		info, err := decodeErrorInfo(in.Kind, in.Payload)
		if err != nil {
			return decodeFailed(err)
		}
		if in.Kind == KindSaveError {
			return journal.SaveFailed{Err: info}
		}
		return journal.AuthFailed{Err: info}

	case KindJournalSnapshot:
		entries, err := DecodeSnapshot(in.Payload)
		if err != nil {
			return decodeFailed(err)
		}
		return journal.JournalSnapshotReceived{Entries: entries}
	}

	return decodeFailed(&DecodeError{Kind: in.Kind, Problem: "unknown payload kind"})
}

func decodeFailed(err error) journal.DecodeFailed {
	return journal.DecodeFailed{Channel: journal.ChannelDecode, Reason: err.Error()}
}

// DecodeSession はsession-establishedペイロードを検証する。
// token, email, uidはすべて必須の文字列。
func DecodeSession(payload []byte) (journal.Session, error) {
	obj, err := decodeObject(KindSessionEstablished, "", payload)
	if err != nil {
		return journal.Session{}, err
	}

	var sess journal.Session
	fields := []struct {
		name string
		dst  *string
	}{
		{"token", &sess.Token},
		{"email", &sess.Email},
		{"uid", &sess.UID},
	}
	for _, f := range fields {
		v, err := requiredString(KindSessionEstablished, "", f.name, obj)
		if err != nil {
			return journal.Session{}, err
		}
		*f.dst = v
	}
	return sess, nil
}

// DecodeErrorInfo はauth-error形のペイロードを検証する。
// code, message, credentialはいずれも省略・nullを許す。
func DecodeErrorInfo(payload []byte) (journal.ErrorInfo, error) {
	return decodeErrorInfo(KindAuthError, payload)
}

func decodeErrorInfo(kind Kind, payload []byte) (journal.ErrorInfo, error) {
	obj, err := decodeObject(kind, "", payload)
	if err != nil {
		return journal.ErrorInfo{}, err
	}

	var info journal.ErrorInfo
	if info.Code, err = optionalString(kind, "code", obj); err != nil {
		return journal.ErrorInfo{}, err
	}
	if info.Message, err = optionalString(kind, "message", obj); err != nil {
		return journal.ErrorInfo{}, err
	}
	if info.Credential, err = optionalString(kind, "credential", obj); err != nil {
		return journal.ErrorInfo{}, err
	}
	return info, nil
}

// DecodeSnapshot はjournal-snapshotペイロードを検証する。
// 配列の順序はそのまま保持する。各要素のcontent, date, timeは必須。
func DecodeSnapshot(payload []byte) ([]journal.JournalEntry, error) {
	if isNull(payload) {
		return nil, &DecodeError{Kind: KindJournalSnapshot, Problem: "expected array, got null"}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, &DecodeError{Kind: KindJournalSnapshot, Problem: "expected array: " + describe(err)}
	}

	entries := make([]journal.JournalEntry, 0, len(items))
	for i, raw := range items {
		path := fmt.Sprintf("[%d]", i)
		obj, err := decodeObject(KindJournalSnapshot, path, raw)
		if err != nil {
			return nil, err
		}

		var e journal.JournalEntry
		fields := []struct {
			name string
			dst  *string
		}{
			{"content", &e.Content},
			{"date", &e.Date},
			{"time", &e.Time},
		}
		for _, f := range fields {
			v, err := requiredString(KindJournalSnapshot, path, f.name, obj)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeObject(kind Kind, path string, payload []byte) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, &DecodeError{Kind: kind, Path: path, Problem: "empty payload"}
	}
	if isNull(payload) {
		return nil, &DecodeError{Kind: kind, Path: path, Problem: "expected object, got null"}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, &DecodeError{Kind: kind, Path: path, Problem: "expected object: " + describe(err)}
	}
	return obj, nil
}

func requiredString(kind Kind, path, name string, obj map[string]json.RawMessage) (string, error) {
	fieldPath := name
	if path != "" {
		fieldPath = path + "." + name
	}
	raw, ok := obj[name]
	if !ok {
		return "", &DecodeError{Kind: kind, Path: fieldPath, Problem: "field is required"}
	}
	if isNull(raw) {
		return "", &DecodeError{Kind: kind, Path: fieldPath, Problem: "expected string, got null"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &DecodeError{Kind: kind, Path: fieldPath, Problem: "expected string, got " + jsonType(raw)}
	}
	return s, nil
}

func optionalString(kind Kind, name string, obj map[string]json.RawMessage) (*string, error) {
	raw, ok := obj[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &DecodeError{Kind: kind, Path: name, Problem: "expected string or null, got " + jsonType(raw)}
	}
	return &s, nil
}

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// jsonType はJSON値の種類を診断メッセージ用に返す。
func jsonType(raw []byte) string {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return "nothing"
	}
	switch t[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func describe(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return "got " + typeErr.Value
	}
	return strings.TrimPrefix(err.Error(), "json: ")
}
