package model

import "time"

// Entry はユーザーのトレーニング記録1件を表す。
// Date と Time はユーザー入力の文字列をそのまま保持する。
type Entry struct {
	ID        string
	UserID    string
	Content   string
	Date      string
	Time      string
	CreatedAt time.Time
}

// 記録の各フィールドの最大長（文字数）
const (
	MaxEntryContentLength = 2000
	MaxEntryDateLength    = 64
	MaxEntryTimeLength    = 64
)
