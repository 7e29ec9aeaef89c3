package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// MarkupChecker は記録本文にHTMLタグが含まれるかを判定する。
// 本文は書き換えずに保存するため、タグを含む本文は除去せずに拒否する。
type MarkupChecker struct {
	policy *bluemonday.Policy
}

// NewMarkupChecker はすべてのタグを不許可とするMarkupCheckerを生成する。
func NewMarkupChecker() *MarkupChecker {
	return &MarkupChecker{policy: bluemonday.StrictPolicy()}
}

// ContainsMarkup はStrictPolicyで除去される部分があればtrueを返す。
// エンティティは両辺で展開してから比較するため、"&" や "5 < 6" のような文字はタグ扱いしない。
func (c *MarkupChecker) ContainsMarkup(raw string) bool {
	stripped := html.UnescapeString(c.policy.Sanitize(raw))
	return stripped != html.UnescapeString(raw)
}
