package journal

// EffectKind は外部ブリッジへの依頼の種類。
type EffectKind int

const (
	// EffectNone は依頼なし。
	EffectNone EffectKind = iota
	// EffectBeginSignIn はbegin-sign-in。
	EffectBeginSignIn
	// EffectEndSignIn はend-sign-in。
	EffectEndSignIn
	// EffectSaveEntry はsave-entry。
	EffectSaveEntry
)

// String はワイヤ上の依頼名を返す。
func (k EffectKind) String() string {
	switch k {
	case EffectBeginSignIn:
		return "begin-sign-in"
	case EffectEndSignIn:
		return "end-sign-in"
	case EffectSaveEntry:
		return "save-entry"
	default:
		return "none"
	}
}

// SaveEntryRequest はsave-entryのペイロード。
// UIDはセッションがない場合nil。拒否するのはブリッジ側の責務。
type SaveEntryRequest struct {
	Content string
	Date    string
	Time    string
	UID     *string
}

// Effect はUpdateが返す高々1つの依頼。
// SaveはKindがEffectSaveEntryのときだけ設定される。
type Effect struct {
	Kind EffectKind
	Save *SaveEntryRequest
}

// None は依頼なしを返す。
func None() Effect { return Effect{Kind: EffectNone} }
