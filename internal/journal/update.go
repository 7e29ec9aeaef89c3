package journal

// Update は現在の状態とイベントから次の状態と依頼を計算する。
// 純粋関数であり、引数のStateを書き換えない。
func Update(s State, ev Event) (State, Effect) {
	next := s.Clone()

	switch e := ev.(type) {
	case RequestSignIn:
		if next.Auth.Status() == SignedOut {
			next.Auth = SigningInAuth()
		}
		return next, Effect{Kind: EffectBeginSignIn}

	case RequestSignOut:
		next.Auth = SignedOutAuth()
		next.Err = ErrorInfo{}
		return next, Effect{Kind: EffectEndSignIn}

	case AuthSucceeded:
		next.Auth = SignedInAuth(e.Session)
		next.Err = ErrorInfo{}
		return next, None()

	case AuthFailed:
		next.Auth = SignedOutAuth()
		next.Err = e.Err
		next.Err.Channel = ChannelAuth
		// 確立済みのセッションは認証エラーで破棄する
		if _, ok := s.Auth.Session(); ok {
			return next, Effect{Kind: EffectEndSignIn}
		}
		return next, None()

	case SaveFailed:
		next.Err = e.Err
		next.Err.Channel = ChannelSave
		return next, None()

	case DecodeFailed:
		// messageだけを上書きし、code/credentialは直前の値を残す
		next.Err.Message = StringPtr(e.Reason)
		next.Err.Channel = ChannelDecode
		return next, None()

	case DraftContentChanged:
		next.Draft.Content = e.Value
		return next, None()

	case DraftDateChanged:
		next.Draft.Date = e.Value
		return next, None()

	case DraftTimeChanged:
		next.Draft.Time = e.Value
		return next, None()

	case RequestSave:
		req := &SaveEntryRequest{
			Content: next.Draft.Content,
			Date:    next.Draft.Date,
			Time:    next.Draft.Time,
		}
		if sess, ok := next.Auth.Session(); ok {
			uid := sess.UID
			req.UID = &uid
		}
		return next, Effect{Kind: EffectSaveEntry, Save: req}

	case JournalSnapshotReceived:
		entries := make([]JournalEntry, len(e.Entries))
		copy(entries, e.Entries)
		next.Entries = entries
		return next, None()
	}

	return next, None()
}
