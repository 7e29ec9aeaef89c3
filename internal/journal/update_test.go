package journal

import (
	"reflect"
	"testing"
)

func signedInState(uid string) State {
	s := Initial()
	s.Auth = SignedInAuth(Session{Token: "tok-" + uid, Email: uid + "@example.com", UID: uid})
	return s
}

func TestUpdate_RequestSignIn_EmitsBeginSignIn(t *testing.T) {
	next, eff := Update(Initial(), RequestSignIn{})

	if eff.Kind != EffectBeginSignIn {
		t.Errorf("effect = %v, want %v", eff.Kind, EffectBeginSignIn)
	}
	if next.Auth.Status() != SigningIn {
		t.Errorf("status = %v, want %v", next.Auth.Status(), SigningIn)
	}
	if _, ok := next.Auth.Session(); ok {
		t.Error("session should be absent while signing in")
	}
}

func TestUpdate_RequestSignIn_WhileSignedIn_KeepsSession(t *testing.T) {
	s := signedInState("u1")

	next, eff := Update(s, RequestSignIn{})

	if eff.Kind != EffectBeginSignIn {
		t.Errorf("effect = %v, want %v", eff.Kind, EffectBeginSignIn)
	}
	sess, ok := next.Auth.Session()
	if !ok || sess.UID != "u1" {
		t.Errorf("session = %+v (ok=%v), want uid u1", sess, ok)
	}
}

// サインアウトは直前の状態に関わらずセッションとエラーを消す
func TestUpdate_RequestSignOut_ClearsSessionAndError(t *testing.T) {
	states := map[string]State{
		"signed out": Initial(),
		"signing in": {Auth: SigningInAuth()},
		"signed in":  signedInState("u1"),
		"signed in with error": func() State {
			s := signedInState("u1")
			s.Err = ErrorInfo{Code: StringPtr("c"), Message: StringPtr("m"), Credential: StringPtr("x")}
			return s
		}(),
		"error only": {Err: ErrorInfo{Message: StringPtr("boom")}},
	}

	for name, s := range states {
		t.Run(name, func(t *testing.T) {
			next, eff := Update(s, RequestSignOut{})

			if eff.Kind != EffectEndSignIn {
				t.Errorf("effect = %v, want %v", eff.Kind, EffectEndSignIn)
			}
			if _, ok := next.Auth.Session(); ok {
				t.Error("session should be absent after sign out")
			}
			if !next.Err.IsZero() {
				t.Errorf("error = %+v, want zero", next.Err)
			}
		})
	}
}

func TestUpdate_AuthSucceeded_SetsSessionAndClearsStaleError(t *testing.T) {
	s := Initial()
	s.Err = ErrorInfo{Message: StringPtr("popup closed")}

	sess := Session{Token: "t", Email: "a@example.com", UID: "u1"}
	next, eff := Update(s, AuthSucceeded{Session: sess})

	if eff.Kind != EffectNone {
		t.Errorf("effect = %v, want none", eff.Kind)
	}
	got, ok := next.Auth.Session()
	if !ok || got != sess {
		t.Errorf("session = %+v, want %+v", got, sess)
	}
	if !next.Err.IsZero() {
		t.Errorf("error = %+v, want zero", next.Err)
	}
}

func TestUpdate_AuthFailed_SetsErrorAndSignsOut(t *testing.T) {
	s := Initial()
	s.Auth = SigningInAuth()

	next, _ := Update(s, AuthFailed{Err: ErrorInfo{Message: StringPtr("popup closed")}})

	if next.Auth.Status() != SignedOut {
		t.Errorf("status = %v, want %v", next.Auth.Status(), SignedOut)
	}
	if next.Err.Message == nil || *next.Err.Message != "popup closed" {
		t.Errorf("message = %v, want popup closed", next.Err.Message)
	}
	if next.Err.Code != nil || next.Err.Credential != nil {
		t.Error("code and credential should stay absent")
	}
	if next.Err.Channel != ChannelAuth {
		t.Errorf("channel = %q, want %q", next.Err.Channel, ChannelAuth)
	}
}

func TestUpdate_AuthFailed_WhileSignedIn_EndsSession(t *testing.T) {
	s := signedInState("u1")

	next, eff := Update(s, AuthFailed{Err: ErrorInfo{Code: StringPtr("auth/access_denied")}})

	if _, ok := next.Auth.Session(); ok {
		t.Error("session should be destroyed by an auth error")
	}
	if eff.Kind != EffectEndSignIn {
		t.Errorf("effect = %v, want %v", eff.Kind, EffectEndSignIn)
	}
	if next.Err.Code == nil || *next.Err.Code != "auth/access_denied" {
		t.Errorf("code = %v, want auth/access_denied", next.Err.Code)
	}
}

func TestUpdate_AuthFailed_WithoutSession_EmitsNoEffect(t *testing.T) {
	_, eff := Update(Initial(), AuthFailed{})

	if eff.Kind != EffectNone {
		t.Errorf("effect = %v, want none", eff.Kind)
	}
}

func TestUpdate_SaveFailed_KeepsSession(t *testing.T) {
	s := signedInState("u1")

	next, _ := Update(s, SaveFailed{Err: ErrorInfo{Code: StringPtr("permission-denied")}})

	if _, ok := next.Auth.Session(); !ok {
		t.Error("session should survive a save failure")
	}
	if next.Err.Code == nil || *next.Err.Code != "permission-denied" {
		t.Errorf("code = %v, want permission-denied", next.Err.Code)
	}
	if next.Err.Channel != ChannelSave {
		t.Errorf("channel = %q, want %q", next.Err.Channel, ChannelSave)
	}
}

func TestUpdate_DecodeFailed_OverwritesMessageOnly(t *testing.T) {
	s := Initial()
	s.Err = ErrorInfo{Code: StringPtr("old-code"), Message: StringPtr("old")}

	next, _ := Update(s, DecodeFailed{Channel: ChannelDecode, Reason: "session-established: uid: field is required"})

	if next.Err.Message == nil || *next.Err.Message != "session-established: uid: field is required" {
		t.Errorf("message = %v", next.Err.Message)
	}
	if next.Err.Code == nil || *next.Err.Code != "old-code" {
		t.Errorf("code = %v, want old-code to be kept", next.Err.Code)
	}
}

func TestUpdate_DraftChanges_TouchOnlyTheirField(t *testing.T) {
	s := signedInState("u1")
	s.Entries = []JournalEntry{{Content: "run", Date: "2024-01-01", Time: "07:00"}}

	next, eff := Update(s, DraftContentChanged{Value: "leg day"})
	if eff.Kind != EffectNone {
		t.Errorf("effect = %v, want none", eff.Kind)
	}
	if next.Draft != (DraftEntry{Content: "leg day"}) {
		t.Errorf("draft = %+v", next.Draft)
	}

	next, _ = Update(next, DraftDateChanged{Value: "2024-02-02"})
	next, _ = Update(next, DraftTimeChanged{Value: "18:30"})

	want := DraftEntry{Content: "leg day", Date: "2024-02-02", Time: "18:30"}
	if next.Draft != want {
		t.Errorf("draft = %+v, want %+v", next.Draft, want)
	}
	if !reflect.DeepEqual(next.Entries, s.Entries) {
		t.Errorf("entries changed: %+v", next.Entries)
	}
	if sess, _ := next.Auth.Session(); sess.UID != "u1" {
		t.Errorf("session changed: %+v", sess)
	}
}

// セッションなしで保存するとuidはnilになる
func TestUpdate_RequestSave_WithoutSession_EmitsNilUID(t *testing.T) {
	s, _ := Update(Initial(), DraftContentChanged{Value: "leg day"})

	if s.Draft.Content != "leg day" || s.Draft.Date != "" || s.Draft.Time != "" {
		t.Fatalf("draft = %+v", s.Draft)
	}

	next, eff := Update(s, RequestSave{})

	if eff.Kind != EffectSaveEntry {
		t.Fatalf("effect = %v, want %v", eff.Kind, EffectSaveEntry)
	}
	if eff.Save == nil {
		t.Fatal("save request should be set")
	}
	if eff.Save.Content != "leg day" || eff.Save.Date != "" || eff.Save.Time != "" {
		t.Errorf("save = %+v", eff.Save)
	}
	if eff.Save.UID != nil {
		t.Errorf("uid = %q, want nil", *eff.Save.UID)
	}
	// 保存後も下書きは残す
	if next.Draft != s.Draft {
		t.Errorf("draft = %+v, want %+v", next.Draft, s.Draft)
	}
}

func TestUpdate_RequestSave_WithSession_CarriesUID(t *testing.T) {
	s := signedInState("u1")
	s.Draft = DraftEntry{Content: "bench", Date: "2024-03-03", Time: "06:15"}

	_, eff := Update(s, RequestSave{})

	if eff.Save == nil || eff.Save.UID == nil || *eff.Save.UID != "u1" {
		t.Fatalf("save = %+v, want uid u1", eff.Save)
	}
}

func TestUpdate_Snapshot_ReplacesEntries(t *testing.T) {
	s := signedInState("u1")
	s.Entries = []JournalEntry{
		{Content: "old-1", Date: "2023-12-30", Time: "08:00"},
		{Content: "old-2", Date: "2023-12-31", Time: "09:00"},
	}

	snap := []JournalEntry{{Content: "run", Date: "2024-01-01", Time: "07:00"}}
	next, eff := Update(s, JournalSnapshotReceived{Entries: snap})

	if eff.Kind != EffectNone {
		t.Errorf("effect = %v, want none", eff.Kind)
	}
	if !reflect.DeepEqual(next.Entries, snap) {
		t.Errorf("entries = %+v, want %+v", next.Entries, snap)
	}

	// 受信したスライスを後から書き換えても状態には影響しない
	snap[0].Content = "mutated"
	if next.Entries[0].Content != "run" {
		t.Error("state should not alias the snapshot slice")
	}
}

// どんなイベント列でも、記録一覧は最後に受け取ったスナップショットと一致する
func TestUpdate_EntriesAlwaysEqualLatestSnapshot(t *testing.T) {
	snapA := []JournalEntry{{Content: "a", Date: "d1", Time: "t1"}}
	snapB := []JournalEntry{{Content: "b", Date: "d2", Time: "t2"}, {Content: "c", Date: "d3", Time: "t3"}}

	events := []Event{
		RequestSignIn{},
		AuthSucceeded{Session: Session{Token: "t", Email: "e", UID: "u"}},
		JournalSnapshotReceived{Entries: snapA},
		DraftContentChanged{Value: "x"},
		RequestSave{},
		SaveFailed{Err: ErrorInfo{Message: StringPtr("nope")}},
		JournalSnapshotReceived{Entries: snapB},
		DecodeFailed{Reason: "bad"},
		RequestSignOut{},
		AuthFailed{},
	}

	var latest []JournalEntry
	s := Initial()
	for i, ev := range events {
		s, _ = Update(s, ev)
		if snap, ok := ev.(JournalSnapshotReceived); ok {
			latest = snap.Entries
		}
		if len(latest) == 0 {
			if len(s.Entries) != 0 {
				t.Fatalf("step %d: entries = %+v, want empty", i, s.Entries)
			}
			continue
		}
		if !reflect.DeepEqual(s.Entries, latest) {
			t.Fatalf("step %d (%s): entries = %+v, want %+v", i, ev.Name(), s.Entries, latest)
		}
	}
}

func TestUpdate_DoesNotMutateInput(t *testing.T) {
	s := signedInState("u1")
	s.Entries = []JournalEntry{{Content: "run"}}
	before := s.Clone()

	Update(s, RequestSignOut{})
	Update(s, JournalSnapshotReceived{Entries: nil})

	if !reflect.DeepEqual(s, before) {
		t.Errorf("input state mutated: %+v", s)
	}
}

func TestEffectKind_String(t *testing.T) {
	tests := []struct {
		kind EffectKind
		want string
	}{
		{EffectNone, "none"},
		{EffectBeginSignIn, "begin-sign-in"},
		{EffectEndSignIn, "end-sign-in"},
		{EffectSaveEntry, "save-entry"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
