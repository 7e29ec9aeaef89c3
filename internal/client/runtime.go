// Package client はブラウザごとのクライアントランタイムを提供する。
//
// Runtime は1本のゴルーチンでイベントを到着順に処理し、状態遷移は journal.Update だけが行う。
// 外部ブリッジへの依頼は遷移の後に Bridge を通じて実行し、非同期の結果は
// codec.Inbound として同じキューに戻す。
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/gymjournal/internal/codec"
	"github.com/hitoshi/gymjournal/internal/journal"
	"github.com/hitoshi/gymjournal/internal/metrics"
)

// ErrClosed は終了済みのRuntimeに操作した場合に返る。
var ErrClosed = errors.New("client runtime closed")

const defaultQueueSize = 64

// Bridge は外部の認証・データブリッジの機能。
// 結果はペイロード（JSON）で返し、Runtime側で検証してからイベントにする。
type Bridge interface {
	// BeginSignIn はIdPの認可URLとCSRF対策用のstateを返す。
	BeginSignIn(ctx context.Context) (redirectURL, state string, err error)
	// CompleteSignIn は認可コードからsession-establishedペイロードを生成する。
	CompleteSignIn(ctx context.Context, code string) (json.RawMessage, error)
	// Restore は既存のセッショントークンからsession-establishedペイロードを生成する。
	// 有効なセッションがない場合はnilを返す。
	Restore(ctx context.Context, token string) (json.RawMessage, error)
	// EndSignIn はセッションを破棄する。
	EndSignIn(ctx context.Context, token string) error
	// SaveEntry はsave-entryペイロードを永続化する。
	SaveEntry(ctx context.Context, payload []byte) error
	// Watch はuidの記録一覧を購読し、journal-snapshotペイロードをsinkに渡す。
	// 返されたstopを呼ぶと購読を解除する。stopはsinkの完了を待たない。
	Watch(ctx context.Context, uid string, sink func(json.RawMessage)) (stop func(), err error)
}

// Options はRuntimeの生成パラメータ。
type Options struct {
	Bridge    Bridge
	Metrics   metrics.Recorder
	Logger    *slog.Logger
	QueueSize int
}

// Outcome はDispatchの結果。
type Outcome struct {
	// State は遷移後の状態のコピー。
	State journal.State
	// Effect は遷移が要求した依頼。
	Effect journal.Effect
	// Redirect はBeginSignInが成功した場合の認可URL。
	Redirect string
	// OAuthState はRedirectに含まれるstate値。
	OAuthState string
}

// transition はループが1イベントを処理した結果。
type transition struct {
	prev   journal.State
	next   journal.State
	effect journal.Effect
}

// item はキューの1要素。
type item struct {
	ev journal.Event
	// reply がnilでない場合、ループは遷移結果を返し、依頼の実行は送信側が行う。
	reply chan transition
	// watchGen は購読sink由来のイベントの世代。0はそれ以外。
	watchGen uint64
}

// Runtime は1クライアント分の状態機械とブリッジ呼び出しを保持する。
type Runtime struct {
	id      string
	bridge  Bridge
	metrics metrics.Recorder
	logger  *slog.Logger

	queue  chan item
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	inner  sync.WaitGroup

	// closeMu はinner.AddとClose後のinner.Waitを直列化する
	closeMu sync.Mutex
	closed  bool

	mu    sync.RWMutex
	state journal.State

	lastActive atomic.Int64

	// 以下はループのゴルーチンだけが触る
	watchUID  string
	watchGen  uint64
	stopWatch func()
}

// New はRuntimeを生成し、イベントループを開始する。
func New(id string, opts Options) *Runtime {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		id:      id,
		bridge:  opts.Bridge,
		metrics: opts.Metrics,
		logger:  opts.Logger.With(slog.String("client_id", id)),
		queue:   make(chan item, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   journal.Initial(),
	}
	r.touch()

	go r.loop()
	return r
}

// ID はクライアント識別子を返す。
func (r *Runtime) ID() string { return r.id }

// State は現在の状態のコピーを返す。
func (r *Runtime) State() journal.State {
	r.touch()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// LastActive は最後にユーザー操作または描画があった時刻を返す。
func (r *Runtime) LastActive() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

// Done はループ終了時にcloseされるチャネルを返す。
func (r *Runtime) Done() <-chan struct{} { return r.done }

// Dispatch はユーザー操作のイベントを処理し、要求された依頼を実行する。
// 状態遷移の完了を待ってから戻る。BeginSignInだけは結果（認可URL）を待ち、
// それ以外の依頼はバックグラウンドで実行して結果をキューに戻す。
// キューに入った後はctxがキャンセルされても遷移と依頼の実行を待つ。
func (r *Runtime) Dispatch(ctx context.Context, ev journal.Event) (Outcome, error) {
	r.touch()
	r.metrics.RecordIntent(ev.Name())

	t, err := r.submit(ctx, ev)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{State: t.next, Effect: t.effect}
	if t.effect.Kind == journal.EffectBeginSignIn {
		r.metrics.RecordEffect(t.effect.Kind.String())
		url, state, err := r.beginSignIn(ctx)
		if err != nil {
			r.logger.Warn("begin sign-in failed", slog.String("error", err.Error()))
			// 呼び出し元が切断済みでも結果待ちの状態を失敗に戻す
			st, applyErr := r.Apply(context.WithoutCancel(ctx), codec.Inbound{Kind: codec.KindAuthError, Payload: codec.EncodeFailure(err)})
			if applyErr != nil {
				return out, applyErr
			}
			out.State = st
			return out, nil
		}
		out.Redirect = url
		out.OAuthState = state
		return out, nil
	}

	r.perform(t)
	return out, nil
}

// Deliver はブリッジからのペイロードを検証してキューに入れる。処理の完了は待たない。
func (r *Runtime) Deliver(in codec.Inbound) {
	ev := r.decode(in)
	select {
	case r.queue <- item{ev: ev}:
	case <-r.done:
	}
}

// Apply はペイロードを検証して処理し、遷移後の状態を返す。
func (r *Runtime) Apply(ctx context.Context, in codec.Inbound) (journal.State, error) {
	t, err := r.submit(ctx, r.decode(in))
	if err != nil {
		return journal.State{}, err
	}
	r.perform(t)
	return t.next, nil
}

// CompleteSignIn は認可コードでサインインを完了させ、結果を状態に反映する。
// ブリッジの失敗はauth-errorとして状態に反映し、エラーは返さない。
func (r *Runtime) CompleteSignIn(ctx context.Context, code string) (journal.State, error) {
	start := time.Now()
	payload, err := r.bridge.CompleteSignIn(ctx, code)
	r.metrics.RecordBridgeCall("complete-sign-in", time.Since(start), err)
	if err != nil {
		r.logger.Warn("complete sign-in failed", slog.String("error", err.Error()))
		return r.Apply(ctx, codec.Inbound{Kind: codec.KindAuthError, Payload: codec.EncodeFailure(err)})
	}
	return r.Apply(ctx, codec.Inbound{Kind: codec.KindSessionEstablished, Payload: payload})
}

// Restore はセッショントークンからサインイン状態を復元する。
// 有効なセッションがない場合と失敗した場合は状態を変えない。
func (r *Runtime) Restore(ctx context.Context, token string) (journal.State, error) {
	start := time.Now()
	payload, err := r.bridge.Restore(ctx, token)
	r.metrics.RecordBridgeCall("restore", time.Since(start), err)
	if err != nil {
		r.logger.Warn("restore session failed", slog.String("error", err.Error()))
		return r.State(), nil
	}
	if payload == nil {
		return r.State(), nil
	}
	return r.Apply(ctx, codec.Inbound{Kind: codec.KindSessionEstablished, Payload: payload})
}

// Close はループと購読を停止し、実行中の依頼の終了を待つ。複数回呼んでもよい。
func (r *Runtime) Close() {
	r.once.Do(func() {
		r.closeMu.Lock()
		r.closed = true
		r.closeMu.Unlock()

		r.cancel()
		<-r.done
		r.inner.Wait()
	})
}

func (r *Runtime) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

// submit はイベントをキューに入れ、遷移結果を待つ。
// ctxはキューに入るまでの待ちにだけ使う。遷移は必ず適用されるため、
// 結果を受け取らずに戻ると要求された依頼が実行されなくなる。
func (r *Runtime) submit(ctx context.Context, ev journal.Event) (transition, error) {
	reply := make(chan transition, 1)
	select {
	case r.queue <- item{ev: ev, reply: reply}:
	case <-r.done:
		return transition{}, ErrClosed
	case <-ctx.Done():
		return transition{}, ctx.Err()
	}

	select {
	case t := <-reply:
		return t, nil
	case <-r.done:
		return transition{}, ErrClosed
	}
}

func (r *Runtime) decode(in codec.Inbound) journal.Event {
	r.metrics.RecordInbound(string(in.Kind))
	ev := codec.Decode(in)
	if df, ok := ev.(journal.DecodeFailed); ok {
		r.metrics.RecordDecodeFailure(string(in.Kind))
		r.logger.Warn("inbound payload rejected",
			slog.String("kind", string(in.Kind)),
			slog.String("reason", df.Reason),
		)
	}
	return ev
}

func (r *Runtime) loop() {
	defer close(r.done)
	defer r.unwatch()

	for {
		select {
		case <-r.ctx.Done():
			return
		case it := <-r.queue:
			if it.watchGen != 0 && it.watchGen != r.watchGen {
				r.logger.Debug("dropped snapshot from stale subscription",
					slog.Uint64("generation", it.watchGen),
				)
				continue
			}

			r.mu.Lock()
			prev := r.state
			next, eff := journal.Update(prev, it.ev)
			r.state = next
			r.mu.Unlock()

			r.logger.Debug("event processed",
				slog.String("event", it.ev.Name()),
				slog.String("auth", next.Auth.Status().String()),
				slog.String("effect", eff.Kind.String()),
			)

			r.syncWatch(next)

			t := transition{prev: prev, next: next.Clone(), effect: eff}
			if it.reply != nil {
				it.reply <- t
				continue
			}
			r.perform(t)
		}
	}
}

// syncWatch は購読をセッションのuidに合わせる。
// 常に高々1つの購読だけを持ち、新しい購読の前に古い購読を解除する。
func (r *Runtime) syncWatch(s journal.State) {
	want := ""
	if sess, ok := s.Auth.Session(); ok {
		want = sess.UID
	}
	if want == r.watchUID {
		return
	}

	r.unwatch()
	if want == "" {
		return
	}

	r.watchGen++
	gen := r.watchGen
	sink := func(payload json.RawMessage) {
		ev := r.decode(codec.Inbound{Kind: codec.KindJournalSnapshot, Payload: payload})
		select {
		case r.queue <- item{ev: ev, watchGen: gen}:
		case <-r.done:
		}
	}

	start := time.Now()
	stop, err := r.bridge.Watch(r.ctx, want, sink)
	r.metrics.RecordBridgeCall("watch", time.Since(start), err)
	if err != nil {
		r.logger.Error("failed to watch journal", slog.String("error", err.Error()))
		return
	}
	r.watchUID = want
	r.stopWatch = stop
	r.logger.Info("journal subscription started", slog.Uint64("generation", gen))
}

func (r *Runtime) unwatch() {
	if r.stopWatch != nil {
		r.stopWatch()
		r.logger.Info("journal subscription stopped", slog.Uint64("generation", r.watchGen))
	}
	r.stopWatch = nil
	r.watchUID = ""
	// 解除済みの購読から届くスナップショットを破棄するため世代を進める
	r.watchGen++
}

func (r *Runtime) beginSignIn(ctx context.Context) (string, string, error) {
	start := time.Now()
	url, state, err := r.bridge.BeginSignIn(ctx)
	r.metrics.RecordBridgeCall("begin-sign-in", time.Since(start), err)
	return url, state, err
}

// perform は非同期の依頼をバックグラウンドで実行する。
// ループのゴルーチンからも呼ばれるため、ここでキューに送信してはならない。
func (r *Runtime) perform(t transition) {
	switch t.effect.Kind {
	case journal.EffectNone:
		return

	case journal.EffectBeginSignIn:
		// 認可URLを受け取る呼び出し元がいないため実行しない
		r.logger.Warn("begin sign-in requested without a caller")
		return

	case journal.EffectEndSignIn:
		r.metrics.RecordEffect(t.effect.Kind.String())
		sess, ok := t.prev.Auth.Session()
		if !ok {
			return
		}
		r.async("end-sign-in", codec.KindAuthError, func(ctx context.Context) error {
			return r.bridge.EndSignIn(ctx, sess.Token)
		})

	case journal.EffectSaveEntry:
		r.metrics.RecordEffect(t.effect.Kind.String())
		if t.effect.Save == nil {
			return
		}
		req := *t.effect.Save
		r.async("save-entry", codec.KindSaveError, func(ctx context.Context) error {
			payload, err := codec.EncodeSaveEntry(req)
			if err != nil {
				return err
			}
			return r.bridge.SaveEntry(ctx, payload)
		})
	}
}

// async はブリッジ呼び出しをゴルーチンで実行し、失敗をfailKindのペイロードで戻す。
// Close後は何も実行しない。
func (r *Runtime) async(op string, failKind codec.Kind, call func(ctx context.Context) error) {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		r.logger.Warn("bridge call skipped after close", slog.String("operation", op))
		return
	}
	r.inner.Add(1)
	r.closeMu.Unlock()
	go func() {
		defer r.inner.Done()

		start := time.Now()
		err := call(r.ctx)
		r.metrics.RecordBridgeCall(op, time.Since(start), err)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
			return
		}

		r.logger.Warn("bridge call failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		r.Deliver(codec.Inbound{Kind: failKind, Payload: codec.EncodeFailure(err)})
	}()
}
