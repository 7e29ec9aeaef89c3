package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/gymjournal/internal/codec"
	"github.com/hitoshi/gymjournal/internal/journal"
	"github.com/hitoshi/gymjournal/internal/repository"
)

// EntriesChannel はjournal_entriesへの追加時にuidを通知するPostgreSQLのチャネル名。
// マイグレーションのトリガーと一致させる。
const EntriesChannel = "journal_entries_changed"

// watcher は1つの購読。
type watcher struct {
	uid  string
	sink func(json.RawMessage)

	ctx    context.Context
	cancel context.CancelFunc

	// refreshを直列化し、スナップショットを古い順に届ける
	mu sync.Mutex
}

// Notifier は記録の変更通知をuidごとの購読者に配信する。
// 通知を受けるたびに一覧全体を取り直し、スナップショットとして渡す。
type Notifier struct {
	entries repository.EntryRepository

	mu       sync.Mutex
	watchers map[string]map[uint64]*watcher
	nextID   uint64

	wg sync.WaitGroup
}

// NewNotifier はNotifierを生成する。
func NewNotifier(entries repository.EntryRepository) *Notifier {
	return &Notifier{
		entries:  entries,
		watchers: make(map[string]map[uint64]*watcher),
	}
}

// Watch はuidの購読を登録し、初回のスナップショットを非同期に送る。
// 返されたstopは登録を解除するだけで、実行中の配信の完了は待たない。
func (n *Notifier) Watch(ctx context.Context, uid string, sink func(json.RawMessage)) (func(), error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{uid: uid, sink: sink, ctx: wctx, cancel: cancel}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	if n.watchers[uid] == nil {
		n.watchers[uid] = make(map[uint64]*watcher)
	}
	n.watchers[uid][id] = w
	n.mu.Unlock()

	n.refresh(w)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			n.mu.Lock()
			delete(n.watchers[uid], id)
			if len(n.watchers[uid]) == 0 {
				delete(n.watchers, uid)
			}
			n.mu.Unlock()
		})
	}
	return stop, nil
}

// WatcherCount は登録中の購読数を返す。
func (n *Notifier) WatcherCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, ws := range n.watchers {
		count += len(ws)
	}
	return count
}

// Run は通知チャネルを読み、該当uidの購読者にスナップショットを配信する。
// nilの通知は再接続を意味し、取りこぼしに備えて全購読者を更新する。
// ctxがキャンセルされるかチャネルが閉じられると戻る。実行中の配信はWaitで待つ。
func (n *Notifier) Run(ctx context.Context, notifications <-chan *pq.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case note, ok := <-notifications:
			if !ok {
				return
			}
			if note == nil {
				slog.Info("notification listener reconnected, refreshing all watchers")
				n.Notify("")
				continue
			}
			n.Notify(note.Extra)
		}
	}
}

// Notify はuidの購読者に最新のスナップショットを配信する。uidが空の場合は全購読者が対象。
func (n *Notifier) Notify(uid string) {
	n.mu.Lock()
	var targets []*watcher
	for u, ws := range n.watchers {
		if uid != "" && u != uid {
			continue
		}
		for _, w := range ws {
			targets = append(targets, w)
		}
	}
	n.mu.Unlock()

	for _, w := range targets {
		n.refresh(w)
	}
}

// Wait は実行中の配信がすべて終わるまで待つ。
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// refresh は一覧を取り直してsinkに渡す。バックグラウンドで実行する。
func (n *Notifier) refresh(w *watcher) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		w.mu.Lock()
		defer w.mu.Unlock()

		if w.ctx.Err() != nil {
			return
		}

		payload, err := n.snapshot(w.ctx, w.uid)
		if err != nil {
			if w.ctx.Err() == nil {
				slog.Error("failed to load journal snapshot",
					slog.String("user_id", w.uid),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		if w.ctx.Err() != nil {
			return
		}
		w.sink(payload)
	}()
}

func (n *Notifier) snapshot(ctx context.Context, uid string) (json.RawMessage, error) {
	entries, err := n.entries.ListByUserID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	items := make([]journal.JournalEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, journal.JournalEntry{Content: e.Content, Date: e.Date, Time: e.Time})
	}
	return codec.EncodeSnapshot(items)
}

// Listener はPostgreSQLの通知を受け取る接続。
type Listener struct {
	*pq.Listener
}

// NewListener はdsnに接続し、EntriesChannelをLISTENするListenerを生成する。
// 切断時はlib/pqが自動で再接続し、通知チャネルにnilを送る。
func NewListener(dsn string) (*Listener, error) {
	l := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			slog.Info("notification listener connected", slog.String("channel", EntriesChannel))
		case pq.ListenerEventDisconnected:
			attrs := []any{slog.String("channel", EntriesChannel)}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			slog.Warn("notification listener disconnected", attrs...)
		case pq.ListenerEventReconnected:
			slog.Info("notification listener reconnected", slog.String("channel", EntriesChannel))
		case pq.ListenerEventConnectionAttemptFailed:
			attrs := []any{slog.String("channel", EntriesChannel)}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			slog.Error("notification listener connection attempt failed", attrs...)
		}
	})

	if err := l.Listen(EntriesChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", EntriesChannel, err)
	}
	return &Listener{Listener: l}, nil
}
