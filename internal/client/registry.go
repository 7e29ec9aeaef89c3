package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/gymjournal/internal/metrics"
)

// RegistryConfig はRegistryの設定を保持する。
type RegistryConfig struct {
	IdleTimeout     time.Duration // 最終操作からこの時間を超えたクライアントを破棄する
	CleanupInterval time.Duration // 破棄判定の間隔
}

// DefaultRegistryConfig はデフォルトの設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Registry はクライアントIDごとのRuntimeを管理する。
type Registry struct {
	config RegistryConfig
	opts   Options

	mu      sync.Mutex
	clients map[string]*Runtime

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry は新しいRegistryを生成する。
// バックグラウンドでアイドルクライアントの破棄を開始する。
func NewRegistry(config RegistryConfig, opts Options) *Registry {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultRegistryConfig().IdleTimeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRegistryConfig().CleanupInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	reg := &Registry{
		config:  config,
		opts:    opts,
		clients: make(map[string]*Runtime),
		stopCh:  make(chan struct{}),
	}

	reg.wg.Add(1)
	go reg.cleanupLoop()

	return reg
}

// GetOrCreate はIDに対応するRuntimeを返す。存在しない場合と終了済みの場合は新しく生成する。
func (reg *Registry) GetOrCreate(id string) *Runtime {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if rt, ok := reg.clients[id]; ok && !isDone(rt) {
		return rt
	}

	rt := New(id, reg.opts)
	reg.clients[id] = rt
	reg.opts.Metrics.SetActiveClients(len(reg.clients))
	reg.opts.Logger.Debug("client runtime created", slog.String("client_id", id))
	return rt
}

// Get はIDに対応する稼働中のRuntimeを返す。
func (reg *Registry) Get(id string) (*Runtime, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rt, ok := reg.clients[id]
	if !ok || isDone(rt) {
		return nil, false
	}
	return rt, true
}

// Len は管理しているクライアント数を返す。
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.clients)
}

// Close は破棄ループを停止し、すべてのRuntimeを終了する。
func (reg *Registry) Close() {
	reg.stopOnce.Do(func() {
		close(reg.stopCh)
		reg.wg.Wait()

		reg.mu.Lock()
		clients := reg.clients
		reg.clients = make(map[string]*Runtime)
		reg.mu.Unlock()

		closeAll(clients)
		reg.opts.Metrics.SetActiveClients(0)
	})
}

func (reg *Registry) cleanupLoop() {
	defer reg.wg.Done()

	ticker := time.NewTicker(reg.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reg.evictIdle(time.Now())
		case <-reg.stopCh:
			return
		}
	}
}

// evictIdle は最終操作からIdleTimeoutを超えたRuntimeと終了済みのRuntimeを破棄する。
func (reg *Registry) evictIdle(now time.Time) int {
	evicted := make(map[string]*Runtime)

	reg.mu.Lock()
	for id, rt := range reg.clients {
		if isDone(rt) || now.Sub(rt.LastActive()) > reg.config.IdleTimeout {
			evicted[id] = rt
			delete(reg.clients, id)
		}
	}
	remaining := len(reg.clients)
	reg.mu.Unlock()

	if len(evicted) == 0 {
		return 0
	}

	// Closeは実行中のブリッジ呼び出しを待つためロックの外で行う
	closeAll(evicted)
	reg.opts.Metrics.SetActiveClients(remaining)
	reg.opts.Logger.Info("idle clients evicted",
		slog.Int("evicted", len(evicted)),
		slog.Int("remaining", remaining),
	)
	return len(evicted)
}

func closeAll(clients map[string]*Runtime) {
	var wg sync.WaitGroup
	for _, rt := range clients {
		wg.Add(1)
		go func(rt *Runtime) {
			defer wg.Done()
			rt.Close()
		}(rt)
	}
	wg.Wait()
}

func isDone(rt *Runtime) bool {
	select {
	case <-rt.Done():
		return true
	default:
		return false
	}
}
