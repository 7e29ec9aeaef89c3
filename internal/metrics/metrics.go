// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// クライアントランタイム、ブリッジ、HTTP層から利用する。
type Recorder interface {
	RecordIntent(name string)
	RecordEffect(kind string)
	RecordInbound(kind string)
	RecordDecodeFailure(kind string)
	RecordBridgeCall(operation string, duration time.Duration, err error)
	RecordHTTPStatus(statusCode int)
	SetActiveClients(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	intents       *prometheus.CounterVec
	effects       *prometheus.CounterVec
	inbound       *prometheus.CounterVec
	decodeFail    *prometheus.CounterVec
	bridgeLatency *prometheus.HistogramVec
	bridgeFail    *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	activeClients prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymjournal_intents_total",
			Help: "受け付けたユーザー操作（イベント）の合計数",
		}, []string{"intent"}),
		effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymjournal_effects_total",
			Help: "状態遷移が要求した外部作用の合計数",
		}, []string{"effect"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymjournal_inbound_total",
			Help: "ブリッジから受信したペイロードの合計数",
		}, []string{"kind"}),
		decodeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymjournal_decode_failures_total",
			Help: "受信ペイロードの検証失敗の合計数",
		}, []string{"kind"}),
		bridgeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gymjournal_bridge_latency_seconds",
			Help:    "ブリッジ操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		bridgeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymjournal_bridge_failures_total",
			Help: "ブリッジ操作の失敗の合計数",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymjournal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymjournal_active_clients",
			Help: "稼働中のクライアントランタイム数",
		}),
	}

	reg.MustRegister(
		c.intents,
		c.effects,
		c.inbound,
		c.decodeFail,
		c.bridgeLatency,
		c.bridgeFail,
		c.httpStatus,
		c.activeClients,
	)

	return c
}

// RecordIntent はユーザー操作を記録する。
func (c *Collector) RecordIntent(name string) {
	c.intents.WithLabelValues(name).Inc()
}

// RecordEffect は外部作用を記録する。EffectNoneは呼び出し側で除外する。
func (c *Collector) RecordEffect(kind string) {
	c.effects.WithLabelValues(kind).Inc()
}

// RecordInbound は受信ペイロードを記録する。
func (c *Collector) RecordInbound(kind string) {
	c.inbound.WithLabelValues(kind).Inc()
}

// RecordDecodeFailure は受信ペイロードの検証失敗を記録する。
func (c *Collector) RecordDecodeFailure(kind string) {
	c.decodeFail.WithLabelValues(kind).Inc()
}

// RecordBridgeCall はブリッジ操作のレイテンシと失敗を記録する。
func (c *Collector) RecordBridgeCall(operation string, duration time.Duration, err error) {
	c.bridgeLatency.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		c.bridgeFail.WithLabelValues(operation).Inc()
	}
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetActiveClients は稼働中のクライアント数を設定する。
func (c *Collector) SetActiveClients(n int) {
	c.activeClients.Set(float64(n))
}

// Nop は何も記録しないRecorder。テストや計測不要な構成で使う。
type Nop struct{}

func (Nop) RecordIntent(string)                           {}
func (Nop) RecordEffect(string)                           {}
func (Nop) RecordInbound(string)                          {}
func (Nop) RecordDecodeFailure(string)                    {}
func (Nop) RecordBridgeCall(string, time.Duration, error) {}
func (Nop) RecordHTTPStatus(int)                          {}
func (Nop) SetActiveClients(int)                          {}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
