// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とワーカーから利用する。
type MetricsCollector interface {
	RecordCallStarted()
	RecordCallEnded(status string)
	RecordBilledSeconds(seconds int64)
	RecordMemoryFailure()
	RecordUpstreamStatus(service string, statusCode int)
	RecordUpstreamLatency(service string, duration time.Duration)
	RecordCallsReaped(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	callsStarted    prometheus.Counter
	callsEnded      *prometheus.CounterVec
	billedSeconds   prometheus.Counter
	memoryFailures  prometheus.Counter
	upstreamStatus  *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	callsReaped     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alexlistens_calls_started_total",
			Help: "開始された通話の合計数",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alexlistens_calls_ended_total",
			Help: "終了した通話の最終ステータス別合計数",
		}, []string{"status"}),
		billedSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alexlistens_billed_seconds_total",
			Help: "ウォレットから差し引かれた秒数の合計",
		}),
		memoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alexlistens_memory_failures_total",
			Help: "意味記憶の保存・検索失敗の合計数",
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alexlistens_upstream_status_total",
			Help: "外部サービス別・HTTPステータスコード別のレスポンス数",
		}, []string{"service", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alexlistens_upstream_latency_seconds",
			Help:    "外部サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		callsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alexlistens_calls_reaped_total",
			Help: "回収ワーカーが強制終了した放置通話の合計数",
		}),
	}

	reg.MustRegister(
		c.callsStarted,
		c.callsEnded,
		c.billedSeconds,
		c.memoryFailures,
		c.upstreamStatus,
		c.upstreamLatency,
		c.callsReaped,
	)

	return c
}

// RecordCallStarted は通話の開始を記録する。
func (c *Collector) RecordCallStarted() {
	c.callsStarted.Inc()
}

// RecordCallEnded は通話の終了を最終ステータス付きで記録する。
func (c *Collector) RecordCallEnded(status string) {
	c.callsEnded.WithLabelValues(status).Inc()
}

// RecordBilledSeconds は課金された秒数を記録する。
func (c *Collector) RecordBilledSeconds(seconds int64) {
	c.billedSeconds.Add(float64(seconds))
}

// RecordMemoryFailure は意味記憶の操作失敗を記録する。
func (c *Collector) RecordMemoryFailure() {
	c.memoryFailures.Inc()
}

// RecordUpstreamStatus は外部サービスのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(service string, statusCode int) {
	c.upstreamStatus.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は外部サービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(service string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCallsReaped は回収ワーカーが終了させた通話数を記録する。
func (c *Collector) RecordCallsReaped(count int) {
	c.callsReaped.Add(float64(count))
}

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

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
