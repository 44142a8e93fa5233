// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// リライト結果のラベル値
const (
	ResultSuccess      = "success"
	ResultEmpty        = "empty"
	ResultInsufficient = "insufficient_credits"
	ResultUpstream     = "upstream_error"
	ResultConfig       = "config_error"
	ResultLedger       = "ledger_error"
	ResultReplayed     = "replayed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordRewrite(result string)
	RecordUpstreamLatency(duration time.Duration)
	RecordCreditsSpent(credits int)
	RecordHTTPStatus(statusCode int)
	RecordWorkerRows(job string, rows int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	rewrites        *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
	creditsSpent    prometheus.Counter
	httpStatus      *prometheus.CounterVec
	workerRows      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		rewrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "humanize_rewrite_total",
			Help: "結果別のリライトリクエスト数",
		}, []string{"result"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "humanize_upstream_latency_seconds",
			Help:    "補完APIのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		creditsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "humanize_credits_spent_total",
			Help: "消費されたクレジットの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "humanize_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		workerRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "humanize_worker_rows_total",
			Help: "バックグラウンドジョブが処理した行数",
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.rewrites,
		c.upstreamLatency,
		c.creditsSpent,
		c.httpStatus,
		c.workerRows,
	)

	return c
}

// RecordRewrite はリライト1回の結果を記録する。
func (c *Collector) RecordRewrite(result string) {
	c.rewrites.WithLabelValues(result).Inc()
}

// RecordUpstreamLatency は補完API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordCreditsSpent は消費したクレジット数を記録する。
func (c *Collector) RecordCreditsSpent(credits int) {
	c.creditsSpent.Add(float64(credits))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWorkerRows はジョブごとの処理行数を記録する。
func (c *Collector) RecordWorkerRows(job string, rows int64) {
	c.workerRows.WithLabelValues(job).Add(float64(rows))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
