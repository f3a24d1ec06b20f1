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
// ゲートウェイやポーラーから利用する。
type MetricsCollector interface {
	RecordAPIRequest(method string, statusCode int)
	RecordAPILatency(duration time.Duration)
	RecordTokenRefresh(result string)
	RecordPollCycle()
	RecordPollFailure()
	RecordMarkReadFailure()
	RecordUpload(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests      *prometheus.CounterVec
	apiLatency       prometheus.Histogram
	tokenRefresh     *prometheus.CounterVec
	pollCycles       prometheus.Counter
	pollFailures     prometheus.Counter
	markReadFailures prometheus.Counter
	uploads          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodaid_api_requests_total",
			Help: "バックエンドAPIリクエストのメソッド・ステータス別合計数",
		}, []string{"method", "status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "foodaid_api_request_duration_seconds",
			Help:    "バックエンドAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodaid_token_refresh_total",
			Help: "IDトークン更新の結果別合計数",
		}, []string{"result"}),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foodaid_poll_cycles_total",
			Help: "通知ポーリングサイクルの合計数",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foodaid_poll_failures_total",
			Help: "通知ポーリング失敗の合計数",
		}),
		markReadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foodaid_markread_failures_total",
			Help: "楽観的既読更新のサーバー反映失敗の合計数",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodaid_uploads_total",
			Help: "ストレージアップロードの結果別合計数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.tokenRefresh,
		c.pollCycles,
		c.pollFailures,
		c.markReadFailures,
		c.uploads,
	)

	return c
}

// RecordAPIRequest はAPIリクエストの完了を記録する。
// 通信エラーで応答がない場合はstatusCode 0で記録される。
func (c *Collector) RecordAPIRequest(method string, statusCode int) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// RecordAPILatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordAPILatency(duration time.Duration) {
	c.apiLatency.Observe(duration.Seconds())
}

// RecordTokenRefresh はIDトークン更新の結果を記録する。
func (c *Collector) RecordTokenRefresh(result string) {
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordPollCycle は通知ポーリングサイクルの完了を記録する。
func (c *Collector) RecordPollCycle() {
	c.pollCycles.Inc()
}

// RecordPollFailure は通知ポーリングの失敗を記録する。
func (c *Collector) RecordPollFailure() {
	c.pollFailures.Inc()
}

// RecordMarkReadFailure は既読更新のサーバー反映失敗を記録する。
// 楽観的更新はロールバックしないため、不整合の発生はここで観測する。
func (c *Collector) RecordMarkReadFailure() {
	c.markReadFailures.Inc()
}

// RecordUpload はストレージアップロードの結果を記録する。
func (c *Collector) RecordUpload(result string) {
	c.uploads.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ホストアプリが開発用に/metricsを公開する際に使用する。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
