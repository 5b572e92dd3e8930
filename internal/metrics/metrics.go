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
// ハンドラーやサービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin()
	RecordSubmission()
	RecordDuplicateRejected()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordAssetCheck(status string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins            prometheus.Counter
	submissions       prometheus.Counter
	duplicateRejected prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	assetChecks       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalman_logins_total",
			Help: "ログイン成功の合計数",
		}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalman_submissions_total",
			Help: "評価提出成功の合計数",
		}),
		duplicateRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalman_duplicate_rejected_total",
			Help: "重複評価として拒否された提出の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evalman_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		assetChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalman_asset_checks_total",
			Help: "アセット検証結果別の合計数",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.logins,
		c.submissions,
		c.duplicateRejected,
		c.httpStatus,
		c.requestLatency,
		c.assetChecks,
	)

	return c
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordSubmission は評価提出成功を記録する。
func (c *Collector) RecordSubmission() {
	c.submissions.Inc()
}

// RecordDuplicateRejected は重複評価の拒否を記録する。
func (c *Collector) RecordDuplicateRejected() {
	c.duplicateRejected.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAssetCheck はアセット検証結果を記録する。
func (c *Collector) RecordAssetCheck(status string) {
	c.assetChecks.WithLabelValues(status).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
