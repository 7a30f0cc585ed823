// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ラベル値
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordRefresh(result string)
	RecordRefreshReuse()
	RecordGrantRemoval()
	RecordAPIKeyVerification(result string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRefreshCredentialsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	refreshReuse   prometheus.Counter
	grantRemovals  prometheus.Counter
	apiKeyVerifies *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	purged         prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ssogate_login_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ssogate_refresh_total",
			Help: "リフレッシュ試行の結果別合計数",
		}, []string{"result"}),
		refreshReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ssogate_refresh_reuse_detected_total",
			Help: "ローテーション済みリフレッシュトークンの再利用検知数",
		}),
		grantRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ssogate_grant_removals_total",
			Help: "削除された認可の合計数",
		}),
		apiKeyVerifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ssogate_api_key_verifications_total",
			Help: "APIキー検証の結果別合計数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ssogate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ssogate_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ssogate_refresh_credentials_purged_total",
			Help: "クリーンアップで削除されたリフレッシュトークン数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.refreshes,
		c.refreshReuse,
		c.grantRemovals,
		c.apiKeyVerifies,
		c.httpStatus,
		c.requestLatency,
		c.purged,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordRefresh はリフレッシュ結果を記録する。
func (c *Collector) RecordRefresh(result string) {
	c.refreshes.WithLabelValues(result).Inc()
}

// RecordRefreshReuse はリフレッシュトークンの再利用検知を記録する。
func (c *Collector) RecordRefreshReuse() {
	c.refreshReuse.Inc()
}

// RecordGrantRemoval は認可削除を記録する。
func (c *Collector) RecordGrantRemoval() {
	c.grantRemovals.Inc()
}

// RecordAPIKeyVerification はAPIキー検証結果を記録する。
func (c *Collector) RecordAPIKeyVerification(result string) {
	c.apiKeyVerifies.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRefreshCredentialsPurged は削除件数を加算する。
func (c *Collector) RecordRefreshCredentialsPurged(count int64) {
	c.purged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordLogin(string)                   {}
func (Nop) RecordRefresh(string)                 {}
func (Nop) RecordRefreshReuse()                  {}
func (Nop) RecordGrantRemoval()                  {}
func (Nop) RecordAPIKeyVerification(string)      {}
func (Nop) RecordHTTPStatus(int)                 {}
func (Nop) RecordRequestLatency(time.Duration)   {}
func (Nop) RecordRefreshCredentialsPurged(int64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
