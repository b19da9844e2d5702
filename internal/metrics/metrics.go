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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(method, path string, duration time.Duration)
	RecordLoginAttempt(result string)
	RecordTrackLookup(result string)
	RecordProjectCreated()
	RecordStepCompleted()
}

// ログイン試行・施主照会の結果ラベル
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultNotFound = "not_found"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginAttempts   *prometheus.CounterVec
	trackLookups    *prometheus.CounterVec
	projectsCreated prometheus.Counter
	stepsCompleted  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitetrack_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitetrack_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitetrack_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		trackLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitetrack_track_lookups_total",
			Help: "結果別の施主照会数",
		}, []string{"result"}),
		projectsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitetrack_projects_created_total",
			Help: "作成された案件の合計数",
		}),
		stepsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitetrack_steps_completed_total",
			Help: "完了に変更された工程の合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestDuration,
		c.loginAttempts,
		c.trackLookups,
		c.projectsCreated,
		c.stepsCompleted,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
// pathはカーディナリティを抑えるため、チャートのルートパターンを渡すこと。
func (c *Collector) RecordRequestDuration(method, path string, duration time.Duration) {
	c.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLoginAttempt はログイン試行を結果別に記録する。
func (c *Collector) RecordLoginAttempt(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

// RecordTrackLookup は施主照会を結果別に記録する。
func (c *Collector) RecordTrackLookup(result string) {
	c.trackLookups.WithLabelValues(result).Inc()
}

// RecordProjectCreated は案件作成を記録する。
func (c *Collector) RecordProjectCreated() {
	c.projectsCreated.Inc()
}

// RecordStepCompleted は工程の完了を記録する。
func (c *Collector) RecordStepCompleted() {
	c.stepsCompleted.Inc()
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
