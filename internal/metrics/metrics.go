// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/planboard/internal/model"
)

// Collector はPrometheusメトリクスを収集する実装。
// セッション管理・トークンリフレッシュ・ガード判定・上流プロキシの
// 各層から横断的に利用される。
type Collector struct {
	loginSuccess    prometheus.Counter
	loginFailure    prometheus.Counter
	logout          prometheus.Counter
	sessionRestored *prometheus.CounterVec
	sessionExpired  prometheus.Counter

	refreshSuccess prometheus.Counter
	refreshFailure prometheus.Counter
	refreshDeduped prometheus.Counter

	guardDecision *prometheus.CounterVec

	upstreamStatus *prometheus.CounterVec
	proxyLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planboard_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planboard_login_failure_total",
			Help: "ログイン失敗の合計数",
		}),
		logout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planboard_logout_total",
			Help: "ログアウトの合計数",
		}),
		sessionRestored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_session_restored_total",
			Help: "起動時セッション復元の結果別合計数",
		}, []string{"authenticated"}),
		sessionExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planboard_session_expired_total",
			Help: "セッション失効（リフレッシュ不能）の合計数",
		}),
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planboard_token_refresh_success_total",
			Help: "トークンリフレッシュ成功の合計数",
		}),
		refreshFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planboard_token_refresh_failure_total",
			Help: "トークンリフレッシュ失敗の合計数",
		}),
		refreshDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planboard_token_refresh_deduped_total",
			Help: "進行中のリフレッシュに相乗りしたリクエストの合計数",
		}),
		guardDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_guard_decision_total",
			Help: "アクセスガード判定の状態・理由別合計数",
		}, []string{"state", "reason"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_upstream_status_total",
			Help: "上流APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		proxyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planboard_proxy_latency_seconds",
			Help:    "上流プロキシのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.logout,
		c.sessionRestored,
		c.sessionExpired,
		c.refreshSuccess,
		c.refreshFailure,
		c.refreshDeduped,
		c.guardDecision,
		c.upstreamStatus,
		c.proxyLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFailure.Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logout.Inc()
}

// RecordSessionRestored は起動時セッション復元の結果を記録する。
func (c *Collector) RecordSessionRestored(authenticated bool) {
	c.sessionRestored.WithLabelValues(strconv.FormatBool(authenticated)).Inc()
}

// RecordSessionExpired はセッション失効を記録する。
func (c *Collector) RecordSessionExpired() {
	c.sessionExpired.Inc()
}

// RecordRefreshSuccess はトークンリフレッシュ成功を記録する。
func (c *Collector) RecordRefreshSuccess() {
	c.refreshSuccess.Inc()
}

// RecordRefreshFailure はトークンリフレッシュ失敗を記録する。
func (c *Collector) RecordRefreshFailure() {
	c.refreshFailure.Inc()
}

// RecordRefreshDeduped は進行中リフレッシュへの相乗りを記録する。
func (c *Collector) RecordRefreshDeduped() {
	c.refreshDeduped.Inc()
}

// RecordGuardDecision はアクセスガード判定を記録する。
func (c *Collector) RecordGuardDecision(state model.DecisionState, reason model.DenyReason) {
	c.guardDecision.WithLabelValues(string(state), string(reason)).Inc()
}

// RecordUpstreamStatus は上流APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProxyLatency は上流プロキシのレイテンシを記録する。
func (c *Collector) RecordProxyLatency(duration time.Duration) {
	c.proxyLatency.Observe(duration.Seconds())
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
