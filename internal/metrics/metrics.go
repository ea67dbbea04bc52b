// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン結果のラベル値。
const (
	SignInProvider = "provider"
	SignInFallback = "fallback"
	SignInRejected = "rejected"
	SignInInvalid  = "invalid_input"
)

// 認可拒否理由のラベル値。
const (
	DenialAnonymous = "anonymous"
	DenialInvalidID = "invalid_id"
	DenialRole      = "role"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(result string)
	RecordAnomaly(kind string)
	RecordAuthzDenial(reason string)
	RecordRouteGuardRedirect()
	RecordRouteGuardFailOpen()
	RecordSessionRefresh(success bool)
	SetLegacyPasswords(count int)
	SetIdentityBreakerState(state float64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn          *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	authzDenials    *prometheus.CounterVec
	guardRedirects  prometheus.Counter
	guardFailOpen   prometheus.Counter
	sessionRefresh  *prometheus.CounterVec
	legacyPasswords prometheus.Gauge
	breakerState    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorhub_sign_in_total",
			Help: "結果別のサインイン試行数",
		}, []string{"result"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorhub_auth_anomalies_total",
			Help: "検知したIdPとローカルDBの不整合数",
		}, []string{"kind"}),
		authzDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorhub_authz_denials_total",
			Help: "理由別の認可拒否数",
		}, []string{"reason"}),
		guardRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorhub_route_guard_redirects_total",
			Help: "保護パスへの未認証アクセスをリダイレクトした数",
		}),
		guardFailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorhub_route_guard_fail_open_total",
			Help: "内部エラーによりルートガードを素通しした数",
		}),
		sessionRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorhub_session_refresh_total",
			Help: "IdPセッション更新の試行数",
		}, []string{"success"}),
		legacyPasswords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mentorhub_legacy_passwords",
			Help: "bcrypt形式に移行されていないパスワードの残数",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mentorhub_identity_breaker_state",
			Help: "IdPサーキットブレーカーの状態（0=closed, 1=half-open, 2=open）",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.anomalies,
		c.authzDenials,
		c.guardRedirects,
		c.guardFailOpen,
		c.sessionRefresh,
		c.legacyPasswords,
		c.breakerState,
	)

	return c
}

// RecordSignIn はサインイン結果を記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIn.WithLabelValues(result).Inc()
}

// RecordAnomaly は不整合の検知を記録する。
func (c *Collector) RecordAnomaly(kind string) {
	c.anomalies.WithLabelValues(kind).Inc()
}

// RecordAuthzDenial は認可拒否を記録する。
func (c *Collector) RecordAuthzDenial(reason string) {
	c.authzDenials.WithLabelValues(reason).Inc()
}

// RecordRouteGuardRedirect はルートガードによるリダイレクトを記録する。
func (c *Collector) RecordRouteGuardRedirect() {
	c.guardRedirects.Inc()
}

// RecordRouteGuardFailOpen はルートガードのfail-openを記録する。
func (c *Collector) RecordRouteGuardFailOpen() {
	c.guardFailOpen.Inc()
}

// RecordSessionRefresh はIdPセッション更新の結果を記録する。
func (c *Collector) RecordSessionRefresh(success bool) {
	label := "false"
	if success {
		label = "true"
	}
	c.sessionRefresh.WithLabelValues(label).Inc()
}

// SetLegacyPasswords は未移行パスワードの残数を設定する。
func (c *Collector) SetLegacyPasswords(count int) {
	c.legacyPasswords.Set(float64(count))
}

// SetIdentityBreakerState はIdPサーキットブレーカーの状態を設定する。
func (c *Collector) SetIdentityBreakerState(state float64) {
	c.breakerState.Set(state)
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordSignIn(string)             {}
func (NopCollector) RecordAnomaly(string)            {}
func (NopCollector) RecordAuthzDenial(string)        {}
func (NopCollector) RecordRouteGuardRedirect()       {}
func (NopCollector) RecordRouteGuardFailOpen()       {}
func (NopCollector) RecordSessionRefresh(bool)       {}
func (NopCollector) SetLegacyPasswords(int)          {}
func (NopCollector) SetIdentityBreakerState(float64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
