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
// ミドルウェア、通知、ワーカーから利用する。
type MetricsCollector interface {
	RecordAccessDecision(kind string)
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
	RecordNotification(channel string, ok bool)
	ObserveCacheRequest(hit bool)
	RecordRemindersSent(count int)
	RecordEventsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	accessDecisions *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestDuration prometheus.Histogram
	notifications   *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	remindersSent   prometheus.Counter
	eventsPurged    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevent_access_decisions_total",
			Help: "アクセス判定の結果種別ごとの件数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevent_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campusevent_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevent_notifications_total",
			Help: "通知チャネルと結果ごとの送信件数",
		}, []string{"channel", "result"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevent_cache_requests_total",
			Help: "キャッシュ参照のヒット/ミス件数",
		}, []string{"result"}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusevent_reminders_sent_total",
			Help: "リマインダーを送信したイベントの合計数",
		}),
		eventsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusevent_events_purged_total",
			Help: "保持期間を過ぎて削除されたイベントの合計数",
		}),
	}

	reg.MustRegister(
		c.accessDecisions,
		c.httpStatus,
		c.requestDuration,
		c.notifications,
		c.cacheRequests,
		c.remindersSent,
		c.eventsPurged,
	)

	return c
}

// RecordAccessDecision はアクセス判定の結果を記録する。
func (c *Collector) RecordAccessDecision(kind string) {
	c.accessDecisions.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// RecordNotification は通知の送信結果を記録する。
func (c *Collector) RecordNotification(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.notifications.WithLabelValues(channel, result).Inc()
}

// ObserveCacheRequest はキャッシュのヒット/ミスを記録する。
func (c *Collector) ObserveCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheRequests.WithLabelValues(result).Inc()
}

// RecordRemindersSent はリマインダーを送信したイベント数を記録する。
func (c *Collector) RecordRemindersSent(count int) {
	c.remindersSent.Add(float64(count))
}

// RecordEventsPurged は削除されたイベント数を記録する。
func (c *Collector) RecordEventsPurged(count int64) {
	c.eventsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
