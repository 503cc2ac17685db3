package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 供应商 API 指标
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	// 通知指标
	notificationsTotal *prometheus.CounterVec

	// 价格同步指标
	priceSyncTotal *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		providerCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esim_provider_calls_total",
				Help: "Total number of eSIM provider API calls",
			},
			[]string{"operation", "result"},
		),

		providerCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "esim_provider_call_duration_seconds",
				Help:    "eSIM provider API call duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"operation"},
		),

		notificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocation_notifications_total",
				Help: "Total number of allocation notification deliveries",
			},
			[]string{"channel", "result"},
		),

		priceSyncTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_sync_runs_total",
				Help: "Total number of price sync runs",
			},
			[]string{"status"},
		),
	}
}

// ObserveProviderCall 记录一次供应商 API 调用
func (m *MetricsCollector) ObserveProviderCall(operation, result string, cost time.Duration) {
	m.providerCallsTotal.WithLabelValues(operation, result).Inc()
	m.providerCallDuration.WithLabelValues(operation).Observe(cost.Seconds())
}

// ObserveNotification 记录一次通知发送结果
func (m *MetricsCollector) ObserveNotification(channel, result string) {
	m.notificationsTotal.WithLabelValues(channel, result).Inc()
}

// ObservePriceSync 记录一次价格同步结果
func (m *MetricsCollector) ObservePriceSync(status string) {
	m.priceSyncTotal.WithLabelValues(status).Inc()
}

// GinMiddleware HTTP 指标中间件
func (m *MetricsCollector) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(
			c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.httpRequestDuration.WithLabelValues(
			c.Request.Method, endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler 暴露 /metrics
func (m *MetricsCollector) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
