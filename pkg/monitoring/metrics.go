package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector manages the Prometheus metrics for one service
// process (carl or edgar).
type MetricsCollector struct {
	serviceName string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	serviceInfo         *prometheus.GaugeVec

	PeersConnected        prometheus.Gauge
	ParametersReconciled  *prometheus.CounterVec
	ParametersFailed      *prometheus.CounterVec
	ClusterDeployments    prometheus.Gauge
}

func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	name := strings.ReplaceAll(serviceName, "-", "_")

	mc := &MetricsCollector{serviceName: name}

	mc.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: name + "_http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"method", "endpoint", "status"},
	)
	mc.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: name + "_http_request_duration_seconds", Help: "HTTP request duration in seconds", Buckets: prometheus.DefBuckets},
		[]string{"method", "endpoint"},
	)
	mc.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: name + "_service_info", Help: "Service build information"},
		[]string{"version", "commit"},
	)
	mc.PeersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: name + "_peers_connected", Help: "Number of peers currently holding an open broker stream"},
	)
	mc.ParametersReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: name + "_parameters_reconciled_total", Help: "Parameters successfully reconciled by the edge applier"},
		[]string{"kind"},
	)
	mc.ParametersFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: name + "_parameters_failed_total", Help: "Parameters whose reconciliation failed"},
		[]string{"kind"},
	)
	mc.ClusterDeployments = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: name + "_cluster_deployments", Help: "Number of active cluster deployments"},
	)

	prometheus.MustRegister(mc.httpRequestsTotal, mc.httpRequestDuration, mc.serviceInfo,
		mc.PeersConnected, mc.ParametersReconciled, mc.ParametersFailed, mc.ClusterDeployments)

	mc.serviceInfo.WithLabelValues(version, commit).Set(1)
	return mc
}

func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		mc.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		mc.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}
