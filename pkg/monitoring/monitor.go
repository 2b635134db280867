package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	// AttemptCounter op: start/start_over/resume/update/external; result: ok 或错误分类
	AttemptCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_attempts_total",
			Help: "Total number of lesson attempt operations",
		},
		[]string{"op", "result"},
	)

	RollupCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_rollups_total",
			Help: "Total number of course/module rollups",
		},
		[]string{"mode", "result"},
	)

	RollupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracking_rollup_duration_seconds",
			Help:    "Duration of course/module rollups",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	RollupQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracking_rollup_queue_depth",
			Help: "Pending detached rollup tasks",
		},
	)
)

var registerOnce sync.Once

// Init 重复调用安全，测试中多次构建路由不会 panic
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(AttemptCounter)
		prometheus.MustRegister(RollupCounter)
		prometheus.MustRegister(RollupDuration)
		prometheus.MustRegister(RollupQueueDepth)
	})
}

// MetricsMiddleware 以路由模板作为 endpoint 标签
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
