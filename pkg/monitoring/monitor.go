package monitoring

import (
	"strconv"
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
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// AIRequestCounter 生成式服务调用次数，outcome 为 success / error / timeout
	AIRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of generative service requests",
		},
		[]string{"kind", "outcome"},
	)

	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Duration of generative service requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"kind"},
	)

	// QuestionGenerationCounter outcome 为 accepted / rejected / skipped
	QuestionGenerationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "question_generation_total",
			Help: "Generated question candidates by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// FeedbackCounter source 为 exact / model / fallback
	FeedbackCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_total",
			Help: "Evaluated learner answers by question type and scoring source",
		},
		[]string{"type", "source"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AIRequestCounter)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(QuestionGenerationCounter)
	prometheus.MustRegister(FeedbackCounter)
}

// ObserveAIRequest 记录一次生成式服务调用
func ObserveAIRequest(kind, outcome string, elapsed time.Duration) {
	AIRequestCounter.WithLabelValues(kind, outcome).Inc()
	AIRequestDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
