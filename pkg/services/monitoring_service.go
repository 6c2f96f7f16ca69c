package services

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"retail-forecast-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader リクエストごとの相関ID
const RequestIDHeader = "X-Request-ID"

// maxLogEntries メモリ上に保持するリクエストログの上限
const maxLogEntries = 10000

// Metrics 推論パイプラインのprometheusコレクター
type Metrics struct {
	ArtifactLoads      *prometheus.CounterVec
	ArtifactLoadErrors *prometheus.CounterVec
	Predictions        *prometheus.CounterVec
	PredictedRows      prometheus.Histogram
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics コレクターを作成してregに登録する。regがnilの場合は登録しない
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ArtifactLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forecast",
			Name:      "artifact_loads_total",
			Help:      "Successful artifact loads from durable storage.",
		}, []string{"artifact"}),
		ArtifactLoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forecast",
			Name:      "artifact_load_errors_total",
			Help:      "Failed artifact loads.",
		}, []string{"artifact"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forecast",
			Name:      "predictions_total",
			Help:      "Prediction requests by model and outcome.",
		}, []string{"model", "outcome"}),
		PredictedRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast",
			Name:      "predicted_rows",
			Help:      "Rows scored per prediction request.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forecast",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.ArtifactLoads, m.ArtifactLoadErrors, m.Predictions, m.PredictedRows, m.RequestDuration)
	}
	return m
}

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	RequestID    string        `json:"requestId"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	metrics *Metrics
	logs    []LogEntry
	mu      sync.RWMutex
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService(metrics *Metrics) *MonitoringService {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &MonitoringService{
		metrics: metrics,
		logs:    make([]LogEntry, 0),
	}
}

// LogRequest はリクエストを記録します。古いエントリから破棄されます。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxLogEntries; over > 0 {
		s.logs = append([]LogEntry(nil), s.logs[over:]...)
	}
}

// LoggingMiddleware はリクエストIDを付与し、構造化ログとメトリクスを記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		// 未登録のルートはパスのカーディナリティを抑えるためまとめる
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		s.metrics.RequestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": elapsed.Milliseconds(),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}

		if route == "/monitoring/logs" || route == "/metrics" {
			return
		}
		s.LogRequest(LogEntry{
			Timestamp:    start,
			RequestID:    requestID,
			Path:         c.Request.URL.Path,
			Method:       c.Request.Method,
			StatusCode:   status,
			ResponseTime: elapsed,
		})
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      map[string]int           `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
}

// GetDashboardData は指定された期間のログを時間単位で集計します。
func (s *MonitoringService) GetDashboardData(periodHours int, now time.Time) DashboardData {
	if periodHours < 1 {
		periodHours = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now = now.UTC()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	// 過去から現在へ向かう順序で時間バケットを用意する
	first := now.Truncate(time.Hour).Add(-time.Duration(periodHours-1) * time.Hour)
	buckets := make([]int, periodHours)
	for _, entry := range filtered {
		idx := int(entry.Timestamp.UTC().Truncate(time.Hour).Sub(first) / time.Hour)
		if idx >= 0 && idx < periodHours {
			buckets[idx]++
		}
	}
	requestsOverTime := make([]map[string]interface{}, periodHours)
	for i := range buckets {
		requestsOverTime[i] = map[string]interface{}{
			"time":     first.Add(time.Duration(i) * time.Hour).Format("15:00"),
			"requests": buckets[i],
		}
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{"2xx": 0, "4xx": 0, "5xx": 0}
	sum := make(map[string]time.Duration)
	for _, entry := range filtered {
		endpoints[entry.Path]++
		sum[entry.Path] += entry.ResponseTime
		switch {
		case entry.StatusCode >= 500:
			statusCodes["5xx"]++
		case entry.StatusCode >= 400:
			statusCodes["4xx"]++
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			statusCodes["2xx"]++
		}
	}

	paths := make([]string, 0, len(sum))
	for p := range sum {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	avgResponseTimes := make([]map[string]interface{}, 0, len(paths))
	for _, p := range paths {
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{
			"endpoint":     p,
			"responseTime": sum[p].Milliseconds() / int64(endpoints[p]),
		})
	}

	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
	}
}
