package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	DBSlowQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	DBSlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// 任务操作计数
	TaskOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_operations_total",
			Help: "Total number of task operations by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: ok, error
	)

	// 用户缓存命中
	UserCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_cache_results_total",
			Help: "User identity cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, error
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery records one slow statement. Only the leading SQL verb is used as a label.
func IncrementSlowQuery(sql string, duration time.Duration) {
	DBSlowQueryTotal.WithLabelValues(statementKind(sql)).Inc()
	DBSlowQueryDuration.Observe(duration.Seconds())
}

// RecordTaskOperation 记录任务操作结果
func RecordTaskOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	TaskOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func RecordUserCache(result string) {
	UserCacheResults.WithLabelValues(result).Inc()
}

func statementKind(sql string) string {
	for i := 0; i < len(sql); i++ {
		if sql[i] == ' ' || sql[i] == '\n' || sql[i] == '\t' {
			continue
		}
		end := i
		for end < len(sql) && sql[end] != ' ' && sql[end] != '\n' && sql[end] != '\t' {
			end++
		}
		switch kind := sql[i:end]; kind {
		case "SELECT", "select", "INSERT", "insert", "UPDATE", "update", "DELETE", "delete", "WITH", "with":
			return kind
		}
		break
	}
	return "other"
}
