// metrics.go — Prometheus HTTP метрики.
// Регистрирует метрики: ac_http_requests_total, ac_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ac_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ac_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет identity в пути на {identity}, а пути
// фронтенда сводит к одному лейблу для ограничения кардинальности.
// /api/v1/admin/accounts/u-123/approve → /api/v1/admin/accounts/{identity}/approve
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/access/decision",
		"/api/v1/access/me",
		"/api/v1/access/register",
		"/api/v1/admin/accounts",
		"/api/v1/admin/accounts/pending",
		"/api/v1/admin/stats":
		return path
	}

	const accountsPrefix = "/api/v1/admin/accounts/"
	if rest, ok := strings.CutPrefix(path, accountsPrefix); ok && rest != "" {
		_, action, hasAction := strings.Cut(rest, "/")
		if !hasAction {
			return accountsPrefix + "{identity}"
		}
		switch action {
		case "events", "approve", "reject", "suspend":
			return accountsPrefix + "{identity}/" + action
		}
		return accountsPrefix + "{identity}/other"
	}

	if strings.HasPrefix(path, "/api/") {
		return "/api/other"
	}
	return "/upstream"
}
