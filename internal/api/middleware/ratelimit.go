// ratelimit.go — ограничение частоты запросов по IP клиента.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
	"github.com/Pathlight-Ventures/ga-water/internal/ratelimit"
)

// rateLimitedTotal — количество отклонённых по лимиту запросов.
var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ac_rate_limited_total",
	Help: "Количество запросов, отклонённых ограничением частоты",
})

// RateLimit возвращает middleware, отвечающий 429 при превышении лимита.
// ips == nil — доверенные прокси по умолчанию.
func RateLimit(limiter ratelimit.Limiter, ips *ratelimit.IPResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "rate_limit"))
	if ips == nil {
		ips = ratelimit.DefaultIPResolver()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ips.ClientIP(r)
			if !limiter.Allow(r.Context(), ip) {
				rateLimitedTotal.Inc()
				logger.Warn("Превышен лимит запросов",
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
				)
				apierrors.RateLimited(w, "Слишком много запросов, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
