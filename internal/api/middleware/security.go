// security.go — заголовки безопасности и блокировка автоматизированных клиентов.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
)

// securityHeaders — заголовки, добавляемые к каждому ответу.
var securityHeaders = map[string]string{
	"X-DNS-Prefetch-Control":            "off",
	"X-Download-Options":                "noopen",
	"X-Permitted-Cross-Domain-Policies": "none",
	"X-Content-Type-Options":            "nosniff",
	"X-Frame-Options":                   "DENY",
	"Referrer-Policy":                   "strict-origin-when-cross-origin",
}

// SecurityHeaders возвращает middleware, добавляющий заголовки безопасности.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range securityHeaders {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BlockUserAgents возвращает middleware, отвечающий 403, если User-Agent
// содержит один из шаблонов (без учёта регистра).
func BlockUserAgents(patterns []string, logger *slog.Logger) func(http.Handler) http.Handler {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	logger = logger.With(slog.String("component", "ua_filter"))

	return func(next http.Handler) http.Handler {
		if len(lowered) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := strings.ToLower(r.UserAgent())
			for _, p := range lowered {
				if strings.Contains(ua, p) {
					logger.Warn("Запрос заблокирован по User-Agent",
						slog.String("user_agent", r.UserAgent()),
						slog.String("pattern", p),
						slog.String("path", r.URL.Path),
					)
					apierrors.Forbidden(w, "Доступ запрещён")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
