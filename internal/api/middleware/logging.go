// logging.go — журнал HTTP-запросов: одна запись на запрос с личностью
// пользователя и причиной решения guard.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
)

// requestInfo — то, что внутренние middleware сообщают журналу запроса.
// Заполняется в горутине запроса, читается после ответа.
type requestInfo struct {
	identity     string
	guardReason  routeguard.Reason
	authDegraded bool
}

type requestInfoKey struct{}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// NoteGuardReason сохраняет причину решения guard для журнала запроса.
func NoteGuardReason(ctx context.Context, reason routeguard.Reason) {
	if info := requestInfoFrom(ctx); info != nil {
		info.guardReason = reason
	}
}

func noteIdentity(ctx context.Context, subject string) {
	if info := requestInfoFrom(ctx); info != nil {
		info.identity = subject
	}
}

func noteAuthDegraded(ctx context.Context) {
	if info := requestInfoFrom(ctx); info != nil {
		info.authDegraded = true
	}
}

// statusRecorder запоминает код и размер ответа.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController и reverse proxy (Flush).
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// RequestLogger пишет запись о каждом запросе. 5xx — ERROR, 4xx — WARN,
// запросы, пропущенные в degraded mode, тоже WARN.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if info.identity != "" {
				attrs = append(attrs, slog.String("identity", info.identity))
			}
			if info.guardReason != "" {
				attrs = append(attrs, slog.String("guard_reason", string(info.guardReason)))
			}
			if info.authDegraded {
				attrs = append(attrs, slog.Bool("auth_degraded", true))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status >= http.StatusBadRequest, info.guardReason == routeguard.ReasonDegraded:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
