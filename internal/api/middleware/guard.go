// guard.go — перенаправление пользователей по решению guard перед фронтендом.
package middleware

import (
	"context"
	"net/http"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
)

// RouteDecider вычисляет решение guard для пути.
// identity == "" — анонимный запрос.
type RouteDecider interface {
	RouteDecision(ctx context.Context, path, identity string) routeguard.Decision
}

// Guard возвращает middleware, перенаправляющий запрос (307), если guard
// требует редирект. Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func Guard(decider RouteDecider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := decider.RouteDecision(r.Context(), r.URL.Path, SubjectFromContext(r.Context()))
			NoteGuardReason(r.Context(), decision.Reason)
			if decision.Redirect {
				http.Redirect(w, r, decision.Location, http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
