// auth.go — определение личности пользователя по JWT провайдера аутентификации.
// Токен берётся из заголовка Authorization (Bearer) или из cookie сессии,
// подпись проверяется по JWKS. Middleware никогда не отклоняет запрос:
// отсутствующий или невалидный токен означает анонимного пользователя.
// Если ключи провайдера недоступны, запрос помечается для degraded mode guard.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
)

// ErrProviderUnavailable — токен нельзя проверить: ключи провайдера не загружены.
var ErrProviderUnavailable = errors.New("провайдер аутентификации недоступен")

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyIdentity — личность пользователя в контексте запроса.
	ContextKeyIdentity contextKey = "identity"
)

// Identity — аутентифицированный пользователь.
type Identity struct {
	// Subject — sub из JWT, ключ аккаунта
	Subject string
	Email   string
}

// sessionClaims — claims токена провайдера.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTAuth — middleware определения личности через JWKS.
type JWTAuth struct {
	jwks keyfunc.Keyfunc
	// provider — состояние загрузки JWKS (nil — ключи заданы статически)
	provider      *providerHealth
	logger        *slog.Logger
	issuer        string
	sessionCookie string
	jwtLeeway     time.Duration
}

// AuthOptions — параметры JWTAuth.
type AuthOptions struct {
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer string
	// SessionCookie — имя cookie с access token (пусто — только заголовок)
	SessionCookie string
	Leeway        time.Duration
}

// NewJWTAuth создаёт middleware с JWKS, загружаемым по jwksURL.
// clientTimeout — таймаут HTTP-клиента JWKS,
// refreshInterval — интервал фонового обновления ключей.
func NewJWTAuth(
	jwksURL string,
	opts AuthOptions,
	clientTimeout time.Duration,
	refreshInterval time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	health := &providerHealth{}

	// NoErrorReturnFirstHTTPReq — стартуем даже если провайдер ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client: &http.Client{
			Timeout:   clientTimeout,
			Transport: &fetchRecorder{next: http.DefaultTransport, health: health},
		},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			health.failed.Store(true)
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	health.keys = storage
	auth := NewJWTAuthWithKeyfunc(k, opts, logger)
	auth.provider = health
	return auth, nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с предоставленной keyfunc.
// Используется в тестах для подстановки JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, opts AuthOptions, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:          kf,
		logger:        logger.With(slog.String("component", "jwt_auth")),
		issuer:        opts.Issuer,
		sessionCookie: opts.SessionCookie,
		jwtLeeway:     opts.Leeway,
	}
}

// Middleware возвращает HTTP middleware, помещающий Identity в контекст
// при валидном токене.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := j.Resolve(r)
			switch {
			case err != nil:
				j.logger.Warn("Провайдер аутентификации недоступен, личность не проверена (degraded mode)",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				noteAuthDegraded(r.Context())
				r = r.WithContext(routeguard.WithAuthUnavailable(r.Context(), err))
			case id != nil:
				noteIdentity(r.Context(), id.Subject)
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Resolve возвращает личность пользователя запроса или nil для анонимного.
// Ошибка (ErrProviderUnavailable) возвращается только когда токен нельзя
// проверить из-за недоступности JWKS. Невалидный токен ошибкой не считается.
func (j *JWTAuth) Resolve(r *http.Request) (*Identity, error) {
	tokenString := j.extractToken(r)
	if tokenString == "" {
		return nil, nil
	}

	claims := &sessionClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenUnverifiable) && j.provider.unavailable(r.Context()) {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		j.logger.Debug("JWT валидация не пройдена, запрос анонимный",
			slog.Any("error", err),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return nil, nil
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, nil
	}

	return &Identity{Subject: subject, Email: claims.Email}, nil
}

// providerHealth — состояние JWKS провайдера.
type providerHealth struct {
	keys   jwkset.Storage
	failed atomic.Bool
}

// unavailable сообщает, что последняя загрузка JWKS не удалась
// или ключей нет совсем.
func (p *providerHealth) unavailable(ctx context.Context) bool {
	if p == nil {
		return false
	}
	if p.failed.Load() {
		return true
	}
	if p.keys == nil {
		return false
	}
	all, err := p.keys.KeyReadAll(ctx)
	return err != nil || len(all) == 0
}

// fetchRecorder запоминает исход каждого HTTP-запроса за JWKS.
type fetchRecorder struct {
	next   http.RoundTripper
	health *providerHealth
}

func (f *fetchRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := f.next.RoundTrip(req)
	f.health.failed.Store(err != nil || resp.StatusCode != http.StatusOK)
	return resp, err
}

// extractToken возвращает токен из Authorization: Bearer или из cookie сессии.
func (j *JWTAuth) extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if j.sessionCookie == "" {
		return ""
	}
	cookie, err := r.Cookie(j.sessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// RequireIdentity возвращает middleware, отвечающий 401 анонимным запросам.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IdentityFromContext(r.Context()) == nil {
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// IdentityFromContext извлекает Identity из контекста запроса.
// Возвращает nil для анонимного запроса.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*Identity)
	return id
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку для анонимного запроса.
func SubjectFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.Subject
}

// WithIdentity возвращает контекст с Identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// --- ReadinessChecker для JWKS ---

const statusFail = "fail"

// JWKSReadinessChecker — проверка доступности JWKS провайдера аутентификации.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL string, timeout time.Duration) *JWKSReadinessChecker {
	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// CheckReady проверяет, что JWKS отдаёт хотя бы один ключ.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
