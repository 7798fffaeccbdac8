// Пакет server — HTTP-сервер контроля доступа с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Pathlight-Ventures/ga-water/internal/api/handlers"
	"github.com/Pathlight-Ventures/ga-water/internal/api/middleware"
	"github.com/Pathlight-Ventures/ga-water/internal/config"
	"github.com/Pathlight-Ventures/ga-water/internal/ratelimit"
)

// Deps — зависимости HTTP-сервера.
type Deps struct {
	Handler *handlers.APIHandler
	// Auth — определение личности по JWT (nil — все запросы анонимные)
	Auth *middleware.JWTAuth
	// Validator — проверка запросов по OpenAPI (может быть nil)
	Validator *middleware.RequestValidator
	// Guard — решения по маршрутам фронтенда
	Guard   middleware.RouteDecider
	Limiter ratelimit.Limiter
	// ClientIPs — определение IP клиента для лимита (nil — доверенные прокси по умолчанию)
	ClientIPs *ratelimit.IPResolver
	// Upstream — прокси к фронтенду (nil — только API)
	Upstream http.Handler
}

// Server — HTTP-сервер сервиса контроля доступа.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты:
//   - /health/*, /metrics — без аутентификации
//   - /api/v1/access/* — решение guard, текущий пользователь, регистрация
//   - /api/v1/admin/* — администрирование аккаунтов
//   - остальное — guard и прокси к фронтенду (если задан)
func NewRouter(cfg *config.Config, logger *slog.Logger, deps Deps) http.Handler {
	router := chi.NewRouter()
	h := deps.Handler

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.Disabled{}
	}

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())

	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Middleware())
		}

		r.Route("/api/v1", func(r chi.Router) {
			if deps.Validator != nil {
				r.Use(deps.Validator.Middleware())
			}

			r.Get("/access/decision", h.GetDecision)
			r.Get("/access/me", h.GetMe)
			r.With(middleware.RequireIdentity()).Patch("/access/me", h.UpdateMe)
			r.With(
				middleware.BlockUserAgents(cfg.BlockedUserAgents, logger),
				middleware.RateLimit(limiter, deps.ClientIPs, logger),
				middleware.RequireIdentity(),
			).Post("/access/register", h.Register)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireIdentity())

				r.Get("/accounts", h.ListAccounts)
				r.Get("/accounts/pending", h.ListPendingAccounts)
				r.Get("/accounts/{identity}", h.GetAccount)
				r.Get("/accounts/{identity}/events", h.ListAccountEvents)
				r.Post("/accounts/{identity}/approve", h.ApproveAccount)
				r.Post("/accounts/{identity}/reject", h.RejectAccount)
				r.Post("/accounts/{identity}/suspend", h.SuspendAccount)
				r.Get("/stats", h.GetStats)
			})
		})

		if deps.Upstream != nil && deps.Guard != nil {
			r.With(
				middleware.BlockUserAgents(cfg.BlockedUserAgents, logger),
				middleware.RateLimit(limiter, deps.ClientIPs, logger),
				middleware.Guard(deps.Guard),
			).Handle("/*", deps.Upstream)
		}
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
