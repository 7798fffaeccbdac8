// access.go — решения guard и вычисление возможностей текущего пользователя.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/rbac"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
	"github.com/Pathlight-Ventures/ga-water/internal/repository"
)

var (
	guardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ac_guard_decisions_total",
		Help: "Решения guard по маршрутам.",
	}, []string{"decision", "reason"})

	guardDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ac_guard_degraded_total",
		Help: "Запросы, пропущенные guard из-за недоступности хранилища или провайдера аутентификации.",
	}, []string{"cause"})
)

// AccountReader — чтение аккаунта по identity.
type AccountReader interface {
	GetByIdentity(ctx context.Context, identity string) (*model.Account, error)
}

// AccessService отвечает на два вопроса: доступен ли маршрут
// и какие возможности показать в UI.
type AccessService struct {
	accounts AccountReader
	cache    *AccountCache
	routes   routeguard.Config
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAccessService создаёт сервис контроля доступа.
// timeout ограничивает одно обращение к хранилищу (0 — без ограничения).
func NewAccessService(
	accounts AccountReader,
	cache *AccountCache,
	routes routeguard.Config,
	timeout time.Duration,
	logger *slog.Logger,
) *AccessService {
	return &AccessService{
		accounts: accounts,
		cache:    cache,
		routes:   routes,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "access_service")),
	}
}

// Routes возвращает конфигурацию маршрутов.
func (s *AccessService) Routes() routeguard.Config {
	return s.routes
}

// LoadAccount возвращает аккаунт пользователя.
// ErrNotFound — профиль ещё не создан, это ожидаемый исход.
// ErrUnavailable — хранилище не ответило или вернуло ошибку.
func (s *AccessService) LoadAccount(ctx context.Context, identity string) (*model.Account, error) {
	if acc, ok := s.cache.Get(identity); ok {
		return acc, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	acc, err := s.accounts.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.cache.Set(acc)
	return acc, nil
}

// RouteDecision вычисляет решение для пути. identity == "" — анонимный запрос.
// Сбой хранилища или провайдера аутентификации (routeguard.AuthUnavailable
// в ctx) не блокирует запрос: решение — allow, событие логируется.
func (s *AccessService) RouteDecision(ctx context.Context, path, identity string) routeguard.Decision {
	authenticated := identity != ""

	var decision routeguard.Decision
	if cause := routeguard.AuthUnavailable(ctx); cause != nil && !authenticated {
		guardDegradedTotal.WithLabelValues("auth_provider").Inc()
		s.logger.Warn("Провайдер аутентификации недоступен, запрос пропущен (degraded mode)",
			slog.String("path", path),
			slog.String("error", cause.Error()),
		)
		decision = routeguard.Allow(routeguard.ReasonDegraded)
	} else {
		var err error
		decision, err = s.routes.Decide(path, authenticated, func() (*model.Account, error) {
			acc, err := s.LoadAccount(ctx, identity)
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return acc, err
		})
		if err != nil {
			guardDegradedTotal.WithLabelValues("store").Inc()
			s.logger.Warn("Хранилище аккаунтов недоступно, запрос пропущен (degraded mode)",
				slog.String("path", path),
				slog.String("identity", identity),
				slog.String("error", err.Error()),
			)
			decision = routeguard.Allow(routeguard.ReasonDegraded)
		}
	}

	kind := "allow"
	if decision.Redirect {
		kind = "redirect"
	}
	guardDecisionsTotal.WithLabelValues(kind, string(decision.Reason)).Inc()

	if decision.Redirect {
		s.logger.Debug("Guard: редирект",
			slog.String("path", path),
			slog.String("location", decision.Location),
			slog.String("reason", string(decision.Reason)),
		)
	}

	return decision
}

// Capabilities возвращает возможности аккаунта (nil — анонимный пользователь).
func (s *AccessService) Capabilities(acc *model.Account) []rbac.Capability {
	return rbac.Capabilities(acc)
}
