// handler.go — основной обработчик API.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/lifecycle"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/rbac"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
	"github.com/Pathlight-Ventures/ga-water/internal/service"
)

// AccessService — решения guard и возможности пользователя.
// Реализуется service.AccessService.
type AccessService interface {
	RouteDecision(ctx context.Context, path, identity string) routeguard.Decision
	LoadAccount(ctx context.Context, identity string) (*model.Account, error)
	Capabilities(acc *model.Account) []rbac.Capability
}

// AccountService — регистрация и администрирование аккаунтов.
// Реализуется service.AccountService.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Account, error)
	UpdateProfile(ctx context.Context, identity string, in service.ProfileInput) (*model.Account, error)
	Actor(ctx context.Context, identity string) (*model.Account, error)
	Get(ctx context.Context, actor *model.Account, identity string) (*model.Account, error)
	Approve(ctx context.Context, actor *model.Account, target string) (*model.Account, error)
	Reject(ctx context.Context, actor *model.Account, target, reason string) (*model.Account, error)
	Suspend(ctx context.Context, actor *model.Account, target, reason string) (*model.Account, error)
	ListPending(ctx context.Context, actor *model.Account, limit, offset int) (*service.AccountPage, error)
	List(ctx context.Context, actor *model.Account, filter model.AccountFilter) (*service.AccountPage, error)
	Events(ctx context.Context, actor *model.Account, identity string, limit, offset int) ([]*model.AccountEvent, error)
	Stats(ctx context.Context, actor *model.Account) (*model.AccountStats, error)
}

// APIHandler — обработчик API сервиса контроля доступа.
type APIHandler struct {
	health   *HealthHandler
	access   AccessService
	accounts AccountService
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	access AccessService,
	accounts AccountService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		access:   access,
		accounts: accounts,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Ошибки хранилища не раскрываются клиенту.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var transitionErr *lifecycle.TransitionError

	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, service.ErrForbidden.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Аккаунт не найден")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, service.ErrConflict.Error())
	case errors.As(err, &transitionErr):
		apierrors.InvalidTransition(w, transitionErr.Message)
	case errors.Is(err, service.ErrUnavailable):
		h.logger.Error("Хранилище аккаунтов недоступно",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.StoreUnavailable(w, "Хранилище аккаунтов временно недоступно")
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// queryInt читает целочисленный query-параметр. Отсутствующий параметр — 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// pagination читает limit и offset. Нормализация выполняется сервисом.
func pagination(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
