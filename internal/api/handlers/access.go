// access.go — обработчики /api/v1/access endpoints:
// решение guard для шлюза, текущий пользователь, регистрация.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
	"github.com/Pathlight-Ventures/ga-water/internal/api/middleware"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/rbac"
	"github.com/Pathlight-Ventures/ga-water/internal/service"
)

// GetDecision — GET /api/v1/access/decision.
// Путь берётся из query-параметра path или заголовка X-Forwarded-Uri.
// Всегда отвечает 200: решение передаётся в теле.
func (h *APIHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = r.Header.Get("X-Forwarded-Uri")
	}
	// Query-строка исходного запроса не участвует в классификации
	path, _, _ = strings.Cut(path, "?")
	if !strings.HasPrefix(path, "/") {
		apierrors.ValidationError(w, "Не указан путь: ожидается параметр path или заголовок X-Forwarded-Uri")
		return
	}

	decision := h.access.RouteDecision(r.Context(), path, middleware.SubjectFromContext(r.Context()))
	middleware.NoteGuardReason(r.Context(), decision.Reason)
	writeJSON(w, http.StatusOK, mapDecision(decision))
}

// GetMe — GET /api/v1/access/me.
// Анонимный пользователь получает возможности публичной роли,
// пользователь без одобренного аккаунта — пустой набор.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		writeJSON(w, http.StatusOK, meResponse{
			Capabilities: h.access.Capabilities(nil),
		})
		return
	}

	resp := meResponse{
		Authenticated: true,
		Identity:      id.Subject,
		Email:         id.Email,
	}

	acc, err := h.access.LoadAccount(r.Context(), id.Subject)
	switch {
	case errors.Is(err, service.ErrNotFound):
		// Профиль ещё не создан — возможностей нет
		resp.Capabilities = []rbac.Capability{}
	case err != nil:
		h.writeServiceError(w, r, "me", err)
		return
	default:
		mapped := mapAccount(acc)
		resp.Account = &mapped
		resp.Capabilities = h.access.Capabilities(acc)
	}
	if resp.Capabilities == nil {
		resp.Capabilities = []rbac.Capability{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Register — POST /api/v1/access/register.
// Создаёт аккаунт текущего пользователя в статусе pending_approval.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	acc, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Identity:      id.Subject,
		VerifiedEmail: id.Email,
		Email:         string(req.Email),
		FullName:      req.FullName,
		Organization:  req.Organization,
		Role:          req.Role,
	})
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, mapAccount(acc))
}

// UpdateMe — PATCH /api/v1/access/me.
// Пользователь меняет имя и организацию своего аккаунта.
func (h *APIHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	acc, err := h.accounts.UpdateProfile(r.Context(), id.Subject, service.ProfileInput{
		FullName:     req.FullName,
		Organization: req.Organization,
	})
	if err != nil {
		h.writeServiceError(w, r, "update_profile", err)
		return
	}

	writeJSON(w, http.StatusOK, mapAccount(acc))
}
