// admin.go — обработчики /api/v1/admin endpoints.
// Доступ только для одобренных администраторов, права проверяются
// по свежему аккаунту инициатора на каждый запрос.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Pathlight-Ventures/ga-water/internal/api/errors"
	"github.com/Pathlight-Ventures/ga-water/internal/api/middleware"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

// actor загружает аккаунт инициатора. При ошибке ответ уже записан.
func (h *APIHandler) actor(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return nil, false
	}

	acc, err := h.accounts.Actor(r.Context(), subject)
	if err != nil {
		h.writeServiceError(w, r, "actor", err)
		return nil, false
	}
	return acc, true
}

// ListPendingAccounts — GET /api/v1/admin/accounts/pending.
func (h *APIHandler) ListPendingAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректные параметры пагинации")
		return
	}

	page, err := h.accounts.ListPending(r.Context(), actor, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "list_pending", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccountPage(page))
}

// ListAccounts — GET /api/v1/admin/accounts?status&role&q&limit&offset.
func (h *APIHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page, err := h.accounts.List(r.Context(), actor, filter)
	if err != nil {
		h.writeServiceError(w, r, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccountPage(page))
}

// GetAccount — GET /api/v1/admin/accounts/{identity}.
func (h *APIHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	acc, err := h.accounts.Get(r.Context(), actor, chi.URLParam(r, "identity"))
	if err != nil {
		h.writeServiceError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// ListAccountEvents — GET /api/v1/admin/accounts/{identity}/events.
func (h *APIHandler) ListAccountEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректные параметры пагинации")
		return
	}

	events, err := h.accounts.Events(r.Context(), actor, chi.URLParam(r, "identity"), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "events", err)
		return
	}

	resp := eventListResponse{Items: make([]eventResponse, len(events))}
	for i, e := range events {
		resp.Items[i] = mapEvent(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApproveAccount — POST /api/v1/admin/accounts/{identity}/approve.
func (h *APIHandler) ApproveAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	acc, err := h.accounts.Approve(r.Context(), actor, chi.URLParam(r, "identity"))
	if err != nil {
		h.writeServiceError(w, r, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// RejectAccount — POST /api/v1/admin/accounts/{identity}/reject.
// Права проверяются раньше тела запроса: не-администратор получает 403
// даже с пустой причиной.
func (h *APIHandler) RejectAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := decodeReason(w, r)
	if !ok {
		return
	}

	acc, err := h.accounts.Reject(r.Context(), actor, chi.URLParam(r, "identity"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// SuspendAccount — POST /api/v1/admin/accounts/{identity}/suspend.
// Тело с причиной необязательно.
func (h *APIHandler) SuspendAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := decodeReason(w, r)
	if !ok {
		return
	}

	acc, err := h.accounts.Suspend(r.Context(), actor, chi.URLParam(r, "identity"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "suspend", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// GetStats — GET /api/v1/admin/stats.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	stats, err := h.accounts.Stats(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, mapStats(stats))
}

// decodeReason читает {"reason": "..."}. Пустое тело допустимо.
func decodeReason(w http.ResponseWriter, r *http.Request) (reasonRequest, bool) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return req, false
	}
	return req, true
}

// parseFilter читает параметры фильтра списка аккаунтов.
func parseFilter(r *http.Request) (model.AccountFilter, error) {
	var filter model.AccountFilter
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if raw := q.Get("role"); raw != "" {
		role := model.Role(raw)
		if !role.Valid() {
			return filter, errors.New("недопустимая роль: " + raw)
		}
		filter.Role = &role
	}
	filter.Search = q.Get("q")

	var err error
	if filter.Limit, filter.Offset, err = pagination(r); err != nil {
		return filter, errors.New("некорректные параметры пагинации")
	}
	return filter, nil
}
