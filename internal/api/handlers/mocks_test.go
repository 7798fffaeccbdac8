package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Pathlight-Ventures/ga-water/internal/api/middleware"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/rbac"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
	"github.com/Pathlight-Ventures/ga-water/internal/service"
)

// mockAccess — мок AccessService.
type mockAccess struct {
	decideFn func(path, identity string) routeguard.Decision
	loadFn   func(identity string) (*model.Account, error)
}

func (m *mockAccess) RouteDecision(_ context.Context, path, identity string) routeguard.Decision {
	return m.decideFn(path, identity)
}

func (m *mockAccess) LoadAccount(_ context.Context, identity string) (*model.Account, error) {
	return m.loadFn(identity)
}

func (m *mockAccess) Capabilities(acc *model.Account) []rbac.Capability {
	return rbac.Capabilities(acc)
}

// mockAccounts — мок AccountService. Незаданные функции не должны вызываться.
type mockAccounts struct {
	registerFn      func(in service.RegisterInput) (*model.Account, error)
	updateProfileFn func(identity string, in service.ProfileInput) (*model.Account, error)
	actorFn         func(identity string) (*model.Account, error)
	getFn           func(actor *model.Account, identity string) (*model.Account, error)
	approveFn       func(actor *model.Account, target string) (*model.Account, error)
	rejectFn        func(actor *model.Account, target, reason string) (*model.Account, error)
	suspendFn       func(actor *model.Account, target, reason string) (*model.Account, error)
	listPendingFn   func(actor *model.Account, limit, offset int) (*service.AccountPage, error)
	listFn          func(actor *model.Account, filter model.AccountFilter) (*service.AccountPage, error)
	eventsFn        func(actor *model.Account, identity string, limit, offset int) ([]*model.AccountEvent, error)
	statsFn         func(actor *model.Account) (*model.AccountStats, error)
}

func (m *mockAccounts) Register(_ context.Context, in service.RegisterInput) (*model.Account, error) {
	return m.registerFn(in)
}

func (m *mockAccounts) UpdateProfile(_ context.Context, identity string, in service.ProfileInput) (*model.Account, error) {
	return m.updateProfileFn(identity, in)
}

func (m *mockAccounts) Actor(_ context.Context, identity string) (*model.Account, error) {
	return m.actorFn(identity)
}

func (m *mockAccounts) Get(_ context.Context, actor *model.Account, identity string) (*model.Account, error) {
	return m.getFn(actor, identity)
}

func (m *mockAccounts) Approve(_ context.Context, actor *model.Account, target string) (*model.Account, error) {
	return m.approveFn(actor, target)
}

func (m *mockAccounts) Reject(_ context.Context, actor *model.Account, target, reason string) (*model.Account, error) {
	return m.rejectFn(actor, target, reason)
}

func (m *mockAccounts) Suspend(_ context.Context, actor *model.Account, target, reason string) (*model.Account, error) {
	return m.suspendFn(actor, target, reason)
}

func (m *mockAccounts) ListPending(_ context.Context, actor *model.Account, limit, offset int) (*service.AccountPage, error) {
	return m.listPendingFn(actor, limit, offset)
}

func (m *mockAccounts) List(_ context.Context, actor *model.Account, filter model.AccountFilter) (*service.AccountPage, error) {
	return m.listFn(actor, filter)
}

func (m *mockAccounts) Events(_ context.Context, actor *model.Account, identity string, limit, offset int) ([]*model.AccountEvent, error) {
	return m.eventsFn(actor, identity, limit, offset)
}

func (m *mockAccounts) Stats(_ context.Context, actor *model.Account) (*model.AccountStats, error) {
	return m.statsFn(actor)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// testAccount создаёт аккаунт с указанными статусом и ролью.
func testAccount(identity string, status model.Status, role model.Role) *model.Account {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Account{
		Identity:  identity,
		Email:     identity + "@example.com",
		Status:    status,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// newTestRouter собирает маршруты так же, как сервер.
func newTestRouter(h *APIHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/access/decision", h.GetDecision)
	r.Get("/api/v1/access/me", h.GetMe)
	r.Patch("/api/v1/access/me", h.UpdateMe)
	r.Post("/api/v1/access/register", h.Register)
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Get("/accounts", h.ListAccounts)
		r.Get("/accounts/pending", h.ListPendingAccounts)
		r.Get("/accounts/{identity}", h.GetAccount)
		r.Get("/accounts/{identity}/events", h.ListAccountEvents)
		r.Post("/accounts/{identity}/approve", h.ApproveAccount)
		r.Post("/accounts/{identity}/reject", h.RejectAccount)
		r.Post("/accounts/{identity}/suspend", h.SuspendAccount)
		r.Get("/stats", h.GetStats)
	})
	return r
}

// doRequest выполняет запрос от имени subject ("" — анонимно).
func doRequest(handler http.Handler, method, target, body, subject string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req = req.WithContext(middleware.WithIdentity(req.Context(), &middleware.Identity{
			Subject: subject,
			Email:   subject + "@example.com",
		}))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// doRequestWithHeader выполняет GET с дополнительным заголовком.
func doRequestWithHeader(handler http.Handler, target, header, value, subject string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(header, value)
	if subject != "" {
		req = req.WithContext(middleware.WithIdentity(req.Context(), &middleware.Identity{Subject: subject}))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}
