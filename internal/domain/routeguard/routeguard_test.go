package routeguard

import (
	"errors"
	"net/url"
	"testing"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

// found возвращает Lookup, отдающий указанный аккаунт.
func found(status model.Status, role model.Role) Lookup {
	return func() (*model.Account, error) {
		return &model.Account{Identity: "user-1", Status: status, Role: role}, nil
	}
}

func notFound() (*model.Account, error) { return nil, nil }

// mustNotLookup падает, если решение обратилось к хранилищу.
func mustNotLookup(t *testing.T) Lookup {
	t.Helper()
	return func() (*model.Account, error) {
		t.Error("lookup не должен вызываться")
		return nil, nil
	}
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		path string
		want Category
	}{
		{"/settings", CategoryProtected},
		{"/settings/profile", CategoryProtected},
		{"/admin", CategoryProtected},
		{"/admin/users", CategoryProtected},
		{"/auth/login", CategoryAuth},
		{"/auth/signup/confirm", CategoryAuth},
		{"/auth/pending-approval", 0},
		{"/", CategoryPublic},
		{"/analytics", CategoryPublic},
		{"/analytics/trends", 0},
		{"/map", CategoryPublic},
		{"/search", CategoryPublic},
		{"/systems/GA0010000", 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := cfg.Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q) = %b, ожидается %b", tt.path, got, tt.want)
			}
		})
	}
}

func TestClassify_MultipleCategories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Public = append(cfg.Public, "/settings")

	got := cfg.Classify("/settings")
	if !got.Has(CategoryProtected) || !got.Has(CategoryPublic) {
		t.Errorf("Classify(/settings) = %b, ожидаются protected и public", got)
	}
}

func TestDecide_AnonymousProtected(t *testing.T) {
	cfg := DefaultConfig()

	for _, path := range []string{"/settings", "/admin/users", "/settings/notifications"} {
		d, err := cfg.Decide(path, false, mustNotLookup(t))
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if !d.Redirect || d.Reason != ReasonLoginRequired {
			t.Fatalf("%s: ожидался редирект на логин, получено %+v", path, d)
		}
		u, err := url.Parse(d.Location)
		if err != nil {
			t.Fatalf("некорректный Location %q: %v", d.Location, err)
		}
		if u.Path != "/auth/login" {
			t.Errorf("%s: путь редиректа %q, ожидается /auth/login", path, u.Path)
		}
		if got := u.Query().Get("redirectTo"); got != path {
			t.Errorf("%s: redirectTo = %q", path, got)
		}
	}
}

// TestDecide_RedirectToRoundTrip — после входа redirectTo ведёт на разрешённый маршрут.
func TestDecide_RedirectToRoundTrip(t *testing.T) {
	cfg := DefaultConfig()

	d, _ := cfg.Decide("/settings/profile", false, mustNotLookup(t))
	u, _ := url.Parse(d.Location)
	target := u.Query().Get("redirectTo")

	d, err := cfg.Decide(target, true, found(model.StatusApproved, model.RoleResearcher))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if d.Redirect {
		t.Errorf("после входа ожидался allow, получено %+v", d)
	}
}

func TestDecide_AnonymousPublicAndOther(t *testing.T) {
	cfg := DefaultConfig()

	for _, path := range []string{"/", "/analytics", "/auth/login", "/systems/GA0010000"} {
		d, err := cfg.Decide(path, false, mustNotLookup(t))
		if err != nil || d.Redirect {
			t.Errorf("%s: ожидался allow, получено %+v, %v", path, d, err)
		}
	}
}

func TestDecide_AuthenticatedOnAuthRoute(t *testing.T) {
	cfg := DefaultConfig()

	// Статус аккаунта не важен, хранилище не опрашивается.
	d, err := cfg.Decide("/auth/signup", true, mustNotLookup(t))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !d.Redirect || d.Location != "/settings" || d.Reason != ReasonAlreadyAuthenticated {
		t.Errorf("ожидался редирект на /settings, получено %+v", d)
	}
}

func TestDecide_AccountStatus(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		lookup   Lookup
		path     string
		wantLoc  string
		wantWhy  Reason
		redirect bool
	}{
		{"нет аккаунта, protected", notFound, "/settings", "/auth/pending-approval", ReasonAccountNotFound, true},
		{"нет аккаунта, public", notFound, "/map", "/auth/pending-approval", ReasonAccountNotFound, true},
		{"pending, settings", found(model.StatusPendingApproval, model.RolePublic), "/settings", "/auth/pending-approval", ReasonPendingApproval, true},
		{"pending, public", found(model.StatusPendingApproval, model.RoleRegulator), "/analytics", "/auth/pending-approval", ReasonPendingApproval, true},
		{"rejected", found(model.StatusRejected, model.RolePublic), "/search", "/auth/account-rejected", ReasonRejected, true},
		{"suspended", found(model.StatusSuspended, model.RoleResearcher), "/settings", "/auth/account-suspended", ReasonSuspended, true},
		{"suspended admin, admin path", found(model.StatusSuspended, model.RoleAdmin), "/admin", "/auth/account-suspended", ReasonSuspended, true},
		{"rejected admin, admin path", found(model.StatusRejected, model.RoleAdmin), "/admin/users", "/auth/account-rejected", ReasonRejected, true},
		{"approved non-admin, admin path", found(model.StatusApproved, model.RoleRegulator), "/admin/users", "/settings", ReasonAdminRequired, true},
		{"approved non-admin, settings", found(model.StatusApproved, model.RolePublic), "/settings", "", ReasonAllowed, false},
		{"approved admin, admin path", found(model.StatusApproved, model.RoleAdmin), "/admin/users", "", ReasonAllowed, false},
		{"approved, public", found(model.StatusApproved, model.RoleConsultant), "/", "", ReasonAllowed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := cfg.Decide(tt.path, true, tt.lookup)
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if d.Redirect != tt.redirect || d.Location != tt.wantLoc || d.Reason != tt.wantWhy {
				t.Errorf("Decide(%q) = %+v, ожидается redirect=%v location=%q reason=%s",
					tt.path, d, tt.redirect, tt.wantLoc, tt.wantWhy)
			}
		})
	}
}

// TestDecide_PendingOnAllGuardedPaths — pending-аккаунт всегда уходит на ожидание одобрения.
func TestDecide_PendingOnAllGuardedPaths(t *testing.T) {
	cfg := DefaultConfig()
	paths := append([]string{}, cfg.Public...)
	paths = append(paths, "/settings", "/settings/x", "/admin", "/admin/stats")

	for _, role := range model.AllRoles {
		for _, path := range paths {
			d, err := cfg.Decide(path, true, found(model.StatusPendingApproval, role))
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if !d.Redirect || d.Location != cfg.PendingRoute {
				t.Errorf("%s/%s: ожидался редирект на %s, получено %+v", role, path, cfg.PendingRoute, d)
			}
		}
	}
}

func TestDecide_UnguardedPathSkipsLookup(t *testing.T) {
	cfg := DefaultConfig()

	d, err := cfg.Decide("/auth/pending-approval", true, mustNotLookup(t))
	if err != nil || d.Redirect {
		t.Errorf("ожидался allow без обращения к хранилищу, получено %+v, %v", d, err)
	}
}

func TestDecide_LookupError(t *testing.T) {
	cfg := DefaultConfig()
	storeErr := errors.New("connection refused")

	_, err := cfg.Decide("/settings", true, func() (*model.Account, error) {
		return nil, storeErr
	})
	if !errors.Is(err, storeErr) {
		t.Errorf("ожидалась ошибка хранилища, получено %v", err)
	}
}

func TestDecide_CustomConfig(t *testing.T) {
	cfg := Config{
		Protected:      []string{"/dashboard"},
		Auth:           []string{"/login"},
		Public:         []string{"/home"},
		AdminPrefix:    "/dashboard/admin",
		LoginRoute:     "/login",
		SettingsRoute:  "/dashboard",
		PendingRoute:   "/wait",
		RejectedRoute:  "/denied",
		SuspendedRoute: "/paused",
	}

	d, _ := cfg.Decide("/dashboard/admin", true, found(model.StatusApproved, model.RoleResearcher))
	if d.Location != "/dashboard" {
		t.Errorf("ожидался редирект на /dashboard, получено %+v", d)
	}
	d, _ = cfg.Decide("/settings", false, mustNotLookup(t))
	if d.Redirect {
		t.Errorf("/settings не защищён в этой конфигурации, получено %+v", d)
	}
	d, _ = cfg.Decide("/home", true, found(model.StatusSuspended, model.RolePublic))
	if d.Location != "/paused" {
		t.Errorf("ожидался редирект на /paused, получено %+v", d)
	}
}
