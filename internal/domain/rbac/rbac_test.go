package rbac

import (
	"errors"
	"slices"
	"testing"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

func TestResolveRole(t *testing.T) {
	tests := []struct {
		input      string
		want       model.Role
		wantLegacy bool
		wantErr    bool
	}{
		{input: "public", want: model.RolePublic},
		{input: "researcher", want: model.RoleResearcher},
		{input: " Regulator ", want: model.RoleRegulator},
		{input: "consultant", want: model.RoleConsultant},
		{input: "admin", want: model.RoleAdmin},
		{input: "operator", want: model.RoleConsultant, wantLegacy: true},
		{input: "laboratory", want: model.RoleResearcher, wantLegacy: true},
		{input: "epd_staff", want: model.RoleRegulator, wantLegacy: true},
		{input: "epa_staff", want: model.RoleRegulator, wantLegacy: true},
		{input: "superuser", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, legacy, err := ResolveRole(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRole) {
					t.Fatalf("ResolveRole(%q): ожидалась ErrUnknownRole, получено %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRole(%q): неожиданная ошибка: %v", tt.input, err)
			}
			if got != tt.want || legacy != tt.wantLegacy {
				t.Errorf("ResolveRole(%q) = (%q, %v), хотели (%q, %v)", tt.input, got, legacy, tt.want, tt.wantLegacy)
			}
		})
	}
}

func TestSignupRole_AdminNotSelectable(t *testing.T) {
	if _, _, err := SignupRole("admin"); !errors.Is(err, ErrRoleNotSelectable) {
		t.Errorf("SignupRole(admin): ожидалась ErrRoleNotSelectable, получено %v", err)
	}
	role, legacy, err := SignupRole("epa_staff")
	if err != nil || role != model.RoleRegulator || !legacy {
		t.Errorf("SignupRole(epa_staff) = (%q, %v, %v)", role, legacy, err)
	}
}

func TestCapabilities_Anonymous(t *testing.T) {
	caps := Capabilities(nil)
	if !slices.Contains(caps, CapReadPublicData) || !slices.Contains(caps, CapViewAnalytics) {
		t.Errorf("анонимный пользователь должен получить набор public, получено %v", caps)
	}
	if slices.Contains(caps, CapManageUsers) {
		t.Error("анонимный пользователь не должен получать manage_users")
	}
}

func TestCapabilities_OnlyWhenApproved(t *testing.T) {
	for _, role := range model.AllRoles {
		for _, status := range model.AllStatuses {
			acc := &model.Account{Identity: "u1", Role: role, Status: status}
			caps := Capabilities(acc)
			if status != model.StatusApproved && len(caps) != 0 {
				t.Errorf("%s/%s: ожидался пустой набор, получено %v", role, status, caps)
			}
			if status == model.StatusApproved && len(caps) == 0 {
				t.Errorf("%s/%s: ожидался непустой набор", role, status)
			}
		}
	}
}

func TestCapabilities_AdminRequiresApproval(t *testing.T) {
	admin := &model.Account{Role: model.RoleAdmin, Status: model.StatusApproved}
	if !Has(admin, CapManageUsers) {
		t.Error("одобренный admin должен иметь manage_users")
	}

	for _, status := range []model.Status{model.StatusPendingApproval, model.StatusRejected, model.StatusSuspended} {
		acc := &model.Account{Role: model.RoleAdmin, Status: status}
		if Has(acc, CapManageUsers) {
			t.Errorf("admin в статусе %s не должен иметь manage_users", status)
		}
		if acc.IsAdmin() {
			t.Errorf("admin в статусе %s не должен считаться администратором", status)
		}
	}
}

func TestCapabilities_ByRole(t *testing.T) {
	approved := func(r model.Role) *model.Account {
		return &model.Account{Role: r, Status: model.StatusApproved}
	}

	if Has(approved(model.RolePublic), CapExportData) {
		t.Error("public не должен иметь export_data")
	}
	if !Has(approved(model.RoleResearcher), CapExportData) {
		t.Error("researcher должен иметь export_data")
	}
	if Has(approved(model.RoleConsultant), CapImportData) {
		t.Error("consultant не должен иметь import_data")
	}
	if !Has(approved(model.RoleRegulator), CapReadRegulatoryData) {
		t.Error("regulator должен иметь read_regulatory_data")
	}
	if Has(approved(model.RoleRegulator), CapManageUsers) {
		t.Error("regulator не должен иметь manage_users")
	}
	if got := Capabilities(approved(model.RoleAdmin)); len(got) != len(AllCapabilities()) {
		t.Errorf("admin должен иметь все возможности, получено %v", got)
	}
}

func TestCapabilities_ReturnsCopy(t *testing.T) {
	caps := Capabilities(nil)
	caps[0] = CapManageSystem
	if Has(nil, CapManageSystem) {
		t.Error("изменение результата не должно влиять на таблицу")
	}
}
