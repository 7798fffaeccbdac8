// Пакет rbac — роли и возможности (capabilities) аккаунтов.
// Набор возможностей — статическая таблица по канонической роли.
// Возможности выдаются только одобренному аккаунту, анонимный
// пользователь получает набор роли public без всяких условий.
// Устаревшие названия ролей явно отображаются на канонические.
package rbac

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

// Capability — именованное разрешение, которое UI использует для
// отображения элементов управления.
type Capability string

const (
	CapReadPublicData     Capability = "read_public_data"
	CapViewAnalytics      Capability = "view_analytics"
	CapExportData         Capability = "export_data"
	CapReadRegulatoryData Capability = "read_regulatory_data"
	CapImportData         Capability = "import_data"
	CapManageUsers        Capability = "manage_users"
	CapManageSystem       Capability = "manage_system"
)

// ErrUnknownRole — роль не входит ни в канонический, ни в устаревший перечень.
var ErrUnknownRole = errors.New("неизвестная роль")

// ErrRoleNotSelectable — роль нельзя выбрать при регистрации.
var ErrRoleNotSelectable = errors.New("роль недоступна для самостоятельной регистрации")

// legacyAliases — устаревшие роли и их канонические замены.
// Хранятся только канонические значения.
var legacyAliases = map[string]model.Role{
	"operator":   model.RoleConsultant,
	"laboratory": model.RoleResearcher,
	"epd_staff":  model.RoleRegulator,
	"epa_staff":  model.RoleRegulator,
}

// capabilityTable — возможности одобренного аккаунта по роли.
var capabilityTable = map[model.Role][]Capability{
	model.RolePublic: {
		CapReadPublicData, CapViewAnalytics,
	},
	model.RoleResearcher: {
		CapReadPublicData, CapViewAnalytics, CapExportData,
	},
	model.RoleConsultant: {
		CapReadPublicData, CapViewAnalytics, CapExportData,
	},
	model.RoleRegulator: {
		CapReadPublicData, CapViewAnalytics, CapExportData,
		CapReadRegulatoryData, CapImportData,
	},
	model.RoleAdmin: {
		CapReadPublicData, CapViewAnalytics, CapExportData,
		CapReadRegulatoryData, CapImportData,
		CapManageUsers, CapManageSystem,
	},
}

// ResolveRole преобразует строку в каноническую роль.
// legacy = true, если значение было устаревшим названием и заменено алиасом.
func ResolveRole(s string) (role model.Role, legacy bool, err error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if r := model.Role(name); r.Valid() {
		return r, false, nil
	}
	if r, ok := legacyAliases[name]; ok {
		return r, true, nil
	}
	return "", false, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// SignupRole проверяет роль, выбранную при регистрации.
// Роль admin выдаётся только администратором напрямую в хранилище.
func SignupRole(s string) (role model.Role, legacy bool, err error) {
	role, legacy, err = ResolveRole(s)
	if err != nil {
		return "", false, err
	}
	if role == model.RoleAdmin {
		return "", false, fmt.Errorf("%w: %q", ErrRoleNotSelectable, s)
	}
	return role, legacy, nil
}

// Capabilities возвращает набор возможностей для аккаунта.
// nil означает анонимного пользователя.
func Capabilities(acc *model.Account) []Capability {
	if acc == nil {
		return clone(capabilityTable[model.RolePublic])
	}
	if acc.Status != model.StatusApproved {
		return []Capability{}
	}
	return clone(capabilityTable[acc.Role])
}

// Has проверяет наличие возможности у аккаунта.
func Has(acc *model.Account, c Capability) bool {
	return slices.Contains(Capabilities(acc), c)
}

// AllCapabilities возвращает полный перечень возможностей.
func AllCapabilities() []Capability {
	return clone(capabilityTable[model.RoleAdmin])
}

func clone(caps []Capability) []Capability {
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}
