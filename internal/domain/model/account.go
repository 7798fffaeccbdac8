// Пакет model — доменные модели сервиса контроля доступа.
package model

import (
	"fmt"
	"time"
)

// Status — состояние жизненного цикла аккаунта.
type Status string

const (
	// StatusPendingApproval — начальное состояние, аккаунт ждёт решения администратора
	StatusPendingApproval Status = "pending_approval"
	// StatusApproved — аккаунт одобрен
	StatusApproved Status = "approved"
	// StatusRejected — в регистрации отказано (указывается причина)
	StatusRejected Status = "rejected"
	// StatusSuspended — действие аккаунта приостановлено администратором
	StatusSuspended Status = "suspended"
)

// AllStatuses — все состояния в порядке жизненного цикла.
var AllStatuses = []Status{StatusPendingApproval, StatusApproved, StatusRejected, StatusSuspended}

// Valid сообщает, является ли значение допустимым состоянием.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusApproved, StatusRejected, StatusSuspended:
		return true
	default:
		return false
	}
}

// ParseStatus преобразует строку в Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: pending_approval, approved, rejected, suspended", s)
	}
	return st, nil
}

// Role — каноническая роль аккаунта.
type Role string

const (
	RolePublic     Role = "public"
	RoleResearcher Role = "researcher"
	RoleRegulator  Role = "regulator"
	RoleConsultant Role = "consultant"
	RoleAdmin      Role = "admin"
)

// AllRoles — канонический перечень ролей.
var AllRoles = []Role{RolePublic, RoleResearcher, RoleRegulator, RoleConsultant, RoleAdmin}

// Valid сообщает, входит ли роль в канонический перечень.
func (r Role) Valid() bool {
	switch r {
	case RolePublic, RoleResearcher, RoleRegulator, RoleConsultant, RoleAdmin:
		return true
	default:
		return false
	}
}

// Account — профиль пользователя, на основе которого принимаются решения
// о доступе. Хранится в таблице accounts, ключ — внешний идентификатор (sub).
type Account struct {
	// Identity — идентификатор пользователя у провайдера аутентификации
	Identity string
	// Email — адрес электронной почты
	Email string
	// FullName — имя, указанное при регистрации (nil, если не указано)
	FullName *string
	// Organization — организация (nil, если не указана)
	Organization *string
	Status       Status
	Role         Role
	// ApprovedBy — identity администратора, одобрившего аккаунт
	ApprovedBy *string
	// ApprovedAt — время последнего одобрения
	ApprovedAt *time.Time
	// RejectionReason — причина отказа или приостановки
	RejectionReason *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsAdmin сообщает, обладает ли аккаунт правами администратора.
// Роль admin действует только для одобренного аккаунта.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin && a.Status == StatusApproved
}

// AccountEvent — запись журнала изменений статуса аккаунта.
type AccountEvent struct {
	ID         string
	Identity   string
	FromStatus Status
	ToStatus   Status
	// Actor — identity инициатора (для регистрации совпадает с Identity)
	Actor     string
	Reason    *string
	CreatedAt time.Time
}

// AccountFilter — параметры выборки списка аккаунтов.
type AccountFilter struct {
	// Status — фильтр по статусу (nil — все)
	Status *Status
	// Role — фильтр по роли (nil — все)
	Role *Role
	// Search — подстрока для поиска по имени, email и организации
	Search string
	Limit  int
	Offset int
}

// AccountStats — агрегированная статистика по аккаунтам.
type AccountStats struct {
	Total     int
	Pending   int
	Approved  int
	Rejected  int
	Suspended int
	ByRole    map[Role]int
}

// Add учитывает n аккаунтов с указанными статусом и ролью.
func (s *AccountStats) Add(status Status, role Role, n int) {
	if s.ByRole == nil {
		s.ByRole = make(map[Role]int)
	}
	s.Total += n
	s.ByRole[role] += n
	switch status {
	case StatusPendingApproval:
		s.Pending += n
	case StatusApproved:
		s.Approved += n
	case StatusRejected:
		s.Rejected += n
	case StatusSuspended:
		s.Suspended += n
	}
}
