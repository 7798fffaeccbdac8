// dto.go — типы запросов и ответов API и маппинг domain → API.
package handlers

import (
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/rbac"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
	"github.com/Pathlight-Ventures/ga-water/internal/service"
)

// accountResponse — аккаунт в ответах API.
type accountResponse struct {
	Identity        string       `json:"identity"`
	Email           string       `json:"email"`
	FullName        *string      `json:"full_name,omitempty"`
	Organization    *string      `json:"organization,omitempty"`
	Status          model.Status `json:"status"`
	Role            model.Role   `json:"role"`
	ApprovedBy      *string      `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	RejectionReason *string      `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type accountListResponse struct {
	Items   []accountResponse `json:"items"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

type eventResponse struct {
	ID         openapi_types.UUID `json:"id"`
	Identity   string             `json:"identity"`
	FromStatus model.Status       `json:"from_status,omitempty"`
	ToStatus   model.Status       `json:"to_status"`
	Actor      string             `json:"actor"`
	Reason     *string            `json:"reason,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

type eventListResponse struct {
	Items []eventResponse `json:"items"`
}

type statsResponse struct {
	Total     int                `json:"total"`
	Pending   int                `json:"pending"`
	Approved  int                `json:"approved"`
	Rejected  int                `json:"rejected"`
	Suspended int                `json:"suspended"`
	ByRole    map[model.Role]int `json:"by_role"`
}

// decisionResponse — ответ forward-auth endpoint.
type decisionResponse struct {
	Decision string `json:"decision"`
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason"`
}

// meResponse — текущий пользователь и его возможности.
type meResponse struct {
	Authenticated bool              `json:"authenticated"`
	Identity      string            `json:"identity,omitempty"`
	Email         string            `json:"email,omitempty"`
	Account       *accountResponse  `json:"account,omitempty"`
	Capabilities  []rbac.Capability `json:"capabilities"`
}

// registerRequest — тело POST /api/v1/access/register.
// Email проверяется при декодировании (openapi_types.Email) и может
// отсутствовать, если он есть в токене.
type registerRequest struct {
	Email        openapi_types.Email `json:"email,omitempty"`
	FullName     string              `json:"full_name"`
	Organization string              `json:"organization"`
	Role         string              `json:"role"`
}

// profileRequest — тело PATCH /api/v1/access/me.
// Отсутствующее поле не меняется, пустая строка очищает его.
type profileRequest struct {
	FullName     *string `json:"full_name"`
	Organization *string `json:"organization"`
}

// reasonRequest — тело reject и suspend.
type reasonRequest struct {
	Reason string `json:"reason"`
}

// --- Маппинг domain → API ---

func mapAccount(a *model.Account) accountResponse {
	return accountResponse{
		Identity:        a.Identity,
		Email:           a.Email,
		FullName:        a.FullName,
		Organization:    a.Organization,
		Status:          a.Status,
		Role:            a.Role,
		ApprovedBy:      a.ApprovedBy,
		ApprovedAt:      a.ApprovedAt,
		RejectionReason: a.RejectionReason,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func mapAccountPage(p *service.AccountPage) accountListResponse {
	items := make([]accountResponse, len(p.Items))
	for i, a := range p.Items {
		items[i] = mapAccount(a)
	}
	return accountListResponse{
		Items:   items,
		Total:   p.Total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasMore,
	}
}

// mapEvent конвертирует запись журнала. Невалидный ID даёт нулевой UUID.
func mapEvent(e *model.AccountEvent) eventResponse {
	id, _ := uuid.Parse(e.ID)
	return eventResponse{
		ID:         id,
		Identity:   e.Identity,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		Actor:      e.Actor,
		Reason:     e.Reason,
		CreatedAt:  e.CreatedAt,
	}
}

func mapStats(s *model.AccountStats) statsResponse {
	byRole := make(map[model.Role]int, len(model.AllRoles))
	for _, role := range model.AllRoles {
		byRole[role] = s.ByRole[role]
	}
	return statsResponse{
		Total:     s.Total,
		Pending:   s.Pending,
		Approved:  s.Approved,
		Rejected:  s.Rejected,
		Suspended: s.Suspended,
		ByRole:    byRole,
	}
}

func mapDecision(d routeguard.Decision) decisionResponse {
	resp := decisionResponse{Decision: "allow", Reason: string(d.Reason)}
	if d.Redirect {
		resp.Decision = "redirect"
		resp.Location = d.Location
	}
	return resp
}
