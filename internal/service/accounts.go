// accounts.go — регистрация аккаунтов и административное управление ими.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/lifecycle"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/rbac"
	"github.com/Pathlight-Ventures/ga-water/internal/repository"
)

// Ограничения пагинации административных списков.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// RegisterInput — данные, указанные пользователем при регистрации.
type RegisterInput struct {
	Identity string
	// VerifiedEmail — email из токена провайдера (пусто, если в токене его нет)
	VerifiedEmail string
	// Email — email из тела запроса, должен совпадать с VerifiedEmail
	Email        string
	FullName     string
	Organization string
	// Role — выбранная роль, допускаются устаревшие названия
	Role string
}

// ProfileInput — поля профиля, которые пользователь меняет сам.
// nil — поле не меняется, пустая строка очищает его.
type ProfileInput struct {
	FullName     *string
	Organization *string
}

// Максимальная длина полей профиля.
const maxProfileFieldLen = 200

// AccountPage — страница списка аккаунтов.
type AccountPage struct {
	Items   []*model.Account
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// AccountService — управление жизненным циклом аккаунтов.
type AccountService struct {
	repo   repository.AccountRepository
	cache  *AccountCache
	now    func() time.Time
	logger *slog.Logger
}

// NewAccountService создаёт сервис управления аккаунтами.
// cache может быть nil.
func NewAccountService(repo repository.AccountRepository, cache *AccountCache, logger *slog.Logger) *AccountService {
	return &AccountService{
		repo:   repo,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "account_service")),
	}
}

// Register создаёт аккаунт в статусе pending_approval.
// Роль admin недоступна, устаревшие роли заменяются каноническими.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	if in.Identity == "" {
		return nil, fmt.Errorf("%w: не указан identity", ErrValidation)
	}
	email, err := registrationEmail(in.VerifiedEmail, in.Email)
	if err != nil {
		return nil, err
	}

	role, legacy, err := rbac.SignupRole(in.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if legacy {
		s.logger.Warn("Устаревшая роль заменена канонической",
			slog.String("identity", in.Identity),
			slog.String("requested", in.Role),
			slog.String("role", string(role)),
		)
	}

	acc := &model.Account{
		Identity:     in.Identity,
		Email:        email,
		FullName:     optional(in.FullName),
		Organization: optional(in.Organization),
		Role:         role,
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%w: создание аккаунта: %w", ErrUnavailable, err)
	}
	s.cache.Delete(acc.Identity)

	s.logger.Info("Аккаунт зарегистрирован, ожидает одобрения",
		slog.String("identity", acc.Identity),
		slog.String("role", string(acc.Role)),
	)
	return acc, nil
}

// registrationEmail выбирает email аккаунта: подтверждённый провайдером
// имеет приоритет, указанный в теле должен с ним совпадать.
func registrationEmail(verified, requested string) (string, error) {
	verified = strings.TrimSpace(verified)
	requested = strings.TrimSpace(requested)
	switch {
	case verified == "" && requested == "":
		return "", fmt.Errorf("%w: не указан email", ErrValidation)
	case verified == "":
		return requested, nil
	case requested != "" && !strings.EqualFold(requested, verified):
		return "", fmt.Errorf("%w: email не совпадает с адресом учётной записи провайдера", ErrValidation)
	default:
		return verified, nil
	}
}

// UpdateProfile меняет имя и организацию собственного аккаунта.
// Статус, роль и поля аудита не затрагиваются.
func (s *AccountService) UpdateProfile(ctx context.Context, identity string, in ProfileInput) (*model.Account, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: не указан identity", ErrValidation)
	}
	if in.FullName == nil && in.Organization == nil {
		return nil, fmt.Errorf("%w: нет полей для изменения", ErrValidation)
	}

	upd := repository.ProfileUpdate{
		FullName:     trimmed(in.FullName),
		Organization: trimmed(in.Organization),
	}
	for _, v := range []*string{upd.FullName, upd.Organization} {
		if v != nil && len([]rune(*v)) > maxProfileFieldLen {
			return nil, fmt.Errorf("%w: поле профиля длиннее %d символов", ErrValidation, maxProfileFieldLen)
		}
	}

	acc, err := s.repo.UpdateProfile(ctx, identity, upd)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: обновление профиля: %w", ErrUnavailable, err)
	}
	s.cache.Delete(identity)

	s.logger.Info("Профиль обновлён", slog.String("identity", identity))
	return acc, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// Actor загружает аккаунт инициатора административного действия.
// Читает хранилище напрямую, минуя кэш.
func (s *AccountService) Actor(ctx context.Context, identity string) (*model.Account, error) {
	acc, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return acc, nil
}

// Get возвращает аккаунт по identity.
func (s *AccountService) Get(ctx context.Context, actor *model.Account, identity string) (*model.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.get(ctx, identity)
}

// Approve одобряет аккаунт. Повторное одобрение обновляет поля аудита.
func (s *AccountService) Approve(ctx context.Context, actor *model.Account, target string) (*model.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	now := s.now()
	return s.transition(ctx, actor, target, lifecycle.ActionApprove, nil,
		func(_ *model.Account, upd *repository.StatusUpdate) {
			upd.ApprovedBy = &actor.Identity
			upd.ApprovedAt = &now
		})
}

// Reject отклоняет аккаунт с обязательной причиной.
// Поля одобрения очищаются.
func (s *AccountService) Reject(ctx context.Context, actor *model.Account, target, reason string) (*model.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: причина отказа обязательна", ErrValidation)
	}
	if target == actor.Identity {
		return nil, fmt.Errorf("%w: нельзя отклонить собственный аккаунт", ErrValidation)
	}

	return s.transition(ctx, actor, target, lifecycle.ActionReject, &reason,
		func(_ *model.Account, upd *repository.StatusUpdate) {
			upd.RejectionReason = &reason
		})
}

// Suspend приостанавливает одобренный аккаунт.
// Поля одобрения сохраняются, причина необязательна.
func (s *AccountService) Suspend(ctx context.Context, actor *model.Account, target, reason string) (*model.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if target == actor.Identity {
		return nil, fmt.Errorf("%w: нельзя приостановить собственный аккаунт", ErrValidation)
	}

	r := optional(reason)
	return s.transition(ctx, actor, target, lifecycle.ActionSuspend, r,
		func(cur *model.Account, upd *repository.StatusUpdate) {
			upd.ApprovedBy = cur.ApprovedBy
			upd.ApprovedAt = cur.ApprovedAt
			upd.RejectionReason = r
		})
}

// transition проверяет переход по автомату и выполняет условное обновление.
func (s *AccountService) transition(
	ctx context.Context,
	actor *model.Account,
	target string,
	action lifecycle.Action,
	reason *string,
	fill func(cur *model.Account, upd *repository.StatusUpdate),
) (*model.Account, error) {
	cur, err := s.get(ctx, target)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Apply(cur.Status, action)
	if err != nil {
		return nil, err
	}

	upd := repository.StatusUpdate{
		Identity: target,
		Expected: cur.Status,
		Next:     next,
		Actor:    actor.Identity,
		Reason:   reason,
	}
	fill(cur, &upd)

	acc, err := s.repo.Transition(ctx, upd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			s.logger.Warn("Конкурентное изменение статуса аккаунта",
				slog.String("identity", target),
				slog.String("action", string(action)),
				slog.String("actor", actor.Identity),
			)
			return nil, ErrConflict
		default:
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	s.cache.Delete(target)

	s.logger.Info("Статус аккаунта изменён",
		slog.String("identity", target),
		slog.String("action", string(action)),
		slog.String("from", string(cur.Status)),
		slog.String("to", string(next)),
		slog.String("actor", actor.Identity),
	)
	return acc, nil
}

// ListPending возвращает аккаунты, ожидающие одобрения.
func (s *AccountService) ListPending(ctx context.Context, actor *model.Account, limit, offset int) (*AccountPage, error) {
	status := model.StatusPendingApproval
	return s.List(ctx, actor, model.AccountFilter{Status: &status, Limit: limit, Offset: offset})
}

// List возвращает аккаунты по фильтру.
func (s *AccountService) List(ctx context.Context, actor *model.Account, filter model.AccountFilter) (*AccountPage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &AccountPage{
		Items:   items,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		HasMore: filter.Offset+len(items) < total,
	}, nil
}

// Events возвращает журнал изменений статуса аккаунта.
func (s *AccountService) Events(ctx context.Context, actor *model.Account, identity string, limit, offset int) ([]*model.AccountEvent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.get(ctx, identity); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)

	events, err := s.repo.Events(ctx, identity, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return events, nil
}

// Stats возвращает статистику аккаунтов по статусам и ролям.
func (s *AccountService) Stats(ctx context.Context, actor *model.Account) (*model.AccountStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return stats, nil
}

func (s *AccountService) get(ctx context.Context, identity string) (*model.Account, error) {
	acc, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return acc, nil
}

// requireAdmin проверяет, что инициатор — одобренный администратор.
func requireAdmin(actor *model.Account) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
