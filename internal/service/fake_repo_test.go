package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
	"github.com/Pathlight-Ventures/ga-water/internal/repository"
)

// memoryRepo — in-memory реализация AccountRepository для unit-тестов.
// Повторяет семантику условного обновления PostgreSQL-репозитория.
type memoryRepo struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	events   []*model.AccountEvent
	gets     int

	// failWith — ошибка для всех операций (имитация недоступности)
	failWith error
	// beforeTransition вызывается перед CAS (для имитации гонки)
	beforeTransition func()
}

func newMemoryRepo(accounts ...model.Account) *memoryRepo {
	r := &memoryRepo{accounts: make(map[string]model.Account)}
	for _, a := range accounts {
		r.accounts[a.Identity] = a
	}
	return r
}

func (r *memoryRepo) Create(_ context.Context, acc *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.accounts[acc.Identity]; ok {
		return repository.ErrConflict
	}
	acc.Status = model.StatusPendingApproval
	acc.CreatedAt = time.Now().UTC()
	acc.UpdatedAt = acc.CreatedAt
	r.accounts[acc.Identity] = *acc
	r.events = append(r.events, &model.AccountEvent{
		Identity: acc.Identity, ToStatus: acc.Status, Actor: acc.Identity, CreatedAt: acc.CreatedAt,
	})
	return nil
}

func (r *memoryRepo) GetByIdentity(_ context.Context, identity string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.failWith != nil {
		return nil, r.failWith
	}
	acc, ok := r.accounts[identity]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &acc, nil
}

func (r *memoryRepo) match(acc model.Account, f model.AccountFilter) bool {
	if f.Status != nil && acc.Status != *f.Status {
		return false
	}
	if f.Role != nil && acc.Role != *f.Role {
		return false
	}
	if q := strings.ToLower(f.Search); q != "" {
		hay := strings.ToLower(acc.Email)
		if acc.FullName != nil {
			hay += " " + strings.ToLower(*acc.FullName)
		}
		if acc.Organization != nil {
			hay += " " + strings.ToLower(*acc.Organization)
		}
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

func (r *memoryRepo) filtered(f model.AccountFilter) []*model.Account {
	var out []*model.Account
	for _, acc := range r.accounts {
		if r.match(acc, f) {
			a := acc
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (r *memoryRepo) List(_ context.Context, f model.AccountFilter) ([]*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	all := r.filtered(f)
	if f.Offset >= len(all) {
		return []*model.Account{}, nil
	}
	end := min(f.Offset+f.Limit, len(all))
	return all[f.Offset:end], nil
}

func (r *memoryRepo) Count(_ context.Context, f model.AccountFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	return len(r.filtered(f)), nil
}

func (r *memoryRepo) Transition(_ context.Context, upd repository.StatusUpdate) (*model.Account, error) {
	if r.beforeTransition != nil {
		r.beforeTransition()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	acc, ok := r.accounts[upd.Identity]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if acc.Status != upd.Expected {
		return nil, repository.ErrConflict
	}
	acc.Status = upd.Next
	acc.ApprovedBy = upd.ApprovedBy
	acc.ApprovedAt = upd.ApprovedAt
	acc.RejectionReason = upd.RejectionReason
	acc.UpdatedAt = time.Now().UTC()
	r.accounts[upd.Identity] = acc
	r.events = append(r.events, &model.AccountEvent{
		Identity: upd.Identity, FromStatus: upd.Expected, ToStatus: upd.Next,
		Actor: upd.Actor, Reason: upd.Reason, CreatedAt: acc.UpdatedAt,
	})
	return &acc, nil
}

func (r *memoryRepo) UpdateProfile(_ context.Context, identity string, upd repository.ProfileUpdate) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	acc, ok := r.accounts[identity]
	if !ok {
		return nil, repository.ErrNotFound
	}
	set := func(dst **string, v *string) {
		switch {
		case v == nil:
		case *v == "":
			*dst = nil
		default:
			val := *v
			*dst = &val
		}
	}
	set(&acc.FullName, upd.FullName)
	set(&acc.Organization, upd.Organization)
	acc.UpdatedAt = time.Now().UTC()
	r.accounts[identity] = acc
	return &acc, nil
}

func (r *memoryRepo) Events(_ context.Context, identity string, limit, offset int) ([]*model.AccountEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []*model.AccountEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Identity == identity {
			out = append(out, r.events[i])
		}
	}
	if offset >= len(out) {
		return []*model.AccountEvent{}, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (r *memoryRepo) Stats(_ context.Context) (*model.AccountStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	stats := &model.AccountStats{ByRole: make(map[model.Role]int)}
	for _, acc := range r.accounts {
		stats.Add(acc.Status, acc.Role, 1)
	}
	return stats, nil
}

func (r *memoryRepo) account(identity string) model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[identity]
}

func (r *memoryRepo) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// testLogger возвращает логгер, отбрасывающий вывод.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func adminAccount() model.Account {
	return model.Account{Identity: "admin-1", Email: "admin@epd.ga.gov", Role: model.RoleAdmin, Status: model.StatusApproved}
}

func pendingAccount(identity string, role model.Role) model.Account {
	return model.Account{Identity: identity, Email: identity + "@example.org", Role: role, Status: model.StatusPendingApproval}
}
