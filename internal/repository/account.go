package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

// StatusUpdate — условное изменение статуса аккаунта (compare-and-swap).
// Поля аудита записываются как есть: nil очищает столбец.
type StatusUpdate struct {
	Identity string
	// Expected — статус, который аккаунт должен иметь в момент записи
	Expected model.Status
	Next     model.Status

	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectionReason *string

	// Actor и Reason попадают в журнал событий
	Actor  string
	Reason *string
}

// ProfileUpdate — изменение полей профиля, которые пользователь правит сам.
// nil — поле не меняется, пустая строка очищает столбец.
type ProfileUpdate struct {
	FullName     *string
	Organization *string
}

// AccountRepository — интерфейс доступа к таблицам accounts и account_events.
type AccountRepository interface {
	// Create создаёт аккаунт в статусе pending_approval и событие регистрации.
	// ErrConflict — аккаунт с таким identity уже существует.
	Create(ctx context.Context, acc *model.Account) error
	// GetByIdentity возвращает аккаунт. ErrNotFound — аккаунта нет.
	GetByIdentity(ctx context.Context, identity string) (*model.Account, error)
	// List возвращает аккаунты по фильтру, новые первыми.
	List(ctx context.Context, filter model.AccountFilter) ([]*model.Account, error)
	// Count возвращает количество аккаунтов по фильтру (без учёта пагинации).
	Count(ctx context.Context, filter model.AccountFilter) (int, error)
	// UpdateProfile меняет имя и организацию. Статус, роль и поля аудита
	// не затрагиваются. ErrNotFound — аккаунта нет.
	UpdateProfile(ctx context.Context, identity string, upd ProfileUpdate) (*model.Account, error)
	// Transition атомарно меняет статус и пишет событие в журнал.
	// ErrNotFound — аккаунта нет, ErrConflict — статус успел измениться.
	Transition(ctx context.Context, upd StatusUpdate) (*model.Account, error)
	// Events возвращает журнал изменений статуса аккаунта, новые первыми.
	Events(ctx context.Context, identity string, limit, offset int) ([]*model.AccountEvent, error)
	// Stats возвращает агрегированную статистику.
	Stats(ctx context.Context) (*model.AccountStats, error)
}

// accountRepo — реализация AccountRepository.
type accountRepo struct {
	db DBTX
	tx *TxRunner
}

// NewAccountRepository создаёт репозиторий аккаунтов.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepo{db: pool, tx: NewTxRunner(pool)}
}

const accountColumns = `identity, email, full_name, organization, status, role,
	approved_by, approved_at, rejection_reason, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	acc := &model.Account{}
	var status, role string
	err := row.Scan(
		&acc.Identity, &acc.Email, &acc.FullName, &acc.Organization, &status, &role,
		&acc.ApprovedBy, &acc.ApprovedAt, &acc.RejectionReason, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acc.Status = model.Status(status)
	acc.Role = model.Role(role)
	return acc, nil
}

func (r *accountRepo) Create(ctx context.Context, acc *model.Account) error {
	acc.Status = model.StatusPendingApproval

	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO accounts (identity, email, full_name, organization, status, role)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			acc.Identity, acc.Email, acc.FullName, acc.Organization, string(acc.Status), string(acc.Role),
		).Scan(&acc.CreatedAt, &acc.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("ошибка создания аккаунта: %w", err)
		}

		return insertEvent(ctx, tx, &model.AccountEvent{
			Identity: acc.Identity,
			ToStatus: acc.Status,
			Actor:    acc.Identity,
		})
	})
}

func (r *accountRepo) GetByIdentity(ctx context.Context, identity string) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE identity = $1`, accountColumns)

	acc, err := scanAccount(r.db.QueryRow(ctx, query, identity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}
	return acc, nil
}

// buildFilter формирует WHERE-условие и аргументы для фильтра.
func buildFilter(filter model.AccountFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, likePattern(s))
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(email ILIKE $%d OR COALESCE(full_name, '') ILIKE $%d OR COALESCE(organization, '') ILIKE $%d)",
			n, n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *accountRepo) List(ctx context.Context, filter model.AccountFilter) ([]*model.Account, error) {
	where, args := buildFilter(filter)
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM accounts%s
		ORDER BY created_at DESC, identity
		LIMIT $%d OFFSET $%d`, accountColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка аккаунтов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования аккаунта: %w", err)
		}
		result = append(result, acc)
	}
	return result, rows.Err()
}

func (r *accountRepo) Count(ctx context.Context, filter model.AccountFilter) (int, error) {
	where, args := buildFilter(filter)

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта аккаунтов: %w", err)
	}
	return count, nil
}

func (r *accountRepo) UpdateProfile(ctx context.Context, identity string, upd ProfileUpdate) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts SET
			full_name = CASE WHEN $2::text IS NULL THEN full_name ELSE NULLIF($2, '') END,
			organization = CASE WHEN $3::text IS NULL THEN organization ELSE NULLIF($3, '') END,
			updated_at = NOW()
		WHERE identity = $1
		RETURNING %s`, accountColumns)

	acc, err := scanAccount(r.db.QueryRow(ctx, query, identity, upd.FullName, upd.Organization))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	return acc, nil
}

func (r *accountRepo) Transition(ctx context.Context, upd StatusUpdate) (*model.Account, error) {
	var result *model.Account

	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			UPDATE accounts SET
				status = $3,
				approved_by = $4,
				approved_at = $5,
				rejection_reason = $6,
				updated_at = NOW()
			WHERE identity = $1 AND status = $2
			RETURNING %s`, accountColumns)

		acc, err := scanAccount(tx.QueryRow(ctx, query,
			upd.Identity, string(upd.Expected), string(upd.Next),
			upd.ApprovedBy, upd.ApprovedAt, upd.RejectionReason,
		))
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("ошибка изменения статуса аккаунта: %w", err)
			}
			// Условие не сработало: аккаунта нет либо статус уже другой.
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM accounts WHERE identity = $1)`, upd.Identity,
			).Scan(&exists); err != nil {
				return fmt.Errorf("ошибка проверки аккаунта: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}

		if err := insertEvent(ctx, tx, &model.AccountEvent{
			Identity:   upd.Identity,
			FromStatus: upd.Expected,
			ToStatus:   upd.Next,
			Actor:      upd.Actor,
			Reason:     upd.Reason,
		}); err != nil {
			return err
		}

		result = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *accountRepo) Events(ctx context.Context, identity string, limit, offset int) ([]*model.AccountEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, identity, from_status, to_status, actor, reason, created_at
		FROM account_events
		WHERE identity = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, identity, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аккаунта: %w", err)
	}
	defer rows.Close()

	result := make([]*model.AccountEvent, 0)
	for rows.Next() {
		ev := &model.AccountEvent{}
		var from *string
		var to string
		if err := rows.Scan(&ev.ID, &ev.Identity, &from, &to, &ev.Actor, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		if from != nil {
			ev.FromStatus = model.Status(*from)
		}
		ev.ToStatus = model.Status(to)
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (r *accountRepo) Stats(ctx context.Context) (*model.AccountStats, error) {
	rows, err := r.db.Query(ctx, `SELECT status, role, COUNT(*) FROM accounts GROUP BY status, role`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}
	defer rows.Close()

	stats := &model.AccountStats{ByRole: make(map[model.Role]int)}
	for rows.Next() {
		var status, role string
		var n int
		if err := rows.Scan(&status, &role, &n); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		stats.Add(model.Status(status), model.Role(role), n)
	}
	return stats, rows.Err()
}

// insertEvent записывает событие журнала внутри транзакции.
func insertEvent(ctx context.Context, db DBTX, ev *model.AccountEvent) error {
	ev.ID = uuid.New().String()

	var from *string
	if ev.FromStatus != "" {
		s := string(ev.FromStatus)
		from = &s
	}

	err := db.QueryRow(ctx, `
		INSERT INTO account_events (id, identity, from_status, to_status, actor, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		ev.ID, ev.Identity, from, string(ev.ToStatus), ev.Actor, ev.Reason,
	).Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи события аккаунта: %w", err)
	}
	return nil
}
