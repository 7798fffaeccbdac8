// Пакет database — пул соединений с хранилищем аккаунтов,
// встроенные миграции схемы и readiness-проверка.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pathlight-Ventures/ga-water/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// applicationName — имя клиента в pg_stat_activity.
	applicationName = "access-control"
	connectTimeout  = 10 * time.Second
)

// PoolConfig собирает настройки пула из конфигурации сервиса.
func PoolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN хранилища аккаунтов: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MaxConnLifetime = cfg.DBConnMaxLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	return poolCfg, nil
}

// Connect открывает пул и проверяет, что база отвечает.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("хранилище аккаунтов недоступно: %w", err)
	}

	logger.Info("Хранилище аккаунтов подключено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// migrateLogger направляет сообщения golang-migrate в slog на уровне DEBUG.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}

// Migrate приводит схему accounts/account_events к последней версии.
// Повторный запуск без новых миграций ошибкой не считается.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{logger: logger.With(slog.String("component", "migrate"))}

	before, _, _ := m.Version()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Схема хранилища аккаунтов актуальна",
		slog.Uint64("from_version", uint64(before)),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// ReadinessChecker — readiness-проверка хранилища аккаунтов.
type ReadinessChecker struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку для health endpoint.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool, timeout: 3 * time.Second}
}

// CheckReady пингует базу. Исчерпанный пул — degraded: guard ещё отвечает,
// но обращения к хранилищу ждут соединения.
func (c *ReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("хранилище аккаунтов недоступно: %v", err)
	}

	stat := c.pool.Stat()
	if stat.MaxConns() > 0 && stat.AcquiredConns() >= stat.MaxConns() {
		return "degraded", fmt.Sprintf("пул исчерпан: занято %d из %d соединений", stat.AcquiredConns(), stat.MaxConns())
	}
	return "ok", fmt.Sprintf("соединений: %d из %d", stat.TotalConns(), stat.MaxConns())
}
