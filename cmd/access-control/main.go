// Точка входа сервиса контроля доступа ga-water.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт сервисный слой и API handlers, запускает topologymetrics
// и HTTP-сервер с guard перед фронтендом и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/Pathlight-Ventures/ga-water/internal/api/handlers"
	"github.com/Pathlight-Ventures/ga-water/internal/api/middleware"
	"github.com/Pathlight-Ventures/ga-water/internal/api/openapi"
	"github.com/Pathlight-Ventures/ga-water/internal/config"
	"github.com/Pathlight-Ventures/ga-water/internal/database"
	"github.com/Pathlight-Ventures/ga-water/internal/domain/routeguard"
	"github.com/Pathlight-Ventures/ga-water/internal/ratelimit"
	"github.com/Pathlight-Ventures/ga-water/internal/repository"
	"github.com/Pathlight-Ventures/ga-water/internal/server"
	"github.com/Pathlight-Ventures/ga-water/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Сервис контроля доступа запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("AC_DEPHEALTH_GROUP") == "" {
		logger.Warn("AC_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repository и сервисы
	accountRepo := repository.NewAccountRepository(pool)
	cache := service.NewAccountCache(cfg.AccountCacheSize, cfg.AccountCacheTTL)

	routes := routeguard.Config{
		Protected:      cfg.ProtectedPrefixes,
		Auth:           cfg.AuthPrefixes,
		Public:         cfg.PublicPaths,
		AdminPrefix:    cfg.AdminPrefix,
		LoginRoute:     cfg.LoginRoute,
		SettingsRoute:  cfg.SettingsRoute,
		PendingRoute:   cfg.PendingRoute,
		RejectedRoute:  cfg.RejectedRoute,
		SuspendedRoute: cfg.SuspendedRoute,
	}
	accessSvc := service.NewAccessService(accountRepo, cache, routes, cfg.StoreTimeout, logger)
	accountSvc := service.NewAccountService(accountRepo, cache, logger)

	// 6. Rate limiter
	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer closeLimiter()

	// 7. JWT middleware (JWKS с фоновым обновлением)
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		middleware.AuthOptions{
			Issuer:        cfg.JWTIssuer,
			SessionCookie: cfg.SessionCookie,
			Leeway:        cfg.JWTLeeway,
		},
		cfg.JWKSTimeout,
		cfg.JWKSRefreshInterval,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 8. Валидация запросов по OpenAPI
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Readiness checkers (PostgreSQL + JWKS) и API handler
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSTimeout),
	)
	apiHandler := handlers.NewAPIHandler(healthHandler, accessSvc, accountSvc, logger)

	// 10. Прокси к фронтенду (опционально)
	var upstream http.Handler
	if cfg.UpstreamURL != "" {
		upstream, err = server.NewUpstreamProxy(cfg.UpstreamURL, logger)
		if err != nil {
			logger.Error("Ошибка создания прокси", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Guard перед фронтендом включён", slog.String("upstream", cfg.UpstreamURL))
	}

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "access-control",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. HTTP-сервер
	clientIPs, err := ratelimit.NewIPResolver(cfg.TrustedProxies)
	if err != nil {
		logger.Error("Некорректный список доверенных прокси", slog.String("error", err.Error()))
		os.Exit(1)
	}
	srv := server.New(cfg, logger, server.Deps{
		Handler:   apiHandler,
		Auth:      jwtAuth,
		Validator: validator,
		Guard:     accessSvc,
		Limiter:   limiter,
		ClientIPs: clientIPs,
		Upstream:  upstream,
	})

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
	}

	// 13. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Сервис контроля доступа остановлен")
}

// newLimiter создаёт ограничитель частоты по AC_RATE_LIMIT_BACKEND.
// Возвращает функцию освобождения ресурсов.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, func()) {
	if cfg.RateLimitRequests == 0 {
		logger.Info("Ограничение частоты запросов отключено")
		return ratelimit.Disabled{}, func() {}
	}

	logger.Info("Ограничение частоты запросов",
		slog.String("backend", cfg.RateLimitBackend),
		slog.Int("requests", cfg.RateLimitRequests),
		slog.String("window", cfg.RateLimitWindow.String()),
	)

	switch cfg.RateLimitBackend {
	case config.RateLimitBackendToken:
		l := ratelimit.NewTokenBucket(cfg.RateLimitRequests, cfg.RateLimitWindow)
		return l, l.Close

	case config.RateLimitBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		l := ratelimit.NewRedis(client, cfg.RateLimitRequests, cfg.RateLimitWindow, logger)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := l.Ping(pingCtx); err != nil {
			// Недоступный Redis не блокирует запросы, см. ratelimit.Redis
			logger.Warn("Redis недоступен при старте",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		return l, func() { _ = client.Close() }

	default:
		l := ratelimit.NewWindow(cfg.RateLimitRequests, cfg.RateLimitWindow)
		return l, l.Close
	}
}
