// Пакет config — загрузка и валидация конфигурации сервиса контроля доступа
// из переменных окружения (префикс AC_).
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды rate limiter.
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendToken  = "token"
	RateLimitBackendRedis  = "redis"
)

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Размер пула соединений
	DBMaxConns int32
	// Время жизни соединения в пуле
	DBConnMaxLifetime time.Duration
	// Таймаут одного обращения к хранилищу аккаунтов
	StoreTimeout time.Duration

	// --- JWT / провайдер аутентификации ---

	// URL JWKS endpoint провайдера (обязательный)
	JWTJWKSURL string
	// Ожидаемый issuer токена (пусто — не проверяется)
	JWTIssuer string
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Таймаут HTTP-запроса к JWKS endpoint
	JWKSTimeout time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Имя cookie с access token сессии
	SessionCookie string

	// --- Маршруты ---

	// Префиксы защищённых маршрутов
	ProtectedPrefixes []string
	// Префиксы маршрутов аутентификации (login/signup)
	AuthPrefixes []string
	// Публичные маршруты (точное совпадение)
	PublicPaths []string
	// Префикс административной зоны
	AdminPrefix string

	// Целевые маршруты редиректов
	LoginRoute     string
	SettingsRoute  string
	PendingRoute   string
	RejectedRoute  string
	SuspendedRoute string

	// --- Кэш аккаунтов ---

	// Максимальное число аккаунтов в LRU-кэше (0 — кэш отключён)
	AccountCacheSize int
	// Время жизни записи кэша
	AccountCacheTTL time.Duration

	// --- Rate limiting ---

	// Бэкенд: memory, token, redis
	RateLimitBackend string
	// Число запросов на окно (0 — ограничение отключено)
	RateLimitRequests int
	// Длительность окна
	RateLimitWindow time.Duration

	// Адрес Redis для бэкенда redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- Защита ---

	// Подстроки User-Agent, для которых запросы отклоняются (без учёта регистра)
	BlockedUserAgents []string
	// Сети, которым разрешено передавать X-Forwarded-For (пусто — никому)
	TrustedProxies []string

	// --- Проксирование ---

	// URL фронтенда, перед которым стоит guard (пусто — прокси отключён)
	UpstreamURL string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("AC_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("AC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AC_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("AC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("AC_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("AC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AC_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("AC_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("AC_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("AC_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("AC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	maxConns, err := getEnvInt("AC_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("AC_DB_MAX_CONNS: %w", err)
	}
	if maxConns < 1 || maxConns > 1000 {
		return nil, fmt.Errorf("AC_DB_MAX_CONNS: значение %d вне диапазона 1-1000", maxConns)
	}
	cfg.DBMaxConns = int32(maxConns)
	cfg.DBConnMaxLifetime, err = getEnvDuration("AC_DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_DB_CONN_MAX_LIFETIME: %w", err)
	}
	if cfg.DBConnMaxLifetime <= 0 {
		return nil, fmt.Errorf("AC_DB_CONN_MAX_LIFETIME: длительность должна быть положительной")
	}

	// AC_STORE_TIMEOUT — верхняя граница обращения к хранилищу при решении guard
	cfg.StoreTimeout, err = getEnvDuration("AC_STORE_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_STORE_TIMEOUT: %w", err)
	}
	if cfg.StoreTimeout <= 0 {
		return nil, fmt.Errorf("AC_STORE_TIMEOUT: длительность должна быть положительной")
	}

	// --- JWT ---

	if cfg.JWTJWKSURL, err = getEnvRequired("AC_JWT_JWKS_URL"); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(cfg.JWTJWKSURL); err != nil {
		return nil, fmt.Errorf("AC_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
	}
	cfg.JWTIssuer = getEnvDefault("AC_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("AC_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSTimeout, err = getEnvDuration("AC_JWKS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_JWKS_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("AC_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.SessionCookie = getEnvDefault("AC_SESSION_COOKIE", "sb-access-token")

	// --- Маршруты ---

	cfg.ProtectedPrefixes = parseCSV(getEnvDefault("AC_PROTECTED_PREFIXES", "/settings,/admin"))
	cfg.AuthPrefixes = parseCSV(getEnvDefault("AC_AUTH_PREFIXES", "/auth/login,/auth/signup"))
	cfg.PublicPaths = parseCSV(getEnvDefault("AC_PUBLIC_PATHS", "/,/analytics,/map,/search"))
	cfg.AdminPrefix = getEnvDefault("AC_ADMIN_PREFIX", "/admin")
	cfg.LoginRoute = getEnvDefault("AC_LOGIN_ROUTE", "/auth/login")
	cfg.SettingsRoute = getEnvDefault("AC_SETTINGS_ROUTE", "/settings")
	cfg.PendingRoute = getEnvDefault("AC_PENDING_ROUTE", "/auth/pending-approval")
	cfg.RejectedRoute = getEnvDefault("AC_REJECTED_ROUTE", "/auth/account-rejected")
	cfg.SuspendedRoute = getEnvDefault("AC_SUSPENDED_ROUTE", "/auth/account-suspended")

	for key, route := range map[string]string{
		"AC_ADMIN_PREFIX":    cfg.AdminPrefix,
		"AC_LOGIN_ROUTE":     cfg.LoginRoute,
		"AC_SETTINGS_ROUTE":  cfg.SettingsRoute,
		"AC_PENDING_ROUTE":   cfg.PendingRoute,
		"AC_REJECTED_ROUTE":  cfg.RejectedRoute,
		"AC_SUSPENDED_ROUTE": cfg.SuspendedRoute,
	} {
		if !strings.HasPrefix(route, "/") {
			return nil, fmt.Errorf("%s: маршрут %q должен начинаться с /", key, route)
		}
	}

	// --- Кэш аккаунтов ---

	cfg.AccountCacheSize, err = getEnvInt("AC_ACCOUNT_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("AC_ACCOUNT_CACHE_SIZE: %w", err)
	}
	if cfg.AccountCacheSize < 0 {
		return nil, fmt.Errorf("AC_ACCOUNT_CACHE_SIZE: отрицательное значение %d", cfg.AccountCacheSize)
	}
	cfg.AccountCacheTTL, err = getEnvDuration("AC_ACCOUNT_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_ACCOUNT_CACHE_TTL: %w", err)
	}
	// TTL ограничивает устаревание кэша после изменений на других экземплярах
	if cfg.AccountCacheTTL <= 0 {
		return nil, fmt.Errorf("AC_ACCOUNT_CACHE_TTL: длительность должна быть положительной")
	}

	// --- Rate limiting ---

	cfg.RateLimitBackend = getEnvDefault("AC_RATE_LIMIT_BACKEND", RateLimitBackendMemory)
	switch cfg.RateLimitBackend {
	case RateLimitBackendMemory, RateLimitBackendToken, RateLimitBackendRedis:
	default:
		return nil, fmt.Errorf("AC_RATE_LIMIT_BACKEND: недопустимое значение %q, допустимые: memory, token, redis", cfg.RateLimitBackend)
	}
	cfg.RateLimitRequests, err = getEnvInt("AC_RATE_LIMIT_REQUESTS", 100)
	if err != nil {
		return nil, fmt.Errorf("AC_RATE_LIMIT_REQUESTS: %w", err)
	}
	if cfg.RateLimitRequests < 0 {
		return nil, fmt.Errorf("AC_RATE_LIMIT_REQUESTS: отрицательное значение %d", cfg.RateLimitRequests)
	}
	cfg.RateLimitWindow, err = getEnvDuration("AC_RATE_LIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("AC_RATE_LIMIT_WINDOW: длительность должна быть положительной")
	}

	cfg.RedisAddr = getEnvDefault("AC_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("AC_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("AC_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("AC_REDIS_DB: %w", err)
	}
	if cfg.RateLimitBackend == RateLimitBackendRedis && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("AC_REDIS_ADDR: обязателен при AC_RATE_LIMIT_BACKEND=redis")
	}

	// --- Защита ---

	cfg.BlockedUserAgents = parseCSV(getEnvDefault("AC_BLOCKED_USER_AGENTS", "bot,crawler,spider,scraper,curl,wget"))

	// AC_TRUSTED_PROXIES — сети, которым разрешено передавать X-Forwarded-For.
	// "none" — заголовки прокси не учитываются.
	raw := getEnvDefault("AC_TRUSTED_PROXIES", "127.0.0.0/8,::1/128,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fc00::/7")
	if strings.TrimSpace(raw) != "none" {
		cfg.TrustedProxies = parseCSV(raw)
	}
	for _, p := range cfg.TrustedProxies {
		if !validCIDROrAddr(p) {
			return nil, fmt.Errorf("AC_TRUSTED_PROXIES: %q не является адресом или CIDR", p)
		}
	}

	// --- Проксирование ---

	cfg.UpstreamURL = strings.TrimRight(getEnvDefault("AC_UPSTREAM_URL", ""), "/")
	if cfg.UpstreamURL != "" {
		if _, err := url.ParseRequestURI(cfg.UpstreamURL); err != nil {
			return nil, fmt.Errorf("AC_UPSTREAM_URL: некорректный URL %q", cfg.UpstreamURL)
		}
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("AC_DEPHEALTH_GROUP", "ga-water")
	cfg.DephealthCheckInterval, err = getEnvDuration("AC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("AC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля.
// Используется только для лейблов topologymetrics.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (схема pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword), c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func validCIDROrAddr(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
