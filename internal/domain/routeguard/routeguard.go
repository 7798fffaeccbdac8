// Пакет routeguard — классификация путей и решение guard о доступе к маршруту.
//
// Решение принимается в фиксированном порядке, так как путь может
// одновременно попадать в несколько категорий:
//  1. protected + аноним → логин с redirectTo
//  2. auth + аутентифицирован → настройки
//  3. аутентифицирован + (protected | public) → проверка аккаунта:
//     нет аккаунта или pending_approval → ожидание одобрения,
//     rejected → страница отказа, suspended → страница приостановки,
//     префикс админки без роли admin → настройки
//  4. иначе → allow
package routeguard

import (
	"net/url"
	"strings"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

// Category — битовая маска категорий пути.
type Category uint8

const (
	CategoryProtected Category = 1 << iota
	CategoryAuth
	CategoryPublic
)

// Has проверяет наличие категории в маске.
func (c Category) Has(other Category) bool {
	return c&other != 0
}

// Reason — причина решения (для метрик и логов).
type Reason string

const (
	ReasonAllowed              Reason = "allowed"
	ReasonLoginRequired        Reason = "login_required"
	ReasonAlreadyAuthenticated Reason = "already_authenticated"
	ReasonAccountNotFound      Reason = "account_not_found"
	ReasonPendingApproval      Reason = "pending_approval"
	ReasonRejected             Reason = "rejected"
	ReasonSuspended            Reason = "suspended"
	ReasonAdminRequired        Reason = "admin_required"
	// ReasonDegraded — хранилище или провайдер аутентификации недоступны, запрос пропущен
	ReasonDegraded Reason = "degraded"
)

// Decision — результат проверки маршрута.
type Decision struct {
	// Redirect — true, если запрос нужно перенаправить на Location
	Redirect bool
	Location string
	Reason   Reason
}

// Allow возвращает разрешающее решение с указанной причиной.
func Allow(reason Reason) Decision {
	return Decision{Reason: reason}
}

func redirect(location string, reason Reason) Decision {
	return Decision{Redirect: true, Location: location, Reason: reason}
}

// Config — списки маршрутов и целевые страницы редиректов.
// Передаётся в конструкторы, глобального состояния нет.
type Config struct {
	// Protected — префиксы маршрутов, требующих аутентификации
	Protected []string
	// Auth — префиксы страниц входа и регистрации
	Auth []string
	// Public — публичные маршруты, точное совпадение
	Public []string

	AdminPrefix    string
	LoginRoute     string
	SettingsRoute  string
	PendingRoute   string
	RejectedRoute  string
	SuspendedRoute string
}

// DefaultConfig возвращает маршруты фронтенда по умолчанию.
func DefaultConfig() Config {
	return Config{
		Protected:      []string{"/settings", "/admin"},
		Auth:           []string{"/auth/login", "/auth/signup"},
		Public:         []string{"/", "/analytics", "/map", "/search"},
		AdminPrefix:    "/admin",
		LoginRoute:     "/auth/login",
		SettingsRoute:  "/settings",
		PendingRoute:   "/auth/pending-approval",
		RejectedRoute:  "/auth/account-rejected",
		SuspendedRoute: "/auth/account-suspended",
	}
}

// Classify относит путь к нулю или нескольким категориям.
func (c Config) Classify(path string) Category {
	var cat Category
	if hasAnyPrefix(path, c.Protected) {
		cat |= CategoryProtected
	}
	if hasAnyPrefix(path, c.Auth) {
		cat |= CategoryAuth
	}
	for _, p := range c.Public {
		if path == p {
			cat |= CategoryPublic
			break
		}
	}
	return cat
}

// LoginRedirect формирует адрес страницы входа с возвратом на path.
func (c Config) LoginRedirect(path string) string {
	q := url.Values{}
	q.Set("redirectTo", path)
	return c.LoginRoute + "?" + q.Encode()
}

// Lookup загружает аккаунт текущего пользователя.
// (nil, nil) означает, что аккаунт не найден.
type Lookup func() (*model.Account, error)

// Decide вычисляет решение для пути.
// Ошибка возвращается только при сбое lookup, решение в этом случае
// принимает вызывающая сторона.
func (c Config) Decide(path string, authenticated bool, lookup Lookup) (Decision, error) {
	cat := c.Classify(path)

	if cat.Has(CategoryProtected) && !authenticated {
		return redirect(c.LoginRedirect(path), ReasonLoginRequired), nil
	}

	if cat.Has(CategoryAuth) && authenticated {
		return redirect(c.SettingsRoute, ReasonAlreadyAuthenticated), nil
	}

	if authenticated && (cat.Has(CategoryProtected) || cat.Has(CategoryPublic)) {
		acc, err := lookup()
		if err != nil {
			return Decision{}, err
		}
		if acc == nil {
			return redirect(c.PendingRoute, ReasonAccountNotFound), nil
		}
		switch acc.Status {
		case model.StatusPendingApproval:
			return redirect(c.PendingRoute, ReasonPendingApproval), nil
		case model.StatusRejected:
			return redirect(c.RejectedRoute, ReasonRejected), nil
		case model.StatusSuspended:
			return redirect(c.SuspendedRoute, ReasonSuspended), nil
		}
		if c.AdminPrefix != "" && strings.HasPrefix(path, c.AdminPrefix) && acc.Role != model.RoleAdmin {
			return redirect(c.SettingsRoute, ReasonAdminRequired), nil
		}
	}

	return Allow(ReasonAllowed), nil
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
