// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — аккаунт не найден.
	ErrNotFound = errors.New("аккаунт не найден")
	// ErrConflict — аккаунт уже существует или изменён конкурентно.
	ErrConflict = errors.New("конфликт — аккаунт уже существует или изменён другим администратором")
	// ErrForbidden — у инициатора нет прав администратора.
	ErrForbidden = errors.New("недостаточно прав: требуется одобренный аккаунт с ролью admin")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnavailable — хранилище аккаунтов недоступно.
	ErrUnavailable = errors.New("хранилище аккаунтов недоступно")
)
