// Пакет lifecycle — конечный автомат статусов аккаунта.
//
// Состояния: pending_approval (начальное), approved, rejected, suspended.
// Все переходы инициирует администратор:
//   - approve: pending_approval | suspended | rejected → approved,
//     повторное approve одобренного аккаунта допустимо (обновляет аудит)
//   - reject: pending_approval | suspended → rejected,
//     повторное reject обновляет причину
//   - suspend: approved → suspended
//
// Автомат не хранит состояние: текущий статус читается из хранилища,
// а запись выполняется условным обновлением (CAS по статусу).
package lifecycle

import (
	"fmt"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

// Action — административное действие над аккаунтом.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionSuspend Action = "suspend"
)

// Коды ошибок переходов.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidAction     = "INVALID_ACTION"
)

// actionTargets — целевой статус каждого действия.
var actionTargets = map[Action]model.Status{
	ActionApprove: model.StatusApproved,
	ActionReject:  model.StatusRejected,
	ActionSuspend: model.StatusSuspended,
}

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[model.Status]map[model.Status]bool{
	model.StatusPendingApproval: {model.StatusApproved: true, model.StatusRejected: true},
	model.StatusApproved:        {model.StatusApproved: true, model.StatusSuspended: true},
	model.StatusSuspended:       {model.StatusApproved: true, model.StatusRejected: true, model.StatusSuspended: true},
	model.StatusRejected:        {model.StatusApproved: true, model.StatusRejected: true},
}

// Target возвращает целевой статус действия.
func Target(a Action) (model.Status, error) {
	to, ok := actionTargets[a]
	if !ok {
		return "", &TransitionError{
			Code:    CodeInvalidAction,
			Message: fmt.Sprintf("недопустимое действие: %q", a),
		}
	}
	return to, nil
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to model.Status) bool {
	transitions, ok := validTransitions[from]
	if !ok {
		return false
	}
	return transitions[to]
}

// Apply проверяет применимость действия к аккаунту в статусе from
// и возвращает целевой статус.
//
// Ошибки:
//   - INVALID_ACTION — неизвестное действие
//   - INVALID_TRANSITION — переход недопустим из текущего статуса
func Apply(from model.Status, a Action) (model.Status, error) {
	to, err := Target(a)
	if err != nil {
		return "", err
	}
	if !CanTransition(from, to) {
		return "", &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s (%s) недопустим", from, to, a),
		}
	}
	return to, nil
}

// IsNoop сообщает, что переход не меняет статус.
func IsNoop(from, to model.Status) bool {
	return from == to
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, INVALID_ACTION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
