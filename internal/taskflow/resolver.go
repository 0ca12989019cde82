package taskflow

import (
	"taskflow_bot/internal/models"
)

// ActionKind различает два варианта основного действия над задачей.
type ActionKind string

const (
	// ActionComplete завершает шаг процесса без отправки правок.
	ActionComplete ActionKind = "complete"
	// ActionResolve отправляет накопленные правки (решения и файлы).
	ActionResolve ActionKind = "resolve"
)

// Канонические подписи основного действия.
const (
	LabelComplete = "Complete"
	LabelResolve  = "Resolve"
)

// Primary описывает выбранное основное действие: его вид, подпись кнопки
// и доступность. Для карточки задачи всегда выбирается ровно одно основное
// действие.
type Primary struct {
	Kind    ActionKind
	Label   string
	Enabled bool
}

// ResolvePrimary выбирает основное действие по роли, состоянию делегирования
// и наличию переменных-решений. Правила проверяются по порядку, срабатывает
// первое подходящее:
//  1. руководитель, делегирования нет, есть переменные-решения — Complete,
//     доступно всегда, независимо от готовности правок;
//  2. руководитель, делегирование завершено исполнителем — Complete,
//     доступно, пока не идёт отправка;
//  3. во всех остальных случаях — Resolve (с подписью Complete для
//     руководителя), доступно только при готовых правках и не во время
//     отправки.
//
// Функция чистая: ни глобального состояния, ни побочных эффектов, результат
// пересчитывается при каждой перерисовке карточки.
func ResolvePrimary(role models.Role, delegation models.Delegation, hasDecisionVars, canSubmit, inFlight bool) Primary {
	switch {
	case role == models.RoleManager && delegation == models.DelegationAbsent && hasDecisionVars:
		return Primary{Kind: ActionComplete, Label: LabelComplete, Enabled: true}
	case role == models.RoleManager && delegation == models.DelegationResolved:
		return Primary{Kind: ActionComplete, Label: LabelComplete, Enabled: !inFlight}
	default:
		label := LabelResolve
		if role == models.RoleManager {
			label = LabelComplete
		}
		return Primary{Kind: ActionResolve, Label: label, Enabled: canSubmit && !inFlight}
	}
}

// ShowDelegate возвращает true, если пользователю доступно делегирование.
// Делегировать задачи может только руководитель; RoleOther этого права
// не получает.
func ShowDelegate(role models.Role) bool {
	return role == models.RoleManager
}

// ShowUnclaim возвращает true, если задачу можно вернуть в общий пул:
// у неё есть реальный исполнитель.
func ShowUnclaim(task *models.Task) bool {
	return task.IsAssigned()
}

// ShowClaim возвращает true, если задачу можно взять в работу:
// исполнитель не назначен. Для назначенной задачи взятие недоступно.
func ShowClaim(task *models.Task) bool {
	return !task.IsAssigned()
}
