// Package models содержит структуры данных, используемые в проекте:
// задачи процесса, переменные, комментарии и привязка пользователей.
package models

import (
	"strings"
	"time"
)

// Role представляет нормализованную роль пользователя в процессе.
// Строится один раз на границе получения данных через ParseRole.
type Role string

const (
	// RoleManager — руководитель процесса, имеет право завершать и делегировать задачи.
	RoleManager Role = "manager"
	// RoleStaff — исполнитель задачи.
	RoleStaff Role = "staff"
	// RoleOther — нераспознанная или отсутствующая роль. Ведёт себя как исполнитель,
	// но никогда не получает действий руководителя.
	RoleOther Role = "other"
)

// ParseRole приводит строку роли из API к закрытому перечислению.
// Сравнение регистронезависимое, неизвестные значения дают RoleOther.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manager":
		return RoleManager
	case "staff":
		return RoleStaff
	default:
		return RoleOther
	}
}

// Delegation представляет состояние делегирования задачи.
type Delegation string

const (
	// DelegationAbsent — делегирование не выполняется.
	DelegationAbsent Delegation = "absent"
	// DelegationPending — задача передана исполнителю и ожидает его результата.
	DelegationPending Delegation = "pending"
	// DelegationResolved — исполнитель вернул результат руководителю.
	DelegationResolved Delegation = "resolved"
)

// ParseDelegation приводит строку состояния делегирования из API к перечислению.
// Пустые и неизвестные значения считаются отсутствием делегирования.
func ParseDelegation(s string) Delegation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return DelegationPending
	case "resolved":
		return DelegationResolved
	default:
		return DelegationAbsent
	}
}

// Variable представляет значение переменной задачи.
// Пустая строка означает, что значение ещё не задано.
type Variable struct {
	Value string `json:"value"`
}

// Comment представляет комментарий к задаче. Комментарии приходят из движка
// в порядке добавления, бот их не создаёт в карточке задачи.
type Comment struct {
	Author      string `json:"author"`
	Description string `json:"description"`
}

// UnassignedPlaceholder — значение-заглушка исполнителя, которое движок
// подставляет для неназначенных задач.
const UnassignedPlaceholder = "Unassigned"

// Task представляет задачу процесса в том виде, в котором её отдаёт движок.
type Task struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Assignee        string              `json:"assignee,omitempty"`
	DueDate         *time.Time          `json:"due,omitempty"`
	DefinitionID    string              `json:"processDefinitionId,omitempty"`
	InstanceID      string              `json:"processInstanceId,omitempty"`
	Description     string              `json:"description,omitempty"`
	DelegationState string              `json:"delegationState,omitempty"`
	Variables       map[string]Variable `json:"variables,omitempty"`
	Comments        []Comment           `json:"comments,omitempty"`
}

// IsAssigned возвращает true, если у задачи есть реальный исполнитель.
// Заглушка "Unassigned" считается отсутствием исполнителя.
func (t *Task) IsAssigned() bool {
	return t.Assignee != "" && t.Assignee != UnassignedPlaceholder
}

// Delegation возвращает нормализованное состояние делегирования задачи.
func (t *Task) Delegation() Delegation {
	return ParseDelegation(t.DelegationState)
}

// EngineUser представляет учётную запись движка.
// Используется в диалоге выбора пользователя при делегировании.
type EngineUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// DisplayName возвращает имя пользователя движка для показа в списках.
func (u *EngineUser) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.ID
	}
	return name
}

// User представляет связку Telegram-аккаунта с учётной записью движка.
type User struct {
	TelegramID  int64     `json:"telegram_id"`
	Username    string    `json:"username"` // Username в Telegram
	EngineLogin string    `json:"engine_login"`
	Role        string    `json:"role"` // кэш роли из API, источником истины остаётся движок
	LinkedAt    time.Time `json:"linked_at"`
}
