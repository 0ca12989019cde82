// Package taskflow реализует модель жизненного цикла задачи:
// предикаты просроченности и готовности к отправке, классификацию переменных
// и выбор доступных действий по роли и состоянию делегирования.
package taskflow

import (
	"strings"
	"time"

	"taskflow_bot/internal/models"
)

// IsOverdueAt возвращает true, если срок due строго раньше момента now.
// Отсутствие срока (nil) означает, что задача не может быть просрочена.
// Срок, совпадающий с now с точностью до наносекунды, просрочкой не считается.
func IsOverdueAt(due *time.Time, now time.Time) bool {
	if due == nil {
		return false
	}
	return due.Before(now)
}

// IsOverdue проверяет просроченность задачи относительно текущего времени.
// Результат не кэшируется: "сейчас" меняется между проверками.
func IsOverdue(due *time.Time) bool {
	return IsOverdueAt(due, time.Now())
}

// IsDecisionVariable возвращает true, если ключ переменной обозначает
// переменную-решение (домен значений "approved"/"rejected"/"").
// Соглашение об именовании: ключ содержит подстроку "check" в любом регистре.
// Все остальные ключи обозначают переменные-документы.
func IsDecisionVariable(key string) bool {
	return strings.Contains(strings.ToLower(key), "check")
}

// HasDecisionVariables возвращает true, если среди переменных задачи есть
// хотя бы одна переменная-решение.
func HasDecisionVariables(task *models.Task) bool {
	for key := range task.Variables {
		if IsDecisionVariable(key) {
			return true
		}
	}
	return false
}

// Значения переменной-решения.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)
