// Package tasklist содержит чистые функции списков задач:
// поиск, постраничную разбивку и подписи статусов.
package tasklist

import (
	"fmt"
	"strings"
	"time"

	"taskflow_bot/internal/models"
	"taskflow_bot/internal/taskflow"
)

// Filter возвращает задачи, у которых название, описание или исполнитель
// содержат подстроку query без учёта регистра. Пустой запрос возвращает
// исходный список без копирования.
func Filter(tasks []models.Task, query string) []models.Task {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return tasks
	}

	var result []models.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Name), query) ||
			strings.Contains(strings.ToLower(t.Description), query) ||
			strings.Contains(strings.ToLower(t.Assignee), query) {
			result = append(result, t)
		}
	}
	return result
}

// Page возвращает срез задач для страницы page (с нуля) и общее число страниц.
// Номер страницы за пределами диапазона прижимается к границам.
func Page(tasks []models.Task, page, perPage int) ([]models.Task, int) {
	if perPage <= 0 {
		perPage = 1
	}
	total := (len(tasks) + perPage - 1) / perPage
	if total == 0 {
		return nil, 0
	}
	if page < 0 {
		page = 0
	}
	if page >= total {
		page = total - 1
	}

	start := page * perPage
	end := start + perPage
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], total
}

// StatusLabel формирует короткую подпись состояния задачи для списка.
func StatusLabel(t *models.Task, now time.Time) string {
	if taskflow.IsOverdueAt(t.DueDate, now) {
		return "⏰ просрочена"
	}
	switch {
	case t.Delegation() == models.DelegationPending:
		return "🔁 делегирована"
	case t.Delegation() == models.DelegationResolved:
		return "↩️ возвращена"
	case t.IsAssigned():
		return "👤 " + t.Assignee
	default:
		return "🆓 не назначена"
	}
}

// FormatLine формирует строку списка для одной задачи.
func FormatLine(t *models.Task, now time.Time) string {
	line := fmt.Sprintf("📎 %s — %s", t.Name, StatusLabel(t, now))
	if t.DueDate != nil && !taskflow.IsOverdueAt(t.DueDate, now) {
		line += fmt.Sprintf(" (до %s)", t.DueDate.Format("02.01.2006"))
	}
	return line
}
