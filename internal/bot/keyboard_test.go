package bot

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/telebot.v3"

	"taskflow_bot/internal/models"
	"taskflow_bot/internal/taskflow"
)

// keyboardButtons собирает все кнопки клавиатуры в плоский список
func keyboardButtons(markup *telebot.ReplyMarkup) []telebot.InlineButton {
	var buttons []telebot.InlineButton
	for _, row := range markup.InlineKeyboard {
		buttons = append(buttons, row...)
	}
	return buttons
}

func hasButton(markup *telebot.ReplyMarkup, unique string) bool {
	for _, btn := range keyboardButtons(markup) {
		if btn.Unique == unique {
			return true
		}
	}
	return false
}

func buttonLabel(markup *telebot.ReplyMarkup, unique string) string {
	for _, btn := range keyboardButtons(markup) {
		if btn.Unique == unique {
			return btn.Text
		}
	}
	return ""
}

// TestKeyboardStaffAssigned: исполнитель с назначенной задачей видит
// возврат в пул, но не делегирование и не взятие в работу
func TestKeyboardStaffAssigned(t *testing.T) {
	task := &models.Task{
		ID:       "task-1",
		Name:     "Подготовка отчёта",
		Assignee: "petrov",
		Variables: map[string]models.Variable{
			"report": {Value: ""},
		},
	}
	view := &taskView{Task: task, Role: models.RoleStaff, Session: taskflow.NewSession(task)}

	markup := buildTaskKeyboard(view, false)

	if hasButton(markup, "delegate") {
		t.Error("Делегирование не должно показываться исполнителю")
	}
	if !hasButton(markup, "unclaim") {
		t.Error("Возврат в пул должен показываться для назначенной задачи")
	}
	if hasButton(markup, "claim") {
		t.Error("Взятие в работу не должно показываться для назначенной задачи")
	}
	if hasButton(markup, "primary") {
		t.Error("Основное действие недоступно без правок")
	}
	if !hasButton(markup, "upl") {
		t.Error("Переменная-документ должна иметь кнопку загрузки")
	}
	if hasButton(markup, "dl") {
		t.Error("Кнопка скачивания не показывается для пустой переменной")
	}
}

// TestKeyboardUnassignedPlaceholder: заглушка "Unassigned" считается
// отсутствием исполнителя
func TestKeyboardUnassignedPlaceholder(t *testing.T) {
	task := &models.Task{
		ID:       "task-1",
		Name:     "Проверка договора",
		Assignee: models.UnassignedPlaceholder,
	}
	view := &taskView{Task: task, Role: models.RoleStaff, Session: taskflow.NewSession(task)}

	markup := buildTaskKeyboard(view, false)

	if hasButton(markup, "unclaim") {
		t.Error("Возврат в пул не должен показываться для неназначенной задачи")
	}
	if !hasButton(markup, "claim") {
		t.Error("Взятие в работу должно показываться для неназначенной задачи")
	}
}

// TestKeyboardManagerDecisionComplete: руководитель задачи с
// переменными-решениями видит кнопку завершения даже без правок
func TestKeyboardManagerDecisionComplete(t *testing.T) {
	task := &models.Task{
		ID:       "task-1",
		Name:     "Согласование закупки",
		Assignee: "ivanov",
		Variables: map[string]models.Variable{
			"checkApproval": {Value: ""},
		},
	}
	view := &taskView{Task: task, Role: models.RoleManager, Session: taskflow.NewSession(task)}

	markup := buildTaskKeyboard(view, false)

	if !hasButton(markup, "primary") {
		t.Fatal("Завершение должно быть доступно руководителю делегированной задачи")
	}
	if label := buttonLabel(markup, "primary"); !strings.Contains(label, "Завершить") {
		t.Errorf("Ожидалась подпись завершения, получено %q", label)
	}
	if !hasButton(markup, "delegate") {
		t.Error("Делегирование должно показываться руководителю")
	}
	if !hasButton(markup, "dec") {
		t.Error("Переменная-решение должна иметь кнопки выбора")
	}
}

// TestKeyboardPrimaryHiddenInFlight: во время выполнения действия кнопка
// отправки правок скрывается
func TestKeyboardPrimaryHiddenInFlight(t *testing.T) {
	task := &models.Task{
		ID:       "task-1",
		Assignee: "petrov",
		Variables: map[string]models.Variable{
			"checkApproval": {Value: ""},
		},
	}
	view := &taskView{Task: task, Role: models.RoleStaff, Session: taskflow.NewSession(task)}
	view.Session.SetDecision("checkApproval", taskflow.DecisionApproved)

	if markup := buildTaskKeyboard(view, false); !hasButton(markup, "primary") {
		t.Fatal("С правками кнопка отправки должна показываться")
	}
	if markup := buildTaskKeyboard(view, true); hasButton(markup, "primary") {
		t.Error("Во время выполнения действия кнопка отправки должна скрываться")
	}
}

// TestKeyboardDownloadButton: для загруженного файла показывается скачивание
func TestKeyboardDownloadButton(t *testing.T) {
	task := &models.Task{
		ID:       "task-1",
		Assignee: "petrov",
		Variables: map[string]models.Variable{
			"contract": {Value: "files/contract.pdf"},
		},
	}
	view := &taskView{Task: task, Role: models.RoleStaff, Session: taskflow.NewSession(task)}

	markup := buildTaskKeyboard(view, false)
	if !hasButton(markup, "dl") {
		t.Error("Для загруженного файла должна показываться кнопка скачивания")
	}
}

// TestFormatTaskCardOverdue: просроченная задача отмечается в карточке
func TestFormatTaskCardOverdue(t *testing.T) {
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	task := &models.Task{
		ID:      "task-1",
		Name:    "Отчёт за квартал",
		DueDate: &due,
	}
	view := &taskView{Task: task, Role: models.RoleStaff, Session: taskflow.NewSession(task)}

	now := due.Add(time.Hour)
	text := formatTaskCard(view, now, false)
	if !strings.Contains(text, "просрочена") {
		t.Errorf("Карточка должна отмечать просрочку: %q", text)
	}

	text = formatTaskCard(view, due, false)
	if strings.Contains(text, "просрочена") {
		t.Errorf("Задача со сроком ровно сейчас ещё не просрочена: %q", text)
	}
}
