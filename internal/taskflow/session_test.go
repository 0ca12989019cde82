package taskflow

import (
	"testing"

	"taskflow_bot/internal/models"
)

func editTask() *models.Task {
	return &models.Task{
		ID: "t1",
		Variables: map[string]models.Variable{
			"Check_A": {Value: ""},
			"Doc_B":   {Value: ""},
		},
	}
}

// TestCanSubmitInclusiveOr проверяет, что готовность к отправке — это
// включающее ИЛИ трёх условий, а не чек-лист из всех трёх сразу.
func TestCanSubmitInclusiveOr(t *testing.T) {
	task := editTask()

	// Без правок отправлять нечего
	s := NewSession(task)
	if CanSubmit(task, s) {
		t.Fatalf("без правок отправка должна быть недоступна")
	}

	// Достаточно одного решения
	s = NewSession(task)
	s.SetDecision("Check_A", DecisionApproved)
	if !CanSubmit(task, s) {
		t.Fatalf("изменённого решения должно быть достаточно")
	}

	// Достаточно одного файла
	s = NewSession(task)
	s.AddFile("Doc_B", FileRef{Name: "report.pdf", Data: []byte("x")})
	if !CanSubmit(task, s) {
		t.Fatalf("прикреплённого файла должно быть достаточно")
	}

	// Достаточно факта открытия вложений
	s = NewSession(task)
	s.AcknowledgeDownload()
	if !CanSubmit(task, s) {
		t.Fatalf("открытия вложений должно быть достаточно")
	}
}

func TestCanSubmitIgnoresEmptyAndUnchangedDecisions(t *testing.T) {
	task := editTask()
	task.Variables["Check_A"] = models.Variable{Value: DecisionApproved}

	// Пустое решение — это отсутствие решения, а не правка
	s := NewSession(task)
	s.SetDecision("Check_A", "")
	if CanSubmit(task, s) {
		t.Fatalf("пустое решение не должно давать готовность к отправке")
	}

	// То же значение в другом регистре правкой не считается
	s = NewSession(task)
	s.SetDecision("Check_A", "APPROVED")
	if CanSubmit(task, s) {
		t.Fatalf("смена регистра значения не должна считаться правкой")
	}

	// Смена approved -> rejected — настоящая правка
	s = NewSession(task)
	s.SetDecision("Check_A", DecisionRejected)
	if !CanSubmit(task, s) {
		t.Fatalf("смена решения должна давать готовность к отправке")
	}
}

func TestNewSessionSeedsDecisions(t *testing.T) {
	task := editTask()
	task.Variables["Check_A"] = models.Variable{Value: DecisionRejected}

	s := NewSession(task)
	if got := s.PendingDecisions["Check_A"]; got != DecisionRejected {
		t.Fatalf("решение должно предзаполняться текущим значением, получено %q", got)
	}
	// Документы в решения не попадают
	if _, ok := s.PendingDecisions["Doc_B"]; ok {
		t.Fatalf("переменная-документ не должна попадать в PendingDecisions")
	}
}

func TestChangedDecisions(t *testing.T) {
	task := editTask()
	s := NewSession(task)
	s.SetDecision("Check_A", DecisionApproved)

	changed := s.ChangedDecisions(task)
	if len(changed) != 1 || changed["Check_A"] != DecisionApproved {
		t.Fatalf("ожидалось одно изменённое решение, получено: %v", changed)
	}

	// Повторный вызов с теми же данными даёт тот же результат
	again := s.ChangedDecisions(task)
	if len(again) != 1 || again["Check_A"] != DecisionApproved {
		t.Fatalf("ChangedDecisions не идемпотентна: %v", again)
	}
}
