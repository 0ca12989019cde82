package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskflow_bot/internal/api"
	"taskflow_bot/internal/models"
	"taskflow_bot/internal/taskflow"
)

// fakeEngine — заглушка движка для тестов действий
type fakeEngine struct {
	task *models.Task

	completeCalls int
	completeErr   error
	claimCalls    int
	unclaimCalls  int
	delegateCalls int

	fetchErr error

	decisions map[string]string
	files     map[string][]taskflow.FileRef
}

func (f *fakeEngine) FetchTask(ctx context.Context, taskID string) (*models.Task, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.task, nil
}

func (f *fakeEngine) FetchRole(ctx context.Context, login string) (models.Role, error) {
	return models.RoleStaff, nil
}

func (f *fakeEngine) ListTasks(ctx context.Context, assignee string, limit int) ([]models.Task, error) {
	return nil, nil
}

func (f *fakeEngine) ListUnassigned(ctx context.Context, limit int) ([]models.Task, error) {
	return nil, nil
}

func (f *fakeEngine) SubmitDecisions(ctx context.Context, taskID string, decisions map[string]string) error {
	f.decisions = decisions
	return nil
}

func (f *fakeEngine) SubmitFiles(ctx context.Context, taskID, variableKey string, files []taskflow.FileRef) error {
	if f.files == nil {
		f.files = make(map[string][]taskflow.FileRef)
	}
	f.files[variableKey] = files
	return nil
}

func (f *fakeEngine) CompleteTask(ctx context.Context, taskID string) error {
	f.completeCalls++
	return f.completeErr
}

func (f *fakeEngine) ClaimTask(ctx context.Context, taskID, userID string) error {
	f.claimCalls++
	return nil
}

func (f *fakeEngine) UnclaimTask(ctx context.Context, taskID string) error {
	f.unclaimCalls++
	return nil
}

func (f *fakeEngine) DelegateTask(ctx context.Context, taskID, userID, comment string) error {
	f.delegateCalls++
	return nil
}

func (f *fakeEngine) ListInstanceUsers(ctx context.Context, instanceID string) ([]models.EngineUser, error) {
	return nil, nil
}

func (f *fakeEngine) AttachmentURL(fileRef string) string {
	return "http://engine/files/" + fileRef
}

// testBot создает бота без Telegram-подключения
func testBot(engine engineAPI) *Bot {
	return &Bot{
		engine:        engine,
		actionTimeout: time.Second,
		views:         make(map[int64]*taskView),
		uploadTargets: make(map[int64]uploadTarget),
		inFlight:      make(map[int64]bool),
	}
}

func managerView(task *models.Task) *taskView {
	return &taskView{
		Task:    task,
		Role:    models.RoleManager,
		Session: taskflow.NewSession(task),
	}
}

// TestExecutePrimaryCompleteOnce проверяет, что завершение вызывается один раз
func TestExecutePrimaryCompleteOnce(t *testing.T) {
	task := &models.Task{
		ID:              "task-1",
		Name:            "Согласование",
		DelegationState: string(models.DelegationResolved),
	}
	engine := &fakeEngine{task: task}
	b := testBot(engine)

	fresh, err := b.executePrimary(context.Background(), 1, managerView(task))
	if err != nil {
		t.Fatalf("Неожиданная ошибка: %v", err)
	}
	if engine.completeCalls != 1 {
		t.Errorf("Ожидался ровно один вызов завершения, получено %d", engine.completeCalls)
	}
	if fresh == nil {
		t.Error("Ожидалась перечитанная задача")
	}
	if b.actionInFlight(1) {
		t.Error("Флаг выполнения должен сбрасываться после завершения")
	}
}

// TestExecutePrimaryBlockedWhileInFlight проверяет защиту от повторного запуска
func TestExecutePrimaryBlockedWhileInFlight(t *testing.T) {
	task := &models.Task{
		ID: "task-1",
		Variables: map[string]models.Variable{
			"checkApproval": {Value: ""},
		},
	}
	engine := &fakeEngine{task: task}
	b := testBot(engine)

	// Первый вызов ещё идёт: флаг занят
	if !b.beginAction(1) {
		t.Fatal("Первый захват флага должен пройти")
	}

	// Руководитель задачи с переменными-решениями: завершение остаётся
	// доступным даже во время выполнения действия, но второй сетевой
	// вызов всё равно не начнётся
	view := managerView(task)

	_, err := b.executePrimary(context.Background(), 1, view)
	if !errors.Is(err, errInFlight) {
		t.Fatalf("Ожидалась ошибка errInFlight, получено: %v", err)
	}
	if engine.completeCalls != 0 {
		t.Errorf("Сетевой вызов не должен начинаться, получено %d", engine.completeCalls)
	}
}

// TestExecutePrimaryFailureResetsFlag проверяет сброс флага при ошибке
func TestExecutePrimaryFailureResetsFlag(t *testing.T) {
	task := &models.Task{
		ID:              "task-1",
		DelegationState: string(models.DelegationResolved),
	}
	engine := &fakeEngine{task: task, completeErr: errors.New("движок недоступен")}
	b := testBot(engine)

	_, err := b.executePrimary(context.Background(), 1, managerView(task))
	if err == nil {
		t.Fatal("Ожидалась ошибка движка")
	}
	if b.actionInFlight(1) {
		t.Error("Флаг выполнения должен сбрасываться после ошибки")
	}

	// Повторная попытка после ошибки должна пройти
	engine.completeErr = nil
	if _, err := b.executePrimary(context.Background(), 1, managerView(task)); err != nil {
		t.Fatalf("Повторная попытка должна пройти: %v", err)
	}
	if engine.completeCalls != 2 {
		t.Errorf("Ожидалось два вызова завершения, получено %d", engine.completeCalls)
	}
}

// TestExecutePrimaryUnavailable проверяет, что без правок отправка не начинается
func TestExecutePrimaryUnavailable(t *testing.T) {
	task := &models.Task{
		ID: "task-1",
		Variables: map[string]models.Variable{
			"checkApproval": {Value: taskflow.DecisionApproved},
		},
	}
	engine := &fakeEngine{task: task}
	b := testBot(engine)

	view := &taskView{Task: task, Role: models.RoleStaff, Session: taskflow.NewSession(task)}
	_, err := b.executePrimary(context.Background(), 1, view)
	if !errors.Is(err, errActionUnavailable) {
		t.Fatalf("Ожидалась ошибка errActionUnavailable, получено: %v", err)
	}
	if engine.completeCalls != 0 || engine.decisions != nil {
		t.Error("Сетевые вызовы не должны начинаться без правок")
	}
}

// TestExecutePrimaryResolveSubmitsEdits проверяет отправку решений и файлов
func TestExecutePrimaryResolveSubmitsEdits(t *testing.T) {
	task := &models.Task{
		ID: "task-1",
		Variables: map[string]models.Variable{
			"checkApproval": {Value: ""},
			"report":        {Value: ""},
		},
	}
	engine := &fakeEngine{task: task}
	b := testBot(engine)

	view := &taskView{Task: task, Role: models.RoleStaff, Session: taskflow.NewSession(task)}
	view.Session.SetDecision("checkApproval", taskflow.DecisionApproved)
	view.Session.AddFile("report", taskflow.FileRef{Name: "report.pdf", Data: []byte("pdf")})

	if _, err := b.executePrimary(context.Background(), 1, view); err != nil {
		t.Fatalf("Неожиданная ошибка: %v", err)
	}
	if engine.decisions["checkApproval"] != taskflow.DecisionApproved {
		t.Errorf("Решение не отправлено: %v", engine.decisions)
	}
	if len(engine.files["report"]) != 1 || engine.files["report"][0].Name != "report.pdf" {
		t.Errorf("Файл не отправлен: %v", engine.files)
	}
	if engine.completeCalls != 0 {
		t.Error("Отправка правок не должна завершать задачу напрямую")
	}
}

// TestRefetchGoneTask проверяет, что исчезнувшая задача не считается ошибкой
func TestRefetchGoneTask(t *testing.T) {
	engine := &fakeEngine{fetchErr: api.ErrNotFound}
	b := testBot(engine)

	fresh, err := b.refetch(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Исчезновение задачи не должно быть ошибкой: %v", err)
	}
	if fresh != nil {
		t.Error("Ожидался nil для исчезнувшей задачи")
	}
}

// TestExecuteClaimRefetches проверяет взятие задачи и перечитывание
func TestExecuteClaimRefetches(t *testing.T) {
	task := &models.Task{ID: "task-1", Assignee: "petrov"}
	engine := &fakeEngine{task: task}
	b := testBot(engine)

	fresh, err := b.executeClaim(context.Background(), 1, "task-1", "petrov")
	if err != nil {
		t.Fatalf("Неожиданная ошибка: %v", err)
	}
	if engine.claimCalls != 1 {
		t.Errorf("Ожидался один вызов взятия, получено %d", engine.claimCalls)
	}
	if fresh == nil || fresh.Assignee != "petrov" {
		t.Errorf("Ожидалась перечитанная задача с исполнителем, получено %+v", fresh)
	}
}
