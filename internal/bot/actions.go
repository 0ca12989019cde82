// Package bot содержит выполнение действий над задачей с защитой от повторов.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"taskflow_bot/internal/api"
	"taskflow_bot/internal/models"
	"taskflow_bot/internal/taskflow"
)

// engineAPI описывает операции движка, которые использует бот.
// Клиент api.Client реализует интерфейс; тесты подставляют заглушку.
type engineAPI interface {
	FetchTask(ctx context.Context, taskID string) (*models.Task, error)
	FetchRole(ctx context.Context, login string) (models.Role, error)
	ListTasks(ctx context.Context, assignee string, limit int) ([]models.Task, error)
	ListUnassigned(ctx context.Context, limit int) ([]models.Task, error)
	SubmitDecisions(ctx context.Context, taskID string, decisions map[string]string) error
	SubmitFiles(ctx context.Context, taskID, variableKey string, files []taskflow.FileRef) error
	CompleteTask(ctx context.Context, taskID string) error
	ClaimTask(ctx context.Context, taskID, userID string) error
	UnclaimTask(ctx context.Context, taskID string) error
	DelegateTask(ctx context.Context, taskID, userID, comment string) error
	ListInstanceUsers(ctx context.Context, instanceID string) ([]models.EngineUser, error)
	AttachmentURL(fileRef string) string
}

var (
	// errInFlight означает, что действие по этому чату уже выполняется.
	errInFlight = errors.New("действие уже выполняется")
	// errActionUnavailable означает, что действие сейчас недоступно:
	// правок для отправки нет. Сетевой вызов при этом не начинается.
	errActionUnavailable = errors.New("действие недоступно: нет правок для отправки")
)

// beginAction выставляет флаг выполняющегося действия. Возвращает false,
// если действие уже идёт: второй вызов не должен начинаться, пока не
// завершился первый.
func (b *Bot) beginAction(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight[chatID] {
		return false
	}
	b.inFlight[chatID] = true
	return true
}

// endAction сбрасывает флаг выполняющегося действия
func (b *Bot) endAction(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, chatID)
}

// actionInFlight возвращает текущее состояние флага
func (b *Bot) actionInFlight(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight[chatID]
}

// executePrimary выполняет основное действие карточки задачи.
// Возвращает обновлённую задачу; nil без ошибки означает, что задача
// ушла из списка (шаг процесса завершён).
//
// Порядок обязателен: сначала проверка доступности, затем захват флага,
// затем сетевые вызовы, и после успеха — перечитывание задачи. Интерфейс
// никогда не переходит дальше на устаревшем состоянии.
func (b *Bot) executePrimary(ctx context.Context, chatID int64, view *taskView) (*models.Task, error) {
	primary := taskflow.ResolvePrimary(
		view.Role,
		view.Task.Delegation(),
		taskflow.HasDecisionVariables(view.Task),
		taskflow.CanSubmit(view.Task, view.Session),
		b.actionInFlight(chatID),
	)
	if !primary.Enabled {
		return nil, errActionUnavailable
	}
	if !b.beginAction(chatID) {
		return nil, errInFlight
	}
	defer b.endAction(chatID)

	switch primary.Kind {
	case taskflow.ActionComplete:
		if err := b.engine.CompleteTask(ctx, view.Task.ID); err != nil {
			return nil, err
		}
		if b.metrics != nil {
			b.metrics.IncTasksCompleted()
		}
	case taskflow.ActionResolve:
		if err := b.submitEdits(ctx, view); err != nil {
			return nil, err
		}
	}

	return b.refetch(ctx, view.Task.ID)
}

// submitEdits отправляет накопленные правки: изменённые решения и файлы
func (b *Bot) submitEdits(ctx context.Context, view *taskView) error {
	decisions := view.Session.ChangedDecisions(view.Task)
	if len(decisions) > 0 {
		if err := b.engine.SubmitDecisions(ctx, view.Task.ID, decisions); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(view.Session.PendingFiles))
	for key := range view.Session.PendingFiles {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		files := view.Session.PendingFiles[key]
		if len(files) == 0 {
			continue
		}
		if err := b.engine.SubmitFiles(ctx, view.Task.ID, key, files); err != nil {
			return err
		}
	}
	return nil
}

// executeClaim берёт задачу в работу от имени пользователя
func (b *Bot) executeClaim(ctx context.Context, chatID int64, taskID, userID string) (*models.Task, error) {
	if !b.beginAction(chatID) {
		return nil, errInFlight
	}
	defer b.endAction(chatID)

	if err := b.engine.ClaimTask(ctx, taskID, userID); err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.IncTasksClaimed()
	}
	return b.refetch(ctx, taskID)
}

// executeUnclaim возвращает задачу в пул неназначенных
func (b *Bot) executeUnclaim(ctx context.Context, chatID int64, taskID string) (*models.Task, error) {
	if !b.beginAction(chatID) {
		return nil, errInFlight
	}
	defer b.endAction(chatID)

	if err := b.engine.UnclaimTask(ctx, taskID); err != nil {
		return nil, err
	}
	return b.refetch(ctx, taskID)
}

// executeDelegate передаёт задачу выбранному пользователю
func (b *Bot) executeDelegate(ctx context.Context, chatID int64, taskID, userID, comment string) (*models.Task, error) {
	if !b.beginAction(chatID) {
		return nil, errInFlight
	}
	defer b.endAction(chatID)

	if err := b.engine.DelegateTask(ctx, taskID, userID, comment); err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.IncTasksDelegated()
	}
	return b.refetch(ctx, taskID)
}

// refetch перечитывает задачу после успешной мутации. Исчезновение задачи
// не ошибка: так движок сообщает, что шаг процесса закрыт.
func (b *Bot) refetch(ctx context.Context, taskID string) (*models.Task, error) {
	fresh, err := b.engine.FetchTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("действие выполнено, но обновить задачу не удалось: %w", err)
	}
	return fresh, nil
}
