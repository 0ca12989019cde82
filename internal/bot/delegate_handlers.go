// Package bot содержит диалог делегирования задачи другому участнику процесса.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"taskflow_bot/internal/taskflow"
)

// delegationState хранит состояние диалога делегирования одного чата
type delegationState struct {
	TaskID       string
	InstanceID   string
	TargetUserID string
	Stage        string // "waiting_target", "waiting_comment"
	StartTime    time.Time
}

// handleDelegateStart начинает делегирование: показывает участников процесса
func (b *Bot) handleDelegateStart(c telebot.Context, taskID string) error {
	view, ok := b.currentView(c.Chat().ID, taskID)
	if !ok {
		return c.Send("Карточка задачи устарела. Откройте задачу заново.")
	}
	if !taskflow.ShowDelegate(view.Role) {
		return c.Send("Делегирование доступно только руководителю.")
	}
	if view.Task.InstanceID == "" {
		return c.Send("У задачи не указан экземпляр процесса, делегировать некому.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	users, err := b.engine.ListInstanceUsers(ctx, view.Task.InstanceID)
	if err != nil {
		log.Printf("Ошибка получения участников процесса %s: %v", view.Task.InstanceID, err)
		return c.Send("Не удалось получить список участников процесса. Попробуйте позже.")
	}
	if len(users) == 0 {
		return c.Send("В процессе нет участников, которым можно делегировать задачу.")
	}

	b.delegations[c.Sender().ID] = &delegationState{
		TaskID:     taskID,
		InstanceID: view.Task.InstanceID,
		Stage:      "waiting_target",
		StartTime:  time.Now(),
	}

	menu := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	for _, u := range users {
		rows = append(rows, menu.Row(menu.Data("👤 "+u.DisplayName(), "delegate_to", taskID, u.ID)))
	}
	menu.Inline(rows...)

	return c.Send("Выберите, кому делегировать задачу:", menu)
}

// handleDelegateTarget фиксирует выбранного исполнителя и запрашивает комментарий
func (b *Bot) handleDelegateTarget(c telebot.Context, data string) error {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 {
		return nil
	}
	taskID, userID := parts[0], parts[1]

	d, ok := b.delegations[c.Sender().ID]
	if !ok || d.TaskID != taskID {
		return c.Send("Диалог делегирования устарел. Начните заново из карточки задачи.")
	}

	d.TargetUserID = userID
	d.Stage = "waiting_comment"
	return c.Send("Введите комментарий для исполнителя (или «-», чтобы пропустить).")
}

// handleDelegationComment завершает делегирование после ввода комментария
func (b *Bot) handleDelegationComment(c telebot.Context, d *delegationState) error {
	defer delete(b.delegations, c.Sender().ID)

	if time.Since(d.StartTime) > b.linkTimeout {
		return c.Send("Время делегирования истекло. Начните заново из карточки задачи.")
	}

	comment := strings.TrimSpace(c.Text())
	if comment == "-" {
		comment = ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	fresh, err := b.executeDelegate(ctx, c.Chat().ID, d.TaskID, d.TargetUserID, comment)
	switch {
	case errors.Is(err, errInFlight):
		return c.Send("Действие уже выполняется, дождитесь завершения.")
	case err != nil:
		log.Printf("Ошибка делегирования задачи %s: %v", d.TaskID, err)
		return c.Send("❌ Не удалось делегировать задачу: " + err.Error())
	}

	if fresh == nil {
		delete(b.views, c.Chat().ID)
		if err := c.Send("✅ Задача делегирована и убрана из вашего списка."); err != nil {
			return err
		}
		return b.handleMyTasks(c)
	}

	if view, ok := b.currentView(c.Chat().ID, d.TaskID); ok {
		view.Task = fresh
		view.Session = taskflow.NewSession(fresh)
		if err := c.Send(fmt.Sprintf("✅ Задача «%s» делегирована.", fresh.Name)); err != nil {
			return err
		}
		return b.sendCard(c, view)
	}
	return c.Send(fmt.Sprintf("✅ Задача «%s» делегирована.", fresh.Name))
}
