// Package bot содержит привязку Telegram-аккаунта к учётной записи движка.
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"taskflow_bot/internal/models"
)

// handleLinkInput обрабатывает ввод логина при привязке учётной записи
func (b *Bot) handleLinkInput(c telebot.Context, state *LinkState) error {
	// Проверяем таймаут привязки
	if time.Since(state.StartTime) > b.linkTimeout {
		delete(b.linkStates, c.Sender().ID)
		return c.Send("Время привязки истекло. Пожалуйста, используйте /start для начала заново.")
	}

	login := strings.TrimSpace(c.Text())
	if len(login) < 2 {
		return c.Send("Логин должен содержать минимум 2 символа. Пожалуйста, попробуйте снова.")
	}

	// Роль проверяется в движке: заодно убеждаемся, что логин существует
	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	role, err := b.engine.FetchRole(ctx, login)
	if err != nil {
		log.Printf("Ошибка проверки логина %q: %v", login, err)
		return c.Send("Не удалось проверить логин в движке процессов. Попробуйте ещё раз.")
	}

	user := &models.User{
		TelegramID:  c.Sender().ID,
		Username:    c.Sender().Username,
		EngineLogin: login,
		Role:        string(role),
		LinkedAt:    time.Now(),
	}
	b.storage.AddUser(user)
	b.storage.AddChatID(c.Chat().ID)
	if err := b.storage.SaveData(); err != nil {
		log.Printf("Ошибка сохранения данных: %v", err)
	}
	if b.metrics != nil {
		b.metrics.IncLinkedUsers()
	}

	delete(b.linkStates, c.Sender().ID)
	return c.Send(fmt.Sprintf("Учётная запись %s привязана. Ваша роль: %s.", login, roleTitle(role)), mainMenu)
}

// roleTitle возвращает человекочитаемое название роли
func roleTitle(role models.Role) string {
	switch role {
	case models.RoleManager:
		return "руководитель"
	case models.RoleStaff:
		return "исполнитель"
	default:
		return "наблюдатель"
	}
}

// currentRole возвращает нормализованную роль пользователя чата.
// Роль берётся из кэша привязки; при открытии карточки она обновляется из движка.
func (b *Bot) currentRole(telegramID int64) models.Role {
	user, ok := b.storage.GetUser(telegramID)
	if !ok {
		return models.RoleOther
	}
	return models.ParseRole(user.Role)
}

// refreshRole запрашивает актуальную роль из движка и обновляет кэш привязки.
// При ошибке возвращается закэшированная роль: карточка остаётся рабочей.
func (b *Bot) refreshRole(ctx context.Context, telegramID int64) models.Role {
	user, ok := b.storage.GetUser(telegramID)
	if !ok {
		return models.RoleOther
	}

	role, err := b.engine.FetchRole(ctx, user.EngineLogin)
	if err != nil {
		log.Printf("Ошибка обновления роли пользователя %d: %v", telegramID, err)
		return models.ParseRole(user.Role)
	}

	if string(role) != user.Role {
		user.Role = string(role)
		b.storage.UpdateUser(user)
	}
	return role
}
