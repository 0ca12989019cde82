// Package storage содержит тесты для файлового хранилища приложения.
package storage

import (
	"testing"
	"time"

	"taskflow_bot/internal/metrics"
	"taskflow_bot/internal/models"
)

func TestStorageSaveLoadUsers(t *testing.T) {
	dir := t.TempDir()

	m := metrics.NewMetrics()
	s, err := NewStorage(dir, m)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	s.AddUser(&models.User{
		TelegramID:  100500,
		Username:    "alice_tg",
		EngineLogin: "alice",
		Role:        "staff",
		LinkedAt:    time.Now(),
	})
	s.AddChatID(42)
	s.MarkTaskSeen("task-1")

	// Запускаем SaveData с таймаутом, чтобы поймать возможный deadlock
	done := make(chan error, 1)
	go func() {
		done <- s.SaveData()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SaveData failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("SaveData timed out (possible deadlock)")
	}

	// Создаем новое хранилище и проверяем загрузку
	s2, err := NewStorage(dir, m)
	if err != nil {
		t.Fatalf("NewStorage load failed: %v", err)
	}

	user, ok := s2.GetUser(100500)
	if !ok || user.EngineLogin != "alice" {
		t.Fatalf("пользователь не сохранился, получено: %+v", user)
	}

	// Индекс по логину восстанавливается при загрузке
	byLogin, ok := s2.GetUserByLogin("alice")
	if !ok || byLogin.TelegramID != 100500 {
		t.Fatalf("индекс по логину не восстановился")
	}

	if !s2.IsTaskSeen("task-1") {
		t.Fatalf("отметка об увиденной задаче не сохранилась")
	}
	if s2.IsTaskSeen("task-2") {
		t.Fatalf("неизвестная задача не должна считаться увиденной")
	}

	chats := s2.GetChatIDs()
	if len(chats) != 1 || chats[0] != 42 {
		t.Fatalf("чаты не сохранились: %v", chats)
	}
}

func TestUpdateUserReindexesLogin(t *testing.T) {
	s, err := NewStorage(t.TempDir(), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	s.AddUser(&models.User{TelegramID: 1, EngineLogin: "old_login"})

	s.UpdateUser(&models.User{TelegramID: 1, EngineLogin: "new_login"})

	if _, ok := s.GetUserByLogin("old_login"); ok {
		t.Fatalf("старый логин должен быть удален из индекса")
	}
	if u, ok := s.GetUserByLogin("new_login"); !ok || u.TelegramID != 1 {
		t.Fatalf("новый логин должен находиться в индексе")
	}
}

func TestAddChatIDDeduplicates(t *testing.T) {
	s, err := NewStorage(t.TempDir(), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	s.AddChatID(7)
	s.AddChatID(7)

	if got := s.GetChatIDs(); len(got) != 1 {
		t.Fatalf("чат не должен дублироваться, получено: %v", got)
	}
}
