// Package storage реализует файл-ориентированное хранилище данных приложения.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taskflow_bot/internal/metrics"
	"taskflow_bot/internal/models"
)

// Storage представляет файл-ориентированное хранилище данных приложения.
// Хранит привязки пользователей, чаты для уведомлений и идентификаторы
// задач, о которых уже были отправлены уведомления.
type Storage struct {
	seenTasks    map[string]bool
	chatIDs      []int64
	users        map[int64]*models.User
	usersByLogin map[string]int64 // индекс для поиска по логину движка
	mu           sync.RWMutex
	isDirty      bool // флаг изменения данных

	seenTasksFile string
	chatIDsFile   string
	usersFile     string

	metrics *metrics.Metrics
}

// NewStorage создает новое хранилище и загружает данные из каталога dir.
func NewStorage(dir string, m *metrics.Metrics) (*Storage, error) {
	s := &Storage{
		seenTasks:     make(map[string]bool),
		chatIDs:       make([]int64, 0),
		users:         make(map[int64]*models.User),
		usersByLogin:  make(map[string]int64),
		seenTasksFile: filepath.Join(dir, "seen_tasks.json"),
		chatIDsFile:   filepath.Join(dir, "chat_ids.json"),
		usersFile:     filepath.Join(dir, "users.json"),
		metrics:       m,
	}

	if err := s.loadData(); err != nil {
		return nil, err
	}

	return s, nil
}

// loadData загружает данные из файлов
func (s *Storage) loadData() error {
	if err := s.loadJSON(s.seenTasksFile, &s.seenTasks); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := s.loadJSON(s.chatIDsFile, &s.chatIDs); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := s.loadJSON(s.usersFile, &s.users); err != nil && !os.IsNotExist(err) {
		return err
	}
	// Восстановим индекс usersByLogin
	s.usersByLogin = make(map[string]int64, len(s.users))
	for id, u := range s.users {
		if u != nil && u.EngineLogin != "" {
			s.usersByLogin[u.EngineLogin] = id
		}
	}
	return nil
}

// SaveData сохраняет текущие данные в файлы, если есть изменения.
// Осуществляет атомарную запись через временные файлы.
func (s *Storage) SaveData() error {
	s.mu.RLock()
	if !s.isDirty {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	if err := s.saveJSON(s.seenTasksFile, s.seenTasks); err != nil {
		return err
	}
	if err := s.saveJSON(s.chatIDsFile, s.chatIDs); err != nil {
		return err
	}
	if err := s.saveJSON(s.usersFile, s.users); err != nil {
		return err
	}

	s.isDirty = false
	if s.metrics != nil {
		s.metrics.UpdateLatency(time.Since(start))
	}
	return nil
}

// loadJSON загружает данные из JSON файла
func (s *Storage) loadJSON(filename string, v interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// saveJSON сохраняет данные в JSON файл
func (s *Storage) saveJSON(filename string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Записываем во временный файл и затем переименовываем — атомарная запись
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

// MarkTaskSeen отмечает, что уведомление о задаче уже отправлялось.
func (s *Storage) MarkTaskSeen(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seenTasks[taskID] = true
	s.isDirty = true
}

// IsTaskSeen возвращает true, если задача уже была увидена ранее.
func (s *Storage) IsTaskSeen(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seenTasks[taskID]
}

// AddChatID добавляет идентификатор чата, в который будут отправляться уведомления.
func (s *Storage) AddChatID(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.chatIDs {
		if id == chatID {
			return
		}
	}
	s.chatIDs = append(s.chatIDs, chatID)
	s.isDirty = true
}

// GetChatIDs возвращает копию списка идентификаторов чатов.
func (s *Storage) GetChatIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]int64, len(s.chatIDs))
	copy(result, s.chatIDs)
	return result
}

// AddUser добавляет привязку пользователя.
func (s *Storage) AddUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.TelegramID] = user
	if user.EngineLogin != "" {
		s.usersByLogin[user.EngineLogin] = user.TelegramID
	}
	s.isDirty = true
}

// GetUser возвращает пользователя по Telegram ID и флаг, найден ли он.
func (s *Storage) GetUser(telegramID int64) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[telegramID]
	return user, ok
}

// GetUserByLogin возвращает пользователя по логину в движке.
func (s *Storage) GetUserByLogin(login string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByLogin[login]
	if !ok {
		return nil, false
	}
	user, ok := s.users[id]
	return user, ok
}

// GetAllUsers возвращает срез всех пользователей, сохранённых в хранилище.
func (s *Storage) GetAllUsers() []*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users
}

// UpdateUser обновляет или создает запись пользователя и поддерживает индекс логинов.
func (s *Storage) UpdateUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Если пользователь уже существует, удаляем его старый логин из индекса
	if oldUser, ok := s.users[user.TelegramID]; ok && oldUser.EngineLogin != "" {
		delete(s.usersByLogin, oldUser.EngineLogin)
	}

	s.users[user.TelegramID] = user

	if user.EngineLogin != "" {
		s.usersByLogin[user.EngineLogin] = user.TelegramID
	}
	s.isDirty = true
}
