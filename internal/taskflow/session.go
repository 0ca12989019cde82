package taskflow

import (
	"strings"

	"taskflow_bot/internal/models"
)

// FileRef представляет выбранный пользователем, но ещё не отправленный файл.
type FileRef struct {
	Name string
	Data []byte
}

// Session хранит локальные правки карточки задачи: выбранные решения,
// прикреплённые файлы и факт открытия вложений. Сессия живёт от открытия
// карточки до успешной отправки, никогда не сохраняется и восстанавливается
// из задачи при каждом новом получении данных.
type Session struct {
	// PendingFiles — ещё не отправленные файлы по ключу переменной-документа.
	PendingFiles map[string][]FileRef
	// PendingDecisions — выбранные значения переменных-решений,
	// изначально заполняются текущими значениями из задачи.
	PendingDecisions map[string]string
	// DownloadsAcknowledged выставляется при первом открытии любого вложения.
	// Используется как признак того, что пользователь ознакомился с материалами.
	DownloadsAcknowledged bool
}

// NewSession создает сессию правок для задачи. Переменные-решения
// предзаполняются их текущими значениями.
func NewSession(task *models.Task) *Session {
	s := &Session{
		PendingFiles:     make(map[string][]FileRef),
		PendingDecisions: make(map[string]string),
	}
	for key, v := range task.Variables {
		if IsDecisionVariable(key) {
			s.PendingDecisions[key] = v.Value
		}
	}
	return s
}

// SetDecision запоминает выбранное значение переменной-решения.
func (s *Session) SetDecision(key, value string) {
	s.PendingDecisions[key] = value
}

// AddFile добавляет файл к переменной-документу.
func (s *Session) AddFile(key string, f FileRef) {
	s.PendingFiles[key] = append(s.PendingFiles[key], f)
}

// AcknowledgeDownload отмечает, что пользователь открыл вложение.
func (s *Session) AcknowledgeDownload() {
	s.DownloadsAcknowledged = true
}

// ChangedDecisions возвращает решения, отличающиеся от исходных значений
// задачи (без учёта регистра) и при этом непустые. Пустое решение
// считается отсутствием решения, а не ошибкой.
func (s *Session) ChangedDecisions(task *models.Task) map[string]string {
	changed := make(map[string]string)
	for key, value := range s.PendingDecisions {
		if value == "" {
			continue
		}
		original := task.Variables[key].Value
		if !strings.EqualFold(value, original) {
			changed[key] = value
		}
	}
	return changed
}

// CanSubmit решает, достаточно ли накопленных правок для отправки.
// Достаточно любого из трёх условий (включающее ИЛИ, не чек-лист):
//  1. хотя бы одно решение изменено на непустое значение;
//  2. хотя бы к одной переменной-документу прикреплён файл;
//  3. пользователь открывал вложения.
func CanSubmit(task *models.Task, s *Session) bool {
	if len(s.ChangedDecisions(task)) > 0 {
		return true
	}
	for _, files := range s.PendingFiles {
		if len(files) > 0 {
			return true
		}
	}
	return s.DownloadsAcknowledged
}
