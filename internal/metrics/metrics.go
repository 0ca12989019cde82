// Package metrics содержит счётчики и метрики, используемые в приложении.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics хранит метрики работы приложения
type Metrics struct {
	LinkedUsers    int64
	TasksClaimed   int64
	TasksCompleted int64
	TasksDelegated int64
	APIRequests    int64
	APIErrors      int64
	AverageLatency time.Duration
	mu             sync.RWMutex
}

// NewMetrics создает новый экземпляр метрик
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncLinkedUsers увеличивает счетчик привязанных пользователей
func (m *Metrics) IncLinkedUsers() { atomic.AddInt64(&m.LinkedUsers, 1) }

// IncTasksClaimed увеличивает счетчик взятых в работу задач
func (m *Metrics) IncTasksClaimed() { atomic.AddInt64(&m.TasksClaimed, 1) }

// IncTasksCompleted увеличивает счетчик завершенных задач
func (m *Metrics) IncTasksCompleted() { atomic.AddInt64(&m.TasksCompleted, 1) }

// IncTasksDelegated увеличивает счетчик делегированных задач
func (m *Metrics) IncTasksDelegated() { atomic.AddInt64(&m.TasksDelegated, 1) }

// IncAPIRequests увеличивает счетчик запросов к движку
func (m *Metrics) IncAPIRequests() { atomic.AddInt64(&m.APIRequests, 1) }

// IncAPIErrors увеличивает счетчик ошибок движка
func (m *Metrics) IncAPIErrors() { atomic.AddInt64(&m.APIErrors, 1) }

// UpdateLatency обновляет среднее время ответа
func (m *Metrics) UpdateLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Простое скользящее среднее
	if m.AverageLatency == 0 {
		m.AverageLatency = d
	} else {
		m.AverageLatency = (m.AverageLatency + d) / 2
	}
}

// GetStats возвращает текущие метрики
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"linked_users":    atomic.LoadInt64(&m.LinkedUsers),
		"tasks_claimed":   atomic.LoadInt64(&m.TasksClaimed),
		"tasks_completed": atomic.LoadInt64(&m.TasksCompleted),
		"tasks_delegated": atomic.LoadInt64(&m.TasksDelegated),
		"api_requests":    atomic.LoadInt64(&m.APIRequests),
		"api_errors":      atomic.LoadInt64(&m.APIErrors),
		"average_latency": m.AverageLatency.String(),
	}
}
