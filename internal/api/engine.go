// Package api реализует клиент REST API движка бизнес-процессов.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskflow_bot/internal/metrics"
	"taskflow_bot/internal/models"
	"taskflow_bot/internal/taskflow"
)

var (
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrNotFound        = fmt.Errorf("not found")
	ErrPayloadTooLarge = fmt.Errorf("payload too large")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
)

// listCache представляет кэш списка задач для одного запроса
type listCache struct {
	tasks     []models.Task
	updatedAt time.Time
}

// Client представляет клиент для работы с API движка процессов.
// Карточка задачи (FetchTask) никогда не кэшируется: после каждой мутации
// бот перечитывает задачу заново. Кэшируются только списки задач.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics

	mu         sync.RWMutex
	lists      map[string]*listCache
	expiration time.Duration

	retryCount      int
	retryWait       time.Duration
	maxRetryElapsed time.Duration
}

// NewClient создает новый клиент API движка
func NewClient(token, baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics:    m,
		lists:      make(map[string]*listCache),
		expiration: time.Minute,
		retryCount: 1,
		retryWait:  500 * time.Millisecond,
	}
}

// SetRetryPolicy настраивает политику повторов для запросов к движку.
func (c *Client) SetRetryPolicy(count int, wait, maxElapsed time.Duration) {
	c.retryCount = count
	c.retryWait = wait
	c.maxRetryElapsed = maxElapsed
}

// statusError преобразует код ответа в ошибку клиента
func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case http.StatusTooManyRequests:
		return ErrRateLimit
	default:
		return fmt.Errorf("неверный код ответа: %d", code)
	}
}

// do выполняет запрос с повторами при сетевых ошибках и ответах 5xx.
// Тело запроса передается срезом байт, чтобы повтор мог отправить его заново.
// Ошибки 4xx не повторяются.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, wantStatus int, out interface{}, headers map[string]string) error {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.IncAPIRequests()
		defer func() {
			c.metrics.UpdateLatency(time.Since(start))
		}()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			if c.maxRetryElapsed > 0 && time.Since(start) > c.maxRetryElapsed {
				break
			}
			select {
			case <-time.After(c.retryWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("ошибка создания запроса: %w", err)
		}
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("ошибка выполнения запроса: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = statusError(resp.StatusCode)
			continue
		}

		if resp.StatusCode != wantStatus {
			resp.Body.Close()
			if c.metrics != nil {
				c.metrics.IncAPIErrors()
			}
			return statusError(resp.StatusCode)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				resp.Body.Close()
				if c.metrics != nil {
					c.metrics.IncAPIErrors()
				}
				return fmt.Errorf("ошибка декодирования ответа: %w", err)
			}
		}
		resp.Body.Close()
		return nil
	}

	if c.metrics != nil {
		c.metrics.IncAPIErrors()
	}
	return lastErr
}

// FetchTask получает карточку задачи по идентификатору
func (c *Client) FetchTask(ctx context.Context, taskID string) (*models.Task, error) {
	var result struct {
		Data models.Task `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/tasks/%s", url.PathEscape(taskID))
	if err := c.do(ctx, "GET", path, nil, "", http.StatusOK, &result, nil); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

// FetchRole получает роль текущего пользователя движка.
// Токен идентифицирует пользователя, поэтому логин передаётся параметром
// только для учёток, действующих от имени нескольких сотрудников.
func (c *Client) FetchRole(ctx context.Context, login string) (models.Role, error) {
	var result struct {
		Data struct {
			Role string `json:"role"`
		} `json:"data"`
	}
	path := "/api/v1/profile/role"
	if login != "" {
		path += "?login=" + url.QueryEscape(login)
	}
	if err := c.do(ctx, "GET", path, nil, "", http.StatusOK, &result, nil); err != nil {
		return models.RoleOther, err
	}
	return models.ParseRole(result.Data.Role), nil
}

// ListTasks получает список задач исполнителя. Списки кэшируются на короткое
// время, карточки задач — никогда.
func (c *Client) ListTasks(ctx context.Context, assignee string, limit int) ([]models.Task, error) {
	key := "assignee:" + assignee
	if tasks, ok := c.cachedList(key); ok {
		return tasks, nil
	}

	var result struct {
		Data []models.Task `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/tasks?assignee=%s&limit=%d", url.QueryEscape(assignee), limit)
	if err := c.do(ctx, "GET", path, nil, "", http.StatusOK, &result, nil); err != nil {
		return nil, err
	}

	c.storeList(key, result.Data)
	return result.Data, nil
}

// ListUnassigned получает пул неназначенных задач
func (c *Client) ListUnassigned(ctx context.Context, limit int) ([]models.Task, error) {
	key := "unassigned"
	if tasks, ok := c.cachedList(key); ok {
		return tasks, nil
	}

	var result struct {
		Data []models.Task `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/tasks?unassigned=true&limit=%d", limit)
	if err := c.do(ctx, "GET", path, nil, "", http.StatusOK, &result, nil); err != nil {
		return nil, err
	}

	c.storeList(key, result.Data)
	return result.Data, nil
}

// cachedList возвращает закэшированный список, если он ещё не устарел
func (c *Client) cachedList(key string) ([]models.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.lists[key]
	if !ok || time.Since(entry.updatedAt) >= c.expiration {
		return nil, false
	}
	tasks := make([]models.Task, len(entry.tasks))
	copy(tasks, entry.tasks)
	return tasks, true
}

// storeList обновляет кэш списка задач
func (c *Client) storeList(key string, tasks []models.Task) {
	copied := make([]models.Task, len(tasks))
	copy(copied, tasks)
	c.mu.Lock()
	c.lists[key] = &listCache{tasks: copied, updatedAt: time.Now()}
	c.mu.Unlock()
}

// InvalidateLists сбрасывает кэш списков задач. Вызывается после мутаций,
// меняющих состав списков (claim/unclaim/complete).
func (c *Client) InvalidateLists() {
	c.mu.Lock()
	c.lists = make(map[string]*listCache)
	c.mu.Unlock()
}

// opResult — ответ движка на операции отправки правок и завершения
type opResult struct {
	Data struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	} `json:"data"`
}

// claimResult — ответ движка на claim/unclaim
type claimResult struct {
	Data struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

// delegateResult — ответ движка на делегирование
type delegateResult struct {
	Data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}

// SubmitDecisions отправляет изменённые переменные-решения задачи
func (c *Client) SubmitDecisions(ctx context.Context, taskID string, decisions map[string]string) error {
	payload, err := json.Marshal(map[string]interface{}{"decisions": decisions})
	if err != nil {
		return fmt.Errorf("ошибка сериализации решений: %w", err)
	}

	var result opResult
	path := fmt.Sprintf("/api/v1/tasks/%s/decisions", url.PathEscape(taskID))
	if err := c.do(ctx, "POST", path, payload, "application/json", http.StatusOK, &result, nil); err != nil {
		return err
	}
	if !result.Data.Success {
		return opError("отправка решений отклонена движком", result.Data.Message)
	}
	return nil
}

// SubmitFiles загружает файлы для переменной-документа задачи.
// Запрос формируется как multipart: часть metadata с описанием переменной
// и по одной части на каждый файл.
func (c *Client) SubmitFiles(ctx context.Context, taskID, variableKey string, files []taskflow.FileRef) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Disposition", `form-data; name="metadata"`)
	metaHeader.Set("Content-Type", "application/json")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return fmt.Errorf("ошибка создания части metadata: %w", err)
	}
	meta := map[string]string{"variable": variableKey}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return fmt.Errorf("ошибка кодирования metadata: %w", err)
	}

	for _, f := range files {
		fileHeader := textproto.MIMEHeader{}
		fileHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, f.Name))
		fileHeader.Set("Content-Type", "application/octet-stream")
		filePart, err := writer.CreatePart(fileHeader)
		if err != nil {
			return fmt.Errorf("ошибка создания части file: %w", err)
		}
		if _, err := filePart.Write(f.Data); err != nil {
			return fmt.Errorf("ошибка записи файла: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия writer: %w", err)
	}

	var result opResult
	path := fmt.Sprintf("/api/v1/tasks/%s/attachments", url.PathEscape(taskID))
	if err := c.do(ctx, "POST", path, body.Bytes(), writer.FormDataContentType(), http.StatusCreated, &result, nil); err != nil {
		return err
	}
	if !result.Data.Success {
		return opError("загрузка файлов отклонена движком", result.Data.Message)
	}
	return nil
}

// CompleteTask завершает шаг процесса
func (c *Client) CompleteTask(ctx context.Context, taskID string) error {
	var result opResult
	path := fmt.Sprintf("/api/v1/tasks/%s/complete", url.PathEscape(taskID))
	if err := c.do(ctx, "POST", path, []byte("{}"), "application/json", http.StatusOK, &result, nil); err != nil {
		return err
	}
	if !result.Data.Success {
		return opError("завершение задачи отклонено движком", result.Data.Message)
	}
	c.InvalidateLists()
	return nil
}

// ClaimTask назначает текущего пользователя исполнителем задачи
func (c *Client) ClaimTask(ctx context.Context, taskID, userID string) error {
	payload, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	var result claimResult
	path := fmt.Sprintf("/api/v1/tasks/%s/claim", url.PathEscape(taskID))
	if err := c.do(ctx, "POST", path, payload, "application/json", http.StatusOK, &result, nil); err != nil {
		return err
	}
	if !result.Data.Status {
		return opError("задачу не удалось взять в работу", result.Data.Message)
	}
	c.InvalidateLists()
	return nil
}

// UnclaimTask возвращает задачу в пул неназначенных
func (c *Client) UnclaimTask(ctx context.Context, taskID string) error {
	var result claimResult
	path := fmt.Sprintf("/api/v1/tasks/%s/unclaim", url.PathEscape(taskID))
	if err := c.do(ctx, "POST", path, []byte("{}"), "application/json", http.StatusOK, &result, nil); err != nil {
		return err
	}
	if !result.Data.Status {
		return opError("задачу не удалось вернуть в пул", result.Data.Message)
	}
	c.InvalidateLists()
	return nil
}

// DelegateTask передает задачу другому пользователю. Запрос снабжается
// идемпотентным ключом, чтобы повторы не породили второе делегирование.
func (c *Client) DelegateTask(ctx context.Context, taskID, userID, comment string) error {
	payload, err := json.Marshal(map[string]string{
		"userId":  userID,
		"comment": comment,
	})
	if err != nil {
		return fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	headers := map[string]string{"X-Idempotency-Key": uuid.NewString()}

	var result delegateResult
	path := fmt.Sprintf("/api/v1/tasks/%s/delegate", url.PathEscape(taskID))
	if err := c.do(ctx, "POST", path, payload, "application/json", http.StatusOK, &result, headers); err != nil {
		return err
	}
	if result.Data.Code != 0 {
		return opError(fmt.Sprintf("делегирование отклонено движком (код %d)", result.Data.Code), result.Data.Message)
	}
	return nil
}

// ListInstanceUsers получает пользователей, участвующих в экземпляре процесса.
// Список используется диалогом выбора исполнителя при делегировании.
func (c *Client) ListInstanceUsers(ctx context.Context, instanceID string) ([]models.EngineUser, error) {
	var result struct {
		Data []models.EngineUser `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/instances/%s/users", url.PathEscape(instanceID))
	if err := c.do(ctx, "GET", path, nil, "", http.StatusOK, &result, nil); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// AttachmentURL возвращает ссылку на скачивание сохранённого файла по его
// ссылке-идентификатору из переменной-документа.
func (c *Client) AttachmentURL(fileRef string) string {
	return fmt.Sprintf("%s/api/v1/files/%s", c.baseURL, url.PathEscape(fileRef))
}

// opError формирует ошибку операции: серверное сообщение, если оно есть,
// иначе общий текст
func opError(fallback, message string) error {
	if message != "" {
		return fmt.Errorf("%s: %s", fallback, message)
	}
	return fmt.Errorf("%s", fallback)
}
