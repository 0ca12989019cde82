// Package bot реализует Telegram-интерфейс к движку бизнес-процессов:
// списки задач, карточку задачи с действиями и диалог делегирования.
package bot

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gopkg.in/telebot.v3"

	"taskflow_bot/internal/api"
	"taskflow_bot/internal/metrics"
	"taskflow_bot/internal/models"
	"taskflow_bot/internal/storage"
	"taskflow_bot/internal/taskflow"
)

// Кнопки основного меню
var (
	mainMenu    = &telebot.ReplyMarkup{ResizeKeyboard: true}
	btnMyTasks  = mainMenu.Text("📋 Мои задачи")
	btnPool     = mainMenu.Text("🆓 Свободные задачи")
	btnSearch   = mainMenu.Text("🔍 Поиск")
	btnHelp     = mainMenu.Text("❓ Помощь")
)

// LinkState хранит состояние привязки Telegram-аккаунта к учётке движка
type LinkState struct {
	StartTime time.Time
	Stage     string // "waiting_login"
}

// uploadTarget описывает, к какой переменной какой задачи прикрепится
// следующий присланный файл
type uploadTarget struct {
	TaskID      string
	VariableKey string
}

// taskView представляет открытую карточку задачи: саму задачу, роль
// пользователя и сессию правок. Карточка принадлежит одному чату.
type taskView struct {
	Task    *models.Task
	Role    models.Role
	Session *taskflow.Session
}

// Bot представляет Telegram бота
type Bot struct {
	bot     *telebot.Bot
	storage *storage.Storage
	engine  engineAPI
	metrics *metrics.Metrics

	taskLimit     int
	pageSize      int
	actionTimeout time.Duration
	linkTimeout   time.Duration

	notifications chan string

	linkStates    map[int64]*LinkState
	views         map[int64]*taskView
	uploadTargets map[int64]uploadTarget
	searchStates  map[int64]bool
	delegations   map[int64]*delegationState

	// inFlight — авторитетный флаг выполняющегося действия: выставляется
	// синхронно до начала сетевого вызова, поэтому повторное нажатие
	// не может запустить второй вызов.
	inFlight map[int64]bool
	mu       sync.Mutex
}

// Options задает параметры создания бота.
type Options struct {
	Token         string
	TaskLimit     int
	PageSize      int
	ActionTimeout time.Duration
	LinkTimeout   time.Duration
}

// NewBot создает нового бота
func NewBot(opts Options, store *storage.Storage, engine *api.Client, m *metrics.Metrics) (*Bot, error) {
	b, err := telebot.NewBot(telebot.Settings{
		Token:  opts.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания бота: %w", err)
	}

	bot := &Bot{
		bot:           b,
		storage:       store,
		engine:        engine,
		metrics:       m,
		taskLimit:     opts.TaskLimit,
		pageSize:      opts.PageSize,
		actionTimeout: opts.ActionTimeout,
		linkTimeout:   opts.LinkTimeout,
		notifications: make(chan string, 100),
		linkStates:    make(map[int64]*LinkState),
		views:         make(map[int64]*taskView),
		uploadTargets: make(map[int64]uploadTarget),
		searchStates:  make(map[int64]bool),
		delegations:   make(map[int64]*delegationState),
		inFlight:      make(map[int64]bool),
	}

	// Настраиваем клавиатуру основного меню
	mainMenu.Reply(
		mainMenu.Row(btnMyTasks, btnPool),
		mainMenu.Row(btnSearch, btnHelp),
	)

	bot.setupHandlers()
	return bot, nil
}

// setupHandlers настраивает обработчики команд
func (b *Bot) setupHandlers() {
	// Стандартные команды
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/help", b.handleHelp)
	b.bot.Handle("/tasks", b.handleMyTasks)
	b.bot.Handle("/pool", b.handlePool)

	// Обработчики кнопок
	b.bot.Handle(&btnMyTasks, b.handleMyTasks)
	b.bot.Handle(&btnPool, b.handlePool)
	b.bot.Handle(&btnSearch, b.handleSearchPrompt)
	b.bot.Handle(&btnHelp, b.handleHelp)

	// Callback-обработчики карточки задачи и делегирования
	b.bot.Handle(telebot.OnCallback, b.handleCallback)

	// Обработчик текстовых сообщений
	b.bot.Handle(telebot.OnText, b.handleMessage)

	// Вложения к переменным-документам
	b.bot.Handle(telebot.OnDocument, b.handleDocument)
	b.bot.Handle(telebot.OnPhoto, b.handlePhoto)
}

// handleStart обрабатывает команду /start
func (b *Bot) handleStart(c telebot.Context) error {
	if user, exists := b.storage.GetUser(c.Sender().ID); exists && user.EngineLogin != "" {
		b.storage.AddChatID(c.Chat().ID)
		return c.Send(fmt.Sprintf("Вы уже привязаны к учётной записи %s.", user.EngineLogin), mainMenu)
	}

	b.linkStates[c.Sender().ID] = &LinkState{
		StartTime: time.Now(),
		Stage:     "waiting_login",
	}
	return c.Send("Добро пожаловать! Введите ваш логин в системе управления процессами.")
}

// handleHelp обрабатывает команду /help
func (b *Bot) handleHelp(c telebot.Context) error {
	if _, exists := b.storage.GetUser(c.Sender().ID); !exists {
		return c.Send(`Доступные команды:
/start - Привязать учётную запись
/help - Показать это сообщение`)
	}

	return c.Send(`Доступные команды:
/start - Привязать учётную запись
/tasks - Мои задачи
/pool - Свободные задачи
/help - Показать это сообщение

В карточке задачи доступны действия по вашей роли:
отправка решений и файлов, завершение, взятие в работу,
возврат в пул и делегирование.`, mainMenu)
}

// handleMessage обрабатывает текстовые сообщения
func (b *Bot) handleMessage(c telebot.Context) error {
	// Привязка учётной записи
	if state, ok := b.linkStates[c.Sender().ID]; ok {
		return b.handleLinkInput(c, state)
	}

	// Ожидание поискового запроса
	if b.searchStates[c.Sender().ID] {
		delete(b.searchStates, c.Sender().ID)
		return b.showTaskList(c, strings.TrimSpace(c.Text()), 0)
	}

	// Ожидание комментария к делегированию
	if d, ok := b.delegations[c.Sender().ID]; ok && d.Stage == "waiting_comment" {
		return b.handleDelegationComment(c, d)
	}

	if _, exists := b.storage.GetUser(c.Sender().ID); !exists {
		return c.Send("Пожалуйста, используйте /start для привязки учётной записи.")
	}

	return nil
}

// handleSearchPrompt запрашивает поисковую строку
func (b *Bot) handleSearchPrompt(c telebot.Context) error {
	if _, exists := b.storage.GetUser(c.Sender().ID); !exists {
		return c.Send("Пожалуйста, сначала привяжите учётную запись командой /start.")
	}
	b.searchStates[c.Sender().ID] = true
	return c.Send("Введите строку для поиска по названию, описанию или исполнителю.")
}

// Start запускает бота
func (b *Bot) Start() {
	// Запускаем обработку уведомлений
	go func() {
		for msg := range b.notifications {
			b.SendNotification(msg)
		}
	}()

	go b.bot.Start()
}

// Stop останавливает бота
func (b *Bot) Stop() {
	close(b.notifications)
	b.bot.Stop()
}

// SendNotification отправляет уведомление всем подписанным чатам
func (b *Bot) SendNotification(msg string) {
	for _, chatID := range b.storage.GetChatIDs() {
		if _, err := b.bot.Send(&telebot.Chat{ID: chatID}, msg); err != nil {
			log.Printf("Ошибка отправки уведомления в чат %d: %v", chatID, err)
		}
	}
}

// NotificationChannel возвращает канал для отправки уведомлений
func (b *Bot) NotificationChannel() chan<- string {
	return b.notifications
}
