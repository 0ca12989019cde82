// Программа запускает Telegram-бота и фоновые службы для интеграции
// с движком бизнес-процессов.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskflow_bot/internal/api"
	"taskflow_bot/internal/bot"
	"taskflow_bot/internal/config"
	"taskflow_bot/internal/logger"
	"taskflow_bot/internal/metrics"
	"taskflow_bot/internal/models"
	"taskflow_bot/internal/ops"
	"taskflow_bot/internal/storage"
	"taskflow_bot/internal/taskflow"

	"github.com/joho/godotenv"
)

func init() {
	// Загружаем переменные из .env файла
	if err := godotenv.Load(); err != nil {
		// Если файл .env не найден, используем переменные окружения системы
		log.Printf("Файл .env не найден, используем переменные окружения системы")
	}
}

// main является точкой входа в приложение
// Выполняет следующие шаги:
// 1. Читает конфигурацию из файла и окружения
// 2. Настраивает логирование
// 3. Создает хранилище данных
// 4. Инициализирует клиент движка процессов
// 5. Создает и запускает Telegram бота и служебный HTTP-сервер
// 6. Запускает фоновые процессы (сохранение данных, проверка задач)
// 7. Ожидает сигнал завершения для graceful shutdown
func main() {
	// Создаем контекст с поддержкой отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Неполная конфигурация: %v", err)
	}

	// Инициализируем метрики
	m := metrics.NewMetrics()

	// Настройка логирования
	logWriter, err := logger.Setup(logger.Options{
		Filename: cfg.Logging.File,
		MaxSize:  cfg.Logging.MaxSize,
		MaxAge:   cfg.Logging.MaxAge,
	})
	if err != nil {
		log.Fatalf("Ошибка создания писателя логов: %v", err)
	}
	defer logWriter.Close()

	// Инициализация хранилища
	store, err := storage.NewStorage(cfg.Storage.Path, m)
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилища: %v", err)
	}

	// Создание клиента движка процессов
	engineClient := api.NewClient(
		cfg.API.Engine.Token,
		cfg.API.Engine.BaseURL,
		cfg.API.Engine.Timeout,
		m,
	)
	engineClient.SetRetryPolicy(cfg.Retry.Count, cfg.Retry.Wait, cfg.Retry.MaxElapsed)

	// Создание и запуск бота
	telegramBot, err := bot.NewBot(bot.Options{
		Token:         cfg.API.Telegram.Token,
		TaskLimit:     cfg.Bot.TaskLimit,
		PageSize:      cfg.Bot.PageSize,
		ActionTimeout: cfg.Bot.ActionTimeout,
		LinkTimeout:   24 * time.Hour,
	}, store, engineClient, m)
	if err != nil {
		log.Fatalf("Ошибка создания бота: %v", err)
	}

	telegramBot.Start()

	// Служебный HTTP-сервер: здоровье и статистика
	go func() {
		if err := ops.Serve(cfg.Ops.Addr, m); err != nil {
			log.Printf("Служебный HTTP-сервер остановлен: %v", err)
		}
	}()

	// Периодическое сохранение данных
	saveTicker := time.NewTicker(cfg.Storage.SaveInterval)
	go func() {
		defer saveTicker.Stop()
		for {
			select {
			case <-saveTicker.C:
				if err := store.SaveData(); err != nil {
					log.Printf("Ошибка сохранения данных: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Проверка новых задач в пуле
	checkTicker := time.NewTicker(cfg.Bot.CheckInterval)
	go func() {
		defer checkTicker.Stop()

		// Выполняем первую проверку сразу
		checkNewTasks(ctx, engineClient, store, telegramBot, cfg.Bot.TaskLimit)

		for {
			select {
			case <-checkTicker.C:
				checkNewTasks(ctx, engineClient, store, telegramBot, cfg.Bot.TaskLimit)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Настройка graceful shutdown:
	// - Создаем канал для получения сигналов ОС
	// - Подписываемся на SIGINT (Ctrl+C) и SIGTERM (kill)
	// - Ожидаем получения сигнала
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Получен сигнал завершения, останавливаем работу...")

	// Отменяем контекст
	cancel()

	// Создаем таймер для graceful shutdown
	shutdownTimer := time.NewTimer(cfg.GracefulTimeout)
	defer shutdownTimer.Stop()

	// Канал для ожидания завершения сохранения
	done := make(chan bool)

	go func() {
		if err := store.SaveData(); err != nil {
			log.Printf("Ошибка сохранения данных при завершении: %v", err)
		}
		done <- true
	}()

	// Ждем либо завершения сохранения, либо таймаута
	select {
	case <-done:
		log.Println("Данные успешно сохранены")
	case <-shutdownTimer.C:
		log.Println("Превышено время graceful shutdown")
	}

	telegramBot.Stop()
}

// checkNewTasks проверяет пул неназначенных задач и отправляет уведомления
// - получает список свободных задач через API движка
// - проверяет, не было ли уже уведомления о задаче
// - отправляет уведомление о каждой новой задаче
func checkNewTasks(ctx context.Context, client *api.Client, store *storage.Storage, bot *bot.Bot, limit int) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tasks, err := client.ListUnassigned(reqCtx, limit)
	if err != nil {
		log.Printf("Ошибка получения пула задач: %v", err)
		return
	}

	for i := range tasks {
		task := &tasks[i]
		if !store.IsTaskSeen(task.ID) {
			store.MarkTaskSeen(task.ID)
			bot.SendNotification(formatTaskNotification(task))
			continue
		}

		// Просрочка уже известной задачи объявляется один раз; отметка
		// хранится рядом с отметкой о самой задаче под ключом с префиксом
		if taskflow.IsOverdue(task.DueDate) && !store.IsTaskSeen("overdue:"+task.ID) {
			store.MarkTaskSeen("overdue:" + task.ID)
			bot.SendNotification(fmt.Sprintf("⏰ Задача «%s» просрочена и всё ещё не взята в работу.", task.Name))
		}
	}
}

// formatTaskNotification формирует текст уведомления о новой свободной задаче
func formatTaskNotification(task *models.Task) string {
	msg := fmt.Sprintf("🆓 Новая свободная задача\n📎 %s", task.Name)

	if task.DueDate != nil {
		msg += fmt.Sprintf("\n📅 Срок: %s", task.DueDate.Format("02.01.2006 15:04"))
		if taskflow.IsOverdue(task.DueDate) {
			msg += " ⏰ уже просрочена"
		}
	}

	// Ограничиваем длину описания 200 символами для читаемости
	if task.Description != "" {
		desc := task.Description
		if len(desc) > 200 {
			desc = desc[:200] + "..."
		}
		msg += fmt.Sprintf("\n\n📝 %s", desc)
	}

	return msg
}
