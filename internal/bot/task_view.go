// Package bot содержит списки задач и карточку задачи с действиями.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"taskflow_bot/internal/models"
	"taskflow_bot/internal/tasklist"
	"taskflow_bot/internal/taskflow"
)

// handleMyTasks показывает задачи текущего пользователя
func (b *Bot) handleMyTasks(c telebot.Context) error {
	return b.showTaskList(c, "", 0)
}

// handlePool показывает пул неназначенных задач
func (b *Bot) handlePool(c telebot.Context) error {
	return b.showPool(c, 0)
}

// showTaskList показывает страницу списка задач пользователя с учётом поиска
func (b *Bot) showTaskList(c telebot.Context, query string, page int) error {
	user, exists := b.storage.GetUser(c.Sender().ID)
	if !exists {
		return c.Send("Пожалуйста, сначала привяжите учётную запись командой /start.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	tasks, err := b.engine.ListTasks(ctx, user.EngineLogin, b.taskLimit)
	if err != nil {
		log.Printf("Ошибка получения задач: %v", err)
		return c.Send("Не удалось получить список задач. Попробуйте позже.")
	}

	tasks = tasklist.Filter(tasks, query)
	pageTasks, total := tasklist.Page(tasks, page, b.pageSize)
	if total == 0 {
		if query != "" {
			return c.Send("По вашему запросу задач не найдено.", mainMenu)
		}
		return c.Send("У вас нет текущих задач.", mainMenu)
	}
	if page >= total {
		page = total - 1
	}

	header := fmt.Sprintf("📋 Ваши задачи (стр. %d из %d):", page+1, total)
	if query != "" {
		header = fmt.Sprintf("🔍 Задачи по запросу «%s» (стр. %d из %d):", query, page+1, total)
	}

	now := time.Now()
	var lines []string
	menu := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	for i := range pageTasks {
		t := &pageTasks[i]
		lines = append(lines, tasklist.FormatLine(t, now))
		rows = append(rows, menu.Row(menu.Data("📂 "+t.Name, "open", t.ID)))
	}

	if nav := listNavRow(menu, "page", page, total, query); len(nav) > 0 {
		rows = append(rows, nav)
	}
	menu.Inline(rows...)

	return c.Send(header+"\n"+strings.Join(lines, "\n"), menu)
}

// showPool показывает страницу пула неназначенных задач
func (b *Bot) showPool(c telebot.Context, page int) error {
	if _, exists := b.storage.GetUser(c.Sender().ID); !exists {
		return c.Send("Пожалуйста, сначала привяжите учётную запись командой /start.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	tasks, err := b.engine.ListUnassigned(ctx, b.taskLimit)
	if err != nil {
		log.Printf("Ошибка получения пула задач: %v", err)
		return c.Send("Не удалось получить пул задач. Попробуйте позже.")
	}

	pageTasks, total := tasklist.Page(tasks, page, b.pageSize)
	if total == 0 {
		return c.Send("Свободных задач нет.", mainMenu)
	}
	if page >= total {
		page = total - 1
	}

	now := time.Now()
	var lines []string
	menu := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	for i := range pageTasks {
		t := &pageTasks[i]
		lines = append(lines, tasklist.FormatLine(t, now))
		rows = append(rows, menu.Row(menu.Data("📂 "+t.Name, "open", t.ID)))
	}

	if nav := listNavRow(menu, "pool_page", page, total, ""); len(nav) > 0 {
		rows = append(rows, nav)
	}
	menu.Inline(rows...)

	header := fmt.Sprintf("🆓 Свободные задачи (стр. %d из %d):", page+1, total)
	return c.Send(header+"\n"+strings.Join(lines, "\n"), menu)
}

// listNavRow собирает строку навигации по страницам списка
func listNavRow(menu *telebot.ReplyMarkup, unique string, page, total int, query string) telebot.Row {
	var nav []telebot.Btn
	if page > 0 {
		nav = append(nav, menu.Data("⬅️", unique, strconv.Itoa(page-1), query))
	}
	if page < total-1 {
		nav = append(nav, menu.Data("➡️", unique, strconv.Itoa(page+1), query))
	}
	if len(nav) == 0 {
		return nil
	}
	return menu.Row(nav...)
}

// handleCallback разбирает нажатия инлайн-кнопок
func (b *Bot) handleCallback(c telebot.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	defer func() {
		if err := c.Respond(); err != nil {
			log.Printf("Ошибка подтверждения callback: %v", err)
		}
	}()

	data := strings.TrimSpace(cb.Data)
	switch cb.Unique {
	case "open":
		return b.openTask(c, data)
	case "page":
		page, query := parsePageData(data)
		return b.showTaskList(c, query, page)
	case "pool_page":
		page, _ := parsePageData(data)
		return b.showPool(c, page)
	case "dec":
		return b.handleDecision(c, data)
	case "upl":
		return b.handleUploadSelect(c, data)
	case "dl":
		return b.handleDownload(c, data)
	case "primary":
		return b.handlePrimary(c, data)
	case "claim":
		return b.handleClaim(c, data)
	case "unclaim":
		return b.handleUnclaim(c, data)
	case "delegate":
		return b.handleDelegateStart(c, data)
	case "delegate_to":
		return b.handleDelegateTarget(c, data)
	case "back":
		return b.handleMyTasks(c)
	}
	return nil
}

// parsePageData разбирает payload навигации: "<номер>|<запрос>"
func parsePageData(data string) (int, string) {
	parts := strings.SplitN(data, "|", 2)
	page, err := strconv.Atoi(parts[0])
	if err != nil {
		page = 0
	}
	query := ""
	if len(parts) == 2 {
		query = parts[1]
	}
	return page, query
}

// openTask открывает карточку задачи: перечитывает её из движка и создает
// новую сессию правок. Открытие всегда сбрасывает прежние правки.
func (b *Bot) openTask(c telebot.Context, taskID string) error {
	if _, exists := b.storage.GetUser(c.Sender().ID); !exists {
		return c.Send("Пожалуйста, сначала привяжите учётную запись командой /start.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	task, err := b.engine.FetchTask(ctx, taskID)
	if err != nil {
		log.Printf("Ошибка получения задачи %s: %v", taskID, err)
		return c.Send("Не удалось открыть задачу. Попробуйте позже.")
	}

	role := b.refreshRole(ctx, c.Sender().ID)
	view := &taskView{
		Task:    task,
		Role:    role,
		Session: taskflow.NewSession(task),
	}
	b.views[c.Chat().ID] = view
	delete(b.uploadTargets, c.Chat().ID)

	return b.sendCard(c, view)
}

// currentView возвращает открытую карточку чата, если она соответствует задаче
func (b *Bot) currentView(chatID int64, taskID string) (*taskView, bool) {
	view, ok := b.views[chatID]
	if !ok || view.Task.ID != taskID {
		return nil, false
	}
	return view, ok
}

// sendCard отправляет карточку задачи с клавиатурой действий
func (b *Bot) sendCard(c telebot.Context, view *taskView) error {
	inFlight := b.actionInFlight(c.Chat().ID)
	text := formatTaskCard(view, time.Now(), inFlight)
	markup := buildTaskKeyboard(view, inFlight)
	return c.Send(text, markup)
}

// handleDecision запоминает выбранное значение переменной-решения
func (b *Bot) handleDecision(c telebot.Context, data string) error {
	parts := strings.SplitN(data, "|", 3)
	if len(parts) != 3 {
		return nil
	}
	taskID, key, value := parts[0], parts[1], parts[2]

	view, ok := b.currentView(c.Chat().ID, taskID)
	if !ok {
		return c.Send("Карточка задачи устарела. Откройте задачу заново.")
	}
	if !taskflow.IsDecisionVariable(key) {
		return nil
	}

	view.Session.SetDecision(key, value)
	return b.sendCard(c, view)
}

// handleUploadSelect запоминает, к какой переменной прикрепится следующий файл
func (b *Bot) handleUploadSelect(c telebot.Context, data string) error {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 {
		return nil
	}
	taskID, key := parts[0], parts[1]

	if _, ok := b.currentView(c.Chat().ID, taskID); !ok {
		return c.Send("Карточка задачи устарела. Откройте задачу заново.")
	}

	b.uploadTargets[c.Chat().ID] = uploadTarget{TaskID: taskID, VariableKey: key}
	return c.Send(fmt.Sprintf("Пришлите файл или фотографию для «%s».", key))
}

// handleDownload отправляет ссылку на сохранённый файл переменной-документа.
// Первое открытие вложения отмечается в сессии правок.
func (b *Bot) handleDownload(c telebot.Context, data string) error {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 {
		return nil
	}
	taskID, key := parts[0], parts[1]

	view, ok := b.currentView(c.Chat().ID, taskID)
	if !ok {
		return c.Send("Карточка задачи устарела. Откройте задачу заново.")
	}

	fileRef := view.Task.Variables[key].Value
	if fileRef == "" {
		return c.Send("Для этой переменной файл ещё не загружен.")
	}

	view.Session.AcknowledgeDownload()
	if err := c.Send(fmt.Sprintf("📥 %s", b.engine.AttachmentURL(fileRef))); err != nil {
		return err
	}
	// Перерисовываем карточку: доступность отправки могла измениться
	return b.sendCard(c, view)
}

// handlePrimary выполняет основное действие карточки
func (b *Bot) handlePrimary(c telebot.Context, taskID string) error {
	view, ok := b.currentView(c.Chat().ID, taskID)
	if !ok {
		return c.Send("Карточка задачи устарела. Откройте задачу заново.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	fresh, err := b.executePrimary(ctx, c.Chat().ID, view)
	switch {
	case errors.Is(err, errInFlight):
		return c.Send("Действие уже выполняется, дождитесь завершения.")
	case errors.Is(err, errActionUnavailable):
		return c.Send("Отправлять пока нечего: выберите решение, прикрепите файл или откройте вложения.")
	case err != nil:
		log.Printf("Ошибка основного действия по задаче %s: %v", taskID, err)
		return c.Send("❌ Не удалось выполнить действие: " + err.Error())
	}

	if fresh == nil {
		// Задача ушла из списка: шаг процесса закрыт
		delete(b.views, c.Chat().ID)
		if err := c.Send("✅ Задача завершена и убрана из вашего списка."); err != nil {
			return err
		}
		return b.handleMyTasks(c)
	}

	// Успешная отправка: сессия правок отбрасывается и строится заново
	view.Task = fresh
	view.Session = taskflow.NewSession(fresh)
	if err := c.Send("✅ Действие выполнено."); err != nil {
		return err
	}
	return b.sendCard(c, view)
}

// handleClaim берёт задачу в работу
func (b *Bot) handleClaim(c telebot.Context, taskID string) error {
	user, exists := b.storage.GetUser(c.Sender().ID)
	if !exists {
		return c.Send("Пожалуйста, сначала привяжите учётную запись командой /start.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	fresh, err := b.executeClaim(ctx, c.Chat().ID, taskID, user.EngineLogin)
	switch {
	case errors.Is(err, errInFlight):
		return c.Send("Действие уже выполняется, дождитесь завершения.")
	case err != nil:
		log.Printf("Ошибка взятия задачи %s: %v", taskID, err)
		return c.Send("❌ Не удалось взять задачу: " + err.Error())
	case fresh == nil:
		return c.Send("Задача больше недоступна.")
	}

	view := &taskView{Task: fresh, Role: b.currentRole(c.Sender().ID), Session: taskflow.NewSession(fresh)}
	b.views[c.Chat().ID] = view
	if err := c.Send("✅ Задача взята в работу."); err != nil {
		return err
	}
	return b.sendCard(c, view)
}

// handleUnclaim возвращает задачу в пул
func (b *Bot) handleUnclaim(c telebot.Context, taskID string) error {
	view, ok := b.currentView(c.Chat().ID, taskID)
	if !ok {
		return c.Send("Карточка задачи устарела. Откройте задачу заново.")
	}
	if !taskflow.ShowUnclaim(view.Task) {
		return c.Send("Задача и так не назначена.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.actionTimeout)
	defer cancel()

	fresh, err := b.executeUnclaim(ctx, c.Chat().ID, taskID)
	switch {
	case errors.Is(err, errInFlight):
		return c.Send("Действие уже выполняется, дождитесь завершения.")
	case err != nil:
		log.Printf("Ошибка возврата задачи %s: %v", taskID, err)
		return c.Send("❌ Не удалось вернуть задачу в пул: " + err.Error())
	case fresh == nil:
		delete(b.views, c.Chat().ID)
		return c.Send("Задача больше недоступна.")
	}

	view.Task = fresh
	view.Session = taskflow.NewSession(fresh)
	if err := c.Send("✅ Задача возвращена в пул."); err != nil {
		return err
	}
	return b.sendCard(c, view)
}

// formatTaskCard формирует текст карточки задачи
func formatTaskCard(view *taskView, now time.Time, inFlight bool) string {
	t := view.Task
	var sb strings.Builder

	fmt.Fprintf(&sb, "📎 %s\n", t.Name)
	if t.IsAssigned() {
		fmt.Fprintf(&sb, "👤 Исполнитель: %s\n", t.Assignee)
	} else {
		sb.WriteString("👤 Исполнитель: не назначен\n")
	}
	if t.DueDate != nil {
		fmt.Fprintf(&sb, "📅 Срок: %s", t.DueDate.Format("02.01.2006 15:04"))
		if taskflow.IsOverdueAt(t.DueDate, now) {
			sb.WriteString(" ⏰ просрочена")
		}
		sb.WriteString("\n")
	}
	switch t.Delegation() {
	case models.DelegationPending:
		sb.WriteString("🔁 Делегирована, ожидается результат исполнителя\n")
	case models.DelegationResolved:
		sb.WriteString("↩️ Исполнитель вернул результат\n")
	}
	if t.Description != "" {
		fmt.Fprintf(&sb, "📝 %s\n", t.Description)
	}

	if len(t.Variables) > 0 {
		sb.WriteString("\nПеременные:\n")
		for _, key := range sortedVariableKeys(t) {
			if taskflow.IsDecisionVariable(key) {
				chosen := view.Session.PendingDecisions[key]
				current := t.Variables[key].Value
				line := fmt.Sprintf("• %s: %s", key, decisionTitle(current))
				if !strings.EqualFold(chosen, current) && chosen != "" {
					line += fmt.Sprintf(" → %s", decisionTitle(chosen))
				}
				sb.WriteString(line + "\n")
			} else {
				state := "файла нет"
				if t.Variables[key].Value != "" {
					state = "файл загружен"
				}
				if n := len(view.Session.PendingFiles[key]); n > 0 {
					state += fmt.Sprintf(", к отправке: %d", n)
				}
				fmt.Fprintf(&sb, "• %s: %s\n", key, state)
			}
		}
	}

	if len(t.Comments) > 0 {
		sb.WriteString("\nКомментарии:\n")
		for _, cm := range t.Comments {
			fmt.Fprintf(&sb, "— %s: %s\n", cm.Author, cm.Description)
		}
	}

	if inFlight {
		sb.WriteString("\n⏳ Действие выполняется...")
	}
	return sb.String()
}

// decisionTitle переводит значение решения в подпись
func decisionTitle(value string) string {
	switch strings.ToLower(value) {
	case taskflow.DecisionApproved:
		return "согласовано"
	case taskflow.DecisionRejected:
		return "отклонено"
	case "":
		return "решение не принято"
	default:
		return value
	}
}

// sortedVariableKeys возвращает ключи переменных в устойчивом порядке
func sortedVariableKeys(t *models.Task) []string {
	keys := make([]string, 0, len(t.Variables))
	for key := range t.Variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// buildTaskKeyboard собирает клавиатуру карточки задачи.
// Основное действие показывается только когда оно доступно; недоступность
// объясняется текстом карточки. Дополнительные действия не зависят от
// основного и включаются каждое по своему условию.
func buildTaskKeyboard(view *taskView, inFlight bool) *telebot.ReplyMarkup {
	t := view.Task
	menu := &telebot.ReplyMarkup{}
	var rows []telebot.Row

	for _, key := range sortedVariableKeys(t) {
		if taskflow.IsDecisionVariable(key) {
			rows = append(rows, menu.Row(
				menu.Data("✅ "+key, "dec", t.ID, key, taskflow.DecisionApproved),
				menu.Data("❌ "+key, "dec", t.ID, key, taskflow.DecisionRejected),
			))
		} else {
			row := []telebot.Btn{menu.Data("📎 "+key, "upl", t.ID, key)}
			if t.Variables[key].Value != "" {
				row = append(row, menu.Data("📥 "+key, "dl", t.ID, key))
			}
			rows = append(rows, menu.Row(row...))
		}
	}

	primary := taskflow.ResolvePrimary(
		view.Role,
		t.Delegation(),
		taskflow.HasDecisionVariables(t),
		taskflow.CanSubmit(t, view.Session),
		inFlight,
	)
	if primary.Enabled {
		rows = append(rows, menu.Row(menu.Data(primaryTitle(primary), "primary", t.ID)))
	}

	var secondary []telebot.Btn
	if taskflow.ShowDelegate(view.Role) {
		secondary = append(secondary, menu.Data("🔁 Делегировать", "delegate", t.ID))
	}
	if taskflow.ShowUnclaim(t) {
		secondary = append(secondary, menu.Data("↩️ Вернуть в пул", "unclaim", t.ID))
	}
	if taskflow.ShowClaim(t) {
		secondary = append(secondary, menu.Data("🙋 Взять в работу", "claim", t.ID))
	}
	if len(secondary) > 0 {
		rows = append(rows, menu.Row(secondary...))
	}

	rows = append(rows, menu.Row(
		menu.Data("🔄 Обновить", "open", t.ID),
		menu.Data("⬅️ К списку", "back"),
	))

	menu.Inline(rows...)
	return menu
}

// primaryTitle переводит каноническую подпись основного действия
func primaryTitle(p taskflow.Primary) string {
	if p.Label == taskflow.LabelComplete {
		return "✅ Завершить"
	}
	return "📤 Отправить правки"
}
