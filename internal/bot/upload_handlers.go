// Package bot содержит приём файлов и фотографий для переменных-документов.
package bot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/telebot.v3"

	"taskflow_bot/internal/taskflow"
)

// maxUploadSize ограничивает размер принимаемого файла (10 МБ)
const maxUploadSize = 10 << 20

// handleDocument принимает документ для выбранной переменной
func (b *Bot) handleDocument(c telebot.Context) error {
	doc := c.Message().Document
	if doc == nil {
		return nil
	}
	if doc.FileSize > maxUploadSize {
		return c.Send("Файл слишком большой. Максимальный размер — 10 МБ.")
	}
	name := doc.FileName
	if name == "" {
		name = "document"
	}
	return b.acceptUpload(c, doc.MediaFile(), name)
}

// handlePhoto принимает фотографию для выбранной переменной
func (b *Bot) handlePhoto(c telebot.Context) error {
	photo := c.Message().Photo
	if photo == nil {
		return nil
	}
	name := fmt.Sprintf("photo_%s.jpg", photo.UniqueID)
	return b.acceptUpload(c, photo.MediaFile(), name)
}

// acceptUpload скачивает вложение и добавляет его в сессию правок карточки.
// Файл уходит в движок только при отправке правок, не сразу.
func (b *Bot) acceptUpload(c telebot.Context, file *telebot.File, name string) error {
	target, ok := b.uploadTargets[c.Chat().ID]
	if !ok {
		return c.Send("Сначала выберите переменную-документ в карточке задачи (кнопка 📎).")
	}

	view, viewOK := b.currentView(c.Chat().ID, target.TaskID)
	if !viewOK {
		delete(b.uploadTargets, c.Chat().ID)
		return c.Send("Карточка задачи устарела. Откройте задачу заново.")
	}

	data, err := b.downloadFile(file, name)
	if err != nil {
		log.Printf("Ошибка загрузки вложения из Telegram: %v", err)
		return c.Send("Не удалось получить файл из Telegram. Попробуйте ещё раз.")
	}

	view.Session.AddFile(target.VariableKey, taskflow.FileRef{Name: name, Data: data})
	delete(b.uploadTargets, c.Chat().ID)

	if err := c.Send(fmt.Sprintf("Файл «%s» добавлен к «%s» и будет отправлен вместе с правками.", name, target.VariableKey)); err != nil {
		return err
	}
	return b.sendCard(c, view)
}

// downloadFile скачивает файл Telegram во временный каталог и читает его в память
func (b *Bot) downloadFile(file *telebot.File, name string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "taskflow_upload")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного каталога: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filepath.Base(name))
	if err := b.bot.Download(file, tmpPath); err != nil {
		return nil, fmt.Errorf("ошибка скачивания файла: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	return data, nil
}
