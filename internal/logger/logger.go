// Package logger предоставляет простую обёртку для логирования в файл.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Options задает параметры ротации лог-файла.
type Options struct {
	Filename string
	MaxSize  int64         // максимальный размер файла перед ротацией
	MaxAge   time.Duration // максимальный возраст файла
}

// RotateWriter реализует ротацию логов по размеру и времени.
// Используется как io.Writer для логирования с автоматическим архивированием.
type RotateWriter struct {
	opts        Options
	currentSize int64
	file        *os.File
	created     time.Time
}

// NewRotateWriter создает новый RotateWriter с указанными параметрами.
func NewRotateWriter(opts Options) (*RotateWriter, error) {
	w := &RotateWriter{opts: opts}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write записывает данные в файл и выполняет ротацию при необходимости.
func (w *RotateWriter) Write(p []byte) (n int, err error) {
	if w.file == nil {
		if err := w.openFile(); err != nil {
			return 0, err
		}
	}

	if w.shouldRotate(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = w.file.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// Close закрывает текущий файл логов.
func (w *RotateWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// shouldRotate проверяет необходимость ротации
func (w *RotateWriter) shouldRotate(size int64) bool {
	if w.opts.MaxSize > 0 && w.currentSize+size > w.opts.MaxSize {
		return true
	}
	if w.opts.MaxAge > 0 && time.Since(w.created) > w.opts.MaxAge {
		return true
	}
	return false
}

// rotate выполняет ротацию файла лога
func (w *RotateWriter) rotate() error {
	if err := w.Close(); err != nil {
		return err
	}

	// Формируем имя для архивного файла
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	dir := filepath.Dir(w.opts.Filename)
	base := filepath.Base(w.opts.Filename)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	archived := filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, timestamp, ext))

	// Переименовываем текущий файл
	if err := os.Rename(w.opts.Filename, archived); err != nil && !os.IsNotExist(err) {
		return err
	}

	return w.openFile()
}

// openFile открывает новый файл для записи
func (w *RotateWriter) openFile() error {
	dir := filepath.Dir(w.opts.Filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(w.opts.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		if cerr := f.Close(); cerr != nil {
			log.Printf("Ошибка закрытия файла логов после Stat failure: %v", cerr)
		}
		return err
	}

	w.file = f
	w.currentSize = info.Size()
	w.created = time.Now()
	return nil
}

// Setup создает ротируемый писатель и направляет в него стандартный логгер.
// Возвращает писатель, чтобы вызывающая сторона могла закрыть его при
// завершении работы.
func Setup(opts Options) (io.WriteCloser, error) {
	w, err := NewRotateWriter(opts)
	if err != nil {
		return nil, err
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	return w, nil
}
