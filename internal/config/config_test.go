// Package config содержит тесты загрузки конфигурации.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("отсутствующий файл не должен быть ошибкой: %v", err)
	}
	if cfg.Bot.TaskLimit != 100 {
		t.Fatalf("ожидался лимит задач по умолчанию 100, получено %d", cfg.Bot.TaskLimit)
	}
	if cfg.Retry.Count != 3 {
		t.Fatalf("ожидалось 3 повтора по умолчанию, получено %d", cfg.Retry.Count)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
api:
  engine:
    base_url: "https://engine.example.com"
    timeout: 5s
bot:
  page_size: 10
  check_interval: 1m
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("ошибка записи тестового файла: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Engine.BaseURL != "https://engine.example.com" {
		t.Fatalf("base_url не применился: %q", cfg.API.Engine.BaseURL)
	}
	if cfg.API.Engine.Timeout != 5*time.Second {
		t.Fatalf("timeout не применился: %v", cfg.API.Engine.Timeout)
	}
	if cfg.Bot.PageSize != 10 {
		t.Fatalf("page_size не применился: %d", cfg.Bot.PageSize)
	}
	// Не затронутые файлом значения остаются по умолчанию
	if cfg.Bot.TaskLimit != 100 {
		t.Fatalf("task_limit должен был остаться по умолчанию, получено %d", cfg.Bot.TaskLimit)
	}
}

func TestValidate(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("конфигурация без токенов должна быть невалидной")
	}

	cfg.API.Engine.Token = "t"
	cfg.API.Engine.BaseURL = "https://engine.example.com"
	cfg.API.Telegram.Token = "t"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("заполненная конфигурация должна быть валидной: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ENGINE_TOKEN", "env-token")
	t.Setenv("ENGINE_URL", "https://env.example.com")

	cfg := NewConfig()
	cfg.ApplyEnv()
	if cfg.API.Engine.Token != "env-token" {
		t.Fatalf("токен из окружения не применился: %q", cfg.API.Engine.Token)
	}
	if cfg.API.Engine.BaseURL != "https://env.example.com" {
		t.Fatalf("адрес из окружения не применился: %q", cfg.API.Engine.BaseURL)
	}
}
