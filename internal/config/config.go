// Package config читает и хранит конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config представляет конфигурацию приложения, загружаемую из YAML или окружения.
type Config struct {
	API struct {
		Engine struct {
			Token   string        `yaml:"token"`
			BaseURL string        `yaml:"base_url"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"engine"`
		Telegram struct {
			Token   string        `yaml:"token"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"telegram"`
	} `yaml:"api"`

	Storage struct {
		Path         string        `yaml:"path"`
		SaveInterval time.Duration `yaml:"save_interval"`
	} `yaml:"storage"`

	Logging struct {
		File    string        `yaml:"file"`
		MaxSize int64         `yaml:"max_size"`
		MaxAge  time.Duration `yaml:"max_age"`
	} `yaml:"logging"`

	Bot struct {
		TaskLimit     int           `yaml:"task_limit"`
		PageSize      int           `yaml:"page_size"`
		CheckInterval time.Duration `yaml:"check_interval"`
		ActionTimeout time.Duration `yaml:"action_timeout"`
	} `yaml:"bot"`

	Ops struct {
		Addr string `yaml:"addr"`
	} `yaml:"ops"`

	Retry struct {
		Count      int           `yaml:"count"`
		Wait       time.Duration `yaml:"wait"`
		MaxElapsed time.Duration `yaml:"max_elapsed"`
	} `yaml:"retry"`

	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// NewConfig создает и возвращает конфигурацию с безопасными значениями по умолчанию.
func NewConfig() *Config {
	cfg := &Config{}

	// API настройки по умолчанию
	cfg.API.Engine.Timeout = 30 * time.Second
	cfg.API.Telegram.Timeout = 30 * time.Second

	// Storage настройки по умолчанию
	cfg.Storage.Path = "data"
	cfg.Storage.SaveInterval = 15 * time.Minute

	// Logging настройки по умолчанию
	cfg.Logging.File = "logs/bot.log"
	cfg.Logging.MaxSize = 10 * 1024 * 1024 // 10 МБ
	cfg.Logging.MaxAge = 30 * 24 * time.Hour

	// Bot настройки по умолчанию
	cfg.Bot.TaskLimit = 100
	cfg.Bot.PageSize = 5
	cfg.Bot.CheckInterval = 5 * time.Minute
	cfg.Bot.ActionTimeout = 15 * time.Second

	// Ops endpoint по умолчанию
	cfg.Ops.Addr = ":8090"

	// Политика повторов по умолчанию
	cfg.Retry.Count = 3
	cfg.Retry.Wait = 500 * time.Millisecond
	cfg.Retry.MaxElapsed = 10 * time.Second

	cfg.GracefulTimeout = 30 * time.Second

	return cfg
}

// Load читает конфигурацию из YAML файла поверх значений по умолчанию.
// Отсутствующий файл не является ошибкой: используются значения по умолчанию
// и переменные окружения.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	return cfg, nil
}

// ApplyEnv накладывает переменные окружения поверх конфигурации.
// Токены задаются только через окружение, чтобы не хранить их в файле.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ENGINE_TOKEN"); v != "" {
		c.API.Engine.Token = v
	}
	if v := os.Getenv("ENGINE_URL"); v != "" {
		c.API.Engine.BaseURL = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.API.Telegram.Token = v
	}
}

// Validate проверяет обязательные поля конфигурации и возвращает ошибку при отсутствии.
func (c *Config) Validate() error {
	if c.API.Engine.Token == "" {
		return fmt.Errorf("не указан токен движка процессов")
	}
	if c.API.Engine.BaseURL == "" {
		return fmt.Errorf("не указан адрес движка процессов")
	}
	if c.API.Telegram.Token == "" {
		return fmt.Errorf("не указан токен Telegram")
	}
	return nil
}
