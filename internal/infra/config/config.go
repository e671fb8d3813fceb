package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// SelfPackage — идентификатор пакета самого агента: его нотификации
	// никогда не фильтруются.
	SelfPackage string `envconfig:"SELF_PACKAGE" default:"app.notisentry.agent"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Events string `envconfig:"EVENTS_QUEUE_KEY" default:"notification_events"`
	} `envconfig:""`

	Telegram struct {
		Token  string `envconfig:"TG_BOT_TOKEN"`
		ChatID int64  `envconfig:"TG_CHAT_ID"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Intake struct {
		Workers   int           `envconfig:"INTAKE_WORKERS" default:"4"`
		DedupeTTL time.Duration `envconfig:"INTAKE_DEDUPE_TTL" default:"10m"`
	} `envconfig:""`

	Sweep struct {
		Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	} `envconfig:""`

	Settings struct {
		Refresh time.Duration `envconfig:"SETTINGS_REFRESH" default:"30s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
