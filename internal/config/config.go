// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек сервиса.
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	HTTPServer              `yaml:"http_server"`
	RedisConnection         `yaml:"redis_connection"`
	Identity                `yaml:"identity"`
	Generation              `yaml:"generation"`
	Billing                 `yaml:"billing"`
	Admin                   `yaml:"admin"`
	Rabbit                  `yaml:"rabbitmq"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// Identity настройки клиента провайдера идентификации.
// ServiceKey — привилегированный ключ для чтения и изменения метаданных
// чужих пользователей; токен вызывающего им никогда не подменяется.
type Identity struct {
	BaseURL         string        `yaml:"base_url"`
	ServiceKey      string        `yaml:"service_key" env:"IDENTITY_SERVICE_KEY"`
	TimeoutIdentity time.Duration `yaml:"timeout" env-default:"10s"`
}

// Generation настройки клиента внешнего сервиса генерации текста.
type Generation struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key" env:"GENERATION_API_KEY"`
	TimeoutGeneration time.Duration `yaml:"timeout" env-default:"30s"`
}

// Billing настройки обработчика вебхуков платёжного провайдера.
type Billing struct {
	WebhookSecret string `yaml:"webhook_secret" env:"BILLING_WEBHOOK_SECRET"`
}

// Admin настройки административной консоли: список email администраторов.
// Список задаётся снаружи и перечитывается при перезапуске сервиса.
type Admin struct {
	Emails []string `yaml:"emails" env:"ADMIN_EMAILS"`
}

// Rabbit настройки подключения к RabbitMQ для публикации событий
// изменения entitlement.
type Rabbit struct {
	URL         string        `yaml:"url" env:"RABBITMQ_URL"`
	ConnRetries int           `yaml:"conn_retries" env-default:"5"`
	ConnDelay   time.Duration `yaml:"conn_delay" env-default:"2s"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс
// при любой ошибке чтения.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
