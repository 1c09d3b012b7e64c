package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера Shard Realms.
// Значения читаются из YAML, затем переопределяются переменными окружения.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Maria     MariaConfig     `yaml:"maria"`
	Narration NarrationConfig `yaml:"narration"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	RESTPort     int `yaml:"rest_port" env:"GAME_REST_PORT"`
	ShutdownSecs int `yaml:"shutdown_timeout_seconds" env:"GAME_SHUTDOWN_TIMEOUT"`
}

// EventBusConfig: пустой URL означает in-memory шину.
type EventBusConfig struct {
	URL       string `yaml:"url" env:"GAME_NATS_URL"`
	Stream    string `yaml:"stream" env:"GAME_NATS_STREAM"`
	Retention int    `yaml:"retention_hours" env:"GAME_NATS_RETENTION_HOURS"`
	Capacity  int    `yaml:"memory_capacity"`
}

// StorageConfig выбирает backend для каждого хранилища.
type StorageConfig struct {
	Worlds     string `yaml:"worlds" env:"GAME_WORLD_STORE"`          // memory | badger
	BadgerPath string `yaml:"badger_path" env:"GAME_BADGER_PATH"`     // каталог BadgerDB
	Ledger     string `yaml:"ledger" env:"GAME_LEDGER_STORE"`         // memory | mysql | sqlite
	LedgerDSN  string `yaml:"ledger_dsn" env:"GAME_LEDGER_DSN"`       // DSN для SQL ledger
	Progress   string `yaml:"progress" env:"GAME_PROGRESS_STORE"`     // memory | mongo
	Users      string `yaml:"users" env:"GAME_USER_STORE"`            // memory | maria | mongo
}

type RedisConfig struct {
	Addr       string `yaml:"addr" env:"GAME_REDIS_ADDR"`
	Password   string `yaml:"password" env:"GAME_REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"GAME_REDIS_DB"`
	TTLSeconds int    `yaml:"ttl_seconds" env:"GAME_REDIS_TTL"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"GAME_MONGO_URI"`
	Database string `yaml:"database" env:"GAME_MONGO_DB"`
}

type MariaConfig struct {
	Host     string `yaml:"host" env:"GAME_MARIA_HOST"`
	Port     int    `yaml:"port" env:"GAME_MARIA_PORT"`
	Database string `yaml:"database" env:"GAME_MARIA_DB"`
	Username string `yaml:"username" env:"GAME_MARIA_USER"`
	Password string `yaml:"password" env:"GAME_MARIA_PASSWORD"`
}

// NarrationConfig: provider "static" не ходит в сеть, "openai" использует chat completions API.
type NarrationConfig struct {
	Provider       string `yaml:"provider" env:"GAME_NARRATION_PROVIDER"`
	BaseURL        string `yaml:"base_url" env:"GAME_NARRATION_BASE_URL"`
	APIKey         string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model          string `yaml:"model" env:"GAME_NARRATION_MODEL"`
	ImageModel     string `yaml:"image_model" env:"GAME_NARRATION_IMAGE_MODEL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"GAME_NARRATION_TIMEOUT"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"GAME_OTEL_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"GAME_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"GAME_OTEL_SERVICE"`
	Insecure    bool   `yaml:"insecure" env:"GAME_OTEL_INSECURE"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"GAME_LOG_LEVEL"`
	FileOutput bool   `yaml:"file_output" env:"GAME_LOG_FILES"`
}

type AuthConfig struct {
	// JWTSecret base64, не меньше 32 байт. Пустой => случайный секрет на время жизни процесса.
	JWTSecret string `yaml:"jwt_secret" env:"GAME_JWT_SECRET"`
	TokenTTL  int    `yaml:"token_ttl_hours" env:"GAME_JWT_TTL_HOURS"`
}

// Default возвращает конфигурацию для локального запуска без внешних сервисов.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{RESTPort: 8088, ShutdownSecs: 10},
		EventBus: EventBusConfig{Stream: "GAME_EVENTS", Retention: 24, Capacity: 1024},
		Storage: StorageConfig{
			Worlds:     "memory",
			BadgerPath: "data/worlds",
			Ledger:     "memory",
			Progress:   "memory",
			Users:      "memory",
		},
		Redis:     RedisConfig{TTLSeconds: 30},
		Mongo:     MongoConfig{URI: "mongodb://localhost:27017", Database: "shard_realms"},
		Maria:     MariaConfig{Host: "localhost", Port: 3306, Database: "shard_realms"},
		Narration: NarrationConfig{Provider: "static", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", ImageModel: "dall-e-3", TimeoutSeconds: 15},
		Telemetry: TelemetryConfig{Endpoint: "localhost:4318", ServiceName: "shard-realms", Insecure: true},
		Logging:   LoggingConfig{Level: "info"},
		Auth:      AuthConfig{TokenTTL: 24},
	}
}

// GetRESTPort возвращает REST API порт с fallback на значение по умолчанию
func (s *ServerConfig) GetRESTPort() int {
	return portOrDefault(s.RESTPort, 8088)
}

// ShutdownTimeout время на graceful shutdown
func (s *ServerConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.ShutdownSecs) * time.Second
}

// Timeout для запросов к провайдеру нарратива
func (n *NarrationConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// TTL кеша снимков сетки
func (r *RedisConfig) TTL() time.Duration {
	if r.TTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TTLSeconds) * time.Second
}

func portOrDefault(configPort int, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	return defaultPort
}

// Load читает YAML файл конфигурации поверх Default() и применяет переменные окружения.
// Если path == "", используется ENV GAME_CONFIG; без файла остаются значения по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("GAME_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}
