package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации grid-сервера.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Grid      GridConfig      `yaml:"grid"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
}

type GridConfig struct {
	// NodeID: имя этого grid-сервиса в событиях шины
	NodeID string `yaml:"node_id"`
}

type EventBusConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"` // пусто: in-memory шина
	Stream         string `yaml:"stream"`
	Retention      int    `yaml:"retention_hours"`
	MemoryCapacity int    `yaml:"memory_capacity"`
	UseZstd        bool   `yaml:"use_zstd_compression"`
	PublishTimeout int    `yaml:"publish_timeout_ms"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	TTL       int    `yaml:"ttl_seconds"` // 0: без истечения
	TimeoutMs int    `yaml:"timeout_ms"`
	Resync    int    `yaml:"resync_seconds"` // период полной пересинхронизации зеркала
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"` // host:port OTLP/HTTP коллектора
	Insecure    bool   `yaml:"insecure"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{RESTPort: 0},
		Grid:   GridConfig{NodeID: "grid-01"},
		EventBus: EventBusConfig{
			Stream:         "GRID",
			Retention:      24,
			MemoryCapacity: 1024,
			PublishTimeout: 500,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "grid:",
			TimeoutMs: 200,
			Resync:    30,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mmo-grid",
			Endpoint:    "localhost:4318",
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Dir:          "logs",
			ConsoleLevel: "info",
			FileLevel:    "debug",
		},
	}
}

// GetRESTPort возвращает порт REST API с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "GRID_REST_PORT", 8090)
}

// PublishTimeoutDuration возвращает таймаут публикации события
func (e *EventBusConfig) PublishTimeoutDuration() time.Duration {
	return time.Duration(e.PublishTimeout) * time.Millisecond
}

// RetentionDuration возвращает срок хранения событий в стриме
func (e *EventBusConfig) RetentionDuration() time.Duration {
	return time.Duration(e.Retention) * time.Hour
}

// TTLDuration возвращает время жизни ключей зеркала
func (r *RedisConfig) TTLDuration() time.Duration {
	return time.Duration(r.TTL) * time.Second
}

// TimeoutDuration возвращает таймаут одной операции Redis
func (r *RedisConfig) TimeoutDuration() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// ResyncInterval возвращает период пересинхронизации зеркала
func (r *RedisConfig) ResyncInterval() time.Duration {
	return time.Duration(r.Resync) * time.Second
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.Grid.NodeID == "" {
		return fmt.Errorf("grid.node_id не может быть пустым")
	}
	if c.Server.RESTPort < 0 || c.Server.RESTPort > 65535 {
		return fmt.Errorf("server.rest_port вне диапазона: %d", c.Server.RESTPort)
	}
	if c.EventBus.Enabled && c.EventBus.URL == "" && c.EventBus.MemoryCapacity <= 0 {
		return fmt.Errorf("eventbus.memory_capacity должен быть > 0 для in-memory шины")
	}
	if c.EventBus.PublishTimeout <= 0 {
		return fmt.Errorf("eventbus.publish_timeout_ms должен быть > 0")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr обязателен при redis.enabled")
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl_seconds не может быть отрицательным")
	}
	if c.Redis.Enabled && c.Redis.TimeoutMs <= 0 {
		return fmt.Errorf("redis.timeout_ms должен быть > 0")
	}
	if c.Redis.Enabled && c.Redis.Resync <= 0 {
		return fmt.Errorf("redis.resync_seconds должен быть > 0")
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV GRID_CONFIG;
// если и он не задан: возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("GRID_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфига %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфига %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
