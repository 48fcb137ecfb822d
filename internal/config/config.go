package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/tower"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	Game      GameConfig      `yaml:"game"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bot       BotConfig       `yaml:"bot"`
	LogLevel  string          `yaml:"log_level"`

	// консольные уровни отдельных компонентов: session, storage, api, health, bot, app
	LogLevels map[string]string `yaml:"log_levels"`
}

// GameConfig — параметры движка и хоста сессии
type GameConfig struct {
	Tuning      tower.Tuning `yaml:"tuning"`
	Policy      string       `yaml:"policy"`       // frozen | ramp
	LockRelease string       `yaml:"lock_release"` // immediate | ack
	AckDelayMs  int          `yaml:"ack_delay_ms"` // при lock_release=ack сессия снимает блокировку сама
	TickHz      int          `yaml:"tick_hz"`
	BestKey     string       `yaml:"best_key"`
	AutoStart   bool         `yaml:"auto_start"`
}

// AckDelay возвращает задержку снятия блокировки.
func (g GameConfig) AckDelay() time.Duration {
	return time.Duration(g.AckDelayMs) * time.Millisecond
}

// TickInterval возвращает период игрового цикла.
func (g GameConfig) TickInterval() time.Duration {
	hz := g.TickHz
	if hz <= 0 {
		hz = 60
	}
	return time.Second / time.Duration(hz)
}

type StorageConfig struct {
	Best   string `yaml:"best"`   // memory | badger | redis
	Rounds string `yaml:"rounds"` // memory | mariadb | mongo

	BadgerPath string      `yaml:"badger_path"`
	Redis      RedisConfig `yaml:"redis"`
	Maria      MariaConfig `yaml:"mariadb"`
	Mongo      MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type EventBusConfig struct {
	Backend           string `yaml:"backend"` // memory | jetstream
	URL               string `yaml:"url"`
	Stream            string `yaml:"stream"`
	Retention         int    `yaml:"retention_hours"`
	BufferSize        int    `yaml:"buffer_size"`
	Codec             string `yaml:"codec"` // json | proto
	CompressThreshold int    `yaml:"compress_threshold"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
	GRPCPort int `yaml:"grpc_port"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "TOWER_REST_PORT", 8088)
}

// GetGRPCPort возвращает порт gRPC health сервиса
func (s *ServerConfig) GetGRPCPort() int {
	return getPortWithEnvFallback(s.GRPCPort, "TOWER_GRPC_PORT", 9090)
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"` // не короче 32 символов; пусто — случайный
	TokenTTLMinutes  int    `yaml:"token_ttl_minutes"`
	OperatorUser     string `yaml:"operator_user"`
	OperatorPassword string `yaml:"operator_password"`
}

// TokenTTL возвращает срок жизни токена.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // host:port OTLP/HTTP
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type BotConfig struct {
	Seed      int64   `yaml:"seed"`
	Rounds    int     `yaml:"rounds"`
	AimWindow float64 `yaml:"aim_window"` // px вокруг центра верхнего блока
	Jitter    float64 `yaml:"jitter"`     // амплитуда ошибки прицеливания, px
}

// Default возвращает конфигурацию, с которой сервер работает без файла.
func Default() *Config {
	return &Config{
		Game: GameConfig{
			Tuning:      tower.DefaultTuning(),
			Policy:      tower.PolicyFrozen,
			LockRelease: "immediate",
			TickHz:      60,
			BestKey:     "tower:best",
			AutoStart:   true,
		},
		Storage: StorageConfig{
			Best:       "memory",
			Rounds:     "memory",
			BadgerPath: "data/best",
			Redis:      RedisConfig{Addr: "localhost:6379"},
			Maria: MariaConfig{
				Host:     "localhost",
				Port:     3306,
				Database: "tower",
				Username: "tower",
			},
			Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: "tower"},
		},
		EventBus: EventBusConfig{
			Backend:           "memory",
			URL:               "nats://127.0.0.1:4222",
			Stream:            "TOWER_EVENTS",
			Retention:         24,
			BufferSize:        1024,
			Codec:             "json",
			CompressThreshold: 1024,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 24 * 60,
			OperatorUser:    "operator",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "tower-server",
		},
		Bot: BotConfig{
			Seed:      1,
			Rounds:    10,
			AimWindow: 2,
			Jitter:    6,
		},
		LogLevel: "info",
	}
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

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать путь из ENV TOWER_CONFIG; если и он
// пуст, возвращаются значения по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("TOWER_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, которые нельзя исправить молча.
func (c *Config) Validate() error {
	if err := c.Game.Tuning.Validate(); err != nil {
		return err
	}
	if _, err := tower.PolicyByName(c.Game.Policy); err != nil {
		return err
	}
	if _, err := tower.ParseLockRelease(c.Game.LockRelease); err != nil {
		return err
	}
	switch c.Storage.Best {
	case "", "memory", "badger", "redis":
	default:
		return fmt.Errorf("unknown best score backend %q", c.Storage.Best)
	}
	switch c.Storage.Rounds {
	case "", "memory", "mariadb", "mongo":
	default:
		return fmt.Errorf("unknown rounds backend %q", c.Storage.Rounds)
	}
	switch c.EventBus.Backend {
	case "", "memory", "jetstream":
	default:
		return fmt.Errorf("unknown event bus backend %q", c.EventBus.Backend)
	}
	for component, level := range c.LogLevels {
		if _, err := logging.ParseLevel(level); err != nil {
			return fmt.Errorf("log_levels.%s: %w", component, err)
		}
	}
	return nil
}
