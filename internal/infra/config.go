package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации шлюза.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CRM      CRMConfig      `mapstructure:"crm"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
// Driver "memory" поднимает In-memory стор (локальная разработка и демо).
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | memory
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub сигналы и уведомления).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и учетные данные транспортных клиентов.
type AuthConfig struct {
	PublicKeyPath  string         `mapstructure:"public_key_path"`
	PrivateKeyPath string         `mapstructure:"private_key_path"`
	TokenTTL       time.Duration  `mapstructure:"token_ttl"`
	Clients        []ClientConfig `mapstructure:"clients"`
	PublicKey      []byte
	PrivateKey     []byte
}

// ClientConfig — сервисный клиент (например, Slack-транспорт).
// Секрет хранится только как bcrypt-хэш.
type ClientConfig struct {
	ID         string          `mapstructure:"id"`
	SecretHash string          `mapstructure:"secret_hash"`
	Scopes     map[string]bool `mapstructure:"scopes"`
}

// CRMConfig — доступ к Copper API и бюджет запросов.
type CRMConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	UserEmail string `mapstructure:"user_email"`

	// Copper жестко лимитирует: 180 запросов в минуту на весь токен.
	// Счетчик общий для всех конкурентных вызовов.
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	RateMode   string        `mapstructure:"rate_mode"` // fail | block

	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`

	// Настройки Circuit Breaker на внешние вызовы Copper
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// EngineConfig содержит настройки движка согласования.
type EngineConfig struct {
	// Кворум: first (первый голос решает) | unanimous | majority
	Quorum string `mapstructure:"quorum"`

	NotifyBufferSize   int           `mapstructure:"notify_buffer_size"`
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. Переменные окружения: CRM_API_KEY перекроет crm.api_key
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключи из файла ИЛИ напрямую из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if cfg.CRM.APIKey == "" || cfg.CRM.UserEmail == "" {
		return nil, errors.New("crm.api_key and crm.user_email must be configured")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("crm.base_url", "https://api.copper.com/developer_api/v1")
	v.SetDefault("crm.rate_limit", 180)
	v.SetDefault("crm.rate_window", time.Minute)
	v.SetDefault("crm.rate_mode", "fail")
	v.SetDefault("crm.call_timeout", 30*time.Second)
	v.SetDefault("crm.retry_attempts", 3)
	v.SetDefault("crm.cb_max_requests", 3)
	v.SetDefault("crm.cb_interval", 5*time.Second)
	v.SetDefault("crm.cb_timeout", 30*time.Second)

	v.SetDefault("engine.quorum", "first")
	v.SetDefault("engine.notify_buffer_size", 1000)
	v.SetDefault("engine.audit_buffer_size", 1000)
	v.SetDefault("engine.audit_flush_interval", 1*time.Second)
}

// loadKeyResource — ключ либо лежит в ENV (PEM), либо читается с диска
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
