// Package config loads application configuration from the environment. A
// .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/iliyamo/task-manager/internal/utils"
)

// Secrets shipped as defaults. They are only accepted in development.
const (
	DefaultJWTSecret        = "change-this-access-secret"
	DefaultJWTRefreshSecret = "change-this-refresh-secret"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"` // development, test, production
	Port     string `env:"APP_PORT" envDefault:"5050"`       // HTTP port to listen on
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB     string `env:"MONGO_DB" envDefault:"task_manager"`
	MySQL       MySQLConfig

	JWTSecret           string `env:"JWT_SECRET" envDefault:"change-this-access-secret"`
	JWTExpiresIn        string `env:"JWT_EXPIRES_IN" envDefault:"15m"`
	JWTRefreshSecret    string `env:"JWT_REFRESH_SECRET" envDefault:"change-this-refresh-secret"`
	JWTRefreshExpiresIn string `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"7d"`
	BcryptCost          int    `env:"BCRYPT_COST" envDefault:"10"` // bcrypt cost for password hashing
	PageSize            int    `env:"PAGE_SIZE" envDefault:"20"`   // default task page size

	RabbitMQURL string `env:"RABBITMQ_URL"` // empty disables domain events
	EventsQueue string `env:"EVENTS_QUEUE" envDefault:"task_manager.events"`
	AuditLog    string `env:"AUDIT_LOG_PATH" envDefault:"logs/audit.log"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE"`

	Redis RedisConfig
	Cache CacheConfig

	// Parsed from JWTExpiresIn and JWTRefreshExpiresIn by Load.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// MySQLConfig is only read when STORE_DRIVER=mysql.
type MySQLConfig struct {
	User string `env:"DB_USER" envDefault:"root"`
	Pass string `env:"DB_PASS"`
	Host string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port string `env:"DB_PORT" envDefault:"3306"`
	Name string `env:"DB_NAME" envDefault:"task_manager"`
}

// DSN builds the go-sql-driver DSN with times read and written in UTC.
// clientFoundRows makes UPDATE report matched rather than changed rows.
func (m MySQLConfig) DSN() string {
	auth := m.User
	if m.Pass != "" {
		auth = fmt.Sprintf("%s:%s", m.User, m.Pass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, m.Host, m.Port, m.Name)
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads .env (if any) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid APP_PORT: %q", c.Port)
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverMongo, DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want mongo, mysql or memory", c.StoreDriver)
	}

	var err error
	if c.AccessTTL, err = utils.ParseTTL(c.JWTExpiresIn); err != nil {
		return fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	if c.RefreshTTL, err = utils.ParseTTL(c.JWTRefreshExpiresIn); err != nil {
		return fmt.Errorf("JWT_REFRESH_EXPIRES_IN: %w", err)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("PAGE_SIZE must be between 1 and 100, got %d", c.PageSize)
	}

	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must not be empty")
	}
	if !c.IsDevelopment() {
		if c.JWTSecret == DefaultJWTSecret || c.JWTRefreshSecret == DefaultJWTRefreshSecret {
			return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must be explicitly set in %q mode", c.Env)
		}
		if len(c.JWTSecret) < 32 || len(c.JWTRefreshSecret) < 32 {
			return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must be at least 32 characters long")
		}
		if c.JWTSecret == c.JWTRefreshSecret {
			return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
		}
	}
	return nil
}
