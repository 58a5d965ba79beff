package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CARTENGINE"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv     = "CARTENGINE_APP_ENV"
	EnvRedisURL   = "CARTENGINE_REDIS_URL"
	EnvUseSQLite  = "CARTENGINE_USE_SQLITE"
	EnvSQLitePath = "CARTENGINE_SQLITE_PATH"
)

type Config struct {
	App     AppConfig
	Redis   RedisConfig
	Storage StorageConfig
	Cart    CartConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.ensureStorageBackend(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTENGINE_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"CARTENGINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARTENGINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTENGINE_REDIS_URL"`
	Address      string        `envconfig:"CARTENGINE_REDIS_ADDR"`
	Password     string        `envconfig:"CARTENGINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTENGINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTENGINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARTENGINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARTENGINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTENGINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTENGINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StorageConfig struct {
	UseSQLite  bool   `envconfig:"CARTENGINE_USE_SQLITE" default:"false"`
	SQLitePath string `envconfig:"CARTENGINE_SQLITE_PATH" default:"cartengine.db"`

	ActiveKey string `envconfig:"CARTENGINE_STORAGE_ACTIVE_KEY" default:"cart:active"`
	SavedKey  string `envconfig:"CARTENGINE_STORAGE_SAVED_KEY" default:"cart:saved"`
}

type CartConfig struct {
	SlotSweepInterval time.Duration `envconfig:"CARTENGINE_SLOT_SWEEP_INTERVAL" default:"30m"`
	DealDebounce      time.Duration `envconfig:"CARTENGINE_DEAL_DEBOUNCE" default:"400ms"`
	NotifyCooldown    time.Duration `envconfig:"CARTENGINE_NOTIFY_COOLDOWN" default:"5s"`
	SlotServiceURL    string        `envconfig:"CARTENGINE_SLOT_SERVICE_URL"`
	SlotLookupRetries uint64        `envconfig:"CARTENGINE_SLOT_LOOKUP_RETRIES" default:"3"`
}

func (c *Config) ensureStorageBackend() error {
	if c.Storage.UseSQLite {
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%s is required when %s is enabled", EnvSQLitePath, EnvUseSQLite)
		}
		return nil
	}
	if c.Redis.URL == "" && c.Redis.Address == "" {
		return fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvUseSQLite)
	}
	return nil
}
