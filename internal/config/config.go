package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type DBConfig struct {
	URL            string        `yaml:"url" env:"DATABASE_URL" env-default:"postgres://pguser:pgpass@db:5432/prdb?sslmode=disable"`
	ConnectRetries int           `yaml:"connect_retries" env:"DB_CONNECT_RETRIES" env-default:"15"`
	ConnectBackoff time.Duration `yaml:"connect_backoff" env:"DB_CONNECT_BACKOFF" env-default:"2s"`
	MigrationsDir  string        `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"./migrations"`
}

type Config struct {
	LogLevel    string     `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	StorageType string     `yaml:"storage_type" env:"STORAGE_TYPE" env-default:"postgres"`
	EnableReset bool       `yaml:"enable_reset" env:"ENABLE_RESET" env-default:"false"`
	HTTP        HTTPConfig `yaml:"http"`
	DB          DBConfig   `yaml:"db"`
}

// MustLoad reads the YAML file at configPath, applying environment
// overrides on top. It exits the process on failure.
func MustLoad(configPath string) Config {
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config %q: %s", configPath, err)
	}
	return cfg
}

// FromEnv builds the config from environment variables and defaults only,
// for deployments without a config file.
func FromEnv() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
