package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/Skotchmaster/storefront/pkg/config"
)

type Config struct {
	ListenAddr string
	LogLevel   string

	APIBaseURL  string
	HTTPTimeout time.Duration

	StorageDriver string
	StorageDSN    string

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		ListenAddr: pkgconfig.EnvDefault("LISTEN_ADDR", "127.0.0.1:5173"),
		LogLevel:   pkgconfig.EnvDefault("LOG_LEVEL", "info"),

		APIBaseURL:  pkgconfig.EnvDefault("API_BASE_URL", "http://localhost:8000/api"),
		HTTPTimeout: pkgconfig.EnvSecondsDefault("HTTP_TIMEOUT_SEC", 10),

		StorageDriver: pkgconfig.EnvDefault("STORAGE_DRIVER", "sqlite"),
		StorageDSN:    pkgconfig.EnvDefault("STORAGE_DSN", "storefront.db"),

		KafkaBrokers: pkgconfig.CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   pkgconfig.EnvDefault("KAFKA_TOPIC", "storefront_events"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	err := errors.Join(
		pkgconfig.RequireNonEmpty(c.APIBaseURL, "API_BASE_URL"),
		pkgconfig.RequireOneOf(c.StorageDriver, "STORAGE_DRIVER", "sqlite", "postgres"),
		pkgconfig.RequireNonEmpty(c.StorageDSN, "STORAGE_DSN"),
	)
	if c.HTTPTimeout <= 0 {
		err = errors.Join(err, fmt.Errorf("HTTP_TIMEOUT_SEC must be positive"))
	}
	return err
}
