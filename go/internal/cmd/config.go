package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/staffdraft/go/internal/dbconfig"
	"github.com/mcdev12/staffdraft/go/internal/draft/engine"
	"github.com/mcdev12/staffdraft/go/internal/draft/outbox"
)

const (
	catalogSourceFile     = "file"
	catalogSourcePostgres = "postgres"
)

type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogConsole     bool     `env:"LOG_CONSOLE"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	CatalogSource string `env:"CATALOG_SOURCE" envDefault:"file"`
	CatalogFile   string `env:"CATALOG_FILE" envDefault:"catalog.yaml"`

	JoinCode      string        `env:"DRAFT_JOIN_CODE"`
	TokenSecret   string        `env:"DRAFT_TOKEN_SECRET"`
	TokenIssuer   string        `env:"DRAFT_TOKEN_ISSUER" envDefault:"staffdraft"`
	AdminKey      string        `env:"DRAFT_ADMIN_KEY"`
	GracePeriod   time.Duration `env:"DRAFT_GRACE_PERIOD" envDefault:"10s"`
	SweepInterval time.Duration `env:"DRAFT_SWEEP_INTERVAL" envDefault:"15s"`
	ClaimQueue    int           `env:"DRAFT_CLAIM_QUEUE" envDefault:"256"`

	OutboxSpoolPath         string        `env:"OUTBOX_SPOOL_PATH"`
	OutboxCapacity          int           `env:"OUTBOX_CAPACITY" envDefault:"10000"`
	OutboxDebounce          time.Duration `env:"OUTBOX_DEBOUNCE" envDefault:"500ms"`
	OutboxBatchSize         int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxRetryInterval     time.Duration `env:"OUTBOX_RETRY_INTERVAL" envDefault:"1s"`
	OutboxMaxRetryDelay     time.Duration `env:"OUTBOX_MAX_RETRY_DELAY" envDefault:"1m"`
	OutboxMaxRetries        int           `env:"OUTBOX_MAX_RETRIES" envDefault:"10"`
	OutboxFinalFlushTimeout time.Duration `env:"OUTBOX_FINAL_FLUSH_TIMEOUT" envDefault:"10s"`

	NATSURL          string `env:"NATS_URL"`
	HistoryDBEnabled bool   `env:"HISTORY_DB_ENABLED"`
	WebhookURL       string `env:"HISTORY_WEBHOOK_URL"`

	DB dbconfig.Config `envPrefix:"DB_"`
}

// loadConfig reads an optional .env file and then the process environment.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.CatalogSource {
	case catalogSourceFile:
		if c.CatalogFile == "" {
			return errors.New("CATALOG_FILE is required when CATALOG_SOURCE=file")
		}
	case catalogSourcePostgres:
	default:
		return fmt.Errorf("unknown CATALOG_SOURCE %q", c.CatalogSource)
	}
	if c.GracePeriod <= 0 {
		return errors.New("DRAFT_GRACE_PERIOD must be positive")
	}
	if c.ClaimQueue <= 0 {
		return errors.New("DRAFT_CLAIM_QUEUE must be positive")
	}
	if c.OutboxCapacity <= 0 {
		return errors.New("OUTBOX_CAPACITY must be positive")
	}
	return nil
}

func (c Config) engineConfig() engine.Config {
	return engine.Config{
		GracePeriod:       c.GracePeriod,
		SweepInterval:     c.SweepInterval,
		QueueSize:         c.ClaimQueue,
		FinalFlushTimeout: c.OutboxFinalFlushTimeout,
	}
}

func (c Config) outboxConfig() outbox.Config {
	return outbox.Config{
		Debounce:      c.OutboxDebounce,
		BatchSize:     c.OutboxBatchSize,
		MaxRetries:    c.OutboxMaxRetries,
		RetryDelay:    c.OutboxRetryInterval,
		MaxRetryDelay: c.OutboxMaxRetryDelay,
	}
}

func setupLogging(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.LogConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
