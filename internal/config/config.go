package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	RelayTelegram = "telegram"
	RelayPutio    = "putio"
)

// Config struct for environment variables.
type Config struct {
	TelegramToken       string `envconfig:"TELEGRAM_TOKEN"`
	TelegramAPIEndpoint string `envconfig:"TELEGRAM_API_ENDPOINT"`

	RelayBackend string `envconfig:"RELAY_BACKEND" default:"telegram"`

	PutioToken  string `envconfig:"PUTIO_TOKEN"`
	PutioFolder string `envconfig:"PUTIO_FOLDER"`

	SiteLoginURL string        `envconfig:"SITE_LOGIN_URL"`
	SiteUsername string        `envconfig:"SITE_USERNAME"`
	SitePassword string        `envconfig:"SITE_PASSWORD"`
	UserAgent    string        `envconfig:"USER_AGENT" default:"Mozilla/5.0"`
	PageTimeout  time.Duration `envconfig:"PAGE_TIMEOUT" default:"15s"`
	ProbeTimeout time.Duration `envconfig:"PROBE_TIMEOUT" default:"10s"`

	WorkDir          string        `envconfig:"WORK_DIR"`
	WorkFilePrefix   string        `envconfig:"WORK_FILE_PREFIX" default:"media_relay"`
	ChunkSize        int           `envconfig:"CHUNK_SIZE" default:"262144"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL" default:"1s"`
	PhaseTimeout     time.Duration `envconfig:"PHASE_TIMEOUT" default:"0s"`

	DBPath              string        `envconfig:"DB_PATH" default:"media_relay.db"`
	CleanupInterval     time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	KeepWorkingFilesFor time.Duration `envconfig:"KEEP_WORKING_FILES_FOR" default:"24h"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"media_relay"`
		OTLPEndpoint string `envconfig:"TELEMETRY_OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks combinations envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.RelayBackend {
	case RelayTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("relay backend %q requires TELEGRAM_TOKEN", c.RelayBackend)
		}
	case RelayPutio:
		if c.PutioToken == "" {
			return fmt.Errorf("relay backend %q requires PUTIO_TOKEN", c.RelayBackend)
		}
	default:
		return fmt.Errorf("invalid relay backend: %s", c.RelayBackend)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}

	if c.PhaseTimeout < 0 {
		return fmt.Errorf("PHASE_TIMEOUT must not be negative, got %s", c.PhaseTimeout)
	}

	return nil
}

// LoginEnabled reports whether site credentials were provided.
func (c *Config) LoginEnabled() bool {
	return c.SiteLoginURL != "" && c.SiteUsername != "" && c.SitePassword != ""
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
