package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	GameServerURL string        `yaml:"gameserver_url"`
	WebServerURL  string        `yaml:"webserver_url"`
	Session       string        `yaml:"session"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	HTTPPort      int           `yaml:"http_port"`
	NatsURL       string        `yaml:"nats_url"`
	NotifyBuffer  int           `yaml:"notify_buffer"`
	HistorySize   int           `yaml:"history_size"`
	LogLevel      string        `yaml:"log_level"`
	Archive       bool          `yaml:"archive"`
	Migrations    string        `yaml:"migrations_path"`
}

func Default() Config {
	return Config{
		GameServerURL: "ws://localhost:3842/socket",
		WebServerURL:  "http://localhost:3841",
		ReconnectWait: 2 * time.Second,
		HTTPPort:      8080,
		NotifyBuffer:  256,
		HistorySize:   40,
		LogLevel:      "info",
		Archive:       true,
		Migrations:    "./migrations",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// SHIBA_CONFIG if any, then SHIBA_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SHIBA_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.GameServerURL = getEnv("SHIBA_GAMESERVER_URL", cfg.GameServerURL)
	cfg.WebServerURL = getEnv("SHIBA_WEBSERVER_URL", cfg.WebServerURL)
	cfg.Session = getEnv("SHIBA_SESSION", cfg.Session)
	cfg.ReconnectWait = getEnvAsDuration("SHIBA_RECONNECT_WAIT", cfg.ReconnectWait)
	cfg.HTTPPort = getEnvAsInt("SHIBA_HTTP_PORT", cfg.HTTPPort)
	cfg.NatsURL = getEnv("SHIBA_NATS_URL", cfg.NatsURL)
	cfg.NotifyBuffer = getEnvAsInt("SHIBA_NOTIFY_BUFFER", cfg.NotifyBuffer)
	cfg.HistorySize = getEnvAsInt("SHIBA_HISTORY_SIZE", cfg.HistorySize)
	cfg.LogLevel = getEnv("SHIBA_LOG_LEVEL", cfg.LogLevel)
	cfg.Archive = getEnvAsBool("SHIBA_ARCHIVE", cfg.Archive)
	cfg.Migrations = getEnv("MIGRATIONS_PATH", cfg.Migrations)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.GameServerURL == "" {
		return fmt.Errorf("gameserver url is required")
	}
	if c.ReconnectWait <= 0 {
		return fmt.Errorf("reconnect wait must be positive, got %s", c.ReconnectWait)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured log level, info if unparsable.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
