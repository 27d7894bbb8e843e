package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by Validate when no bot token was configured.
var ErrMissingToken = errors.New("DISCORD_TOKEN is required")

type Config struct {
	DiscordToken    string         `yaml:"discord_token"`
	ApplicationID   string         `yaml:"application_id"`
	DatabaseURL     string         `yaml:"database_url"`
	LogLevel        string         `yaml:"log_level"`
	DefaultLanguage string         `yaml:"default_language"`
	Health          HealthConfig   `yaml:"health"`
	Activity        ActivityConfig `yaml:"activity"`
	Notifications   NotifyConfig   `yaml:"notifications"`
}

type HealthConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	MaxConnections int    `yaml:"max_connections"`
}

type ActivityConfig struct {
	MessagesPerLevel     int `yaml:"messages_per_level"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

func (c ActivityConfig) FlushInterval() time.Duration {
	if c.FlushIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

type NotifyConfig struct {
	LevelCards  bool        `yaml:"level_cards"`
	VoiceEvents bool        `yaml:"voice_events"`
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Info  int `yaml:"info"`
	Error int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseURL:     "data/grace.db",
		LogLevel:        "info",
		DefaultLanguage: "en",
		Health:          HealthConfig{Enabled: false, Addr: ":8080", MaxConnections: 16},
		Activity:        ActivityConfig{MessagesPerLevel: 5, FlushIntervalSeconds: 60},
		Notifications: NotifyConfig{
			LevelCards:  false,
			VoiceEvents: true,
			EmbedColors: EmbedColors{
				Info:  0x5865F2,
				Error: 0xEF4444,
			},
		},
	}
}

// Load reads the YAML file at path (CONFIG_PATH or config.yaml when empty),
// then a .env file if present, then the environment. It does not require a
// token; callers that connect to Discord call Validate.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)

	cfg.DefaultLanguage = normalizeLanguage(cfg.DefaultLanguage)
	if cfg.Activity.MessagesPerLevel <= 0 {
		cfg.Activity.MessagesPerLevel = 5
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrMissingToken
	}
	return nil
}

func applyEnv(cfg *Config) {
	// "token" is the variable name older deployments were started with.
	cfg.DiscordToken = envString("token", cfg.DiscordToken)
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.ApplicationID = envString("APPLICATION_ID", cfg.ApplicationID)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultLanguage = envString("DEFAULT_LANGUAGE", cfg.DefaultLanguage)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Health.MaxConnections = envInt("HEALTH_MAX_CONNECTIONS", cfg.Health.MaxConnections)
	cfg.Activity.MessagesPerLevel = envInt("MESSAGES_PER_LEVEL", cfg.Activity.MessagesPerLevel)
	cfg.Activity.FlushIntervalSeconds = envInt("FLUSH_INTERVAL_SECONDS", cfg.Activity.FlushIntervalSeconds)
	cfg.Notifications.LevelCards = envBool("LEVEL_CARDS", cfg.Notifications.LevelCards)
	cfg.Notifications.VoiceEvents = envBool("VOICE_EVENTS", cfg.Notifications.VoiceEvents)
	cfg.Notifications.EmbedColors.Info = envInt("EMBED_COLOR_INFO", cfg.Notifications.EmbedColors.Info)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeLanguage(value string) string {
	switch strings.ToLower(value) {
	case "ru":
		return "ru"
	default:
		return "en"
	}
}
