package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	BotAPIKey     string        `mapstructure:"bot_api_key"`
	LoginTokenTTL time.Duration `mapstructure:"login_token_ttl"`
}

// DiscordConfig holds the bot credentials. Channel ids are not listed here:
// the dispatcher resolves them by env key through Config.Lookup.
type DiscordConfig struct {
	BotToken     string            `mapstructure:"bot_token"`
	GuildID      string            `mapstructure:"guild_id"`
	ImageBaseURL string            `mapstructure:"image_base_url"`
	Channels     map[string]string `mapstructure:"channels"`
}

type WorkflowConfig struct {
	CooldownHours        int           `mapstructure:"cooldown_hours"`
	NotificationTimeout  time.Duration `mapstructure:"notification_timeout"`
	NotificationDedupTTL time.Duration `mapstructure:"notification_dedup_ttl"`
	PresencePollInterval time.Duration `mapstructure:"presence_poll_interval"`
	EligibilityPoll      time.Duration `mapstructure:"eligibility_poll"`
}

func (w WorkflowConfig) Cooldown() time.Duration {
	return time.Duration(w.CooldownHours) * time.Hour
}

// Load reads .env (if present), then config.yaml from the usual locations,
// then PORTAL_* environment overrides. configPath may be empty.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url (PORTAL_DATABASE_URL) must be set")
	}
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret {
		if c.Server.Mode == "release" {
			return errors.New("auth.jwt_secret must be changed in release mode")
		}
	}
	if c.Workflow.CooldownHours < 0 {
		return errors.New("workflow.cooldown_hours must not be negative")
	}
	// Zero intervals would panic time.NewTicker or expire every Discord call.
	for name, d := range map[string]time.Duration{
		"workflow.eligibility_poll":       c.Workflow.EligibilityPoll,
		"workflow.presence_poll_interval": c.Workflow.PresencePollInterval,
		"workflow.notification_timeout":   c.Workflow.NotificationTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Lookup resolves a deployment key such as DISCORD_WHITELIST_CHANNEL_ID.
// The raw environment wins over discord.channels in the config file.
func (c *Config) Lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return c.Discord.Channels[strings.ToLower(key)]
}

const defaultJWTSecret = "change-me-in-production"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.request_timeout", 15*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 6)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("auth.jwt_secret", defaultJWTSecret)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.bot_api_key", "")
	v.SetDefault("auth.login_token_ttl", 15*time.Minute)

	v.SetDefault("discord.bot_token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.image_base_url", "https://cdn.example.invalid/portal")

	v.SetDefault("workflow.cooldown_hours", 24)
	v.SetDefault("workflow.notification_timeout", 10*time.Second)
	v.SetDefault("workflow.notification_dedup_ttl", 24*time.Hour)
	v.SetDefault("workflow.presence_poll_interval", 15*time.Second)
	v.SetDefault("workflow.eligibility_poll", 30*time.Second)
}
