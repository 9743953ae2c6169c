package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Version is the application version, overridden at build time.
var Version = "0.0.1-dev"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Debounce  DebounceConfig  `mapstructure:"debounce"`
	Plex      PlexConfig      `mapstructure:"plex"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Overseerr OverseerrConfig `mapstructure:"overseerr"`
	Arr       ArrConfig       `mapstructure:"arr"`
	History   HistoryConfig   `mapstructure:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// BaseURL is the externally reachable URL of this service, used when
	// registering webhooks with *Arr instances (e.g. "http://plexbot:5000").
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DebounceConfig controls event aggregation.
type DebounceConfig struct {
	// Seconds is the quiet period after the last event for a media key
	// before its batch is flushed.
	Seconds int `mapstructure:"seconds"`
}

// PlexConfig holds Plex server connection and scan settings.
type PlexConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	ScanEnabled bool   `mapstructure:"scan_enabled"`
	// Library pins all scans to a single library name. When empty the
	// target library is resolved from the event source.
	Library      string `mapstructure:"library"`
	ShowLibrary  string `mapstructure:"show_library"`
	MovieLibrary string `mapstructure:"movie_library"`
	BookLibrary  string `mapstructure:"book_library"`
}

// DiscordConfig holds Discord delivery settings. Each source can route to
// its own webhook; unset sources fall back to the default webhook.
type DiscordConfig struct {
	DefaultWebhookURL string `mapstructure:"default_webhook_url"`
	SonarrWebhookURL  string `mapstructure:"sonarr_webhook_url"`
	RadarrWebhookURL  string `mapstructure:"radarr_webhook_url"`
	ReadarrWebhookURL string `mapstructure:"readarr_webhook_url"`
	Username          string `mapstructure:"username"`
	AvatarURL         string `mapstructure:"avatar_url"`
}

// OverseerrConfig holds Overseerr user-sync settings.
type OverseerrConfig struct {
	Enabled                bool              `mapstructure:"enabled"`
	BaseURL                string            `mapstructure:"base_url"`
	APIKey                 string            `mapstructure:"api_key"`
	RefreshIntervalMinutes int               `mapstructure:"refresh_interval_minutes"`
	PlexToDiscord          map[string]string `mapstructure:"plex_to_discord"`
}

// ArrInstance describes one Sonarr/Radarr/Readarr instance.
type ArrInstance struct {
	Name    string `mapstructure:"name" json:"name"`
	Type    string `mapstructure:"type" json:"type"` // "sonarr", "radarr", "readarr"
	URL     string `mapstructure:"url" json:"url"`
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

// ArrConfig holds *Arr instance definitions.
type ArrConfig struct {
	Instances []ArrInstance `mapstructure:"instances"`
	// AutoRegisterWebhooks creates the bot's webhook in each enabled
	// instance on startup if it does not already exist.
	AutoRegisterWebhooks bool `mapstructure:"auto_register_webhooks"`
}

// HistoryConfig holds persisted notification history settings.
type HistoryConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.plexbot")
	}

	v.SetEnvPrefix("PLEXBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.base_url", "")

	v.SetDefault("database.path", "./data/plexbot.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("debounce.seconds", 60)

	v.SetDefault("plex.scan_enabled", true)
	v.SetDefault("plex.show_library", "TV Shows")
	v.SetDefault("plex.movie_library", "Movies")
	v.SetDefault("plex.book_library", "")

	v.SetDefault("discord.username", "PlexBot")

	v.SetDefault("overseerr.enabled", false)
	v.SetDefault("overseerr.refresh_interval_minutes", 60)

	v.SetDefault("arr.auto_register_webhooks", false)

	v.SetDefault("history.retention_days", 30)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebhookURL returns the Discord webhook for a source, falling back to the
// default when the source has no dedicated route.
func (c *DiscordConfig) WebhookURL(source string) string {
	var url string
	switch source {
	case "sonarr":
		url = c.SonarrWebhookURL
	case "radarr":
		url = c.RadarrWebhookURL
	case "readarr":
		url = c.ReadarrWebhookURL
	}
	if url == "" {
		url = c.DefaultWebhookURL
	}
	return url
}
