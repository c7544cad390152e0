// Package config provides configuration management for tgcircle using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultMaxFileSize      = 8 * 1024 * 1024 // submissions at or above this are rejected
	defaultMaxDuration      = 60 * time.Second
	defaultMaxMemeDuration  = 55 * time.Second
	defaultTranscodeTimeout = 5 * time.Minute
	defaultGroupTTL         = 5 * time.Minute
	defaultStderrTailLines  = 200

	defaultEventRetention = 90 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Bot       BotConfig       `mapstructure:"bot"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Retention RetentionConfig `mapstructure:"retention"`
	Backup    BackupConfig    `mapstructure:"backup"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AdminToken      string        `mapstructure:"admin_token"`
}

// DatabaseConfig holds metrics store connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds working-file and stock-asset locations.
type StorageConfig struct {
	TempDir   string `mapstructure:"temp_dir"`   // per-job input/output files
	AssetsDir string `mapstructure:"assets_dir"` // stock clips live here
	FlashClip string `mapstructure:"flash_clip"` // relative to assets_dir when not absolute
	MemesDir  string `mapstructure:"memes_dir"`  // relative to assets_dir when not absolute
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// BotConfig holds messaging-platform client configuration.
// The token is redacted from log output.
type BotConfig struct {
	Token string `mapstructure:"token" masq:"secret"`
}

// FFmpegConfig holds external tool configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // path to ffmpeg (empty = auto-detect)
	ProbePath  string `mapstructure:"probe_path"`  // path to ffprobe (empty = auto-detect)
}

// LimitsConfig holds admission-control limits for submissions.
type LimitsConfig struct {
	// MaxFileSize rejects submissions at or above this size.
	// Supports human-readable values like "8MB" or raw byte counts.
	MaxFileSize      ByteSize      `mapstructure:"max_file_size"`
	MaxDuration      time.Duration `mapstructure:"max_duration"`
	MaxMemeDuration  time.Duration `mapstructure:"max_meme_duration"`
	TranscodeTimeout time.Duration `mapstructure:"transcode_timeout"`
	GroupTTL         time.Duration `mapstructure:"group_ttl"`
	StderrTailLines  int           `mapstructure:"stderr_tail_lines"`
}

// RetentionConfig holds metrics event retention configuration.
type RetentionConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Cron    string        `mapstructure:"cron"`
	MaxAge  time.Duration `mapstructure:"max_age"`
}

// BackupConfig holds metrics store backup configuration.
type BackupConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"` // empty = {storage.temp_dir}/../backups
	Cron      string `mapstructure:"cron"`
	Retention int    `mapstructure:"retention"` // number of backups to keep
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with TGCIRCLE, using underscores for nesting.
// Example: TGCIRCLE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tgcircle")
		v.AddConfigPath("$HOME/.tgcircle")
	}

	v.SetEnvPrefix("TGCIRCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// Call before reading the config file so defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.admin_token", "")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "metrics.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.temp_dir", "./data/tmp")
	v.SetDefault("storage.assets_dir", "./assets")
	v.SetDefault("storage.flash_clip", "flash.mp4")
	v.SetDefault("storage.memes_dir", "memes")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Bot defaults
	v.SetDefault("bot.token", "")

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	// Limits defaults
	v.SetDefault("limits.max_file_size", defaultMaxFileSize)
	v.SetDefault("limits.max_duration", defaultMaxDuration)
	v.SetDefault("limits.max_meme_duration", defaultMaxMemeDuration)
	v.SetDefault("limits.transcode_timeout", defaultTranscodeTimeout)
	v.SetDefault("limits.group_ttl", defaultGroupTTL)
	v.SetDefault("limits.stderr_tail_lines", defaultStderrTailLines)

	// Retention defaults
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.cron", "30 3 * * *") // daily at 03:30
	v.SetDefault("retention.max_age", defaultEventRetention)

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.directory", "")
	v.SetDefault("backup.cron", "0 2 * * *") // daily at 02:00
	v.SetDefault("backup.retention", 7)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.TempDir == "" {
		return fmt.Errorf("storage.temp_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Limits.MaxFileSize <= 0 {
		return fmt.Errorf("limits.max_file_size must be positive")
	}
	if c.Limits.MaxDuration <= 0 {
		return fmt.Errorf("limits.max_duration must be positive")
	}
	if c.Limits.MaxMemeDuration > c.Limits.MaxDuration {
		return fmt.Errorf("limits.max_meme_duration must not exceed limits.max_duration")
	}
	if c.Limits.TranscodeTimeout <= 0 {
		return fmt.Errorf("limits.transcode_timeout must be positive")
	}
	if c.Limits.GroupTTL <= 0 {
		return fmt.Errorf("limits.group_ttl must be positive")
	}

	if c.Backup.Enabled && c.Backup.Retention < 1 {
		return fmt.Errorf("backup.retention must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FlashClipPath returns the full path to the stock flash clip.
func (c *StorageConfig) FlashClipPath() string {
	return resolveAssetPath(c.AssetsDir, c.FlashClip)
}

// MemesPath returns the full path to the stock meme clip directory.
func (c *StorageConfig) MemesPath() string {
	return resolveAssetPath(c.AssetsDir, c.MemesDir)
}

func resolveAssetPath(base, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
