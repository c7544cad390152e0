package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	// Explicit missing file is an error; load with no path instead.
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, int64(8*1024*1024), cfg.Limits.MaxFileSize.Bytes())
	assert.Equal(t, 60*time.Second, cfg.Limits.MaxDuration)
	assert.Equal(t, 55*time.Second, cfg.Limits.MaxMemeDuration)
	assert.Equal(t, 5*time.Minute, cfg.Limits.TranscodeTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Limits.GroupTTL)
	assert.Equal(t, 200, cfg.Limits.StderrTailLines)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
limits:
  max_file_size: 16MB
  max_duration: 30s
  max_meme_duration: 25s
storage:
  temp_dir: /var/tmp/tgcircle
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(16*1024*1024), cfg.Limits.MaxFileSize.Bytes())
	assert.Equal(t, 30*time.Second, cfg.Limits.MaxDuration)
	assert.Equal(t, 25*time.Second, cfg.Limits.MaxMemeDuration)
	assert.Equal(t, "/var/tmp/tgcircle", cfg.Storage.TempDir)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TGCIRCLE_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"empty temp dir", func(c *Config) { c.Storage.TempDir = "" }, "storage.temp_dir"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero file size", func(c *Config) { c.Limits.MaxFileSize = 0 }, "limits.max_file_size"},
		{"meme over max", func(c *Config) { c.Limits.MaxMemeDuration = 2 * c.Limits.MaxDuration }, "limits.max_meme_duration"},
		{"zero group ttl", func(c *Config) { c.Limits.GroupTTL = 0 }, "limits.group_ttl"},
		{"backup retention", func(c *Config) { c.Backup.Enabled = true; c.Backup.Retention = 0 }, "backup.retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestStorageConfig_AssetPaths(t *testing.T) {
	c := StorageConfig{AssetsDir: "/srv/assets", FlashClip: "flash.mp4", MemesDir: "memes"}
	assert.Equal(t, "/srv/assets/flash.mp4", c.FlashClipPath())
	assert.Equal(t, "/srv/assets/memes", c.MemesPath())

	c.FlashClip = "/opt/clips/burst.mp4"
	assert.Equal(t, "/opt/clips/burst.mp4", c.FlashClipPath())

	c.MemesDir = ""
	assert.Equal(t, "", c.MemesPath())
}

func TestByteSize_UnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("8MB")))
	assert.Equal(t, int64(8*1024*1024), b.Bytes())

	require.NoError(t, b.UnmarshalText([]byte("1024")))
	assert.Equal(t, int64(1024), b.Bytes())

	assert.Error(t, b.UnmarshalText([]byte("eight")))
}
