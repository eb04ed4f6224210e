// Package config loads runtime settings from a TOML file and UDESIGN_*
// environment overrides. Precedence is compiled-in defaults, then the
// file, then the environment. Components receive resolved values; none
// of them read the environment themselves.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the settings shared by the CLI and the server. Zero
// values defer to each component's own default (sqlite archive, fs
// blob store).
type Config struct {
	// Listen is the HTTP listen address for the serve command.
	Listen string `toml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	Archive ArchiveConfig `toml:"archive"`
	Blob    BlobConfig    `toml:"blob"`
}

// ArchiveConfig selects the run archive backend.
type ArchiveConfig struct {
	// Driver is memory, sqlite, or postgres.
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// BlobConfig selects the export artifact store.
type BlobConfig struct {
	// Driver is fs, memory, or s3.
	Driver string `toml:"driver"`

	// Root is the filesystem store directory.
	Root string `toml:"root"`

	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// Default returns the compiled-in settings.
func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
	}
}

// DefaultPath returns the per-user config file location,
// ~/.config/udesign/config.toml on most systems. Empty when the user
// config directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "udesign", "config.toml")
}

// Load merges the defaults, the TOML file at path, and the UDESIGN_*
// environment, in that order. When path is empty the default location
// is tried; a missing file there is not an error, a missing explicit
// path is.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// No user config file; defaults apply.
		default:
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// Level maps the configured log level onto slog's scale. Unknown
// values fall back to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) applyEnv() {
	overrideString(&c.Listen, "UDESIGN_LISTEN")
	overrideString(&c.LogLevel, "UDESIGN_LOG_LEVEL")
	overrideString(&c.Archive.Driver, "UDESIGN_ARCHIVE_DRIVER")
	overrideString(&c.Archive.SQLitePath, "UDESIGN_SQLITE_PATH")
	overrideString(&c.Archive.PostgresDSN, "UDESIGN_POSTGRES_DSN")
	overrideString(&c.Blob.Driver, "UDESIGN_BLOB_DRIVER")
	overrideString(&c.Blob.Root, "UDESIGN_BLOB_FS_ROOT")
	overrideString(&c.Blob.Bucket, "UDESIGN_BLOB_S3_BUCKET")
	overrideString(&c.Blob.Region, "UDESIGN_BLOB_S3_REGION")
	overrideString(&c.Blob.Endpoint, "UDESIGN_BLOB_S3_ENDPOINT")
	if v, ok := os.LookupEnv("UDESIGN_BLOB_S3_PATH_STYLE"); ok {
		c.Blob.PathStyle = strings.EqualFold(v, "true")
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
