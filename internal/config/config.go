// Package config handles loading and managing pitwatch configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wesm/pitwatch/internal/fileutil"
	"github.com/wesm/pitwatch/internal/mailbox"
)

// Duration is a time.Duration written as a string such as "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServerConfig describes the Mailpit server to watch.
type ServerConfig struct {
	URL           string   `toml:"url"`
	Username      string   `toml:"username"`
	Password      string   `toml:"password"`
	AllowInsecure bool     `toml:"allow_insecure"` // permit http:// URLs
	Timeout       Duration `toml:"timeout"`
}

// ViewConfig holds the initial list view.
type ViewConfig struct {
	PageSize int    `toml:"page_size"` // clamped to the supported sizes
	Search   string `toml:"search"`    // initial filter; empty lists the mailbox
}

// SyncConfig holds push reconnect and fallback resync settings.
type SyncConfig struct {
	ResyncSchedule string   `toml:"resync_schedule"` // cron spec; empty disables
	ReconnectMin   Duration `toml:"reconnect_min"`
	ReconnectMax   Duration `toml:"reconnect_max"`
}

// Config represents the pitwatch configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	View   ViewConfig   `toml:"view"`
	Sync   SyncConfig   `toml:"sync"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DefaultHome returns the default pitwatch home directory.
// Respects PITWATCH_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("PITWATCH_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pitwatch"
	}
	return filepath.Join(home, ".pitwatch")
}

// Default returns the configuration used when no file exists.
func Default(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Server: ServerConfig{
			URL:           "http://localhost:8025",
			AllowInsecure: true,
			Timeout:       Duration{15 * time.Second},
		},
		View: ViewConfig{
			PageSize: mailbox.DefaultPageSize,
		},
		Sync: SyncConfig{
			ResyncSchedule: "@every 10m",
			ReconnectMin:   Duration{time.Second},
			ReconnectMax:   Duration{30 * time.Second},
		},
	}
}

// Load reads the configuration from the specified file.
// If path is empty, uses <home>/config.toml and a missing file yields the
// defaults. An explicit path must exist; when home is empty the home
// directory is the file's parent. If both are empty, DefaultHome is used.
func Load(path, home string) (*Config, error) {
	explicit := path != ""
	homeDir := expandPath(home)
	if explicit {
		path = expandPath(path)
		if homeDir == "" {
			homeDir = filepath.Dir(path)
		}
	}
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := Default(homeDir)
	cfg.configPath = path

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		// Config file is optional - use defaults if not present
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decode config: unknown keys: %s", strings.Join(keys, ", "))
	}

	cfg.View.PageSize = mailbox.ClampPageSize(cfg.View.PageSize)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be clamped.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("server.url %q: must be an absolute URL", c.Server.URL)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !c.Server.AllowInsecure {
			return fmt.Errorf("server.url %q: http requires allow_insecure = true", c.Server.URL)
		}
	default:
		return fmt.Errorf("server.url %q: unsupported scheme %q", c.Server.URL, u.Scheme)
	}
	if c.Server.Timeout.Duration < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}
	if c.Sync.ReconnectMin.Duration <= 0 || c.Sync.ReconnectMax.Duration < c.Sync.ReconnectMin.Duration {
		return fmt.Errorf("sync.reconnect_min/reconnect_max: need 0 < min <= max, got %s/%s",
			c.Sync.ReconnectMin, c.Sync.ReconnectMax)
	}
	return nil
}

// Save writes the configuration to ConfigFilePath as an owner-only file.
func (c *Config) Save() error {
	if err := c.EnsureHomeDir(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := c.ConfigFilePath()
	if err := fileutil.SecureMkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := fileutil.SecureWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureHomeDir creates the home directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	if err := fileutil.SecureMkdirAll(c.HomeDir, 0700); err != nil {
		return fmt.Errorf("create home dir: %w", err)
	}
	return nil
}

// ConfigFilePath returns the file Load read from, or <home>/config.toml.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// PrefsPath returns the path to the preferences database.
func (c *Config) PrefsPath() string {
	return filepath.Join(c.HomeDir, "prefs.db")
}

// LogPath returns the path the TUI logs to.
func (c *Config) LogPath() string {
	return filepath.Join(c.HomeDir, "pitwatch.log")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
