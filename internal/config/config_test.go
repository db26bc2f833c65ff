package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/wesm/pitwatch/internal/testutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	return testutil.WriteFile(t, dir, "config.toml", []byte(content))
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("PITWATCH_HOME", tmpDir)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.Server.URL != "http://localhost:8025" {
		t.Errorf("Server.URL = %q, want http://localhost:8025", cfg.Server.URL)
	}
	if !cfg.Server.AllowInsecure {
		t.Error("Server.AllowInsecure = false, want true")
	}
	if cfg.Server.Timeout.Duration != 15*time.Second {
		t.Errorf("Server.Timeout = %v, want 15s", cfg.Server.Timeout)
	}
	if cfg.View.PageSize != 50 {
		t.Errorf("View.PageSize = %d, want 50", cfg.View.PageSize)
	}
	if cfg.Sync.ResyncSchedule != "@every 10m" {
		t.Errorf("Sync.ResyncSchedule = %q, want @every 10m", cfg.Sync.ResyncSchedule)
	}
	if cfg.Sync.ReconnectMin.Duration != time.Second || cfg.Sync.ReconnectMax.Duration != 30*time.Second {
		t.Errorf("reconnect = %v/%v, want 1s/30s", cfg.Sync.ReconnectMin, cfg.Sync.ReconnectMax)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("PITWATCH_HOME", tmpDir)

	writeConfig(t, tmpDir, `
[server]
url = "https://mail.example.com:8025"
username = "admin"
password = "hunter2"
allow_insecure = false
timeout = "3s"

[view]
page_size = 100
search = "is:unread"

[sync]
resync_schedule = ""
reconnect_min = "500ms"
reconnect_max = "1m"
`)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "https://mail.example.com:8025" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.Username != "admin" || cfg.Server.Password != "hunter2" {
		t.Errorf("credentials = %q/%q", cfg.Server.Username, cfg.Server.Password)
	}
	if cfg.Server.AllowInsecure {
		t.Error("Server.AllowInsecure = true, want false")
	}
	if cfg.Server.Timeout.Duration != 3*time.Second {
		t.Errorf("Server.Timeout = %v, want 3s", cfg.Server.Timeout)
	}
	if cfg.View.PageSize != 100 || cfg.View.Search != "is:unread" {
		t.Errorf("View = %+v", cfg.View)
	}
	if cfg.Sync.ResyncSchedule != "" {
		t.Errorf("Sync.ResyncSchedule = %q, want disabled", cfg.Sync.ResyncSchedule)
	}
	if cfg.Sync.ReconnectMin.Duration != 500*time.Millisecond || cfg.Sync.ReconnectMax.Duration != time.Minute {
		t.Errorf("reconnect = %v/%v", cfg.Sync.ReconnectMin, cfg.Sync.ReconnectMax)
	}
}

func TestLoadClampsPageSize(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{25, 25},
		{30, 25},
		{60, 50},
		{150, 100},
		{1000, 200},
		{0, 50},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.in), func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "[view]\npage_size = "+strconv.Itoa(tt.in)+"\n")
			cfg, err := Load("", dir)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.View.PageSize != tt.want {
				t.Errorf("page_size %d loaded as %d, want %d", tt.in, cfg.View.PageSize, tt.want)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "[server]\nport = 1\n", "unknown keys: server.port"},
		{"bad duration", "[server]\ntimeout = \"soon\"\n", "decode config"},
		{"relative url", "[server]\nurl = \"localhost\"\n", "absolute URL"},
		{"insecure http", "[server]\nurl = \"http://x\"\nallow_insecure = false\n", "allow_insecure"},
		{"bad scheme", "[server]\nurl = \"ftp://x\"\n", "unsupported scheme"},
		{"reconnect order", "[sync]\nreconnect_min = \"10s\"\nreconnect_max = \"1s\"\n", "reconnect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load("", dir)
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get user home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
		unixOnly bool
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "just tilde", input: "~", expected: home},
		{name: "tilde with slash and path", input: "~/foo", expected: filepath.Join(home, "foo")},
		{name: "tilde with trailing slash only", input: "~/", expected: home},
		{name: "tilde user notation not expanded", input: "~user", expected: "~user"},
		{name: "tilde with double slash", input: "~//foo", expected: filepath.Join(home, "foo")},
		{name: "absolute path unchanged", input: "/var/lib/pitwatch", expected: "/var/lib/pitwatch", unixOnly: true},
		{name: "relative path unchanged", input: "data/pitwatch", expected: "data/pitwatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.unixOnly && runtime.GOOS == "windows" {
				t.Skip("unix path")
			}
			got := expandPath(tt.input)
			if got != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadExplicitPathNotFound(t *testing.T) {
	// When --config explicitly specifies a file that doesn't exist, Load should error
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), "")
	if err == nil {
		t.Fatal("Load with explicit nonexistent path should return error")
	}
	if got := err.Error(); !strings.Contains(got, "config file not found") {
		t.Errorf("error = %q, want it to contain %q", got, "config file not found")
	}
}

func TestLoadExplicitPathDerivedHomeDir(t *testing.T) {
	// HomeDir derives from the config file's parent directory
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, "[view]\nsearch = \"tag:ci\"\n")

	cfg, err := Load(configPath, "")
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", configPath, err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.View.Search != "tag:ci" {
		t.Errorf("View.Search = %q, want tag:ci", cfg.View.Search)
	}
	if got, want := cfg.PrefsPath(), filepath.Join(tmpDir, "prefs.db"); got != want {
		t.Errorf("PrefsPath() = %q, want %q", got, want)
	}
	if got, want := cfg.LogPath(), filepath.Join(tmpDir, "pitwatch.log"); got != want {
		t.Errorf("LogPath() = %q, want %q", got, want)
	}
	if cfg.ConfigFilePath() != configPath {
		t.Errorf("ConfigFilePath() = %q, want %q", cfg.ConfigFilePath(), configPath)
	}
}

func TestLoadWithHomeDir(t *testing.T) {
	// --home wins over PITWATCH_HOME
	t.Setenv("PITWATCH_HOME", t.TempDir())
	homeDir := t.TempDir()

	cfg, err := Load("", homeDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HomeDir != homeDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, homeDir)
	}
	if got, want := cfg.ConfigFilePath(), filepath.Join(homeDir, "config.toml"); got != want {
		t.Errorf("ConfigFilePath() = %q, want %q", got, want)
	}
}

func TestDefaultHomeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("PITWATCH_HOME", "~/custom-pitwatch")

	if got, want := DefaultHome(), filepath.Join(home, "custom-pitwatch"); got != want {
		t.Errorf("DefaultHome() = %q, want %q", got, want)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	homeDir := filepath.Join(t.TempDir(), "nested", "home")
	cfg := Default(homeDir)
	cfg.Server.URL = "https://mailpit.internal"
	cfg.Server.Username = "ops"
	cfg.Server.Timeout = Duration{2 * time.Second}
	cfg.View.PageSize = 200
	cfg.Sync.ReconnectMax = Duration{time.Minute}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	testutil.MustExist(t, cfg.ConfigFilePath())
	info, err := os.Stat(cfg.ConfigFilePath())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	data := testutil.ReadFile(t, cfg.ConfigFilePath())
	if !strings.Contains(string(data), `timeout = "2s"`) {
		t.Errorf("saved config does not write durations as strings:\n%s", data)
	}

	loaded, err := Load("", homeDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server != cfg.Server || loaded.View != cfg.View || loaded.Sync != cfg.Sync {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}
