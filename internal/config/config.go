// Package config handles configuration file loading and parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "10s", "1m", "1h30m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	// Integer milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m', '1h30m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Milliseconds returns the duration in milliseconds.
func (d Duration) Milliseconds() int {
	return int(time.Duration(d).Milliseconds())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the configuration for chatnotifyd and the chatnotify CLI.
// Loaded from ~/.config/chatnotify/chatnotifyd.toml
type Config struct {
	App        AppConfig        `toml:"app"`
	Dispatch   DispatchConfig   `toml:"dispatch"`
	Permission PermissionConfig `toml:"permission"`
	Server     ServerConfig     `toml:"server"`
	Sync       SyncConfig       `toml:"sync"`
	Audio      AudioConfig      `toml:"audio"`
	History    HistoryConfig    `toml:"history"`
}

// AppConfig describes the web application the agent serves.
type AppConfig struct {
	Name    string `toml:"name"`     // app_name sent to the notification server
	BaseURL string `toml:"base_url"` // prefix for relative notification URLs and icons
	Opener  string `toml:"opener"`   // command used to open new windows
	IconDir string `toml:"icon_dir"` // local copy of the application's static files, for icons
}

// DispatchConfig contains notification dispatch settings.
type DispatchConfig struct {
	Policy         string   `toml:"policy"`           // "always" or "unless-focused"
	Timeout        Duration `toml:"timeout"`          // expire timeout for regular notifications, 0 = server default
	ChatSound      bool     `toml:"chat_sound"`       // play a sound for chat notifications
	WelcomeOnGrant bool     `toml:"welcome_on_grant"` // show the welcome notification after the first grant
}

// PermissionConfig contains consent prompt settings.
type PermissionConfig struct {
	Prompt    string   `toml:"prompt"`     // "dbus" or "static"
	AutoGrant bool     `toml:"auto_grant"` // answer used by the static prompter
	Timeout   Duration `toml:"timeout"`    // how long the dbus prompter waits for an answer
}

// ServerConfig contains the local HTTP endpoint settings.
type ServerConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// SyncConfig contains the outbound message resend policy.
type SyncConfig struct {
	Endpoint       string   `toml:"endpoint"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
	MaxAttempts    int      `toml:"max_attempts"`
	Interval       Duration `toml:"interval"` // periodic sync, 0 = only on request
	RequestTimeout Duration `toml:"request_timeout"`
}

// AudioConfig contains audio settings.
type AudioConfig struct {
	Enabled bool        `toml:"enabled"`
	Volume  int         `toml:"volume"` // 0-100
	Sounds  SoundConfig `toml:"sounds"`
}

// SoundConfig contains per-kind sound file paths.
type SoundConfig struct {
	Chat    string `toml:"chat"`
	Push    string `toml:"push"`
	Payment string `toml:"payment"`
}

// HistoryConfig contains history retention settings.
type HistoryConfig struct {
	MaxLength int `toml:"max_length"` // 0 = unlimited
}

// Dispatch policies.
const (
	PolicyAlways        = "always"
	PolicyUnlessFocused = "unless-focused"
)

// Prompt modes.
const (
	PromptDBus   = "dbus"
	PromptStatic = "static"
)

// ValidPolicies returns all valid dispatch policy values.
func ValidPolicies() []string {
	return []string{PolicyAlways, PolicyUnlessFocused}
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "chatnotify",
			BaseURL: "http://127.0.0.1:8000",
			Opener:  "xdg-open",
		},
		Dispatch: DispatchConfig{
			Policy:         PolicyUnlessFocused,
			Timeout:        Duration(0),
			ChatSound:      true,
			WelcomeOnGrant: true,
		},
		Permission: PermissionConfig{
			Prompt:    PromptDBus,
			AutoGrant: false,
			Timeout:   Duration(60 * time.Second),
		},
		Server: ServerConfig{
			Listen:         "127.0.0.1:8765",
			AllowedOrigins: []string{"127.0.0.1:8000", "localhost:8000"},
		},
		Sync: SyncConfig{
			Endpoint:       "http://127.0.0.1:8000/send_message/",
			InitialBackoff: Duration(1 * time.Second),
			MaxBackoff:     Duration(30 * time.Second),
			MaxAttempts:    5,
			Interval:       Duration(0),
			RequestTimeout: Duration(10 * time.Second),
		},
		Audio: AudioConfig{
			Enabled: true,
			Volume:  80,
			Sounds:  SoundConfig{},
		},
		History: HistoryConfig{
			MaxLength: 500,
		},
	}
}

// ConfigDir returns the chatnotify configuration directory.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "chatnotify"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chatnotifyd.toml"), nil
}

// LoadConfig loads the configuration from path, or from ConfigPath when
// path is empty. If the file doesn't exist, returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to path (ConfigPath when empty).
func SaveConfig(config *Config, path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if !slices.Contains(ValidPolicies(), c.Dispatch.Policy) {
		return fmt.Errorf("invalid dispatch policy %q, must be one of: %v", c.Dispatch.Policy, ValidPolicies())
	}
	if c.Permission.Prompt != PromptDBus && c.Permission.Prompt != PromptStatic {
		return fmt.Errorf("invalid permission prompt %q, must be %q or %q", c.Permission.Prompt, PromptDBus, PromptStatic)
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server listen address cannot be empty")
	}
	if c.Sync.MaxAttempts < 1 || c.Sync.MaxAttempts > 100 {
		return fmt.Errorf("max_attempts must be between 1 and 100, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.Sync.MaxBackoff < c.Sync.InitialBackoff {
		return fmt.Errorf("max_backoff (%s) must not be less than initial_backoff (%s)",
			c.Sync.MaxBackoff.Duration(), c.Sync.InitialBackoff.Duration())
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", c.Audio.Volume)
	}
	if c.History.MaxLength < 0 {
		return fmt.Errorf("history max_length cannot be negative, got %d", c.History.MaxLength)
	}
	return nil
}

// ResolveURL turns an application-relative path into an absolute URL.
// Absolute URLs are returned unchanged.
func (c *Config) ResolveURL(path string) string {
	if path == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(c.App.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// ResolveIcon maps an application icon path to something a desktop
// notification server can load. Paths under the application root are looked
// up in IconDir first; theme icon names are returned unchanged.
func (c *Config) ResolveIcon(icon string) string {
	if !strings.HasPrefix(icon, "/") {
		return icon
	}
	if c.App.IconDir != "" {
		local := filepath.Join(ExpandPath(c.App.IconDir), filepath.FromSlash(icon))
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}
	return c.ResolveURL(icon)
}

// SoundForKind returns the sound file path for a notification kind.
// Expands ~ to home directory.
func (c *Config) SoundForKind(kind string) string {
	var path string
	switch kind {
	case "chat":
		path = c.Audio.Sounds.Chat
	case "payment":
		path = c.Audio.Sounds.Payment
	default:
		path = c.Audio.Sounds.Push
	}
	return ExpandPath(path)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// DataDir returns the path to the chatnotify data directory.
// Uses XDG_DATA_HOME or defaults to ~/.local/share/chatnotify.
func DataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "chatnotify"), nil
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	dir, err := DataDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

func dataFile(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// HistoryPath returns the path to the notification history file.
func HistoryPath() (string, error) { return dataFile("history.jsonl") }

// StatePath returns the path to the shared state file.
func StatePath() (string, error) { return dataFile("state.json") }

// OutboxPath returns the path to the outbound message queue.
func OutboxPath() (string, error) { return dataFile("outbox.json") }
