package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const appName = "vguide"

// Config represents the application configuration
type Config struct {
	Player   PlayerConfig   `mapstructure:"player"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Device   DeviceConfig   `mapstructure:"device"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Advanced AdvancedConfig `mapstructure:"advanced"`
}

// PlayerConfig contains mpv surface settings
type PlayerConfig struct {
	Binary            string   `mapstructure:"binary"`
	LoadUserConfig    bool     `mapstructure:"load_user_config"`
	SecondaryGeometry string   `mapstructure:"secondary_geometry"`
	SecondaryOnTop    bool     `mapstructure:"secondary_on_top"`
	Referer           string   `mapstructure:"referer"`
	ExtraArgs         []string `mapstructure:"extra_args"`
}

// PlaybackConfig contains coordinator behavior and timings
type PlaybackConfig struct {
	Autoplay      bool   `mapstructure:"autoplay"`
	StartMuted    bool   `mapstructure:"start_muted"`
	UnmuteOnPlay  bool   `mapstructure:"unmute_on_play"`
	Loop          bool   `mapstructure:"loop"`
	Volume        int    `mapstructure:"volume"`
	FallbackAsset string `mapstructure:"fallback_asset"`

	IgnorePauseWindow  time.Duration   `mapstructure:"ignore_pause_window"`
	HardPauseWindow    time.Duration   `mapstructure:"hard_pause_window"`
	GestureGuardWindow time.Duration   `mapstructure:"gesture_guard_window"`
	GestureValidity    time.Duration   `mapstructure:"gesture_validity"`
	MuteRestoreDelay   time.Duration   `mapstructure:"mute_restore_delay"`
	Enforcement        []time.Duration `mapstructure:"enforcement"`
	SyncTolerance      time.Duration   `mapstructure:"sync_tolerance"`
	CallTimeout        time.Duration   `mapstructure:"call_timeout"`
}

// StreamConfig contains provider account details and fallback settings
type StreamConfig struct {
	CloudflareCustomerCode string        `mapstructure:"cloudflare_customer_code"`
	BunnyCDNHost           string        `mapstructure:"bunny_cdn_host"`
	BaselineResolution     int           `mapstructure:"baseline_resolution"`
	Ladder                 []int         `mapstructure:"ladder"`
	ProbeTimeout           time.Duration `mapstructure:"probe_timeout"`
	ProbeRetries           int           `mapstructure:"probe_retries"`
	UserAgent              string        `mapstructure:"user_agent"`
}

// DeviceConfig contains viewport classification settings
type DeviceConfig struct {
	MobileBreakpoint int    `mapstructure:"mobile_breakpoint"`
	TabletBreakpoint int    `mapstructure:"tablet_breakpoint"`
	UserAgent        string `mapstructure:"user_agent"`
}

// APIConfig contains the local command API settings
type APIConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Listen      string `mapstructure:"listen"`
	EventBuffer int    `mapstructure:"event_buffer"`
}

// DatabaseConfig contains guide catalog storage settings
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
	WALMode        bool   `mapstructure:"wal_mode"`
	AutoVacuum     bool   `mapstructure:"auto_vacuum"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AdvancedConfig contains advanced settings
type AdvancedConfig struct {
	Debug bool `mapstructure:"debug"`
	// ClipboardCommand replaces the system clipboard, the text is written to its stdin
	ClipboardCommand string `mapstructure:"clipboard_command"`
}

// SetDefaults registers every default value on v
func SetDefaults(v *viper.Viper) {
	// Player
	v.SetDefault("player.binary", "")
	v.SetDefault("player.load_user_config", false)
	v.SetDefault("player.secondary_geometry", "25%x25%-32-32")
	v.SetDefault("player.secondary_on_top", true)
	v.SetDefault("player.referer", "")
	v.SetDefault("player.extra_args", []string{})

	// Playback
	v.SetDefault("playback.autoplay", true)
	v.SetDefault("playback.start_muted", true)
	v.SetDefault("playback.unmute_on_play", true)
	v.SetDefault("playback.loop", true)
	v.SetDefault("playback.volume", 100)
	v.SetDefault("playback.fallback_asset", "")
	v.SetDefault("playback.ignore_pause_window", 1200*time.Millisecond)
	v.SetDefault("playback.hard_pause_window", 1500*time.Millisecond)
	v.SetDefault("playback.gesture_guard_window", 800*time.Millisecond)
	v.SetDefault("playback.gesture_validity", 800*time.Millisecond)
	v.SetDefault("playback.mute_restore_delay", 250*time.Millisecond)
	v.SetDefault("playback.enforcement", []time.Duration{0, 150 * time.Millisecond, 600 * time.Millisecond})
	v.SetDefault("playback.sync_tolerance", 200*time.Millisecond)
	v.SetDefault("playback.call_timeout", 3*time.Second)

	// Stream
	v.SetDefault("stream.cloudflare_customer_code", "")
	v.SetDefault("stream.bunny_cdn_host", "")
	v.SetDefault("stream.baseline_resolution", 480)
	v.SetDefault("stream.ladder", []int{1080, 720, 480, 360, 240})
	v.SetDefault("stream.probe_timeout", 5*time.Second)
	v.SetDefault("stream.probe_retries", 1)
	v.SetDefault("stream.user_agent", "vguide/1.0")

	// Device
	v.SetDefault("device.mobile_breakpoint", 768)
	v.SetDefault("device.tablet_breakpoint", 1024)
	v.SetDefault("device.user_agent", "")

	// API
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", "127.0.0.1:8765")
	v.SetDefault("api.event_buffer", 32)

	// Database
	v.SetDefault("database.path", filepath.Join(getDataDir(), appName, "vguide.db"))
	v.SetDefault("database.max_connections", 1)
	v.SetDefault("database.wal_mode", true)
	v.SetDefault("database.auto_vacuum", true)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", filepath.Join(getStateDir(), appName, "vguide.log"))
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Advanced
	v.SetDefault("advanced.debug", false)
	v.SetDefault("advanced.clipboard_command", "")
}

// Load reads the configuration file (or the default location when cfgFile is
// empty), applies VGUIDE_ environment overrides and validates the result.
// A missing default config file is not an error.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, v, nil
}

// Validate checks value ranges that would otherwise fail deep inside the coordinator
func (c *Config) Validate() error {
	var errs []error

	if c.Device.MobileBreakpoint <= 0 || c.Device.TabletBreakpoint <= c.Device.MobileBreakpoint {
		errs = append(errs, fmt.Errorf("device breakpoints must satisfy 0 < mobile (%d) < tablet (%d)",
			c.Device.MobileBreakpoint, c.Device.TabletBreakpoint))
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 100 {
		errs = append(errs, fmt.Errorf("playback.volume must be within 0-100, got %d", c.Playback.Volume))
	}
	if len(c.Stream.Ladder) == 0 {
		errs = append(errs, errors.New("stream.ladder must list at least one resolution"))
	}
	for i, res := range c.Stream.Ladder {
		if res <= 0 {
			errs = append(errs, fmt.Errorf("stream.ladder[%d] must be positive, got %d", i, res))
		}
	}
	for i, d := range c.Playback.Enforcement {
		if d < 0 {
			errs = append(errs, fmt.Errorf("playback.enforcement[%d] must not be negative", i))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// SaveDefaultConfig writes the default configuration as YAML to path
func SaveDefaultConfig(path string) error {
	v := viper.New()
	SetDefaults(v)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(yamlSettings(v.AllSettings()))
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := []byte("# vguide configuration\n# Durations accept Go syntax (1200ms, 1.5s). Environment overrides use the VGUIDE_ prefix.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// yamlSettings renders durations in their string form so the file round-trips
// through viper's duration decoding.
func yamlSettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		switch val := value.(type) {
		case map[string]any:
			out[key] = yamlSettings(val)
		case time.Duration:
			out[key] = val.String()
		case []time.Duration:
			strs := make([]string, len(val))
			for i, d := range val {
				strs[i] = d.String()
			}
			out[key] = strs
		default:
			out[key] = value
		}
	}
	return out
}

// Keys returns every configuration key known to v in sorted order
func Keys(v *viper.Viper) []string {
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// InitializeDirs creates the config, data and state directories
func InitializeDirs() error {
	for _, dir := range []string{
		GetConfigDir(),
		filepath.Join(getDataDir(), appName),
		filepath.Join(getStateDir(), appName),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// GetConfigDir returns the vguide config directory
func GetConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), ".config", appName)
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

func getDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".local", "share")
}

func getStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".local", "state")
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}
