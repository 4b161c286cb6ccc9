package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the agent operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
// The empty string maps to prod.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of prod, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
// Nil or empty values leave the config untouched.
type FlagOverrides struct {
	APIBaseURL   *string
	PushURL      *string
	StoreDriver  *string
	DataDir      *string
	DebugAddr    *string
	LoggingLevel *string
}

// fileConfig mirrors Config with pointer sections so overlay can tell
// an absent section from a present one.
type fileConfig struct {
	Mode string `toml:"mode"`

	API     *APIConfig     `toml:"api"`
	Push    *PushConfig    `toml:"push"`
	Store   *StoreConfig   `toml:"store"`
	Cache   *CacheConfig   `toml:"cache"`
	Debug   *DebugConfig   `toml:"debug"`
	Logging *LoggingConfig `toml:"logging"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (prod)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields and URLs
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown TOML keys produce a
// warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains unknown keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := fc.Mode
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	overlayFileConfig(cfg, &fc)
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return ProdConfig()
}

// ProdConfig returns production defaults.
func ProdConfig() *Config {
	return &Config{
		Mode: string(ModeProd),
		API: APIConfig{
			BaseURL:            "https://api.whitea.cloud",
			TimeoutMS:          10000,
			ConnectTimeoutMS:   2000,
			MaxResponseBytes:   4 * 1024 * 1024,
			InsecureSkipVerify: false,
		},
		Push: PushConfig{
			URL:                  "wss://api.whitea.cloud/ws",
			ProbeHealth:          true,
			MaxReconnectAttempts: 5,
			ReconnectDelayMS:     3000,
			BackoffMultiplier:    1.0,
			BackoffJitter:        0,
			DialTimeoutMS:        10000,
		},
		Store: StoreConfig{
			Driver:  "json",
			DataDir: ".photoshare",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Debug: DebugConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9311",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DevConfig returns development defaults: local backend, plain ws,
// debug endpoint enabled, verbose logging.
func DevConfig() *Config {
	cfg := ProdConfig()
	cfg.Mode = string(ModeDev)
	cfg.API.BaseURL = "http://localhost:8000"
	cfg.API.InsecureSkipVerify = true
	cfg.Push.URL = "ws://localhost:8000/ws"
	cfg.Debug.Enabled = true
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
// Bool fields overlay whenever their section is present.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.API != nil {
		if fc.API.BaseURL != "" {
			cfg.API.BaseURL = fc.API.BaseURL
		}
		if fc.API.TimeoutMS != 0 {
			cfg.API.TimeoutMS = fc.API.TimeoutMS
		}
		if fc.API.ConnectTimeoutMS != 0 {
			cfg.API.ConnectTimeoutMS = fc.API.ConnectTimeoutMS
		}
		if fc.API.MaxResponseBytes != 0 {
			cfg.API.MaxResponseBytes = fc.API.MaxResponseBytes
		}
		cfg.API.InsecureSkipVerify = fc.API.InsecureSkipVerify
	}

	if fc.Push != nil {
		if fc.Push.URL != "" {
			cfg.Push.URL = fc.Push.URL
		}
		if fc.Push.MaxReconnectAttempts != 0 {
			cfg.Push.MaxReconnectAttempts = fc.Push.MaxReconnectAttempts
		}
		if fc.Push.ReconnectDelayMS != 0 {
			cfg.Push.ReconnectDelayMS = fc.Push.ReconnectDelayMS
		}
		if fc.Push.BackoffMultiplier != 0 {
			cfg.Push.BackoffMultiplier = fc.Push.BackoffMultiplier
		}
		if fc.Push.BackoffJitter != 0 {
			cfg.Push.BackoffJitter = fc.Push.BackoffJitter
		}
		if fc.Push.DialTimeoutMS != 0 {
			cfg.Push.DialTimeoutMS = fc.Push.DialTimeoutMS
		}
		cfg.Push.ProbeHealth = fc.Push.ProbeHealth
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if len(fc.Store.Drivers) > 0 {
			cfg.Store.Drivers = fc.Store.Drivers
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Debug != nil {
		cfg.Debug.Enabled = fc.Debug.Enabled
		if fc.Debug.ListenAddr != "" {
			cfg.Debug.ListenAddr = fc.Debug.ListenAddr
		}
	}

	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
}

func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.APIBaseURL != nil && *f.APIBaseURL != "" {
		cfg.API.BaseURL = *f.APIBaseURL
	}
	if f.PushURL != nil && *f.PushURL != "" {
		cfg.Push.URL = *f.PushURL
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.Store.DataDir = *f.DataDir
	}
	if f.DebugAddr != nil && *f.DebugAddr != "" {
		cfg.Debug.ListenAddr = *f.DebugAddr
		cfg.Debug.Enabled = true
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
}

func validate(cfg *Config) error {
	if err := validateOrigin("api.base_url", cfg.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := validateOrigin("push.url", cfg.Push.URL, "ws", "wss"); err != nil {
		return err
	}

	switch cfg.Store.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of json, sqlite", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "", "memory":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be memory", cfg.Cache.Driver)
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.Push.MaxReconnectAttempts < 0 {
		return fmt.Errorf("invalid push.max_reconnect_attempts %d: must be >= 0", cfg.Push.MaxReconnectAttempts)
	}
	if cfg.Push.ReconnectDelayMS <= 0 {
		return fmt.Errorf("invalid push.reconnect_delay_ms %d: must be > 0", cfg.Push.ReconnectDelayMS)
	}
	if cfg.Push.BackoffMultiplier < 1.0 {
		return fmt.Errorf("invalid push.backoff_multiplier %v: must be >= 1.0", cfg.Push.BackoffMultiplier)
	}
	if cfg.Push.BackoffJitter < 0 || cfg.Push.BackoffJitter >= 1 {
		return fmt.Errorf("invalid push.backoff_jitter %v: must be in [0, 1)", cfg.Push.BackoffJitter)
	}

	return nil
}

// validateOrigin checks that a URL is absolute with one of the given
// schemes, has a host, and carries no userinfo, query, or fragment.
func validateOrigin(key, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	if raw != strings.TrimSpace(raw) {
		return fmt.Errorf("invalid %s %q: must not contain surrounding whitespace", key, raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an absolute URL with a host", key, raw)
	}

	ok := false
	for _, s := range schemes {
		if u.Scheme == s {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid %s %q: scheme must be one of %s", key, raw, strings.Join(schemes, ", "))
	}

	if u.User != nil {
		return fmt.Errorf("invalid %s %q: must not include userinfo", key, raw)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("invalid %s %q: must not include a query string", key, raw)
	}
	if u.Fragment != "" {
		return fmt.Errorf("invalid %s %q: must not include a fragment", key, raw)
	}

	return nil
}
