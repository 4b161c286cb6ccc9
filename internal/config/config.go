// Package config provides configuration loading and validation for the agent.
package config

// Config is the effective agent configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string

	API     APIConfig
	Push    PushConfig
	Store   StoreConfig
	Cache   CacheConfig
	Debug   DebugConfig
	Logging LoggingConfig
}

// APIConfig holds REST client settings.
type APIConfig struct {
	// BaseURL is the API origin, e.g. https://api.whitea.cloud.
	BaseURL string `toml:"base_url"`

	TimeoutMS          int   `toml:"timeout_ms"`
	ConnectTimeoutMS   int   `toml:"connect_timeout_ms"`
	MaxResponseBytes   int64 `toml:"max_response_bytes"`
	InsecureSkipVerify bool  `toml:"insecure_skip_verify"`
}

// PushConfig holds push channel settings.
type PushConfig struct {
	// URL is the websocket base, e.g. wss://api.whitea.cloud/ws.
	// The channel appends /connect?user_id=<id>.
	URL string `toml:"url"`

	// ProbeHealth enables the diagnostic GET /health probe before the
	// first connection attempt. Probe failure never blocks connecting.
	ProbeHealth bool `toml:"probe_health"`

	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
	ReconnectDelayMS     int `toml:"reconnect_delay_ms"`

	// BackoffMultiplier of 1.0 keeps the delay fixed. Values above 1.0
	// grow the delay between attempts.
	BackoffMultiplier float64 `toml:"backoff_multiplier"`

	// BackoffJitter is the randomization factor in [0, 1).
	BackoffJitter float64 `toml:"backoff_jitter"`

	DialTimeoutMS int `toml:"dial_timeout_ms"`
}

// StoreConfig selects the durable client-state driver.
type StoreConfig struct {
	// Driver is the driver name: json or sqlite.
	Driver string `toml:"driver"`

	// DataDir is the directory for data files (json files, sqlite db).
	DataDir string `toml:"data_dir"`

	// Drivers holds driver-specific config keyed by driver name.
	Drivers map[string]any `toml:"drivers"`
}

// CacheConfig selects the in-process cache driver.
type CacheConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

// DebugConfig holds the local status endpoint settings.
type DebugConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}
