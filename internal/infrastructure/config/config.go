package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Sync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Panel     PanelConfig     `yaml:"panel"`
	Hub       HubConfig       `yaml:"hub"`
	Stream    StreamConfig    `yaml:"stream"`
	Command   CommandConfig   `yaml:"command"`
	Cache     CacheConfig     `yaml:"cache"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Voice     VoiceConfig     `yaml:"voice"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PanelConfig identifies this panel installation.
type PanelConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// HubConfig contains hub connection settings for the REST control plane.
type HubConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	RequestTimeout int    `yaml:"request_timeout"`
}

// StreamConfig contains event stream subscription settings.
type StreamConfig struct {
	URL            string `yaml:"url"`
	InitialBackoff int    `yaml:"initial_backoff"`
	MaxBackoff     int    `yaml:"max_backoff"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	DedupeSize     int    `yaml:"dedupe_size"`
}

// CommandConfig contains optimistic command dispatch settings.
type CommandConfig struct {
	ConfirmTimeout int `yaml:"confirm_timeout"`
}

// CacheConfig contains local SQLite snapshot cache settings.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains local WebSocket feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// VoiceConfig contains the voice assistant command bridge settings.
type VoiceConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    VoiceBrokerConfig   `yaml:"broker"`
	Auth      VoiceAuthConfig     `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// VoiceBrokerConfig contains MQTT broker connection details.
type VoiceBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// VoiceAuthConfig contains MQTT authentication credentials.
type VoiceAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for state telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYSYNC_SECTION_KEY
// For example: GRAYSYNC_HUB_URL, GRAYSYNC_CACHE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Panel: PanelConfig{
			ID:   "panel-001",
			Name: "Gray Logic Sync",
		},
		Hub: HubConfig{
			RequestTimeout: 10,
		},
		Stream: StreamConfig{
			InitialBackoff: 1,
			MaxBackoff:     30,
			PingInterval:   30,
			PongTimeout:    10,
			DedupeSize:     1000,
		},
		Command: CommandConfig{
			ConfirmTimeout: 10,
		},
		Cache: CacheConfig{
			Enabled:     true,
			Path:        "./data/graysync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Voice: VoiceConfig{
			Broker: VoiceBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graysync-panel",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Hub
	if v := os.Getenv("GRAYSYNC_HUB_URL"); v != "" {
		cfg.Hub.URL = v
	}
	if v := os.Getenv("GRAYSYNC_HUB_TOKEN"); v != "" {
		cfg.Hub.Token = v
	}

	// Stream
	if v := os.Getenv("GRAYSYNC_STREAM_URL"); v != "" {
		cfg.Stream.URL = v
	}

	// Cache
	if v := os.Getenv("GRAYSYNC_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}

	// API
	if v := os.Getenv("GRAYSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYSYNC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Voice bridge
	if v := os.Getenv("GRAYSYNC_VOICE_HOST"); v != "" {
		cfg.Voice.Broker.Host = v
	}
	if v := os.Getenv("GRAYSYNC_VOICE_USERNAME"); v != "" {
		cfg.Voice.Auth.Username = v
	}
	if v := os.Getenv("GRAYSYNC_VOICE_PASSWORD"); v != "" {
		cfg.Voice.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Hub validation
	if c.Hub.URL == "" {
		errs = append(errs, "hub.url is required (set GRAYSYNC_HUB_URL environment variable)")
	} else if !strings.HasPrefix(c.Hub.URL, "http://") && !strings.HasPrefix(c.Hub.URL, "https://") {
		errs = append(errs, "hub.url must start with http:// or https://")
	}
	if c.Hub.RequestTimeout < 1 {
		errs = append(errs, "hub.request_timeout must be at least 1 second")
	}

	// Stream validation
	if c.Stream.URL == "" {
		errs = append(errs, "stream.url is required (set GRAYSYNC_STREAM_URL environment variable)")
	} else if !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
		errs = append(errs, "stream.url must start with ws:// or wss://")
	}
	if c.Stream.InitialBackoff < 1 {
		errs = append(errs, "stream.initial_backoff must be at least 1 second")
	}
	if c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		errs = append(errs, "stream.max_backoff must be >= stream.initial_backoff")
	}
	if c.Stream.DedupeSize < 1 {
		errs = append(errs, "stream.dedupe_size must be positive")
	}

	// Command validation
	if c.Command.ConfirmTimeout < 1 {
		errs = append(errs, "command.confirm_timeout must be at least 1 second")
	}

	// Cache validation
	if c.Cache.Enabled && c.Cache.Path == "" {
		errs = append(errs, "cache.path is required when cache is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Voice validation
	if c.Voice.Enabled {
		if c.Voice.Broker.Host == "" {
			errs = append(errs, "voice.broker.host is required when voice is enabled")
		}
		if c.Voice.QoS < 0 || c.Voice.QoS > 2 {
			errs = append(errs, "voice.qos must be 0, 1, or 2")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set GRAYSYNC_INFLUXDB_TOKEN environment variable)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetConfirmTimeout returns the command confirmation timeout as a Duration.
func (c *Config) GetConfirmTimeout() time.Duration {
	return time.Duration(c.Command.ConfirmTimeout) * time.Second
}
