package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for TypePilot.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Target     TargetConfig     `yaml:"target"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Session    SessionConfig    `yaml:"session"`
	Generation GenerationConfig `yaml:"generation"`
	Humanizer  HumanizerConfig  `yaml:"humanizer"`
	Hotkeys    HotkeysConfig    `yaml:"hotkeys"`
	Engine     EngineConfig     `yaml:"engine"`
	Settings   SettingsConfig   `yaml:"settings"`
	Review     ReviewConfig     `yaml:"review"`
	Security   SecurityConfig   `yaml:"security"`
}

// TargetConfig identifies the automation target this core drives.
// One target owns at most one active typing session at a time.
type TargetConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// SessionConfig contains typing session lifecycle settings.
type SessionConfig struct {
	// CountdownSeconds is the delay between Start and the first keystroke.
	// Zero skips the countdown phase entirely.
	CountdownSeconds int `yaml:"countdown_seconds"`

	// DefaultProfile is the speed profile used when the settings file
	// does not select one: "slow", "medium", "fast" or "custom:<wpm>".
	DefaultProfile string `yaml:"default_profile"`

	// EngineCallTimeout bounds each call into the entry engine (seconds).
	EngineCallTimeout int `yaml:"engine_call_timeout"`
}

// GenerationConfig contains settings for the external text generation service.
type GenerationConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxTokens      int    `yaml:"max_tokens"`
}

// HumanizerConfig contains settings for the external humanization service.
type HumanizerConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// HotkeysConfig contains settings for the global hotkey source.
type HotkeysConfig struct {
	// DebounceMS drops repeated deliveries of the same action inside this window.
	// Stop is never debounced.
	DebounceMS int `yaml:"debounce_ms"`
}

// EngineConfig contains settings for the external entry engine.
type EngineConfig struct {
	// RequestTimeout bounds how long StartSession waits for the engine ack (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// Managed indicates whether TypePilot supervises the engine process itself.
	// If false, the engine is expected to be running externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the engine executable (managed mode only).
	Binary string `yaml:"binary"`

	// Args are passed to the engine executable.
	Args []string `yaml:"args"`

	// RestartOnFailure enables automatic restart if the engine exits.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting.
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// SettingsConfig points at the user-editable generation settings file.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// ReviewConfig contains review gate settings.
type ReviewConfig struct {
	// TTLSeconds is how long an unconfirmed review stays pending.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TYPEPILOT_SECTION_KEY
// For example: TYPEPILOT_DATABASE_PATH, TYPEPILOT_GENERATION_API_KEY
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			ID:   "desktop",
			Name: "Desktop",
		},
		Database: DatabaseConfig{
			Path:        "./data/typepilot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "typepilot-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8484,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Session: SessionConfig{
			CountdownSeconds:  3,
			DefaultProfile:    "medium",
			EngineCallTimeout: 5,
		},
		Generation: GenerationConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			MaxTokens:      2048,
		},
		Humanizer: HumanizerConfig{
			TimeoutSeconds: 30,
		},
		Hotkeys: HotkeysConfig{
			DebounceMS: 300,
		},
		Engine: EngineConfig{
			RequestTimeout:      5,
			RestartOnFailure:    true,
			RestartDelaySeconds: 2,
			MaxRestartAttempts:  10,
		},
		Settings: SettingsConfig{
			Path: "./configs/settings.yaml",
		},
		Review: ReviewConfig{
			TTLSeconds: 900,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 1440,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TYPEPILOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("TYPEPILOT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TYPEPILOT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TYPEPILOT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("TYPEPILOT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("TYPEPILOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("TYPEPILOT_GENERATION_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("TYPEPILOT_HUMANIZER_API_KEY"); v != "" {
		cfg.Humanizer.APIKey = v
	}

	if v := os.Getenv("TYPEPILOT_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}

	if v := os.Getenv("TYPEPILOT_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// maxCountdownSeconds caps the pre-typing countdown.
const maxCountdownSeconds = 30

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Target.ID == "" {
		errs = append(errs, "target.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Session.CountdownSeconds < 0 || c.Session.CountdownSeconds > maxCountdownSeconds {
		errs = append(errs, fmt.Sprintf("session.countdown_seconds must be between 0 and %d", maxCountdownSeconds))
	}

	if c.Generation.TimeoutSeconds <= 0 {
		errs = append(errs, "generation.timeout_seconds must be positive")
	}

	if c.Hotkeys.DebounceMS < 0 {
		errs = append(errs, "hotkeys.debounce_ms must not be negative")
	}

	if c.Engine.Managed && c.Engine.Binary == "" {
		errs = append(errs, "engine.binary is required when engine.managed is true")
	}

	// Observer tokens are signed with this secret; a short one lets any local
	// process forge a token and drive the keyboard.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set TYPEPILOT_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
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

// CountdownDuration returns the pre-typing countdown as a Duration.
func (c *Config) CountdownDuration() time.Duration {
	return time.Duration(c.Session.CountdownSeconds) * time.Second
}

// GenerationTimeout returns the bounded wait for one generation call.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// HumanizerTimeout returns the bounded wait for one humanization call.
func (c *Config) HumanizerTimeout() time.Duration {
	return time.Duration(c.Humanizer.TimeoutSeconds) * time.Second
}

// HotkeyDebounce returns the duplicate-trigger window as a Duration.
func (c *Config) HotkeyDebounce() time.Duration {
	return time.Duration(c.Hotkeys.DebounceMS) * time.Millisecond
}

// ReviewTTL returns how long a pending review stays confirmable.
func (c *Config) ReviewTTL() time.Duration {
	return time.Duration(c.Review.TTLSeconds) * time.Second
}

// EngineCallTimeout returns the bound on each entry engine call.
func (c *Config) EngineCallTimeout() time.Duration {
	return time.Duration(c.Session.EngineCallTimeout) * time.Second
}
