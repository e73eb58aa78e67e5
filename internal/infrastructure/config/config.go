package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Dispatcher and predictor modes.
const (
	DispatcherModeMQTT = "mqtt"
	DispatcherModeHTTP = "http"

	PredictorModeThreshold = "threshold"
	PredictorModeHTTP      = "http"
)

// Config is the root configuration structure for the plantcare service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Predictor  PredictorConfig  `yaml:"predictor"`
}

// SiteConfig contains site-specific information.
// Timezone is used to interpret HH:MM schedule times and custom dates.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
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
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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

// MQTTTopicsConfig controls where sensor readings are consumed from and
// where device commands are published.
type MQTTTopicsConfig struct {
	// Readings is the subscription filter for sensor feeds.
	// Default: "+/groups/+/+" (owner/groups/greenhouse/field-token)
	Readings string `yaml:"readings"`

	// ControlPrefix is prepended to "<greenhouse>.<field>-<device>" when
	// publishing commands, e.g. "farmer/feeds/".
	ControlPrefix string `yaml:"control_prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// ReconcilerConfig tunes the periodic reconciliation tick.
type ReconcilerConfig struct {
	// Interval is the tick period in seconds. Default: 60
	Interval int `yaml:"interval"`

	// CallTimeout bounds every dispatcher, notifier and predictor call (seconds).
	CallTimeout int `yaml:"call_timeout"`

	// Workers is the number of devices evaluated concurrently within one tick.
	Workers int `yaml:"workers"`

	// MisfireGrace is how late (seconds) a scheduled-mode job may still fire.
	// Older run times are recorded as missed rather than executed.
	MisfireGrace int `yaml:"misfire_grace"`

	// Retention is how long (hours) executed job keys are remembered.
	Retention int `yaml:"retention"`
}

// DispatcherConfig selects how actuation commands leave the service.
type DispatcherConfig struct {
	// Mode is "mqtt" (publish to the device feed) or "http" (data processor API).
	Mode string `yaml:"mode"`
	URL  string `yaml:"url"`
}

// NotifierConfig contains the notification backend settings.
type NotifierConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	AuthKey string `yaml:"auth_key"`
}

// PredictorConfig selects the predictive capability used by automatic mode.
type PredictorConfig struct {
	// Mode is "threshold" (built-in rules) or "http" (remote model service).
	Mode string `yaml:"mode"`
	URL  string `yaml:"url"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: PLANTCARE_SECTION_KEY
// For example: PLANTCARE_DATABASE_PATH, PLANTCARE_NOTIFIER_AUTH_KEY
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads the first existing dotenv file from candidates.
// Variables already present in the environment are not overwritten.
func loadDotEnv(candidates ...string) error {
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		return godotenv.Load(p)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "greenhouse-site",
			Name:     "Plant Care",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/plantcare.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "plantcare-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Readings: "+/groups/+/+",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Reconciler: ReconcilerConfig{
			Interval:     60,
			CallTimeout:  10,
			Workers:      4,
			MisfireGrace: 120,
			Retention:    48,
		},
		Dispatcher: DispatcherConfig{
			Mode: DispatcherModeMQTT,
		},
		Predictor: PredictorConfig{
			Mode: PredictorModeThreshold,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLANTCARE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("PLANTCARE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PLANTCARE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLANTCARE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PLANTCARE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLANTCARE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PLANTCARE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("PLANTCARE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// External collaborators
	if v := os.Getenv("PLANTCARE_DISPATCHER_URL"); v != "" {
		cfg.Dispatcher.URL = v
	}
	if v := os.Getenv("PLANTCARE_NOTIFIER_URL"); v != "" {
		cfg.Notifier.URL = v
	}
	if v := os.Getenv("PLANTCARE_NOTIFIER_AUTH_KEY"); v != "" {
		cfg.Notifier.AuthKey = v
	}
	if v := os.Getenv("PLANTCARE_PREDICTOR_URL"); v != "" {
		cfg.Predictor.URL = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("PLANTCARE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Readings == "" {
		errs = append(errs, "mqtt.topics.readings is required")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// Tokens gate device control, so a forgeable secret is a hard error.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set PLANTCARE_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if c.Reconciler.Interval < 1 {
		errs = append(errs, "reconciler.interval must be at least 1 second")
	}
	if c.Reconciler.CallTimeout < 1 {
		errs = append(errs, "reconciler.call_timeout must be at least 1 second")
	}
	if c.Reconciler.Workers < 1 {
		errs = append(errs, "reconciler.workers must be at least 1")
	}

	switch c.Dispatcher.Mode {
	case DispatcherModeMQTT:
	case DispatcherModeHTTP:
		if c.Dispatcher.URL == "" {
			errs = append(errs, "dispatcher.url is required when dispatcher.mode is http")
		}
	default:
		errs = append(errs, fmt.Sprintf("dispatcher.mode %q must be mqtt or http", c.Dispatcher.Mode))
	}

	if c.Notifier.Enabled && c.Notifier.URL == "" {
		errs = append(errs, "notifier.url is required when notifier is enabled")
	}

	switch c.Predictor.Mode {
	case PredictorModeThreshold:
	case PredictorModeHTTP:
		if c.Predictor.URL == "" {
			errs = append(errs, "predictor.url is required when predictor.mode is http")
		}
	default:
		errs = append(errs, fmt.Sprintf("predictor.mode %q must be threshold or http", c.Predictor.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the site time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

// TickInterval returns the reconciliation period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Reconciler.Interval) * time.Second
}

// CallTimeout returns the bound applied to each external call.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Reconciler.CallTimeout) * time.Second
}

// MisfireGrace returns how late a scheduled-mode job may still fire.
func (c *Config) MisfireGrace() time.Duration {
	return time.Duration(c.Reconciler.MisfireGrace) * time.Second
}

// JobRetention returns how long executed job keys are remembered.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Reconciler.Retention) * time.Hour
}
