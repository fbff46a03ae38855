package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Iroh Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	System        SystemConfig        `yaml:"system"`
	Phone         PhoneConfig         `yaml:"phone"`
	Audio         AudioConfig         `yaml:"audio"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	DTMF          DTMFConfig          `yaml:"dtmf"`
	Timers        TimersConfig        `yaml:"timers"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// SystemConfig contains process-wide settings.
type SystemConfig struct {
	Name      string `yaml:"name" validate:"required"`
	DebugMode bool   `yaml:"debug_mode"`
}

// PhoneConfig contains phone service connection and line handling settings.
type PhoneConfig struct {
	API PhoneAPIConfig `yaml:"api"`

	// RingTimeout is how long a ring request may run before the service gives up (seconds).
	RingTimeout int `yaml:"ring_timeout" validate:"min=0"`

	// DTMFTimeout is the digit grouping window for the line's auxiliary buffer (seconds).
	DTMFTimeout int `yaml:"dtmf_timeout" validate:"min=1"`

	// ReconnectDelay is the fixed wait between event stream reconnection attempts.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// ResetOnHangUp restarts the state machine in its initial state when the
	// handset is replaced. When false, an in-progress interaction is left as is.
	ResetOnHangUp bool `yaml:"reset_on_hang_up"`

	Ring RingConfig `yaml:"ring"`
}

// PhoneAPIConfig contains the phone service endpoints.
type PhoneAPIConfig struct {
	RESTURL string `yaml:"rest_url" validate:"required,url"`
	WSURL   string `yaml:"ws_url" validate:"required,url"`
}

// RingConfig describes how the phone rings for timer alerts.
type RingConfig struct {
	Pattern string `yaml:"pattern"`
	Repeat  int    `yaml:"repeat" validate:"min=0"`
}

// AudioConfig contains speech and tone settings.
type AudioConfig struct {
	EnableTTS bool    `yaml:"enable_tts"`
	Voice     string  `yaml:"voice"`
	Volume    float64 `yaml:"volume" validate:"min=0,max=1"`
}

// HomeAssistantConfig contains Home Assistant REST API settings.
type HomeAssistantConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout" validate:"min=0"`
}

// DTMFConfig points at the command state table.
type DTMFConfig struct {
	CommandsFile string `yaml:"commands_file" validate:"required"`

	// Strict rejects state tables that reference unknown handler or transform names.
	Strict bool `yaml:"strict"`
}

// TimersConfig contains countdown timer housekeeping settings.
type TimersConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Retention     time.Duration `yaml:"retention"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" validate:"required"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" validate:"min=0"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos" validate:"min=0,max=2"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port" validate:"min=1,max=65535"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the status WebSocket served to UIs.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string            `yaml:"format" validate:"omitempty,oneof=json text"`
	Output string            `yaml:"output" validate:"omitempty,oneof=stdout stderr file"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env / .env.local files in the working directory (if present)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: IROH_SECTION_KEY
// For example: IROH_LOG_LEVEL, IROH_PHONE_WS_URL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Missing .env files are normal outside development.
	_ = godotenv.Load(".env.local", ".env") //nolint:errcheck // optional files

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			Name: "Iroh",
		},
		Phone: PhoneConfig{
			API: PhoneAPIConfig{
				RESTURL: "http://localhost:8000",
				WSURL:   "ws://localhost:8001/ws",
			},
			RingTimeout:    30,
			DTMFTimeout:    5,
			ReconnectDelay: 5 * time.Second,
			Ring: RingConfig{
				Pattern: "standard",
				Repeat:  3,
			},
		},
		Audio: AudioConfig{
			EnableTTS: true,
			Voice:     "en-US-Standard-D",
			Volume:    0.8,
		},
		HomeAssistant: HomeAssistantConfig{
			URL:     "http://localhost:8123",
			Timeout: 10,
		},
		DTMF: DTMFConfig{
			CommandsFile: "configs/dtmf_commands.yaml",
		},
		Timers: TimersConfig{
			SweepInterval: 5 * time.Minute,
			Retention:     time.Hour,
		},
		Database: DatabaseConfig{
			Path:        "./data/iroh.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "iroh-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "iroh",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/iroh.log",
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IROH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// System
	if v := os.Getenv("IROH_SYSTEM_NAME"); v != "" {
		cfg.System.Name = v
	}
	if v := os.Getenv("IROH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IROH_DEBUG_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.System.DebugMode = b
		}
	}

	// Phone service
	if v := os.Getenv("IROH_PHONE_REST_URL"); v != "" {
		cfg.Phone.API.RESTURL = v
	}
	if v := os.Getenv("IROH_PHONE_WS_URL"); v != "" {
		cfg.Phone.API.WSURL = v
	}

	// Home Assistant
	if v := os.Getenv("IROH_HA_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("IROH_HA_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}

	// Database
	if v := os.Getenv("IROH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("IROH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IROH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IROH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("IROH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Field-level rules are declared as struct tags; cross-field rules are
// checked below. All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, structErrors(c)...)

	if c.Phone.ReconnectDelay <= 0 {
		errs = append(errs, "phone.reconnect_delay must be positive")
	}

	if c.HomeAssistant.Enabled {
		if c.HomeAssistant.URL == "" {
			errs = append(errs, "home_assistant.url is required when home_assistant is enabled")
		}
		if c.HomeAssistant.Token == "" {
			errs = append(errs, "home_assistant.token is required (set IROH_HA_TOKEN environment variable)")
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.Timers.SweepInterval <= 0 {
		errs = append(errs, "timers.sweep_interval must be positive")
	}
	if c.Timers.Retention < 0 {
		errs = append(errs, "timers.retention must not be negative")
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// structErrors runs the tag-declared rules and renders each failure using
// the YAML path of the offending field.
func structErrors(c *Config) []string {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s failed %s=%s", path, fe.Tag(), fe.Param()))
			continue
		}
		out = append(out, fmt.Sprintf("%s failed %s", path, fe.Tag()))
	}
	return out
}

// DTMFTimeout returns the phone digit grouping window as a Duration.
func (c *Config) DTMFTimeout() time.Duration {
	return time.Duration(c.Phone.DTMFTimeout) * time.Second
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
