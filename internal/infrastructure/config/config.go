package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure shared by the smart object,
// the controller and the observer binaries.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Agent      AgentConfig      `yaml:"agent"`
	Controller ControllerConfig `yaml:"controller"`
	Observer   ObserverConfig   `yaml:"observer"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig describes the identity a smart object announces on its info topic.
type DeviceConfig struct {
	ID              string `yaml:"id"`
	Producer        string `yaml:"producer"`
	SoftwareVersion string `yaml:"software_version"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	ActionQoS int                 `yaml:"action_qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Breaker   BreakerConfig       `yaml:"breaker"`
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
	// Auto enables paho's automatic reconnect once a session was established.
	Auto bool `yaml:"auto"`

	// InitialDelay and MaxDelay are in seconds.
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`

	// MaxAttempts bounds the initial connect. 1 means a single attempt.
	MaxAttempts int `yaml:"max_attempts"`
}

// BreakerConfig controls the circuit breaker guarding outbound publishes.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures int `yaml:"consecutive_failures"`

	// OpenTimeout is how long the breaker stays open before a trial publish.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// AgentConfig contains the smart object's telemetry loop settings.
type AgentConfig struct {
	PublishInterval time.Duration `yaml:"publish_interval"`

	// MessageLimit is the number of telemetry ticks before the loop ends.
	// Zero runs until shutdown.
	MessageLimit int `yaml:"message_limit"`

	// AlertThreshold is the local OVER_HEATING threshold. It is deliberately
	// independent from ControllerConfig.TemperatureLimit.
	AlertThreshold float64 `yaml:"alert_threshold"`

	Sensor SensorConfig `yaml:"sensor"`
}

// SensorConfig bounds the simulated temperature sensor.
type SensorConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ControllerConfig contains the monitoring controller's policy settings.
type ControllerConfig struct {
	TargetDevice     string        `yaml:"target_device"`
	TemperatureLimit float64       `yaml:"temperature_limit"`
	RearmDelay       time.Duration `yaml:"rearm_delay"`

	// RearmPolicy is one of "replace", "reject" or "unbounded".
	RearmPolicy string `yaml:"rearm_policy"`

	// RearmAttempts bounds the publish retries of a firing re-arm.
	RearmAttempts int `yaml:"rearm_attempts"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig enables the durable re-arm store backed by Database.
type StoreConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ObserverConfig contains the fleet observer settings.
type ObserverConfig struct {
	// DeviceFilter narrows the observed devices; "+" watches all of them.
	DeviceFilter string `yaml:"device_filter"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// APIConfig contains the ops HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Rearm policies accepted by ControllerConfig.RearmPolicy.
const (
	RearmReplace   = "replace"
	RearmReject    = "reject"
	RearmUnbounded = "unbounded"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTOBJECT_SECTION_KEY
// For example: SMARTOBJECT_MQTT_HOST, SMARTOBJECT_DEVICE_ID
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with the values used by the reference deployment:
// a local broker, device001, 1s telemetry, agent alert at 35 and controller
// limit at 37 with a 10s re-arm.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:              "device001",
			Producer:        "GO-ACME_CORPORATION",
			SoftwareVersion: "0.1-beta",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "127.0.0.1",
				Port: 1883,
			},
			QoS:       0,
			ActionQoS: 1,
			Reconnect: MQTTReconnectConfig{
				Auto:         true,
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  1,
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         10 * time.Second,
			},
		},
		Agent: AgentConfig{
			PublishInterval: time.Second,
			MessageLimit:    1000,
			AlertThreshold:  35.0,
			Sensor: SensorConfig{
				Min: 20.0,
				Max: 40.0,
			},
		},
		Controller: ControllerConfig{
			TargetDevice:     "device001",
			TemperatureLimit: 37.0,
			RearmDelay:       10 * time.Second,
			RearmPolicy:      RearmReplace,
			RearmAttempts:    3,
		},
		Observer: ObserverConfig{
			DeviceFilter: "+",
		},
		Database: DatabaseConfig{
			Path:        "./data/controller.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
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
// Environment variables follow the pattern: SMARTOBJECT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("SMARTOBJECT_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("SMARTOBJECT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMARTOBJECT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SMARTOBJECT_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("SMARTOBJECT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMARTOBJECT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Controller
	if v := os.Getenv("SMARTOBJECT_CONTROLLER_TARGET_DEVICE"); v != "" {
		cfg.Controller.TargetDevice = v
	}

	// Database
	if v := os.Getenv("SMARTOBJECT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SMARTOBJECT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API: the three binaries share one file, so each needs its own port.
	if v := os.Getenv("SMARTOBJECT_API_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.API.Enabled = enabled
		}
	}
	if v := os.Getenv("SMARTOBJECT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error { //nolint:gocognit,gocyclo // flat list of independent field checks
	var errs []string

	// Device validation
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	} else if strings.ContainsAny(c.Device.ID, "/+#") {
		errs = append(errs, "device.id must not contain '/', '+' or '#'")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ActionQoS < 0 || c.MQTT.ActionQoS > 2 {
		errs = append(errs, "mqtt.action_qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.MaxAttempts < 1 {
		errs = append(errs, "mqtt.reconnect.max_attempts must be at least 1")
	}
	if c.MQTT.Breaker.Enabled && c.MQTT.Breaker.ConsecutiveFailures < 1 {
		errs = append(errs, "mqtt.breaker.consecutive_failures must be at least 1")
	}

	// Agent validation
	if c.Agent.PublishInterval <= 0 {
		errs = append(errs, "agent.publish_interval must be positive")
	}
	if c.Agent.MessageLimit < 0 {
		errs = append(errs, "agent.message_limit must not be negative")
	}
	if c.Agent.Sensor.Max <= c.Agent.Sensor.Min {
		errs = append(errs, "agent.sensor.max must be greater than agent.sensor.min")
	}

	// Controller validation
	if c.Controller.TargetDevice == "" {
		errs = append(errs, "controller.target_device is required")
	} else if strings.ContainsAny(c.Controller.TargetDevice, "/+#") {
		errs = append(errs, "controller.target_device must not contain '/', '+' or '#'")
	}
	if c.Controller.RearmDelay <= 0 {
		errs = append(errs, "controller.rearm_delay must be positive")
	}
	switch c.Controller.RearmPolicy {
	case RearmReplace, RearmReject, RearmUnbounded:
	default:
		errs = append(errs, "controller.rearm_policy must be replace, reject, or unbounded")
	}
	if c.Controller.RearmAttempts < 1 {
		errs = append(errs, "controller.rearm_attempts must be at least 1")
	}
	if c.Controller.Store.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when controller.store is enabled")
	}

	// Observer validation
	if c.Observer.DeviceFilter == "" || strings.ContainsAny(c.Observer.DeviceFilter, "/#") {
		errs = append(errs, "observer.device_filter must be a single topic level")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
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
