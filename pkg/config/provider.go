package config

import (
	"errors"
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDevice() (*DeviceData, error)
	GetStorageConfig() (*StorageData, error)
	GetControllers() ([]ControllerData, error)

	IsReadOnly() bool
	Close() error
}

// Defaults applied by ApplyDefaults.
const (
	DefaultLogSize      = 64 * 1024
	DefaultSettingsSize = 1024
	DefaultTickInterval = time.Second
	DefaultBaud         = 115200
	DefaultRESTPort     = 8080
	DefaultMQTTPort     = 1883
	DefaultMQTTTopic    = "ambience"
	DefaultMeasurement  = "feed_event"
)

var ErrNoRegionPath = errors.New("config: device log-path and settings-path are required")

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Device      DeviceData       `json:"device"`
	Logging     LoggingData      `json:"logging,omitempty"`
	Storage     StorageData      `json:"storage,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty"`
}

// DeviceData describes the watering device this daemon drives
type DeviceData struct {
	ID           string `json:"id,omitempty"`
	SerialDevice string `json:"serial_device,omitempty"`
	Baud         int    `json:"baud,omitempty"`
	LogPath      string `json:"log_path"`
	LogSize      int64  `json:"log_size,omitempty"`
	SettingsPath string `json:"settings_path"`
	TickInterval string `json:"tick_interval,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
}

// Tick returns the parsed tick interval.
func (d *DeviceData) Tick() (time.Duration, error) {
	if d.TickInterval == "" {
		return DefaultTickInterval, nil
	}
	tick, err := time.ParseDuration(d.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid tick interval %q: %w", d.TickInterval, err)
	}
	if tick <= 0 {
		return 0, fmt.Errorf("tick interval must be positive, got %v", tick)
	}
	return tick, nil
}

// Location returns the configured time zone, or the local zone.
func (d *DeviceData) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}

// LoggingData configures optional rotated file logging
type LoggingData struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// StorageData holds the configuration for various storage backends
type StorageData struct {
	TimescaleDB   *TimescaleDBData   `json:"timescaledb,omitempty"`
	SQLiteArchive *SQLiteArchiveData `json:"sqlite_archive,omitempty"`
	InfluxDB      *InfluxDBData      `json:"influxdb,omitempty"`
	MQTT          *MQTTData          `json:"mqtt,omitempty"`
}

// ControllerData holds the configuration for various controller backends
type ControllerData struct {
	Type       string          `json:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty"`
}

// Storage backend configuration structs
type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

type SQLiteArchiveData struct {
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

type InfluxDBData struct {
	URL         string `json:"url"`
	Token       string `json:"token,omitempty"`
	Org         string `json:"org"`
	Bucket      string `json:"bucket"`
	Measurement string `json:"measurement,omitempty"`
}

type MQTTData struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// Controller configuration structs
type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
	// AuthToken, when set, is required as a bearer token on every request
	// that changes device state.
	AuthToken string `json:"auth_token,omitempty"`
}

// ApplyDefaults fills unset optional values and checks required ones.
func (c *ConfigData) ApplyDefaults() error {
	if c.Device.LogPath == "" || c.Device.SettingsPath == "" {
		return ErrNoRegionPath
	}
	if c.Device.LogSize == 0 {
		c.Device.LogSize = DefaultLogSize
	}
	if c.Device.SerialDevice != "" && c.Device.Baud == 0 {
		c.Device.Baud = DefaultBaud
	}
	if _, err := c.Device.Tick(); err != nil {
		return err
	}
	if _, err := c.Device.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Device.Timezone, err)
	}

	if c.Storage.InfluxDB != nil && c.Storage.InfluxDB.Measurement == "" {
		c.Storage.InfluxDB.Measurement = DefaultMeasurement
	}
	if m := c.Storage.MQTT; m != nil {
		if m.Port == 0 {
			m.Port = DefaultMQTTPort
		}
		if m.Topic == "" {
			m.Topic = DefaultMQTTTopic
		}
	}

	for i := range c.Controllers {
		if r := c.Controllers[i].RESTServer; r != nil && r.Port == 0 {
			r.Port = DefaultRESTPort
		}
	}
	return nil
}
