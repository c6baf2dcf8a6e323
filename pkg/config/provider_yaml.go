package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files.
// ${VAR} references in the file are expanded from the environment.
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var yamlConfig ConfigYAML
	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(cfgFile))), &yamlConfig)
	if err != nil {
		return nil, err
	}

	config := yamlConfig.toConfigData()
	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}
	return y.LoadConfig()
}

// GetDevice returns the device configuration
func (y *YAMLProvider) GetDevice() (*DeviceData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Device, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Storage, nil
}

// GetControllers returns controller configurations
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return config.Controllers, nil
}

// IsReadOnly returns true since YAML files are read-only in this implementation
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with yaml tags

type ConfigYAML struct {
	Device      DeviceYAML       `yaml:"device"`
	Logging     LoggingYAML      `yaml:"logging,omitempty"`
	Storage     StorageYAML      `yaml:"storage,omitempty"`
	Controllers []ControllerYAML `yaml:"controllers,omitempty"`
}

type DeviceYAML struct {
	ID           string `yaml:"id,omitempty"`
	SerialDevice string `yaml:"serialdevice,omitempty"`
	Baud         int    `yaml:"baud,omitempty"`
	LogPath      string `yaml:"log-path"`
	LogSize      int64  `yaml:"log-size,omitempty"`
	SettingsPath string `yaml:"settings-path"`
	TickInterval string `yaml:"tick-interval,omitempty"`
	Timezone     string `yaml:"timezone,omitempty"`
}

type LoggingYAML struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty"`
	MaxAgeDays int    `yaml:"max-age-days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

type StorageYAML struct {
	TimescaleDB   *TimescaleDBYAML   `yaml:"timescaledb,omitempty"`
	SQLiteArchive *SQLiteArchiveYAML `yaml:"sqlite-archive,omitempty"`
	InfluxDB      *InfluxDBYAML      `yaml:"influxdb,omitempty"`
	MQTT          *MQTTYAML          `yaml:"mqtt,omitempty"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type SQLiteArchiveYAML struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention-days,omitempty"`
}

type InfluxDBYAML struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token,omitempty"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement,omitempty"`
}

type MQTTYAML struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	ClientID string `yaml:"client-id,omitempty"`
	Topic    string `yaml:"topic,omitempty"`
}

type ControllerYAML struct {
	Type       string          `yaml:"type,omitempty"`
	RESTServer *RESTServerYAML `yaml:"rest,omitempty"`
}

type RESTServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
	AuthToken  string `yaml:"auth-token,omitempty"`
}

// toConfigData converts to our internal format
func (c *ConfigYAML) toConfigData() *ConfigData {
	config := &ConfigData{
		Device: DeviceData{
			ID:           c.Device.ID,
			SerialDevice: c.Device.SerialDevice,
			Baud:         c.Device.Baud,
			LogPath:      c.Device.LogPath,
			LogSize:      c.Device.LogSize,
			SettingsPath: c.Device.SettingsPath,
			TickInterval: c.Device.TickInterval,
			Timezone:     c.Device.Timezone,
		},
		Logging: LoggingData{
			File:       c.Logging.File,
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxBackups: c.Logging.MaxBackups,
			MaxAgeDays: c.Logging.MaxAgeDays,
			Compress:   c.Logging.Compress,
		},
		Controllers: make([]ControllerData, len(c.Controllers)),
	}

	// Convert storage
	if c.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: c.Storage.TimescaleDB.ConnectionString,
		}
	}
	if c.Storage.SQLiteArchive != nil {
		config.Storage.SQLiteArchive = &SQLiteArchiveData{
			Path:          c.Storage.SQLiteArchive.Path,
			RetentionDays: c.Storage.SQLiteArchive.RetentionDays,
		}
	}
	if c.Storage.InfluxDB != nil {
		config.Storage.InfluxDB = &InfluxDBData{
			URL:         c.Storage.InfluxDB.URL,
			Token:       c.Storage.InfluxDB.Token,
			Org:         c.Storage.InfluxDB.Org,
			Bucket:      c.Storage.InfluxDB.Bucket,
			Measurement: c.Storage.InfluxDB.Measurement,
		}
	}
	if c.Storage.MQTT != nil {
		config.Storage.MQTT = &MQTTData{
			Host:     c.Storage.MQTT.Host,
			Port:     c.Storage.MQTT.Port,
			Username: c.Storage.MQTT.Username,
			Password: c.Storage.MQTT.Password,
			ClientID: c.Storage.MQTT.ClientID,
			Topic:    c.Storage.MQTT.Topic,
		}
	}

	// Convert controllers
	for i, controller := range c.Controllers {
		config.Controllers[i] = ControllerData{
			Type: controller.Type,
		}
		if controller.RESTServer != nil {
			config.Controllers[i].RESTServer = &RESTServerData{
				Cert:       controller.RESTServer.Cert,
				Key:        controller.RESTServer.Key,
				Port:       controller.RESTServer.Port,
				ListenAddr: controller.RESTServer.ListenAddr,
				AuthToken:  controller.RESTServer.AuthToken,
			}
		}
	}

	return config
}
