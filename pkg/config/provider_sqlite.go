package config

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS config_values (
	section TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (section, key)
)`

// Sections of the config_values table.
const (
	sectionDevice        = "device"
	sectionLogging       = "logging"
	sectionTimescaleDB   = "timescaledb"
	sectionSQLiteArchive = "sqlite_archive"
	sectionInfluxDB      = "influxdb"
	sectionMQTT          = "mqtt"
	sectionREST          = "rest"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration.
// Values live in one key/value table grouped by section; a storage backend or
// controller is configured when its section has any rows.
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create config schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

type sectionValues map[string]map[string]string

func (v sectionValues) str(section, key string) string {
	return v[section][key]
}

func (v sectionValues) int(section, key string) (int, error) {
	s, ok := v[section][key]
	if !ok || s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", section, key, err)
	}
	return n, nil
}

func (v sectionValues) has(section string) bool {
	return len(v[section]) > 0
}

func (s *SQLiteProvider) values() (sectionValues, error) {
	rows, err := s.db.Query(`SELECT section, key, value FROM config_values`)
	if err != nil {
		return nil, fmt.Errorf("failed to query config values: %w", err)
	}
	defer rows.Close()

	v := sectionValues{}
	for rows.Next() {
		var section, key, value string
		if err := rows.Scan(&section, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		if v[section] == nil {
			v[section] = map[string]string{}
		}
		v[section][key] = value
	}
	return v, rows.Err()
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	v, err := s.values()
	if err != nil {
		return nil, err
	}

	config := &ConfigData{}

	device, err := deviceFrom(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	config.Device = *device

	config.Logging, err = loggingFrom(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load logging config: %w", err)
	}

	storage, err := storageFrom(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	config.Controllers, err = controllersFrom(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load controllers: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetDevice returns the device configuration from the database
func (s *SQLiteProvider) GetDevice() (*DeviceData, error) {
	v, err := s.values()
	if err != nil {
		return nil, err
	}
	return deviceFrom(v)
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	v, err := s.values()
	if err != nil {
		return nil, err
	}
	return storageFrom(v)
}

// GetControllers returns controller configurations from the database
func (s *SQLiteProvider) GetControllers() ([]ControllerData, error) {
	v, err := s.values()
	if err != nil {
		return nil, err
	}
	return controllersFrom(v)
}

func deviceFrom(v sectionValues) (*DeviceData, error) {
	d := &DeviceData{
		ID:           v.str(sectionDevice, "id"),
		SerialDevice: v.str(sectionDevice, "serial_device"),
		LogPath:      v.str(sectionDevice, "log_path"),
		SettingsPath: v.str(sectionDevice, "settings_path"),
		TickInterval: v.str(sectionDevice, "tick_interval"),
		Timezone:     v.str(sectionDevice, "timezone"),
	}
	var err error
	if d.Baud, err = v.int(sectionDevice, "baud"); err != nil {
		return nil, err
	}
	size, err := v.int(sectionDevice, "log_size")
	if err != nil {
		return nil, err
	}
	d.LogSize = int64(size)
	return d, nil
}

func loggingFrom(v sectionValues) (LoggingData, error) {
	l := LoggingData{
		File:     v.str(sectionLogging, "file"),
		Compress: v.str(sectionLogging, "compress") == "true",
	}
	var err error
	if l.MaxSizeMB, err = v.int(sectionLogging, "max_size_mb"); err != nil {
		return l, err
	}
	if l.MaxBackups, err = v.int(sectionLogging, "max_backups"); err != nil {
		return l, err
	}
	if l.MaxAgeDays, err = v.int(sectionLogging, "max_age_days"); err != nil {
		return l, err
	}
	return l, nil
}

func storageFrom(v sectionValues) (*StorageData, error) {
	storage := &StorageData{}

	if v.has(sectionTimescaleDB) {
		storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: v.str(sectionTimescaleDB, "connection_string"),
		}
	}

	if v.has(sectionSQLiteArchive) {
		retention, err := v.int(sectionSQLiteArchive, "retention_days")
		if err != nil {
			return nil, err
		}
		storage.SQLiteArchive = &SQLiteArchiveData{
			Path:          v.str(sectionSQLiteArchive, "path"),
			RetentionDays: retention,
		}
	}

	if v.has(sectionInfluxDB) {
		storage.InfluxDB = &InfluxDBData{
			URL:         v.str(sectionInfluxDB, "url"),
			Token:       v.str(sectionInfluxDB, "token"),
			Org:         v.str(sectionInfluxDB, "org"),
			Bucket:      v.str(sectionInfluxDB, "bucket"),
			Measurement: v.str(sectionInfluxDB, "measurement"),
		}
	}

	if v.has(sectionMQTT) {
		port, err := v.int(sectionMQTT, "port")
		if err != nil {
			return nil, err
		}
		storage.MQTT = &MQTTData{
			Host:     v.str(sectionMQTT, "host"),
			Port:     port,
			Username: v.str(sectionMQTT, "username"),
			Password: v.str(sectionMQTT, "password"),
			ClientID: v.str(sectionMQTT, "client_id"),
			Topic:    v.str(sectionMQTT, "topic"),
		}
	}

	return storage, nil
}

func controllersFrom(v sectionValues) ([]ControllerData, error) {
	var controllers []ControllerData
	if v.has(sectionREST) {
		port, err := v.int(sectionREST, "port")
		if err != nil {
			return nil, err
		}
		controllers = append(controllers, ControllerData{
			Type: "rest",
			RESTServer: &RESTServerData{
				Cert:       v.str(sectionREST, "cert"),
				Key:        v.str(sectionREST, "key"),
				Port:       port,
				ListenAddr: v.str(sectionREST, "listen_addr"),
				AuthToken:  v.str(sectionREST, "auth_token"),
			},
		})
	}
	return controllers, nil
}

// IsReadOnly returns false since SQLite supports write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM config_values`); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO config_values (section, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range flatten(configData) {
		if _, err := stmt.Exec(row.section, row.key, row.value); err != nil {
			return fmt.Errorf("failed to insert %s.%s: %w", row.section, row.key, err)
		}
	}

	return tx.Commit()
}

type configRow struct {
	section, key, value string
}

// flatten lists the set values of c. Empty strings and zero numbers are
// skipped; a configured backend always writes at least one row.
func flatten(c *ConfigData) []configRow {
	var rows []configRow
	add := func(section, key, value string) {
		if value != "" && value != "0" && value != "false" {
			rows = append(rows, configRow{section, key, value})
		}
	}
	itoa := strconv.Itoa

	d := c.Device
	add(sectionDevice, "id", d.ID)
	add(sectionDevice, "serial_device", d.SerialDevice)
	add(sectionDevice, "baud", itoa(d.Baud))
	add(sectionDevice, "log_path", d.LogPath)
	add(sectionDevice, "log_size", strconv.FormatInt(d.LogSize, 10))
	add(sectionDevice, "settings_path", d.SettingsPath)
	add(sectionDevice, "tick_interval", d.TickInterval)
	add(sectionDevice, "timezone", d.Timezone)

	l := c.Logging
	add(sectionLogging, "file", l.File)
	add(sectionLogging, "max_size_mb", itoa(l.MaxSizeMB))
	add(sectionLogging, "max_backups", itoa(l.MaxBackups))
	add(sectionLogging, "max_age_days", itoa(l.MaxAgeDays))
	add(sectionLogging, "compress", strconv.FormatBool(l.Compress))

	if t := c.Storage.TimescaleDB; t != nil {
		rows = append(rows, configRow{sectionTimescaleDB, "connection_string", t.ConnectionString})
	}
	if a := c.Storage.SQLiteArchive; a != nil {
		rows = append(rows, configRow{sectionSQLiteArchive, "path", a.Path})
		add(sectionSQLiteArchive, "retention_days", itoa(a.RetentionDays))
	}
	if i := c.Storage.InfluxDB; i != nil {
		rows = append(rows, configRow{sectionInfluxDB, "url", i.URL})
		add(sectionInfluxDB, "token", i.Token)
		add(sectionInfluxDB, "org", i.Org)
		add(sectionInfluxDB, "bucket", i.Bucket)
		add(sectionInfluxDB, "measurement", i.Measurement)
	}
	if m := c.Storage.MQTT; m != nil {
		rows = append(rows, configRow{sectionMQTT, "host", m.Host})
		add(sectionMQTT, "port", itoa(m.Port))
		add(sectionMQTT, "username", m.Username)
		add(sectionMQTT, "password", m.Password)
		add(sectionMQTT, "client_id", m.ClientID)
		add(sectionMQTT, "topic", m.Topic)
	}

	for _, con := range c.Controllers {
		if r := con.RESTServer; r != nil {
			rows = append(rows, configRow{sectionREST, "port", itoa(r.Port)})
			add(sectionREST, "listen_addr", r.ListenAddr)
			add(sectionREST, "cert", r.Cert)
			add(sectionREST, "key", r.Key)
			add(sectionREST, "auth_token", r.AuthToken)
		}
	}
	return rows
}
