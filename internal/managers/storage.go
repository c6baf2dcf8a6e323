// Package managers starts the configured storage backends and controllers.
package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/internal/storage/influxdb"
	"github.com/ambience-earth/ambience/internal/storage/mqtt"
	"github.com/ambience-earth/ambience/internal/storage/sqlitearchive"
	"github.com/ambience-earth/ambience/internal/storage/timescaledb"
	"github.com/ambience-earth/ambience/internal/types"
	"github.com/ambience-earth/ambience/pkg/config"
)

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines          []StorageEngine
	EventDistributor chan types.Event

	archive *sqlitearchive.Storage
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing events to the engine
type StorageEngine struct {
	Name   string
	Engine storage.StorageEngineInterface
	C      chan<- types.Event
}

// NewStorageManager creates a StorageManager object, populated with all
// configured StorageEngines. Engines in extra, such as the metrics sink,
// are started alongside the configured ones.
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c config.StorageData, extra map[string]storage.StorageEngineInterface) (*StorageManager, error) {
	s := &StorageManager{
		EventDistributor: make(chan types.Event, 20),
	}

	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString != "" {
		if err := s.AddEngine(ctx, wg, "timescaledb", c); err != nil {
			return s, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
	}

	if c.SQLiteArchive != nil && c.SQLiteArchive.Path != "" {
		if err := s.AddEngine(ctx, wg, "sqlite_archive", c); err != nil {
			return s, fmt.Errorf("could not add SQLite archive storage backend: %w", err)
		}
	}

	if c.InfluxDB != nil && c.InfluxDB.URL != "" {
		if err := s.AddEngine(ctx, wg, "influxdb", c); err != nil {
			return s, fmt.Errorf("could not add InfluxDB storage backend: %w", err)
		}
	}

	if c.MQTT != nil && c.MQTT.Host != "" {
		if err := s.AddEngine(ctx, wg, "mqtt", c); err != nil {
			return s, fmt.Errorf("could not add MQTT storage backend: %w", err)
		}
	}

	for name, e := range extra {
		s.start(ctx, wg, name, e)
	}

	// Start our event distributor to distribute published events to
	// storage backends
	wg.Add(1)
	go s.startEventDistributor(ctx, wg)

	return s, nil
}

// AddEngine adds a new StorageEngine of name engineName to our Storage object
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, engineName string, c config.StorageData) error {
	var (
		engine storage.StorageEngineInterface
		err    error
	)

	switch engineName {
	case "timescaledb":
		engine, err = timescaledb.New(ctx, c.TimescaleDB.ConnectionString)
	case "sqlite_archive":
		var a *sqlitearchive.Storage
		a, err = sqlitearchive.New(*c.SQLiteArchive)
		if err == nil {
			s.archive = a
			engine = a
		}
	case "influxdb":
		engine, err = influxdb.New(*c.InfluxDB)
	case "mqtt":
		engine, err = mqtt.New(ctx, *c.MQTT)
	default:
		return fmt.Errorf("unknown storage engine: %s", engineName)
	}
	if err != nil {
		return err
	}

	s.start(ctx, wg, engineName, engine)
	return nil
}

func (s *StorageManager) start(ctx context.Context, wg *sync.WaitGroup, name string, engine storage.StorageEngineInterface) {
	s.Engines = append(s.Engines, StorageEngine{
		Name:   name,
		Engine: engine,
		C:      engine.StartStorageEngine(ctx, wg),
	})
}

// Archive returns the SQLite archive backend, or nil when it is not
// configured.
func (s *StorageManager) Archive() *sqlitearchive.Storage {
	return s.archive
}

// startEventDistributor receives events from the device and fans them out
// to the various storage backends
func (s *StorageManager) startEventDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case ev := <-s.EventDistributor:
			for _, e := range s.Engines {
				select {
				case e.C <- ev:
				case <-ctx.Done():
					return
				}
			}
			log.Debugf("distributed event %d (%s) to %d engines", ev.Number, ev.Kind, len(s.Engines))
		case <-ctx.Done():
			return
		}
	}
}
