// Package timescaledb stores feed events in a TimescaleDB hypertable.
package timescaledb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ambience-earth/ambience/internal/database"
	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/internal/types"
)

// Storage holds the connection for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
}

// StartStorageEngine creates a goroutine loop to receive events and send
// them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Event {
	log.Info("starting TimescaleDB storage engine...")
	eventChan := make(chan types.Event, 10)
	wg.Add(1)
	go storage.ProcessEvents(ctx, wg, eventChan, t.StoreEvent, "TimescaleDB")
	storage.StartHealthMonitor(ctx, "timescaledb", t, time.Minute)
	return eventChan
}

// StoreEvent stores one event in TimescaleDB
func (t *Storage) StoreEvent(ev types.Event) error {
	err := t.TimescaleDBConn.Create(&ev).Error
	if err != nil {
		return fmt.Errorf("could not store event: %w", err)
	}
	return nil
}

type schemaStep struct {
	name string
	sql  string
	// optional steps log a warning and continue
	optional bool
}

var schema = []schemaStep{
	{name: "TimescaleDB extension", sql: createExtensionSQL},
	{name: "feed_events table", sql: createTableSQL},
	{name: "hypertable", sql: createHypertableSQL},
	{name: "device index", sql: createDeviceIndexSQL},
	{name: "kind index", sql: createKindIndexSQL},
	{name: "daily view", sql: createDailyViewSQL},
	{name: "daily view aggregation policy", sql: addAggregationPolicy1dSQL},
	// retention needs a license on some managed TimescaleDB services
	{name: "retention policy", sql: addRetentionPolicySQL, optional: true},
}

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, connectionString string) (*Storage, error) {
	db, err := database.CreatePostgresConnection(connectionString)
	if err != nil {
		return nil, err
	}
	t := &Storage{TimescaleDBConn: db}

	for _, step := range schema {
		log.Infof("creating %s...", step.name)
		err := t.TimescaleDBConn.WithContext(ctx).Exec(step.sql).Error
		if err == nil {
			continue
		}
		if step.optional {
			log.Warnf("could not create %s, continuing: %v", step.name, err)
			continue
		}
		return nil, fmt.Errorf("could not create %s: %w", step.name, err)
	}

	log.Info("TimescaleDB storage engine ready")
	return t, nil
}
