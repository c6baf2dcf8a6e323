// Package influxdb writes feed events to an InfluxDB 2 bucket.
package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"

	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/internal/types"
	"github.com/ambience-earth/ambience/pkg/config"
)

const (
	writeTimeout = 10 * time.Second

	// the breaker opens after this many consecutive write failures
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
	breakerInterval = time.Minute
)

// Storage holds the client for an InfluxDB storage backend
type Storage struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	cb          *gobreaker.CircuitBreaker
}

// New sets up a new InfluxDB storage backend
func New(cfg config.InfluxDBData) (*Storage, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influxdb: url, org and bucket are required")
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = config.DefaultMeasurement
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Storage{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "influxdb",
			Interval: breakerInterval,
			Timeout:  breakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnf("%s circuit breaker: %s -> %s", name, from, to)
			},
		}),
	}, nil
}

// StartStorageEngine creates a goroutine loop to receive events and send
// them off to InfluxDB
func (i *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Event {
	log.Info("starting InfluxDB storage engine...")
	eventChan := make(chan types.Event, 10)
	wg.Add(1)
	go storage.ProcessEvents(ctx, wg, eventChan, i.StoreEvent, "InfluxDB")
	storage.StartHealthMonitor(ctx, "influxdb", i, time.Minute)

	go func() {
		<-ctx.Done()
		i.client.Close()
	}()
	return eventChan
}

// StoreEvent writes one event as a point. Writes are refused while the
// circuit breaker is open.
func (i *Storage) StoreEvent(ev types.Event) error {
	pt := influxdb2.NewPoint(i.measurement, ev.Tags(), ev.ToMap(), ev.Timestamp)

	_, err := i.cb.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return nil, i.writeAPI.WritePoint(ctx, pt)
	})
	if err != nil {
		return fmt.Errorf("could not write event %d to InfluxDB: %w", ev.Number, err)
	}
	return nil
}

// CheckHealth pings the server and reports the breaker state
func (i *Storage) CheckHealth() *storage.HealthData {
	if st := i.cb.State(); st == gobreaker.StateOpen {
		return storage.CreateHealthData(storage.StatusUnhealthy, "circuit breaker open", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	ok, err := i.client.Ping(ctx)
	if err != nil || !ok {
		return storage.CreateHealthData(storage.StatusUnhealthy, "InfluxDB ping failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "InfluxDB operational", nil)
}
