package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/types"
)

// StartHealthMonitor starts a generic health monitoring goroutine for any
// storage backend. Results go to the GlobalHealthManager.
func StartHealthMonitor(ctx context.Context, storageType string, checker HealthChecker, interval time.Duration) {
	go func() {
		updateHealth := func() {
			health := checker.CheckHealth()
			GlobalHealthManager.UpdateHealth(storageType, health)
			if health.Status != StatusHealthy {
				log.Warnf("%s health: %s %s", storageType, health.Message, health.Error)
			} else {
				log.Debugf("updated %s health status: %s", storageType, health.Status)
			}
		}

		updateHealth()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				updateHealth()
			case <-ctx.Done():
				log.Infof("stopping %s health monitor", storageType)
				return
			}
		}
	}()
}

// ProcessEvents provides a standard pattern for processing events from a
// channel. Processor errors are logged and the loop continues.
func ProcessEvents(ctx context.Context, wg *sync.WaitGroup, eventChan <-chan types.Event, processor func(types.Event) error, name string) {
	defer wg.Done()

	for {
		select {
		case e := <-eventChan:
			if err := processor(e); err != nil {
				log.Errorf("%s event processor error: %v", name, err)
			}
		case <-ctx.Done():
			log.Infof("cancellation request received. Cancelling %s event processor", name)
			return
		}
	}
}

// CreateHealthData creates a basic health data structure
func CreateHealthData(status, message string, err error) *HealthData {
	health := &HealthData{
		LastCheck: time.Now(),
		Status:    status,
		Message:   message,
	}

	if err != nil {
		health.Error = err.Error()
	}

	return health
}
