// Package storage defines the interface and shared plumbing for event storage
// backends.
package storage

import (
	"context"
	"sync"

	"github.com/ambience-earth/ambience/internal/types"
)

// StorageEngineInterface is an interface that provides a few standardized
// methods for various storage backends
type StorageEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- types.Event
}

// HealthChecker is implemented by backends that can report their health
type HealthChecker interface {
	CheckHealth() *HealthData
}
