package timescaledb

import (
	"github.com/ambience-earth/ambience/internal/database"
	"github.com/ambience-earth/ambience/internal/storage"
)

// CheckHealth pings the database and runs a trivial query
func (t *Storage) CheckHealth() *storage.HealthData {
	if t.TimescaleDBConn == nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "No database connection", nil)
	}
	if err := database.Ping(t.TimescaleDBConn); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Database ping failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "TimescaleDB operational - ping: OK, query test: OK", nil)
}
