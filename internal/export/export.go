// Package export copies event log entries into a standalone SQLite file
// that desktop tools can open without the daemon.
package export

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/types"
)

const batchSize = 200

// Archive is an export database.
type Archive struct {
	DB *gorm.DB
}

// Open opens or creates the export database at path and migrates the
// events table.
func Open(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open export database: %w", err)
	}

	if err := db.AutoMigrate(&types.Event{}); err != nil {
		return nil, fmt.Errorf("failed to migrate export database: %w", err)
	}

	return &Archive{DB: db}, nil
}

// Write inserts events, skipping any already exported. It returns the
// number of new rows.
func (a *Archive) Write(events []types.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	res := a.DB.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(events, batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to write events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the number of exported events for deviceID.
func (a *Archive) Count(deviceID string) (int64, error) {
	var n int64
	err := a.DB.Model(&types.Event{}).Where("device_id = ?", deviceID).Count(&n).Error
	return n, err
}

// Close closes the database.
func (a *Archive) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Events converts every entry in the store, oldest first. Entry numbers are
// rebuilt from the persisted epoch, counting one wrap back each time the
// sequence steps up while walking toward older entries. Entries without a
// usable date are stamped with now.
func Events(store *eventlog.Store, deviceID, bootID string, loc *time.Location, now time.Time) []types.Event {
	entries := store.Recent(store.Layout().Slots)
	out := make([]types.Event, len(entries))

	epoch := store.Epoch()
	for i, e := range entries {
		if i > 0 && e.Seq > entries[i-1].Seq {
			epoch--
		}
		number := uint32(epoch)<<16 | uint32(e.Seq)
		out[len(entries)-1-i] = types.NewEvent(deviceID, bootID, number, e, loc, now)
	}
	return out
}
