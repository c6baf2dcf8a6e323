// Package sqlitearchive keeps a local SQLite copy of published feed events,
// pruned to a retention window.
package sqlitearchive

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/internal/types"
	"github.com/ambience-earth/ambience/pkg/config"
)

const pruneInterval = time.Hour

const schemaSQL = `
CREATE TABLE IF NOT EXISTS feed_events (
	time_unix        INTEGER NOT NULL,
	device_id        TEXT    NOT NULL,
	boot_id          TEXT    NOT NULL,
	number           INTEGER NOT NULL,
	kind             TEXT    NOT NULL,
	slot_index       INTEGER NOT NULL,
	start_reason     TEXT    NOT NULL,
	stop_reason      TEXT    NOT NULL,
	flags            INTEGER NOT NULL,
	soil_before      INTEGER NOT NULL,
	soil_after       INTEGER NOT NULL,
	baseline_percent INTEGER NOT NULL,
	dryback_percent  INTEGER NOT NULL,
	feed_ml          INTEGER NOT NULL,
	daily_total_ml   INTEGER NOT NULL,
	light_day_key    INTEGER NOT NULL,
	duration_ms      INTEGER NOT NULL,
	UNIQUE (device_id, boot_id, number)
);
CREATE INDEX IF NOT EXISTS feed_events_time_idx ON feed_events (time_unix)`

const insertSQL = `INSERT OR IGNORE INTO feed_events (
	time_unix, device_id, boot_id, number, kind, slot_index, start_reason, stop_reason, flags,
	soil_before, soil_after, baseline_percent, dryback_percent, feed_ml, daily_total_ml,
	light_day_key, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecentSQL = `SELECT
	time_unix, device_id, boot_id, number, kind, slot_index, start_reason, stop_reason, flags,
	soil_before, soil_after, baseline_percent, dryback_percent, feed_ml, daily_total_ml,
	light_day_key, duration_ms
FROM feed_events WHERE device_id = ? ORDER BY time_unix DESC, number DESC LIMIT ?`

// Storage holds the database for a SQLite archive backend
type Storage struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// New opens or creates the archive at cfg.Path. A zero retention keeps
// events forever.
func New(cfg config.SQLiteArchiveData) (*Storage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite archive: path is required")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite archive: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between the processor and the pruner
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Storage{
		db:        db,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		now:       time.Now,
	}, nil
}

// StartStorageEngine creates a goroutine loop to receive events and archive
// them, plus the retention pruner
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Event {
	log.Info("starting SQLite archive storage engine...")
	eventChan := make(chan types.Event, 10)
	wg.Add(1)
	go storage.ProcessEvents(ctx, wg, eventChan, s.StoreEvent, "SQLite archive")
	storage.StartHealthMonitor(ctx, "sqlite_archive", s, time.Minute)

	if s.retention > 0 {
		wg.Add(1)
		go s.pruneLoop(ctx, wg)
	}

	go func() {
		<-ctx.Done()
		s.db.Close()
	}()
	return eventChan
}

func (s *Storage) pruneLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if n, err := s.Prune(ctx); err != nil {
			log.Errorf("SQLite archive prune failed: %v", err)
		} else if n > 0 {
			log.Infof("pruned %d archived events", n)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// StoreEvent archives one event. Re-sent events are ignored.
func (s *Storage) StoreEvent(ev types.Event) error {
	_, err := s.db.Exec(insertSQL,
		ev.Timestamp.Unix(), ev.DeviceID, ev.BootID, int64(ev.Number), ev.Kind, int64(ev.SlotIndex),
		ev.StartReason, ev.StopReason, int64(ev.Flags), int64(ev.SoilBefore), int64(ev.SoilAfter),
		int64(ev.BaselinePercent), int64(ev.DrybackPercent), int64(ev.FeedMl), int64(ev.DailyTotalMl),
		int64(ev.LightDayKey), int64(ev.DurationMs),
	)
	if err != nil {
		return fmt.Errorf("could not archive event %d: %w", ev.Number, err)
	}
	return nil
}

// Prune deletes events older than the retention window.
func (s *Storage) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM feed_events WHERE time_unix < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recent returns up to limit events of one device, newest first.
func (s *Storage) Recent(ctx context.Context, deviceID string, limit int) ([]types.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectRecentSQL, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var (
			ev   types.Event
			unix int64
		)
		err := rows.Scan(&unix, &ev.DeviceID, &ev.BootID, &ev.Number, &ev.Kind, &ev.SlotIndex,
			&ev.StartReason, &ev.StopReason, &ev.Flags, &ev.SoilBefore, &ev.SoilAfter,
			&ev.BaselinePercent, &ev.DrybackPercent, &ev.FeedMl, &ev.DailyTotalMl,
			&ev.LightDayKey, &ev.DurationMs)
		if err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(unix, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CheckHealth pings the archive database
func (s *Storage) CheckHealth() *storage.HealthData {
	if err := s.db.Ping(); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "SQLite archive ping failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "SQLite archive operational", nil)
}
