// Package types holds records shared between the device and the storage
// backends.
package types

import (
	"reflect"
	"time"

	"github.com/ambience-earth/ambience/internal/eventlog"
)

// Event is a log entry as published to storage backends. Percent fields
// that the device leaves unset are stored as -1.
type Event struct {
	Timestamp       time.Time `gorm:"column:time" json:"time"`
	DeviceID        string    `gorm:"column:device_id;uniqueIndex:idx_feed_events_entry" json:"device_id"`
	BootID          string    `gorm:"column:boot_id;uniqueIndex:idx_feed_events_entry" json:"boot_id"`
	Number          uint32    `gorm:"column:number;uniqueIndex:idx_feed_events_entry" json:"number"`
	Kind            string    `gorm:"column:kind" json:"kind"`
	SlotIndex       uint8     `gorm:"column:slot_index" json:"slot_index"`
	StartReason     string    `gorm:"column:start_reason" json:"start_reason"`
	StopReason      string    `gorm:"column:stop_reason" json:"stop_reason"`
	Flags           uint8     `gorm:"column:flags" json:"flags"`
	SoilBefore      uint8     `gorm:"column:soil_before" json:"soil_before"`
	SoilAfter       uint8     `gorm:"column:soil_after" json:"soil_after"`
	BaselinePercent int16     `gorm:"column:baseline_percent" json:"baseline_percent"`
	DrybackPercent  int16     `gorm:"column:dryback_percent" json:"dryback_percent"`
	FeedMl          uint16    `gorm:"column:feed_ml" json:"feed_ml"`
	DailyTotalMl    uint16    `gorm:"column:daily_total_ml" json:"daily_total_ml"`
	LightDayKey     uint16    `gorm:"column:light_day_key" json:"light_day_key"`
	DurationMs      uint32    `gorm:"column:duration_ms" json:"duration_ms"`
}

// TableName implements the GORM Tabler interface for the Event struct
func (Event) TableName() string {
	return "feed_events"
}

// NewEvent converts a written log entry. number is the entry's absolute log
// number. Entries without a usable date are stamped with now.
func NewEvent(deviceID, bootID string, number uint32, e eventlog.Entry, loc *time.Location, now time.Time) Event {
	ts := e.Start.Time(loc)
	if e.Type == eventlog.TypeFeed && e.End.Valid() {
		ts = e.End.Time(loc)
	}
	if ts.IsZero() {
		ts = now
	}

	ev := Event{
		Timestamp:       ts,
		DeviceID:        deviceID,
		BootID:          bootID,
		Number:          number,
		Kind:            e.Type.String(),
		SlotIndex:       e.SlotIndex,
		StartReason:     e.StartReason.String(),
		StopReason:      e.StopReason.String(),
		Flags:           uint8(e.Flags),
		SoilBefore:      e.SoilBefore,
		SoilAfter:       e.SoilAfter,
		BaselinePercent: -1,
		DrybackPercent:  -1,
		FeedMl:          e.FeedMl,
		DailyTotalMl:    e.DailyTotalMl,
		LightDayKey:     e.LightDayKey,
	}
	if e.HasBaseline() {
		ev.BaselinePercent = int16(e.BaselinePercent)
	}
	if e.DrybackPercent != eventlog.DrybackUnset {
		ev.DrybackPercent = int16(e.DrybackPercent)
	}
	if e.Type == eventlog.TypeFeed {
		ev.DurationMs = e.DurationMs()
	}
	return ev
}

// ToMap returns the numeric fields of the event keyed by field name, for
// backends that store points as field sets.
func (ev *Event) ToMap() map[string]interface{} {
	m := make(map[string]interface{})

	v := reflect.ValueOf(*ev)

	for i := 0; i < v.NumField(); i++ {
		switch v.Field(i).Kind() {
		case reflect.Int16:
			m[v.Type().Field(i).Name] = v.Field(i).Int()
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
			m[v.Type().Field(i).Name] = v.Field(i).Uint()
		}
	}

	return m
}

// Tags returns the low-cardinality string fields of the event.
func (ev *Event) Tags() map[string]string {
	return map[string]string{
		"device_id":    ev.DeviceID,
		"kind":         ev.Kind,
		"start_reason": ev.StartReason,
		"stop_reason":  ev.StopReason,
	}
}
