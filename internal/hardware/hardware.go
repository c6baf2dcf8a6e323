// Package hardware defines the collaborators the feeding engine drives and
// polls: pump, moisture, runoff and weight sensors, the real-time clock and
// a monotonic clock.
package hardware

import (
	"errors"
	"time"

	"github.com/ambience-earth/ambience/internal/rtc"
)

// ErrNotReady is returned by sensors that have no usable reading yet.
var ErrNotReady = errors.New("hardware: sensor not ready")

// Pump switches the water line. Open and Close are idempotent.
type Pump interface {
	Open()
	Close()
}

// MoistureSensor reports raw soil moisture readings.
type MoistureSensor interface {
	Ready() bool
	Raw() uint16
}

// RunoffSensor reports whether water reached the runoff tray.
type RunoffSensor interface {
	RunoffDetected() bool
}

// WeightSensor reports the pot weight. It is optional.
type WeightSensor interface {
	Ready() bool
	Grams() float64
}

// RTC reads the battery-backed wall clock.
type RTC interface {
	ReadDateTime() (rtc.DateTime, error)
}

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// Set groups the collaborators of one device. Weight may be nil.
type Set struct {
	Pump     Pump
	Moisture MoistureSensor
	Runoff   RunoffSensor
	Weight   WeightSensor
	RTC      RTC
	Clock    Clock
}

// ReadMinutesAndDay returns the minute of day and day key of the current RTC
// time.
func ReadMinutesAndDay(r RTC) (minutes uint16, dayKey uint16, err error) {
	d, err := r.ReadDateTime()
	if err != nil {
		return 0, 0, err
	}
	return d.MinuteOfDay(), rtc.DayKey(d.Year, d.Month, d.Day), nil
}

// RawToPercent converts a raw reading to 0..100 by linear interpolation
// between the dry and soaked calibration points, clamped at both ends. Either
// calibration direction is accepted.
func RawToPercent(raw, dry, soaked uint16) uint8 {
	if dry == soaked {
		return 0
	}
	if dry > soaked {
		switch {
		case raw >= dry:
			return 0
		case raw <= soaked:
			return 100
		}
		return uint8(uint32(dry-raw) * 100 / uint32(dry-soaked))
	}
	switch {
	case raw <= dry:
		return 0
	case raw >= soaked:
		return 100
	}
	return uint8(uint32(raw-dry) * 100 / uint32(soaked-dry))
}
