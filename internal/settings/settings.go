// Package settings persists the device configuration block: calibration
// constants, lighting schedule, feeding limits and the packed slot table.
package settings

import (
	"github.com/ambience-earth/ambience/internal/feedslot"
)

// Flag bits in Config.Flags.
const (
	FlagFeedingDisabled   uint8 = 0x02
	FlagDripperCalibrated uint8 = 0x04
)

// Runoff expectation per slot, shown in slot summaries.
const (
	RunoffExpectNone uint8 = iota
	RunoffExpect
	RunoffAvoid
)

// Config is the persisted device configuration.
type Config struct {
	Flags                   uint8                           `msgpack:"flags" json:"flags"`
	DripperMsPerLiter       uint32                          `msgpack:"dripper_ms_per_liter" json:"dripper_ms_per_liter"`
	LightsOnMinutes         uint16                          `msgpack:"lights_on" json:"lights_on_minutes"`
	LightsOffMinutes        uint16                          `msgpack:"lights_off" json:"lights_off_minutes"`
	MaxDailyWaterMl         uint16                          `msgpack:"max_daily_ml" json:"max_daily_water_ml"`
	PulseOnSeconds          uint8                           `msgpack:"pulse_on_s" json:"pulse_on_seconds"`
	PulseOffSeconds         uint8                           `msgpack:"pulse_off_s" json:"pulse_off_seconds"`
	BaselineX               uint8                           `msgpack:"baseline_x" json:"baseline_x"`
	BaselineY               uint8                           `msgpack:"baseline_y" json:"baseline_y"`
	BaselineDelayMinutes    uint8                           `msgpack:"baseline_delay" json:"baseline_delay_minutes"`
	MoistureDry             uint16                          `msgpack:"moisture_dry" json:"moisture_dry"`
	MoistureSoaked          uint16                          `msgpack:"moisture_soaked" json:"moisture_soaked"`
	WeightBelowGrams        uint16                          `msgpack:"weight_below_g" json:"weight_below_grams"`
	WeightTargetGrams       uint16                          `msgpack:"weight_target_g" json:"weight_target_grams"`
	SnapshotIntervalMinutes uint16                          `msgpack:"snapshot_interval" json:"snapshot_interval_minutes"`
	RunoffExpectation       [feedslot.Count]uint8           `msgpack:"runoff_expectation" json:"runoff_expectation"`
	SlotNames               [feedslot.Count]string          `msgpack:"slot_names" json:"slot_names"`
	Slots                   [feedslot.Count]feedslot.Packed `msgpack:"slots" json:"-"`
}

// Defaults returns the compiled-in configuration.
func Defaults() Config {
	return Config{
		LightsOnMinutes:         6 * 60,
		LightsOffMinutes:        22 * 60,
		BaselineX:               6,
		BaselineY:               2,
		BaselineDelayMinutes:    30,
		MoistureDry:             800,
		MoistureSoaked:          300,
		SnapshotIntervalMinutes: 60,
	}
}

// FeedingDisabled reports whether automatic feeding is switched off.
func (c *Config) FeedingDisabled() bool {
	return c.Flags&FlagFeedingDisabled != 0
}

// SetFeedingDisabled sets or clears the disabled flag.
func (c *Config) SetFeedingDisabled(disabled bool) {
	if disabled {
		c.Flags |= FlagFeedingDisabled
	} else {
		c.Flags &^= FlagFeedingDisabled
	}
}

// DripperCalibrated reports whether DripperMsPerLiter was measured.
func (c *Config) DripperCalibrated() bool {
	return c.Flags&FlagDripperCalibrated != 0
}

// SetDripperCalibration stores a measured calibration and marks the dripper
// calibrated. A zero value clears the flag.
func (c *Config) SetDripperCalibration(msPerLiter uint32) {
	c.DripperMsPerLiter = msPerLiter
	if msPerLiter > 0 {
		c.Flags |= FlagDripperCalibrated
	} else {
		c.Flags &^= FlagDripperCalibrated
	}
}

// Slot unpacks slot i. Out-of-range indexes return a zero slot.
func (c *Config) Slot(i int) feedslot.FeedSlot {
	if i < 0 || i >= feedslot.Count {
		return feedslot.FeedSlot{}
	}
	return feedslot.Unpack(c.Slots[i])
}

// SetSlot packs s into slot i.
func (c *Config) SetSlot(i int, s feedslot.FeedSlot) {
	if i < 0 || i >= feedslot.Count {
		return
	}
	c.Slots[i] = feedslot.Pack(s)
}
