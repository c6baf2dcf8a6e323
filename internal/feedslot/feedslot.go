// Package feedslot defines watering rules and their packed 12-byte form as
// stored in the configuration block.
package feedslot

import (
	"errors"
	"fmt"
)

// PackedSize is the size of a packed slot in bytes.
const PackedSize = 12

// Count is the number of slots held by the configuration block.
const Count = 8

// BaselineSentinel in MoistureBelow or MoistureTarget means "derive the
// threshold from the current baseline".
const BaselineSentinel = 127

// TickSeconds is the unit of the runtime, hold and pulse fields.
const TickSeconds = 5

// ErrBufferSize is returned by Unpack for buffers of the wrong length.
var ErrBufferSize = errors.New("feedslot: packed buffer must be 12 bytes")

// Flags is the slot flag bit set.
type Flags uint16

const (
	Enabled Flags = 1 << iota
	TimeWindow
	MoistureBelow
	MoistureTarget
	BaselineSetter
	RunoffRequired
	RunoffAvoid
	WeightBelow
	WeightTarget
	AbsoluteTime
)

// FeedSlot is one watering rule in its unpacked form.
type FeedSlot struct {
	Flags                 Flags  `json:"flags"`
	WindowStartMinutes    uint16 `json:"window_start_minutes"`
	WindowDurationMinutes uint16 `json:"window_duration_minutes"`
	MoistureBelow         uint8  `json:"moisture_below"`
	MoistureTarget        uint8  `json:"moisture_target"`
	MinGapMinutes         uint16 `json:"min_gap_minutes"`
	MaxVolumeMl           uint16 `json:"max_volume_ml"`
	RunoffHold5s          uint8  `json:"runoff_hold_5s"`
	MinRuntime5s          uint8  `json:"min_runtime_5s"`
	MaxRuntime5s          uint8  `json:"max_runtime_5s"`
	PulseOn5s             uint8  `json:"pulse_on_5s"`
	PulseOff5s            uint8  `json:"pulse_off_5s"`
}

// Packed is the on-disk form of a FeedSlot.
type Packed [PackedSize]byte

// Has reports whether every flag in f is set.
func (s *FeedSlot) Has(f Flags) bool {
	return s.Flags&f == f
}

// Set sets or clears the flags in f.
func (s *FeedSlot) Set(f Flags, on bool) {
	if on {
		s.Flags |= f
	} else {
		s.Flags &^= f
	}
}

// HasStartCondition reports whether any start trigger is configured.
func (s *FeedSlot) HasStartCondition() bool {
	return s.Flags&(TimeWindow|MoistureBelow|WeightBelow) != 0
}

// Pulsed reports whether the slot carries its own pulse timing.
func (s *FeedSlot) Pulsed() bool {
	return s.PulseOn5s > 0 && s.PulseOff5s > 0
}

// Validate rejects slots whose values do not survive packing or whose time
// window does not fit in a day.
func (s *FeedSlot) Validate() error {
	lim := Limits()
	switch {
	case s.Flags > lim.Flags:
		return fmt.Errorf("feedslot: unknown flags %#x", uint16(s.Flags&^lim.Flags))
	case s.WindowStartMinutes >= 1440:
		return fmt.Errorf("feedslot: window start %d outside the day", s.WindowStartMinutes)
	case s.WindowDurationMinutes >= 1440:
		return fmt.Errorf("feedslot: window duration %d exceeds a day", s.WindowDurationMinutes)
	case s.MoistureBelow > lim.MoistureBelow, s.MoistureTarget > lim.MoistureTarget:
		return fmt.Errorf("feedslot: moisture threshold above %d", lim.MoistureBelow)
	case s.MinGapMinutes > lim.MinGapMinutes:
		return fmt.Errorf("feedslot: min gap above %d minutes", lim.MinGapMinutes)
	case s.MaxVolumeMl > lim.MaxVolumeMl:
		return fmt.Errorf("feedslot: max volume above %d ml", lim.MaxVolumeMl)
	case s.RunoffHold5s > lim.RunoffHold5s, s.MinRuntime5s > lim.MinRuntime5s,
		s.MaxRuntime5s > lim.MaxRuntime5s, s.PulseOn5s > lim.PulseOn5s, s.PulseOff5s > lim.PulseOff5s:
		return fmt.Errorf("feedslot: timing field out of range")
	}
	return nil
}
