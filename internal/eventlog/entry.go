// Package eventlog is an append-only circular store of fixed-size event
// records in byte-addressable storage. A small ring of (seq, slot) head
// records lets a restart find the newest record without scanning every slot.
package eventlog

import "github.com/ambience-earth/ambience/internal/rtc"

// EntryType distinguishes log records.
type EntryType uint8

const (
	TypeBoot EntryType = iota
	TypeFeed
	TypeValuesSnapshot
)

func (t EntryType) String() string {
	switch t {
	case TypeBoot:
		return "boot"
	case TypeFeed:
		return "feed"
	case TypeValuesSnapshot:
		return "snapshot"
	}
	return "unknown"
}

// StopReason records why a feed ended, or why it was refused.
type StopReason uint8

const (
	StopNone StopReason = iota
	StopMoisture
	StopRunoff
	StopMaxRuntime
	StopDisabled
	StopUiPause
	StopMaxDailyFeedReached
	StopNotCalibrated
	StopMaxVolume
	StopWeightTarget
)

var stopReasonNames = [...]string{
	StopNone:                "none",
	StopMoisture:            "moisture",
	StopRunoff:              "runoff",
	StopMaxRuntime:          "max_runtime",
	StopDisabled:            "disabled",
	StopUiPause:             "ui_pause",
	StopMaxDailyFeedReached: "max_daily",
	StopNotCalibrated:       "not_calibrated",
	StopMaxVolume:           "max_volume",
	StopWeightTarget:        "weight_target",
}

func (r StopReason) String() string {
	if int(r) < len(stopReasonNames) {
		return stopReasonNames[r]
	}
	return "unknown"
}

// StartReason records what started a feed.
type StartReason uint8

const (
	StartNone StartReason = iota
	StartTime
	StartMoisture
	StartUser
	StartWeight
)

func (r StartReason) String() string {
	switch r {
	case StartNone:
		return "none"
	case StartTime:
		return "time"
	case StartMoisture:
		return "moisture"
	case StartUser:
		return "user"
	case StartWeight:
		return "weight"
	}
	return "unknown"
}

// Flags annotate a feed record.
type Flags uint8

const (
	FlagRunoffMissing Flags = 1 << iota
	FlagRunoffUnexpected
	FlagBaselineSetter
	FlagRunoffSeen
	FlagPulsed
)

// FlagRunoffAny covers both runoff expectation violations.
const FlagRunoffAny = FlagRunoffMissing | FlagRunoffUnexpected

// BaselineUnset marks a record whose baseline has not been computed.
const BaselineUnset = 0xFF

// DrybackUnset marks a record without a dryback value.
const DrybackUnset = 0x7F

// Entry is one log record. Seq 0 means the slot is empty.
type Entry struct {
	Seq             uint16       `json:"seq"`
	Type            EntryType    `json:"type"`
	StopReason      StopReason   `json:"stop_reason"`
	StartReason     StartReason  `json:"start_reason"`
	SlotIndex       uint8        `json:"slot_index"`
	Flags           Flags        `json:"flags"`
	SoilBefore      uint8        `json:"soil_before"`
	SoilAfter       uint8        `json:"soil_after"`
	BaselinePercent uint8        `json:"baseline_percent"`
	DrybackPercent  uint8        `json:"dryback_percent"`
	FeedMl          uint16       `json:"feed_ml"`
	DailyTotalMl    uint16       `json:"daily_total_ml"`
	LightDayKey     uint16       `json:"light_day_key"`
	Start           rtc.DateTime `json:"start"`
	End             rtc.DateTime `json:"end"`
	MillisStart     uint32       `json:"millis_start"`
	MillisEnd       uint32       `json:"millis_end"`
}

// NewEntry returns an entry of type t with the derived fields unset.
func NewEntry(t EntryType) Entry {
	return Entry{
		Type:            t,
		BaselinePercent: BaselineUnset,
		DrybackPercent:  DrybackUnset,
	}
}

// Empty reports whether e represents an unwritten slot.
func (e Entry) Empty() bool {
	return e.Seq == 0
}

// Has reports whether every flag in f is set.
func (e Entry) Has(f Flags) bool {
	return e.Flags&f == f
}

// HasBaseline reports whether a baseline has been recorded.
func (e Entry) HasBaseline() bool {
	return e.BaselinePercent != BaselineUnset
}

// IsRefusal reports whether e records a feed that was refused before the
// pump opened.
func (e Entry) IsRefusal() bool {
	if e.Type != TypeFeed || e.FeedMl != 0 || e.MillisStart != e.MillisEnd {
		return false
	}
	return e.StopReason == StopNotCalibrated || e.StopReason == StopMaxDailyFeedReached
}

// IsBaselineCandidate reports whether e is a baseline-setter feed that saw
// runoff.
func (e Entry) IsBaselineCandidate() bool {
	return e.Type == TypeFeed && e.Has(FlagBaselineSetter|FlagRunoffSeen)
}

// DurationMs returns the session length in milliseconds.
func (e Entry) DurationMs() uint32 {
	return e.MillisEnd - e.MillisStart
}

// stampDate is the date the light-day key is derived from: the end of a
// feed when known, otherwise the start.
func (e Entry) stampDate() rtc.DateTime {
	if e.Type == TypeFeed && e.End.Valid() {
		return e.End
	}
	return e.Start
}

// IsLater reports whether sequence a was written after b, treating the
// 16-bit sequence space as circular.
func IsLater(a, b uint16) bool {
	return int16(a-b) > 0
}

// nextSeq returns the sequence following s, skipping the reserved 0.
func nextSeq(s uint16) (next uint16, wrapped bool) {
	next = s + 1
	if next == 0 {
		return 1, true
	}
	return next, false
}
