package eventlog

import (
	"encoding/binary"

	"github.com/ambience-earth/ambience/internal/bitpack"
	"github.com/ambience-earth/ambience/internal/rtc"
)

// EntrySize is the on-disk size of one record.
const EntrySize = 32

// baselineOffset is the byte offset of BaselinePercent inside a record. It
// is byte aligned so a patch touches a single byte.
const baselineOffset = 2

// packedBase is the first bit after seq and baseline.
const packedBase = 24

type dateFields struct {
	year, month, day, hour, minute bitpack.Field
}

func newDateFields(offset uint) (dateFields, uint) {
	d := dateFields{
		year:   bitpack.Field{Offset: offset, Width: 7},
		month:  bitpack.Field{Offset: offset + 7, Width: 4},
		day:    bitpack.Field{Offset: offset + 11, Width: 5},
		hour:   bitpack.Field{Offset: offset + 16, Width: 5},
		minute: bitpack.Field{Offset: offset + 21, Width: 6},
	}
	return d, offset + 27
}

func (d dateFields) put(buf []byte, dt rtc.DateTime) {
	d.year.Put(buf, uint32(dt.Year))
	d.month.Put(buf, uint32(dt.Month))
	d.day.Put(buf, uint32(dt.Day))
	d.hour.Put(buf, uint32(dt.Hour))
	d.minute.Put(buf, uint32(dt.Minute))
}

func (d dateFields) get(buf []byte) rtc.DateTime {
	return rtc.DateTime{
		Year:   uint8(d.year.Get(buf)),
		Month:  uint8(d.month.Get(buf)),
		Day:    uint8(d.day.Get(buf)),
		Hour:   uint8(d.hour.Get(buf)),
		Minute: uint8(d.minute.Get(buf)),
	}
}

var (
	fieldType         = bitpack.Field{Offset: packedBase, Width: 2}
	fieldStopReason   = bitpack.Field{Offset: packedBase + 2, Width: 4}
	fieldStartReason  = bitpack.Field{Offset: packedBase + 6, Width: 3}
	fieldSlotIndex    = bitpack.Field{Offset: packedBase + 9, Width: 4}
	fieldFlags        = bitpack.Field{Offset: packedBase + 13, Width: 6}
	fieldSoilBefore   = bitpack.Field{Offset: packedBase + 19, Width: 7}
	fieldSoilAfter    = bitpack.Field{Offset: packedBase + 26, Width: 7}
	fieldDryback      = bitpack.Field{Offset: packedBase + 33, Width: 7}
	fieldFeedMl       = bitpack.Field{Offset: packedBase + 40, Width: 16}
	fieldDailyTotalMl = bitpack.Field{Offset: packedBase + 56, Width: 16}
	fieldLightDayKey  = bitpack.Field{Offset: packedBase + 72, Width: 16}

	startDate, startDateEnd = newDateFields(packedBase + 88)
	endDate, endDateEnd     = newDateFields(startDateEnd)

	fieldMillisStart = bitpack.Field{Offset: endDateEnd, Width: 32}
	fieldMillisEnd   = bitpack.Field{Offset: endDateEnd + 32, Width: 32}
)

// Encode writes e into a fresh record buffer.
func Encode(e Entry) [EntrySize]byte {
	var rec [EntrySize]byte
	buf := rec[:]
	binary.LittleEndian.PutUint16(buf[0:2], e.Seq)
	buf[baselineOffset] = e.BaselinePercent

	fieldType.Put(buf, uint32(e.Type))
	fieldStopReason.Put(buf, uint32(e.StopReason))
	fieldStartReason.Put(buf, uint32(e.StartReason))
	fieldSlotIndex.Put(buf, uint32(e.SlotIndex))
	fieldFlags.Put(buf, uint32(e.Flags))
	fieldSoilBefore.Put(buf, uint32(e.SoilBefore))
	fieldSoilAfter.Put(buf, uint32(e.SoilAfter))
	fieldDryback.Put(buf, uint32(e.DrybackPercent))
	fieldFeedMl.Put(buf, uint32(e.FeedMl))
	fieldDailyTotalMl.Put(buf, uint32(e.DailyTotalMl))
	fieldLightDayKey.Put(buf, uint32(e.LightDayKey))
	startDate.put(buf, e.Start)
	endDate.put(buf, e.End)
	fieldMillisStart.Put(buf, e.MillisStart)
	fieldMillisEnd.Put(buf, e.MillisEnd)
	return rec
}

// Decode parses a record. A record whose seq is 0 decodes to the empty
// Entry regardless of its other bytes.
func Decode(buf []byte) Entry {
	if len(buf) < EntrySize {
		return Entry{}
	}
	seq := binary.LittleEndian.Uint16(buf[0:2])
	if seq == 0 {
		return Entry{}
	}
	return Entry{
		Seq:             seq,
		BaselinePercent: buf[baselineOffset],
		Type:            EntryType(fieldType.Get(buf)),
		StopReason:      StopReason(fieldStopReason.Get(buf)),
		StartReason:     StartReason(fieldStartReason.Get(buf)),
		SlotIndex:       uint8(fieldSlotIndex.Get(buf)),
		Flags:           Flags(fieldFlags.Get(buf)),
		SoilBefore:      uint8(fieldSoilBefore.Get(buf)),
		SoilAfter:       uint8(fieldSoilAfter.Get(buf)),
		DrybackPercent:  uint8(fieldDryback.Get(buf)),
		FeedMl:          uint16(fieldFeedMl.Get(buf)),
		DailyTotalMl:    uint16(fieldDailyTotalMl.Get(buf)),
		LightDayKey:     uint16(fieldLightDayKey.Get(buf)),
		Start:           startDate.get(buf),
		End:             endDate.get(buf),
		MillisStart:     fieldMillisStart.Get(buf),
		MillisEnd:       fieldMillisEnd.Get(buf),
	}
}
