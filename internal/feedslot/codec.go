package feedslot

import "github.com/ambience-earth/ambience/internal/bitpack"

// Bit layout of a packed slot. Widths are the declared ranges of each field;
// values outside them are truncated by Pack.
var (
	fieldFlags          = bitpack.Field{Offset: 0, Width: 10}
	fieldWindowStart    = bitpack.Field{Offset: 10, Width: 11}
	fieldWindowDuration = bitpack.Field{Offset: 21, Width: 11}
	fieldMoistureBelow  = bitpack.Field{Offset: 32, Width: 7}
	fieldMoistureTarget = bitpack.Field{Offset: 39, Width: 7}
	fieldMinGap         = bitpack.Field{Offset: 46, Width: 12}
	fieldMaxVolume      = bitpack.Field{Offset: 58, Width: 13}
	fieldRunoffHold     = bitpack.Field{Offset: 71, Width: 4}
	fieldMinRuntime     = bitpack.Field{Offset: 75, Width: 5}
	fieldMaxRuntime     = bitpack.Field{Offset: 80, Width: 7}
	fieldPulseOn        = bitpack.Field{Offset: 87, Width: 4}
	fieldPulseOff       = bitpack.Field{Offset: 91, Width: 5}
)

// Pack encodes s. The buffer is zero-filled first.
func Pack(s FeedSlot) Packed {
	var p Packed
	buf := p[:]
	fieldFlags.Put(buf, uint32(s.Flags))
	fieldWindowStart.Put(buf, uint32(s.WindowStartMinutes))
	fieldWindowDuration.Put(buf, uint32(s.WindowDurationMinutes))
	fieldMoistureBelow.Put(buf, uint32(s.MoistureBelow))
	fieldMoistureTarget.Put(buf, uint32(s.MoistureTarget))
	fieldMinGap.Put(buf, uint32(s.MinGapMinutes))
	fieldMaxVolume.Put(buf, uint32(s.MaxVolumeMl))
	fieldRunoffHold.Put(buf, uint32(s.RunoffHold5s))
	fieldMinRuntime.Put(buf, uint32(s.MinRuntime5s))
	fieldMaxRuntime.Put(buf, uint32(s.MaxRuntime5s))
	fieldPulseOn.Put(buf, uint32(s.PulseOn5s))
	fieldPulseOff.Put(buf, uint32(s.PulseOff5s))
	return p
}

// Unpack decodes p.
func Unpack(p Packed) FeedSlot {
	buf := p[:]
	return FeedSlot{
		Flags:                 Flags(fieldFlags.Get(buf)),
		WindowStartMinutes:    uint16(fieldWindowStart.Get(buf)),
		WindowDurationMinutes: uint16(fieldWindowDuration.Get(buf)),
		MoistureBelow:         uint8(fieldMoistureBelow.Get(buf)),
		MoistureTarget:        uint8(fieldMoistureTarget.Get(buf)),
		MinGapMinutes:         uint16(fieldMinGap.Get(buf)),
		MaxVolumeMl:           uint16(fieldMaxVolume.Get(buf)),
		RunoffHold5s:          uint8(fieldRunoffHold.Get(buf)),
		MinRuntime5s:          uint8(fieldMinRuntime.Get(buf)),
		MaxRuntime5s:          uint8(fieldMaxRuntime.Get(buf)),
		PulseOn5s:             uint8(fieldPulseOn.Get(buf)),
		PulseOff5s:            uint8(fieldPulseOff.Get(buf)),
	}
}

// UnpackBytes decodes a packed slot held in a plain byte slice.
func UnpackBytes(b []byte) (FeedSlot, error) {
	if len(b) != PackedSize {
		return FeedSlot{}, ErrBufferSize
	}
	var p Packed
	copy(p[:], b)
	return Unpack(p), nil
}

// Limits returns a slot with every field set to its largest packable value.
func Limits() FeedSlot {
	return FeedSlot{
		Flags:                 Flags(fieldFlags.Max()),
		WindowStartMinutes:    uint16(fieldWindowStart.Max()),
		WindowDurationMinutes: uint16(fieldWindowDuration.Max()),
		MoistureBelow:         uint8(fieldMoistureBelow.Max()),
		MoistureTarget:        uint8(fieldMoistureTarget.Max()),
		MinGapMinutes:         uint16(fieldMinGap.Max()),
		MaxVolumeMl:           uint16(fieldMaxVolume.Max()),
		RunoffHold5s:          uint8(fieldRunoffHold.Max()),
		MinRuntime5s:          uint8(fieldMinRuntime.Max()),
		MaxRuntime5s:          uint8(fieldMaxRuntime.Max()),
		PulseOn5s:             uint8(fieldPulseOn.Max()),
		PulseOff5s:            uint8(fieldPulseOff.Max()),
	}
}
