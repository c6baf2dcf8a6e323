package feedslot

import (
	"math/rand"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		slot FeedSlot
	}{
		{name: "zero slot", slot: FeedSlot{}},
		{name: "limits", slot: Limits()},
		{
			name: "typical morning feed",
			slot: FeedSlot{
				Flags:                 Enabled | TimeWindow | MoistureTarget | RunoffRequired | BaselineSetter,
				WindowStartMinutes:    60,
				WindowDurationMinutes: 30,
				MoistureTarget:        BaselineSentinel,
				MinGapMinutes:         120,
				MaxVolumeMl:           750,
				RunoffHold5s:          2,
				MinRuntime5s:          6,
				MaxRuntime5s:          120,
				PulseOn5s:             3,
				PulseOff5s:            6,
			},
		},
		{
			name: "moisture triggered",
			slot: FeedSlot{
				Flags:          Enabled | MoistureBelow | MoistureTarget | AbsoluteTime,
				MoistureBelow:  35,
				MoistureTarget: 55,
				MaxVolumeMl:    8191,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unpack(Pack(tt.slot))
			if got != tt.slot {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, tt.slot)
			}
		})
	}
}

func TestRoundTripRandomWithinWidths(t *testing.T) {
	lim := Limits()
	rng := rand.New(rand.NewSource(42))
	pick := func(max int) int { return rng.Intn(max + 1) }

	for i := 0; i < 2000; i++ {
		s := FeedSlot{
			Flags:                 Flags(pick(int(lim.Flags))),
			WindowStartMinutes:    uint16(pick(int(lim.WindowStartMinutes))),
			WindowDurationMinutes: uint16(pick(int(lim.WindowDurationMinutes))),
			MoistureBelow:         uint8(pick(int(lim.MoistureBelow))),
			MoistureTarget:        uint8(pick(int(lim.MoistureTarget))),
			MinGapMinutes:         uint16(pick(int(lim.MinGapMinutes))),
			MaxVolumeMl:           uint16(pick(int(lim.MaxVolumeMl))),
			RunoffHold5s:          uint8(pick(int(lim.RunoffHold5s))),
			MinRuntime5s:          uint8(pick(int(lim.MinRuntime5s))),
			MaxRuntime5s:          uint8(pick(int(lim.MaxRuntime5s))),
			PulseOn5s:             uint8(pick(int(lim.PulseOn5s))),
			PulseOff5s:            uint8(pick(int(lim.PulseOff5s))),
		}
		if got := Unpack(Pack(s)); got != s {
			t.Fatalf("iteration %d: got %+v, want %+v", i, got, s)
		}
	}
}

func TestPackedLayoutIsStable(t *testing.T) {
	p := Pack(FeedSlot{Flags: Enabled, WindowStartMinutes: 1})
	// Enabled is bit 0; window start begins at bit 10.
	if p[0] != 0x01 || p[1] != 0x04 {
		t.Errorf("unexpected packed prefix % x", p[:2])
	}
	for i := 2; i < PackedSize; i++ {
		if p[i] != 0 {
			t.Errorf("byte %d = %#x, expected zero", i, p[i])
		}
	}
}

func TestUnpackBytes(t *testing.T) {
	if _, err := UnpackBytes(make([]byte, 11)); err != ErrBufferSize {
		t.Errorf("expected ErrBufferSize, got %v", err)
	}
	want := FeedSlot{Flags: Enabled | WeightBelow, MaxVolumeMl: 300}
	p := Pack(want)
	got, err := UnpackBytes(p[:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		slot    FeedSlot
		wantErr bool
	}{
		{name: "valid", slot: FeedSlot{Flags: Enabled | TimeWindow, WindowStartMinutes: 1439}},
		{name: "window start past midnight", slot: FeedSlot{WindowStartMinutes: 1440}, wantErr: true},
		{name: "moisture too large", slot: FeedSlot{MoistureTarget: 128}, wantErr: true},
		{name: "volume too large", slot: FeedSlot{MaxVolumeMl: 8192}, wantErr: true},
		{name: "pulse off too large", slot: FeedSlot{PulseOff5s: 32}, wantErr: true},
		{name: "unknown flag", slot: FeedSlot{Flags: 1 << 12}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slot.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFlagHelpers(t *testing.T) {
	var s FeedSlot
	if s.HasStartCondition() {
		t.Error("empty slot should have no start condition")
	}
	s.Set(Enabled|MoistureBelow, true)
	if !s.Has(Enabled) || !s.HasStartCondition() {
		t.Error("flags not set")
	}
	s.Set(MoistureBelow, false)
	if s.Has(MoistureBelow) || !s.Has(Enabled) {
		t.Error("clearing one flag affected another")
	}
	s.PulseOn5s, s.PulseOff5s = 1, 0
	if s.Pulsed() {
		t.Error("pulse needs both on and off durations")
	}
}
