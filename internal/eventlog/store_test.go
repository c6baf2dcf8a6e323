package eventlog

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ambience-earth/ambience/internal/region"
	"github.com/ambience-earth/ambience/internal/rtc"
)

var testLayout = Layout{RingRecords: 10, Slots: 100}

func newTestStore(t *testing.T) (*Store, *region.Memory) {
	t.Helper()
	mem := region.NewMemory(int(testLayout.Bytes()))
	s, err := OpenWithLayout(mem, testLayout)
	if err != nil {
		t.Fatalf("OpenWithLayout: %v", err)
	}
	return s, mem
}

func appendN(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e := NewEntry(TypeValuesSnapshot)
		e.SoilBefore = uint8(i % 100)
		if _, err := s.Append(e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestIsLater(t *testing.T) {
	tests := []struct {
		a, b     uint16
		expected bool
	}{
		{a: 0xFFFF, b: 0xFFFE, expected: true},
		{a: 1, b: 0xFFFF, expected: true},
		{a: 2, b: 1, expected: true},
		{a: 0xFFFE, b: 0xFFFF, expected: false},
		{a: 0xFFFF, b: 1, expected: false},
		{a: 1, b: 2, expected: false},
		{a: 7, b: 7, expected: false},
	}

	for _, tt := range tests {
		if got := IsLater(tt.a, tt.b); got != tt.expected {
			t.Errorf("IsLater(%#x, %#x) = %v, expected %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestDefaultLayout(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		want    Layout
		wantErr bool
	}{
		{name: "typical", size: 32 * 1024, want: Layout{RingRecords: 409, Slots: 972}},
		{name: "tiny keeps one ring record", size: 3 + 4 + 32, want: Layout{RingRecords: 1, Slots: 1}},
		{name: "too small", size: 20, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultLayout(tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("DefaultLayout(%d) = %+v, expected %+v", tt.size, got, tt.want)
			}
			if err == nil && got.Bytes() > tt.size {
				t.Errorf("layout needs %d bytes of %d", got.Bytes(), tt.size)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := Entry{
		Seq:             0xBEEF,
		Type:            TypeFeed,
		StopReason:      StopWeightTarget,
		StartReason:     StartWeight,
		SlotIndex:       7,
		Flags:           FlagBaselineSetter | FlagRunoffSeen | FlagPulsed,
		SoilBefore:      41,
		SoilAfter:       100,
		BaselinePercent: 55,
		DrybackPercent:  12,
		FeedMl:          65535,
		DailyTotalMl:    1234,
		LightDayKey:     37231,
		Start:           rtc.DateTime{Year: 99, Month: 12, Day: 31, Hour: 23, Minute: 59},
		End:             rtc.DateTime{Year: 1, Month: 1, Day: 1},
		MillisStart:     0xFFFFFFFF,
		MillisEnd:       42,
	}
	rec := Encode(e)
	if got := Decode(rec[:]); got != e {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, e)
	}

	var zero [EntrySize]byte
	zero[5] = 0xFF
	if !Decode(zero[:]).Empty() {
		t.Error("record with seq 0 should decode as empty")
	}
}

func TestSequenceMonotonicUnderWrap(t *testing.T) {
	s, mem := newTestStore(t)

	var expected uint16
	for i := 0; i < 70000; i++ {
		e, err := s.Append(NewEntry(TypeValuesSnapshot))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		expected, _ = nextSeq(expected)
		if e.Seq != expected {
			t.Fatalf("append %d: seq %d, expected %d", i, e.Seq, expected)
		}
		latest, ok := s.Latest()
		if !ok || latest.Seq != expected {
			t.Fatalf("append %d: latest seq %d, expected %d", i, latest.Seq, expected)
		}
		if i > 0 {
			prev := s.readSlot(s.prevSlot(s.LatestSlot()))
			if prev.Seq == latest.Seq || !IsLater(latest.Seq, prev.Seq) {
				t.Fatalf("append %d: previous slot seq %d not earlier than latest %d", i, prev.Seq, latest.Seq)
			}
		}
	}
	if s.Epoch() != 1 {
		t.Errorf("epoch = %d, expected 1", s.Epoch())
	}

	// no two slots hold the same sequence number
	seen := make(map[uint16]int)
	for slot := 0; slot < testLayout.Slots; slot++ {
		e := s.readSlot(slot)
		if other, dup := seen[e.Seq]; dup {
			t.Fatalf("slots %d and %d both hold seq %d", other, slot, e.Seq)
		}
		seen[e.Seq] = slot
	}

	reopened, err := OpenWithLayout(mem, testLayout)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ := reopened.Latest()
	if got.Seq != expected || reopened.Epoch() != 1 {
		t.Errorf("after restart latest seq %d epoch %d, expected %d epoch 1", got.Seq, reopened.Epoch(), expected)
	}
}

func TestHeadRingRestartRecovery(t *testing.T) {
	for _, n := range []int{1, 9, 10, 11, 257} {
		mem := region.NewMemory(int(testLayout.Bytes()))
		s, err := OpenWithLayout(mem, testLayout)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		appendN(t, s, n)
		before, _ := s.Latest()

		counting := region.NewCounting(mem)
		reopened, err := OpenWithLayout(counting, testLayout)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		after, ok := reopened.Latest()
		if !ok || after != before {
			t.Errorf("n=%d: latest after restart %+v, expected %+v", n, after, before)
		}
		if reopened.LatestSlot() != s.LatestSlot() {
			t.Errorf("n=%d: latest slot %d, expected %d", n, reopened.LatestSlot(), s.LatestSlot())
		}
		// metadata + every ring record + the newest slot + one look-ahead slot
		if limit := int64(testLayout.RingRecords + 3); counting.Reads() > limit {
			t.Errorf("n=%d: restart issued %d reads, expected at most %d", n, counting.Reads(), limit)
		}
	}
}

func TestRestartRecoversWriteMissingFromRing(t *testing.T) {
	s, mem := newTestStore(t)
	appendN(t, s, 25)
	want, _ := s.Latest()

	// drop the ring record of the newest write
	var rec [headRecordSize]byte
	off := int64(metaSize + s.ringHead*headRecordSize)
	if _, err := mem.WriteAt(rec[:], off); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenWithLayout(mem, testLayout)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ := reopened.Latest()
	if got.Seq != want.Seq {
		t.Errorf("latest seq %d, expected %d", got.Seq, want.Seq)
	}
	next, err := reopened.Append(NewEntry(TypeBoot))
	if err != nil {
		t.Fatal(err)
	}
	if next.Seq != want.Seq+1 {
		t.Errorf("next seq %d, expected %d", next.Seq, want.Seq+1)
	}
}

func TestVersionMismatchWipes(t *testing.T) {
	s, mem := newTestStore(t)
	appendN(t, s, 5)

	if _, err := mem.WriteAt([]byte{FormatVersion + 1}, versionOffset); err != nil {
		t.Fatal(err)
	}
	reopened, err := OpenWithLayout(mem, testLayout)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := reopened.Latest(); ok {
		t.Error("store should be empty after a version mismatch")
	}
	if got := mem.Bytes()[versionOffset]; got != FormatVersion {
		t.Errorf("version byte = %d, expected %d", got, FormatVersion)
	}
	e, _ := reopened.Append(NewEntry(TypeBoot))
	if e.Seq != 1 {
		t.Errorf("first seq after wipe = %d, expected 1", e.Seq)
	}
}

func TestWipeResetsEpoch(t *testing.T) {
	s, mem := newTestStore(t)
	appendN(t, s, 3)
	s.epoch = 9
	if err := s.writeEpoch(); err != nil {
		t.Fatal(err)
	}
	if err := s.Wipe(); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if binary.LittleEndian.Uint16(mem.Bytes()[0:2]) != 0 || s.Epoch() != 0 {
		t.Error("epoch not reset")
	}
	for slot := 0; slot < testLayout.Slots; slot++ {
		if !s.readSlot(slot).Empty() {
			t.Fatalf("slot %d not empty after wipe", slot)
		}
	}
	if _, slot := s.Current(); slot != -1 {
		t.Errorf("cursor slot %d after wipe, expected -1", slot)
	}
}

func TestPatchBaselineIsSingleByteWrite(t *testing.T) {
	mem := region.NewMemory(int(testLayout.Bytes()))
	counting := region.NewCounting(mem)
	s, err := OpenWithLayout(counting, testLayout)
	if err != nil {
		t.Fatal(err)
	}
	feed := NewEntry(TypeFeed)
	feed.FeedMl = 300
	if _, err := s.Append(feed); err != nil {
		t.Fatal(err)
	}
	slot := s.LatestSlot()
	before := s.readSlot(slot)

	counting.Reset()
	if err := s.PatchBaseline(slot, 47); err != nil {
		t.Fatalf("PatchBaseline: %v", err)
	}
	if counting.Writes() != 1 {
		t.Errorf("patch issued %d writes, expected 1", counting.Writes())
	}

	after := s.readSlot(slot)
	before.BaselinePercent = 47
	if after != before {
		t.Errorf("patched record %+v, expected %+v", after, before)
	}
	if latest, _ := s.Latest(); latest.BaselinePercent != 47 {
		t.Error("cached latest entry not updated")
	}

	if err := s.PatchBaseline(testLayout.Slots, 1); !errors.Is(err, ErrBadSlot) {
		t.Errorf("expected ErrBadSlot, got %v", err)
	}
	if err := s.PatchBaseline(slot+1, 1); err == nil {
		t.Error("patching an empty slot should fail")
	}
}

func TestAppendWriteFailure(t *testing.T) {
	mem := region.NewMemory(int(testLayout.Bytes()))
	failing := &region.Failing{Region: mem}
	s, err := OpenWithLayout(failing, testLayout)
	if err != nil {
		t.Fatal(err)
	}
	appendN(t, s, 2)
	before, _ := s.Latest()

	failing.Fail.Store(true)
	if _, err := s.Append(NewEntry(TypeBoot)); err == nil {
		t.Fatal("expected append to fail")
	}
	if after, _ := s.Latest(); after != before {
		t.Error("failed append changed the latest entry")
	}
	// reads fail too: stepping sees empty slots
	if s.StepBackward(false) {
		t.Error("step should fail when storage reads fail")
	}

	failing.Fail.Store(false)
	e, err := s.Append(NewEntry(TypeBoot))
	if err != nil || e.Seq != before.Seq+1 {
		t.Errorf("append after recovery: seq %d err %v", e.Seq, err)
	}
}

func TestAppendStampsLightDayKey(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLightsOn(6 * 60)

	snap := NewEntry(TypeValuesSnapshot)
	snap.Start = rtc.DateTime{Year: 25, Month: 3, Day: 10, Hour: 5}
	got, _ := s.Append(snap)
	if want := rtc.DayKey(25, 3, 9); got.LightDayKey != want {
		t.Errorf("snapshot key %d, expected %d", got.LightDayKey, want)
	}

	feed := NewEntry(TypeFeed)
	feed.Start = rtc.DateTime{Year: 25, Month: 3, Day: 10, Hour: 5, Minute: 58}
	feed.End = rtc.DateTime{Year: 25, Month: 3, Day: 10, Hour: 6, Minute: 2}
	got, _ = s.Append(feed)
	if want := rtc.DayKey(25, 3, 10); got.LightDayKey != want {
		t.Errorf("feed key %d, expected %d (end date)", got.LightDayKey, want)
	}

	got, _ = s.Append(NewEntry(TypeValuesSnapshot))
	if want := rtc.DayKey(25, 3, 10); got.LightDayKey != want {
		t.Errorf("undated snapshot key %d, expected %d (newest record's key)", got.LightDayKey, want)
	}
}
