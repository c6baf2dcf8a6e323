package eventlog

import (
	"testing"

	"github.com/ambience-earth/ambience/internal/rtc"
)

func feedOn(day rtc.DateTime, ml uint16) Entry {
	e := NewEntry(TypeFeed)
	e.Start, e.End = day, day
	e.FeedMl = ml
	return e
}

func snapshotOn(day rtc.DateTime, percent uint8) Entry {
	e := NewEntry(TypeValuesSnapshot)
	e.Start = day
	e.SoilBefore = percent
	return e
}

func TestDailyTotalRangeBoundary(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLightsOn(6 * 60)

	dayK := rtc.DateTime{Year: 25, Month: 4, Day: 2, Hour: 9}
	dayKLate := rtc.DateTime{Year: 25, Month: 4, Day: 3, Hour: 5} // before lights-on: still day K
	dayK1 := rtc.DateTime{Year: 25, Month: 4, Day: 3, Hour: 7}

	for _, e := range []Entry{
		snapshotOn(dayK, 40),
		feedOn(dayK, 300),
		snapshotOn(dayK, 62),
		feedOn(dayKLate, 200),
		snapshotOn(dayK1, 35),
		feedOn(dayK1, 200),
		snapshotOn(dayK1, 58),
	} {
		if _, err := s.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	keyK := rtc.LightDayKey(dayK, 360)
	keyK1 := rtc.LightDayKey(dayK1, 360)

	tests := []struct {
		name  string
		key   uint16
		total uint16
		feeds int
		min   uint8
		max   uint8
	}{
		{name: "current day only", key: keyK1, total: 200, feeds: 1, min: 35, max: 58},
		{name: "previous day", key: keyK, total: 500, feeds: 2, min: 40, max: 62},
		{name: "future day", key: keyK1 + 1, total: 0, feeds: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.DailyTotalRange(tt.key)
			if got.TotalMl != tt.total || got.Feeds != tt.feeds {
				t.Errorf("total %d ml over %d feeds, expected %d over %d", got.TotalMl, got.Feeds, tt.total, tt.feeds)
			}
			if tt.feeds > 0 && (got.MinPercent != tt.min || got.MaxPercent != tt.max) {
				t.Errorf("range %d..%d, expected %d..%d", got.MinPercent, got.MaxPercent, tt.min, tt.max)
			}
		})
	}
}

func TestDailyTotalSaturates(t *testing.T) {
	s, _ := newTestStore(t)
	day := rtc.DateTime{Year: 25, Month: 1, Day: 5, Hour: 12}
	for i := 0; i < 3; i++ {
		s.Append(feedOn(day, 30000))
	}
	if got := s.DailyTotalRange(rtc.LightDayKey(day, 0)); got.TotalMl != 0xFFFF {
		t.Errorf("total %d, expected saturation", got.TotalMl)
	}
}

func TestFindLatestBaselineEntries(t *testing.T) {
	s, _ := newTestStore(t)
	day := rtc.DateTime{Year: 25, Month: 1, Day: 5, Hour: 12}

	withBaseline := feedOn(day, 100)
	withBaseline.Flags = FlagBaselineSetter | FlagRunoffSeen
	withBaseline.BaselinePercent = 52
	s.Append(withBaseline)
	baselineSlot := s.LatestSlot()

	setter := feedOn(day, 120)
	setter.Flags = FlagBaselineSetter | FlagRunoffSeen
	s.Append(setter)
	setterSlot := s.LatestSlot()

	noRunoff := feedOn(day, 80)
	noRunoff.Flags = FlagBaselineSetter
	s.Append(noRunoff)
	s.Append(snapshotOn(day, 50))

	got := s.FindLatestBaselineEntries()
	if got.SetterSlot != setterSlot || got.Setter.FeedMl != 120 {
		t.Errorf("setter slot %d, expected %d", got.SetterSlot, setterSlot)
	}
	if got.WithBaselineSlot != baselineSlot || got.WithBaseline.BaselinePercent != 52 {
		t.Errorf("baseline slot %d, expected %d", got.WithBaselineSlot, baselineSlot)
	}
	if got.LatestFeed.FeedMl != 80 {
		t.Errorf("latest feed %d ml, expected 80", got.LatestFeed.FeedMl)
	}

	empty, _ := newTestStore(t)
	none := empty.FindLatestBaselineEntries()
	if none.SetterSlot != -1 || none.WithBaselineSlot != -1 || none.LatestFeedSlot != -1 {
		t.Errorf("empty store returned %+v", none)
	}
}

func TestFindLatestBaselineEntriesSkipsRefusals(t *testing.T) {
	s, _ := newTestStore(t)
	day := rtc.DateTime{Year: 25, Month: 1, Day: 5, Hour: 12}

	s.Append(feedOn(day, 150))
	feedSlot := s.LatestSlot()
	refusal := feedOn(day, 0)
	refusal.StopReason = StopMaxDailyFeedReached
	s.Append(refusal)

	got := s.FindLatestBaselineEntries()
	if got.LatestFeedSlot != feedSlot || got.LatestFeed.FeedMl != 150 {
		t.Errorf("latest feed slot %d with %d ml, expected slot %d with 150 ml", got.LatestFeedSlot, got.LatestFeed.FeedMl, feedSlot)
	}
}

func TestTimeTriggeredSlots(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLightsOn(6 * 60)
	yesterday := rtc.DateTime{Year: 25, Month: 4, Day: 1, Hour: 9}
	today := rtc.DateTime{Year: 25, Month: 4, Day: 2, Hour: 9}

	timed := func(day rtc.DateTime, slot uint8, ml uint16) Entry {
		e := feedOn(day, ml)
		e.StartReason = StartTime
		e.SlotIndex = slot
		return e
	}
	refused := timed(today, 3, 0)
	refused.StopReason = StopNotCalibrated
	moisture := feedOn(today, 90)
	moisture.StartReason = StartMoisture
	moisture.SlotIndex = 4

	for _, e := range []Entry{
		timed(yesterday, 1, 100),
		timed(today, 2, 100),
		refused,
		moisture,
		timed(today, 2, 100),
		NewEntry(TypeBoot),
	} {
		if _, err := s.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	got := s.TimeTriggeredSlots(rtc.LightDayKey(today, 360))
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("time-triggered slots %v, expected [2]", got)
	}
	if got := s.TimeTriggeredSlots(0); got != nil {
		t.Errorf("key 0 returned %v", got)
	}
}

func TestRecent(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 5)
	got := s.Recent(3)
	if len(got) != 3 || got[0].Seq != 5 || got[2].Seq != 3 {
		t.Errorf("unexpected recent entries %+v", got)
	}
	if all := s.Recent(50); len(all) != 5 {
		t.Errorf("got %d entries, expected 5", len(all))
	}
}

func TestDailyTotalRangeAcrossUndatedEntries(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLightsOn(6 * 60)

	day := rtc.DateTime{Year: 25, Month: 4, Day: 2, Hour: 9}
	key := rtc.LightDayKey(day, 360)

	undated := NewEntry(TypeValuesSnapshot)
	undated.SoilBefore = 44
	for _, e := range []Entry{
		feedOn(day, 250),
		undated,
		feedOn(day, 250),
		undated,
	} {
		if _, err := s.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	if latest, _ := s.Latest(); latest.LightDayKey != key {
		t.Fatalf("undated entry stamped with key %d, expected %d", latest.LightDayKey, key)
	}
	got := s.DailyTotalRange(key)
	if got.TotalMl != 500 || got.Feeds != 2 {
		t.Errorf("total %d ml over %d feeds, expected 500 over 2", got.TotalMl, got.Feeds)
	}
	if !got.HasSnapshots || got.MinPercent != 44 || got.MaxPercent != 44 {
		t.Errorf("range %+v, expected the undated snapshots at 44%%", got)
	}

	// a record that carries no day at all is stepped over
	rec := Encode(Entry{Seq: 2, Type: TypeValuesSnapshot, BaselinePercent: BaselineUnset, DrybackPercent: DrybackUnset})
	if _, err := s.region.WriteAt(rec[:], s.slotOffset(1)); err != nil {
		t.Fatal(err)
	}
	got = s.DailyTotalRange(key)
	if got.TotalMl != 500 || got.Feeds != 2 {
		t.Errorf("key-0 record cut the scan short: %d ml over %d feeds", got.TotalMl, got.Feeds)
	}
}
