package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambience-earth/ambience/internal/calibration"
	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/hardware"
	"github.com/ambience-earth/ambience/internal/region"
	"github.com/ambience-earth/ambience/internal/rtc"
	"github.com/ambience-earth/ambience/internal/settings"
	"github.com/ambience-earth/ambience/internal/types"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeRTC struct{ clock *fakeClock }

func (r fakeRTC) ReadDateTime() (rtc.DateTime, error) {
	return rtc.FromTime(r.clock.now), nil
}

type fakeMoisture struct {
	ready bool
	raw   uint16
}

func (m *fakeMoisture) Ready() bool { return m.ready }
func (m *fakeMoisture) Raw() uint16 { return m.raw }

type fixture struct {
	clock    *fakeClock
	moisture *fakeMoisture
	bench    *hardware.Bench
	store    *eventlog.Store
	settings *settings.Store
	events   chan types.Event
	dev      *Device
}

func newFixture(t *testing.T, events int) *fixture {
	t.Helper()
	f := &fixture{
		clock:    &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		moisture: &fakeMoisture{ready: true, raw: 550},
		events:   make(chan types.Event, events),
	}

	hw, bench := hardware.NewBenchSet()
	hw.Moisture = f.moisture
	hw.Clock = f.clock
	hw.RTC = fakeRTC{clock: f.clock}
	f.bench = bench

	var err error
	f.settings, err = settings.Open(region.NewMemory(1024))
	require.NoError(t, err)
	require.NoError(t, f.settings.Update(func(c *settings.Config) { c.SnapshotIntervalMinutes = 0 }))

	layout := eventlog.Layout{RingRecords: 10, Slots: 100}
	f.store, err = eventlog.OpenWithLayout(region.NewMemory(int(layout.Bytes())), layout)
	require.NoError(t, err)

	f.dev = New(hw, f.store, f.settings, Options{ID: "dev-1", Location: time.UTC, Events: f.events}, nil)
	return f
}

func TestNewRecordsBootAndPublishes(t *testing.T) {
	f := newFixture(t, 4)

	latest, ok := f.store.Latest()
	require.True(t, ok)
	assert.Equal(t, eventlog.TypeBoot, latest.Type)

	require.Len(t, f.events, 1)
	ev := <-f.events
	assert.Equal(t, "dev-1", ev.DeviceID)
	assert.Equal(t, "boot", ev.Kind)
	assert.Equal(t, uint32(1), ev.Number)
	assert.Equal(t, f.clock.now, ev.Timestamp)
	assert.NotEmpty(t, ev.BootID)
}

func TestFullEventChannelDoesNotBlock(t *testing.T) {
	f := newFixture(t, 0)

	_, ok := f.store.Latest()
	assert.True(t, ok, "boot entry must be written even when the event is dropped")
}

func TestPutSlot(t *testing.T) {
	f := newFixture(t, 4)

	slot := feedslot.FeedSlot{
		Flags:              feedslot.Enabled | feedslot.TimeWindow | feedslot.RunoffRequired,
		WindowStartMinutes: 60,
		MaxVolumeMl:        400,
	}

	tests := []struct {
		name    string
		index   int
		slot    feedslot.FeedSlot
		wantErr bool
		badSlot bool
	}{
		{name: "negative index", index: -1, slot: slot, wantErr: true, badSlot: true},
		{name: "index past the table", index: feedslot.Count, slot: slot, wantErr: true, badSlot: true},
		{name: "window start outside the day", index: 0, slot: feedslot.FeedSlot{WindowStartMinutes: 1500}, wantErr: true},
		{name: "valid slot", index: 2, slot: slot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.dev.PutSlot(tt.index, tt.slot, "veg")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.badSlot {
				assert.ErrorIs(t, err, ErrBadSlot)
			}
		})
	}

	got, name, err := f.dev.Slot(2)
	require.NoError(t, err)
	assert.Equal(t, slot, got)
	assert.Equal(t, "veg", name)

	slots := f.dev.Slots()
	require.Len(t, slots, feedslot.Count)
	assert.Equal(t, settings.RunoffExpect, slots[2].RunoffExpectation)
	assert.Equal(t, "S3 veg (On)", slots[2].Lines[0])

	cfg := f.dev.Settings()
	assert.Equal(t, slot, cfg.Slot(2))
	assert.Equal(t, "veg", cfg.SlotNames[2])
}

func TestBrowse(t *testing.T) {
	f := newFixture(t, 16)

	for i := 0; i < 3; i++ {
		e := eventlog.NewEntry(eventlog.TypeValuesSnapshot)
		e.SoilBefore = uint8(40 + i)
		_, err := f.store.Append(e)
		require.NoError(t, err)
	}

	v := f.dev.LatestEntry()
	require.False(t, v.Empty)
	assert.Equal(t, uint32(4), v.Number)
	assert.Equal(t, uint8(42), v.Entry.SoilBefore)

	v, moved := f.dev.NextEntry()
	assert.False(t, moved)
	assert.Equal(t, uint32(4), v.Number)

	v, moved = f.dev.PrevEntry()
	assert.True(t, moved)
	assert.Equal(t, uint32(3), v.Number)
	assert.Equal(t, v, f.dev.CurrentEntry())

	for moved {
		v, moved = f.dev.PrevEntry()
	}
	assert.Equal(t, eventlog.TypeBoot, v.Entry.Type)

	recent := f.dev.RecentEntries(2)
	require.Len(t, recent, 2)
	assert.Equal(t, uint16(4), recent[0].Seq)

	require.NoError(t, f.dev.WipeLog())
	assert.True(t, f.dev.LatestEntry().Empty)
}

func TestDailyToday(t *testing.T) {
	f := newFixture(t, 4)

	sum, key, ok := f.dev.Daily(0)
	require.True(t, ok)
	assert.Equal(t, rtc.LightDayKey(rtc.FromTime(f.clock.now), 360), key)
	assert.Equal(t, 0, sum.Feeds)
}

func TestMoistureCalibration(t *testing.T) {
	f := newFixture(t, 4)

	_, err := f.dev.CommitMoistureCalibration(PointDry)
	assert.ErrorIs(t, err, calibration.ErrNotStopped)

	require.NoError(t, f.dev.StartMoistureCalibration())
	assert.Equal(t, "moisture", f.dev.Status().Calibrating)
	for _, raw := range []uint16{500, 510, 520} {
		f.moisture.raw = raw
		f.dev.Tick()
	}
	f.moisture.ready = false
	f.dev.Tick()

	stats, err := f.dev.StopMoistureCalibration()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Samples)
	assert.Equal(t, uint16(510), stats.MeanRaw)

	_, err = f.dev.CommitMoistureCalibration("wet")
	assert.ErrorIs(t, err, ErrBadPoint)

	raw, err := f.dev.CommitMoistureCalibration(PointDry)
	require.NoError(t, err)
	assert.Equal(t, uint16(510), raw)
	assert.Equal(t, uint16(510), f.dev.Settings().MoistureDry)

	_, err = f.dev.CommitMoistureCalibration(PointSoaked)
	assert.ErrorIs(t, err, calibration.ErrNotStopped, "a window is committed once")
}

func TestWithoutMoistureSensor(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	hw, _ := hardware.NewBenchSet()
	hw.Moisture = nil
	hw.Clock = clock
	hw.RTC = fakeRTC{clock: clock}

	cfg, err := settings.Open(region.NewMemory(1024))
	require.NoError(t, err)
	layout := eventlog.Layout{RingRecords: 10, Slots: 100}
	store, err := eventlog.OpenWithLayout(region.NewMemory(int(layout.Bytes())), layout)
	require.NoError(t, err)

	dev := New(hw, store, cfg, Options{ID: "dev-1", Location: time.UTC}, nil)
	require.NoError(t, dev.StartMoistureCalibration())
	require.NotPanics(t, func() {
		clock.now = clock.now.Add(time.Second)
		dev.Tick()
	})

	st := dev.Status()
	assert.False(t, st.MoistureReady)
	assert.Equal(t, "moisture", st.Calibrating)
}

func TestDripperCalibration(t *testing.T) {
	f := newFixture(t, 4)
	assert.False(t, f.dev.Status().Calibrated)

	require.NoError(t, f.dev.StartDripperCalibration())
	assert.True(t, f.bench.IsOpen())
	assert.ErrorIs(t, f.dev.ForceFeed(0), ErrBusy)

	f.clock.now = f.clock.now.Add(30 * time.Second)
	f.dev.Tick()
	assert.True(t, f.bench.IsOpen(), "ticks leave the calibration run alone")

	elapsed, err := f.dev.StopDripperCalibration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, elapsed)
	assert.False(t, f.bench.IsOpen())

	msPerLiter, err := f.dev.CommitDripperCalibration(250)
	require.NoError(t, err)
	assert.Equal(t, uint32(120000), msPerLiter)

	cfg := f.dev.Settings()
	assert.True(t, cfg.DripperCalibrated())
	assert.Equal(t, uint32(120000), cfg.DripperMsPerLiter)
	assert.True(t, f.dev.Status().Calibrated)
}

func TestControls(t *testing.T) {
	f := newFixture(t, 4)

	assert.ErrorIs(t, f.dev.ForceFeed(feedslot.Count), ErrBadSlot)

	require.NoError(t, f.dev.SetEnabled(false))
	assert.False(t, f.dev.Status().Enabled)
	require.NoError(t, f.dev.SetEnabled(true))
	assert.True(t, f.dev.Status().Enabled)

	f.dev.Pause()
	assert.True(t, f.dev.Status().Paused)
	f.dev.Resume()
	assert.False(t, f.dev.Status().Paused)

	st := f.dev.Status()
	assert.Equal(t, "dev-1", st.DeviceID)
	assert.True(t, st.MoistureReady)
	assert.Equal(t, uint8(50), st.MoisturePercent)
	assert.Equal(t, int64(-1), st.MinutesSinceFeed)

	require.NoError(t, f.dev.UpdateSettings(func(c *settings.Config) { c.LightsOnMinutes = 10 * 60 }))
	_, key, ok := f.dev.Daily(0)
	require.True(t, ok)
	assert.Equal(t, rtc.LightDayKey(rtc.FromTime(f.clock.now), 10*60), key)

	f.dev.Shutdown()
	assert.False(t, f.bench.IsOpen())
}
