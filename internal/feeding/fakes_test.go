package feeding

import (
	"errors"
	"testing"
	"time"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/hardware"
	"github.com/ambience-earth/ambience/internal/region"
	"github.com/ambience-earth/ambience/internal/rtc"
	"github.com/ambience-earth/ambience/internal/settings"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// fakeRTC reports the fake clock's wall time.
type fakeRTC struct {
	clock *fakeClock
	fail  bool
}

func (r *fakeRTC) ReadDateTime() (rtc.DateTime, error) {
	if r.fail {
		return rtc.DateTime{}, errors.New("rtc: no ack")
	}
	return rtc.FromTime(r.clock.now), nil
}

type fakePump struct {
	open   bool
	opened int
}

func (p *fakePump) Open() {
	if !p.open {
		p.opened++
	}
	p.open = true
}

func (p *fakePump) Close() { p.open = false }

type fakeMoisture struct {
	ready bool
	raw   uint16
}

func (m *fakeMoisture) Ready() bool { return m.ready }
func (m *fakeMoisture) Raw() uint16 { return m.raw }

type fakeRunoff struct{ wet bool }

func (r *fakeRunoff) RunoffDetected() bool { return r.wet }

type fakeWeight struct {
	ready bool
	grams float64
}

func (w *fakeWeight) Ready() bool    { return w.ready }
func (w *fakeWeight) Grams() float64 { return w.grams }

// rawFor returns the raw reading that maps to pct with the default 800/300
// calibration.
func rawFor(pct uint16) uint16 {
	return 800 - pct*5
}

type rig struct {
	t        *testing.T
	clock    *fakeClock
	rtc      *fakeRTC
	pump     *fakePump
	moisture *fakeMoisture
	runoff   *fakeRunoff
	weight   *fakeWeight
	store    *eventlog.Store
	settings *settings.Store
	engine   *Engine
}

// start is 10:00 on a lights-on day (lights 06:00 to 22:00), 240 minutes
// after lights-on.
var start = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func newRig(t *testing.T, configure func(c *settings.Config)) *rig {
	t.Helper()
	clock := &fakeClock{now: start}
	r := &rig{
		t:        t,
		clock:    clock,
		rtc:      &fakeRTC{clock: clock},
		pump:     &fakePump{},
		moisture: &fakeMoisture{ready: true, raw: rawFor(50)},
		runoff:   &fakeRunoff{},
		weight:   &fakeWeight{},
	}

	var err error
	r.settings, err = settings.Open(region.NewMemory(1024))
	if err != nil {
		t.Fatal(err)
	}
	err = r.settings.Update(func(c *settings.Config) {
		c.SetDripperCalibration(600000)
		c.SnapshotIntervalMinutes = 0
		if configure != nil {
			configure(c)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	layout := eventlog.Layout{RingRecords: 10, Slots: 100}
	r.store, err = eventlog.OpenWithLayout(region.NewMemory(int(layout.Bytes())), layout)
	if err != nil {
		t.Fatal(err)
	}
	r.store.SetLightsOn(r.settings.Config().LightsOnMinutes)

	r.engine = New(r.hardware(), r.store, r.settings, nil)
	return r
}

func (r *rig) hardware() hardware.Set {
	return hardware.Set{
		Pump:     r.pump,
		Moisture: r.moisture,
		Runoff:   r.runoff,
		Weight:   r.weight,
		RTC:      r.rtc,
		Clock:    r.clock,
	}
}

// step advances the clock by d and ticks once.
func (r *rig) step(d time.Duration) {
	r.clock.now = r.clock.now.Add(d)
	r.engine.Tick()
}

// runUntilIdle ticks once a second until the session ends and returns the
// number of ticks taken.
func (r *rig) runUntilIdle(limit int) int {
	r.t.Helper()
	for n := 1; n <= limit; n++ {
		r.step(time.Second)
		if !r.engine.Active() {
			return n
		}
	}
	r.t.Fatalf("session still active after %d ticks", limit)
	return 0
}

func (r *rig) latest() eventlog.Entry {
	r.t.Helper()
	e, ok := r.store.Latest()
	if !ok {
		r.t.Fatal("log is empty")
	}
	return e
}

func (r *rig) entries() []eventlog.Entry {
	return r.store.Recent(100)
}

func moistureSlot(below uint8) feedslot.FeedSlot {
	return feedslot.FeedSlot{
		Flags:         feedslot.Enabled | feedslot.MoistureBelow,
		MoistureBelow: below,
	}
}
