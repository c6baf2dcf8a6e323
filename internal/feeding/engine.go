// Package feeding decides, once per tick, whether to start or stop a
// watering session. Sessions are driven by the packed feed slots in the
// device settings and are recorded in the event log, which the engine also
// queries for daily totals and the moisture baseline.
package feeding

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/hardware"
	"github.com/ambience-earth/ambience/internal/rtc"
	"github.com/ambience-earth/ambience/internal/settings"
)

var (
	ErrBadSlot = errors.New("feeding: slot index out of range")
	ErrActive  = errors.New("feeding: a session is already active")
	ErrPaused  = errors.New("feeding: paused for the user interface")
)

// Log is the part of the event log store the engine writes and queries.
type Log interface {
	Append(e eventlog.Entry) (eventlog.Entry, error)
	LatestSlot() int
	PatchBaseline(slot int, percent uint8) error
	FindLatestBaselineEntries() eventlog.BaselineEntries
	DailyTotalRange(lightDayKey uint16) eventlog.DailySummary
	TimeTriggeredSlots(lightDayKey uint16) []uint8
}

// Settings is the persisted device configuration.
type Settings interface {
	Config() settings.Config
	Update(fn func(*settings.Config)) error
}

// Engine is the feeding state machine. It is not safe for concurrent use.
type Engine struct {
	hw       hardware.Set
	log      Log
	settings Settings
	logger   *zap.SugaredLogger
	origin   time.Time

	session       session
	paused        bool
	runoffWarning bool

	refusalLogged bool
	refusalKey    uint16
	refusalReason eventlog.StopReason

	// light-day key of each slot's last time-triggered start
	lastTriggered [feedslot.Count]uint16

	hasLastFeed bool
	lastFeedEnd time.Time
	lastFeedMl  uint16

	baseline     baselineState
	lastSnapshot time.Time
}

// New returns an idle engine. Millisecond stamps in log entries count from
// the time New is called.
func New(hw hardware.Set, log Log, settings Settings, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	now := hw.Clock.Now()
	return &Engine{
		hw:           hw,
		log:          log,
		settings:     settings,
		logger:       logger,
		origin:       now,
		lastSnapshot: now,
		baseline:     baselineState{candidateSlot: -1},
	}
}

// Tick advances the engine. It is meant to be called at a fixed cadence of
// about one second.
func (e *Engine) Tick() {
	now := e.hw.Clock.Now()
	cfg := e.settings.Config()

	if e.paused {
		if e.session.active {
			e.stop(eventlog.StopUiPause, now, &cfg)
		}
		return
	}

	if cfg.FeedingDisabled() {
		if !e.session.active {
			return
		}
		if !e.session.forced {
			e.stop(eventlog.StopDisabled, now, &cfg)
			return
		}
	}

	if e.session.active {
		e.tickActive(now, &cfg)
		return
	}

	e.maybeStart(now, &cfg)
	if !e.session.active {
		e.snapshotTick(now, &cfg)
		e.baselineTick(&cfg)
	}
}

// ForceFeed starts slot i immediately. Forced sessions ignore the slot's
// enabled flag, its start conditions and the daily cap, and keep running
// while automatic feeding is disabled.
func (e *Engine) ForceFeed(i int) error {
	if i < 0 || i >= feedslot.Count {
		return ErrBadSlot
	}
	if e.session.active {
		return ErrActive
	}
	if e.paused {
		return ErrPaused
	}
	cfg := e.settings.Config()
	wall, wallOK := e.readWall()
	e.start(i, cfg.Slot(i), eventlog.StartUser, true, e.hw.Clock.Now(), &cfg, wall, wallOK)
	return nil
}

// Enabled reports whether automatic feeding is on.
func (e *Engine) Enabled() bool {
	cfg := e.settings.Config()
	return !cfg.FeedingDisabled()
}

// SetEnabled switches automatic feeding and persists the choice. Disabling
// stops any active session, forced or not.
func (e *Engine) SetEnabled(enabled bool) error {
	cfg := e.settings.Config()
	if !enabled && e.session.active {
		e.stop(eventlog.StopDisabled, e.hw.Clock.Now(), &cfg)
	}
	if cfg.FeedingDisabled() == !enabled {
		return nil
	}
	if err := e.settings.Update(func(c *settings.Config) { c.SetFeedingDisabled(!enabled) }); err != nil {
		return fmt.Errorf("could not persist feeding state: %w", err)
	}
	e.logger.Infof("automatic feeding enabled=%v", enabled)
	return nil
}

// Pause stops any active session and holds the engine idle until Resume.
func (e *Engine) Pause() {
	e.paused = true
	if e.session.active {
		cfg := e.settings.Config()
		e.stop(eventlog.StopUiPause, e.hw.Clock.Now(), &cfg)
	}
}

// Resume ends a Pause.
func (e *Engine) Resume() {
	e.paused = false
}

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool {
	return e.paused
}

// Active reports whether a session is running.
func (e *Engine) Active() bool {
	return e.session.active
}

// RunoffWarning reports whether a finished session violated its runoff
// expectation. The warning stays set until cleared.
func (e *Engine) RunoffWarning() bool {
	return e.runoffWarning
}

func (e *Engine) ClearRunoffWarning() {
	e.runoffWarning = false
}

// LastFeedMl returns the volume of the most recent session.
func (e *Engine) LastFeedMl() uint16 {
	return e.lastFeedMl
}

// SinceLastFeed returns the time since the last session ended. ok is false
// when no feed is known.
func (e *Engine) SinceLastFeed() (d time.Duration, ok bool) {
	if !e.hasLastFeed {
		return 0, false
	}
	return e.hw.Clock.Now().Sub(e.lastFeedEnd), true
}

// Status is a snapshot of the active session.
type Status struct {
	Active            bool   `json:"active"`
	SlotIndex         int    `json:"slot_index"`
	Forced            bool   `json:"forced"`
	PumpOn            bool   `json:"pump_on"`
	MoistureReady     bool   `json:"moisture_ready"`
	MoisturePercent   uint8  `json:"moisture_percent"`
	HasMoistureTarget bool   `json:"has_moisture_target"`
	MoistureTarget    uint8  `json:"moisture_target"`
	RunoffRequired    bool   `json:"runoff_required"`
	MaxVolumeMl       uint16 `json:"max_volume_ml"`
	ElapsedSeconds    uint16 `json:"elapsed_seconds"`
}

// Status describes the active session. It returns the zero Status while
// idle.
func (e *Engine) Status() Status {
	s := &e.session
	if !s.active {
		return Status{}
	}
	cfg := e.settings.Config()
	pct, ready := e.moisture(&cfg)
	secs := s.onElapsed / time.Second
	if secs > 0xFFFF {
		secs = 0xFFFF
	}
	return Status{
		Active:            true,
		SlotIndex:         s.slotIndex,
		Forced:            s.forced,
		PumpOn:            s.pumpOn,
		MoistureReady:     ready,
		MoisturePercent:   pct,
		HasMoistureTarget: s.slot.Has(feedslot.MoistureTarget),
		MoistureTarget:    s.slot.MoistureTarget,
		RunoffRequired:    s.slot.Has(feedslot.RunoffRequired),
		MaxVolumeMl:       s.slot.MaxVolumeMl,
		ElapsedSeconds:    uint16(secs),
	}
}

// LogBoot records a Boot entry.
func (e *Engine) LogBoot() {
	cfg := e.settings.Config()
	entry := eventlog.NewEntry(eventlog.TypeBoot)
	entry.SoilBefore, _ = e.moisture(&cfg)
	entry.SoilAfter = entry.SoilBefore
	entry.MillisStart = e.millis(e.hw.Clock.Now())
	entry.MillisEnd = entry.MillisStart
	if wall, ok := e.readWall(); ok {
		entry.Start = wall
	}
	e.appendEntry(entry)
}

func (e *Engine) snapshotTick(now time.Time, cfg *settings.Config) {
	if cfg.SnapshotIntervalMinutes == 0 {
		return
	}
	if now.Sub(e.lastSnapshot) < time.Duration(cfg.SnapshotIntervalMinutes)*time.Minute {
		return
	}
	pct, ready := e.moisture(cfg)
	if !ready {
		return
	}
	e.lastSnapshot = now

	entry := eventlog.NewEntry(eventlog.TypeValuesSnapshot)
	entry.SoilBefore, entry.SoilAfter = pct, pct
	entry.MillisStart = e.millis(now)
	entry.MillisEnd = entry.MillisStart
	if wall, ok := e.readWall(); ok {
		entry.Start = wall
	}
	e.appendEntry(entry)
}

// appendEntry writes entry and logs failures. The control path carries on
// either way.
func (e *Engine) appendEntry(entry eventlog.Entry) (eventlog.Entry, bool) {
	written, err := e.log.Append(entry)
	if err != nil {
		e.logger.Warnf("could not append %v log entry: %v", entry.Type, err)
		return written, written.Seq != 0
	}
	return written, true
}

func (e *Engine) millis(now time.Time) uint32 {
	return uint32(now.Sub(e.origin) / time.Millisecond)
}

// readWall reads the RTC. ok is false on failure or an invalid date.
func (e *Engine) readWall() (rtc.DateTime, bool) {
	d, err := e.hw.RTC.ReadDateTime()
	if err != nil || !d.Valid() {
		return rtc.DateTime{}, false
	}
	return d, true
}

// moisture returns the current soil moisture percentage.
func (e *Engine) moisture(cfg *settings.Config) (uint8, bool) {
	if e.hw.Moisture == nil || !e.hw.Moisture.Ready() {
		return 0, false
	}
	return hardware.RawToPercent(e.hw.Moisture.Raw(), cfg.MoistureDry, cfg.MoistureSoaked), true
}

// weight returns the current pot weight.
func (e *Engine) weight() (float64, bool) {
	if e.hw.Weight == nil || !e.hw.Weight.Ready() {
		return 0, false
	}
	return e.hw.Weight.Grams(), true
}

func (e *Engine) dailyTotalFor(key uint16) uint16 {
	return e.log.DailyTotalRange(key).TotalMl
}
