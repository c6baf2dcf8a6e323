// Package device is the command and query surface of one watering device.
// It owns the feeding engine, the event log, the settings block and the
// calibration helpers and serialises every access to them, so the tick loop
// and the HTTP controllers can share one Device.
package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ambience-earth/ambience/internal/calibration"
	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feeding"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/hardware"
	"github.com/ambience-earth/ambience/internal/settings"
	"github.com/ambience-earth/ambience/internal/types"
)

var (
	ErrBadSlot = errors.New("device: slot index out of range")
	ErrBusy    = errors.New("device: a feeding session is active")
)

// Options configures a Device.
type Options struct {
	// ID identifies the device in published events. A random id is used
	// when empty.
	ID string
	// Location converts log dates to timestamps. Defaults to time.Local.
	Location *time.Location
	// Events receives every entry appended to the log. Sends never block;
	// events are dropped when the channel is full. May be nil.
	Events chan<- types.Event
}

// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	id       string
	bootID   string
	hw       hardware.Set
	log      *eventlog.Store
	settings *settings.Store
	engine   *feeding.Engine
	logger   *zap.SugaredLogger

	window  calibration.MoistureWindow
	dripper calibration.Dripper
	// last finished moisture window, kept for commit
	windowStats    calibration.WindowStats
	hasWindowStats bool
}

// New wires the engine to the log and settings, restores the baseline from
// the log and records a Boot entry.
func New(hw hardware.Set, store *eventlog.Store, st *settings.Store, opts Options, logger *zap.SugaredLogger) *Device {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	d := &Device{
		id:       opts.ID,
		bootID:   uuid.NewString(),
		hw:       hw,
		log:      store,
		settings: st,
		logger:   logger,
	}

	cfg := st.Config()
	store.SetLightsOn(cfg.LightsOnMinutes)

	pub := &publishingLog{
		Store:    store,
		events:   opts.Events,
		deviceID: d.id,
		bootID:   d.bootID,
		loc:      opts.Location,
		clock:    hw.Clock,
		logger:   logger,
	}
	d.engine = feeding.New(hw, pub, st, logger)
	d.engine.BaselineInit()
	d.engine.LogBoot()

	logger.Infow("device ready", "id", d.id, "boot", d.bootID, "log_slots", store.Layout().Slots)
	return d
}

// ID returns the device id used in published events.
func (d *Device) ID() string {
	return d.id
}

// Tick advances the engine and feeds the moisture calibration window.
func (d *Device) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dripper.Running() {
		// the pump belongs to the calibration run
		return
	}
	d.engine.Tick()

	if d.window.Running() && d.hw.Moisture != nil && d.hw.Moisture.Ready() {
		if d.window.Add(d.hw.Moisture.Raw()) {
			d.logger.Debug("moisture calibration window is full")
		}
	}
}

// Shutdown ends any session, holds the engine idle and closes the pump.
// Later ticks leave the pump closed.
func (d *Device) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engine.Pause()
	d.hw.Pump.Close()
	d.logger.Info("device shut down")
}

// Status is the device overview shown on the home screen.
type Status struct {
	DeviceID          string         `json:"device_id"`
	Enabled           bool           `json:"enabled"`
	Paused            bool           `json:"paused"`
	Calibrated        bool           `json:"calibrated"`
	RunoffWarning     bool           `json:"runoff_warning"`
	MoistureReady     bool           `json:"moisture_ready"`
	MoisturePercent   uint8          `json:"moisture_percent"`
	MoistureRaw       uint16         `json:"moisture_raw"`
	HasBaseline       bool           `json:"has_baseline"`
	BaselinePercent   uint8          `json:"baseline_percent"`
	HasBaselineSetter bool           `json:"has_baseline_setter"`
	HasDryback        bool           `json:"has_dryback"`
	DrybackPercent    uint8          `json:"dryback_percent"`
	DailyTotalMl      uint16         `json:"daily_total_ml"`
	MaxDailyWaterMl   uint16         `json:"max_daily_water_ml"`
	HasDailyRange     bool           `json:"has_daily_range"`
	DailyMinPercent   uint8          `json:"daily_min_percent"`
	DailyMaxPercent   uint8          `json:"daily_max_percent"`
	LastFeedMl        uint16         `json:"last_feed_ml"`
	MinutesSinceFeed  int64          `json:"minutes_since_feed"`
	Session           feeding.Status `json:"session"`
	Calibrating       string         `json:"calibrating,omitempty"`
}

// Status collects the current device state.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.settings.Config()
	st := Status{
		DeviceID:          d.id,
		Enabled:           d.engine.Enabled(),
		Paused:            d.engine.Paused(),
		Calibrated:        cfg.DripperCalibrated(),
		RunoffWarning:     d.engine.RunoffWarning(),
		HasBaselineSetter: d.engine.HasBaselineSetter(),
		DailyTotalMl:      d.engine.DailyTotalMl(),
		MaxDailyWaterMl:   cfg.MaxDailyWaterMl,
		LastFeedMl:        d.engine.LastFeedMl(),
		MinutesSinceFeed:  -1,
		Session:           d.engine.Status(),
	}
	if d.hw.Moisture != nil && d.hw.Moisture.Ready() {
		st.MoistureReady = true
		st.MoistureRaw = d.hw.Moisture.Raw()
		st.MoisturePercent = hardware.RawToPercent(st.MoistureRaw, cfg.MoistureDry, cfg.MoistureSoaked)
	}
	st.BaselinePercent, st.HasBaseline = d.engine.BaselinePercent()
	st.DrybackPercent, st.HasDryback = d.engine.DrybackPercent()
	st.DailyMinPercent, st.DailyMaxPercent, st.HasDailyRange = d.engine.DailyMinMaxPercent()
	if since, ok := d.engine.SinceLastFeed(); ok {
		st.MinutesSinceFeed = int64(since / time.Minute)
	}
	switch {
	case d.window.Running():
		st.Calibrating = "moisture"
	case d.dripper.Running():
		st.Calibrating = "dripper"
	}
	return st
}

// Settings returns a copy of the persisted configuration.
func (d *Device) Settings() settings.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings.Config()
}

// UpdateSettings applies fn to the configuration and persists it. The log
// store picks up a changed lights-on time for new light-day keys.
func (d *Device) UpdateSettings(fn func(*settings.Config)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateSettings(fn)
}

func (d *Device) updateSettings(fn func(*settings.Config)) error {
	if err := d.settings.Update(fn); err != nil {
		return fmt.Errorf("could not save settings: %w", err)
	}
	cfg := d.settings.Config()
	d.log.SetLightsOn(cfg.LightsOnMinutes)
	return nil
}

// SlotInfo is one feed slot with its summary lines.
type SlotInfo struct {
	feeding.SlotSummary
	RunoffExpectation uint8 `json:"runoff_expectation"`
}

// Slots describes every feed slot.
func (d *Device) Slots() []SlotInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.settings.Config()
	sums := d.engine.Summaries()
	out := make([]SlotInfo, len(sums))
	for i, s := range sums {
		out[i] = SlotInfo{SlotSummary: s, RunoffExpectation: cfg.RunoffExpectation[i]}
	}
	return out
}

// Slot returns the decoded slot i and its name.
func (d *Device) Slot(i int) (feedslot.FeedSlot, string, error) {
	if i < 0 || i >= feedslot.Count {
		return feedslot.FeedSlot{}, "", ErrBadSlot
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.settings.Config()
	return cfg.Slot(i), cfg.SlotNames[i], nil
}

// PutSlot validates and stores slot i.
func (d *Device) PutSlot(i int, slot feedslot.FeedSlot, name string) error {
	if i < 0 || i >= feedslot.Count {
		return ErrBadSlot
	}
	if err := slot.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateSettings(func(c *settings.Config) {
		c.SetSlot(i, slot)
		c.SlotNames[i] = name
		switch {
		case slot.Has(feedslot.RunoffRequired):
			c.RunoffExpectation[i] = settings.RunoffExpect
		case slot.Has(feedslot.RunoffAvoid):
			c.RunoffExpectation[i] = settings.RunoffAvoid
		default:
			c.RunoffExpectation[i] = settings.RunoffExpectNone
		}
	})
}

// ForceFeed starts slot i immediately.
func (d *Device) ForceFeed(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dripper.Running() {
		return ErrBusy
	}
	if err := d.engine.ForceFeed(i); err != nil {
		if errors.Is(err, feeding.ErrBadSlot) {
			return ErrBadSlot
		}
		return err
	}
	return nil
}

// SetEnabled switches automatic feeding.
func (d *Device) SetEnabled(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.SetEnabled(enabled)
}

// Pause stops any session and holds the engine idle, as while a menu is open.
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engine.Pause()
}

func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engine.Resume()
}

func (d *Device) ClearRunoffWarning() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engine.ClearRunoffWarning()
}
