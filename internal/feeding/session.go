package feeding

import (
	"time"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/rtc"
	"github.com/ambience-earth/ambience/internal/settings"
	"github.com/ambience-earth/ambience/internal/volume"
)

const tick = feedslot.TickSeconds * time.Second

// minRunoffHold is the shortest runoff debounce.
const minRunoffHold = time.Second

type session struct {
	active    bool
	slotIndex int
	slot      feedslot.FeedSlot
	forced    bool
	reason    eventlog.StartReason
	startedAt time.Time
	start     rtc.DateTime

	maxVolumeMs  uint32
	maxRuntime   time.Duration
	minRuntime   time.Duration
	runoffHold   time.Duration
	dailyAtStart uint16

	pumpOn         bool
	pulsed         bool
	pulseOn        time.Duration
	pulseOff       time.Duration
	pulseRemaining time.Duration
	lastUpdate     time.Time
	onElapsed      time.Duration

	runoffHolding bool
	runoffSince   time.Time
	runoffSeen    bool

	soilBefore uint8
	dryback    uint8
}

func (e *Engine) start(i int, slot feedslot.FeedSlot, reason eventlog.StartReason, forced bool, now time.Time, cfg *settings.Config, wall rtc.DateTime, wallOK bool) {
	if slot.Has(feedslot.MoistureTarget) && slot.MoistureTarget == feedslot.BaselineSentinel {
		if e.baseline.valid {
			slot.MoistureTarget = BaselineMinus(e.baseline.percent, cfg.BaselineY)
		} else {
			slot.Set(feedslot.MoistureTarget, false)
			slot.MoistureTarget = 0
		}
	}

	s := session{
		active:      true,
		slotIndex:   i,
		slot:        slot,
		forced:      forced,
		reason:      reason,
		startedAt:   now,
		lastUpdate:  now,
		maxVolumeMs: volume.MlToMs(slot.MaxVolumeMl, cfg.DripperMsPerLiter),
		maxRuntime:  time.Duration(slot.MaxRuntime5s) * tick,
		minRuntime:  time.Duration(slot.MinRuntime5s) * tick,
		runoffHold:  max(time.Duration(slot.RunoffHold5s)*tick, minRunoffHold),
		pumpOn:      true,
		dryback:     eventlog.DrybackUnset,
	}
	if wallOK {
		s.start = wall
	}
	if cfg.MaxDailyWaterMl > 0 && wallOK {
		s.dailyAtStart = e.dailyTotalFor(rtc.LightDayKey(wall, cfg.LightsOnMinutes))
	}

	if slot.Pulsed() {
		s.pulseOn = time.Duration(slot.PulseOn5s) * tick
		s.pulseOff = time.Duration(slot.PulseOff5s) * tick
	} else {
		s.pulseOn = time.Duration(cfg.PulseOnSeconds) * time.Second
		s.pulseOff = time.Duration(cfg.PulseOffSeconds) * time.Second
	}
	s.pulsed = s.pulseOn > 0 && s.pulseOff > 0
	if s.pulsed {
		s.pulseRemaining = s.pulseOn
	}

	if pct, ready := e.moisture(cfg); ready {
		s.soilBefore = pct
		if e.baseline.valid {
			s.dryback = dryback(e.baseline.percent, pct)
		}
	}

	if reason == eventlog.StartTime && wallOK {
		e.lastTriggered[i] = rtc.LightDayKey(wall, cfg.LightsOnMinutes)
	}

	e.session = s
	e.hw.Pump.Open()
	e.logger.Infof("feed started: slot %d reason %v forced=%v", i, reason, forced)
}

// updatePulse accounts pump time since the last update and toggles the
// line for pulsed sessions.
func (e *Engine) updatePulse(now time.Time) {
	s := &e.session
	delta := now.Sub(s.lastUpdate)
	if delta < 0 {
		delta = 0
	}
	s.lastUpdate = now

	if !s.pulsed {
		if !s.pumpOn {
			s.pumpOn = true
			e.hw.Pump.Open()
		}
		s.onElapsed += delta
		return
	}

	for delta > 0 {
		step := min(delta, s.pulseRemaining)
		if s.pumpOn {
			s.onElapsed += step
		}
		s.pulseRemaining -= step
		delta -= step
		if s.pulseRemaining == 0 {
			s.pumpOn = !s.pumpOn
			if s.pumpOn {
				s.pulseRemaining = s.pulseOn
				e.hw.Pump.Open()
			} else {
				s.pulseRemaining = s.pulseOff
				e.hw.Pump.Close()
			}
		}
	}
}

func (e *Engine) deliveredMs() uint32 {
	ms := e.session.onElapsed / time.Millisecond
	if ms > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(ms)
}

func (e *Engine) tickActive(now time.Time, cfg *settings.Config) {
	e.updatePulse(now)
	s := &e.session
	elapsed := now.Sub(s.startedAt)
	delivered := e.deliveredMs()

	runoffNow := false
	if s.slot.Has(feedslot.RunoffRequired) || s.slot.Has(feedslot.RunoffAvoid) {
		runoffNow = e.hw.Runoff.RunoffDetected()
		if runoffNow {
			s.runoffSeen = true
		}
	}

	runoffStop := false
	if s.slot.Has(feedslot.RunoffRequired) {
		if runoffNow {
			if !s.runoffHolding {
				s.runoffHolding = true
				s.runoffSince = now
			}
			runoffStop = now.Sub(s.runoffSince) >= s.runoffHold
		} else {
			s.runoffHolding = false
		}
	}

	switch {
	case s.maxRuntime > 0 && elapsed >= s.maxRuntime:
		e.stop(eventlog.StopMaxRuntime, now, cfg)
		return
	case s.maxVolumeMs > 0 && delivered >= s.maxVolumeMs:
		e.stop(eventlog.StopMaxVolume, now, cfg)
		return
	case e.dailyCapReached(delivered, cfg):
		e.stop(eventlog.StopMaxDailyFeedReached, now, cfg)
		return
	case elapsed < s.minRuntime:
		return
	}

	if s.slot.Has(feedslot.MoistureTarget) {
		if pct, ready := e.moisture(cfg); ready && pct >= s.slot.MoistureTarget {
			e.stop(eventlog.StopMoisture, now, cfg)
			return
		}
	}
	if runoffStop {
		e.stop(eventlog.StopRunoff, now, cfg)
		return
	}
	if s.slot.Has(feedslot.WeightTarget) {
		if g, ok := e.weight(); ok && g >= float64(cfg.WeightTargetGrams) {
			e.stop(eventlog.StopWeightTarget, now, cfg)
			return
		}
	}
}

func (e *Engine) dailyCapReached(deliveredMs uint32, cfg *settings.Config) bool {
	s := &e.session
	limit := cfg.MaxDailyWaterMl
	if s.forced || limit == 0 {
		return false
	}
	if s.dailyAtStart >= limit {
		return true
	}
	return volume.MsToMl(deliveredMs, cfg.DripperMsPerLiter) >= limit-s.dailyAtStart
}

func (e *Engine) stop(reason eventlog.StopReason, now time.Time, cfg *settings.Config) {
	e.updatePulse(now)
	e.hw.Pump.Close()
	s := &e.session
	s.pumpOn = false

	soilAfter := s.soilBefore
	if pct, ready := e.moisture(cfg); ready {
		soilAfter = pct
	}
	feedMl := volume.MsToMl(e.deliveredMs(), cfg.DripperMsPerLiter)

	var flags eventlog.Flags
	if s.slot.Has(feedslot.RunoffRequired) && !s.runoffSeen {
		flags |= eventlog.FlagRunoffMissing
	}
	if s.slot.Has(feedslot.RunoffAvoid) && s.runoffSeen {
		flags |= eventlog.FlagRunoffUnexpected
	}
	if s.slot.Has(feedslot.BaselineSetter) {
		flags |= eventlog.FlagBaselineSetter
	}
	if s.runoffSeen {
		flags |= eventlog.FlagRunoffSeen
	}
	if s.pulsed {
		flags |= eventlog.FlagPulsed
	}
	if flags&eventlog.FlagRunoffAny != 0 {
		e.runoffWarning = true
	}

	entry := eventlog.NewEntry(eventlog.TypeFeed)
	entry.StopReason = reason
	entry.StartReason = s.reason
	entry.SlotIndex = uint8(s.slotIndex)
	entry.Flags = flags
	entry.SoilBefore = s.soilBefore
	entry.SoilAfter = soilAfter
	entry.DrybackPercent = s.dryback
	entry.FeedMl = feedMl
	entry.Start = s.start
	entry.MillisStart = e.millis(s.startedAt)
	entry.MillisEnd = e.millis(now)
	if wall, ok := e.readWall(); ok {
		entry.End = wall
		entry.DailyTotalMl = saturatingAdd(e.dailyTotalFor(rtc.LightDayKey(wall, cfg.LightsOnMinutes)), feedMl)
	}

	written, ok := e.appendEntry(entry)
	if ok && written.IsBaselineCandidate() {
		e.baseline.setCandidate(e.log.LatestSlot(), written)
	}

	e.logger.Infof("feed stopped: slot %d reason %v delivered %d ml in %v", s.slotIndex, reason, feedMl, now.Sub(s.startedAt))

	e.hasLastFeed = true
	e.lastFeedEnd = now
	e.lastFeedMl = feedMl
	e.session = session{}
}

func saturatingAdd(a, b uint16) uint16 {
	if 0xFFFF-a < b {
		return 0xFFFF
	}
	return a + b
}
