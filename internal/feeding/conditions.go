package feeding

import (
	"time"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/rtc"
	"github.com/ambience-earth/ambience/internal/settings"
)

// maybeStart starts the first enabled slot whose start conditions hold.
// Automatic starts only happen while the lights are on; when the RTC cannot
// be read the lights check is skipped and time triggers cannot fire.
func (e *Engine) maybeStart(now time.Time, cfg *settings.Config) {
	on, off := cfg.LightsOnMinutes, cfg.LightsOffMinutes
	if on >= rtc.MinutesPerDay {
		on = 0
	}
	if off >= rtc.MinutesPerDay {
		off = 0
	}
	if on == off {
		return
	}

	wall, wallOK := e.readWall()
	if wallOK && !rtc.IsWithinWindow(wall.MinuteOfDay(), on, rtc.LightsDuration(on, off)) {
		return
	}
	var lightKey uint16
	if wallOK {
		lightKey = rtc.LightDayKey(wall, cfg.LightsOnMinutes)
	}

	for i := 0; i < feedslot.Count; i++ {
		slot := cfg.Slot(i)
		if !slot.Has(feedslot.Enabled) {
			continue
		}
		reason, ok := e.startConditionsMet(i, &slot, now, cfg, wall, wallOK, lightKey)
		if !ok {
			continue
		}

		if !cfg.DripperCalibrated() {
			e.logRefusal(i, reason, eventlog.StopNotCalibrated, now, cfg, wall, wallOK, lightKey)
			return
		}
		if cfg.MaxDailyWaterMl > 0 && wallOK && e.dailyTotalFor(lightKey) >= cfg.MaxDailyWaterMl {
			e.logRefusal(i, reason, eventlog.StopMaxDailyFeedReached, now, cfg, wall, wallOK, lightKey)
			return
		}

		e.start(i, slot, reason, false, now, cfg, wall, wallOK)
		return
	}
}

// startConditionsMet reports whether every start condition configured on the
// slot holds and the slot's minimum gap since the last feed has passed.
func (e *Engine) startConditionsMet(i int, slot *feedslot.FeedSlot, now time.Time, cfg *settings.Config, wall rtc.DateTime, wallOK bool, lightKey uint16) (eventlog.StartReason, bool) {
	hasTime := slot.Has(feedslot.TimeWindow)
	hasMoisture := slot.Has(feedslot.MoistureBelow)
	hasWeight := slot.Has(feedslot.WeightBelow)
	if !hasTime && !hasMoisture && !hasWeight {
		return eventlog.StartNone, false
	}

	if hasTime {
		if !wallOK || e.lastTriggered[i] == lightKey {
			return eventlog.StartNone, false
		}
		minute := wall.MinuteOfDay()
		if !slot.Has(feedslot.AbsoluteTime) {
			minute = rtc.MinutesSince(cfg.LightsOnMinutes, minute)
		}
		var inWindow bool
		if slot.WindowDurationMinutes == 0 {
			inWindow = minute == slot.WindowStartMinutes
		} else {
			inWindow = rtc.IsWithinWindow(minute, slot.WindowStartMinutes, slot.WindowDurationMinutes)
		}
		if !inWindow {
			return eventlog.StartNone, false
		}
	}

	if hasMoisture {
		pct, ready := e.moisture(cfg)
		if !ready {
			return eventlog.StartNone, false
		}
		threshold := slot.MoistureBelow
		if threshold == feedslot.BaselineSentinel {
			if !e.baseline.valid {
				return eventlog.StartNone, false
			}
			threshold = BaselineMinus(e.baseline.percent, cfg.BaselineX)
		}
		if pct > threshold {
			return eventlog.StartNone, false
		}
	}

	if hasWeight {
		g, ok := e.weight()
		if !ok || g > float64(cfg.WeightBelowGrams) {
			return eventlog.StartNone, false
		}
	}

	if slot.MinGapMinutes > 0 && e.hasLastFeed {
		if now.Sub(e.lastFeedEnd) < time.Duration(slot.MinGapMinutes)*time.Minute {
			return eventlog.StartNone, false
		}
	}

	switch {
	case hasTime:
		return eventlog.StartTime, true
	case hasMoisture:
		return eventlog.StartMoisture, true
	default:
		return eventlog.StartWeight, true
	}
}

// logRefusal records a feed that could not start, once per light day and
// reason.
func (e *Engine) logRefusal(i int, start eventlog.StartReason, reason eventlog.StopReason, now time.Time, cfg *settings.Config, wall rtc.DateTime, wallOK bool, lightKey uint16) {
	if e.refusalLogged && e.refusalKey == lightKey && e.refusalReason == reason {
		return
	}
	e.refusalLogged = true
	e.refusalKey = lightKey
	e.refusalReason = reason

	pct, _ := e.moisture(cfg)
	entry := eventlog.NewEntry(eventlog.TypeFeed)
	entry.StopReason = reason
	entry.StartReason = start
	entry.SlotIndex = uint8(i)
	entry.SoilBefore, entry.SoilAfter = pct, pct
	entry.MillisStart = e.millis(now)
	entry.MillisEnd = entry.MillisStart
	if wallOK {
		entry.Start, entry.End = wall, wall
		entry.DailyTotalMl = e.dailyTotalFor(lightKey)
	}
	e.appendEntry(entry)
	e.logger.Warnf("feed refused: slot %d reason %v", i, reason)
}
