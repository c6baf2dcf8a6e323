package feeding

import (
	"time"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/rtc"
	"github.com/ambience-earth/ambience/internal/settings"
)

// baselineWindowMinutes is how long after the delay a candidate may still be
// patched.
const baselineWindowMinutes = 30

// maxRestoredGapMinutes bounds the feed gap restored at startup; it is the
// largest minimum gap a slot can hold.
const maxRestoredGapMinutes = 4095

// clampBaselineOffset forces offset into the even range 2..20.
func clampBaselineOffset(offset uint8) uint8 {
	switch {
	case offset < 2:
		return 2
	case offset > 20:
		return 20
	}
	return offset &^ 1
}

// BaselineMinus returns baseline less a margin, floored at zero. The margin
// is clamped to an even value between 2 and 20.
func BaselineMinus(baseline, offset uint8) uint8 {
	offset = clampBaselineOffset(offset)
	if baseline <= offset {
		return 0
	}
	return baseline - offset
}

func dryback(baseline, current uint8) uint8 {
	if baseline <= current {
		return 0
	}
	return min(baseline-current, eventlog.DrybackUnset-1)
}

// baselineState tracks the moisture baseline and the baseline-setter feed
// whose baseline has not been measured yet.
type baselineState struct {
	percent uint8
	valid   bool

	candidateSlot  int
	candidateEnd   uint32
	candidateValid bool
	// measured is set once the candidate carries its baseline
	measured bool
}

func (b *baselineState) setCandidate(slot int, e eventlog.Entry) {
	b.candidateSlot = slot
	b.candidateEnd, b.candidateValid = e.End.Minutes()
	b.measured = false
}

// BaselineInit restores baseline tracking, the time of the last feed and the
// time triggers already spent today from the log. Call it once at startup.
func (e *Engine) BaselineInit() {
	e.restoreTimeTriggers()

	e.baseline = baselineState{candidateSlot: -1, measured: true}
	found := e.log.FindLatestBaselineEntries()

	if found.WithBaselineSlot >= 0 && found.WithBaseline.HasBaseline() {
		e.baseline.percent = found.WithBaseline.BaselinePercent
		e.baseline.valid = true
	}
	if found.SetterSlot >= 0 {
		e.baseline.candidateSlot = found.SetterSlot
		e.baseline.candidateEnd, e.baseline.candidateValid = found.Setter.End.Minutes()
		e.baseline.measured = found.Setter.HasBaseline()
	}

	feed := found.LatestFeed
	if found.LatestFeedSlot < 0 || feed.FeedMl == 0 {
		return
	}
	e.lastFeedMl = feed.FeedMl
	endMinutes, ok := feed.End.Minutes()
	if !ok {
		return
	}
	wall, ok := e.readWall()
	if !ok {
		return
	}
	nowMinutes, _ := wall.Minutes()
	if nowMinutes < endMinutes || nowMinutes-endMinutes > maxRestoredGapMinutes {
		return
	}
	e.hasLastFeed = true
	e.lastFeedEnd = e.hw.Clock.Now().Add(-time.Duration(nowMinutes-endMinutes) * time.Minute)
}

// restoreTimeTriggers marks slots whose time trigger already fired during the
// current light day.
func (e *Engine) restoreTimeTriggers() {
	wall, ok := e.readWall()
	if !ok {
		return
	}
	key := rtc.LightDayKey(wall, e.settings.Config().LightsOnMinutes)
	for _, i := range e.log.TimeTriggeredSlots(key) {
		if int(i) < feedslot.Count {
			e.lastTriggered[i] = key
		}
	}
}

// baselineTick measures the pending candidate's baseline once the soil has
// settled after it.
func (e *Engine) baselineTick(cfg *settings.Config) {
	b := &e.baseline
	if !b.candidateValid || b.measured || b.candidateSlot < 0 {
		return
	}
	pct, ready := e.moisture(cfg)
	if !ready {
		return
	}
	wall, ok := e.readWall()
	if !ok {
		return
	}
	nowMinutes, _ := wall.Minutes()
	if nowMinutes < b.candidateEnd {
		return
	}
	delta := nowMinutes - b.candidateEnd
	delay := uint32(cfg.BaselineDelayMinutes)
	if delta < delay || delta > delay+baselineWindowMinutes {
		return
	}

	if err := e.log.PatchBaseline(b.candidateSlot, pct); err != nil {
		e.logger.Warnf("could not record baseline: %v", err)
		return
	}
	b.percent = pct
	b.valid = true
	b.measured = true
	e.logger.Infof("moisture baseline set to %d%%", pct)
}

// BaselinePercent returns the current moisture baseline.
func (e *Engine) BaselinePercent() (uint8, bool) {
	return e.baseline.percent, e.baseline.valid
}

// HasBaselineSetter reports whether a baseline-setter feed has been seen.
func (e *Engine) HasBaselineSetter() bool {
	return e.baseline.candidateSlot >= 0
}

// DrybackPercent returns how far moisture has fallen below the baseline,
// never negative. ok is false without a baseline or a moisture reading.
func (e *Engine) DrybackPercent() (uint8, bool) {
	if !e.baseline.valid {
		return 0, false
	}
	cfg := e.settings.Config()
	pct, ready := e.moisture(&cfg)
	if !ready {
		return 0, false
	}
	return dryback(e.baseline.percent, pct), true
}

// DailyTotalMl returns the volume fed during the current light day.
func (e *Engine) DailyTotalMl() uint16 {
	sum, _ := e.today()
	return sum.TotalMl
}

// DailyMinMaxPercent returns the range of snapshot moisture readings taken
// during the current light day.
func (e *Engine) DailyMinMaxPercent() (lo, hi uint8, ok bool) {
	sum, ok := e.today()
	if !ok || !sum.HasSnapshots {
		return 0, 0, false
	}
	return sum.MinPercent, sum.MaxPercent, true
}

// LightDayKey returns the key of the current light day.
func (e *Engine) LightDayKey() (uint16, bool) {
	wall, ok := e.readWall()
	if !ok {
		return 0, false
	}
	cfg := e.settings.Config()
	return rtc.LightDayKey(wall, cfg.LightsOnMinutes), true
}

func (e *Engine) today() (eventlog.DailySummary, bool) {
	key, ok := e.LightDayKey()
	if !ok {
		return eventlog.DailySummary{}, false
	}
	return e.log.DailyTotalRange(key), true
}
