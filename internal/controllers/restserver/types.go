package restserver

import (
	"github.com/ambience-earth/ambience/internal/device"
	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/settings"
)

type errorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

type slotResponse struct {
	Index int               `json:"index"`
	Name  string            `json:"name"`
	Slot  feedslot.FeedSlot `json:"slot"`
}

type slotRequest struct {
	Name string            `json:"name"`
	Slot feedslot.FeedSlot `json:"slot"`
}

type stepResponse struct {
	device.LogView
	Moved bool `json:"moved"`
}

type dailyResponse struct {
	Key uint16 `json:"key"`
	eventlog.DailySummary
}

type dripperStopResponse struct {
	ElapsedMs int64 `json:"elapsed_ms"`
}

type dripperCommitRequest struct {
	Ml uint16 `json:"ml"`
}

type dripperCommitResponse struct {
	DripperMsPerLiter uint32 `json:"dripper_ms_per_liter"`
}

type moistureCommitResponse struct {
	Point string `json:"point"`
	Raw   uint16 `json:"raw"`
}

// settingsPatch carries the tunable settings. Nil fields are left unchanged.
// Slots, calibration results and the feeding flag have their own endpoints.
type settingsPatch struct {
	LightsOnMinutes         *uint16 `json:"lights_on_minutes"`
	LightsOffMinutes        *uint16 `json:"lights_off_minutes"`
	MaxDailyWaterMl         *uint16 `json:"max_daily_water_ml"`
	PulseOnSeconds          *uint8  `json:"pulse_on_seconds"`
	PulseOffSeconds         *uint8  `json:"pulse_off_seconds"`
	BaselineX               *uint8  `json:"baseline_x"`
	BaselineY               *uint8  `json:"baseline_y"`
	BaselineDelayMinutes    *uint8  `json:"baseline_delay_minutes"`
	WeightBelowGrams        *uint16 `json:"weight_below_grams"`
	WeightTargetGrams       *uint16 `json:"weight_target_grams"`
	SnapshotIntervalMinutes *uint16 `json:"snapshot_interval_minutes"`
}

const minutesPerDay = 24 * 60

func (p *settingsPatch) validate() error {
	for _, m := range []*uint16{p.LightsOnMinutes, p.LightsOffMinutes} {
		if m != nil && *m >= minutesPerDay {
			return errBadMinutes
		}
	}
	return nil
}

func (p *settingsPatch) apply(c *settings.Config) {
	set16 := func(dst *uint16, v *uint16) {
		if v != nil {
			*dst = *v
		}
	}
	set8 := func(dst *uint8, v *uint8) {
		if v != nil {
			*dst = *v
		}
	}
	set16(&c.LightsOnMinutes, p.LightsOnMinutes)
	set16(&c.LightsOffMinutes, p.LightsOffMinutes)
	set16(&c.MaxDailyWaterMl, p.MaxDailyWaterMl)
	set8(&c.PulseOnSeconds, p.PulseOnSeconds)
	set8(&c.PulseOffSeconds, p.PulseOffSeconds)
	set8(&c.BaselineX, p.BaselineX)
	set8(&c.BaselineY, p.BaselineY)
	set8(&c.BaselineDelayMinutes, p.BaselineDelayMinutes)
	set16(&c.WeightBelowGrams, p.WeightBelowGrams)
	set16(&c.WeightTargetGrams, p.WeightTargetGrams)
	set16(&c.SnapshotIntervalMinutes, p.SnapshotIntervalMinutes)
}
