package feeding

import (
	"fmt"
	"strings"

	"github.com/ambience-earth/ambience/internal/feedslot"
	"github.com/ambience-earth/ambience/internal/settings"
)

// SlotSummary is the four-line description of a slot shown in slot lists.
type SlotSummary struct {
	Index int               `json:"index"`
	Name  string            `json:"name"`
	Slot  feedslot.FeedSlot `json:"slot"`
	Lines [4]string         `json:"lines"`
}

func formatHHMM(minutes uint16) string {
	if minutes > 1439 {
		minutes = 1439
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// thresholdText renders a moisture threshold, resolving the baseline
// sentinel against the current baseline.
func thresholdText(value, offset uint8, baseline uint8, haveBaseline bool) string {
	if value != feedslot.BaselineSentinel {
		return fmt.Sprintf("%d%%", value)
	}
	if !haveBaseline {
		return "--"
	}
	v := BaselineMinus(baseline, offset)
	if v == 0 {
		return "--"
	}
	return fmt.Sprintf("%d%%", v)
}

// Summarize describes slot i of cfg.
func Summarize(cfg *settings.Config, i int, baseline uint8, haveBaseline bool) SlotSummary {
	slot := cfg.Slot(i)
	sum := SlotSummary{Index: i, Slot: slot}
	if i >= 0 && i < feedslot.Count {
		sum.Name = cfg.SlotNames[i]
	}

	name := sum.Name
	if name == "" {
		name = "(Empty)"
	}
	state := "Off"
	if slot.Has(feedslot.Enabled) {
		state = "On"
	}
	setter := ""
	if slot.Has(feedslot.BaselineSetter) {
		setter = " Settr"
	}
	sum.Lines[0] = fmt.Sprintf("S%d %s (%s)%s", i+1, name, state, setter)

	var start []string
	if slot.Has(feedslot.TimeWindow) {
		prefix := "T+"
		if slot.Has(feedslot.AbsoluteTime) {
			prefix = "T@"
		}
		t := prefix + formatHHMM(slot.WindowStartMinutes)
		if slot.WindowDurationMinutes > 0 {
			t += "/" + formatHHMM(slot.WindowDurationMinutes)
		}
		start = append(start, t)
	}
	if slot.Has(feedslot.MoistureBelow) {
		start = append(start, "M<"+thresholdText(slot.MoistureBelow, cfg.BaselineX, baseline, haveBaseline))
	}
	if slot.Has(feedslot.WeightBelow) {
		start = append(start, fmt.Sprintf("W<%dg", cfg.WeightBelowGrams))
	}
	if len(start) == 0 {
		sum.Lines[1] = "Start: N/A"
	} else {
		sum.Lines[1] = strings.Join(start, " ")
	}

	var stop []string
	if slot.Has(feedslot.MoistureTarget) {
		stop = append(stop, "M>"+thresholdText(slot.MoistureTarget, cfg.BaselineY, baseline, haveBaseline))
	}
	if slot.Has(feedslot.RunoffRequired) {
		r := "Runoff"
		if i >= 0 && i < feedslot.Count {
			switch cfg.RunoffExpectation[i] {
			case settings.RunoffExpect:
				r += "+"
			case settings.RunoffAvoid:
				r += "-"
			}
		}
		stop = append(stop, r)
	} else if slot.Has(feedslot.RunoffAvoid) {
		stop = append(stop, "R-")
	}
	if slot.Has(feedslot.WeightTarget) {
		stop = append(stop, fmt.Sprintf("W>%dg", cfg.WeightTargetGrams))
	}
	if slot.MaxRuntime5s > 0 {
		stop = append(stop, fmt.Sprintf("%ds", int(slot.MaxRuntime5s)*feedslot.TickSeconds))
	}
	if len(stop) == 0 {
		sum.Lines[2] = "Stop: N/A"
	} else {
		sum.Lines[2] = "Stop: " + strings.Join(stop, " ")
	}

	if slot.MaxVolumeMl > 0 {
		sum.Lines[3] = fmt.Sprintf("Max:%dml  D:%dm", slot.MaxVolumeMl, slot.MinGapMinutes)
	} else {
		sum.Lines[3] = fmt.Sprintf("Max:N/A  D:%dm", slot.MinGapMinutes)
	}
	return sum
}

// Summaries describes every slot using the engine's current baseline.
func (e *Engine) Summaries() []SlotSummary {
	cfg := e.settings.Config()
	baseline, ok := e.BaselinePercent()
	out := make([]SlotSummary, feedslot.Count)
	for i := range out {
		out[i] = Summarize(&cfg, i, baseline, ok)
	}
	return out
}
