package eventlog

import (
	"math"
	"slices"
)

// BaselineEntries is the result of FindLatestBaselineEntries. Slot fields
// are -1 when nothing was found.
type BaselineEntries struct {
	Setter           Entry
	SetterSlot       int
	WithBaseline     Entry
	WithBaselineSlot int
	LatestFeed       Entry
	LatestFeedSlot   int
}

// FindLatestBaselineEntries walks backward from the newest record collecting
// the newest baseline-setter feed that saw runoff, the newest record with a
// computed baseline and the newest feed that delivered water. It stops once
// all three are found or the log is exhausted.
func (s *Store) FindLatestBaselineEntries() BaselineEntries {
	defer s.GuardCursor().Restore()

	res := BaselineEntries{SetterSlot: -1, WithBaselineSlot: -1, LatestFeedSlot: -1}
	s.GotoLatest()
	if s.cursor.slot < 0 {
		return res
	}

	for n := 0; n < s.layout.Slots; n++ {
		e, slot := s.Current()
		if e.Type == TypeFeed && e.FeedMl > 0 && res.LatestFeedSlot < 0 {
			res.LatestFeed, res.LatestFeedSlot = e, slot
		}
		if e.IsBaselineCandidate() && res.SetterSlot < 0 {
			res.Setter, res.SetterSlot = e, slot
		}
		if e.HasBaseline() && res.WithBaselineSlot < 0 {
			res.WithBaseline, res.WithBaselineSlot = e, slot
		}
		if res.SetterSlot >= 0 && res.WithBaselineSlot >= 0 && res.LatestFeedSlot >= 0 {
			break
		}
		if !s.StepBackward(false) {
			break
		}
	}
	return res
}

// DailySummary aggregates one light day.
type DailySummary struct {
	TotalMl      uint16 `json:"total_ml"`
	Feeds        int    `json:"feeds"`
	HasSnapshots bool   `json:"has_snapshots"`
	MinPercent   uint8  `json:"min_percent"`
	MaxPercent   uint8  `json:"max_percent"`
}

// DailyTotalRange walks backward from the newest record while records belong
// to lightDayKey or later, summing delivered volume of that day's feeds and
// the range of its snapshot moisture readings. Records with key 0 carry no
// day and are stepped over.
func (s *Store) DailyTotalRange(lightDayKey uint16) DailySummary {
	defer s.GuardCursor().Restore()

	var sum DailySummary
	s.GotoLatest()
	if s.cursor.slot < 0 {
		return sum
	}

	for n := 0; n < s.layout.Slots; n++ {
		e, _ := s.Current()
		if e.LightDayKey != 0 && e.LightDayKey < lightDayKey {
			break
		}
		if e.LightDayKey == lightDayKey {
			switch e.Type {
			case TypeFeed:
				sum.Feeds++
				if math.MaxUint16-sum.TotalMl < e.FeedMl {
					sum.TotalMl = math.MaxUint16
				} else {
					sum.TotalMl += e.FeedMl
				}
			case TypeValuesSnapshot:
				if !sum.HasSnapshots {
					sum.MinPercent, sum.MaxPercent = e.SoilBefore, e.SoilBefore
					sum.HasSnapshots = true
				}
				sum.MinPercent = min(sum.MinPercent, e.SoilBefore)
				sum.MaxPercent = max(sum.MaxPercent, e.SoilBefore)
			}
		}
		if !s.StepBackward(false) {
			break
		}
	}
	return sum
}

// TimeTriggeredSlots returns the slot indexes of feeds started by a time
// trigger during lightDayKey. Refusals are not counted.
func (s *Store) TimeTriggeredSlots(lightDayKey uint16) []uint8 {
	defer s.GuardCursor().Restore()

	s.GotoLatest()
	if s.cursor.slot < 0 || lightDayKey == 0 {
		return nil
	}

	var slots []uint8
	for n := 0; n < s.layout.Slots; n++ {
		e, _ := s.Current()
		if e.LightDayKey != 0 && e.LightDayKey < lightDayKey {
			break
		}
		if e.LightDayKey == lightDayKey && e.Type == TypeFeed && e.StartReason == StartTime && !e.IsRefusal() {
			if !slices.Contains(slots, e.SlotIndex) {
				slots = append(slots, e.SlotIndex)
			}
		}
		if !s.StepBackward(false) {
			break
		}
	}
	return slots
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(n int) []Entry {
	defer s.GuardCursor().Restore()

	s.GotoLatest()
	if s.cursor.slot < 0 || n <= 0 {
		return nil
	}
	out := make([]Entry, 0, min(n, s.layout.Slots))
	for len(out) < n {
		e, _ := s.Current()
		out = append(out, e)
		if !s.StepBackward(false) {
			break
		}
	}
	return out
}
