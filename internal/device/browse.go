package device

import (
	"github.com/ambience-earth/ambience/internal/eventlog"
)

// LogView is the entry under the browse cursor.
type LogView struct {
	Empty  bool           `json:"empty"`
	Number uint32         `json:"number"`
	Slot   int            `json:"slot"`
	Entry  eventlog.Entry `json:"entry"`
}

func (d *Device) view() LogView {
	e, slot := d.log.Current()
	if slot < 0 || e.Empty() {
		return LogView{Empty: true, Slot: -1}
	}
	return LogView{Number: d.log.AbsoluteNumber(), Slot: slot, Entry: e}
}

// LatestEntry moves the browse cursor to the newest entry.
func (d *Device) LatestEntry() LogView {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.GotoLatest()
	return d.view()
}

// CurrentEntry returns the entry under the browse cursor.
func (d *Device) CurrentEntry() LogView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view()
}

// PrevEntry steps the cursor to the previous entry. moved is false at the
// oldest entry.
func (d *Device) PrevEntry() (v LogView, moved bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	moved = d.log.StepBackward(false)
	return d.view(), moved
}

// NextEntry steps the cursor to the next entry. moved is false at the
// newest entry.
func (d *Device) NextEntry() (v LogView, moved bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	moved = d.log.StepForward(false)
	return d.view(), moved
}

// RecentEntries returns up to n entries, newest first.
func (d *Device) RecentEntries(n int) []eventlog.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.log.Recent(n)
}

// Daily summarises the light day identified by key. A zero key selects
// today.
func (d *Device) Daily(key uint16) (eventlog.DailySummary, uint16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if key == 0 {
		today, ok := d.engine.LightDayKey()
		if !ok {
			return eventlog.DailySummary{}, 0, false
		}
		key = today
	}
	return d.log.DailyTotalRange(key), key, true
}

// WipeLog erases every entry and resets the log epoch. Baseline tracking
// restarts from the empty log.
func (d *Device) WipeLog() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine.Active() {
		return ErrBusy
	}
	if err := d.log.Wipe(); err != nil {
		return err
	}
	d.engine.BaselineInit()
	d.logger.Info("event log wiped")
	return nil
}
