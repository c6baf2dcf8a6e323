package eventlog

// GotoLatest moves the browse cursor to the newest record and resets the
// browse epoch to the persisted epoch.
func (s *Store) GotoLatest() {
	s.cursor = cursor{slot: s.latestSlot, entry: s.latest, epoch: s.epoch}
}

// Current returns the record under the browse cursor and its slot. The slot
// is -1 when the store is empty.
func (s *Store) Current() (Entry, int) {
	return s.cursor.entry, s.cursor.slot
}

// AbsoluteNumber returns epoch<<16|seq for the record under the cursor. It
// increases monotonically across sequence wraps.
func (s *Store) AbsoluteNumber() uint32 {
	return uint32(s.cursor.epoch)<<16 | uint32(s.cursor.entry.Seq)
}

// StepForward moves the cursor to the physically next slot. Unless force is
// set, the move only succeeds when that slot holds a record written after
// the current one; otherwise the cursor stays put and false is returned.
func (s *Store) StepForward(force bool) bool {
	return s.step(s.nextSlot, force, func(next, cur uint16) bool { return IsLater(next, cur) })
}

// StepBackward moves the cursor to the physically previous slot. Unless
// force is set, the move only succeeds when that slot holds a record written
// before the current one.
func (s *Store) StepBackward(force bool) bool {
	return s.step(s.prevSlot, force, func(prev, cur uint16) bool { return IsLater(cur, prev) })
}

func (s *Store) step(adjacent func(int) int, force bool, ordered func(candidate, cur uint16) bool) bool {
	if s.cursor.slot < 0 {
		return false
	}
	slot := adjacent(s.cursor.slot)
	e := s.readSlot(slot)
	cur := s.cursor.entry.Seq
	if !force && (e.Empty() || cur == 0 || !ordered(e.Seq, cur)) {
		return false
	}

	if !e.Empty() && cur != 0 {
		switch {
		case IsLater(e.Seq, cur) && e.Seq < cur:
			s.cursor.epoch++
		case IsLater(cur, e.Seq) && e.Seq > cur:
			s.cursor.epoch--
		}
	}
	s.cursor.slot = slot
	s.cursor.entry = e
	return true
}

// CursorGuard restores the browse cursor captured by GuardCursor.
type CursorGuard struct {
	s     *Store
	saved cursor
}

// GuardCursor captures the browse cursor. Every scan pairs it with a
// deferred Restore:
//
//	defer s.GuardCursor().Restore()
func (s *Store) GuardCursor() CursorGuard {
	return CursorGuard{s: s, saved: s.cursor}
}

// Restore puts the cursor back where it was when the guard was taken. A
// baseline patched during the scan is kept.
func (g CursorGuard) Restore() {
	saved := g.saved
	if saved.slot >= 0 && saved.slot == g.s.latestSlot {
		saved.entry.BaselinePercent = g.s.latest.BaselinePercent
	}
	g.s.cursor = saved
}
