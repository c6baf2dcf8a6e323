package eventlog

import (
	"testing"

	"github.com/ambience-earth/ambience/internal/rtc"
)

func TestStepBackwardAndForward(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 5)

	steps := 0
	for s.StepBackward(false) {
		steps++
	}
	if steps != 4 {
		t.Errorf("stepped back %d times, expected 4", steps)
	}
	if e, _ := s.Current(); e.Seq != 1 {
		t.Errorf("oldest seq %d, expected 1", e.Seq)
	}

	steps = 0
	for s.StepForward(false) {
		steps++
	}
	if steps != 4 {
		t.Errorf("stepped forward %d times, expected 4", steps)
	}
	if e, _ := s.Current(); e.Seq != 5 {
		t.Errorf("newest seq %d, expected 5", e.Seq)
	}
}

func TestStepStopsAtOverwriteBoundary(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, testLayout.Slots+30)

	steps := 0
	for s.StepBackward(false) {
		steps++
	}
	if steps != testLayout.Slots-1 {
		t.Errorf("stepped back %d times through a full store, expected %d", steps, testLayout.Slots-1)
	}
	e, slot := s.Current()
	if e.Seq != 31 {
		t.Errorf("oldest surviving seq %d, expected 31", e.Seq)
	}

	// a forced step crosses onto the newest record
	if !s.StepBackward(true) {
		t.Fatal("forced step should succeed")
	}
	if e2, slot2 := s.Current(); e2.Seq != uint16(testLayout.Slots+30) || slot2 != s.prevSlot(slot) {
		t.Errorf("forced step landed on seq %d slot %d", e2.Seq, slot2)
	}
}

func TestStepOnEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)
	if s.StepBackward(false) || s.StepForward(true) {
		t.Error("stepping an empty store should fail")
	}
	if s.AbsoluteNumber() != 0 {
		t.Error("absolute number of an empty store should be 0")
	}
}

func TestBrowseEpochAcrossWrap(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 0xFFFF+50) // newest seq 50, epoch 1

	latest, _ := s.Latest()
	if latest.Seq != 50 || s.Epoch() != 1 {
		t.Fatalf("latest seq %d epoch %d", latest.Seq, s.Epoch())
	}

	prev := s.AbsoluteNumber()
	for i := 0; i < 60; i++ {
		if !s.StepBackward(false) {
			t.Fatalf("step %d failed", i)
		}
		n := s.AbsoluteNumber()
		if n >= prev {
			t.Fatalf("step %d: absolute number %#x not below %#x", i, n, prev)
		}
		prev = n
	}
	if e, _ := s.Current(); e.Seq != 0xFFFF-10 {
		t.Errorf("seq after 60 steps = %#x", e.Seq)
	}
	if prev>>16 != 0 {
		t.Errorf("browse epoch %d, expected 0", prev>>16)
	}

	for i := 0; i < 60; i++ {
		if !s.StepForward(false) {
			t.Fatalf("forward step %d failed", i)
		}
	}
	if s.AbsoluteNumber() != 1<<16|50 {
		t.Errorf("absolute number %#x after returning to latest", s.AbsoluteNumber())
	}
	if s.StepForward(false) {
		t.Error("stepping past the newest record should fail")
	}
}

func TestScansRestoreCursor(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLightsOn(0)
	day := rtc.DateTime{Year: 25, Month: 6, Day: 1, Hour: 12}
	for i := 0; i < 6; i++ {
		e := NewEntry(TypeFeed)
		e.End = day
		e.FeedMl = 10
		if _, err := s.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	s.StepBackward(false)
	s.StepBackward(false)
	wantEntry, wantSlot := s.Current()
	wantNumber := s.AbsoluteNumber()

	s.DailyTotalRange(rtc.DayKey(25, 6, 1))
	s.FindLatestBaselineEntries()
	s.Recent(4)

	gotEntry, gotSlot := s.Current()
	if gotEntry != wantEntry || gotSlot != wantSlot || s.AbsoluteNumber() != wantNumber {
		t.Errorf("cursor moved by scans: slot %d seq %d, expected slot %d seq %d", gotSlot, gotEntry.Seq, wantSlot, wantEntry.Seq)
	}
}

func TestGuardRestoresOnEarlyReturn(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 8)
	_, want := s.Current()

	func() {
		defer s.GuardCursor().Restore()
		for s.StepBackward(false) {
			if e, _ := s.Current(); e.Seq == 4 {
				return
			}
		}
	}()

	if _, got := s.Current(); got != want {
		t.Errorf("cursor slot %d, expected %d", got, want)
	}
}
