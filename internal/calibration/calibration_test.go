package calibration

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestMoistureWindow(t *testing.T) {
	var w MoistureWindow
	if _, err := w.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop before Start: err = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Start: err = %v", err)
	}

	for _, raw := range []uint16{500, 510, 490, 505, 495} {
		w.Add(raw)
	}
	st, err := w.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if st.Samples != 5 || st.MeanRaw != 500 || st.MinRaw != 490 || st.MaxRaw != 510 {
		t.Errorf("stats = %+v", st)
	}
	if math.Abs(st.StdDev-7.9057) > 0.001 {
		t.Errorf("std dev = %v, want about 7.906", st.StdDev)
	}
	if w.Add(1) {
		t.Error("Add after Stop should be ignored")
	}
}

func TestMoistureWindowLimit(t *testing.T) {
	w := MoistureWindow{Limit: 3}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	full := []bool{w.Add(100), w.Add(101), w.Add(102), w.Add(999)}
	want := []bool{false, false, true, true}
	for i := range full {
		if full[i] != want[i] {
			t.Errorf("Add #%d full = %v, want %v", i, full[i], want[i])
		}
	}
	st, err := w.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if st.Samples != 3 || st.MaxRaw != 102 {
		t.Errorf("stats = %+v, extra sample should have been dropped", st)
	}
}

func TestMoistureWindowEmpty(t *testing.T) {
	var w MoistureWindow
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Stop(); !errors.Is(err, ErrNoSamples) {
		t.Errorf("err = %v, want ErrNoSamples", err)
	}

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Add(321)
	st, err := w.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if st.StdDev != 0 || st.MeanRaw != 321 {
		t.Errorf("single sample stats = %+v", st)
	}
}

func TestDripper(t *testing.T) {
	var d Dripper
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := d.Commit(100); !errors.Is(err, ErrNotStopped) {
		t.Fatalf("Commit before a run: err = %v", err)
	}
	if err := d.Start(t0); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Commit(100); !errors.Is(err, ErrNotStopped) {
		t.Fatalf("Commit while running: err = %v", err)
	}
	elapsed, err := d.Stop(t0.Add(60 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if elapsed != time.Minute {
		t.Errorf("elapsed = %v", elapsed)
	}
	if _, err := d.Commit(0); !errors.Is(err, ErrNoVolume) {
		t.Errorf("Commit(0): err = %v", err)
	}

	// 60 s delivered 100 ml: 600 s per liter
	msPerLiter, err := d.Commit(100)
	if err != nil {
		t.Fatal(err)
	}
	if msPerLiter != 600000 {
		t.Errorf("ms per liter = %d, want 600000", msPerLiter)
	}
}
