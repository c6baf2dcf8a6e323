// Package calibration measures the moisture sensor's dry and soaked points
// and the dripper's flow rate.
package calibration

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ambience-earth/ambience/internal/volume"
)

var (
	ErrRunning    = errors.New("calibration: already running")
	ErrNotRunning = errors.New("calibration: not running")
	ErrNoSamples  = errors.New("calibration: no samples collected")
	ErrNotStopped = errors.New("calibration: dripper run has not been stopped")
	ErrNoVolume   = errors.New("calibration: measured volume must be positive")
)

// DefaultWindowSamples bounds a moisture window. At one sample per tick this
// is a five minute window.
const DefaultWindowSamples = 300

// WindowStats summarises a moisture calibration window.
type WindowStats struct {
	Samples int     `json:"samples"`
	MeanRaw uint16  `json:"mean_raw"`
	StdDev  float64 `json:"std_dev"`
	MinRaw  uint16  `json:"min_raw"`
	MaxRaw  uint16  `json:"max_raw"`
}

// MoistureWindow collects raw moisture samples between Start and Stop.
type MoistureWindow struct {
	// Limit caps the number of samples. Zero means DefaultWindowSamples.
	Limit int

	running bool
	samples []float64
}

// Start discards previous samples and begins a new window.
func (w *MoistureWindow) Start() error {
	if w.running {
		return ErrRunning
	}
	w.running = true
	w.samples = w.samples[:0]
	return nil
}

// Running reports whether the window is collecting.
func (w *MoistureWindow) Running() bool {
	return w.running
}

// Add records a sample. It reports true once the window is full; further
// samples are ignored.
func (w *MoistureWindow) Add(raw uint16) bool {
	if !w.running {
		return false
	}
	limit := w.Limit
	if limit <= 0 {
		limit = DefaultWindowSamples
	}
	if len(w.samples) >= limit {
		return true
	}
	w.samples = append(w.samples, float64(raw))
	return len(w.samples) >= limit
}

// Stats summarises the samples collected so far.
func (w *MoistureWindow) Stats() (WindowStats, error) {
	if len(w.samples) == 0 {
		return WindowStats{}, ErrNoSamples
	}
	mean, std := stat.MeanStdDev(w.samples, nil)
	if len(w.samples) == 1 {
		std = 0
	}
	return WindowStats{
		Samples: len(w.samples),
		MeanRaw: uint16(math.Round(mean)),
		StdDev:  std,
		MinRaw:  uint16(floats.Min(w.samples)),
		MaxRaw:  uint16(floats.Max(w.samples)),
	}, nil
}

// Stop ends the window and returns its statistics.
func (w *MoistureWindow) Stop() (WindowStats, error) {
	if !w.running {
		return WindowStats{}, ErrNotRunning
	}
	w.running = false
	return w.Stats()
}

// Dripper times a calibration run of the pump. The operator measures the
// water delivered and commits it to derive milliseconds per liter.
type Dripper struct {
	running   bool
	startedAt time.Time
	elapsed   time.Duration
}

// Start begins a timed run.
func (d *Dripper) Start(now time.Time) error {
	if d.running {
		return ErrRunning
	}
	d.running = true
	d.startedAt = now
	d.elapsed = 0
	return nil
}

// Running reports whether a run is in progress.
func (d *Dripper) Running() bool {
	return d.running
}

// Stop ends the run and returns its duration.
func (d *Dripper) Stop(now time.Time) (time.Duration, error) {
	if !d.running {
		return 0, ErrNotRunning
	}
	d.running = false
	d.elapsed = now.Sub(d.startedAt)
	return d.elapsed, nil
}

// Commit converts the last run and the measured volume into a calibration
// constant.
func (d *Dripper) Commit(measuredMl uint16) (uint32, error) {
	if d.running || d.elapsed <= 0 {
		return 0, ErrNotStopped
	}
	if measuredMl == 0 {
		return 0, ErrNoVolume
	}
	ms := d.elapsed.Milliseconds()
	if ms > math.MaxUint32 {
		ms = math.MaxUint32
	}
	return volume.MsPerLiter(uint32(ms), measuredMl), nil
}
