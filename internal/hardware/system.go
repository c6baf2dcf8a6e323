package hardware

import (
	"sync"
	"time"

	"github.com/ambience-earth/ambience/internal/rtc"
)

// SystemClock reads the host's monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// SystemRTC reads the host wall clock in Location, or local time when nil.
type SystemRTC struct {
	Location *time.Location
}

func (s SystemRTC) ReadDateTime() (rtc.DateTime, error) {
	now := time.Now()
	if s.Location != nil {
		now = now.In(s.Location)
	}
	return rtc.FromTime(now), nil
}

// Bench is a collaborator set for running without a sensor board: the pump
// only records its state and every sensor reports not ready.
type Bench struct {
	mu   sync.Mutex
	open bool
}

// NewBenchSet returns a Set backed by a Bench and the host clocks.
func NewBenchSet() (Set, *Bench) {
	b := &Bench{}
	return Set{
		Pump:     b,
		Moisture: b,
		Runoff:   b,
		RTC:      SystemRTC{},
		Clock:    SystemClock{},
	}, b
}

func (b *Bench) Open() {
	b.mu.Lock()
	b.open = true
	b.mu.Unlock()
}

func (b *Bench) Close() {
	b.mu.Lock()
	b.open = false
	b.mu.Unlock()
}

// IsOpen reports the last commanded pump state.
func (b *Bench) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Bench) Ready() bool          { return false }
func (b *Bench) Raw() uint16          { return 0 }
func (b *Bench) RunoffDetected() bool { return false }
