// Package serialhub drives the sensor co-processor attached over a serial
// line. The co-processor streams newline-terminated readings and accepts
// pump commands:
//
//	M <raw>                moisture raw reading
//	M -                    moisture sensor warming up
//	R <0|1>                runoff tray dry / wet
//	W <grams>              weight reading
//	W -                    weight sensor not calibrated
//	T <YYYY-MM-DDTHH:MM>   real-time clock
//
// Commands sent to the co-processor are "P1" (pump open) and "P0" (pump
// closed).
package serialhub

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"

	"github.com/ambience-earth/ambience/internal/hardware"
	"github.com/ambience-earth/ambience/internal/rtc"
)

// DefaultBaud is used when Config.Baud is zero.
const DefaultBaud = 115200

// StaleAfter is how long a reading stays usable without a refresh.
const StaleAfter = 30 * time.Second

const reconnectDelay = 10 * time.Second

// Config names the serial port of the co-processor.
type Config struct {
	Device string
	Baud   int
}

type reading struct {
	ready bool
	at    time.Time
}

// Hub holds the latest co-processor readings and forwards pump commands.
type Hub struct {
	config Config
	logger *zap.SugaredLogger
	clock  hardware.Clock

	mu       sync.Mutex
	rwc      io.ReadWriteCloser
	pumpOpen bool

	moisture    reading
	moistureRaw uint16
	runoff      reading
	runoffWet   bool
	weight      reading
	weightGrams float64
	clockAt     reading
	dateTime    rtc.DateTime
}

// New returns a Hub for config. Start connects it.
func New(config Config, clock hardware.Clock, logger *zap.SugaredLogger) *Hub {
	if config.Baud == 0 {
		config.Baud = DefaultBaud
	}
	return &Hub{config: config, clock: clock, logger: logger}
}

// Set returns the hub's collaborators.
func (h *Hub) Set() hardware.Set {
	return hardware.Set{
		Pump:     h,
		Moisture: moistureSensor{h},
		Runoff:   h,
		Weight:   weightSensor{h},
		RTC:      h,
		Clock:    h.clock,
	}
}

// Start launches the reader goroutine, reconnecting until ctx is done.
func (h *Hub) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.run(ctx)
	}()
}

func (h *Hub) run(ctx context.Context) {
	for {
		rwc, err := h.connect()
		if err != nil {
			h.logger.Errorf("failed to open serial port %s: %v", h.config.Device, err)
			h.logger.Infof("sleeping %v and trying again", reconnectDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		h.attach(rwc)
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				rwc.Close()
			case <-done:
			}
		}()

		err = h.serve(rwc)
		close(done)
		h.detach()
		rwc.Close()

		select {
		case <-ctx.Done():
			h.logger.Info("cancellation request received, closing serial hub")
			return
		default:
		}
		h.logger.Errorf("serial hub connection lost: %v", err)
	}
}

func (h *Hub) connect() (io.ReadWriteCloser, error) {
	h.logger.Infof("connecting to sensor hub on %s at %d baud", h.config.Device, h.config.Baud)
	return serial.OpenPort(&serial.Config{Name: h.config.Device, Baud: h.config.Baud})
}

// attach makes rwc the command channel and replays the pump state so a
// reconnect does not leave the line in the wrong position.
func (h *Hub) attach(rwc io.ReadWriteCloser) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rwc = rwc
	h.sendLocked(h.pumpOpen)
}

func (h *Hub) detach() {
	h.mu.Lock()
	h.rwc = nil
	h.mu.Unlock()
}

// serve reads lines from r until it fails.
func (h *Hub) serve(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := h.handleLine(scanner.Text()); err != nil {
			h.logger.Debugf("ignoring sensor hub line: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (h *Hub) handleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	kind, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	now := h.clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	switch kind {
	case "M":
		if value == "-" {
			h.moisture = reading{at: now}
			return nil
		}
		raw, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("bad moisture reading %q: %w", value, err)
		}
		h.moistureRaw = uint16(raw)
		h.moisture = reading{ready: true, at: now}
	case "R":
		switch value {
		case "0":
			h.runoffWet = false
		case "1":
			h.runoffWet = true
		default:
			return fmt.Errorf("bad runoff reading %q", value)
		}
		h.runoff = reading{ready: true, at: now}
	case "W":
		if value == "-" {
			h.weight = reading{at: now}
			return nil
		}
		g, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("bad weight reading %q: %w", value, err)
		}
		h.weightGrams = g
		h.weight = reading{ready: true, at: now}
	case "T":
		t, err := time.Parse("2006-01-02T15:04", value)
		if err != nil {
			return fmt.Errorf("bad clock reading %q: %w", value, err)
		}
		h.dateTime = rtc.FromTime(t)
		h.clockAt = reading{ready: true, at: now}
	default:
		return fmt.Errorf("unknown line type %q", kind)
	}
	return nil
}

func (h *Hub) fresh(r reading) bool {
	return r.ready && h.clock.Now().Sub(r.at) < StaleAfter
}

// Open opens the pump line.
func (h *Hub) Open() {
	h.setPump(true)
}

// Close closes the pump line.
func (h *Hub) Close() {
	h.setPump(false)
}

func (h *Hub) setPump(open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pumpOpen == open {
		return
	}
	h.pumpOpen = open
	h.sendLocked(open)
}

func (h *Hub) sendLocked(open bool) {
	if h.rwc == nil {
		h.logger.Warnf("sensor hub not connected, pump command open=%v deferred", open)
		return
	}
	cmd := "P0\n"
	if open {
		cmd = "P1\n"
	}
	if _, err := io.WriteString(h.rwc, cmd); err != nil {
		h.logger.Errorf("could not send pump command: %v", err)
	}
}

// RunoffDetected reports a wet tray. Stale readings count as dry.
func (h *Hub) RunoffDetected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fresh(h.runoff) && h.runoffWet
}

// ReadDateTime returns the last clock line, advanced by the time since it
// arrived.
func (h *Hub) ReadDateTime() (rtc.DateTime, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.fresh(h.clockAt) {
		return rtc.DateTime{}, hardware.ErrNotReady
	}
	t := h.dateTime.Time(time.UTC).Add(h.clock.Now().Sub(h.clockAt.at))
	return rtc.FromTime(t), nil
}

type moistureSensor struct{ h *Hub }

func (m moistureSensor) Ready() bool {
	m.h.mu.Lock()
	defer m.h.mu.Unlock()
	return m.h.fresh(m.h.moisture)
}

func (m moistureSensor) Raw() uint16 {
	m.h.mu.Lock()
	defer m.h.mu.Unlock()
	return m.h.moistureRaw
}

type weightSensor struct{ h *Hub }

func (w weightSensor) Ready() bool {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	return w.h.fresh(w.h.weight)
}

func (w weightSensor) Grams() float64 {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	return w.h.weightGrams
}
