package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/ambience-earth/ambience/internal/calibration"
	"github.com/ambience-earth/ambience/internal/settings"
)

// MoisturePoint selects which calibration point a moisture window sets.
type MoisturePoint string

const (
	PointDry    MoisturePoint = "dry"
	PointSoaked MoisturePoint = "soaked"
)

var ErrBadPoint = errors.New("device: calibration point must be dry or soaked")

// StartMoistureCalibration begins collecting raw moisture samples on every
// tick.
func (d *Device) StartMoistureCalibration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasWindowStats = false
	return d.window.Start()
}

// MoistureCalibrationStats reports the samples collected so far.
func (d *Device) MoistureCalibrationStats() (calibration.WindowStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.window.Running() && d.hasWindowStats {
		return d.windowStats, nil
	}
	return d.window.Stats()
}

// StopMoistureCalibration ends the window. Its mean can then be committed.
func (d *Device) StopMoistureCalibration() (calibration.WindowStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats, err := d.window.Stop()
	if err != nil {
		return stats, err
	}
	d.windowStats = stats
	d.hasWindowStats = true
	return stats, nil
}

// CommitMoistureCalibration stores the mean of the last window as the dry or
// soaked calibration point.
func (d *Device) CommitMoistureCalibration(point MoisturePoint) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window.Running() || !d.hasWindowStats {
		return 0, calibration.ErrNotStopped
	}
	raw := d.windowStats.MeanRaw

	var fn func(*settings.Config)
	switch point {
	case PointDry:
		fn = func(c *settings.Config) { c.MoistureDry = raw }
	case PointSoaked:
		fn = func(c *settings.Config) { c.MoistureSoaked = raw }
	default:
		return 0, ErrBadPoint
	}
	if err := d.updateSettings(fn); err != nil {
		return 0, err
	}
	d.hasWindowStats = false
	d.logger.Infof("moisture %s point calibrated to raw %d", point, raw)
	return raw, nil
}

// StartDripperCalibration opens the pump for a timed run. The engine is held
// off until the run stops.
func (d *Device) StartDripperCalibration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine.Active() {
		return ErrBusy
	}
	if err := d.dripper.Start(d.hw.Clock.Now()); err != nil {
		return err
	}
	d.hw.Pump.Open()
	return nil
}

// StopDripperCalibration closes the pump and returns the run time.
func (d *Device) StopDripperCalibration() (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	elapsed, err := d.dripper.Stop(d.hw.Clock.Now())
	if err != nil {
		return 0, err
	}
	d.hw.Pump.Close()
	return elapsed, nil
}

// CommitDripperCalibration stores milliseconds per liter for the measured
// volume of the last run and marks the dripper calibrated.
func (d *Device) CommitDripperCalibration(measuredMl uint16) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msPerLiter, err := d.dripper.Commit(measuredMl)
	if err != nil {
		return 0, err
	}
	if msPerLiter == 0 {
		return 0, fmt.Errorf("device: run too short for %d ml", measuredMl)
	}
	if err := d.updateSettings(func(c *settings.Config) { c.SetDripperCalibration(msPerLiter) }); err != nil {
		return 0, err
	}
	d.logger.Infof("dripper calibrated at %d ms/l", msPerLiter)
	return msPerLiter, nil
}
