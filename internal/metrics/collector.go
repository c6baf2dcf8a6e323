package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ambience-earth/ambience/internal/device"
)

// StatusSource is satisfied by *device.Device.
type StatusSource interface {
	Status() device.Status
}

// DeviceCollector reads the device status at scrape time.
type DeviceCollector struct {
	src StatusSource

	moisture    *prometheus.Desc
	moistureRaw *prometheus.Desc
	baseline    *prometheus.Desc
	dryback     *prometheus.Desc
	dailyTotal  *prometheus.Desc
	dailyLimit  *prometheus.Desc
	feeding     *prometheus.Desc
	enabled     *prometheus.Desc
	paused      *prometheus.Desc
	calibrated  *prometheus.Desc
	runoffWarn  *prometheus.Desc
	sinceFeed   *prometheus.Desc
}

func NewDeviceCollector(src StatusSource) *DeviceCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"device_id"}, nil)
	}
	return &DeviceCollector{
		src:         src,
		moisture:    desc("moisture_percent", "Calibrated soil moisture."),
		moistureRaw: desc("moisture_raw", "Raw moisture sensor reading."),
		baseline:    desc("baseline_percent", "Moisture baseline of the current light day."),
		dryback:     desc("dryback_percent", "Moisture drop from the daily peak."),
		dailyTotal:  desc("daily_total_ml", "Water delivered in the current light day."),
		dailyLimit:  desc("max_daily_water_ml", "Configured daily water limit."),
		feeding:     desc("feeding", "1 while a feeding session is active."),
		enabled:     desc("feeding_enabled", "1 when automatic feeding is enabled."),
		paused:      desc("paused", "1 while the engine is paused."),
		calibrated:  desc("dripper_calibrated", "1 when the dripper flow is calibrated."),
		runoffWarn:  desc("runoff_warning", "1 while a runoff warning is pending."),
		sinceFeed:   desc("seconds_since_feed", "Time since the last feed ended."),
	}
}

func (c *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.moisture, c.moistureRaw, c.baseline, c.dryback, c.dailyTotal, c.dailyLimit,
		c.feeding, c.enabled, c.paused, c.calibrated, c.runoffWarn, c.sinceFeed,
	} {
		ch <- d
	}
}

func (c *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Status()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, st.DeviceID)
	}

	if st.MoistureReady {
		gauge(c.moisture, float64(st.MoisturePercent))
		gauge(c.moistureRaw, float64(st.MoistureRaw))
	}
	if st.HasBaseline {
		gauge(c.baseline, float64(st.BaselinePercent))
	}
	if st.HasDryback {
		gauge(c.dryback, float64(st.DrybackPercent))
	}
	if st.MinutesSinceFeed >= 0 {
		gauge(c.sinceFeed, float64(st.MinutesSinceFeed*60))
	}
	gauge(c.dailyTotal, float64(st.DailyTotalMl))
	gauge(c.dailyLimit, float64(st.MaxDailyWaterMl))
	gauge(c.feeding, boolValue(st.Session.Active))
	gauge(c.enabled, boolValue(st.Enabled))
	gauge(c.paused, boolValue(st.Paused))
	gauge(c.calibrated, boolValue(st.Calibrated))
	gauge(c.runoffWarn, boolValue(st.RunoffWarning))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
