// Package metrics exposes feed events and device state to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/internal/types"
)

const namespace = "ambience"

// Sink counts published events. It is a storage engine so the storage
// manager fans events out to it like any other backend.
type Sink struct {
	events    *prometheus.CounterVec
	feeds     *prometheus.CounterVec
	delivered *prometheus.CounterVec
	runoff    *prometheus.CounterVec
	lastEvent *prometheus.GaugeVec
}

// NewSink creates the event counters and registers them with reg.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_events_total",
			Help:      "Event log entries written, by kind.",
		}, []string{"device_id", "kind"}),
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeds_total",
			Help:      "Feed records, by start and stop reason.",
		}, []string{"device_id", "start_reason", "stop_reason"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_ml_total",
			Help:      "Water delivered by feeds, in millilitres.",
		}, []string{"device_id"}),
		runoff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runoff_violations_total",
			Help:      "Feeds whose runoff did not match the slot expectation.",
		}, []string{"device_id"}),
		lastEvent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_event_timestamp_seconds",
			Help:      "Time of the newest event log entry.",
		}, []string{"device_id"}),
	}
	reg.MustRegister(s.events, s.feeds, s.delivered, s.runoff, s.lastEvent)
	return s
}

// StartStorageEngine creates a goroutine loop to receive events and count
// them
func (s *Sink) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Event {
	log.Info("starting Prometheus metrics sink...")
	eventChan := make(chan types.Event, 10)
	wg.Add(1)
	go storage.ProcessEvents(ctx, wg, eventChan, s.StoreEvent, "metrics")
	return eventChan
}

// StoreEvent updates the counters for one event.
func (s *Sink) StoreEvent(ev types.Event) error {
	s.events.WithLabelValues(ev.DeviceID, ev.Kind).Inc()
	s.lastEvent.WithLabelValues(ev.DeviceID).Set(float64(ev.Timestamp.Unix()))

	if ev.Kind != eventlog.TypeFeed.String() {
		return nil
	}
	s.feeds.WithLabelValues(ev.DeviceID, ev.StartReason, ev.StopReason).Inc()
	s.delivered.WithLabelValues(ev.DeviceID).Add(float64(ev.FeedMl))
	if eventlog.Flags(ev.Flags)&eventlog.FlagRunoffAny != 0 {
		s.runoff.WithLabelValues(ev.DeviceID).Inc()
	}
	return nil
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog: zapErrorLog{},
		Timeout:  10 * time.Second,
	})
}

type zapErrorLog struct{}

func (zapErrorLog) Println(v ...interface{}) {
	log.Error(v...)
}
