// Package mqtt publishes feed events to an MQTT broker as JSON.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/internal/types"
	"github.com/ambience-earth/ambience/pkg/config"
)

const (
	connectMaxElapsed = 10 * time.Second
	connectRetries    = 5
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms

	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// Storage holds the broker connection for an MQTT storage backend
type Storage struct {
	client paho.Client
	prefix string
	cb     *gobreaker.CircuitBreaker
}

// New connects to the broker, retrying with exponential backoff.
func New(ctx context.Context, cfg config.MQTTData) (*Storage, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mqtt: host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = config.DefaultMQTTPort
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ambience-" + uuid.NewString()[:8]
	}

	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, port)
	opts := paho.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectMaxElapsed

	var client paho.Client
	err := backoff.Retry(func() error {
		client = paho.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warnf("failed to connect to MQTT broker: %v", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}
	log.Infof("connected to MQTT broker at %s", connAddr)

	return &Storage{
		client: client,
		prefix: topicPrefix(cfg.Topic),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "mqtt",
			Timeout: breakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerFailures
			},
		}),
	}, nil
}

// StartStorageEngine creates a goroutine loop to receive events and publish
// them to the broker
func (m *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Event {
	log.Info("starting MQTT storage engine...")
	eventChan := make(chan types.Event, 10)
	wg.Add(1)
	go storage.ProcessEvents(ctx, wg, eventChan, m.StoreEvent, "MQTT")
	storage.StartHealthMonitor(ctx, "mqtt", m, time.Minute)

	go func() {
		<-ctx.Done()
		m.client.Disconnect(disconnectQuiesce)
		log.Info("MQTT connection is closed")
	}()
	return eventChan
}

// StoreEvent publishes ev to <prefix>/<device>/events with QoS 1.
func (m *Storage) StoreEvent(ev types.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not encode event: %w", err)
	}

	topic := eventTopic(m.prefix, ev.DeviceID)
	_, err = m.cb.Execute(func() (any, error) {
		token := m.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return nil, fmt.Errorf("publish to %s timed out", topic)
		}
		return nil, token.Error()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %d: %w", ev.Number, err)
	}
	return nil
}

// CheckHealth reports the connection and breaker state
func (m *Storage) CheckHealth() *storage.HealthData {
	switch {
	case !m.client.IsConnectionOpen():
		return storage.CreateHealthData(storage.StatusUnhealthy, "MQTT broker not connected", nil)
	case m.cb.State() == gobreaker.StateOpen:
		return storage.CreateHealthData(storage.StatusUnhealthy, "circuit breaker open", nil)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "MQTT connected", nil)
}

func topicPrefix(topic string) string {
	topic = strings.Trim(topic, "/")
	if topic == "" {
		return config.DefaultMQTTTopic
	}
	return topic
}

// eventTopic builds the per-device topic. MQTT wildcards and separators in
// the device id are replaced so the id stays one topic level.
func eventTopic(prefix, deviceID string) string {
	id := strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, deviceID)
	if id == "" {
		id = "unknown"
	}
	return prefix + "/" + id + "/events"
}
