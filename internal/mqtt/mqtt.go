// Package mqtt provides MQTT publishing for Home Assistant integration.
// It defines the Publisher interface and includes both a StubPublisher
// (no-op) and a full HAPublisher that connects to an MQTT broker,
// publishes HA auto-discovery configs for the cloud sensors, and
// forwards state updates from the EventBus. The Cubo cloud API is
// read-only, so no command topics exist.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/niruse/cuboai/internal/core/api"
	"github.com/niruse/cuboai/internal/core/state"
)

// ---------------------------------------------------------------------------
// Publisher interface
// ---------------------------------------------------------------------------

// Publisher sends events and state to an MQTT broker.
type Publisher interface {
	// Start begins publishing events from the event bus.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// StubPublisher (no-op, used when MQTT is disabled)
// ---------------------------------------------------------------------------

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	log *slog.Logger
}

// NewStubPublisher creates a no-op MQTT publisher.
func NewStubPublisher(log *slog.Logger) *StubPublisher {
	return &StubPublisher{log: log}
}

// Start is a no-op.
func (s *StubPublisher) Start(_ context.Context) error {
	s.log.Info("MQTT publisher disabled (stub)")
	return nil
}

// Stop is a no-op.
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

// Ensure StubPublisher implements Publisher.
var _ Publisher = (*StubPublisher)(nil)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// MQTTConfig holds MQTT publisher configuration.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceID    string `yaml:"device_id"`
	BabyName    string `yaml:"baby_name"`
}

// ---------------------------------------------------------------------------
// HAPublisher – full Home Assistant MQTT implementation
// ---------------------------------------------------------------------------

// Ensure HAPublisher implements Publisher at compile time.
var _ Publisher = (*HAPublisher)(nil)

// HAPublisher publishes Home Assistant auto-discovery configs and
// forwards state updates from the EventBus.
type HAPublisher struct {
	cfg   MQTTConfig
	store state.StateReader
	bus   *state.EventBus
	log   *slog.Logger

	client pahomqtt.Client

	unsub func() // EventBus unsubscribe
	stopC chan struct{}
	wg    sync.WaitGroup
}

// NewHAPublisher creates a new Home Assistant MQTT publisher.
func NewHAPublisher(cfg MQTTConfig, store state.StateReader, bus *state.EventBus, log *slog.Logger) *HAPublisher {
	return &HAPublisher{
		cfg:   cfg,
		store: store,
		bus:   bus,
		log:   log,
		stopC: make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

// Start connects to the MQTT broker, publishes discovery configs,
// publishes initial state, and starts listening on the EventBus for
// real-time updates.
func (p *HAPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(fmt.Sprintf("cuboai-%s", p.cfg.DeviceID)).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.log.Info("MQTT connected, publishing discovery and state")
			p.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.log.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Subscribe to EventBus.
	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.log.Info("MQTT publisher started", "broker", p.cfg.Broker)
	return nil
}

// Stop gracefully disconnects from the MQTT broker and stops the event loop.
func (p *HAPublisher) Stop(_ context.Context) error {
	p.log.Info("MQTT publisher stopping")

	// Signal event loop to exit.
	close(p.stopC)

	// Unsubscribe from EventBus and drain anything buffered.
	if p.unsub != nil {
		p.unsub()
	}

	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		// Publish offline before disconnecting.
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.log.Info("MQTT publisher stopped")
	return nil
}

// ---------------------------------------------------------------------------
// onConnect – called on every (re)connect
// ---------------------------------------------------------------------------

func (p *HAPublisher) onConnect() {
	// 1. Publish online availability (retained).
	p.publish(p.topic("status"), "online", true)

	// 2. Publish all discovery configs.
	p.publishDiscovery()

	// 3. Subscribe to HA birth topic for re-discovery.
	p.client.Subscribe("homeassistant/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if string(msg.Payload()) == "online" {
			p.log.Info("Home Assistant came online, re-publishing discovery")
			p.publishDiscovery()
			p.publishFullState()
		}
	})

	// 4. Publish initial state snapshot.
	p.publishFullState()
}

// ---------------------------------------------------------------------------
// Discovery configs
// ---------------------------------------------------------------------------

// deviceInfo returns the shared HA device block.
func (p *HAPublisher) deviceInfo() map[string]interface{} {
	return map[string]interface{}{
		"identifiers":  []string{p.cfg.DeviceID},
		"name":         fmt.Sprintf("CuboAi %s", p.cfg.BabyName),
		"manufacturer": "CuboAi",
		"model":        "Smart Baby Camera",
	}
}

// discoveryTopic builds the HA auto-discovery topic.
func discoveryTopic(component, deviceID, objectID string) string {
	return fmt.Sprintf("homeassistant/%s/%s_%s/config", component, deviceID, objectID)
}

func (p *HAPublisher) publishDiscovery() {
	dev := p.deviceInfo()
	avail := map[string]interface{}{
		"topic": p.topic("status"),
	}
	id := p.cfg.DeviceID

	p.publishDiscoveryConfig("binary_sensor", "connection", map[string]interface{}{
		"name":         fmt.Sprintf("CuboAi %s Connection", p.cfg.BabyName),
		"unique_id":    fmt.Sprintf("%s_connection", id),
		"state_topic":  p.topic("connection/state"),
		"device_class": "connectivity",
		"payload_on":   "ON",
		"payload_off":  "OFF",
		"device":       dev,
		"availability": avail,
	})

	p.publishDiscoveryConfig("sensor", "last_alert", map[string]interface{}{
		"name":                  fmt.Sprintf("CuboAi %s Last Alert", p.cfg.BabyName),
		"unique_id":             fmt.Sprintf("%s_last_alert", id),
		"state_topic":           p.topic("alerts/state"),
		"json_attributes_topic": p.topic("alerts/attributes"),
		"icon":                  "mdi:bell-alert",
		"device":                dev,
		"availability":          avail,
	})

	p.publishDiscoveryConfig("sensor", "subscription", map[string]interface{}{
		"name":                  fmt.Sprintf("CuboAi %s Subscription", p.cfg.BabyName),
		"unique_id":             fmt.Sprintf("%s_subscription", id),
		"state_topic":           p.topic("subscription/state"),
		"json_attributes_topic": p.topic("subscription/attributes"),
		"icon":                  "mdi:star-circle",
		"device":                dev,
		"availability":          avail,
	})

	p.publishDiscoveryConfig("sensor", "baby_info", map[string]interface{}{
		"name":                  fmt.Sprintf("CuboAi %s Baby Info", p.cfg.BabyName),
		"unique_id":             fmt.Sprintf("%s_baby_info", id),
		"state_topic":           p.topic("baby/state"),
		"json_attributes_topic": p.topic("baby/attributes"),
		"icon":                  "mdi:baby-face-outline",
		"device":                dev,
		"availability":          avail,
	})
}

func (p *HAPublisher) publishDiscoveryConfig(component, objectID string, payload map[string]interface{}) {
	topic := discoveryTopic(component, p.cfg.DeviceID, objectID)
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal discovery config", "component", component, "object_id", objectID, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

// ---------------------------------------------------------------------------
// State publishing
// ---------------------------------------------------------------------------

// publishFullState publishes the complete state snapshot.
func (p *HAPublisher) publishFullState() {
	snap := p.store.Snapshot()

	p.publishCameraState(snap.Camera)
	p.publishAlertsState(snap.Alerts)
	p.publishSubscriptionState(snap.Subscription)
	p.publishBabyState(snap.BabyInfo)
}

func (p *HAPublisher) publishCameraState(snap state.CameraSnapshot) {
	online := strings.EqualFold(snap.State, "online")
	p.publish(p.topic("connection/state"), boolToOnOff(online), true)
}

func (p *HAPublisher) publishAlertsState(snap state.AlertsSnapshot) {
	p.publish(p.topic("alerts/state"), snap.State, true)

	attrs := map[string]interface{}{
		"alerts": snap.Alerts,
		"count":  len(snap.Alerts),
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		p.log.Error("failed to marshal alert attributes", "error", err)
		return
	}
	p.publish(p.topic("alerts/attributes"), string(data), true)
}

func (p *HAPublisher) publishSubscriptionState(snap state.SubscriptionSnapshot) {
	p.publish(p.topic("subscription/state"), snap.State, true)

	if snap.Subscription == nil {
		return
	}
	data, err := json.Marshal(snap.Subscription)
	if err != nil {
		p.log.Error("failed to marshal subscription attributes", "error", err)
		return
	}
	p.publish(p.topic("subscription/attributes"), string(data), true)
}

func (p *HAPublisher) publishBabyState(info *api.CameraDetails) {
	if info == nil {
		return
	}
	name := info.BabyName
	if name == "" {
		name = state.StateUnknown
	}
	p.publish(p.topic("baby/state"), name, true)

	data, err := json.Marshal(info)
	if err != nil {
		p.log.Error("failed to marshal baby info attributes", "error", err)
		return
	}
	p.publish(p.topic("baby/attributes"), string(data), true)
}

// ---------------------------------------------------------------------------
// EventBus loop
// ---------------------------------------------------------------------------

func (p *HAPublisher) eventLoop(ch <-chan state.Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopC:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *HAPublisher) handleEvent(evt state.Event) {
	switch evt.Type {
	case state.EventCameraStateUpdate:
		snap, ok := evt.Data.(state.CameraSnapshot)
		if !ok {
			p.log.Warn("unexpected data type for camera_state_update")
			return
		}
		p.publishCameraState(snap)

	case state.EventAlertsUpdate:
		snap, ok := evt.Data.(state.AlertsSnapshot)
		if !ok {
			p.log.Warn("unexpected data type for alerts_update")
			return
		}
		p.publishAlertsState(snap)

	case state.EventSubscriptionUpdate:
		snap, ok := evt.Data.(state.SubscriptionSnapshot)
		if !ok {
			p.log.Warn("unexpected data type for subscription_update")
			return
		}
		p.publishSubscriptionState(snap)

	case state.EventBabyInfoUpdate:
		info, ok := evt.Data.(*api.CameraDetails)
		if !ok {
			p.log.Warn("unexpected data type for baby_info_update")
			return
		}
		p.publishBabyState(info)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// topic builds a full topic path: {prefix}/{device_id}/{suffix}.
func (p *HAPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.DeviceID, suffix)
}

// publish is a convenience wrapper that publishes a message and logs errors.
func (p *HAPublisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}

func boolToOnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
