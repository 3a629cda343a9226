// Package state holds the last successful poll results for one camera
// account as a thread-safe snapshot, and fans out change events to the
// MQTT publisher and any other subscriber.
package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/niruse/cuboai/internal/core/alerts"
	"github.com/niruse/cuboai/internal/core/api"
)

// Sensor state strings shared by the pollers and publishers.
const (
	StateError          = "Error"
	StateNoAlerts       = "No alerts"
	StateNoSubscription = "No subscription"
	StateUnknown        = "unknown"
)

// EventType identifies event categories.
type EventType string

const (
	EventBabyInfoUpdate     EventType = "baby_info_update"
	EventAlertsUpdate       EventType = "alerts_update"
	EventSubscriptionUpdate EventType = "subscription_update"
	EventCameraStateUpdate  EventType = "camera_state_update"
)

// Event represents a state change.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// AlertsSnapshot is the last-alert sensor view: the newest alert's type
// as the state, plus the full normalized list.
type AlertsSnapshot struct {
	State  string         `json:"state"`
	Alerts []alerts.Alert `json:"alerts"`
}

// SubscriptionSnapshot is the subscription sensor view.
type SubscriptionSnapshot struct {
	State        string            `json:"state"`
	Subscription *api.Subscription `json:"subscription,omitempty"`
}

// CameraSnapshot is the camera online/offline sensor view.
type CameraSnapshot struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Snapshot is a copy of all sensor state.
type Snapshot struct {
	BabyInfo     *api.CameraDetails   `json:"baby_info,omitempty"`
	Alerts       AlertsSnapshot       `json:"alerts"`
	Subscription SubscriptionSnapshot `json:"subscription"`
	Camera       CameraSnapshot       `json:"camera"`
}

// StateReader provides read-only access to state.
type StateReader interface {
	Snapshot() Snapshot
}

// --- EventBus ---

// EventBus is a simple publish/subscribe event bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
		log:         log,
	}
}

// Publish sends an event to all subscribers.
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn("event bus: subscriber buffer full, dropping event", "subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		// drain anything already buffered
		for {
			select {
			case <-ch:
			default:
				return
			}
		}
	}
	return ch, unsub
}

// --- StateStore ---

// StateStore holds the current account state with thread-safe access.
// Each poller overwrites its own section after a successful cycle.
type StateStore struct {
	mu     sync.RWMutex
	baby   *api.CameraDetails
	alerts AlertsSnapshot
	sub    SubscriptionSnapshot
	camera CameraSnapshot
	bus    *EventBus
	log    *slog.Logger
}

// NewStateStore creates a new store wired to the event bus.
func NewStateStore(bus *EventBus, log *slog.Logger) *StateStore {
	return &StateStore{
		alerts: AlertsSnapshot{State: StateNoAlerts},
		sub:    SubscriptionSnapshot{State: StateUnknown},
		camera: CameraSnapshot{State: StateUnknown},
		bus:    bus,
		log:    log,
	}
}

// Snapshot returns a copy of all state.
func (s *StateStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alertsCopy := make([]alerts.Alert, len(s.alerts.Alerts))
	copy(alertsCopy, s.alerts.Alerts)

	return Snapshot{
		BabyInfo:     s.baby,
		Alerts:       AlertsSnapshot{State: s.alerts.State, Alerts: alertsCopy},
		Subscription: s.sub,
		Camera:       s.camera,
	}
}

// SetBabyInfo replaces the baby profile section.
func (s *StateStore) SetBabyInfo(info *api.CameraDetails) {
	s.mu.Lock()
	s.baby = info
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventBabyInfoUpdate, Data: info})
}

// SetAlerts replaces the last-alert section.
func (s *StateStore) SetAlerts(snap AlertsSnapshot) {
	s.mu.Lock()
	s.alerts = snap
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventAlertsUpdate, Data: snap})
}

// SetSubscription replaces the subscription section.
func (s *StateStore) SetSubscription(snap SubscriptionSnapshot) {
	s.mu.Lock()
	s.sub = snap
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventSubscriptionUpdate, Data: snap})
}

// SetCameraState replaces the camera online/offline section.
func (s *StateStore) SetCameraState(snap CameraSnapshot) {
	s.mu.Lock()
	s.camera = snap
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventCameraStateUpdate, Data: snap})
}
