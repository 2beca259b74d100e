package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Camera process bridge events.
	EventCameraStarted EventType = "camera.started"
	EventCameraOutput  EventType = "camera.output"
	EventCameraExited  EventType = "camera.exited"

	// Health monitor events.
	EventUndervoltageDetected EventType = "health.undervoltage"
	EventVoltageNormalised    EventType = "health.voltage_normalised"
	EventDiskAttached         EventType = "health.disk_attached"
	EventDiskDetached         EventType = "health.disk_detached"

	// System button gestures.
	EventGestureClicks EventType = "gesture.clicks"
	EventGestureHold   EventType = "gesture.hold"

	// Trigger/PWM controller events.
	EventTriggerStarted EventType = "trigger.started"
	EventTriggerStopped EventType = "trigger.stopped"
	EventTriggerMode    EventType = "trigger.mode"

	// Frame-rate ramp sessions.
	EventRampStarted   EventType = "framerate.ramp.started"
	EventRampCompleted EventType = "framerate.ramp.completed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event with a JSON-encoded payload. Encoding failures yield
// an event without payload rather than an error; every payload in this module
// is a plain struct.
func NewEvent(t EventType, source string, payload any) Event {
	evt := Event{Type: t, Timestamp: time.Now(), Source: source}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			evt.Payload = data
		}
	}
	return evt
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish hands an event to every matching subscriber. It never blocks:
	// a subscriber whose queue is full misses the event.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains queued events and prevents new publishes.
	Close()
}
