// Package events distributes pipeline progress to display surfaces.
package events

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// UIEvent is one progress notification.
type UIEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Event types published by a session.
const (
	EventTypeGenerationStarted = "generation_started"
	EventTypePlanReady         = "plan_ready"
	EventTypeLayerStarted      = "layer_started"
	EventTypeLayerRendered     = "layer_rendered"
	EventTypeDocumentUpdated   = "document_updated"
	EventTypeLegendUpdated     = "legend_updated"
	EventTypeRemixCompleted    = "remix_completed"
	EventTypeNotification      = "notification"
	EventTypeError             = "error"
	EventTypeBusyChanged       = "busy_changed"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// EventBus fans events out to named subscribers.
type EventBus struct {
	subscribers map[string]chan UIEvent
	handlers    map[string]func(UIEvent)
	mutex       sync.RWMutex
	nextID      atomic.Int64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]chan UIEvent),
		handlers:    make(map[string]func(UIEvent)),
	}
}

// Subscribe adds a subscriber. Subscribing twice under one name replaces the
// earlier channel, which is closed.
func (eb *EventBus) Subscribe(name string) <-chan UIEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if old, exists := eb.subscribers[name]; exists {
		close(old)
	}
	ch := make(chan UIEvent, subscriberBuffer)
	eb.subscribers[name] = ch
	return ch
}

// SubscribeFunc adds a handler that sees every event. It runs on the
// publishing goroutine, so it must be quick and must not call back into the
// bus. Replaces an earlier handler of the same name.
func (eb *EventBus) SubscribeFunc(name string, fn func(UIEvent)) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.handlers[name] = fn
}

// Unsubscribe removes a subscriber or handler from the event bus. Once it
// returns a removed handler is not called again.
func (eb *EventBus) Unsubscribe(name string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	delete(eb.handlers, name)
	if ch, exists := eb.subscribers[name]; exists {
		delete(eb.subscribers, name)
		close(ch)
	}
}

// Publish broadcasts an event to all subscribers. Slow subscribers with a
// full buffer miss the event rather than block the pipeline; handlers
// always receive it.
func (eb *EventBus) Publish(eventType string, data any) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	id := eb.nextID.Add(1)
	event := UIEvent{
		ID:        generateEventID(id),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, fn := range eb.handlers {
		fn(event)
	}
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func generateEventID(id int64) string {
	return time.Now().Format("20060102-150405") + "-" + strconv.FormatInt(id, 10)
}

// LayerEvent describes a layer starting or finishing.
func LayerEvent(runID string, index, total int, layerType, description string) map[string]interface{} {
	return map[string]interface{}{
		"run_id":      runID,
		"index":       index,
		"total":       total,
		"type":        layerType,
		"description": description,
	}
}

// DocumentEvent carries a full serialized document.
func DocumentEvent(runID, document string) map[string]interface{} {
	return map[string]interface{}{
		"run_id":   runID,
		"document": document,
	}
}

// NotificationEvent carries a user-visible message.
func NotificationEvent(message string) map[string]interface{} {
	return map[string]interface{}{
		"message": message,
	}
}

// ErrorEvent creates an error event
func ErrorEvent(message string, err error) map[string]interface{} {
	return map[string]interface{}{
		"message": message,
		"error":   err.Error(),
	}
}

// BusyEvent reports the busy flag.
func BusyEvent(busy bool) map[string]interface{} {
	return map[string]interface{}{
		"busy": busy,
	}
}
