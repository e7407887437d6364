package events

import (
	"sync"
	"time"

	"strikedesk/internal/models"

	"github.com/rs/zerolog"
)

// Booking event types.
const (
	BookingCreated   = "booking.created"
	BookingActivated = "booking.activated"
	BookingCancelled = "booking.cancelled"
	BookingCompleted = "booking.completed"
)

// AllTypes lists every event type the desk publishes.
var AllTypes = []string{BookingCreated, BookingActivated, BookingCancelled, BookingCompleted}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Bookings  []models.Booking
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	l := logger.With().Str("component", "events").Logger()
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: &l}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type. Handler errors are logged.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("type", event.Type).Int("bookings", len(event.Bookings)).Msg("event handler failed")
		}
	}
}
