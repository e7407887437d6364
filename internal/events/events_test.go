package events

import (
	"errors"
	"testing"

	"strikedesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishByType(t *testing.T) {
	logger := zerolog.Nop()
	bus := NewEventBus(&logger)

	var got []Event
	bus.Subscribe(func(e Event) error {
		got = append(got, e)
		return nil
	}, BookingActivated, BookingCompleted)

	bus.Publish(Event{Type: BookingCreated})
	bus.Publish(Event{Type: BookingActivated, Bookings: []models.Booking{{ID: "a"}}})

	assert.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Bookings[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	logger := zerolog.Nop()
	bus := NewEventBus(&logger)

	calls := 0
	bus.Subscribe(func(Event) error { calls++; return errors.New("boom") }, BookingCreated)
	bus.Subscribe(func(Event) error { calls++; return nil }, BookingCreated)

	bus.Publish(Event{Type: BookingCreated})
	assert.Equal(t, 2, calls)
}
