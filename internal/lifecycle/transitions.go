// Package lifecycle owns the booking list and moves bookings through their statuses.
package lifecycle

import "strikedesk/internal/models"

// transitions is the allowed-transition table. Active bookings stay cancellable.
var transitions = map[models.Status][]models.Status{
	models.StatusPending: {models.StatusActive, models.StatusCancelled},
	models.StatusBooked:  {models.StatusActive, models.StatusCancelled},
	models.StatusActive:  {models.StatusCompleted, models.StatusCancelled},
}

// CanTransition checks the booking transition table.
func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
