package slots

import (
	"context"
	"time"

	"strikedesk/internal/models"
)

// FeedSource fetches the availability feed of a center.
type FeedSource interface {
	GetSlots(ctx context.Context, centerID int) (*models.SlotFeed, error)
}

// TimeProvider returns the current time (swapped in tests).
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider is the wall clock.
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// LocationTimeProvider is the wall clock read in a fixed location.
type LocationTimeProvider struct {
	Loc *time.Location
}

func (p LocationTimeProvider) Now() time.Time {
	if p.Loc == nil {
		return time.Now()
	}
	return time.Now().In(p.Loc)
}
