package desk

import (
	"context"

	"strikedesk/internal/booking"
	"strikedesk/internal/config"
	"strikedesk/internal/lookup"
)

// Lookuper resolves a phone to customer state.
type Lookuper interface {
	Lookup(ctx context.Context, phone string) (*lookup.Result, error)
}

// Submitter places the bookings of a completed form.
type Submitter interface {
	Submit(ctx context.Context, f *booking.Form) (*booking.Receipt, error)
}

type CatalogSource interface {
	Get() *config.Catalog
}
