package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strikedesk/internal/config"
	"strikedesk/internal/events"
	"strikedesk/internal/journal"
	"strikedesk/internal/metrics"
	"strikedesk/internal/models"

	"github.com/rs/zerolog"
)

// ValidationError blocks a submission before anything is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	ErrNoSlots   = &ValidationError{Field: "slots", Message: "select at least one slot"}
	ErrNoCenter  = &ValidationError{Field: "center", Message: "select a center"}
	ErrNoPackage = &ValidationError{Field: "packageId", Message: "select a valid package"}
	ErrNoPhone   = &ValidationError{Field: "phone", Message: "enter a phone number"}

	// ErrPartialSubmission means the bookings exist but the customer record does not.
	ErrPartialSubmission = errors.New("bookings placed but customer registration failed")
)

// BookingService is the part of the booking service used on submit.
type BookingService interface {
	CreateBookings(ctx context.Context, batch []models.Booking, idempotencyKey string) ([]models.Booking, error)
	CreateCustomer(ctx context.Context, customer models.Customer, idempotencyKey string) error
	InvalidateSlots(ctx context.Context, centerID int)
}

type Journal interface {
	Record(ctx context.Context, e *journal.Entry) error
	MarkResolved(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(event events.Event)
}

type CatalogSource interface {
	Get() *config.Catalog
}

type TimeProvider interface {
	Now() time.Time
}

// Receipt confirms a successful submission.
type Receipt struct {
	Bookings           []models.Booking `json:"bookings"`
	CustomerRegistered bool             `json:"customerRegistered"`
	Message            string           `json:"message"`
}

// Submitter turns a completed form into a batch of bookings.
type Submitter struct {
	api     BookingService
	journal Journal
	bus     Publisher
	catalog CatalogSource
	clock   TimeProvider
	logger  *zerolog.Logger
}

func NewSubmitter(api BookingService, j Journal, bus Publisher, catalog CatalogSource, clock TimeProvider, logger *zerolog.Logger) *Submitter {
	l := logger.With().Str("component", "submit").Logger()
	return &Submitter{api: api, journal: j, bus: bus, catalog: catalog, clock: clock, logger: &l}
}

// Submit places one booking per selected slot and registers a new customer.
// On failure the form is left as it was; on success it is reset.
func (s *Submitter) Submit(ctx context.Context, f *Form) (*Receipt, error) {
	cat := s.catalog.Get()

	// A retry after a partial failure only re-attempts registration.
	if len(f.placed) == 0 {
		if err := s.validate(f, cat); err != nil {
			return nil, err
		}

		batch := s.build(f)
		created, err := s.api.CreateBookings(ctx, batch, f.batchKey)
		if err != nil {
			s.logger.Error().Err(err).Str("phone", f.phone).Int("slots", len(batch)).Msg("failed to create bookings")
			return nil, fmt.Errorf("create bookings: %w", err)
		}
		if len(created) == 0 {
			created = batch
		}
		f.placed = created

		metrics.AddBookingsCreated(string(f.bookingType), len(created))
		s.api.InvalidateSlots(ctx, f.centerID)
		s.bus.Publish(events.Event{Type: events.BookingCreated, Bookings: created})
		s.logger.Info().Str("phone", f.phone).Int("center", f.centerID).Int("bookings", len(created)).Msg("bookings created")
	}

	registered := false
	if f.CustomerType() == models.CustomerNew {
		if err := s.register(ctx, f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPartialSubmission, err)
		}
		registered = true
	}

	receipt := &Receipt{
		Bookings:           f.Placed(),
		CustomerRegistered: registered,
		Message:            confirmation(len(f.placed), cat.CenterByID(f.centerID)),
	}
	f.reset()
	return receipt, nil
}

func (s *Submitter) validate(f *Form, cat *config.Catalog) error {
	if f.selection.Len() == 0 {
		return ErrNoSlots
	}
	if f.centerID == 0 || cat.CenterByID(f.centerID) == nil {
		return ErrNoCenter
	}
	if f.bookingType == models.BookingPackageBuy && cat.PackageByID(f.packageID) == nil {
		return ErrNoPackage
	}
	if f.phone == "" {
		return ErrNoPhone
	}
	return nil
}

func (s *Submitter) build(f *Form) []models.Booking {
	now := s.clock.Now()
	onDate := now.Format(models.DateLayout)
	onTime := now.Format(models.ClockLayout)

	packageID := 0
	if f.bookingType == models.BookingPackageBuy {
		packageID = f.packageID
	}

	selected := f.selection.Slots()
	batch := make([]models.Booking, 0, len(selected))
	for i, slot := range selected {
		batch = append(batch, models.Booking{
			Seq:          i + 1,
			BookedBy:     f.phone,
			CustomerType: f.CustomerType(),
			BookingType:  f.bookingType,
			PackageID:    packageID,
			Center:       models.CenterRef(f.centerID),
			OnDate:       onDate,
			OnTime:       onTime,
			ForDate:      slot.Date,
			ForTime:      slot.Time + ":00",
			Status:       models.StatusBooked,
		})
	}
	return batch
}

func (s *Submitter) register(ctx context.Context, f *Form) error {
	customer := models.Customer{Name: f.name, Phone: f.phone}
	err := s.api.CreateCustomer(ctx, customer, f.customerKey)
	if err == nil {
		if f.reconcileID != "" {
			if err := s.journal.MarkResolved(ctx, f.reconcileID); err != nil {
				s.logger.Error().Err(err).Str("id", f.reconcileID).Msg("failed to resolve reconciliation entry")
			}
		}
		return nil
	}

	f.registerError = err.Error()
	s.logger.Error().Err(err).Str("phone", f.phone).Msg("customer registration failed after bookings were placed")

	if f.reconcileID != "" {
		return err
	}
	ids := make([]string, 0, len(f.placed))
	for _, b := range f.placed {
		if b.ID != "" {
			ids = append(ids, b.ID)
		}
	}
	entry, jerr := journal.NewCustomerEntry(customer, f.customerKey, ids, err)
	if jerr == nil {
		jerr = s.journal.Record(ctx, entry)
	}
	if jerr != nil {
		s.logger.Error().Err(jerr).Str("phone", f.phone).Msg("failed to journal customer registration gap")
		return err
	}
	f.reconcileID = entry.ID
	return err
}

func confirmation(n int, center *config.Center) string {
	where := ""
	if center != nil {
		where = " at " + center.Name
	}
	if n == 1 {
		return "Booking confirmed: 1 slot" + where
	}
	return fmt.Sprintf("Booking confirmed: %d slots%s", n, where)
}
