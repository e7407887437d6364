package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strikedesk/internal/bookingapi"
	"strikedesk/internal/events"
	"strikedesk/internal/journal"
	"strikedesk/internal/metrics"
	"strikedesk/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrBookingNotFound   = errors.New("booking not found")
	// ErrOversDecrement is returned after an accepted activation whose overs decrement failed.
	// The booking stays Active and the decrement is journaled.
	ErrOversDecrement = errors.New("booking activated but overs decrement failed")
)

// DefaultActivationWindow is how long an activated booking runs before it expires.
const DefaultActivationWindow = 15 * time.Minute

// BookingAPI is the part of the booking service the lifecycle uses.
type BookingAPI interface {
	ListBookings(ctx context.Context) ([]models.Booking, error)
	FindBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, update models.StatusUpdate) (*models.Booking, error)
	GetMemberships(ctx context.Context, phone string) ([]models.Membership, error)
	DecrementOvers(ctx context.Context, phone string, overs int) error
}

type Journal interface {
	Record(ctx context.Context, e *journal.Entry) error
}

type Publisher interface {
	Publish(event events.Event)
}

type TimeProvider interface {
	Now() time.Time
}

// Manager applies Activate, Cancel and the auto-complete sweep to the owned store.
// Work on one booking id is serialised, so an operator cancel that wins the lock is
// never overwritten by the sweep.
type Manager struct {
	api     BookingAPI
	store   *Store
	journal Journal
	bus     Publisher
	clock   TimeProvider
	window  time.Duration
	locks   *keyedMutex
	logger  *zerolog.Logger
}

func NewManager(api BookingAPI, store *Store, j Journal, bus Publisher, clock TimeProvider, window time.Duration, logger *zerolog.Logger) *Manager {
	if window <= 0 {
		window = DefaultActivationWindow
	}
	l := logger.With().Str("component", "lifecycle").Logger()
	return &Manager{
		api:     api,
		store:   store,
		journal: j,
		bus:     bus,
		clock:   clock,
		window:  window,
		locks:   newKeyedMutex(),
		logger:  &l,
	}
}

func (m *Manager) Store() *Store {
	return m.store
}

// Load fetches the booking list, replaces the store and runs a sweep.
func (m *Manager) Load(ctx context.Context) ([]models.Booking, error) {
	list, err := m.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := m.sweep(ctx, list); err != nil {
		m.logger.Warn().Err(err).Msg("sweep after load finished with errors")
	}
	return m.store.List(), nil
}

// LoadedAt reports when the booking list was last fetched from the service.
func (m *Manager) LoadedAt() time.Time {
	return m.store.LoadedAt()
}

func (m *Manager) refresh(ctx context.Context) ([]models.Booking, error) {
	list, err := m.api.ListBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	m.store.Replace(list, m.clock.Now())
	return list, nil
}

// Activate moves a Pending or Booked booking to Active and, once the service accepted it,
// decrements the customer's overs.
func (m *Manager) Activate(ctx context.Context, id string) (*models.Booking, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	prev, known := m.store.Get(id)
	cur, err := m.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if known && prev.Status != models.StatusActive && cur.Status == models.StatusActive {
		// an earlier attempt went through but its response was lost
		m.logger.Warn().Str("booking_id", id).Msg("booking already active at the service, keeping its stamps")
		return &cur, nil
	}
	if !CanTransition(cur.Status, models.StatusActive) {
		metrics.IncTransition(string(models.StatusActive), "rejected")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, models.StatusActive)
	}

	now := m.clock.Now()
	expiry := now.Add(m.window)
	res, err := m.api.UpdateBookingStatus(ctx, models.StatusUpdate{
		ID:          id,
		Action:      models.StatusActive.Action(),
		ActivatedAt: &now,
		ExpiryTime:  &expiry,
	})
	if err != nil {
		metrics.IncTransition(string(models.StatusActive), "error")
		m.logger.Error().Err(err).Str("booking_id", id).Msg("failed to activate booking")
		return nil, fmt.Errorf("activate booking %s: %w", id, err)
	}

	updated := merge(cur, res, models.StatusActive)
	if updated.ActivatedAt == nil {
		updated.ActivatedAt = &now
	}
	if updated.ExpiryTime == nil {
		updated.ExpiryTime = &expiry
	}
	m.store.Put(updated)
	metrics.IncTransition(string(models.StatusActive), "ok")
	m.bus.Publish(events.Event{Type: events.BookingActivated, Bookings: []models.Booking{updated}})
	m.logger.Info().Str("booking_id", id).Time("expiry", *updated.ExpiryTime).Msg("booking activated")

	if err := m.decrementOvers(ctx, updated); err != nil {
		return &updated, err
	}
	return &updated, nil
}

// decrementOvers runs once per accepted activation. Failures are journaled, never retried here.
func (m *Manager) decrementOvers(ctx context.Context, b models.Booking) error {
	if b.Overs <= 0 || b.BookedBy == "" {
		return nil
	}

	memberships, err := m.api.GetMemberships(ctx, b.BookedBy)
	if err == nil && len(memberships) == 0 {
		return nil
	}
	if err == nil {
		err = m.api.DecrementOvers(ctx, b.BookedBy, b.Overs)
		if err == nil {
			m.logger.Info().Str("booking_id", b.ID).Str("phone", b.BookedBy).Int("overs", b.Overs).Msg("overs decremented")
			return nil
		}
	}

	m.logger.Error().Err(err).Str("booking_id", b.ID).Str("phone", b.BookedBy).Msg("overs decrement failed")
	entry, jerr := journal.NewOversEntry(b.BookedBy, b.Overs, b.ID, err)
	if jerr == nil {
		jerr = m.journal.Record(ctx, entry)
	}
	if jerr != nil {
		m.logger.Error().Err(jerr).Str("booking_id", b.ID).Msg("failed to journal overs decrement")
	}
	return fmt.Errorf("%w: %w", ErrOversDecrement, err)
}

// Cancel moves a Pending, Booked or Active booking to Cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	prev, known := m.store.Get(id)
	cur, err := m.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if known && prev.Status != models.StatusCancelled && cur.Status == models.StatusCancelled {
		m.logger.Warn().Str("booking_id", id).Msg("booking already cancelled at the service")
		return &cur, nil
	}
	if !CanTransition(cur.Status, models.StatusCancelled) {
		metrics.IncTransition(string(models.StatusCancelled), "rejected")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, models.StatusCancelled)
	}

	res, err := m.api.UpdateBookingStatus(ctx, models.StatusUpdate{ID: id, Action: models.StatusCancelled.Action()})
	if err != nil {
		metrics.IncTransition(string(models.StatusCancelled), "error")
		m.logger.Error().Err(err).Str("booking_id", id).Msg("failed to cancel booking")
		return nil, fmt.Errorf("cancel booking %s: %w", id, err)
	}

	updated := merge(cur, res, models.StatusCancelled)
	updated.ActivatedAt = nil
	updated.ExpiryTime = nil
	m.store.Put(updated)
	metrics.IncTransition(string(models.StatusCancelled), "ok")
	m.bus.Publish(events.Event{Type: events.BookingCancelled, Bookings: []models.Booking{updated}})
	m.logger.Info().Str("booking_id", id).Str("from", string(cur.Status)).Msg("booking cancelled")
	return &updated, nil
}

// Sweep completes every active booking whose stored expiry has passed. The service list
// is fetched once per sweep; each candidate is then re-checked under its lock against the
// store and that list right before completing. Returns how many bookings were completed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.sweep(ctx, nil)
}

// sweep uses listed as the service snapshot when it is not nil.
func (m *Manager) sweep(ctx context.Context, listed []models.Booking) (int, error) {
	now := m.clock.Now()
	expired := m.store.Expired(now)
	if len(expired) == 0 {
		return 0, nil
	}

	if listed == nil {
		var err error
		if listed, err = m.api.ListBookings(ctx); err != nil {
			return 0, fmt.Errorf("list bookings: %w", err)
		}
	}
	remote := make(map[string]models.Booking, len(listed))
	for _, b := range listed {
		remote[b.ID] = b
	}

	var (
		completed int
		errs      []error
	)
	for _, id := range expired {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := m.complete(ctx, id, now, remote)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			completed++
		}
	}

	if completed > 0 {
		m.logger.Info().Int("completed", completed).Msg("expired bookings completed")
		if _, err := m.refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return completed, errors.Join(errs...)
}

func (m *Manager) complete(ctx context.Context, id string, now time.Time, listed map[string]models.Booking) (bool, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, ok := m.store.Get(id)
	if !ok || !cur.Expired(now) {
		return false, nil
	}

	check, ok := listed[id]
	if !ok {
		m.logger.Warn().Str("booking_id", id).Msg("expired booking no longer listed by the service")
		return false, nil
	}
	if check.ExpiryTime == nil {
		check.ExpiryTime = cur.ExpiryTime
	}
	if !check.Expired(now) {
		m.store.Put(check)
		return false, nil
	}

	res, err := m.api.UpdateBookingStatus(ctx, models.StatusUpdate{ID: id, Action: models.StatusCompleted.Action()})
	if err != nil {
		metrics.IncTransition(string(models.StatusCompleted), "error")
		return false, fmt.Errorf("complete booking %s: %w", id, err)
	}

	updated := merge(check, res, models.StatusCompleted)
	m.store.Put(updated)
	metrics.IncTransition(string(models.StatusCompleted), "ok")
	metrics.IncSweepCompleted()
	m.bus.Publish(events.Event{Type: events.BookingCompleted, Bookings: []models.Booking{updated}})
	return true, nil
}

// current re-reads the booking from the service and stores it. Activation stamps the
// service does not echo back are kept from the stored copy.
func (m *Manager) current(ctx context.Context, id string) (models.Booking, error) {
	remote, err := m.api.FindBooking(ctx, id)
	if err != nil {
		if errors.Is(err, bookingapi.ErrNotFound) {
			return models.Booking{}, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
		}
		return models.Booking{}, fmt.Errorf("find booking %s: %w", id, err)
	}
	b := *remote
	if local, ok := m.store.Get(id); ok && b.Status == models.StatusActive {
		if b.ActivatedAt == nil {
			b.ActivatedAt = local.ActivatedAt
		}
		if b.ExpiryTime == nil {
			b.ExpiryTime = local.ExpiryTime
		}
	}
	m.store.Put(b)
	return b, nil
}

// merge lays the service response over the stored record. The service may answer with a
// full record, a partial one or a bare acknowledgement.
func merge(local models.Booking, res *models.Booking, want models.Status) models.Booking {
	out := local
	out.Status = want
	if res == nil {
		return out
	}
	if res.BookedBy != "" {
		out = *res
		if out.ID == "" {
			out.ID = local.ID
		}
	}
	if res.Status != "" {
		out.Status = res.Status
	} else {
		out.Status = want
	}
	if res.ActivatedAt != nil {
		out.ActivatedAt = res.ActivatedAt
	}
	if res.ExpiryTime != nil {
		out.ExpiryTime = res.ExpiryTime
	}
	return out
}
