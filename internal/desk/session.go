// Package desk keeps the operators' booking sessions: one form, its slot grid and its
// availability resolver per session.
package desk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"strikedesk/internal/booking"
	"strikedesk/internal/models"
	"strikedesk/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	warnAvailability = "could not load availability, all slots are shown as open"
	warnLookup       = "customer lookup failed, continuing as a new customer"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownCenter   = errors.New("unknown center")
)

// Details are the optional form fields an operator can change in one call.
type Details struct {
	Name        *string             `json:"name,omitempty"`
	BookingType *models.BookingType `json:"bookingType,omitempty"`
	PackageID   *int                `json:"packageId,omitempty"`
}

// Snapshot is what a session shows to the operator.
type Snapshot struct {
	ID           string                 `json:"id"`
	Form         booking.View           `json:"form"`
	Grid         slots.Grid             `json:"grid"`
	Availability models.AvailabilityMap `json:"availability,omitempty"`
	Degraded     bool                   `json:"availabilityDegraded"`
	Dropped      []models.Slot          `json:"droppedSlots,omitempty"`
	Warning      string                 `json:"warning,omitempty"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Session is one operator's booking form. Its methods are safe for concurrent use;
// network calls run outside the session lock so a newer center choice can overtake
// an older availability fetch.
type Session struct {
	ID string

	desk      *Desk
	mu        sync.Mutex
	form      *booking.Form
	resolver  *slots.Resolver
	warning   string
	dropped   []models.Slot
	updatedAt time.Time
}

func (s *Session) touch() {
	s.updatedAt = s.desk.clock.Now()
}

// IsExpired checks if the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desk.clock.Now().Sub(s.updatedAt) > timeout
}

// Snapshot returns the current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		Form:      s.form.View(),
		Warning:   s.warning,
		Dropped:   append([]models.Slot(nil), s.dropped...),
		UpdatedAt: s.updatedAt,
	}
	if res := s.resolver.Current(); res != nil && res.CenterID == s.form.CenterID() {
		snap.Grid = res.Grid
		snap.Availability = res.Map
		snap.Degraded = res.Degraded()
	} else {
		snap.Grid = slots.NewGrid(s.desk.clock.Now())
	}
	return snap
}

// begin starts an operation: locks, clears the last warning and touches the session.
func (s *Session) begin() {
	s.mu.Lock()
	s.warning = ""
	s.dropped = nil
	s.touch()
}

// ChooseCenter switches the center and resolves its availability. Selections that the
// new center does not allow are dropped and reported.
func (s *Session) ChooseCenter(ctx context.Context, centerID int) (Snapshot, error) {
	if s.desk.catalog.Get().CenterByID(centerID) == nil {
		return s.Snapshot(), fmt.Errorf("%w: %d", ErrUnknownCenter, centerID)
	}

	s.begin()
	changed := s.form.SetCenter(centerID)
	s.mu.Unlock()
	if cur := s.resolver.Current(); !changed && cur != nil && cur.CenterID == centerID {
		return s.Snapshot(), nil
	}

	res, err := s.resolver.Resolve(ctx, centerID)
	if errors.Is(err, slots.ErrSuperseded) {
		// a newer choice owns the form now
		return s.Snapshot(), nil
	}
	if err != nil {
		return s.Snapshot(), fmt.Errorf("resolve availability: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped, applied := s.form.ApplyAvailability(res.CenterID, res.Map)
	if applied {
		s.dropped = dropped
		if res.Degraded() {
			s.warning = warnAvailability
		}
		if len(dropped) > 0 {
			s.desk.logger.Info().Str("session", s.ID).Int("center", centerID).Int("dropped", len(dropped)).
				Msg("selected slots unavailable at new center were dropped")
		}
	}
	return s.snapshot(), nil
}

// ToggleSlot flips one cell of the grid.
func (s *Session) ToggleSlot(slot models.Slot) (Snapshot, bool, error) {
	s.begin()
	defer s.mu.Unlock()
	changed, err := s.form.Toggle(slot)
	return s.snapshot(), changed, err
}

// Lookup resolves the phone and locks the customer type.
func (s *Session) Lookup(ctx context.Context, phone string) (Snapshot, error) {
	s.begin()
	err := s.form.SetPhone(phone)
	s.mu.Unlock()
	if err != nil {
		return s.Snapshot(), err
	}

	res, err := s.desk.lookup.Lookup(ctx, phone)
	if err != nil {
		return s.Snapshot(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.form.ApplyLookup(res); err != nil {
		return s.snapshot(), err
	}
	if res.Degraded() {
		s.warning = warnLookup
	}
	return s.snapshot(), nil
}

// UpdateDetails applies the given fields in order: name, booking type, package.
func (s *Session) UpdateDetails(d Details) (Snapshot, error) {
	s.begin()
	defer s.mu.Unlock()

	if d.Name != nil {
		s.form.SetName(*d.Name)
	}
	if d.BookingType != nil {
		if err := s.form.SetBookingType(*d.BookingType); err != nil {
			return s.snapshot(), err
		}
	}
	if d.PackageID != nil {
		s.form.SetPackage(*d.PackageID)
	}
	return s.snapshot(), nil
}

// Reset empties the form and forgets the resolved availability.
func (s *Session) Reset() Snapshot {
	s.begin()
	defer s.mu.Unlock()
	s.form.Reset()
	s.resolver.Clear()
	return s.snapshot()
}

// Submit places the form's bookings. The session stays locked for the whole submission.
func (s *Session) Submit(ctx context.Context) (*booking.Receipt, Snapshot, error) {
	s.begin()
	defer s.mu.Unlock()

	receipt, err := s.desk.submitter.Submit(ctx, s.form)
	if err != nil {
		return nil, s.snapshot(), err
	}
	s.resolver.Clear()
	return receipt, s.snapshot(), nil
}

// Desk owns the live sessions.
type Desk struct {
	catalog   CatalogSource
	feed      slots.FeedSource
	lookup    Lookuper
	submitter Submitter
	clock     slots.TimeProvider
	timeout   time.Duration
	logger    *zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(catalog CatalogSource, feed slots.FeedSource, lk Lookuper, sub Submitter, clock slots.TimeProvider, timeout time.Duration, logger *zerolog.Logger) *Desk {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if clock == nil {
		clock = slots.RealTimeProvider{}
	}
	l := logger.With().Str("component", "desk").Logger()
	return &Desk{
		catalog:   catalog,
		feed:      feed,
		lookup:    lk,
		submitter: sub,
		clock:     clock,
		timeout:   timeout,
		logger:    &l,
		sessions:  make(map[string]*Session),
	}
}

// Open creates a session with an empty form.
func (d *Desk) Open() *Session {
	s := &Session{
		ID:       uuid.NewString(),
		desk:     d,
		form:     booking.NewForm(),
		resolver: slots.NewResolver(d.feed, d.clock, d.logger),
	}
	s.touch()

	d.mu.Lock()
	d.sessions[s.ID] = s
	d.mu.Unlock()
	return s
}

// Get returns a live session.
func (d *Desk) Get(id string) (*Session, error) {
	d.mu.RLock()
	s, ok := d.sessions[id]
	d.mu.RUnlock()
	if !ok || s.IsExpired(d.timeout) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close removes a session and cancels its pending availability fetch.
func (d *Desk) Close(id string) bool {
	d.mu.Lock()
	s, ok := d.sessions[id]
	delete(d.sessions, id)
	d.mu.Unlock()
	if ok {
		s.resolver.Clear()
	}
	return ok
}

// Cleanup removes expired sessions.
func (d *Desk) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, s := range d.sessions {
		if s.IsExpired(d.timeout) {
			s.resolver.Clear()
			delete(d.sessions, id)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup on every tick until ctx is done.
func (d *Desk) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Cleanup(); n > 0 {
				d.logger.Debug().Int("removed", n).Msg("expired sessions removed")
			}
		}
	}
}

func (d *Desk) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}
