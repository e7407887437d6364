package booking

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"strikedesk/internal/config"
	"strikedesk/internal/events"
	"strikedesk/internal/journal"
	"strikedesk/internal/lookup"
	"strikedesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) CreateBookings(ctx context.Context, batch []models.Booking, key string) ([]models.Booking, error) {
	args := m.Called(ctx, batch, key)
	bs, _ := args.Get(0).([]models.Booking)
	return bs, args.Error(1)
}

func (m *mockService) CreateCustomer(ctx context.Context, c models.Customer, key string) error {
	return m.Called(ctx, c, key).Error(0)
}

func (m *mockService) InvalidateSlots(ctx context.Context, centerID int) {
	m.Called(ctx, centerID)
}

type fakeJournal struct {
	entries  []*journal.Entry
	resolved []string
}

func (j *fakeJournal) Record(_ context.Context, e *journal.Entry) error {
	e.ID = "rec-1"
	j.entries = append(j.entries, e)
	return nil
}

func (j *fakeJournal) MarkResolved(_ context.Context, id string) error {
	j.resolved = append(j.resolved, id)
	return nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

type recordingBus struct {
	events []events.Event
}

func (b *recordingBus) Publish(e events.Event) { b.events = append(b.events, e) }

type harness struct {
	api     *mockService
	journal *fakeJournal
	bus     *recordingBus
	sub     *Submitter
}

func newHarness() *harness {
	logger := zerolog.New(io.Discard)
	h := &harness{api: new(mockService), journal: &fakeJournal{}, bus: &recordingBus{}}
	h.sub = NewSubmitter(h.api, h.journal, h.bus, config.NewCatalogHolder(config.DefaultCatalog()), fixedClock{}, &logger)
	return h
}

func echoIDs(batch []models.Booking) []models.Booking {
	out := make([]models.Booking, len(batch))
	copy(out, batch)
	for i := range out {
		out[i].ID = "srv-" + out[i].ForTime
	}
	return out
}

func threeSlotForm(t *testing.T) *Form {
	t.Helper()
	f := readyForm(t, 2)
	f.SetName("Kabir")
	require.NoError(t, f.SetPhone("98100"))
	for _, tm := range []string{"10:00", "10:15", "10:30"} {
		ok, err := f.Toggle(models.Slot{Date: "2026-10-18", Time: tm})
		require.NoError(t, err)
		require.True(t, ok)
	}
	return f
}

func TestSubmit_OneBookingPerSlot(t *testing.T) {
	h := newHarness()
	f := threeSlotForm(t)
	require.NoError(t, f.ApplyLookup(&lookup.Result{Phone: "98100", CustomerType: models.CustomerExisting, Message: lookup.MessageNoPackages}))
	require.NoError(t, f.SetBookingType(models.BookingPackageBuy))
	f.SetPackage(3)
	batchKey := f.batchKey

	var sent []models.Booking
	h.api.On("CreateBookings", mock.Anything, mock.Anything, batchKey).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]models.Booking) }).
		Return(nil, nil)
	h.api.On("InvalidateSlots", mock.Anything, 2).Return()

	receipt, err := h.sub.Submit(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, sent, 3)
	for i, b := range sent {
		assert.Equal(t, i+1, b.Seq)
		assert.Equal(t, "2026-10-18", b.ForDate)
		assert.Equal(t, []string{"10:00:00", "10:15:00", "10:30:00"}[i], b.ForTime)
		assert.Equal(t, "98100", b.BookedBy)
		assert.Equal(t, models.CenterRef(2), b.Center)
		assert.Equal(t, 3, b.PackageID)
		assert.Equal(t, models.CustomerExisting, b.CustomerType)
		assert.Equal(t, models.BookingPackageBuy, b.BookingType)
		assert.Equal(t, models.StatusBooked, b.Status)
		assert.Equal(t, "2026-10-16", b.OnDate)
		assert.Equal(t, "09:30:00", b.OnTime)
	}

	assert.Len(t, receipt.Bookings, 3)
	assert.False(t, receipt.CustomerRegistered)
	assert.Equal(t, "Booking confirmed: 3 slots at Strike the ball - Sector 93", receipt.Message)

	// form resets on success
	assert.Equal(t, StateOpen, f.State())
	assert.Zero(t, f.Selection().Len())
	assert.Empty(t, f.Phone())
	assert.NotEqual(t, batchKey, f.batchKey)

	require.Len(t, h.bus.events, 1)
	assert.Equal(t, events.BookingCreated, h.bus.events[0].Type)
	h.api.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	h.api.AssertExpectations(t)
}

func TestSubmit_ValidationBeforeNetwork(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Form
		want  *ValidationError
	}{
		{
			name: "no slots",
			setup: func(t *testing.T) *Form {
				f := readyForm(t, 1)
				_ = f.SetPhone("1")
				return f
			},
			want: ErrNoSlots,
		},
		{
			name: "center not in catalog",
			setup: func(t *testing.T) *Form {
				f := readyForm(t, 99)
				_ = f.SetPhone("1")
				_, _ = f.Toggle(models.Slot{Date: "2026-10-16", Time: "10:00"})
				return f
			},
			want: ErrNoCenter,
		},
		{
			name: "package buy without package",
			setup: func(t *testing.T) *Form {
				f := readyForm(t, 1)
				_ = f.SetPhone("1")
				_, _ = f.Toggle(models.Slot{Date: "2026-10-16", Time: "10:00"})
				require.NoError(t, f.SetBookingType(models.BookingPackageBuy))
				f.SetPackage(42)
				return f
			},
			want: ErrNoPackage,
		},
		{
			name: "no phone",
			setup: func(t *testing.T) *Form {
				f := readyForm(t, 1)
				_, _ = f.Toggle(models.Slot{Date: "2026-10-16", Time: "10:00"})
				return f
			},
			want: ErrNoPhone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			f := tt.setup(t)
			before := f.View()

			_, err := h.sub.Submit(context.Background(), f)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr)
			assert.Equal(t, before, f.View())

			h.api.AssertNotCalled(t, "CreateBookings", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_NewCustomerRegistered(t *testing.T) {
	h := newHarness()
	f := threeSlotForm(t)
	customerKey := f.customerKey

	h.api.On("CreateBookings", mock.Anything, mock.Anything, mock.Anything).Return(echoIDs([]models.Booking{{ForTime: "a"}}), nil)
	h.api.On("InvalidateSlots", mock.Anything, 2).Return()
	h.api.On("CreateCustomer", mock.Anything, models.Customer{Name: "Kabir", Phone: "98100"}, customerKey).Return(nil)

	receipt, err := h.sub.Submit(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, receipt.CustomerRegistered)
	assert.Equal(t, "srv-a", receipt.Bookings[0].ID)
	h.api.AssertExpectations(t)
}

func TestSubmit_BookingFailurePreservesForm(t *testing.T) {
	h := newHarness()
	f := threeSlotForm(t)
	before := f.View()

	h.api.On("CreateBookings", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("502"))

	_, err := h.sub.Submit(context.Background(), f)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPartialSubmission)
	assert.Equal(t, before, f.View())
	assert.Empty(t, h.bus.events)
	h.api.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_PartialFailureRetriesOnlyRegistration(t *testing.T) {
	h := newHarness()
	f := threeSlotForm(t)
	ctx := context.Background()

	h.api.On("CreateBookings", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()
	h.api.On("InvalidateSlots", mock.Anything, 2).Return().Once()
	h.api.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()

	_, err := h.sub.Submit(ctx, f)
	require.ErrorIs(t, err, ErrPartialSubmission)
	assert.Len(t, f.Placed(), 3)
	assert.Equal(t, "timeout", f.View().PendingError)
	require.Len(t, h.journal.entries, 1)
	assert.Equal(t, journal.KindCustomerRegistration, h.journal.entries[0].Kind)
	assert.Equal(t, "rec-1", f.View().ReconcileID)

	// still failing: no second journal entry
	h.api.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
	_, err = h.sub.Submit(ctx, f)
	require.ErrorIs(t, err, ErrPartialSubmission)
	assert.Len(t, h.journal.entries, 1)

	h.api.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	receipt, err := h.sub.Submit(ctx, f)
	require.NoError(t, err)
	assert.Len(t, receipt.Bookings, 3)
	assert.Equal(t, []string{"rec-1"}, h.journal.resolved)

	h.api.AssertNumberOfCalls(t, "CreateBookings", 1)
	h.api.AssertNumberOfCalls(t, "CreateCustomer", 3)
	assert.Len(t, h.bus.events, 1)
}
