package booking

import (
	"testing"
	"time"

	"strikedesk/internal/lookup"
	"strikedesk/internal/models"
	"strikedesk/internal/slots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func openMap() models.AvailabilityMap {
	m := slots.NewGrid(testNow).AllAvailable()
	m["2026-10-16"]["18:00"] = false
	return m
}

// readyForm has a center with resolved availability.
func readyForm(t *testing.T, centerID int) *Form {
	t.Helper()
	f := NewForm()
	require.True(t, f.SetCenter(centerID))
	_, applied := f.ApplyAvailability(centerID, openMap())
	require.True(t, applied)
	return f
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateOpen, StateNewCustomer, true},
		{StateOpen, StateExistingWithBalance, true},
		{StateNewCustomer, StateOpen, true},
		{StateNewCustomer, StateExistingNoBalance, false},
		{StateExistingWithBalance, StateNewCustomer, false},
		{StateExistingNoBalance, StateExistingWithBalance, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestForm_ApplyLookup(t *testing.T) {
	tests := []struct {
		name     string
		res      *lookup.Result
		state    State
		offered  []models.BookingType
		custType models.CustomerType
	}{
		{
			name:     "new customer",
			res:      &lookup.Result{Phone: "1", CustomerType: models.CustomerNew},
			state:    StateNewCustomer,
			offered:  []models.BookingType{models.BookingPackageBuy, models.BookingPayAndPlay},
			custType: models.CustomerNew,
		},
		{
			name:     "existing without packages",
			res:      &lookup.Result{Phone: "2", CustomerType: models.CustomerExisting, Message: lookup.MessageNoPackages},
			state:    StateExistingNoBalance,
			offered:  []models.BookingType{models.BookingPackageBuy, models.BookingPayAndPlay},
			custType: models.CustomerExisting,
		},
		{
			name:     "existing exhausted package",
			res:      &lookup.Result{Phone: "3", CustomerType: models.CustomerExisting, OversLeft: intPtr(0), Message: "0 overs left"},
			state:    StateExistingNoBalance,
			offered:  []models.BookingType{models.BookingPackageBuy, models.BookingPayAndPlay},
			custType: models.CustomerExisting,
		},
		{
			name:     "existing with balance",
			res:      &lookup.Result{Phone: "4", CustomerType: models.CustomerExisting, OversLeft: intPtr(40), Message: "40 overs left"},
			state:    StateExistingWithBalance,
			offered:  []models.BookingType{models.BookingPayAndPlay},
			custType: models.CustomerExisting,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewForm()
			require.NoError(t, f.ApplyLookup(tt.res))
			assert.Equal(t, tt.state, f.State())
			assert.Equal(t, tt.custType, f.CustomerType())
			assert.Equal(t, tt.offered, f.View().BookingTypes)
			assert.True(t, f.View().Locked)
		})
	}
}

func TestForm_CustomerTypeLockedUntilReset(t *testing.T) {
	f := NewForm()
	require.NoError(t, f.SetPhone("900"))
	require.NoError(t, f.ApplyLookup(&lookup.Result{Phone: "900", CustomerType: models.CustomerNew}))

	err := f.ApplyLookup(&lookup.Result{Phone: "900", CustomerType: models.CustomerExisting, Message: lookup.MessageNoPackages})
	assert.ErrorIs(t, err, ErrCustomerLocked)
	assert.ErrorIs(t, f.SetPhone("901"), ErrCustomerLocked)
	assert.NoError(t, f.SetPhone("900"))

	f.Reset()
	assert.Equal(t, StateOpen, f.State())
	assert.NoError(t, f.SetPhone("901"))
}

func TestForm_BookingTypeRules(t *testing.T) {
	f := NewForm()
	require.NoError(t, f.SetBookingType(models.BookingPackageBuy))
	f.SetPackage(2)

	// a balance forces pay and play and clears the package
	require.NoError(t, f.ApplyLookup(&lookup.Result{Phone: "5", CustomerType: models.CustomerExisting, OversLeft: intPtr(10)}))
	assert.Equal(t, models.BookingPayAndPlay, f.BookingType())
	assert.Zero(t, f.PackageID())

	assert.ErrorIs(t, f.SetBookingType(models.BookingPackageBuy), ErrBookingTypeNotOffered)
	assert.ErrorIs(t, f.SetBookingType("Free"), ErrUnknownBookingType)
}

func TestForm_ToggleNeedsResolvedCenter(t *testing.T) {
	f := NewForm()
	slot := models.Slot{Date: "2026-10-16", Time: "10:00"}

	_, err := f.Toggle(slot)
	assert.ErrorIs(t, err, ErrNoCenterChosen)

	f.SetCenter(1)
	_, err = f.Toggle(slot)
	assert.ErrorIs(t, err, ErrAvailabilityPending)

	_, applied := f.ApplyAvailability(2, openMap())
	assert.False(t, applied, "map for another center must be ignored")

	f.ApplyAvailability(1, openMap())
	ok, err := f.Toggle(slot)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Toggle(models.Slot{Date: "2026-10-16", Time: "18:00"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []models.Slot{slot}, f.Selection().Slots())
}

func TestForm_CenterChangeRevalidatesSelection(t *testing.T) {
	f := readyForm(t, 1)
	keep := models.Slot{Date: "2026-10-17", Time: "10:00"}
	lose := models.Slot{Date: "2026-10-17", Time: "11:00"}
	_, _ = f.Toggle(keep)
	_, _ = f.Toggle(lose)

	next := openMap()
	next["2026-10-17"]["11:00"] = false

	require.True(t, f.SetCenter(3))
	dropped, applied := f.ApplyAvailability(3, next)
	require.True(t, applied)
	assert.Equal(t, []models.Slot{lose}, dropped)
	assert.Equal(t, []models.Slot{keep}, f.Selection().Slots())
}
