// Package booking holds the booking form state machine and batch submission.
package booking

import (
	"errors"
	"strings"

	"strikedesk/internal/lookup"
	"strikedesk/internal/models"
	"strikedesk/internal/slots"

	"github.com/google/uuid"
)

// State is the customer side of the form: who is booking and what they may pay with.
type State string

const (
	// StateOpen: phone not resolved yet, defaults to a new customer.
	StateOpen                State = "open"
	StateNewCustomer         State = "new_customer"
	StateExistingNoBalance   State = "existing_no_balance"
	StateExistingWithBalance State = "existing_with_balance"
)

var (
	ErrCustomerLocked        = errors.New("customer type is locked until the form is reset")
	ErrBookingTypeNotOffered = errors.New("booking type is not offered for this customer")
	ErrUnknownBookingType    = errors.New("unknown booking type")
	ErrNoCenterChosen        = errors.New("choose a center before picking slots")
	ErrAvailabilityPending   = errors.New("availability for the chosen center is still loading")
)

// formTransitions is the allowed-transition table. Lookup moves an open form into a
// locked state; only a reset unlocks it.
var formTransitions = map[State][]State{
	StateOpen:                {StateNewCustomer, StateExistingNoBalance, StateExistingWithBalance},
	StateNewCustomer:         {StateOpen},
	StateExistingNoBalance:   {StateOpen},
	StateExistingWithBalance: {StateOpen},
}

var offeredBookingTypes = map[State][]models.BookingType{
	StateOpen:                {models.BookingPackageBuy, models.BookingPayAndPlay},
	StateNewCustomer:         {models.BookingPackageBuy, models.BookingPayAndPlay},
	StateExistingNoBalance:   {models.BookingPackageBuy, models.BookingPayAndPlay},
	StateExistingWithBalance: {models.BookingPayAndPlay},
}

// CanTransition checks the form transition table.
func CanTransition(from, to State) bool {
	for _, s := range formTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CustomerType is the customer type carried by the state.
func (s State) CustomerType() models.CustomerType {
	if s == StateExistingNoBalance || s == StateExistingWithBalance {
		return models.CustomerExisting
	}
	return models.CustomerNew
}

// Locked reports whether the customer type can no longer change.
func (s State) Locked() bool {
	return s != StateOpen
}

// BookingTypes lists the booking types the form offers in state s.
func (s State) BookingTypes() []models.BookingType {
	return append([]models.BookingType(nil), offeredBookingTypes[s]...)
}

// Offers reports whether t may be chosen in state s.
func (s State) Offers(t models.BookingType) bool {
	for _, v := range offeredBookingTypes[s] {
		if v == t {
			return true
		}
	}
	return false
}

func stateFor(res *lookup.Result) State {
	switch {
	case res.CustomerType == models.CustomerNew:
		return StateNewCustomer
	case res.BookingTypeSelectable():
		return StateExistingNoBalance
	default:
		return StateExistingWithBalance
	}
}

// Form is one operator's booking in progress. It is single-owner and not safe for
// concurrent use.
type Form struct {
	state       State
	name        string
	phone       string
	bookingType models.BookingType
	packageID   int
	centerID    int
	availFor    int
	lookup      *lookup.Result
	selection   *slots.Selection

	// submission progress, kept across failed attempts
	batchKey      string
	customerKey   string
	placed        []models.Booking
	reconcileID   string
	registerError string
}

func NewForm() *Form {
	f := &Form{selection: slots.NewSelection()}
	f.reset()
	return f
}

func (f *Form) reset() {
	f.state = StateOpen
	f.name = ""
	f.phone = ""
	f.bookingType = models.BookingPayAndPlay
	f.packageID = 0
	f.centerID = 0
	f.availFor = 0
	f.lookup = nil
	f.selection.Reset()
	f.selection.Apply(nil)
	f.batchKey = uuid.NewString()
	f.customerKey = uuid.NewString()
	f.placed = nil
	f.reconcileID = ""
	f.registerError = ""
}

// Reset returns the form to its initial empty state.
func (f *Form) Reset() {
	f.reset()
}

func (f *Form) State() State                      { return f.state }
func (f *Form) CustomerType() models.CustomerType { return f.state.CustomerType() }
func (f *Form) BookingType() models.BookingType   { return f.bookingType }
func (f *Form) Name() string                      { return f.name }
func (f *Form) Phone() string                     { return f.phone }
func (f *Form) PackageID() int                    { return f.packageID }
func (f *Form) CenterID() int                     { return f.centerID }
func (f *Form) Lookup() *lookup.Result            { return f.lookup }
func (f *Form) Selection() *slots.Selection       { return f.selection }

// Placed returns bookings already created by an earlier, partially failed submit.
func (f *Form) Placed() []models.Booking {
	return append([]models.Booking(nil), f.placed...)
}

func (f *Form) SetName(name string) {
	f.name = strings.TrimSpace(name)
}

// SetPhone changes the phone while the customer is unresolved.
func (f *Form) SetPhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if f.state.Locked() && phone != f.phone {
		return ErrCustomerLocked
	}
	f.phone = phone
	return nil
}

// ApplyLookup locks the customer type from a lookup result.
func (f *Form) ApplyLookup(res *lookup.Result) error {
	next := stateFor(res)
	if !CanTransition(f.state, next) {
		return ErrCustomerLocked
	}
	f.state = next
	f.phone = res.Phone
	f.lookup = res
	if !f.state.Offers(f.bookingType) {
		f.bookingType = models.BookingPayAndPlay
		f.packageID = 0
	}
	return nil
}

// SetBookingType picks how the booking is paid for.
func (f *Form) SetBookingType(t models.BookingType) error {
	if !t.Valid() {
		return ErrUnknownBookingType
	}
	if !f.state.Offers(t) {
		return ErrBookingTypeNotOffered
	}
	f.bookingType = t
	if t != models.BookingPackageBuy {
		f.packageID = 0
	}
	return nil
}

// SetPackage picks the package to buy. Validity is checked on submit against the catalog.
func (f *Form) SetPackage(id int) {
	f.packageID = id
}

// SetCenter switches the center. Slot picking is blocked until ApplyAvailability
// delivers the new center's map.
func (f *Form) SetCenter(id int) bool {
	if id == f.centerID {
		return false
	}
	f.centerID = id
	return true
}

// ApplyAvailability installs the map resolved for centerID. Results for a center that is no
// longer chosen are ignored. Returns the selections dropped by re-validation.
func (f *Form) ApplyAvailability(centerID int, m models.AvailabilityMap) ([]models.Slot, bool) {
	if centerID != f.centerID {
		return nil, false
	}
	f.availFor = centerID
	return f.selection.Apply(m), true
}

// Toggle flips a slot on the calendar.
func (f *Form) Toggle(slot models.Slot) (bool, error) {
	if f.centerID == 0 {
		return false, ErrNoCenterChosen
	}
	if f.availFor != f.centerID {
		return false, ErrAvailabilityPending
	}
	return f.selection.Toggle(slot), nil
}

// View is a read-only snapshot for rendering.
type View struct {
	State         State                `json:"state"`
	CustomerType  models.CustomerType  `json:"customerType"`
	Locked        bool                 `json:"customerTypeLocked"`
	BookingType   models.BookingType   `json:"bookingType"`
	BookingTypes  []models.BookingType `json:"bookingTypes"`
	Name          string               `json:"name"`
	Phone         string               `json:"phone"`
	PackageID     int                  `json:"packageId,omitempty"`
	CenterID      int                  `json:"centerId,omitempty"`
	Message       string               `json:"packageMessage,omitempty"`
	OversLeft     *int                 `json:"oversLeft,omitempty"`
	SelectedSlots []models.Slot        `json:"selectedSlots"`
	Placed        []models.Booking     `json:"placedBookings,omitempty"`
	PendingError  string               `json:"pendingRegistrationError,omitempty"`
	ReconcileID   string               `json:"reconciliationId,omitempty"`
}

func (f *Form) View() View {
	v := View{
		State:         f.state,
		CustomerType:  f.CustomerType(),
		Locked:        f.state.Locked(),
		BookingType:   f.bookingType,
		BookingTypes:  f.state.BookingTypes(),
		Name:          f.name,
		Phone:         f.phone,
		PackageID:     f.packageID,
		CenterID:      f.centerID,
		SelectedSlots: f.selection.Slots(),
		Placed:        f.Placed(),
		PendingError:  f.registerError,
		ReconcileID:   f.reconcileID,
	}
	if f.lookup != nil {
		v.Message = f.lookup.Message
		v.OversLeft = f.lookup.OversLeft
	}
	return v
}
