package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date and time layouts used on the wire.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	ClockLayout    = "15:04:05"
	SlotStepMinute = 15
)

// CustomerType tells whether the phone already belongs to a registered customer.
type CustomerType string

const (
	CustomerNew      CustomerType = "New Customer"
	CustomerExisting CustomerType = "Existing Customer"
)

// BookingType tells how the booking is paid for.
type BookingType string

const (
	BookingPackageBuy BookingType = "Package Buy"
	BookingPayAndPlay BookingType = "Pay and Play"
)

// Valid reports whether t is a known booking type.
func (t BookingType) Valid() bool {
	return t == BookingPackageBuy || t == BookingPayAndPlay
}

// Status is the lifecycle status of a booking.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusBooked    Status = "Booked"
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// ParseStatus normalises a status coming from the booking service.
// The service is not consistent about case; an empty status reads as Pending.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return StatusPending, nil
	case "booked":
		return StatusBooked, nil
	case "active":
		return StatusActive, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown booking status %q", s)
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Action returns the PATCH /bookings action value for the target status.
func (s Status) Action() string {
	return strings.ToLower(string(s))
}

// UnmarshalJSON accepts any casing used by the service.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CenterRef is a center identifier that the service sometimes encodes as a string.
type CenterRef int

// UnmarshalJSON accepts both 2 and "2".
func (c *CenterRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*c = 0
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("center id %q: %w", raw, err)
		}
		*c = CenterRef(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = CenterRef(n)
	return nil
}

// Booking is one booked slot as stored by the booking service.
type Booking struct {
	ID           string       `json:"_id,omitempty"`
	Seq          int          `json:"id,omitempty"`
	BookedBy     string       `json:"bookedBy"`
	CustomerType CustomerType `json:"customerType"`
	BookingType  BookingType  `json:"bookingType"`
	PackageID    int          `json:"packageId"`
	Center       CenterRef    `json:"center"`
	Overs        int          `json:"overs,omitempty"`
	OnDate       string       `json:"onDate"`
	OnTime       string       `json:"onTime"`
	ForDate      string       `json:"forDate"`
	ForTime      string       `json:"forTime"`
	Status       Status       `json:"status"`
	ActivatedAt  *time.Time   `json:"activatedAt,omitempty"`
	ExpiryTime   *time.Time   `json:"expiryTime,omitempty"`
	Price        *int         `json:"price,omitempty"`
}

// Slot returns the booked cell.
func (b *Booking) Slot() Slot {
	return Slot{Date: normalizeDate(b.ForDate), Time: normalizeTime(b.ForTime)}
}

// Expired reports whether an active booking's stored expiry is before now.
func (b *Booking) Expired(now time.Time) bool {
	return b.Status == StatusActive && b.ExpiryTime != nil && b.ExpiryTime.Before(now)
}

// StatusUpdate is the PATCH /bookings payload.
type StatusUpdate struct {
	ID          string     `json:"_id"`
	Action      string     `json:"action"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	ExpiryTime  *time.Time `json:"expiryTime,omitempty"`
}

// normalizeDate trims an ISO timestamp down to its date part.
func normalizeDate(s string) string {
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}

// normalizeTime trims "HH:MM:SS" down to "HH:MM".
func normalizeTime(s string) string {
	if len(s) > len(TimeLayout) {
		return s[:len(TimeLayout)]
	}
	return s
}
