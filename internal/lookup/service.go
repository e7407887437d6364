// Package lookup resolves a phone number to customer and package state.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"strikedesk/internal/metrics"
	"strikedesk/internal/models"

	"github.com/rs/zerolog"
)

// ErrPhoneRequired is returned before any call when the phone is blank.
var ErrPhoneRequired = errors.New("phone number is required")

// MessageNoPackages is shown for an existing customer without memberships.
const MessageNoPackages = "No packages taken"

// Directory is the part of the booking service the lookup reads from.
type Directory interface {
	GetCustomers(ctx context.Context, phone string) ([]models.Customer, error)
	GetMemberships(ctx context.Context, phone string) ([]models.Membership, error)
}

// Result is what the booking form learns from a phone number.
type Result struct {
	Phone        string              `json:"phone"`
	CustomerType models.CustomerType `json:"customerType"`
	Customer     *models.Customer    `json:"customer,omitempty"`
	Membership   *models.Membership  `json:"membership,omitempty"`
	OversLeft    *int                `json:"oversLeft,omitempty"`
	Message      string              `json:"message,omitempty"`
	// Err is set when a call failed and the result fell back to a new customer.
	Err error `json:"-"`
}

// Degraded reports whether the result is the fail-toward-new fallback.
func (r *Result) Degraded() bool {
	return r.Err != nil
}

// HasBalance reports whether the customer can play from an existing package.
func (r *Result) HasBalance() bool {
	return r.CustomerType == models.CustomerExisting && r.OversLeft != nil && *r.OversLeft > 0
}

// BookingTypeSelectable tells whether the form must offer the booking type choice:
// new customers, customers without packages and customers with an exhausted package.
func (r *Result) BookingTypeSelectable() bool {
	if r.CustomerType == models.CustomerNew || r.Message == MessageNoPackages {
		return true
	}
	return r.OversLeft != nil && *r.OversLeft == 0
}

type Service struct {
	dir    Directory
	logger *zerolog.Logger
}

func NewService(dir Directory, logger *zerolog.Logger) *Service {
	l := logger.With().Str("component", "lookup").Logger()
	return &Service{dir: dir, logger: &l}
}

// Lookup resolves phone. Service failures never surface as errors: the result falls back
// to a new customer with Err set.
func (s *Service) Lookup(ctx context.Context, phone string) (*Result, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrPhoneRequired
	}

	customers, err := s.dir.GetCustomers(ctx, phone)
	if err != nil {
		return s.degraded(phone, fmt.Errorf("get customers: %w", err)), nil
	}
	if len(customers) != 1 {
		if len(customers) > 1 {
			s.logger.Warn().Str("phone", phone).Int("matches", len(customers)).Msg("ambiguous customer match, treating as new")
		}
		metrics.IncLookup("new")
		return newCustomer(phone), nil
	}

	memberships, err := s.dir.GetMemberships(ctx, phone)
	if err != nil {
		return s.degraded(phone, fmt.Errorf("get memberships: %w", err)), nil
	}

	res := &Result{
		Phone:        phone,
		CustomerType: models.CustomerExisting,
		Customer:     &customers[0],
	}

	if top := latestMembership(memberships); top != nil {
		overs := top.OversLeft
		res.Membership = top
		res.OversLeft = &overs
		res.Message = fmt.Sprintf("%d overs left", overs)
	} else {
		res.Message = MessageNoPackages
	}

	metrics.IncLookup("existing")
	return res, nil
}

func (s *Service) degraded(phone string, err error) *Result {
	s.logger.Warn().Err(err).Str("phone", phone).Msg("customer lookup failed, treating as new customer")
	metrics.IncLookup("degraded")
	res := newCustomer(phone)
	res.Err = err
	return res
}

func newCustomer(phone string) *Result {
	return &Result{Phone: phone, CustomerType: models.CustomerNew}
}

// latestMembership picks the membership with the highest package id.
func latestMembership(ms []models.Membership) *models.Membership {
	if len(ms) == 0 {
		return nil
	}
	sorted := make([]models.Membership, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PackageID > sorted[j].PackageID
	})
	return &sorted[0]
}
