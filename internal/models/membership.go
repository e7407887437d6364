package models

import (
	"strings"
	"time"
)

// Customer is a registered customer. One record per phone.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Membership is a purchased package of overs.
type Membership struct {
	Phone      string    `json:"phone"`
	PackageID  int       `json:"package_id"`
	TotalOvers int       `json:"totalOvers"`
	OversLeft  int       `json:"oversLeft"`
	Validity   string    `json:"validity"`
	Status     string    `json:"status"`
	Center     CenterRef `json:"center"`
	Price      int       `json:"price"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OversUsed returns how many overs have been played from the package.
func (m *Membership) OversUsed() int {
	return m.TotalOvers - m.OversLeft
}

// NormalizeMembershipStatus fixes the spelling variants found in stored memberships.
func NormalizeMembershipStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case s == "":
		return "Unknown"
	case strings.HasPrefix(s, "close"):
		return "Closed"
	case strings.HasPrefix(s, "run"):
		return "Running"
	case strings.HasPrefix(s, "exp"):
		return "Expired"
	case strings.HasPrefix(s, "pend"):
		return "Pending"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// PhoneQuery is the body of the get-customers and get-memberships lookups.
type PhoneQuery struct {
	Phone string `json:"phone,omitempty"`
}

// OversDecrement is the PATCH /memberships payload.
type OversDecrement struct {
	Phone string `json:"phone"`
	Overs int    `json:"overs"`
}
