package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"":          StatusPending,
		"pending":   StatusPending,
		"Booked":    StatusBooked,
		"ACTIVE":    StatusActive,
		"completed": StatusCompleted,
		"Cancelled": StatusCancelled,
		"canceled":  StatusCancelled,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStatus("archived")
	assert.Error(t, err)
}

func TestStatus_Action(t *testing.T) {
	assert.Equal(t, "active", StatusActive.Action())
	assert.Equal(t, "cancelled", StatusCancelled.Action())
	assert.Equal(t, "completed", StatusCompleted.Action())
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusActive.Terminal())
}

func TestBooking_UnmarshalServiceRecord(t *testing.T) {
	raw := `{
		"_id": "65f0c1",
		"bookedBy": "9876543210",
		"customerType": "Existing Customer",
		"bookingType": "Pay and Play",
		"packageId": 0,
		"center": "2",
		"overs": 6,
		"forDate": "2026-10-17T00:00:00.000Z",
		"forTime": "18:30:00",
		"status": "active",
		"expiryTime": "2026-10-17T18:45:00Z"
	}`

	var b Booking
	require.NoError(t, json.Unmarshal([]byte(raw), &b))
	assert.Equal(t, "65f0c1", b.ID)
	assert.Equal(t, CenterRef(2), b.Center)
	assert.Equal(t, StatusActive, b.Status)
	assert.Equal(t, Slot{Date: "2026-10-17", Time: "18:30"}, b.Slot())
	require.NotNil(t, b.ExpiryTime)

	assert.False(t, b.Expired(time.Date(2026, 10, 17, 18, 44, 0, 0, time.UTC)))
	assert.True(t, b.Expired(time.Date(2026, 10, 17, 18, 46, 0, 0, time.UTC)))
}

func TestBooking_ExpiredOnlyWhenActive(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	b := Booking{Status: StatusCancelled, ExpiryTime: &expiry}
	assert.False(t, b.Expired(expiry.Add(time.Hour)))

	b = Booking{Status: StatusActive}
	assert.False(t, b.Expired(expiry.Add(time.Hour)))
}

func TestAvailabilityMap(t *testing.T) {
	m := AvailabilityMap{"2026-10-16": {"10:00": true, "10:15": false}}

	assert.True(t, m.Available(Slot{Date: "2026-10-16", Time: "10:00"}))
	assert.False(t, m.Available(Slot{Date: "2026-10-16", Time: "10:15"}))
	assert.False(t, m.Available(Slot{Date: "2026-10-16", Time: "10:07"}))
	assert.False(t, m.Available(Slot{Date: "2026-10-20", Time: "10:00"}))

	cp := m.Clone()
	cp["2026-10-16"]["10:00"] = false
	assert.True(t, m.Available(Slot{Date: "2026-10-16", Time: "10:00"}))
}

func TestNormalizeMembershipStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Unknown"},
		{"closed", "Closed"},
		{"Closeed", "Closed"},
		{" running ", "Running"},
		{"Runing", "Running"},
		{"expird", "Expired"},
		{"PENDING", "Pending"},
		{"paused", "Paused"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMembershipStatus(tt.in))
		})
	}
}
