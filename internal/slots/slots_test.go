package slots

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"strikedesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// gatedFeed answers per center; a center with a gate blocks until the gate is closed.
type gatedFeed struct {
	mu      sync.Mutex
	feeds   map[int]*models.SlotFeed
	errs    map[int]error
	gates   map[int]chan struct{}
	started chan int
}

func newGatedFeed() *gatedFeed {
	return &gatedFeed{
		feeds:   make(map[int]*models.SlotFeed),
		errs:    make(map[int]error),
		gates:   make(map[int]chan struct{}),
		started: make(chan int, 10),
	}
}

func (f *gatedFeed) GetSlots(_ context.Context, centerID int) (*models.SlotFeed, error) {
	f.mu.Lock()
	gate := f.gates[centerID]
	feed, err := f.feeds[centerID], f.errs[centerID]
	f.mu.Unlock()

	f.started <- centerID
	if gate != nil {
		<-gate
	}
	return feed, err
}

var testNow = time.Date(2026, 10, 16, 21, 40, 0, 0, time.UTC)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestNewGrid(t *testing.T) {
	g := NewGrid(testNow)

	require.Len(t, g.Dates, GridDays)
	require.Len(t, g.Times, 96)
	assert.Equal(t, "2026-10-16", g.Dates[0])
	assert.Equal(t, "2026-10-22", g.Dates[6])
	assert.Equal(t, "00:00", g.Times[0])
	assert.Equal(t, "00:15", g.Times[1])
	assert.Equal(t, "23:45", g.Times[95])

	for i := 1; i < len(g.Dates); i++ {
		prev, err := time.Parse(models.DateLayout, g.Dates[i-1])
		require.NoError(t, err)
		cur, err := time.Parse(models.DateLayout, g.Dates[i])
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, cur.Sub(prev))
	}
}

func TestNewGrid_MonthAndZoneBoundaries(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 20:00 UTC on Dec 29 is already Dec 30 in Kolkata.
	g := NewGrid(time.Date(2026, 12, 29, 20, 0, 0, 0, time.UTC).In(loc))
	assert.Equal(t, []string{
		"2026-12-30", "2026-12-31", "2027-01-01", "2027-01-02",
		"2027-01-03", "2027-01-04", "2027-01-05",
	}, g.Dates)
}

func TestNewGrid_Idempotent(t *testing.T) {
	morning := NewGrid(time.Date(2026, 10, 16, 0, 1, 0, 0, time.UTC))
	night := NewGrid(time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, morning, night)
	assert.Len(t, morning.Slots(), GridDays*SlotsPerDay)
	assert.True(t, morning.Contains(models.Slot{Date: "2026-10-22", Time: "23:45"}))
	assert.False(t, morning.Contains(models.Slot{Date: "2026-10-23", Time: "10:00"}))
	assert.False(t, morning.Contains(models.Slot{Date: "2026-10-16", Time: "10:10"}))
}

func TestResolver_AppliesFeed(t *testing.T) {
	feed := newGatedFeed()
	feed.feeds[1] = &models.SlotFeed{Availability: map[string][]models.SlotStatus{
		"2026-10-17": {
			{Slot: "10:00", Status: "booked"},
			{Slot: "10:15", Status: "available"},
			{Slot: "10:07", Status: "booked"},
		},
		"2026-12-01": {{Slot: "10:00", Status: "booked"}},
	}}

	r := NewResolver(feed, fixedClock{testNow}, testLogger())
	res, err := r.Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.False(t, res.Degraded())
	assert.False(t, res.Map.Available(models.Slot{Date: "2026-10-17", Time: "10:00"}))
	assert.True(t, res.Map.Available(models.Slot{Date: "2026-10-17", Time: "10:15"}))
	assert.True(t, res.Map.Available(models.Slot{Date: "2026-10-18", Time: "10:00"}))
	assert.NotContains(t, res.Map["2026-10-17"], "10:07")
	assert.NotContains(t, res.Map, "2026-12-01")
	assert.Same(t, res, r.Current())

	unavailable := 0
	for _, s := range res.Grid.Slots() {
		if !res.Map.Available(s) {
			unavailable++
		}
	}
	assert.Equal(t, 1, unavailable)
}

func TestResolver_FailOpen(t *testing.T) {
	feed := newGatedFeed()
	feed.errs[2] = errors.New("connection refused")

	r := NewResolver(feed, fixedClock{testNow}, testLogger())
	res, err := r.Resolve(context.Background(), 2)
	require.NoError(t, err)

	assert.True(t, res.Degraded())
	for _, s := range res.Grid.Slots() {
		require.True(t, res.Map.Available(s), s.String())
	}
}

func TestResolver_LatestRequestWins(t *testing.T) {
	feed := newGatedFeed()
	gate := make(chan struct{})
	feed.gates[1] = gate
	feed.feeds[1] = &models.SlotFeed{Availability: map[string][]models.SlotStatus{
		"2026-10-16": {{Slot: "12:00", Status: "booked"}},
	}}
	feed.feeds[2] = &models.SlotFeed{Availability: map[string][]models.SlotStatus{
		"2026-10-16": {{Slot: "18:00", Status: "booked"}},
	}}

	r := NewResolver(feed, fixedClock{testNow}, testLogger())

	var staleErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, staleErr = r.Resolve(context.Background(), 1)
	}()
	require.Equal(t, 1, <-feed.started)

	res, err := r.Resolve(context.Background(), 2)
	require.NoError(t, err)
	<-feed.started

	close(gate)
	<-done

	assert.ErrorIs(t, staleErr, ErrSuperseded)
	cur := r.Current()
	require.NotNil(t, cur)
	assert.Same(t, res, cur)
	assert.Equal(t, 2, cur.CenterID)
	assert.True(t, cur.Map.Available(models.Slot{Date: "2026-10-16", Time: "12:00"}))
	assert.False(t, cur.Map.Available(models.Slot{Date: "2026-10-16", Time: "18:00"}))
}

func TestResolver_Clear(t *testing.T) {
	feed := newGatedFeed()
	r := NewResolver(feed, fixedClock{testNow}, testLogger())
	_, err := r.Resolve(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, r.Current())

	r.Clear()
	assert.Nil(t, r.Current())
}

func availableGrid() models.AvailabilityMap {
	m := NewGrid(testNow).AllAvailable()
	m["2026-10-16"]["22:00"] = false
	return m
}

func TestSelection_Toggle(t *testing.T) {
	sel := NewSelection()
	var reported [][]models.Slot
	sel.OnChange(func(s []models.Slot) { reported = append(reported, s) })
	sel.Apply(availableGrid())

	a := models.Slot{Date: "2026-10-16", Time: "22:15"}
	b := models.Slot{Date: "2026-10-17", Time: "09:00"}

	assert.True(t, sel.Toggle(a))
	assert.True(t, sel.Toggle(b))
	assert.Equal(t, []models.Slot{a, b}, sel.Slots())

	// double toggle restores the prior state
	assert.True(t, sel.Toggle(a))
	assert.Equal(t, []models.Slot{b}, sel.Slots())
	assert.True(t, sel.Toggle(a))
	assert.Equal(t, []models.Slot{b, a}, sel.Slots())

	require.Len(t, reported, 4)
	assert.Equal(t, []models.Slot{b, a}, reported[3])
}

func TestSelection_UnavailableIsNoop(t *testing.T) {
	sel := NewSelection()
	calls := 0
	sel.OnChange(func([]models.Slot) { calls++ })

	blocked := models.Slot{Date: "2026-10-16", Time: "22:00"}
	assert.False(t, sel.Toggle(blocked), "nothing selectable before availability is known")

	sel.Apply(availableGrid())
	assert.False(t, sel.Toggle(blocked))
	assert.False(t, sel.Toggle(models.Slot{Date: "2026-10-30", Time: "10:00"}))
	assert.Equal(t, 0, sel.Len())
	assert.Equal(t, 0, calls)
}

func TestSelection_ApplyDropsStale(t *testing.T) {
	sel := NewSelection()
	sel.Apply(availableGrid())

	keep := models.Slot{Date: "2026-10-18", Time: "07:00"}
	lose := models.Slot{Date: "2026-10-18", Time: "07:15"}
	require.True(t, sel.Toggle(keep))
	require.True(t, sel.Toggle(lose))

	next := availableGrid()
	next["2026-10-18"]["07:15"] = false
	dropped := sel.Apply(next)

	assert.Equal(t, []models.Slot{lose}, dropped)
	assert.Equal(t, []models.Slot{keep}, sel.Slots())
	assert.False(t, sel.Contains(lose))
}

func TestSelection_Reset(t *testing.T) {
	sel := NewSelection()
	sel.Apply(availableGrid())
	require.True(t, sel.Toggle(models.Slot{Date: "2026-10-19", Time: "11:30"}))

	sel.Reset()
	assert.Equal(t, 0, sel.Len())
	assert.Empty(t, sel.Slots())
	assert.True(t, sel.Toggle(models.Slot{Date: "2026-10-19", Time: "11:30"}))
}
