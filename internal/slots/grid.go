package slots

import (
	"fmt"
	"time"

	"strikedesk/internal/models"
)

const (
	// GridDays is how many calendar days the booking grid covers, today included.
	GridDays = 7
	// SlotsPerDay is the number of quarter-hour labels in a day.
	SlotsPerDay = 24 * 60 / models.SlotStepMinute
)

var timeLabels = buildTimeLabels()

func buildTimeLabels() []string {
	labels := make([]string, 0, SlotsPerDay)
	for m := 0; m < 24*60; m += models.SlotStepMinute {
		labels = append(labels, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return labels
}

// Grid is the fixed set of bookable cells for one week.
type Grid struct {
	Dates []string `json:"dates"`
	Times []string `json:"times"`
}

// NewGrid builds the grid for the week starting on now's calendar day.
// Dates are computed in now's location.
func NewGrid(now time.Time) Grid {
	y, m, d := now.Date()
	dates := make([]string, GridDays)
	for i := range dates {
		dates[i] = time.Date(y, m, d+i, 0, 0, 0, 0, now.Location()).Format(models.DateLayout)
	}

	times := make([]string, len(timeLabels))
	copy(times, timeLabels)

	return Grid{Dates: dates, Times: times}
}

// Contains reports whether the cell belongs to the grid.
func (g Grid) Contains(s models.Slot) bool {
	return indexOf(g.Dates, s.Date) >= 0 && indexOf(g.Times, s.Time) >= 0
}

// Slots enumerates every cell in date, then time order.
func (g Grid) Slots() []models.Slot {
	out := make([]models.Slot, 0, len(g.Dates)*len(g.Times))
	for _, date := range g.Dates {
		for _, t := range g.Times {
			out = append(out, models.Slot{Date: date, Time: t})
		}
	}
	return out
}

// AllAvailable returns a map with every cell of the grid marked available.
func (g Grid) AllAvailable() models.AvailabilityMap {
	m := make(models.AvailabilityMap, len(g.Dates))
	for _, date := range g.Dates {
		times := make(map[string]bool, len(g.Times))
		for _, t := range g.Times {
			times[t] = true
		}
		m[date] = times
	}
	return m
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
