package models

// Slot is a bookable (date, time) cell. It is comparable and used as a map key.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s Slot) String() string {
	return s.Date + " " + s.Time
}

// AvailabilityMap maps date -> time label -> available.
type AvailabilityMap map[string]map[string]bool

// Available reports whether the cell exists in the map and is free.
func (m AvailabilityMap) Available(s Slot) bool {
	times, ok := m[s.Date]
	if !ok {
		return false
	}
	return times[s.Time]
}

// Clone returns a deep copy.
func (m AvailabilityMap) Clone() AvailabilityMap {
	out := make(AvailabilityMap, len(m))
	for date, times := range m {
		cp := make(map[string]bool, len(times))
		for t, v := range times {
			cp[t] = v
		}
		out[date] = cp
	}
	return out
}

// SlotStatus is one entry of the availability feed.
type SlotStatus struct {
	Slot   string `json:"slot"`
	Status string `json:"status"`
}

// SlotFeed is the GET /slots response.
type SlotFeed struct {
	Availability map[string][]SlotStatus `json:"availability"`
}
