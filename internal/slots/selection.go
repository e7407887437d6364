package slots

import "strikedesk/internal/models"

// Selection is the ordered set of cells picked on a booking form.
// It is owned by a single form and is not safe for concurrent use.
type Selection struct {
	slots    []models.Slot
	index    map[models.Slot]struct{}
	avail    models.AvailabilityMap
	onChange func([]models.Slot)
}

func NewSelection() *Selection {
	return &Selection{index: make(map[models.Slot]struct{})}
}

// OnChange registers the owner callback. It receives a copy of the selection.
func (s *Selection) OnChange(fn func([]models.Slot)) {
	s.onChange = fn
}

// Apply installs a freshly resolved availability map and drops selections it no longer allows.
func (s *Selection) Apply(m models.AvailabilityMap) []models.Slot {
	s.avail = m

	var dropped []models.Slot
	kept := s.slots[:0]
	for _, slot := range s.slots {
		if m.Available(slot) {
			kept = append(kept, slot)
			continue
		}
		dropped = append(dropped, slot)
		delete(s.index, slot)
	}
	s.slots = kept

	if len(dropped) > 0 {
		s.notify()
	}
	return dropped
}

// Toggle flips membership of an available cell. Unavailable cells are ignored.
func (s *Selection) Toggle(slot models.Slot) bool {
	if !s.avail.Available(slot) {
		return false
	}

	if _, ok := s.index[slot]; ok {
		delete(s.index, slot)
		for i, v := range s.slots {
			if v == slot {
				s.slots = append(s.slots[:i], s.slots[i+1:]...)
				break
			}
		}
	} else {
		s.index[slot] = struct{}{}
		s.slots = append(s.slots, slot)
	}

	s.notify()
	return true
}

// Reset clears the selection. The availability map is kept.
func (s *Selection) Reset() {
	if len(s.slots) == 0 {
		return
	}
	s.slots = nil
	s.index = make(map[models.Slot]struct{})
	s.notify()
}

func (s *Selection) Contains(slot models.Slot) bool {
	_, ok := s.index[slot]
	return ok
}

func (s *Selection) Len() int {
	return len(s.slots)
}

// Slots returns a copy in selection order.
func (s *Selection) Slots() []models.Slot {
	out := make([]models.Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

func (s *Selection) notify() {
	if s.onChange != nil {
		s.onChange(s.Slots())
	}
}
