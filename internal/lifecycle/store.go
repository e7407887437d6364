package lifecycle

import (
	"sync"
	"time"

	"strikedesk/internal/models"
)

// Store is the single owned copy of the booking list. Readers always get copies.
type Store struct {
	mu       sync.RWMutex
	bookings []models.Booking
	index    map[string]int
	loadedAt time.Time
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Replace swaps the whole list for a freshly fetched one.
func (s *Store) Replace(list []models.Booking, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bookings = make([]models.Booking, len(list))
	copy(s.bookings, list)
	s.index = make(map[string]int, len(list))
	for i, b := range s.bookings {
		if b.ID != "" {
			s.index[b.ID] = i
		}
	}
	s.loadedAt = at
}

func (s *Store) List() []models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

func (s *Store) Get(id string) (models.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Booking{}, false
	}
	return s.bookings[i], true
}

// Put replaces the stored record with the same id, or appends it.
func (s *Store) Put(b models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[b.ID]; ok {
		s.bookings[i] = b
		return
	}
	s.index[b.ID] = len(s.bookings)
	s.bookings = append(s.bookings, b)
}

// Expired returns the ids of active bookings whose stored expiry is before now.
func (s *Store) Expired(now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for i := range s.bookings {
		if s.bookings[i].ID != "" && s.bookings[i].Expired(now) {
			ids = append(ids, s.bookings[i].ID)
		}
	}
	return ids
}

func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// keyedMutex serialises work per booking id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
