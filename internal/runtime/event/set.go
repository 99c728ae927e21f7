package event

import (
	"sort"
	"sync"
)

// Set is an ordered collection of events, unique by ID and sorted by
// (Timestamp, ID). It is safe for concurrent use; windowed reads work on a
// copy taken under the lock.
type Set struct {
	mu     sync.RWMutex
	events []Event
	ids    map[string]struct{}
}

// NewSet returns a set holding the given events.
func NewSet(events ...Event) *Set {
	s := &Set{ids: make(map[string]struct{}, len(events))}
	for _, e := range events {
		s.Insert(e)
	}
	return s
}

// Insert adds e and reports whether it was added. Events whose ID is already
// present are ignored.
func (s *Set) Insert(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	if _, ok := s.ids[e.ID]; ok {
		return false
	}
	s.ids[e.ID] = struct{}{}

	n := len(s.events)
	if n == 0 || s.events[n-1].Before(e) {
		s.events = append(s.events, e)
		return true
	}
	i := sort.Search(n, func(i int) bool { return e.Before(s.events[i]) })
	s.events = append(s.events, Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = e
	return true
}

// bounds returns the half-open index range of events with start <= ts <= end.
// Callers must hold the lock.
func (s *Set) bounds(start, end int64) (int, int) {
	if start > end {
		return 0, 0
	}
	lo := sort.Search(len(s.events), func(i int) bool { return s.events[i].Timestamp >= start })
	hi := sort.Search(len(s.events), func(i int) bool { return s.events[i].Timestamp > end })
	return lo, hi
}

func (s *Set) window(start, end int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := s.bounds(start, end)
	out := make([]Event, hi-lo)
	copy(out, s.events[lo:hi])
	return out
}

// Filter returns a new set with the events in the inclusive window
// [start, end]. The receiver is not modified.
func (s *Set) Filter(start, end int64) *Set {
	return fromSorted(s.window(start, end))
}

// Count returns the number of events in [start, end].
func (s *Set) Count(start, end int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := s.bounds(start, end)
	return hi - lo
}

// Clean atomically removes the events in [start, end] and returns them.
func (s *Set) Clean(start, end int64) *Set {
	return fromSorted(s.FetchAndClean(start, end))
}

// Fetch returns the events in [start, end] in order.
func (s *Set) Fetch(start, end int64) []Event {
	return s.window(start, end)
}

// FetchAll returns every event in order.
func (s *Set) FetchAll() []Event {
	return s.Events()
}

// FetchAndClean removes the events in [start, end] and returns them in order.
func (s *Set) FetchAndClean(start, end int64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := s.bounds(start, end)
	if lo == hi {
		return []Event{}
	}
	removed := make([]Event, hi-lo)
	copy(removed, s.events[lo:hi])
	for _, e := range removed {
		delete(s.ids, e.ID)
	}
	s.events = append(s.events[:lo], s.events[hi:]...)
	return removed
}

// Events returns a snapshot of the set in order.
func (s *Set) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of events held.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func fromSorted(events []Event) *Set {
	ids := make(map[string]struct{}, len(events))
	for _, e := range events {
		ids[e.ID] = struct{}{}
	}
	return &Set{events: events, ids: ids}
}

// Merge combines already sorted event slices into one slice ordered by
// (Timestamp, ID).
func Merge(groups ...[]Event) []Event {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	out := make([]Event, 0, total)
	for _, g := range groups {
		out = append(out, g...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
