// Package store provides a generic, thread-safe, in-memory keyed collection.
// It backs the memory storage driver and the payment simulator. Every
// mutation runs under one lock, so conditional updates expressed through
// Update or Insert are atomic per item.
package store

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Store is a generic in-memory collection of T keyed by string id, kept in
// insertion order.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
	seq   atomic.Int64
}

// New creates an empty Store.
func New[T any]() *Store[T] {
	return &Store[T]{
		items: make(map[string]T),
		order: make([]string, 0),
	}
}

// NextSeq returns the next value of the store's monotonic sequence,
// starting at 1.
func (s *Store[T]) NextSeq() int64 {
	return s.seq.Add(1)
}

// Set stores an item under id. Overwriting keeps the original insertion position.
func (s *Store[T]) Set(id string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

// Insert stores item under id only when id is absent. It reports whether
// the item was stored.
func (s *Store[T]) Insert(id string, item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; exists {
		return false
	}
	s.order = append(s.order, id)
	s.items[id] = item
	return true
}

// Get retrieves an item by id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Update applies fn to a copy of the item under id and stores the result
// when fn returns true. It returns the stored item and whether fn committed.
// A missing id returns the zero value and false without calling fn.
func (s *Store[T]) Update(id string, fn func(item *T) bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	if !fn(&item) {
		return s.items[id], false
	}
	s.items[id] = item
	return item, true
}

// DeleteFunc removes every item matching predicate and returns how many
// were removed.
func (s *Store[T]) DeleteFunc(predicate func(id string, item T) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if predicate(id, s.items[id]) {
			delete(s.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Filter returns the items matching predicate, in insertion order.
func (s *Store[T]) Filter(predicate func(id string, item T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []T
	for _, id := range s.order {
		if predicate(id, s.items[id]) {
			result = append(result, s.items[id])
		}
	}
	return result
}

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Paginate returns up to limit items following the cursor id, newest last.
// An empty cursor starts at the beginning; limit <= 0 returns everything.
func (s *Store[T]) Paginate(cursor string, limit int) Page[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if cursor != "" {
		for i, id := range s.order {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = len(s.order)
	}
	end := min(start+limit, len(s.order))

	page := Page[T]{Items: make([]T, 0, end-start)}
	for i := start; i < end; i++ {
		page.Items = append(page.Items, s.items[s.order[i]])
	}
	if end < len(s.order) && end > start {
		page.NextCursor = s.order[end-1]
	}
	return page
}

// Reset clears all items and the sequence.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = make([]string, 0)
	s.seq.Store(0)
}

// Snapshot returns a copy of all items keyed by id.
func (s *Store[T]) Snapshot() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]T, len(s.items))
	for k, v := range s.items {
		snapshot[k] = v
	}
	return snapshot
}

// LoadSnapshot replaces all items. Ids are sorted to keep listing order
// deterministic.
func (s *Store[T]) LoadSnapshot(snapshot map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(snapshot))
	s.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		s.items[k] = v
		s.order = append(s.order, k)
	}
	sort.Strings(s.order)
}
