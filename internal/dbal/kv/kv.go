// Package kv implements a tenant-scoped key-value store with optional
// expiry. Values live in process memory; expiry is checked lazily when a
// key is read, never by a background timer.
package kv

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/kmarchand/studioforge/internal/dbal/scope"
)

type item struct {
	value     any
	list      []any
	isList    bool
	expiresAt time.Time
}

func (it *item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// Store holds namespaced keys. All methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	items map[string]*item
	clock func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items: make(map[string]*item),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for expiry checks.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// live fetches the item for key, deleting it first if it has expired.
func (s *Store) live(key string) (*item, bool) {
	it, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if it.expired(s.clock()) {
		delete(s.items, key)
		return nil, false
	}
	return it, true
}

// Set stores a value under the scoped key. A zero ttl means the key never
// expires. Setting over a list replaces it with a plain value.
func (s *Store) Set(sc scope.Context, key string, value any, ttl time.Duration) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it := &item{value: value}
	if ttl > 0 {
		it.expiresAt = s.clock().Add(ttl)
	}
	s.items[sc.Key(key)] = it
	return nil
}

// Get returns the value for the scoped key. Missing and expired keys both
// report false.
func (s *Store) Get(sc scope.Context, key string) (any, bool, error) {
	if err := sc.Validate(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.live(sc.Key(key))
	if !ok || it.isList {
		return nil, false, nil
	}
	return it.value, true, nil
}

// Delete removes the scoped key. Deleting a missing key is a no-op.
func (s *Store) Delete(sc scope.Context, key string) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sc.Key(key))
	return nil
}

// Exists reports whether the scoped key holds a live value or list.
func (s *Store) Exists(sc scope.Context, key string) (bool, error) {
	if err := sc.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(sc.Key(key))
	return ok, nil
}

// ListAdd appends values to the list at the scoped key, creating the list
// if needed, and returns the new length. Appending to a key holding a plain
// value replaces it with a fresh list.
func (s *Store) ListAdd(sc scope.Context, key string, values ...any) (int, error) {
	if err := sc.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	scoped := sc.Key(key)
	it, ok := s.live(scoped)
	if !ok || !it.isList {
		it = &item{isList: true}
		s.items[scoped] = it
	}
	it.list = append(it.list, values...)
	return len(it.list), nil
}

// ListGet returns a copy of the list at the scoped key, optionally narrowed
// to a range: one bound is a start index, two bounds are start and end
// (exclusive). Negative bounds count from the end of the list; out-of-range
// bounds clamp. Missing keys and keys holding plain values both return an
// empty list.
func (s *Store) ListGet(sc scope.Context, key string, bounds ...int) ([]any, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.live(sc.Key(key))
	if !ok || !it.isList {
		return []any{}, nil
	}
	start, end := len(it.list), len(it.list)
	switch len(bounds) {
	case 0:
		start = 0
	case 1:
		start = clampIndex(bounds[0], len(it.list))
	default:
		start = clampIndex(bounds[0], len(it.list))
		end = clampIndex(bounds[1], len(it.list))
	}
	if end < start {
		end = start
	}
	out := make([]any, end-start)
	copy(out, it.list[start:end])
	return out, nil
}

// ListRemove deletes every element equal to value from the list at the
// scoped key and returns how many were removed. Non-lists report zero.
func (s *Store) ListRemove(sc scope.Context, key string, value any) (int, error) {
	if err := sc.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.live(sc.Key(key))
	if !ok || !it.isList {
		return 0, nil
	}
	kept := it.list[:0]
	for _, existing := range it.list {
		if !reflect.DeepEqual(existing, value) {
			kept = append(kept, existing)
		}
	}
	removed := len(it.list) - len(kept)
	it.list = kept
	return removed, nil
}

// clampIndex resolves a possibly negative index against length. Negative
// indices count from the end; out-of-range indices clamp to the bounds.
func clampIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

// ListLength returns the length of the list at the scoped key.
func (s *Store) ListLength(sc scope.Context, key string) (int, error) {
	if err := sc.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.live(sc.Key(key))
	if !ok || !it.isList {
		return 0, nil
	}
	return len(it.list), nil
}

// Clear removes every key of the tenant whose unscoped name starts with
// prefix. An empty prefix clears the whole tenant namespace.
func (s *Store) Clear(sc scope.Context, prefix string) (int, error) {
	if err := sc.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	scopedPrefix := sc.Key(prefix)
	var removed int
	for key := range s.items {
		if strings.HasPrefix(key, scopedPrefix) {
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}
