// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package overlay

import (
	"github.com/hashicorp/go-set/v3"
)

// MultiMap maps keys to sets of members.
//
// Description:
//
//	A MultiMap is either a root (backed by a Base) or an overlay created
//	with Overlay. An overlay never mutates a set it read from below: the
//	first write to a key copies the underlying set into the overlay and
//	all later writes for that key go to the copy. Empty sets are removed.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type MultiMap[K comparable, E comparable] struct {
	store   Store[K, *set.Set[E]]
	overlay *Map[K, *set.Set[E]]
	owned   map[K]struct{}
}

// NewMultiMap creates an empty root MultiMap.
func NewMultiMap[K comparable, E comparable]() *MultiMap[K, E] {
	return &MultiMap[K, E]{
		store: NewBase[K, *set.Set[E]](),
		owned: make(map[K]struct{}),
	}
}

// Overlay creates a copy-on-write MultiMap staged over m.
func (m *MultiMap[K, E]) Overlay() *MultiMap[K, E] {
	ov := NewMap[K, *set.Set[E]](m.store)
	return &MultiMap[K, E]{
		store:   ov,
		overlay: ov,
		owned:   make(map[K]struct{}),
	}
}

// Members returns a copy of the members stored under k.
func (m *MultiMap[K, E]) Members(k K) []E {
	s, ok := m.store.Get(k)
	if !ok {
		return nil
	}
	return s.Slice()
}

// Contains reports whether e is stored under k.
func (m *MultiMap[K, E]) Contains(k K, e E) bool {
	s, ok := m.store.Get(k)
	return ok && s.Contains(e)
}

// Size returns the number of members stored under k.
func (m *MultiMap[K, E]) Size(k K) int {
	s, ok := m.store.Get(k)
	if !ok {
		return 0
	}
	return s.Size()
}

// Add stores e under k. Returns true if e was not already present.
func (m *MultiMap[K, E]) Add(k K, e E) bool {
	if m.Contains(k, e) {
		return false
	}
	return m.writable(k).Insert(e)
}

// Remove deletes e from k's members. Returns true if it was present.
func (m *MultiMap[K, E]) Remove(k K, e E) bool {
	if !m.Contains(k, e) {
		return false
	}
	s := m.writable(k)
	s.Remove(e)
	if s.Empty() {
		m.store.Delete(k)
		delete(m.owned, k)
	}
	return true
}

// Len returns the number of keys with at least one member.
func (m *MultiMap[K, E]) Len() int { return m.store.Len() }

// Range calls fn for every non-empty key. The slice passed to fn is a copy.
func (m *MultiMap[K, E]) Range(fn func(k K, members []E) bool) {
	m.store.Range(func(k K, s *set.Set[E]) bool {
		return fn(k, s.Slice())
	})
}

// ChangedKeys returns the keys whose member sets the overlay changed.
// A root MultiMap reports nothing.
func (m *MultiMap[K, E]) ChangedKeys() []K {
	if m.overlay == nil {
		return nil
	}
	return m.overlay.ChangedKeys()
}

// Commit folds an overlay's changes into the MultiMap it was created from.
// It is a no-op on a root.
func (m *MultiMap[K, E]) Commit() {
	if m.overlay == nil {
		return
	}
	m.overlay.Commit()
	clear(m.owned)
}

// Reset discards an overlay's changes. It is a no-op on a root.
func (m *MultiMap[K, E]) Reset() {
	if m.overlay == nil {
		return
	}
	m.overlay.Reset()
	clear(m.owned)
}

// writable returns a set for k that this MultiMap may mutate in place.
func (m *MultiMap[K, E]) writable(k K) *set.Set[E] {
	s, ok := m.store.Get(k)
	if m.overlay == nil {
		if !ok {
			s = set.New[E](1)
			m.store.Put(k, s)
		}
		return s
	}
	if _, mine := m.owned[k]; mine && ok {
		return s
	}
	var cp *set.Set[E]
	if ok {
		cp = s.Copy()
	} else {
		cp = set.New[E](1)
	}
	m.store.Put(k, cp)
	m.owned[k] = struct{}{}
	return cp
}
