// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package overlay provides copy-on-write maps used to stage changes
// against a saved state.
//
// A Map records puts and deletions on top of a base Store without touching
// it. Reads fall through to the base for keys the overlay has not changed.
// Commit folds the staged changes into the base; Reset discards them.
// Because a Map is itself a Store, overlays can be stacked: a Map whose
// base is another Map commits into that Map's staged changes.
//
// Thread Safety:
//
//	Nothing in this package is safe for concurrent use. Callers that share
//	a Store across goroutines must synchronize externally.
package overlay

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is the minimal keyed storage an overlay can sit on.
type Store[K comparable, V any] interface {
	// Get returns the value stored under k.
	Get(k K) (V, bool)

	// Put stores v under k.
	Put(k K, v V)

	// Delete removes k. Deleting an absent key is a no-op.
	Delete(k K)

	// Len returns the number of keys present.
	Len() int

	// Range calls fn for every key until fn returns false.
	// Iteration order is unspecified.
	Range(fn func(k K, v V) bool)
}

// Base is a Store backed by a plain Go map.
type Base[K comparable, V any] struct {
	m map[K]V
}

// NewBase creates an empty Base.
func NewBase[K comparable, V any]() *Base[K, V] {
	return &Base[K, V]{m: make(map[K]V)}
}

// Get implements Store.
func (b *Base[K, V]) Get(k K) (V, bool) {
	v, ok := b.m[k]
	return v, ok
}

// Put implements Store.
func (b *Base[K, V]) Put(k K, v V) { b.m[k] = v }

// Delete implements Store.
func (b *Base[K, V]) Delete(k K) { delete(b.m, k) }

// Len implements Store.
func (b *Base[K, V]) Len() int { return len(b.m) }

// Range implements Store.
func (b *Base[K, V]) Range(fn func(k K, v V) bool) {
	for k, v := range b.m {
		if !fn(k, v) {
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Map
// -----------------------------------------------------------------------------

// Map stages puts and deletions over a base Store.
//
// Description:
//
//	Get consults the staged puts, then the staged deletions, then the base.
//	Put and Delete only ever write the staged maps. The base is modified
//	exclusively by Commit.
type Map[K comparable, V any] struct {
	base Store[K, V]
	puts map[K]V
	dels map[K]struct{}
}

// NewMap creates an overlay over base.
func NewMap[K comparable, V any](base Store[K, V]) *Map[K, V] {
	return &Map[K, V]{
		base: base,
		puts: make(map[K]V),
		dels: make(map[K]struct{}),
	}
}

// Base returns the store this overlay sits on.
func (m *Map[K, V]) Base() Store[K, V] { return m.base }

// Get implements Store.
func (m *Map[K, V]) Get(k K) (V, bool) {
	if v, ok := m.puts[k]; ok {
		return v, true
	}
	if _, ok := m.dels[k]; ok {
		var zero V
		return zero, false
	}
	return m.base.Get(k)
}

// Put implements Store.
func (m *Map[K, V]) Put(k K, v V) {
	m.puts[k] = v
	delete(m.dels, k)
}

// Delete implements Store.
//
// A deletion is only staged when the base holds k; otherwise dropping the
// staged put is enough.
func (m *Map[K, V]) Delete(k K) {
	delete(m.puts, k)
	if _, ok := m.base.Get(k); ok {
		m.dels[k] = struct{}{}
	}
}

// Len implements Store.
func (m *Map[K, V]) Len() int {
	n := m.base.Len() - len(m.dels)
	for k := range m.puts {
		if _, ok := m.base.Get(k); !ok {
			n++
		}
	}
	return n
}

// Range implements Store. Staged puts are visited first.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	for k, v := range m.puts {
		if !fn(k, v) {
			return
		}
	}
	m.base.Range(func(k K, v V) bool {
		if _, ok := m.puts[k]; ok {
			return true
		}
		if _, ok := m.dels[k]; ok {
			return true
		}
		return fn(k, v)
	})
}

// ChangedKeys returns every key with a staged put or deletion.
//
// A key that was put back to a value equal to the base value is still
// reported; callers compare against the base when they care.
func (m *Map[K, V]) ChangedKeys() []K {
	keys := make([]K, 0, len(m.puts)+len(m.dels))
	for k := range m.puts {
		keys = append(keys, k)
	}
	for k := range m.dels {
		keys = append(keys, k)
	}
	return keys
}

// Changed reports whether anything is staged.
func (m *Map[K, V]) Changed() bool {
	return len(m.puts) > 0 || len(m.dels) > 0
}

// Commit writes the staged changes into the base and clears them.
func (m *Map[K, V]) Commit() {
	for k := range m.dels {
		m.base.Delete(k)
	}
	for k, v := range m.puts {
		m.base.Put(k, v)
	}
	m.Reset()
}

// Reset discards the staged changes.
func (m *Map[K, V]) Reset() {
	clear(m.puts)
	clear(m.dels)
}
