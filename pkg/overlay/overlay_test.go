// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package overlay

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[K comparable, V any](s Store[K, V]) map[K]V {
	out := make(map[K]V)
	s.Range(func(k K, v V) bool {
		out[k] = v
		return true
	})
	return out
}

func TestMap_ReadsFallThrough(t *testing.T) {
	base := NewBase[string, int]()
	base.Put("a", 1)
	base.Put("b", 2)

	m := NewMap[string, int](base)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Len())
	assert.False(t, m.Changed())
}

func TestMap_WritesStayInOverlay(t *testing.T) {
	base := NewBase[string, int]()
	base.Put("a", 1)
	base.Put("b", 2)

	m := NewMap[string, int](base)
	m.Put("a", 10)
	m.Put("c", 3)
	m.Delete("b")

	assert.Equal(t, map[string]int{"a": 10, "c": 3}, collect[string, int](m))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, collect[string, int](base))

	keys := m.ChangedKeys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMap_DeleteOfOverlayOnlyKey(t *testing.T) {
	base := NewBase[string, int]()
	m := NewMap[string, int](base)

	m.Put("x", 1)
	m.Delete("x")

	_, ok := m.Get("x")
	assert.False(t, ok)
	assert.False(t, m.Changed(), "deleting a key the base never had leaves nothing staged")
}

func TestMap_CommitAndReset(t *testing.T) {
	base := NewBase[string, int]()
	base.Put("a", 1)

	m := NewMap[string, int](base)
	m.Put("b", 2)
	m.Reset()
	assert.Equal(t, map[string]int{"a": 1}, collect[string, int](base))
	assert.False(t, m.Changed())

	m.Put("b", 2)
	m.Delete("a")
	m.Commit()
	assert.Equal(t, map[string]int{"b": 2}, collect[string, int](base))
	assert.False(t, m.Changed())
}

func TestMap_Stacked(t *testing.T) {
	base := NewBase[string, int]()
	base.Put("a", 1)

	outer := NewMap[string, int](base)
	outer.Put("b", 2)

	inner := NewMap[string, int](outer)
	inner.Put("c", 3)
	inner.Delete("a")
	assert.Equal(t, map[string]int{"b": 2, "c": 3}, collect[string, int](inner))

	inner.Commit()
	assert.Equal(t, map[string]int{"b": 2, "c": 3}, collect[string, int](outer))
	assert.Equal(t, map[string]int{"a": 1}, collect[string, int](base), "base untouched until outer commits")

	outer.Commit()
	assert.Equal(t, map[string]int{"b": 2, "c": 3}, collect[string, int](base))
}

func TestMultiMap_CopyOnWrite(t *testing.T) {
	root := NewMultiMap[string, int]()
	root.Add("k", 1)
	root.Add("k", 2)

	ov := root.Overlay()
	assert.True(t, ov.Add("k", 3))
	assert.True(t, ov.Remove("k", 1))

	assert.ElementsMatch(t, []int{2, 3}, ov.Members("k"))
	assert.ElementsMatch(t, []int{1, 2}, root.Members("k"), "root must not see staged members")
	assert.Equal(t, []string{"k"}, ov.ChangedKeys())

	ov.Reset()
	assert.ElementsMatch(t, []int{1, 2}, ov.Members("k"))

	ov.Add("k", 4)
	ov.Commit()
	assert.ElementsMatch(t, []int{1, 2, 4}, root.Members("k"))
}

func TestMultiMap_EmptySetsRemoved(t *testing.T) {
	root := NewMultiMap[string, int]()
	root.Add("k", 1)

	ov := root.Overlay()
	ov.Remove("k", 1)
	assert.Equal(t, 0, ov.Size("k"))
	assert.Equal(t, 0, ov.Len())
	assert.Equal(t, 1, root.Len())

	ov.Commit()
	assert.Equal(t, 0, root.Len())
	assert.False(t, root.Remove("k", 1))
}

func TestMultiMap_NestedOverlays(t *testing.T) {
	root := NewMultiMap[string, string]()
	mid := root.Overlay()
	mid.Add("p", "c1")

	top := mid.Overlay()
	top.Add("p", "c2")
	assert.Equal(t, 1, mid.Size("p"))
	assert.Equal(t, 2, top.Size("p"))

	top.Commit()
	assert.Equal(t, 2, mid.Size("p"))
	assert.Equal(t, 0, root.Size("p"))

	mid.Commit()
	assert.ElementsMatch(t, []string{"c1", "c2"}, root.Members("p"))
}
