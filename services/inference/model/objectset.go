// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"slices"
	"strings"

	"golang.org/x/exp/rand"
)

// ObjectSet is a finite set of values with a canonical order.
//
// Implementations are pointer types so that sets can be stored as values
// and compared without panicking.
type ObjectSet interface {
	// Size returns the number of elements.
	Size() int

	// Contains reports membership.
	Contains(v any) bool

	// At returns the i-th element in canonical order, 0 <= i < Size().
	At(i int) any

	// Elements returns a fresh slice of all elements in canonical order.
	Elements() []any
}

// SortValues sorts vals in place by CompareValues.
func SortValues(vals []any) {
	slices.SortFunc(vals, CompareValues)
}

// SampleUniform draws an element of s uniformly. It returns Null for an
// empty set.
func SampleUniform(s ObjectSet, rng *rand.Rand) any {
	n := s.Size()
	if n == 0 {
		return Null
	}
	return s.At(rng.Intn(n))
}

// ExplicitSet is an ObjectSet over materialized elements.
type ExplicitSet struct {
	elems []any
	index map[string]int
}

// EmptySet is the set with no elements.
var EmptySet ObjectSet = NewExplicitSet(nil)

// NewExplicitSet builds a set from vals, dropping duplicates and sorting.
func NewExplicitSet(vals []any) *ExplicitSet {
	s := &ExplicitSet{index: make(map[string]int, len(vals))}
	for _, v := range vals {
		k := ValueKey(v)
		if _, dup := s.index[k]; dup {
			continue
		}
		s.index[k] = -1
		s.elems = append(s.elems, v)
	}
	SortValues(s.elems)
	for i, v := range s.elems {
		s.index[ValueKey(v)] = i
	}
	return s
}

// Size implements ObjectSet.
func (s *ExplicitSet) Size() int { return len(s.elems) }

// Contains implements ObjectSet.
func (s *ExplicitSet) Contains(v any) bool {
	_, ok := s.index[ValueKey(v)]
	return ok
}

// At implements ObjectSet.
func (s *ExplicitSet) At(i int) any { return s.elems[i] }

// Elements implements ObjectSet.
func (s *ExplicitSet) Elements() []any { return append([]any(nil), s.elems...) }

// String implements fmt.Stringer.
func (s *ExplicitSet) String() string { return setString(s) }

// Without returns the elements of s not in excluded.
func Without(s ObjectSet, excluded []any) ObjectSet {
	if len(excluded) == 0 {
		return s
	}
	drop := make(map[string]struct{}, len(excluded))
	for _, e := range excluded {
		drop[ValueKey(e)] = struct{}{}
	}
	kept := make([]any, 0, s.Size())
	for _, e := range s.Elements() {
		if _, ok := drop[ValueKey(e)]; !ok {
			kept = append(kept, e)
		}
	}
	return NewExplicitSet(kept)
}

// POPSatisfierSet is the set of non-guaranteed objects {NGO(pop, gen, i) |
// 1 <= i <= n}. Elements are produced on demand, so membership and random
// access are O(1) regardless of n.
type POPSatisfierSet struct {
	model   *Model
	nv      *NumberVar
	n       int
	genObjs []any
}

// NewPOPSatisfierSet returns the satisfiers of nv when its value is n.
func NewPOPSatisfierSet(m *Model, nv *NumberVar, n int) *POPSatisfierSet {
	return &POPSatisfierSet{model: m, nv: nv, n: n, genObjs: nv.genObjs}
}

// Size implements ObjectSet.
func (s *POPSatisfierSet) Size() int { return s.n }

// Contains implements ObjectSet.
func (s *POPSatisfierSet) Contains(v any) bool {
	o, ok := v.(*NonGuaranteedObject)
	if !ok || o.pop != s.nv.pop || o.index < 1 || o.index > s.n {
		return false
	}
	return CompareTuples(o.genObjs, s.genObjs) == 0
}

// At implements ObjectSet.
func (s *POPSatisfierSet) At(i int) any {
	return s.model.NonGuaranteed(s.nv.pop, s.genObjs, i+1)
}

// Elements implements ObjectSet.
func (s *POPSatisfierSet) Elements() []any {
	out := make([]any, s.n)
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// String implements fmt.Stringer.
func (s *POPSatisfierSet) String() string { return setString(s) }

func setString(s ObjectSet) string {
	parts := make([]string, 0, s.Size())
	for _, e := range s.Elements() {
		parts = append(parts, ValueString(e))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
