// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"slices"

	"github.com/AleutianAI/openworld/services/inference/model"
)

// Entry is one value of a histogram with its accumulated weight.
type Entry struct {
	Value  any
	Weight float64
}

// Histogram accumulates weights per value.
type Histogram struct {
	entries map[string]*Entry
	total   float64
}

// NewHistogram creates an empty histogram.
func NewHistogram() *Histogram {
	return &Histogram{entries: make(map[string]*Entry)}
}

// Add adds weight to value.
func (h *Histogram) Add(value any, weight float64) {
	k := model.ValueKey(value)
	e, ok := h.entries[k]
	if !ok {
		e = &Entry{Value: value}
		h.entries[k] = e
	}
	e.Weight += weight
	h.total += weight
}

// Weight returns the weight accumulated for value.
func (h *Histogram) Weight(value any) float64 {
	if e, ok := h.entries[model.ValueKey(value)]; ok {
		return e.Weight
	}
	return 0
}

// Total returns the total weight.
func (h *Histogram) Total() float64 { return h.total }

// Prob returns the normalized weight of value, or 0 for an empty
// histogram.
func (h *Histogram) Prob(value any) float64 {
	if h.total == 0 {
		return 0
	}
	return h.Weight(value) / h.total
}

// Entries returns the entries ordered by value.
func (h *Histogram) Entries() []Entry {
	out := make([]Entry, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return model.CompareValues(a.Value, b.Value) })
	return out
}

// Merge adds every entry of o.
func (h *Histogram) Merge(o *Histogram) {
	for _, e := range o.entries {
		h.Add(e.Value, e.Weight)
	}
}

// Clear removes all entries.
func (h *Histogram) Clear() {
	clear(h.entries)
	h.total = 0
}

// Clone returns an independent copy.
func (h *Histogram) Clone() *Histogram {
	c := NewHistogram()
	c.Merge(h)
	return c
}
