// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package world

import (
	"cmp"
	"math"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/AleutianAI/openworld/pkg/overlay"
	"github.com/AleutianAI/openworld/services/inference/model"
)

type valueEntry struct {
	v   model.BasicVar
	val any
}

type derivedEntry struct {
	v   *model.DerivedVar
	val any
	ok  bool
}

// worldState is the storage shared by DefaultPartialWorld and
// PartialWorldDiff. The default world backs it with plain maps; a diff
// backs it with overlays over the saved world's stores. All maps are keyed
// by variable key.
type worldState struct {
	model   *model.Model
	idTypes *set.Set[*model.Type]

	values      overlay.Store[string, valueEntry]
	logProbs    overlay.Store[string, float64]
	parents     overlay.Store[string, []model.BasicVar]
	unsupported overlay.Store[string, model.BasicVar]
	derived     overlay.Store[string, derivedEntry]
	idApps      overlay.Store[*model.ObjectIdentifier, *model.NumberVar]

	children  *overlay.MultiMap[string, string]
	appIDs    *overlay.MultiMap[string, *model.ObjectIdentifier]
	argUses   *overlay.MultiMap[*model.ObjectIdentifier, string]
	valueUses *overlay.MultiMap[*model.ObjectIdentifier, string]

	// onNewIdentifier lets a diff track the identifiers it created.
	onNewIdentifier func(id *model.ObjectIdentifier)
}

func (s *worldState) state() *worldState { return s }

// Model implements PartialWorld.
func (s *worldState) Model() *model.Model { return s.model }

// -----------------------------------------------------------------------------
// Basic variables
// -----------------------------------------------------------------------------

// Value implements PartialWorld.
func (s *worldState) Value(v model.BasicVar) any {
	e, ok := s.values.Get(v.Key())
	if !ok {
		return nil
	}
	return e.val
}

// IsInstantiated implements PartialWorld.
func (s *worldState) IsInstantiated(v model.BasicVar) bool {
	_, ok := s.values.Get(v.Key())
	return ok
}

// NumInstantiatedVars implements PartialWorld.
func (s *worldState) NumInstantiatedVars() int { return s.values.Len() }

// InstantiatedVars implements PartialWorld.
func (s *worldState) InstantiatedVars() []model.BasicVar {
	out := make([]model.BasicVar, 0, s.values.Len())
	s.values.Range(func(_ string, e valueEntry) bool {
		out = append(out, e.v)
		return true
	})
	slices.SortFunc(out, model.Compare)
	return out
}

// SetValue implements PartialWorld.
func (s *worldState) SetValue(v model.BasicVar, value any) {
	k := v.Key()
	old, wasInst := s.values.Get(k)
	if value == nil {
		if !wasInst {
			return
		}
		s.values.Delete(k)
		s.dropUses(k, old.v, old.val)
		s.setParents(k, nil)
		s.logProbs.Delete(k)
		s.unsupported.Delete(k)
	} else {
		if wasInst && model.ValuesEqual(old.val, value) {
			return
		}
		s.values.Put(k, valueEntry{v: v, val: value})
		if wasInst {
			s.dropValueUse(k, old.val)
		} else {
			s.addArgUses(k, v)
		}
		s.addValueUse(k, value)
		s.recomputeBasic(k, v, value)
	}
	s.recomputeChildren(k)
}

// recomputeBasic re-evaluates the dependency model of an instantiated
// variable, refreshing its parent edges, log-probability and support.
func (s *worldState) recomputeBasic(k string, v model.BasicVar, value any) {
	ctx := newParentRec(s, k)
	d, ok := v.Distrib(ctx)
	s.setParents(k, ctx.parents)
	if !ok {
		s.logProbs.Delete(k)
		s.unsupported.Put(k, ctx.missing)
		return
	}
	s.logProbs.Put(k, d.LogProb(value))
	s.unsupported.Delete(k)
}

func (s *worldState) recomputeChildren(k string) {
	kids := s.children.Members(k)
	slices.Sort(kids)
	for _, ck := range kids {
		if e, ok := s.values.Get(ck); ok {
			s.recomputeBasic(ck, e.v, e.val)
			continue
		}
		if e, ok := s.derived.Get(ck); ok {
			s.recomputeDerived(e.v)
		}
	}
}

// setParents replaces the parent edges of the variable keyed k.
func (s *worldState) setParents(k string, ps []model.BasicVar) {
	old, _ := s.parents.Get(k)
	if sameKeys(old, ps) {
		return
	}
	for _, p := range old {
		s.children.Remove(p.Key(), k)
	}
	if len(ps) == 0 {
		s.parents.Delete(k)
		return
	}
	s.parents.Put(k, ps)
	for _, p := range ps {
		s.children.Add(p.Key(), k)
	}
}

func sameKeys(a, b []model.BasicVar) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Object uses
// -----------------------------------------------------------------------------

func (s *worldState) addArgUses(k string, v model.BasicVar) {
	for _, a := range v.Args() {
		if id, ok := a.(*model.ObjectIdentifier); ok {
			s.argUses.Add(id, k)
		}
	}
}

func (s *worldState) addValueUse(k string, value any) {
	if id, ok := value.(*model.ObjectIdentifier); ok {
		s.valueUses.Add(id, k)
	}
}

func (s *worldState) dropValueUse(k string, value any) {
	if id, ok := value.(*model.ObjectIdentifier); ok {
		s.valueUses.Remove(id, k)
	}
}

func (s *worldState) dropUses(k string, v model.BasicVar, value any) {
	for _, a := range v.Args() {
		if id, ok := a.(*model.ObjectIdentifier); ok {
			s.argUses.Remove(id, k)
		}
	}
	s.dropValueUse(k, value)
}

// IsFloating implements PartialWorld.
func (s *worldState) IsFloating(id *model.ObjectIdentifier) bool {
	return s.argUses.Size(id) > 0 && s.valueUses.Size(id) == 0
}

// -----------------------------------------------------------------------------
// Derived variables
// -----------------------------------------------------------------------------

// DerivedVars implements PartialWorld.
func (s *worldState) DerivedVars() []*model.DerivedVar {
	out := make([]*model.DerivedVar, 0, s.derived.Len())
	s.derived.Range(func(_ string, e derivedEntry) bool {
		out = append(out, e.v)
		return true
	})
	slices.SortFunc(out, func(a, b *model.DerivedVar) int { return cmp.Compare(a.Key(), b.Key()) })
	return out
}

// AddDerivedVar implements PartialWorld.
func (s *worldState) AddDerivedVar(dv *model.DerivedVar) {
	if _, ok := s.derived.Get(dv.Key()); ok {
		return
	}
	s.recomputeDerived(dv)
}

// RemoveDerivedVar implements PartialWorld.
func (s *worldState) RemoveDerivedVar(dv *model.DerivedVar) {
	k := dv.Key()
	if _, ok := s.derived.Get(k); !ok {
		return
	}
	s.setParents(k, nil)
	s.derived.Delete(k)
}

// DerivedValue implements PartialWorld. Registered variables are served
// from the cache; others are evaluated without instantiating anything.
func (s *worldState) DerivedValue(dv *model.DerivedVar) (any, bool) {
	if e, ok := s.derived.Get(dv.Key()); ok {
		return e.val, e.ok
	}
	return dv.Value(newParentRec(s, ""))
}

func (s *worldState) recomputeDerived(dv *model.DerivedVar) {
	ctx := newParentRec(s, "")
	val, ok := dv.Value(ctx)
	s.setParents(dv.Key(), ctx.parents)
	s.derived.Put(dv.Key(), derivedEntry{v: dv, val: val, ok: ok})
}

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

// UsesIdentifiers implements PartialWorld.
func (s *worldState) UsesIdentifiers(t *model.Type) bool {
	return s.idTypes.Contains(t)
}

// NewIdentifier implements PartialWorld.
func (s *worldState) NewIdentifier(t *model.Type) *model.ObjectIdentifier {
	id := s.model.NewIdentifier(t)
	if s.onNewIdentifier != nil {
		s.onNewIdentifier(id)
	}
	return id
}

// AssertIdentifier implements PartialWorld.
func (s *worldState) AssertIdentifier(id *model.ObjectIdentifier, nv *model.NumberVar) {
	if cur, ok := s.idApps.Get(id); ok {
		if cur.Key() == nv.Key() {
			return
		}
		s.appIDs.Remove(cur.Key(), id)
		s.recomputeChildren(cur.Key())
	}
	s.idApps.Put(id, nv)
	s.appIDs.Add(nv.Key(), id)
	s.recomputeChildren(nv.Key())
}

// RemoveIdentifier implements PartialWorld.
func (s *worldState) RemoveIdentifier(id *model.ObjectIdentifier) {
	cur, ok := s.idApps.Get(id)
	if !ok {
		return
	}
	s.idApps.Delete(id)
	s.appIDs.Remove(cur.Key(), id)
	s.recomputeChildren(cur.Key())
}

// POPAppOf implements PartialWorld.
func (s *worldState) POPAppOf(id *model.ObjectIdentifier) *model.NumberVar {
	nv, _ := s.idApps.Get(id)
	return nv
}

// AssertedIdentifiers implements PartialWorld.
func (s *worldState) AssertedIdentifiers(nv *model.NumberVar) []*model.ObjectIdentifier {
	ids := s.appIDs.Members(nv.Key())
	slices.SortFunc(ids, func(a, b *model.ObjectIdentifier) int { return cmp.Compare(a.ID(), b.ID()) })
	return ids
}

// Satisfiers implements PartialWorld.
func (s *worldState) Satisfiers(nv *model.NumberVar) (model.ObjectSet, bool) {
	e, ok := s.values.Get(nv.Key())
	if !ok {
		return nil, false
	}
	n, _ := e.val.(int)
	if !s.idTypes.Contains(nv.POP().Type()) {
		return model.NewPOPSatisfierSet(s.model, nv, n), true
	}
	ids := s.AssertedIdentifiers(nv)
	if len(ids) < n {
		return nil, false
	}
	elems := make([]any, len(ids))
	for i, id := range ids {
		elems[i] = id
	}
	return model.NewExplicitSet(elems), true
}

// IsOverloaded implements PartialWorld.
func (s *worldState) IsOverloaded(nv *model.NumberVar) bool {
	e, ok := s.values.Get(nv.Key())
	if !ok || !s.idTypes.Contains(nv.POP().Type()) {
		return false
	}
	n, _ := e.val.(int)
	return s.appIDs.Size(nv.Key()) > n
}

// LogMultiplier implements PartialWorld.
func (s *worldState) LogMultiplier(nv *model.NumberVar) float64 {
	e, ok := s.values.Get(nv.Key())
	if !ok || !s.idTypes.Contains(nv.POP().Type()) {
		return 0
	}
	n, _ := e.val.(int)
	k := s.appIDs.Size(nv.Key())
	if k == 0 {
		return 0
	}
	if k > n {
		return math.Inf(-1)
	}
	return logFactorialRatio(n, k)
}

// logFactorialRatio returns log(n!/(n-k)!), the number of ways to assign k
// distinct identifiers to n exchangeable objects.
func logFactorialRatio(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(n - k + 1))
	return a - b
}

// -----------------------------------------------------------------------------
// Bayes net
// -----------------------------------------------------------------------------

// LogProbOfValue implements PartialWorld.
func (s *worldState) LogProbOfValue(v model.BasicVar) (float64, bool) {
	return s.logProbs.Get(v.Key())
}

// ProbOfValue implements PartialWorld.
func (s *worldState) ProbOfValue(v model.BasicVar) (float64, bool) {
	lp, ok := s.logProbs.Get(v.Key())
	if !ok {
		return 0, false
	}
	return math.Exp(lp), true
}

// LogProb implements PartialWorld.
func (s *worldState) LogProb() float64 {
	total := 0.0
	s.logProbs.Range(func(_ string, lp float64) bool {
		total += lp
		return true
	})
	s.appIDs.Range(func(k string, _ []*model.ObjectIdentifier) bool {
		if e, ok := s.values.Get(k); ok {
			if nv, isNV := e.v.(*model.NumberVar); isNV {
				total += s.LogMultiplier(nv)
			}
		}
		return true
	})
	return total
}

// Parents implements PartialWorld.
func (s *worldState) Parents(v model.Var) []model.BasicVar {
	ps, _ := s.parents.Get(v.Key())
	return append([]model.BasicVar(nil), ps...)
}

// Children implements PartialWorld.
func (s *worldState) Children(v model.BasicVar) []model.Var {
	keys := s.children.Members(v.Key())
	slices.Sort(keys)
	out := make([]model.Var, 0, len(keys))
	for _, k := range keys {
		if e, ok := s.values.Get(k); ok {
			out = append(out, e.v)
		} else if e, ok := s.derived.Get(k); ok {
			out = append(out, e.v)
		}
	}
	return out
}

// IsSupported implements PartialWorld.
func (s *worldState) IsSupported(v model.BasicVar) bool {
	k := v.Key()
	if _, ok := s.values.Get(k); !ok {
		return false
	}
	_, unsupported := s.unsupported.Get(k)
	return !unsupported
}

// MissingParent implements PartialWorld.
func (s *worldState) MissingParent(v model.BasicVar) model.BasicVar {
	p, _ := s.unsupported.Get(v.Key())
	return p
}

// IsBarren implements PartialWorld.
func (s *worldState) IsBarren(v model.BasicVar) bool {
	k := v.Key()
	if _, ok := s.values.Get(k); !ok {
		return false
	}
	return s.children.Size(k) == 0
}
