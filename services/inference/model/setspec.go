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

import "strings"

// -----------------------------------------------------------------------------
// ImplicitSetSpec
// -----------------------------------------------------------------------------

// ImplicitSetSpec is the set {T x : cond} of objects of a type satisfying
// a formula.
type ImplicitSetSpec struct {
	lv   *LogicalVar
	cond Formula
}

// SetOf creates {lv.Type() lv : cond}. A nil cond selects every member.
func SetOf(lv *LogicalVar, cond Formula) *ImplicitSetSpec {
	if cond == nil {
		cond = True
	}
	return &ImplicitSetSpec{lv: lv, cond: cond}
}

// LogicalVar returns the bound variable.
func (s *ImplicitSetSpec) LogicalVar() *LogicalVar { return s.lv }

// Cond returns the membership condition.
func (s *ImplicitSetSpec) Cond() Formula { return s.cond }

// ElementType returns the type of the members.
func (s *ImplicitSetSpec) ElementType() *Type { return s.lv.typ }

// Evaluate implements Term. The value is an ObjectSet.
func (s *ImplicitSetSpec) Evaluate(ctx EvalContext) (any, bool) {
	members, ok := satisfyingObjects(ctx, s.lv, s.cond)
	if !ok {
		return nil, false
	}
	return NewExplicitSet(members), true
}

// Type implements Term.
func (s *ImplicitSetSpec) Type() *Type { return SetType }

// Subterms implements Term.
func (s *ImplicitSetSpec) Subterms() []Term { return []Term{s.cond} }

// String implements Term.
func (s *ImplicitSetSpec) String() string {
	return "{" + s.lv.typ.name + " " + s.lv.name + " : " + s.cond.String() + "}"
}

func (s *ImplicitSetSpec) termKey() string {
	return "{" + (&LogicalVarTerm{lv: s.lv}).termKey() + ":" + s.cond.termKey() + "}"
}

// satisfyingObjects lists the values of lv's type for which cond holds.
// Explicit satisfier sets are used in place of type enumeration when the
// condition pins lv down.
func satisfyingObjects(ctx EvalContext, lv *LogicalVar, cond Formula) ([]any, bool) {
	candidates, ok := candidateObjects(ctx, lv, cond)
	if !ok {
		return nil, false
	}
	var out []any
	for _, c := range candidates {
		ctx.Assign(lv, c)
		holds, ok := cond.IsTrue(ctx)
		ctx.Unassign(lv)
		if !ok {
			return nil, false
		}
		if holds {
			out = append(out, c)
		}
	}
	return out, true
}

// candidateObjects returns a superset of the values of lv satisfying cond.
func candidateObjects(ctx EvalContext, lv *LogicalVar, cond Formula) ([]any, bool) {
	explicit, ok := cond.SatisfiersIfExplicit(ctx, lv)
	if !ok {
		return nil, false
	}
	if explicit == nil {
		return ObjectsOfType(ctx, lv.typ)
	}
	var out []any
	for _, e := range explicit.Elements() {
		if IsOfType(e, lv.typ) {
			out = append(out, e)
		}
	}
	return out, true
}

// -----------------------------------------------------------------------------
// TupleSetSpec
// -----------------------------------------------------------------------------

// TupleSetSpec is the set {terms for T1 x1, ..., Tn xn : cond}. With a
// single term the members are the term's values; otherwise Tuples.
type TupleSetSpec struct {
	terms []Term
	vars  []*LogicalVar
	cond  Formula
}

// TupleSet creates a tuple set specification. A nil cond always holds.
func TupleSet(terms []Term, vars []*LogicalVar, cond Formula) *TupleSetSpec {
	if cond == nil {
		cond = True
	}
	return &TupleSetSpec{terms: terms, vars: vars, cond: cond}
}

// Terms returns the member terms.
func (s *TupleSetSpec) Terms() []Term { return append([]Term(nil), s.terms...) }

// LogicalVars returns the bound variables.
func (s *TupleSetSpec) LogicalVars() []*LogicalVar {
	return append([]*LogicalVar(nil), s.vars...)
}

// Cond returns the condition.
func (s *TupleSetSpec) Cond() Formula { return s.cond }

// Evaluate implements Term. The value is an ObjectSet.
func (s *TupleSetSpec) Evaluate(ctx EvalContext) (any, bool) {
	var members []any
	ok := s.forEachBinding(ctx, 0, func() bool {
		vals, ok := evalAll(ctx, s.terms)
		if !ok {
			return false
		}
		if len(vals) == 1 {
			members = append(members, vals[0])
		} else {
			members = append(members, NewTuple(vals...))
		}
		return true
	})
	if !ok {
		return nil, false
	}
	return NewExplicitSet(members), true
}

// ForEachBinding binds the logical variables to every combination that
// satisfies the condition and calls fn with the context so bound. It
// returns false if the context could not determine the combinations or
// fn returned false.
func (s *TupleSetSpec) ForEachBinding(ctx EvalContext, fn func() bool) bool {
	return s.forEachBinding(ctx, 0, fn)
}

func (s *TupleSetSpec) forEachBinding(ctx EvalContext, i int, fn func() bool) bool {
	if i == len(s.vars) {
		holds, ok := s.cond.IsTrue(ctx)
		if !ok {
			return false
		}
		if !holds {
			return true
		}
		return fn()
	}
	lv := s.vars[i]
	objs, ok := ObjectsOfType(ctx, lv.typ)
	if !ok {
		return false
	}
	for _, o := range objs {
		ctx.Assign(lv, o)
		ok := s.forEachBinding(ctx, i+1, fn)
		ctx.Unassign(lv)
		if !ok {
			return false
		}
	}
	return true
}

// Type implements Term.
func (s *TupleSetSpec) Type() *Type { return SetType }

// Subterms implements Term.
func (s *TupleSetSpec) Subterms() []Term {
	return append(s.Terms(), s.cond)
}

// String implements Term.
func (s *TupleSetSpec) String() string {
	decls := make([]string, len(s.vars))
	for i, lv := range s.vars {
		decls[i] = lv.typ.name + " " + lv.name
	}
	return "{" + joinTerms(s.terms, ", ", Term.String) + " for " +
		strings.Join(decls, ", ") + " : " + s.cond.String() + "}"
}

func (s *TupleSetSpec) termKey() string {
	decls := make([]string, len(s.vars))
	for i, lv := range s.vars {
		decls[i] = (&LogicalVarTerm{lv: lv}).termKey()
	}
	return "{" + joinTerms(s.terms, ",", TermKey) + "|" + strings.Join(decls, ",") +
		":" + s.cond.termKey() + "}"
}

// -----------------------------------------------------------------------------
// ExplicitSetSpec
// -----------------------------------------------------------------------------

// ExplicitSetSpec is the set {t1, ..., tn} of the members' values.
type ExplicitSetSpec struct {
	terms []Term
}

// SetOfTerms creates {terms...}.
func SetOfTerms(terms ...Term) *ExplicitSetSpec { return &ExplicitSetSpec{terms: terms} }

// Evaluate implements Term.
func (s *ExplicitSetSpec) Evaluate(ctx EvalContext) (any, bool) {
	vals, ok := evalAll(ctx, s.terms)
	if !ok {
		return nil, false
	}
	return NewExplicitSet(vals), true
}

// Type implements Term.
func (s *ExplicitSetSpec) Type() *Type { return SetType }

// Subterms implements Term.
func (s *ExplicitSetSpec) Subterms() []Term { return append([]Term(nil), s.terms...) }

// String implements Term.
func (s *ExplicitSetSpec) String() string { return "{" + joinTerms(s.terms, ", ", Term.String) + "}" }

func (s *ExplicitSetSpec) termKey() string { return "{" + joinTerms(s.terms, ",", TermKey) + "}" }

// -----------------------------------------------------------------------------
// ExcludingSetTerm
// -----------------------------------------------------------------------------

// ExcludingSetTerm is a set minus the values of some terms. It gives each
// symbol of a symbol evidence statement a distribution over the objects
// not already taken by the earlier symbols.
type ExcludingSetTerm struct {
	set     Term
	exclude []Term
}

// Excluding creates set \ {exclude...}.
func Excluding(set Term, exclude ...Term) *ExcludingSetTerm {
	return &ExcludingSetTerm{set: set, exclude: exclude}
}

// Evaluate implements Term.
func (t *ExcludingSetTerm) Evaluate(ctx EvalContext) (any, bool) {
	v, ok := t.set.Evaluate(ctx)
	if !ok {
		return nil, false
	}
	s, isSet := v.(ObjectSet)
	if !isSet {
		return EmptySet, true
	}
	excl, ok := evalAll(ctx, t.exclude)
	if !ok {
		return nil, false
	}
	return Without(s, excl), true
}

// Type implements Term.
func (t *ExcludingSetTerm) Type() *Type { return SetType }

// Subterms implements Term.
func (t *ExcludingSetTerm) Subterms() []Term {
	return append([]Term{t.set}, t.exclude...)
}

// String implements Term.
func (t *ExcludingSetTerm) String() string {
	return t.set.String() + " \\ {" + joinTerms(t.exclude, ", ", Term.String) + "}"
}

func (t *ExcludingSetTerm) termKey() string {
	return t.set.termKey() + "\\{" + joinTerms(t.exclude, ",", TermKey) + "}"
}
