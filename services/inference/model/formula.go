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

// Formula is a Boolean-valued term.
//
// Description:
//
//	The variants are TrueFormula, AtomicFormula, EqualityFormula,
//	ConjFormula, DisjFormula, NegFormula, ImplicFormula,
//	ExistentialFormula and UniversalFormula. Connectives evaluate their
//	operands left to right and stop at the first operand that decides the
//	result or cannot be determined, so evaluation touches only the
//	variables the result actually depends on.
type Formula interface {
	Term

	// IsTrue evaluates the formula. The second result is false when ctx
	// cannot determine it.
	IsTrue(ctx EvalContext) (bool, bool)

	// SatisfiersIfExplicit returns a finite superset of the values of lv
	// that can satisfy the formula, when the formula pins lv down (for
	// example lv == t). It returns a nil set when it does not, and false
	// when ctx cannot determine the set.
	SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool)

	// PropCNF returns the formula in conjunctive normal form, treating
	// atomic, equality and quantified formulas as propositions.
	PropCNF() CNF

	// PropDNF returns the formula in disjunctive normal form.
	PropDNF() DNF
}

// CNF is a conjunction of disjunctions of literals.
type CNF [][]Formula

// DNF is a disjunction of conjunctions of literals.
type DNF [][]Formula

func evalFormula(f Formula, ctx EvalContext) (any, bool) {
	b, ok := f.IsTrue(ctx)
	if !ok {
		return nil, false
	}
	return b, true
}

func notExplicit(EvalContext, *LogicalVar) (ObjectSet, bool) { return nil, true }

func mentions(t Term, lv *LogicalVar) bool {
	found := false
	Walk(t, func(s Term) bool {
		if v, ok := s.(*LogicalVarTerm); ok && v.lv == lv {
			found = true
			return false
		}
		return true
	})
	return found
}

// -----------------------------------------------------------------------------
// Literals
// -----------------------------------------------------------------------------

// TrueFormula always holds.
type TrueFormula struct{}

// True is the formula that always holds.
var True Formula = TrueFormula{}

func (TrueFormula) IsTrue(EvalContext) (bool, bool)          { return true, true }
func (f TrueFormula) Evaluate(ctx EvalContext) (any, bool)   { return evalFormula(f, ctx) }
func (TrueFormula) Type() *Type                              { return BooleanType }
func (TrueFormula) Subterms() []Term                         { return nil }
func (TrueFormula) String() string                           { return "true" }
func (TrueFormula) termKey() string                          { return "T" }
func (f TrueFormula) PropCNF() CNF                           { return CNF{{f}} }
func (f TrueFormula) PropDNF() DNF                           { return DNF{{f}} }
func (TrueFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	return notExplicit(ctx, lv)
}

// AtomicFormula holds when a Boolean term evaluates to true.
type AtomicFormula struct {
	term Term
}

// Atom wraps a Boolean term.
func Atom(t Term) *AtomicFormula { return &AtomicFormula{term: t} }

// Term returns the wrapped term.
func (f *AtomicFormula) Term() Term { return f.term }

// IsTrue implements Formula.
func (f *AtomicFormula) IsTrue(ctx EvalContext) (bool, bool) {
	v, ok := f.term.Evaluate(ctx)
	if !ok {
		return false, false
	}
	b, _ := v.(bool)
	return b, true
}

func (f *AtomicFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *AtomicFormula) Type() *Type                          { return BooleanType }
func (f *AtomicFormula) Subterms() []Term                     { return []Term{f.term} }
func (f *AtomicFormula) String() string                       { return f.term.String() }
func (f *AtomicFormula) termKey() string                      { return "A" + f.term.termKey() }
func (f *AtomicFormula) PropCNF() CNF                         { return CNF{{f}} }
func (f *AtomicFormula) PropDNF() DNF                         { return DNF{{f}} }
func (f *AtomicFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	return notExplicit(ctx, lv)
}

// EqualityFormula holds when two terms have equal values.
type EqualityFormula struct {
	left, right Term
}

// Equals creates left == right.
func Equals(left, right Term) *EqualityFormula {
	return &EqualityFormula{left: left, right: right}
}

// Left returns the left operand.
func (f *EqualityFormula) Left() Term { return f.left }

// Right returns the right operand.
func (f *EqualityFormula) Right() Term { return f.right }

// IsTrue implements Formula.
func (f *EqualityFormula) IsTrue(ctx EvalContext) (bool, bool) {
	l, ok := f.left.Evaluate(ctx)
	if !ok {
		return false, false
	}
	r, ok := f.right.Evaluate(ctx)
	if !ok {
		return false, false
	}
	return ValuesEqual(l, r), true
}

// SatisfiersIfExplicit implements Formula: lv == t pins lv to t's value
// when t does not mention lv.
func (f *EqualityFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	var other Term
	if v, ok := f.left.(*LogicalVarTerm); ok && v.lv == lv && !mentions(f.right, lv) {
		other = f.right
	} else if v, ok := f.right.(*LogicalVarTerm); ok && v.lv == lv && !mentions(f.left, lv) {
		other = f.left
	}
	if other == nil {
		return nil, true
	}
	val, ok := other.Evaluate(ctx)
	if !ok {
		return nil, false
	}
	if IsNull(val) {
		return EmptySet, true
	}
	return NewExplicitSet([]any{val}), true
}

func (f *EqualityFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *EqualityFormula) Type() *Type                          { return BooleanType }
func (f *EqualityFormula) Subterms() []Term                     { return []Term{f.left, f.right} }
func (f *EqualityFormula) String() string                       { return f.left.String() + " == " + f.right.String() }
func (f *EqualityFormula) PropCNF() CNF                         { return CNF{{f}} }
func (f *EqualityFormula) PropDNF() DNF                         { return DNF{{f}} }
func (f *EqualityFormula) termKey() string {
	return "(" + f.left.termKey() + "=" + f.right.termKey() + ")"
}

// -----------------------------------------------------------------------------
// Connectives
// -----------------------------------------------------------------------------

// ConjFormula holds when every conjunct holds.
type ConjFormula struct {
	conjuncts []Formula
}

// And creates a conjunction.
func And(fs ...Formula) *ConjFormula { return &ConjFormula{conjuncts: fs} }

// Conjuncts returns the operands.
func (f *ConjFormula) Conjuncts() []Formula { return append([]Formula(nil), f.conjuncts...) }

// IsTrue implements Formula.
func (f *ConjFormula) IsTrue(ctx EvalContext) (bool, bool) {
	for _, c := range f.conjuncts {
		b, ok := c.IsTrue(ctx)
		if !ok {
			return false, false
		}
		if !b {
			return false, true
		}
	}
	return true, true
}

// SatisfiersIfExplicit implements Formula: the first conjunct that pins lv
// bounds the whole conjunction.
func (f *ConjFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	for _, c := range f.conjuncts {
		s, ok := c.SatisfiersIfExplicit(ctx, lv)
		if !ok || s != nil {
			return s, ok
		}
	}
	return nil, true
}

func (f *ConjFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *ConjFormula) Type() *Type                          { return BooleanType }
func (f *ConjFormula) Subterms() []Term                     { return formulasAsTerms(f.conjuncts) }
func (f *ConjFormula) String() string                       { return "(" + joinTerms(f.conjuncts, " & ", Term.String) + ")" }
func (f *ConjFormula) termKey() string                      { return "&(" + joinTerms(f.conjuncts, ",", TermKey) + ")" }
func (f *ConjFormula) PropCNF() CNF                         { return toCNF(nnf(f, false)) }
func (f *ConjFormula) PropDNF() DNF                         { return toDNF(nnf(f, false)) }

// DisjFormula holds when some disjunct holds.
type DisjFormula struct {
	disjuncts []Formula
}

// Or creates a disjunction.
func Or(fs ...Formula) *DisjFormula { return &DisjFormula{disjuncts: fs} }

// Disjuncts returns the operands.
func (f *DisjFormula) Disjuncts() []Formula { return append([]Formula(nil), f.disjuncts...) }

// IsTrue implements Formula.
func (f *DisjFormula) IsTrue(ctx EvalContext) (bool, bool) {
	for _, d := range f.disjuncts {
		b, ok := d.IsTrue(ctx)
		if !ok {
			return false, false
		}
		if b {
			return true, true
		}
	}
	return false, true
}

// SatisfiersIfExplicit implements Formula: the union of the disjuncts'
// explicit sets, if every disjunct has one.
func (f *DisjFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	var all []any
	for _, d := range f.disjuncts {
		s, ok := d.SatisfiersIfExplicit(ctx, lv)
		if !ok || s == nil {
			return nil, ok
		}
		all = append(all, s.Elements()...)
	}
	return NewExplicitSet(all), true
}

func (f *DisjFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *DisjFormula) Type() *Type                          { return BooleanType }
func (f *DisjFormula) Subterms() []Term                     { return formulasAsTerms(f.disjuncts) }
func (f *DisjFormula) String() string                       { return "(" + joinTerms(f.disjuncts, " | ", Term.String) + ")" }
func (f *DisjFormula) termKey() string                      { return "|(" + joinTerms(f.disjuncts, ",", TermKey) + ")" }
func (f *DisjFormula) PropCNF() CNF                         { return toCNF(nnf(f, false)) }
func (f *DisjFormula) PropDNF() DNF                         { return toDNF(nnf(f, false)) }

// NegFormula holds when its operand does not.
type NegFormula struct {
	neg Formula
}

// Not creates a negation.
func Not(f Formula) *NegFormula { return &NegFormula{neg: f} }

// Neg returns the negated formula.
func (f *NegFormula) Neg() Formula { return f.neg }

// IsTrue implements Formula.
func (f *NegFormula) IsTrue(ctx EvalContext) (bool, bool) {
	b, ok := f.neg.IsTrue(ctx)
	return !b, ok
}

func (f *NegFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *NegFormula) Type() *Type                          { return BooleanType }
func (f *NegFormula) Subterms() []Term                     { return []Term{f.neg} }
func (f *NegFormula) String() string                       { return "!" + f.neg.String() }
func (f *NegFormula) termKey() string                      { return "!" + f.neg.termKey() }
func (f *NegFormula) PropCNF() CNF                         { return toCNF(nnf(f, false)) }
func (f *NegFormula) PropDNF() DNF                         { return toDNF(nnf(f, false)) }
func (f *NegFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	return notExplicit(ctx, lv)
}

// ImplicFormula holds unless the antecedent holds and the consequent
// does not.
type ImplicFormula struct {
	ante, cons Formula
}

// Implies creates ante -> cons.
func Implies(ante, cons Formula) *ImplicFormula {
	return &ImplicFormula{ante: ante, cons: cons}
}

// IsTrue implements Formula.
func (f *ImplicFormula) IsTrue(ctx EvalContext) (bool, bool) {
	a, ok := f.ante.IsTrue(ctx)
	if !ok {
		return false, false
	}
	if !a {
		return true, true
	}
	return f.cons.IsTrue(ctx)
}

func (f *ImplicFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *ImplicFormula) Type() *Type                          { return BooleanType }
func (f *ImplicFormula) Subterms() []Term                     { return []Term{f.ante, f.cons} }
func (f *ImplicFormula) String() string                       { return "(" + f.ante.String() + " -> " + f.cons.String() + ")" }
func (f *ImplicFormula) termKey() string                      { return "->(" + f.ante.termKey() + "," + f.cons.termKey() + ")" }
func (f *ImplicFormula) PropCNF() CNF                         { return toCNF(nnf(f, false)) }
func (f *ImplicFormula) PropDNF() DNF                         { return toDNF(nnf(f, false)) }
func (f *ImplicFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	return notExplicit(ctx, lv)
}

// -----------------------------------------------------------------------------
// Quantifiers
// -----------------------------------------------------------------------------

// ExistentialFormula holds when the body holds for some member of the
// variable's type.
type ExistentialFormula struct {
	lv   *LogicalVar
	body Formula
}

// Exists creates "exists lv body".
func Exists(lv *LogicalVar, body Formula) *ExistentialFormula {
	return &ExistentialFormula{lv: lv, body: body}
}

// LogicalVar returns the quantified variable.
func (f *ExistentialFormula) LogicalVar() *LogicalVar { return f.lv }

// IsTrue implements Formula.
func (f *ExistentialFormula) IsTrue(ctx EvalContext) (bool, bool) {
	candidates, ok := candidateObjects(ctx, f.lv, f.body)
	if !ok {
		return false, false
	}
	for _, c := range candidates {
		ctx.Assign(f.lv, c)
		b, ok := f.body.IsTrue(ctx)
		ctx.Unassign(f.lv)
		if !ok {
			return false, false
		}
		if b {
			return true, true
		}
	}
	return false, true
}

func (f *ExistentialFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *ExistentialFormula) Type() *Type                          { return BooleanType }
func (f *ExistentialFormula) Subterms() []Term                     { return []Term{f.body} }
func (f *ExistentialFormula) String() string {
	return "exists " + f.lv.typ.name + " " + f.lv.name + " " + f.body.String()
}
func (f *ExistentialFormula) termKey() string {
	return "E" + (&LogicalVarTerm{lv: f.lv}).termKey() + f.body.termKey()
}
func (f *ExistentialFormula) PropCNF() CNF { return CNF{{f}} }
func (f *ExistentialFormula) PropDNF() DNF { return DNF{{f}} }
func (f *ExistentialFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	return notExplicit(ctx, lv)
}

// UniversalFormula holds when the body holds for every member of the
// variable's type.
type UniversalFormula struct {
	lv   *LogicalVar
	body Formula
}

// ForAll creates "forall lv body".
func ForAll(lv *LogicalVar, body Formula) *UniversalFormula {
	return &UniversalFormula{lv: lv, body: body}
}

// LogicalVar returns the quantified variable.
func (f *UniversalFormula) LogicalVar() *LogicalVar { return f.lv }

// IsTrue implements Formula.
func (f *UniversalFormula) IsTrue(ctx EvalContext) (bool, bool) {
	objs, ok := ObjectsOfType(ctx, f.lv.typ)
	if !ok {
		return false, false
	}
	for _, o := range objs {
		ctx.Assign(f.lv, o)
		b, ok := f.body.IsTrue(ctx)
		ctx.Unassign(f.lv)
		if !ok {
			return false, false
		}
		if !b {
			return false, true
		}
	}
	return true, true
}

func (f *UniversalFormula) Evaluate(ctx EvalContext) (any, bool) { return evalFormula(f, ctx) }
func (f *UniversalFormula) Type() *Type                          { return BooleanType }
func (f *UniversalFormula) Subterms() []Term                     { return []Term{f.body} }
func (f *UniversalFormula) String() string {
	return "forall " + f.lv.typ.name + " " + f.lv.name + " " + f.body.String()
}
func (f *UniversalFormula) termKey() string {
	return "A" + (&LogicalVarTerm{lv: f.lv}).termKey() + f.body.termKey()
}
func (f *UniversalFormula) PropCNF() CNF { return CNF{{f}} }
func (f *UniversalFormula) PropDNF() DNF { return DNF{{f}} }
func (f *UniversalFormula) SatisfiersIfExplicit(ctx EvalContext, lv *LogicalVar) (ObjectSet, bool) {
	return notExplicit(ctx, lv)
}

// -----------------------------------------------------------------------------
// Normal forms
// -----------------------------------------------------------------------------

// nnf pushes negations down to literals and removes implications.
func nnf(f Formula, negate bool) Formula {
	switch g := f.(type) {
	case *ConjFormula:
		parts := make([]Formula, len(g.conjuncts))
		for i, c := range g.conjuncts {
			parts[i] = nnf(c, negate)
		}
		if negate {
			return Or(parts...)
		}
		return And(parts...)
	case *DisjFormula:
		parts := make([]Formula, len(g.disjuncts))
		for i, d := range g.disjuncts {
			parts[i] = nnf(d, negate)
		}
		if negate {
			return And(parts...)
		}
		return Or(parts...)
	case *NegFormula:
		return nnf(g.neg, !negate)
	case *ImplicFormula:
		return nnf(Or(Not(g.ante), g.cons), negate)
	}
	if negate {
		return Not(f)
	}
	return f
}

// toCNF converts a formula in negation normal form.
func toCNF(f Formula) CNF {
	switch g := f.(type) {
	case *ConjFormula:
		var out CNF
		for _, c := range g.conjuncts {
			out = append(out, toCNF(c)...)
		}
		return out
	case *DisjFormula:
		out := CNF{{}}
		for _, d := range g.disjuncts {
			out = CNF(crossClauses(out, toCNF(d)))
		}
		return out
	}
	return CNF{{f}}
}

// toDNF converts a formula in negation normal form.
func toDNF(f Formula) DNF {
	switch g := f.(type) {
	case *DisjFormula:
		var out DNF
		for _, d := range g.disjuncts {
			out = append(out, toDNF(d)...)
		}
		return out
	case *ConjFormula:
		out := DNF{{}}
		for _, c := range g.conjuncts {
			out = DNF(crossClauses(out, toDNF(c)))
		}
		return out
	}
	return DNF{{f}}
}

// crossClauses unions every clause of a with every clause of b.
func crossClauses(a, b [][]Formula) [][]Formula {
	out := make([][]Formula, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			merged := make([]Formula, 0, len(x)+len(y))
			merged = append(merged, x...)
			merged = append(merged, y...)
			out = append(out, merged)
		}
	}
	return out
}

func formulasAsTerms(fs []Formula) []Term {
	out := make([]Term, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

// String renders a normal form for diagnostics.
func (c CNF) String() string { return renderClauses(c, " | ", " & ") }

// String renders a normal form for diagnostics.
func (d DNF) String() string { return renderClauses(d, " & ", " | ") }

func renderClauses(clauses [][]Formula, inner, outer string) string {
	parts := make([]string, len(clauses))
	for i, cl := range clauses {
		parts[i] = "(" + joinTerms(cl, inner, Term.String) + ")"
	}
	return strings.Join(parts, outer)
}
