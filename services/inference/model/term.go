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
	"strconv"
	"strings"
)

// Term is an expression evaluating to a value.
//
// The set of term kinds is closed: constants, logical variables, function
// applications, cardinalities, set specifications and formulas.
type Term interface {
	// Evaluate computes the term's value. It returns false when ctx cannot
	// determine some value the term depends on.
	Evaluate(ctx EvalContext) (any, bool)

	// Type returns the type of the term's values.
	Type() *Type

	// Subterms returns the immediate subterms.
	Subterms() []Term

	String() string

	// termKey is a canonical rendering used to key derived variables.
	termKey() string
}

// TermKey returns the canonical key of a term. Structurally equal terms
// have equal keys.
func TermKey(t Term) string { return t.termKey() }

// Walk visits t and all its subterms depth-first until fn returns false.
func Walk(t Term, fn func(Term) bool) bool {
	if !fn(t) {
		return false
	}
	for _, s := range t.Subterms() {
		if !Walk(s, fn) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Constants and logical variables
// -----------------------------------------------------------------------------

// ConstTerm is a literal value.
type ConstTerm struct {
	value any
	typ   *Type
}

// Const creates a constant, inferring its type from the value.
func Const(v any) *ConstTerm {
	var t *Type
	switch o := v.(type) {
	case bool:
		t = BooleanType
	case int:
		t = IntegerType
	case float64:
		t = RealType
	case string:
		t = StringType
	case Timestep:
		t = TimestepType
	case *GuaranteedObject:
		t = o.typ
	case *NonGuaranteedObject:
		t = o.pop.typ
	case *ObjectIdentifier:
		t = o.typ
	case ObjectSet:
		t = SetType
	}
	return &ConstTerm{value: v, typ: t}
}

// ConstOf creates a constant of an explicit type, e.g. a typed null.
func ConstOf(v any, t *Type) *ConstTerm { return &ConstTerm{value: v, typ: t} }

// Value returns the literal.
func (c *ConstTerm) Value() any { return c.value }

// Evaluate implements Term.
func (c *ConstTerm) Evaluate(EvalContext) (any, bool) { return c.value, true }

// Type implements Term.
func (c *ConstTerm) Type() *Type { return c.typ }

// Subterms implements Term.
func (c *ConstTerm) Subterms() []Term { return nil }

// String implements Term.
func (c *ConstTerm) String() string { return ValueString(c.value) }

func (c *ConstTerm) termKey() string { return ValueKey(c.value) }

// LogicalVarTerm refers to a logical variable bound by the context.
type LogicalVarTerm struct {
	lv *LogicalVar
}

// VarTerm creates a reference to lv.
func VarTerm(lv *LogicalVar) *LogicalVarTerm { return &LogicalVarTerm{lv: lv} }

// LogicalVar returns the referenced variable.
func (t *LogicalVarTerm) LogicalVar() *LogicalVar { return t.lv }

// Evaluate implements Term.
func (t *LogicalVarTerm) Evaluate(ctx EvalContext) (any, bool) {
	return ctx.LogicalVarValue(t.lv)
}

// Type implements Term.
func (t *LogicalVarTerm) Type() *Type { return t.lv.typ }

// Subterms implements Term.
func (t *LogicalVarTerm) Subterms() []Term { return nil }

// String implements Term.
func (t *LogicalVarTerm) String() string { return t.lv.name }

// Logical variables are keyed by serial so that shadowed names differ.
func (t *LogicalVarTerm) termKey() string {
	return "?" + t.lv.name + "@" + strconv.FormatUint(t.lv.id, 36)
}

// -----------------------------------------------------------------------------
// Function applications
// -----------------------------------------------------------------------------

// FuncAppTerm applies a function to argument terms.
type FuncAppTerm struct {
	fn   *Function
	args []Term
}

// App creates the application fn(args...).
func App(fn *Function, args ...Term) *FuncAppTerm {
	return &FuncAppTerm{fn: fn, args: args}
}

// Func returns the applied function.
func (t *FuncAppTerm) Func() *Function { return t.fn }

// Args returns the argument terms.
func (t *FuncAppTerm) Args() []Term { return append([]Term(nil), t.args...) }

// Evaluate implements Term.
func (t *FuncAppTerm) Evaluate(ctx EvalContext) (any, bool) {
	args, ok := evalAll(ctx, t.args)
	if !ok {
		return nil, false
	}
	switch t.fn.kind {
	case NonRandomFunc:
		return t.fn.Apply(args), true
	case OriginFunc:
		switch o := args[0].(type) {
		case *NonGuaranteedObject:
			return o.OriginFuncValue(t.fn), true
		case *ObjectIdentifier:
			nv, ok := ctx.POPAppOf(o)
			if !ok {
				return nil, false
			}
			if nv == nil {
				return Null, true
			}
			return nv.OriginFuncValue(t.fn), true
		}
		return Null, true
	}
	for _, a := range args {
		if IsNull(a) {
			return DefaultValue(t.fn.ret), true
		}
	}
	return ctx.Value(NewRandFuncAppVar(t.fn, args...))
}

// BasicVar returns the random variable this application denotes in ctx.
//
// Outputs:
//
//	*RandFuncAppVar - The variable, or nil if the function is not random
//	                  or some argument is Null.
//	bool            - False if ctx could not determine the arguments.
func (t *FuncAppTerm) BasicVar(ctx EvalContext) (*RandFuncAppVar, bool) {
	args, ok := evalAll(ctx, t.args)
	if !ok {
		return nil, false
	}
	if !t.fn.IsRandom() {
		return nil, true
	}
	for _, a := range args {
		if IsNull(a) {
			return nil, true
		}
	}
	return NewRandFuncAppVar(t.fn, args...), true
}

// Type implements Term.
func (t *FuncAppTerm) Type() *Type { return t.fn.ret }

// Subterms implements Term.
func (t *FuncAppTerm) Subterms() []Term { return t.Args() }

// String implements Term.
func (t *FuncAppTerm) String() string {
	if len(t.args) == 0 {
		return t.fn.name
	}
	return t.fn.name + "(" + joinTerms(t.args, ", ", Term.String) + ")"
}

func (t *FuncAppTerm) termKey() string {
	return "f" + strconv.Itoa(t.fn.index) + "(" + joinTerms(t.args, ",", TermKey) + ")"
}

// -----------------------------------------------------------------------------
// Cardinality
// -----------------------------------------------------------------------------

// CardinalityTerm is the size of a set-valued term.
type CardinalityTerm struct {
	set Term
}

// Card creates #set.
func Card(set Term) *CardinalityTerm { return &CardinalityTerm{set: set} }

// Set returns the set term.
func (t *CardinalityTerm) Set() Term { return t.set }

// Evaluate implements Term.
func (t *CardinalityTerm) Evaluate(ctx EvalContext) (any, bool) {
	v, ok := t.set.Evaluate(ctx)
	if !ok {
		return nil, false
	}
	s, isSet := v.(ObjectSet)
	if !isSet {
		return 0, true
	}
	return s.Size(), true
}

// Type implements Term.
func (t *CardinalityTerm) Type() *Type { return NaturalType }

// Subterms implements Term.
func (t *CardinalityTerm) Subterms() []Term { return []Term{t.set} }

// String implements Term.
func (t *CardinalityTerm) String() string { return "#" + t.set.String() }

func (t *CardinalityTerm) termKey() string { return "#" + t.set.termKey() }

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func evalAll(ctx EvalContext, terms []Term) ([]any, bool) {
	vals := make([]any, len(terms))
	for i, t := range terms {
		v, ok := t.Evaluate(ctx)
		if !ok {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

func joinTerms[T Term](terms []T, sep string, render func(Term) string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = render(t)
	}
	return strings.Join(parts, sep)
}
