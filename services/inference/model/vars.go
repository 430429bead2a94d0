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
	"cmp"
	"strconv"
	"strings"
)

// Var is a random variable: basic or derived.
type Var interface {
	// Key is the canonical identity of the variable. Two variables denote
	// the same random variable exactly when their keys are equal.
	Key() string

	// Type is the type of the variable's values.
	Type() *Type

	String() string
}

// BasicVar is a variable whose value is stored directly in a world.
//
// Description:
//
//	The implementations are *RandFuncAppVar and *NumberVar. Argument
//	tuples are copied on construction and never exposed mutably, so a
//	BasicVar is safe to use as a key for as long as it lives.
type BasicVar interface {
	Var

	// Distrib evaluates the governing dependency model in ctx. It returns
	// false when ctx cannot determine the distribution.
	Distrib(ctx EvalContext) (Distrib, bool)

	// OrderingIndex is the creation index of the governing function or POP.
	OrderingIndex() int

	// Args returns a copy of the argument tuple (generating objects for a
	// number variable).
	Args() []any

	basic()
}

// -----------------------------------------------------------------------------
// RandFuncAppVar
// -----------------------------------------------------------------------------

// RandFuncAppVar is the application of a random function to concrete
// arguments.
type RandFuncAppVar struct {
	fn   *Function
	args []any
	key  string
}

// NewRandFuncAppVar creates the variable f(args...).
func NewRandFuncAppVar(f *Function, args ...any) *RandFuncAppVar {
	cp := append([]any(nil), args...)
	var b strings.Builder
	b.WriteString("f")
	b.WriteString(strconv.Itoa(f.index))
	b.WriteString("(")
	writeTupleKey(&b, cp)
	b.WriteString(")")
	return &RandFuncAppVar{fn: f, args: cp, key: b.String()}
}

// Func returns the applied function.
func (v *RandFuncAppVar) Func() *Function { return v.fn }

// Arg returns the i-th argument.
func (v *RandFuncAppVar) Arg(i int) any { return v.args[i] }

// Key implements Var.
func (v *RandFuncAppVar) Key() string { return v.key }

// Type implements Var.
func (v *RandFuncAppVar) Type() *Type { return v.fn.ret }

// Args implements BasicVar.
func (v *RandFuncAppVar) Args() []any { return append([]any(nil), v.args...) }

// OrderingIndex implements BasicVar.
func (v *RandFuncAppVar) OrderingIndex() int { return v.fn.index }

// Distrib implements BasicVar.
func (v *RandFuncAppVar) Distrib(ctx EvalContext) (Distrib, bool) {
	if v.fn.kind == DecisionFunc {
		return Distrib{CPD: decisionCPD{def: DefaultValue(v.fn.ret)}}, true
	}
	return v.fn.dep.Distrib(ctx, v.fn.argVars, v.args)
}

// String implements fmt.Stringer.
func (v *RandFuncAppVar) String() string {
	if len(v.args) == 0 {
		return v.fn.name
	}
	parts := make([]string, len(v.args))
	for i, a := range v.args {
		parts[i] = ValueString(a)
	}
	return v.fn.name + "(" + strings.Join(parts, ", ") + ")"
}

func (*RandFuncAppVar) basic() {}

// -----------------------------------------------------------------------------
// NumberVar
// -----------------------------------------------------------------------------

// NumberVar is the number of objects a POP generates for a tuple of
// generating objects.
type NumberVar struct {
	pop     *POP
	genObjs []any
	key     string
}

// NewNumberVar creates the variable #pop(genObjs...).
func NewNumberVar(pop *POP, genObjs ...any) *NumberVar {
	cp := append([]any(nil), genObjs...)
	var b strings.Builder
	b.WriteString("#")
	b.WriteString(strconv.Itoa(pop.index))
	b.WriteString("(")
	writeTupleKey(&b, cp)
	b.WriteString(")")
	return &NumberVar{pop: pop, genObjs: cp, key: b.String()}
}

// POP returns the potential object pattern.
func (v *NumberVar) POP() *POP { return v.pop }

// GenObjs returns a copy of the generating objects.
func (v *NumberVar) GenObjs() []any { return append([]any(nil), v.genObjs...) }

// OriginFuncValue returns the generating object bound to f, or Null.
func (v *NumberVar) OriginFuncValue(f *Function) any {
	i := v.pop.OriginFuncIndex(f)
	if i < 0 {
		return Null
	}
	return v.genObjs[i]
}

// Key implements Var.
func (v *NumberVar) Key() string { return v.key }

// Type implements Var.
func (v *NumberVar) Type() *Type { return NaturalType }

// Args implements BasicVar.
func (v *NumberVar) Args() []any { return v.GenObjs() }

// OrderingIndex implements BasicVar.
func (v *NumberVar) OrderingIndex() int { return v.pop.index }

// Distrib implements BasicVar.
func (v *NumberVar) Distrib(ctx EvalContext) (Distrib, bool) {
	return v.pop.dep.Distrib(ctx, v.pop.argVars, v.genObjs)
}

// String implements fmt.Stringer.
func (v *NumberVar) String() string {
	if len(v.genObjs) == 0 {
		return "#" + v.pop.typ.name
	}
	parts := make([]string, len(v.genObjs))
	for i, g := range v.genObjs {
		parts[i] = v.pop.originFuncs[i].name + "=" + ValueString(g)
	}
	return "#" + v.pop.typ.name + "(" + strings.Join(parts, ", ") + ")"
}

func (*NumberVar) basic() {}

// -----------------------------------------------------------------------------
// Ordering
// -----------------------------------------------------------------------------

// Compare orders basic variables by ordering index, then by argument tuple.
// The order is total and independent of any world.
func Compare(a, b BasicVar) int {
	if c := cmp.Compare(a.OrderingIndex(), b.OrderingIndex()); c != 0 {
		return c
	}
	_, an := a.(*NumberVar)
	_, bn := b.(*NumberVar)
	if an != bn {
		if an {
			return 1
		}
		return -1
	}
	return CompareTuples(a.Args(), b.Args())
}

// VarTimestep returns the timestep of a temporal variable: its last Timestep
// argument. The second result is false for atemporal variables.
func VarTimestep(v BasicVar) (Timestep, bool) {
	args := v.Args()
	for i := len(args) - 1; i >= 0; i-- {
		if ts, ok := args[i].(Timestep); ok {
			return ts, true
		}
	}
	return 0, false
}
