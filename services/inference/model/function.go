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
	"fmt"
	"sync/atomic"
)

// FuncKind classifies functions by how their values are determined.
type FuncKind int

const (
	// RandomFunc values are drawn from a dependency model.
	RandomFunc FuncKind = iota

	// NonRandomFunc values come from a fixed interpretation.
	NonRandomFunc

	// OriginFunc maps a generated object to one of its generating objects.
	OriginFunc

	// DecisionFunc values are set only by decision evidence.
	DecisionFunc
)

// String implements fmt.Stringer.
func (k FuncKind) String() string {
	switch k {
	case RandomFunc:
		return "random"
	case NonRandomFunc:
		return "nonrandom"
	case OriginFunc:
		return "origin"
	case DecisionFunc:
		return "decision"
	}
	return fmt.Sprintf("FuncKind(%d)", int(k))
}

// LogicalVar is a typed placeholder bound during evaluation: a function's
// argument variable or a quantified variable.
type LogicalVar struct {
	name string
	typ  *Type
	id   uint64
}

var logicalVarSerial atomic.Uint64

// NewLogicalVar creates a logical variable of type t.
func NewLogicalVar(name string, t *Type) *LogicalVar {
	return &LogicalVar{name: name, typ: t, id: logicalVarSerial.Add(1)}
}

// Name returns the variable's name.
func (lv *LogicalVar) Name() string { return lv.name }

// Type returns the variable's type.
func (lv *LogicalVar) Type() *Type { return lv.typ }

// String implements fmt.Stringer.
func (lv *LogicalVar) String() string { return lv.name }

// Function is a declared function symbol.
type Function struct {
	name    string
	kind    FuncKind
	argVars []*LogicalVar
	ret     *Type
	index   int

	dep    *DependencyModel
	interp func(args []any) any

	// generated is the argument type of an origin function.
	generated *Type
}

// Name returns the function's name.
func (f *Function) Name() string { return f.name }

// String implements fmt.Stringer.
func (f *Function) String() string { return f.name }

// Kind returns the function's kind.
func (f *Function) Kind() FuncKind { return f.kind }

// IsRandom reports whether values of f are random variables.
func (f *Function) IsRandom() bool {
	return f.kind == RandomFunc || f.kind == DecisionFunc
}

// RetType returns the function's return type.
func (f *Function) RetType() *Type { return f.ret }

// ArgVars returns the logical variables bound to the arguments.
func (f *Function) ArgVars() []*LogicalVar {
	return append([]*LogicalVar(nil), f.argVars...)
}

// ArgTypes returns the argument types.
func (f *Function) ArgTypes() []*Type {
	out := make([]*Type, len(f.argVars))
	for i, lv := range f.argVars {
		out[i] = lv.typ
	}
	return out
}

// Arity returns the number of arguments.
func (f *Function) Arity() int { return len(f.argVars) }

// CreationIndex returns the model-wide declaration order of f.
func (f *Function) CreationIndex() int { return f.index }

// Dependency returns the dependency model of a random function.
func (f *Function) Dependency() *DependencyModel { return f.dep }

// SetDependency attaches the dependency model of a random function.
//
// The dependency model's default value is set from the return type.
func (f *Function) SetDependency(dm *DependencyModel) {
	dm.defaultValue = DefaultValue(f.ret)
	f.dep = dm
}

// Apply evaluates a non-random function on concrete arguments.
func (f *Function) Apply(args []any) any {
	if f.interp == nil {
		return DefaultValue(f.ret)
	}
	return f.interp(args)
}

// POP is a potential object pattern: it generates objects of a type given
// a tuple of generating objects, one per origin function.
type POP struct {
	typ         *Type
	originFuncs []*Function
	argVars     []*LogicalVar
	dep         *DependencyModel
	index       int
}

// Type returns the generated type.
func (p *POP) Type() *Type { return p.typ }

// OriginFuncs returns the origin functions in declaration order.
func (p *POP) OriginFuncs() []*Function {
	return append([]*Function(nil), p.originFuncs...)
}

// ArgVars returns the logical variables bound to the generating objects
// while the number statement is evaluated.
func (p *POP) ArgVars() []*LogicalVar {
	return append([]*LogicalVar(nil), p.argVars...)
}

// Dependency returns the number statement.
func (p *POP) Dependency() *DependencyModel { return p.dep }

// CreationIndex returns the model-wide declaration order of p.
func (p *POP) CreationIndex() int { return p.index }

// OriginFuncIndex returns the position of f among the origin functions,
// or -1.
func (p *POP) OriginFuncIndex(f *Function) int {
	for i, g := range p.originFuncs {
		if g == f {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (p *POP) String() string {
	s := "#" + p.typ.name
	if len(p.originFuncs) == 0 {
		return s
	}
	s += "("
	for i, f := range p.originFuncs {
		if i > 0 {
			s += ", "
		}
		s += f.name
	}
	return s + ")"
}
