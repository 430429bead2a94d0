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
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
)

// Model is a collection of declarations plus the per-model runtime state
// shared by every world over it: the non-guaranteed object cache and the
// identifier counter.
type Model struct {
	types     []*Type
	typeByKey map[string]*Type
	funcs     []*Function
	funcByKey map[string]*Function
	pops      []*POP

	nextIndex int
	nextID    atomic.Int64
	objects   *ngoCache

	compiled bool
	errs     []error
}

// New creates an empty model with the built-in non-random functions
// declared.
func New() *Model {
	m := &Model{
		typeByKey: make(map[string]*Type),
		funcByKey: make(map[string]*Function),
		objects:   newNGOCache(),
	}
	for _, t := range []*Type{BooleanType, IntegerType, NaturalType, RealType, StringType, TimestepType} {
		m.typeByKey[t.name] = t
	}
	m.declareBuiltins()
	return m
}

func (m *Model) recordErr(format string, args ...any) {
	m.errs = append(m.errs, fmt.Errorf("%w: "+format, append([]any{ErrModel}, args...)...))
}

func (m *Model) takeIndex() int {
	i := m.nextIndex
	m.nextIndex++
	return i
}

// -----------------------------------------------------------------------------
// Declarations
// -----------------------------------------------------------------------------

// NewType declares a user type.
func (m *Model) NewType(name string) *Type {
	return m.NewSubtype(name, nil)
}

// NewSubtype declares a user type below super.
func (m *Model) NewSubtype(name string, super *Type) *Type {
	t := &Type{name: name, super: super, index: m.takeIndex(), enumerable: true}
	if _, dup := m.typeByKey[name]; dup {
		m.recordErr("duplicate type %q", name)
	}
	if super != nil {
		super.subtypes = append(super.subtypes, t)
	}
	m.types = append(m.types, t)
	m.typeByKey[name] = t
	return t
}

// AddGuaranteedObjects declares guaranteed objects of t in order.
func (m *Model) AddGuaranteedObjects(t *Type, names ...string) []*GuaranteedObject {
	out := make([]*GuaranteedObject, 0, len(names))
	for _, name := range names {
		if _, dup := t.GuaranteedObject(name); dup {
			m.recordErr("duplicate guaranteed object %s.%s", t.name, name)
		}
		o := &GuaranteedObject{
			typ:   t,
			name:  name,
			index: len(t.guaranteed),
			key:   "g" + strconv.Itoa(t.index) + "." + strconv.Itoa(len(t.guaranteed)),
		}
		t.guaranteed = append(t.guaranteed, o)
		out = append(out, o)
	}
	return out
}

func (m *Model) addFunc(f *Function) *Function {
	if _, dup := m.funcByKey[f.name]; dup {
		m.recordErr("duplicate function %q", f.name)
	}
	f.index = m.takeIndex()
	m.funcs = append(m.funcs, f)
	m.funcByKey[f.name] = f
	return f
}

// NewRandomFunction declares a random function. Attach its dependency
// model with SetDependency before compiling.
func (m *Model) NewRandomFunction(name string, ret *Type, args ...*LogicalVar) *Function {
	return m.addFunc(&Function{name: name, kind: RandomFunc, ret: ret, argVars: args})
}

// NewDecisionFunction declares a function whose values come only from
// decision evidence.
func (m *Model) NewDecisionFunction(name string, ret *Type, args ...*LogicalVar) *Function {
	return m.addFunc(&Function{name: name, kind: DecisionFunc, ret: ret, argVars: args})
}

// NewNonRandomFunction declares a function with a fixed interpretation.
func (m *Model) NewNonRandomFunction(name string, ret *Type, interp func(args []any) any, argTypes ...*Type) *Function {
	args := make([]*LogicalVar, len(argTypes))
	for i, t := range argTypes {
		args[i] = NewLogicalVar("x"+strconv.Itoa(i), t)
	}
	return m.addFunc(&Function{name: name, kind: NonRandomFunc, ret: ret, argVars: args, interp: interp})
}

// NewOriginFunction declares an origin function mapping objects of type
// generated to their generating object of type generating.
func (m *Model) NewOriginFunction(name string, generated, generating *Type) *Function {
	lv := NewLogicalVar("x", generated)
	return m.addFunc(&Function{
		name:      name,
		kind:      OriginFunc,
		ret:       generating,
		argVars:   []*LogicalVar{lv},
		generated: generated,
	})
}

// NewPOP declares a potential object pattern generating objects of t.
// Attach the number statement with SetNumberStatement; its terms refer to
// the generating objects through POP.ArgVars, one per origin function.
func (m *Model) NewPOP(t *Type, originFuncs ...*Function) *POP {
	p := &POP{typ: t, originFuncs: originFuncs, index: m.takeIndex()}
	for _, f := range originFuncs {
		if f.kind != OriginFunc || f.generated != t {
			m.recordErr("%s is not an origin function of %s", f.name, t.name)
		}
		p.argVars = append(p.argVars, NewLogicalVar(f.name, f.ret))
	}
	t.pops = append(t.pops, p)
	m.pops = append(m.pops, p)
	return p
}

// SetNumberStatement attaches the dependency model of a POP. When no
// clause applies the POP generates no objects.
func (p *POP) SetNumberStatement(dm *DependencyModel) {
	dm.defaultValue = 0
	p.dep = dm
}

// -----------------------------------------------------------------------------
// Lookup
// -----------------------------------------------------------------------------

// Type returns the type with the given name.
func (m *Model) Type(name string) (*Type, bool) {
	t, ok := m.typeByKey[name]
	return t, ok
}

// Function returns the function with the given name.
func (m *Model) Function(name string) (*Function, bool) {
	f, ok := m.funcByKey[name]
	return f, ok
}

// MustFunction returns the named function or panics. Intended for model
// construction code where the name is a literal.
func (m *Model) MustFunction(name string) *Function {
	f, ok := m.funcByKey[name]
	if !ok {
		panic(fmt.Sprintf("model: no function %q", name))
	}
	return f
}

// Types returns the user types in declaration order.
func (m *Model) Types() []*Type { return append([]*Type(nil), m.types...) }

// Functions returns all functions in declaration order.
func (m *Model) Functions() []*Function { return append([]*Function(nil), m.funcs...) }

// POPs returns all POPs in declaration order.
func (m *Model) POPs() []*POP { return append([]*POP(nil), m.pops...) }

// IsCompiled reports whether Compile succeeded.
func (m *Model) IsCompiled() bool { return m.compiled }

// -----------------------------------------------------------------------------
// Runtime state
// -----------------------------------------------------------------------------

// NonGuaranteed returns the canonical non-guaranteed object for the triple.
//
// Description:
//
//	Repeated calls with equal arguments return the same pointer while the
//	object is reachable. Once collected, a later call creates a fresh but
//	value-identical object.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (m *Model) NonGuaranteed(pop *POP, genObjs []any, index int) *NonGuaranteedObject {
	key := ngoKey(pop, genObjs, index)
	return m.objects.lookup(key, func() *NonGuaranteedObject {
		depth := 0
		for _, g := range genObjs {
			depth = max(depth, objectDepth(g))
		}
		return &NonGuaranteedObject{
			pop:     pop,
			genObjs: append([]any(nil), genObjs...),
			index:   index,
			depth:   depth,
			key:     key,
		}
	})
}

// ObjectCacheSize returns the number of cache entries, an upper bound on
// the live non-guaranteed objects.
func (m *Model) ObjectCacheSize() int { return m.objects.size() }

// PurgeObjectCache drops cache entries whose objects were collected.
func (m *Model) PurgeObjectCache() { m.objects.purge() }

// NewIdentifier returns a fresh identifier of type t.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (m *Model) NewIdentifier(t *Type) *ObjectIdentifier {
	return &ObjectIdentifier{typ: t, id: m.nextID.Add(1)}
}

// FuncAppVar returns the variable f(args...).
func (m *Model) FuncAppVar(f *Function, args ...any) *RandFuncAppVar {
	return NewRandFuncAppVar(f, args...)
}

// NumberVar returns the variable #pop(genObjs...).
func (m *Model) NumberVar(pop *POP, genObjs ...any) *NumberVar {
	return NewNumberVar(pop, genObjs...)
}

// -----------------------------------------------------------------------------
// Compilation
// -----------------------------------------------------------------------------

// Compile checks the model and freezes it for inference.
//
// Description:
//
//	Reports every problem found, joined, each wrapping ErrModel:
//	declaration errors recorded while building, random functions or POPs
//	without dependency models, two POPs of one type with the same set of
//	origin functions, cyclic generation among types, and quantifiers or
//	set specifications over non-enumerable types.
//
// Outputs:
//
//	error - Nil if the model is well formed.
func (m *Model) Compile() error {
	errs := append([]error(nil), m.errs...)

	for _, f := range m.funcs {
		if f.kind == RandomFunc && f.dep == nil {
			errs = append(errs, fmt.Errorf("%w: random function %s has no dependency model", ErrModel, f.name))
		}
		if f.dep != nil {
			errs = append(errs, m.checkDependency(f.name, f.dep)...)
		}
	}
	for _, p := range m.pops {
		if p.dep == nil {
			errs = append(errs, fmt.Errorf("%w: %s has no number statement", ErrModel, p))
			continue
		}
		errs = append(errs, m.checkDependency(p.String(), p.dep)...)
	}
	errs = append(errs, m.checkOriginSets()...)
	errs = append(errs, m.checkGenerationCycles()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.compiled = true
	return nil
}

func (m *Model) checkDependency(owner string, dm *DependencyModel) []error {
	var errs []error
	for _, c := range dm.clauses {
		if c.CPD == nil {
			errs = append(errs, fmt.Errorf("%w: %s has a clause without a distribution", ErrModel, owner))
		}
		if c.Cond != nil {
			if err := CheckTerm(c.Cond); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", owner, err))
			}
		}
		for _, a := range c.Args {
			if err := CheckTerm(a); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", owner, err))
			}
		}
	}
	return errs
}

// CheckTerm reports quantification over non-enumerable types in t.
func CheckTerm(t Term) error {
	var bad *LogicalVar
	Walk(t, func(s Term) bool {
		var lvs []*LogicalVar
		switch q := s.(type) {
		case *ExistentialFormula:
			lvs = []*LogicalVar{q.lv}
		case *UniversalFormula:
			lvs = []*LogicalVar{q.lv}
		case *ImplicitSetSpec:
			lvs = []*LogicalVar{q.lv}
		case *TupleSetSpec:
			lvs = q.vars
		}
		for _, lv := range lvs {
			if !lv.typ.enumerable {
				bad = lv
				return false
			}
		}
		return true
	})
	if bad != nil {
		return fmt.Errorf("%w: cannot quantify %s over non-enumerable type %s", ErrModel, bad.name, bad.typ.name)
	}
	return nil
}

func (m *Model) checkOriginSets() []error {
	var errs []error
	for _, t := range m.types {
		seen := make(map[string]*POP)
		for _, p := range t.pops {
			names := make([]string, len(p.originFuncs))
			for i, f := range p.originFuncs {
				names[i] = f.name
			}
			slices.Sort(names)
			key := strings.Join(names, ",")
			if prev, dup := seen[key]; dup {
				errs = append(errs, fmt.Errorf("%w: %s and %s use the same origin functions", ErrModel, prev, p))
				continue
			}
			seen[key] = p
		}
	}
	return errs
}

// checkGenerationCycles rejects types that (transitively) generate
// themselves, which would make their members non-enumerable.
func (m *Model) checkGenerationCycles() []error {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[*Type]int)
	var errs []error
	var visit func(t *Type) bool
	visit = func(t *Type) bool {
		switch state[t] {
		case active:
			return false
		case done:
			return true
		}
		state[t] = active
		for _, p := range t.pops {
			for _, f := range p.originFuncs {
				if !visit(f.ret) {
					return false
				}
			}
		}
		state[t] = done
		return true
	}
	for _, t := range m.types {
		if state[t] == unvisited && !visit(t) {
			errs = append(errs, fmt.Errorf("%w: cyclic object generation through type %s", ErrModel, t.name))
		}
	}
	return errs
}

// -----------------------------------------------------------------------------
// Built-in functions
// -----------------------------------------------------------------------------

// Names of the built-in non-random functions.
const (
	BuiltinPrev        = "Prev"
	BuiltinNext        = "Next"
	BuiltinPlus        = "Plus"
	BuiltinMinus       = "Minus"
	BuiltinLessThan    = "LessThan"
	BuiltinGreaterThan = "GreaterThan"
	BuiltinIsNull      = "IsNull"
)

func (m *Model) declareBuiltins() {
	m.NewNonRandomFunction(BuiltinPrev, TimestepType, func(a []any) any {
		ts, ok := a[0].(Timestep)
		if !ok || ts <= 0 {
			return Null
		}
		return ts - 1
	}, TimestepType)
	m.NewNonRandomFunction(BuiltinNext, TimestepType, func(a []any) any {
		ts, ok := a[0].(Timestep)
		if !ok {
			return Null
		}
		return ts + 1
	}, TimestepType)
	m.NewNonRandomFunction(BuiltinPlus, IntegerType, func(a []any) any {
		x, ok1 := a[0].(int)
		y, ok2 := a[1].(int)
		if !ok1 || !ok2 {
			return Null
		}
		return x + y
	}, IntegerType, IntegerType)
	m.NewNonRandomFunction(BuiltinMinus, IntegerType, func(a []any) any {
		x, ok1 := a[0].(int)
		y, ok2 := a[1].(int)
		if !ok1 || !ok2 {
			return Null
		}
		return x - y
	}, IntegerType, IntegerType)
	m.NewNonRandomFunction(BuiltinLessThan, BooleanType, func(a []any) any {
		return CompareValues(a[0], a[1]) < 0
	}, RealType, RealType)
	m.NewNonRandomFunction(BuiltinGreaterThan, BooleanType, func(a []any) any {
		return CompareValues(a[0], a[1]) > 0
	}, RealType, RealType)
	m.NewNonRandomFunction(BuiltinIsNull, BooleanType, func(a []any) any {
		return IsNull(a[0])
	}, RealType)
}
