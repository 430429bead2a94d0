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
	"fmt"
	"strings"

	"github.com/AleutianAI/openworld/services/inference/distrib"
	"github.com/AleutianAI/openworld/services/inference/model"
)

// -----------------------------------------------------------------------------
// ValueStatement
// -----------------------------------------------------------------------------

// ValueStatement asserts that a term takes an observed value:
// lhs = rhs, where rhs involves no random variables.
type ValueStatement struct {
	lhs      model.Term
	rhs      model.Term
	observed any
	dv       *model.DerivedVar
	compiled bool
}

// NewValueStatement creates the statement lhs = rhs.
func NewValueStatement(lhs, rhs model.Term) *ValueStatement {
	return &ValueStatement{lhs: lhs, rhs: rhs}
}

func (s *ValueStatement) compile(m *model.Model) error {
	if s.compiled {
		return nil
	}
	if err := model.CheckTerm(s.lhs); err != nil {
		return fmt.Errorf("evidence %s: %w", s, err)
	}
	v, ok := s.rhs.Evaluate(model.NewStaticContext(m))
	if !ok {
		return fmt.Errorf("%w: evidence %s: observed value is not a constant", model.ErrModel, s)
	}
	s.observed = v
	s.dv = model.NewDerivedVar(model.Equals(s.lhs, model.ConstOf(v, s.lhs.Type())))
	s.compiled = true
	return nil
}

// LeftSide returns the observed term.
func (s *ValueStatement) LeftSide() model.Term { return s.lhs }

// ObservedValue returns the value of the right-hand side. Valid after
// compilation.
func (s *ValueStatement) ObservedValue() any { return s.observed }

// DerivedVar returns the Boolean derived variable that is true exactly
// when the statement holds. Valid after compilation.
func (s *ValueStatement) DerivedVar() *model.DerivedVar { return s.dv }

// ObservedVar returns the basic variable the left side denotes in ctx.
//
// Outputs:
//
//	model.BasicVar - The variable, or nil if the left side is not an
//	                 application of a random function to non-null
//	                 arguments.
//	bool           - False if ctx could not determine the arguments.
func (s *ValueStatement) ObservedVar(ctx model.EvalContext) (model.BasicVar, bool) {
	app, ok := s.lhs.(*model.FuncAppTerm)
	if !ok {
		return nil, true
	}
	v, ok := app.BasicVar(ctx)
	if !ok {
		return nil, false
	}
	if v == nil {
		return nil, true
	}
	return v, true
}

// IsTrue reports whether the statement holds in ctx.
func (s *ValueStatement) IsTrue(ctx model.EvalContext) (bool, bool) {
	v, ok := s.lhs.Evaluate(ctx)
	if !ok {
		return false, false
	}
	return model.ValuesEqual(v, s.observed), true
}

// String implements fmt.Stringer.
func (s *ValueStatement) String() string {
	return s.lhs.String() + " = " + s.rhs.String()
}

// -----------------------------------------------------------------------------
// DecisionStatement
// -----------------------------------------------------------------------------

// DecisionStatement fixes the value of a decision function application.
type DecisionStatement struct {
	lhs      *model.FuncAppTerm
	rhs      model.Term
	v        *model.RandFuncAppVar
	value    any
	compiled bool
}

// NewDecisionStatement creates the decision lhs = rhs. lhs must apply a
// decision function to constant arguments.
func NewDecisionStatement(lhs *model.FuncAppTerm, rhs model.Term) *DecisionStatement {
	return &DecisionStatement{lhs: lhs, rhs: rhs}
}

func (s *DecisionStatement) compile(m *model.Model) error {
	if s.compiled {
		return nil
	}
	if s.lhs.Func().Kind() != model.DecisionFunc {
		return fmt.Errorf("%w: decision %s: %s is not a decision function", model.ErrModel, s, s.lhs.Func())
	}
	ctx := model.NewStaticContext(m)
	v, ok := s.lhs.BasicVar(ctx)
	if !ok || v == nil {
		return fmt.Errorf("%w: decision %s: arguments are not constants", model.ErrModel, s)
	}
	val, ok := s.rhs.Evaluate(ctx)
	if !ok {
		return fmt.Errorf("%w: decision %s: value is not a constant", model.ErrModel, s)
	}
	s.v, s.value, s.compiled = v, val, true
	return nil
}

// Var returns the decided variable. Valid after compilation.
func (s *DecisionStatement) Var() *model.RandFuncAppVar { return s.v }

// Value returns the decided value. Valid after compilation.
func (s *DecisionStatement) Value() any { return s.value }

// String implements fmt.Stringer.
func (s *DecisionStatement) String() string {
	return "decide " + s.lhs.String() + " = " + s.rhs.String()
}

// -----------------------------------------------------------------------------
// SymbolStatement
// -----------------------------------------------------------------------------

// SymbolStatement asserts that the objects satisfying an implicit set
// specification are exactly the ones named by a list of fresh symbols:
// {T x : cond} = {s1, ..., sk}.
//
// Description:
//
//	Compiling declares one zero-ary random function (a skolem constant)
//	per symbol. The i-th skolem is uniform over the set excluding the
//	skolems before it, and a cardinality statement #{T x : cond} = k is
//	added. Value statements may then mention the skolems by name.
type SymbolStatement struct {
	spec     *model.ImplicitSetSpec
	symbols  []string
	skolems  []*model.Function
	card     *ValueStatement
	compiled bool
}

// NewSymbolStatement creates the statement spec = {symbols...}.
func NewSymbolStatement(spec *model.ImplicitSetSpec, symbols ...string) *SymbolStatement {
	return &SymbolStatement{spec: spec, symbols: append([]string(nil), symbols...)}
}

func (s *SymbolStatement) compile(m *model.Model) error {
	if s.compiled {
		return nil
	}
	if err := model.CheckTerm(s.spec); err != nil {
		return fmt.Errorf("evidence %s: %w", s, err)
	}
	var earlier []model.Term
	for _, name := range s.symbols {
		if _, exists := m.Function(name); exists {
			return fmt.Errorf("%w: evidence %s: symbol %q is already declared", model.ErrModel, s, name)
		}
		f := m.NewRandomFunction(name, s.spec.ElementType())
		f.SetDependency(model.NewDependencyModel(
			model.Otherwise(distrib.UniformChoice{}, model.Excluding(s.spec, earlier...)),
		))
		s.skolems = append(s.skolems, f)
		earlier = append(earlier, model.App(f))
	}
	s.card = NewValueStatement(model.Card(s.spec), model.Const(len(s.symbols)))
	if err := s.card.compile(m); err != nil {
		return err
	}
	s.compiled = true
	return nil
}

// SetSpec returns the set specification.
func (s *SymbolStatement) SetSpec() *model.ImplicitSetSpec { return s.spec }

// Symbols returns the symbol names.
func (s *SymbolStatement) Symbols() []string { return append([]string(nil), s.symbols...) }

// Skolems returns the skolem functions. Valid after compilation.
func (s *SymbolStatement) Skolems() []*model.Function {
	return append([]*model.Function(nil), s.skolems...)
}

// SkolemVars returns the basic variables of the skolem constants.
func (s *SymbolStatement) SkolemVars() []*model.RandFuncAppVar {
	out := make([]*model.RandFuncAppVar, len(s.skolems))
	for i, f := range s.skolems {
		out[i] = model.NewRandFuncAppVar(f)
	}
	return out
}

// Cardinality returns the implied cardinality statement. Valid after
// compilation.
func (s *SymbolStatement) Cardinality() *ValueStatement { return s.card }

// String implements fmt.Stringer.
func (s *SymbolStatement) String() string {
	return s.spec.String() + " = {" + strings.Join(s.symbols, ", ") + "}"
}
