// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence holds observations and queries.
//
// Evidence is a collection of value statements (a term equals a constant),
// symbol statements (an implicit set equals a set of fresh symbols) and
// decision statements (a decision function takes a value). Queries
// accumulate weighted histograms over the values of a term in sampled
// worlds.
package evidence

import (
	"errors"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// Evidence is a set of statements compiled against one model.
type Evidence struct {
	values    []*ValueStatement
	symbols   []*SymbolStatement
	decisions []*DecisionStatement
	compiled  bool
}

// New creates empty evidence.
func New() *Evidence { return &Evidence{} }

// Subset creates evidence from existing, already compiled statements.
func Subset(values []*ValueStatement, symbols []*SymbolStatement, decisions []*DecisionStatement) *Evidence {
	return &Evidence{
		values:    append([]*ValueStatement(nil), values...),
		symbols:   append([]*SymbolStatement(nil), symbols...),
		decisions: append([]*DecisionStatement(nil), decisions...),
		compiled:  true,
	}
}

// AddValue adds the statement lhs = rhs and returns it.
func (e *Evidence) AddValue(lhs, rhs model.Term) *ValueStatement {
	s := NewValueStatement(lhs, rhs)
	e.values = append(e.values, s)
	e.compiled = false
	return s
}

// AddSymbol adds a symbol statement.
func (e *Evidence) AddSymbol(s *SymbolStatement) {
	e.symbols = append(e.symbols, s)
	e.compiled = false
}

// AddDecision adds a decision statement.
func (e *Evidence) AddDecision(s *DecisionStatement) {
	e.decisions = append(e.decisions, s)
	e.compiled = false
}

// Compile checks every statement and declares the skolem constants of
// symbol statements. Symbol statements are compiled first so that value
// statements may mention their symbols.
//
// Outputs:
//
//	error - Every problem found, joined, each wrapping model.ErrModel.
func (e *Evidence) Compile(m *model.Model) error {
	var errs []error
	for _, s := range e.symbols {
		if err := s.compile(m); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range e.values {
		if err := s.compile(m); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range e.decisions {
		if err := s.compile(m); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	e.compiled = true
	return nil
}

// IsCompiled reports whether Compile succeeded since the last addition.
func (e *Evidence) IsCompiled() bool { return e.compiled }

// IsEmpty reports whether there are no statements.
func (e *Evidence) IsEmpty() bool {
	return len(e.values) == 0 && len(e.symbols) == 0 && len(e.decisions) == 0
}

// ValueStatements returns the value statements as added.
func (e *Evidence) ValueStatements() []*ValueStatement {
	return append([]*ValueStatement(nil), e.values...)
}

// SymbolStatements returns the symbol statements.
func (e *Evidence) SymbolStatements() []*SymbolStatement {
	return append([]*SymbolStatement(nil), e.symbols...)
}

// DecisionStatements returns the decision statements.
func (e *Evidence) DecisionStatements() []*DecisionStatement {
	return append([]*DecisionStatement(nil), e.decisions...)
}

// AllValueStatements returns the value statements followed by the
// cardinality statements implied by symbol statements.
func (e *Evidence) AllValueStatements() []*ValueStatement {
	out := e.ValueStatements()
	for _, s := range e.symbols {
		if s.card != nil {
			out = append(out, s.card)
		}
	}
	return out
}

// DerivedVars returns one Boolean derived variable per value statement
// (including cardinality statements) that is true when it holds.
func (e *Evidence) DerivedVars() []*model.DerivedVar {
	stmts := e.AllValueStatements()
	out := make([]*model.DerivedVar, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, s.dv)
	}
	return out
}

// IsTrue reports whether every value statement holds in w and every
// decision variable has its decided value.
func (e *Evidence) IsTrue(w world.PartialWorld) (bool, bool) {
	for _, s := range e.AllValueStatements() {
		v, ok := w.DerivedValue(s.dv)
		if !ok {
			return false, false
		}
		if v != true {
			return false, true
		}
	}
	for _, s := range e.decisions {
		v := w.Value(s.v)
		if v == nil {
			return false, false
		}
		if !model.ValuesEqual(v, s.value) {
			return false, true
		}
	}
	return true, true
}

// BasicVars returns the keys of the basic variables the evidence observes
// in w: the observed variables of value statements, decision variables and
// skolem constants.
func (e *Evidence) BasicVars(w world.PartialWorld) *set.Set[string] {
	ctx := world.NewEvalContext(w, false)
	out := set.New[string](len(e.values) + len(e.decisions))
	for _, s := range e.values {
		if v, ok := s.ObservedVar(ctx); ok && v != nil {
			out.Insert(v.Key())
		}
	}
	for _, s := range e.decisions {
		out.Insert(s.v.Key())
	}
	for _, s := range e.symbols {
		for _, v := range s.SkolemVars() {
			out.Insert(v.Key())
		}
	}
	return out
}

// String implements fmt.Stringer.
func (e *Evidence) String() string {
	var parts []string
	for _, s := range e.symbols {
		parts = append(parts, s.String())
	}
	for _, s := range e.values {
		parts = append(parts, s.String())
	}
	for _, s := range e.decisions {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "; ")
}
