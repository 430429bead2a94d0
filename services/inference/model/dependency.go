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

// Clause is one branch of a dependency model: when Cond holds, the value
// is distributed according to CPD applied to the values of Args.
type Clause struct {
	// Cond is the guard. A nil Cond always holds.
	Cond Formula

	CPD  CondProbDistrib
	Args []Term
}

// If builds a guarded clause.
func If(cond Formula, cpd CondProbDistrib, args ...Term) Clause {
	return Clause{Cond: cond, CPD: cpd, Args: args}
}

// Otherwise builds an unguarded clause.
func Otherwise(cpd CondProbDistrib, args ...Term) Clause {
	return Clause{CPD: cpd, Args: args}
}

// DependencyModel selects a CPD for a variable by evaluating clauses in
// order and taking the first whose condition holds.
type DependencyModel struct {
	clauses      []Clause
	defaultValue any
}

// NewDependencyModel creates a dependency model. When no clause applies
// the variable takes its type's default value with probability 1.
func NewDependencyModel(clauses ...Clause) *DependencyModel {
	return &DependencyModel{clauses: clauses, defaultValue: Null}
}

// Clauses returns the clauses in evaluation order.
func (d *DependencyModel) Clauses() []Clause {
	return append([]Clause(nil), d.clauses...)
}

// Distrib binds vars to values and evaluates the clauses in ctx.
//
// Description:
//
//	Conditions are evaluated in order. Evaluation stops with false as soon
//	as a condition or an argument of the selected clause cannot be
//	determined, so the basic variables touched are exactly the active
//	parents of the variable under the current partial assignment.
//
// Inputs:
//
//	ctx    - The evaluation context.
//	vars   - The logical variables to bind (function or POP arguments).
//	values - The values bound to vars.
//
// Outputs:
//
//	Distrib - The selected CPD and its argument values.
//	bool    - False if ctx could not determine the distribution.
func (d *DependencyModel) Distrib(ctx EvalContext, vars []*LogicalVar, values []any) (Distrib, bool) {
	for i, lv := range vars {
		ctx.Assign(lv, values[i])
	}
	defer func() {
		for _, lv := range vars {
			ctx.Unassign(lv)
		}
	}()

	for _, c := range d.clauses {
		if c.Cond != nil {
			holds, ok := c.Cond.IsTrue(ctx)
			if !ok {
				return Distrib{}, false
			}
			if !holds {
				continue
			}
		}
		args := make([]any, len(c.Args))
		for i, t := range c.Args {
			v, ok := t.Evaluate(ctx)
			if !ok {
				return Distrib{}, false
			}
			args[i] = v
		}
		return Distrib{CPD: c.CPD, Args: args}, true
	}
	return Distrib{CPD: PointMass{Value: d.defaultValue}}, true
}
