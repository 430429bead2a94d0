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

// DerivedVar is a random variable defined by a closed term. Its value is a
// function of the basic variables the term touches.
type DerivedVar struct {
	term Term
	key  string
}

// NewDerivedVar wraps a closed term.
func NewDerivedVar(t Term) *DerivedVar {
	return &DerivedVar{term: t, key: "d:" + t.termKey()}
}

// Term returns the defining term.
func (v *DerivedVar) Term() Term { return v.term }

// Key implements Var.
func (v *DerivedVar) Key() string { return v.key }

// Type implements Var.
func (v *DerivedVar) Type() *Type { return v.term.Type() }

// String implements fmt.Stringer.
func (v *DerivedVar) String() string { return v.term.String() }

// Value evaluates the term in ctx.
func (v *DerivedVar) Value(ctx EvalContext) (any, bool) { return v.term.Evaluate(ctx) }
