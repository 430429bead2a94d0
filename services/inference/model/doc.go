// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines first-order probabilistic models in the BLOG style.
//
// A Model declares types, random and non-random functions, and potential
// object patterns (POPs). Random functions and POPs carry a DependencyModel:
// an ordered list of clauses, each pairing a condition formula with a
// conditional probability distribution (CPD) and its argument terms.
//
// # Objects
//
// The universe of a possible world contains:
//
//   - Built-in values (bool, int, float64, string, Timestep).
//   - Guaranteed objects, declared up front for a type.
//   - Non-guaranteed objects, generated by a POP application. They are
//     identified by (POP, generating objects, index) and canonicalized per
//     model so that equal triples share one pointer while reachable.
//   - Object identifiers, anonymous handles used for types whose members
//     are exchangeable.
//
// # Variables
//
// Basic random variables are either function applications
// (RandFuncAppVar) or number variables (NumberVar, the size of a POP
// application). Derived variables wrap closed terms whose value is computed
// from basic variables. Every variable has a canonical Key used to index
// world state.
//
// # Evaluation
//
// Terms and formulas evaluate against an EvalContext. A context answers
// basic variable values and POP satisfier sets and may report that it
// cannot determine an answer; callers propagate the false "ok" result.
//
// Thread Safety:
//
//	A Model is built single-threaded. Once compiled, it may be shared by
//	concurrent inference chains: the non-guaranteed object cache and the
//	identifier counter are synchronized.
package model

import "errors"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrModel indicates an ill-formed model: an unresolved name, a random
	// function without a dependency model, duplicate POP origin sets, cyclic
	// type generation, or quantification over a non-enumerable type.
	ErrModel = errors.New("model error")

	// ErrIllegalState indicates a contract violation such as reading an
	// undetermined variable through a context that forbids it.
	ErrIllegalState = errors.New("illegal state")

	// ErrNumericDegeneracy indicates a NaN probability or weight ratio.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)
