// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package world holds partial assignments of values to random variables.
//
// A PartialWorld maps instantiated basic variables to values and maintains,
// eagerly on every mutation, the Bayes net over those variables: each
// variable's active parents under its dependency model (given the other
// instantiated variables), the log-probability of its current value, and
// whether it is supported. Worlds also track identifier assertions for
// types whose objects are represented by identifiers rather than
// enumerated.
//
// A PartialWorldDiff stages changes over a saved world using the
// copy-on-write maps of pkg/overlay. Save folds the changes into the saved
// world and Revert discards them. The diff exposes the sets an MCMC move
// needs to account for (changed probabilities, newly barren variables and
// so on) computed from the overlay change sets alone.
//
// Thread Safety:
//
//	Worlds are single-goroutine objects. Independent chains must each own
//	their own world.
package world

import (
	"github.com/AleutianAI/openworld/services/inference/model"
)

// PartialWorld is a partial assignment of values to basic random
// variables.
//
// The only implementations are *DefaultPartialWorld and *PartialWorldDiff.
type PartialWorld interface {
	// Model returns the model the world belongs to.
	Model() *model.Model

	// Value returns the value of v, or nil if v is not instantiated.
	Value(v model.BasicVar) any

	// SetValue instantiates v with value. A nil value uninstantiates v.
	// The Bayes net and log-probabilities of v, its children and any
	// derived variables depending on v are recomputed immediately.
	SetValue(v model.BasicVar, value any)

	// IsInstantiated reports whether v has a value.
	IsInstantiated(v model.BasicVar) bool

	// InstantiatedVars returns the instantiated variables in model.Compare
	// order.
	InstantiatedVars() []model.BasicVar

	// NumInstantiatedVars returns the number of instantiated variables.
	NumInstantiatedVars() int

	// DerivedVars returns the registered derived variables ordered by key.
	DerivedVars() []*model.DerivedVar

	// AddDerivedVar registers dv so its value is cached and kept current.
	AddDerivedVar(dv *model.DerivedVar)

	// RemoveDerivedVar unregisters dv.
	RemoveDerivedVar(dv *model.DerivedVar)

	// DerivedValue returns the value of dv in this world. The second
	// result is false if the world does not determine it.
	DerivedValue(dv *model.DerivedVar) (any, bool)

	// UsesIdentifiers reports whether objects of t are represented by
	// identifiers in this world.
	UsesIdentifiers(t *model.Type) bool

	// NewIdentifier returns a fresh, unasserted identifier of type t.
	NewIdentifier(t *model.Type) *model.ObjectIdentifier

	// AssertIdentifier ties id to the POP application nv, replacing any
	// previous assertion.
	AssertIdentifier(id *model.ObjectIdentifier, nv *model.NumberVar)

	// RemoveIdentifier drops any assertion for id.
	RemoveIdentifier(id *model.ObjectIdentifier)

	// POPAppOf returns the POP application id is asserted to satisfy, or
	// nil.
	POPAppOf(id *model.ObjectIdentifier) *model.NumberVar

	// AssertedIdentifiers returns the identifiers asserted for nv ordered
	// by serial number.
	AssertedIdentifiers(nv *model.NumberVar) []*model.ObjectIdentifier

	// Satisfiers returns the objects satisfying nv. The second result is
	// false when nv is not instantiated or, for identifier types, when
	// fewer identifiers than its value have been asserted.
	Satisfiers(nv *model.NumberVar) (model.ObjectSet, bool)

	// LogProbOfValue returns log P(value of v | parents of v).
	LogProbOfValue(v model.BasicVar) (float64, bool)

	// ProbOfValue returns P(value of v | parents of v).
	ProbOfValue(v model.BasicVar) (float64, bool)

	// LogProb returns the log-probability of the world: the sum over
	// instantiated variables plus the identifier multipliers.
	LogProb() float64

	// LogMultiplier returns log(n!/(n-k)!) for an identifier-type number
	// variable with value n and k asserted identifiers, and 0 otherwise.
	LogMultiplier(nv *model.NumberVar) float64

	// Parents returns the active parents of an instantiated basic variable
	// or a registered derived variable.
	Parents(v model.Var) []model.BasicVar

	// Children returns the instantiated or registered variables that have
	// v as an active parent, ordered by key.
	Children(v model.BasicVar) []model.Var

	// IsSupported reports whether v is instantiated and all its active
	// parents are instantiated.
	IsSupported(v model.BasicVar) bool

	// MissingParent returns the first parent found uninstantiated when v's
	// distribution was last evaluated, or nil.
	MissingParent(v model.BasicVar) model.BasicVar

	// IsBarren reports whether v is instantiated and has no children.
	IsBarren(v model.BasicVar) bool

	// IsOverloaded reports whether more identifiers are asserted for nv
	// than its value allows.
	IsOverloaded(nv *model.NumberVar) bool

	// IsFloating reports whether id appears as an argument of some
	// instantiated variable but as the value of none.
	IsFloating(id *model.ObjectIdentifier) bool

	state() *worldState
}

// DiffListener is notified when a PartialWorldDiff is saved or reverted.
type DiffListener interface {
	OnSave(d *PartialWorldDiff)
	OnRevert(d *PartialWorldDiff)
}
