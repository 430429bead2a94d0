// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package world

import (
	"fmt"

	"github.com/AleutianAI/openworld/services/inference/model"
)

// -----------------------------------------------------------------------------
// ParentRecEvalContext
// -----------------------------------------------------------------------------

// ParentRecEvalContext evaluates against a world without instantiating
// anything and records every basic variable it reads.
//
// Description:
//
//	The recorded variables are the active parents of whatever was
//	evaluated. The first variable found uninstantiated is recorded too,
//	and also kept as Missing, so that instantiating it later triggers
//	re-evaluation.
type ParentRecEvalContext struct {
	model.Bindings
	w       *worldState
	self    string
	parents []model.BasicVar
	seen    map[string]struct{}
	missing model.BasicVar
}

// NewParentRecEvalContext creates a recording context over w.
func NewParentRecEvalContext(w PartialWorld) *ParentRecEvalContext {
	return newParentRec(w.state(), "")
}

func newParentRec(s *worldState, self string) *ParentRecEvalContext {
	return &ParentRecEvalContext{w: s, self: self}
}

func (c *ParentRecEvalContext) record(v model.BasicVar) {
	k := v.Key()
	if k == c.self {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	if _, ok := c.seen[k]; ok {
		return
	}
	c.seen[k] = struct{}{}
	c.parents = append(c.parents, v)
}

// Parents returns the variables read so far in read order.
func (c *ParentRecEvalContext) Parents() []model.BasicVar {
	return append([]model.BasicVar(nil), c.parents...)
}

// Missing returns the first uninstantiated variable read, or nil.
func (c *ParentRecEvalContext) Missing() model.BasicVar { return c.missing }

// Model implements model.EvalContext.
func (c *ParentRecEvalContext) Model() *model.Model { return c.w.model }

// Value implements model.EvalContext.
func (c *ParentRecEvalContext) Value(v model.BasicVar) (any, bool) {
	c.record(v)
	e, ok := c.w.values.Get(v.Key())
	if !ok {
		if c.missing == nil {
			c.missing = v
		}
		return nil, false
	}
	return e.val, true
}

// Satisfiers implements model.EvalContext.
func (c *ParentRecEvalContext) Satisfiers(nv *model.NumberVar) (model.ObjectSet, bool) {
	c.record(nv)
	s, ok := c.w.Satisfiers(nv)
	if !ok && c.missing == nil {
		c.missing = nv
	}
	return s, ok
}

// POPAppOf implements model.EvalContext. An unasserted identifier
// satisfies no POP application.
func (c *ParentRecEvalContext) POPAppOf(id *model.ObjectIdentifier) (*model.NumberVar, bool) {
	nv, ok := c.w.idApps.Get(id)
	if !ok {
		return nil, true
	}
	c.record(nv)
	return nv, true
}

// -----------------------------------------------------------------------------
// DefaultEvalContext
// -----------------------------------------------------------------------------

// DefaultEvalContext evaluates against a world without instantiating
// anything.
//
// Description:
//
//	With errorIfUndet set, the first lookup the world cannot answer is
//	recorded as an ErrIllegalState available from Err. Lookups keep
//	returning "cannot determine" either way.
type DefaultEvalContext struct {
	model.Bindings
	w            PartialWorld
	errorIfUndet bool
	err          error
}

// NewEvalContext creates a non-instantiating context over w.
func NewEvalContext(w PartialWorld, errorIfUndet bool) *DefaultEvalContext {
	return &DefaultEvalContext{w: w, errorIfUndet: errorIfUndet}
}

// Err returns the first undetermined lookup when errorIfUndet is set.
func (c *DefaultEvalContext) Err() error { return c.err }

// World returns the underlying world.
func (c *DefaultEvalContext) World() PartialWorld { return c.w }

func (c *DefaultEvalContext) undetermined(what string) {
	if c.errorIfUndet && c.err == nil {
		c.err = fmt.Errorf("%w: %s is not determined", model.ErrIllegalState, what)
	}
}

// Model implements model.EvalContext.
func (c *DefaultEvalContext) Model() *model.Model { return c.w.Model() }

// Value implements model.EvalContext.
func (c *DefaultEvalContext) Value(v model.BasicVar) (any, bool) {
	val := c.w.Value(v)
	if val == nil {
		c.undetermined(v.String())
		return nil, false
	}
	return val, true
}

// Satisfiers implements model.EvalContext.
func (c *DefaultEvalContext) Satisfiers(nv *model.NumberVar) (model.ObjectSet, bool) {
	s, ok := c.w.Satisfiers(nv)
	if !ok {
		c.undetermined("satisfiers of " + nv.String())
	}
	return s, ok
}

// POPAppOf implements model.EvalContext.
func (c *DefaultEvalContext) POPAppOf(id *model.ObjectIdentifier) (*model.NumberVar, bool) {
	return c.w.POPAppOf(id), true
}
