// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evalctx provides the instantiating evaluation context that makes
// partial worlds self-supporting.
//
// Evaluating a term or formula through an Instantiator never fails for
// lack of a value: every basic variable the evaluation reads is sampled
// from its distribution first, recursively instantiating that variable's
// own active parents. The log-probability of everything sampled is
// accumulated so callers can account for it in proposal ratios.
package evalctx

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrRecursionLimit indicates that lazy instantiation nested deeper
	// than the configured budget, which usually means a self-referential
	// dependency model.
	ErrRecursionLimit = errors.New("instantiation recursion limit exceeded")
)

// DefaultMaxDepth is the default instantiation recursion budget.
const DefaultMaxDepth = 10000

// AfterSamplingListener observes each sampled variable with its value and
// the probability of that value given its parents.
type AfterSamplingListener func(v model.BasicVar, value any, prob float64)

// Option configures an Instantiator.
type Option func(*Instantiator)

// WithListener registers an AfterSamplingListener.
func WithListener(l AfterSamplingListener) Option {
	return func(c *Instantiator) { c.listener = l }
}

// WithMaxDepth sets the recursion budget. Zero or negative means
// unbounded.
func WithMaxDepth(n int) Option {
	return func(c *Instantiator) { c.maxDepth = n }
}

// Instantiator is a model.EvalContext that samples any basic variable it
// is asked about and is not yet instantiated.
//
// Description:
//
//	The first failure (recursion limit, a distribution that cannot be
//	determined, a NaN log-probability) is sticky: it is kept in Err and
//	every later lookup reports "cannot determine".
//
// Thread Safety:
//
//	Not safe for concurrent use. Owns no world; the world must not be
//	mutated by anyone else while the Instantiator is in use.
type Instantiator struct {
	model.Bindings
	w        world.PartialWorld
	rng      *rand.Rand
	listener AfterSamplingListener
	maxDepth int
	depth    int
	logProb  float64
	err      error
}

// New creates an Instantiator over w drawing from rng.
func New(w world.PartialWorld, rng *rand.Rand, opts ...Option) *Instantiator {
	c := &Instantiator{w: w, rng: rng, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// World returns the world being instantiated.
func (c *Instantiator) World() world.PartialWorld { return c.w }

// LogProbability returns the total log-probability of the values sampled
// so far.
func (c *Instantiator) LogProbability() float64 { return c.logProb }

// Err returns the first failure, or nil.
func (c *Instantiator) Err() error { return c.err }

// Rand returns the random source used for sampling.
func (c *Instantiator) Rand() *rand.Rand { return c.rng }

func (c *Instantiator) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// EnsureDetAndSupported instantiates vars and everything in their active
// parent closure.
//
// Description:
//
//	A basic variable that is already instantiated and supported is left
//	alone. One that is instantiated but unsupported (for example an
//	evidence variable set directly) keeps its value and has its missing
//	parents instantiated. A derived variable is evaluated, which
//	instantiates exactly the basic variables its evaluation touches.
//
// Outputs:
//
//	error - The sticky failure, if any.
func (c *Instantiator) EnsureDetAndSupported(vars ...model.Var) error {
	for _, v := range vars {
		if c.err != nil {
			break
		}
		switch v := v.(type) {
		case model.BasicVar:
			c.ensureBasic(v)
		case *model.DerivedVar:
			v.Value(c)
		default:
			c.fail(fmt.Errorf("%w: unsupported variable kind %T", model.ErrIllegalState, v))
		}
	}
	return c.err
}

func (c *Instantiator) ensureBasic(v model.BasicVar) {
	if !c.w.IsInstantiated(v) {
		c.Value(v)
		return
	}
	if c.w.IsSupported(v) {
		return
	}
	if _, ok := v.Distrib(c); !ok {
		c.fail(fmt.Errorf("%w: distribution of %s is not determined", model.ErrIllegalState, v))
	}
}

// instantiate samples v from its distribution, instantiating its active
// parents first.
func (c *Instantiator) instantiate(v model.BasicVar) {
	if c.maxDepth > 0 && c.depth >= c.maxDepth {
		c.fail(fmt.Errorf("%w: at %s (depth %d)", ErrRecursionLimit, v, c.depth))
		return
	}
	c.depth++
	defer func() { c.depth-- }()

	d, ok := v.Distrib(c)
	if c.err != nil {
		return
	}
	if !ok {
		c.fail(fmt.Errorf("%w: distribution of %s is not determined", model.ErrIllegalState, v))
		return
	}
	val := d.Sample(v.Type(), c.rng)
	if val == nil {
		c.fail(fmt.Errorf("%w: %s sampled no value", model.ErrIllegalState, v))
		return
	}
	lp := d.LogProb(val)
	if math.IsNaN(lp) {
		c.fail(fmt.Errorf("%w: log-probability of %s = %s", model.ErrNumericDegeneracy, v, model.ValueString(val)))
		return
	}
	c.logProb += lp
	c.w.SetValue(v, val)
	if c.listener != nil {
		c.listener(v, val, math.Exp(lp))
	}
}

// -----------------------------------------------------------------------------
// model.EvalContext
// -----------------------------------------------------------------------------

// Model implements model.EvalContext.
func (c *Instantiator) Model() *model.Model { return c.w.Model() }

// Value implements model.EvalContext.
func (c *Instantiator) Value(v model.BasicVar) (any, bool) {
	if c.err != nil {
		return nil, false
	}
	if val := c.w.Value(v); val != nil {
		return val, true
	}
	c.instantiate(v)
	if c.err != nil {
		return nil, false
	}
	return c.w.Value(v), true
}

// Satisfiers implements model.EvalContext. For identifier types it
// asserts fresh identifiers until the POP application has as many as its
// number variable's value.
func (c *Instantiator) Satisfiers(nv *model.NumberVar) (model.ObjectSet, bool) {
	val, ok := c.Value(nv)
	if !ok {
		return nil, false
	}
	t := nv.POP().Type()
	if c.w.UsesIdentifiers(t) {
		n, _ := val.(int)
		for k := len(c.w.AssertedIdentifiers(nv)); k < n; k++ {
			c.w.AssertIdentifier(c.w.NewIdentifier(t), nv)
		}
	}
	s, ok := c.w.Satisfiers(nv)
	if !ok {
		c.fail(fmt.Errorf("%w: satisfiers of %s", model.ErrIllegalState, nv))
	}
	return s, ok
}

// POPAppOf implements model.EvalContext.
func (c *Instantiator) POPAppOf(id *model.ObjectIdentifier) (*model.NumberVar, bool) {
	return c.w.POPAppOf(id), true
}
