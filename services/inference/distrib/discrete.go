// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package distrib

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/openworld/services/inference/model"
)

// -----------------------------------------------------------------------------
// Bernoulli
// -----------------------------------------------------------------------------

// Bernoulli is true with probability P. If the first argument is a number
// it is used in place of P.
type Bernoulli struct {
	P float64
}

func (b Bernoulli) param(args []any) float64 {
	if len(args) > 0 {
		if p, ok := asFloat(args[0]); ok {
			return p
		}
	}
	return b.P
}

// Prob implements model.CondProbDistrib.
func (b Bernoulli) Prob(args []any, value any) float64 {
	v, ok := value.(bool)
	if !ok {
		return 0
	}
	p := b.param(args)
	if v {
		return p
	}
	return 1 - p
}

// LogProb implements model.CondProbDistrib.
func (b Bernoulli) LogProb(args []any, value any) float64 {
	return logOf(b.Prob(args, value))
}

// SampleVal implements model.CondProbDistrib.
func (b Bernoulli) SampleVal(args []any, _ *model.Type, rng *rand.Rand) any {
	d := distuv.Bernoulli{P: b.param(args), Src: rng}
	return d.Rand() == 1
}

// String implements fmt.Stringer.
func (b Bernoulli) String() string { return fmt.Sprintf("Bernoulli(%g)", b.P) }

// -----------------------------------------------------------------------------
// Categorical
// -----------------------------------------------------------------------------

// Categorical is a distribution over an explicit list of values.
type Categorical struct {
	values []any
	probs  []float64
	index  map[string]int
}

// NewCategorical creates a categorical distribution. probs must be
// non-negative and sum to 1.
func NewCategorical(values []any, probs []float64) (*Categorical, error) {
	if len(values) != len(probs) {
		return nil, fmt.Errorf("%w: %d values but %d probabilities", ErrInvalidParams, len(values), len(probs))
	}
	if err := validateProbs(probs); err != nil {
		return nil, err
	}
	c := &Categorical{
		values: append([]any(nil), values...),
		probs:  append([]float64(nil), probs...),
		index:  make(map[string]int, len(values)),
	}
	for i, v := range values {
		k := model.ValueKey(v)
		if _, dup := c.index[k]; dup {
			return nil, fmt.Errorf("%w: duplicate value %s", ErrInvalidParams, model.ValueString(v))
		}
		c.index[k] = i
	}
	return c, nil
}

// MustCategorical is NewCategorical for literal parameters; it panics on
// invalid input.
func MustCategorical(values []any, probs []float64) *Categorical {
	c, err := NewCategorical(values, probs)
	if err != nil {
		panic(err)
	}
	return c
}

// Values returns the support in declaration order.
func (c *Categorical) Values() []any { return append([]any(nil), c.values...) }

// Prob implements model.CondProbDistrib.
func (c *Categorical) Prob(_ []any, value any) float64 {
	i, ok := c.index[model.ValueKey(value)]
	if !ok {
		return 0
	}
	return c.probs[i]
}

// LogProb implements model.CondProbDistrib.
func (c *Categorical) LogProb(args []any, value any) float64 {
	return logOf(c.Prob(args, value))
}

// SampleVal implements model.CondProbDistrib.
func (c *Categorical) SampleVal(_ []any, _ *model.Type, rng *rand.Rand) any {
	d := distuv.NewCategorical(c.probs, rng)
	return c.values[int(d.Rand())]
}

// String implements fmt.Stringer.
func (c *Categorical) String() string {
	s := "Categorical{"
	for i, v := range c.values {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %g", model.ValueString(v), c.probs[i])
	}
	return s + "}"
}

// -----------------------------------------------------------------------------
// Tabular
// -----------------------------------------------------------------------------

// Row is one entry of a Tabular CPD: the distribution used when the
// arguments equal Parents.
type Row struct {
	Parents []any
	Dist    *Categorical
}

// Tabular selects a categorical distribution by the tuple of argument
// values.
type Tabular struct {
	rows map[string]*Categorical
	def  *Categorical
}

// NewTabular creates a table. def is used for argument tuples with no row
// and may be nil, in which case such tuples give probability 0 and sample
// Null.
func NewTabular(def *Categorical, rows ...Row) *Tabular {
	t := &Tabular{rows: make(map[string]*Categorical, len(rows)), def: def}
	for _, r := range rows {
		t.rows[model.ValueKey(model.NewTuple(r.Parents...))] = r.Dist
	}
	return t
}

func (t *Tabular) row(args []any) *Categorical {
	if c, ok := t.rows[model.ValueKey(model.NewTuple(args...))]; ok {
		return c
	}
	return t.def
}

// Prob implements model.CondProbDistrib.
func (t *Tabular) Prob(args []any, value any) float64 {
	c := t.row(args)
	if c == nil {
		return 0
	}
	return c.Prob(nil, value)
}

// LogProb implements model.CondProbDistrib.
func (t *Tabular) LogProb(args []any, value any) float64 {
	return logOf(t.Prob(args, value))
}

// SampleVal implements model.CondProbDistrib.
func (t *Tabular) SampleVal(args []any, typ *model.Type, rng *rand.Rand) any {
	c := t.row(args)
	if c == nil {
		return model.Null
	}
	return c.SampleVal(nil, typ, rng)
}

// -----------------------------------------------------------------------------
// Poisson
// -----------------------------------------------------------------------------

// Poisson is a distribution over natural numbers with mean Lambda. If the
// first argument is a number it is used in place of Lambda.
type Poisson struct {
	Lambda float64
}

func (p Poisson) dist(args []any, rng *rand.Rand) distuv.Poisson {
	lambda := p.Lambda
	if len(args) > 0 {
		if l, ok := asFloat(args[0]); ok {
			lambda = l
		}
	}
	return distuv.Poisson{Lambda: lambda, Src: rng}
}

// Prob implements model.CondProbDistrib.
func (p Poisson) Prob(args []any, value any) float64 {
	n, ok := asInt(value)
	if !ok || n < 0 {
		return 0
	}
	return p.dist(args, nil).Prob(float64(n))
}

// LogProb implements model.CondProbDistrib.
func (p Poisson) LogProb(args []any, value any) float64 {
	n, ok := asInt(value)
	if !ok || n < 0 {
		return math.Inf(-1)
	}
	return p.dist(args, nil).LogProb(float64(n))
}

// SampleVal implements model.CondProbDistrib.
func (p Poisson) SampleVal(args []any, _ *model.Type, rng *rand.Rand) any {
	return int(p.dist(args, rng).Rand())
}

// -----------------------------------------------------------------------------
// EqualsCPD
// -----------------------------------------------------------------------------

// EqualsCPD is deterministic: the value equals the first argument.
type EqualsCPD struct{}

// Prob implements model.CondProbDistrib.
func (EqualsCPD) Prob(args []any, value any) float64 {
	if len(args) > 0 && model.ValuesEqual(args[0], value) {
		return 1
	}
	return 0
}

// LogProb implements model.CondProbDistrib.
func (e EqualsCPD) LogProb(args []any, value any) float64 {
	return logOf(e.Prob(args, value))
}

// SampleVal implements model.CondProbDistrib.
func (EqualsCPD) SampleVal(args []any, _ *model.Type, _ *rand.Rand) any {
	if len(args) == 0 {
		return model.Null
	}
	return args[0]
}
