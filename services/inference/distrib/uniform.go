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
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/openworld/services/inference/model"
)

// UniformChoice picks uniformly from the set given as its first argument.
// An empty set yields Null with probability 1.
type UniformChoice struct{}

func choiceSet(args []any) model.ObjectSet {
	if len(args) == 0 {
		return model.EmptySet
	}
	s, ok := args[0].(model.ObjectSet)
	if !ok {
		return model.EmptySet
	}
	return s
}

// Prob implements model.CondProbDistrib.
func (UniformChoice) Prob(args []any, value any) float64 {
	s := choiceSet(args)
	if s.Size() == 0 {
		if model.IsNull(value) {
			return 1
		}
		return 0
	}
	if !s.Contains(value) {
		return 0
	}
	return 1 / float64(s.Size())
}

// LogProb implements model.CondProbDistrib.
func (u UniformChoice) LogProb(args []any, value any) float64 {
	return logOf(u.Prob(args, value))
}

// SampleVal implements model.CondProbDistrib.
func (UniformChoice) SampleVal(args []any, _ *model.Type, rng *rand.Rand) any {
	return model.SampleUniform(choiceSet(args), rng)
}

// UniformInt is uniform over the integers Lo..Hi inclusive.
type UniformInt struct {
	Lo, Hi int
}

// Prob implements model.CondProbDistrib.
func (u UniformInt) Prob(_ []any, value any) float64 {
	n, ok := asInt(value)
	if !ok || n < u.Lo || n > u.Hi {
		return 0
	}
	return 1 / float64(u.Hi-u.Lo+1)
}

// LogProb implements model.CondProbDistrib.
func (u UniformInt) LogProb(args []any, value any) float64 {
	return logOf(u.Prob(args, value))
}

// SampleVal implements model.CondProbDistrib.
func (u UniformInt) SampleVal(_ []any, _ *model.Type, rng *rand.Rand) any {
	return u.Lo + rng.Intn(u.Hi-u.Lo+1)
}

// Gaussian is a normal density. If the first argument is a number it is
// used in place of Mean.
type Gaussian struct {
	Mean     float64
	Variance float64
}

func (g Gaussian) dist(args []any, rng *rand.Rand) distuv.Normal {
	mu := g.Mean
	if len(args) > 0 {
		if m, ok := asFloat(args[0]); ok {
			mu = m
		}
	}
	return distuv.Normal{Mu: mu, Sigma: math.Sqrt(g.Variance), Src: rng}
}

// Prob implements model.CondProbDistrib. It returns a density.
func (g Gaussian) Prob(args []any, value any) float64 {
	x, ok := asFloat(value)
	if !ok {
		return 0
	}
	return g.dist(args, nil).Prob(x)
}

// LogProb implements model.CondProbDistrib.
func (g Gaussian) LogProb(args []any, value any) float64 {
	x, ok := asFloat(value)
	if !ok {
		return math.Inf(-1)
	}
	return g.dist(args, nil).LogProb(x)
}

// SampleVal implements model.CondProbDistrib.
func (g Gaussian) SampleVal(args []any, _ *model.Type, rng *rand.Rand) any {
	return g.dist(args, rng).Rand()
}
