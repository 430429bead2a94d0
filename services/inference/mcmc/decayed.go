// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcmc

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// DecayParams shape the variable selection of a DecayedProposer.
type DecayParams struct {
	// MaxRecall is the number of most recent timesteps whose variables
	// may be selected.
	MaxRecall int `yaml:"max_recall" validate:"gte=1"`

	// AtemporalVarFactor weighs atemporal variables against temporal
	// ones.
	AtemporalVarFactor float64 `yaml:"atemporal_var_factor" validate:"gte=0"`

	// DecayExponent is the exponent of the inverse-polynomial decay over
	// timestep offsets.
	DecayExponent float64 `yaml:"decay_exponent" validate:"gte=0"`
}

// DefaultDecayParams returns the default selection parameters.
func DefaultDecayParams() DecayParams {
	return DecayParams{MaxRecall: 10, AtemporalVarFactor: 1, DecayExponent: 2}
}

// DecayedProposer performs the generic move but favors variables of
// recent timesteps.
//
// Description:
//
//	Eligible variables split into atemporal ones (no timestep argument)
//	and temporal ones bucketed by timestep; only the MaxRecall most recent
//	timesteps are visible. An atemporal variable is chosen with
//	probability a/(a+T), where a is AtemporalVarFactor and T the latest
//	timestep of any instantiated variable, evidence included (at least 1).
//	Otherwise an offset o back from the latest
//	timestep is drawn with probability proportional to
//	(o+1)^-DecayExponent among offsets whose bucket is non-empty, and a
//	variable is chosen uniformly within the bucket. When one side is
//	empty the other is chosen with certainty.
//
// Thread Safety: Not safe for concurrent use.
type DecayedProposer struct {
	base
	params DecayParams
}

// NewDecayedProposer creates a decayed proposer for m.
func NewDecayedProposer(m *model.Model, rng *rand.Rand, params DecayParams, opts ...Option) *DecayedProposer {
	if params.MaxRecall < 1 {
		params.MaxRecall = 1
	}
	return &DecayedProposer{base: newBase(m, rng, opts), params: params}
}

// selection is the decayed selection distribution over one world.
type selection struct {
	atemporal []model.BasicVar
	buckets   [][]model.BasicVar // by offset from latest
	offsetW   []float64          // unnormalized, 0 for empty buckets
	offsetSum float64
	latest    int
	pAtemp    float64
}

func (p *DecayedProposer) selection(w world.PartialWorld) selection {
	var s selection
	byStep := make(map[int][]model.BasicVar)
	for _, v := range p.eligibleVars(w) {
		ts, ok := model.VarTimestep(v)
		if !ok {
			s.atemporal = append(s.atemporal, v)
			continue
		}
		byStep[int(ts)] = append(byStep[int(ts)], v)
	}
	// The window is anchored at the latest instantiated timestep, eligible
	// or not, so observing a later step moves it forward.
	latest := -1
	for _, v := range w.InstantiatedVars() {
		if ts, ok := model.VarTimestep(v); ok {
			latest = max(latest, int(ts))
		}
	}
	s.latest = latest
	if latest >= 0 {
		n := min(p.params.MaxRecall, latest+1)
		s.buckets = make([][]model.BasicVar, n)
		s.offsetW = make([]float64, n)
		for o := 0; o < n; o++ {
			s.buckets[o] = byStep[latest-o]
			if len(s.buckets[o]) > 0 {
				s.offsetW[o] = math.Pow(float64(o+1), -p.params.DecayExponent)
				s.offsetSum += s.offsetW[o]
			}
		}
	}

	switch {
	case len(s.atemporal) == 0:
		s.pAtemp = 0
	case s.offsetSum == 0:
		s.pAtemp = 1
	default:
		a := p.params.AtemporalVarFactor
		s.pAtemp = a / (a + float64(max(latest, 1)))
	}
	return s
}

func (s selection) empty() bool { return len(s.atemporal) == 0 && s.offsetSum == 0 }

// logProb is the log-probability of choosing v.
func (s selection) logProb(v model.BasicVar) float64 {
	ts, temporal := model.VarTimestep(v)
	if !temporal {
		for _, a := range s.atemporal {
			if a.Key() == v.Key() {
				return math.Log(s.pAtemp) - math.Log(float64(len(s.atemporal)))
			}
		}
		return math.Inf(-1)
	}
	o := s.latest - int(ts)
	if o < 0 || o >= len(s.buckets) || s.offsetW[o] == 0 {
		return math.Inf(-1)
	}
	for _, b := range s.buckets[o] {
		if b.Key() == v.Key() {
			return math.Log(1-s.pAtemp) + math.Log(s.offsetW[o]/s.offsetSum) -
				math.Log(float64(len(s.buckets[o])))
		}
	}
	return math.Inf(-1)
}

func (s selection) draw(rng *rand.Rand) model.BasicVar {
	if len(s.atemporal) > 0 && rng.Float64() < s.pAtemp {
		return s.atemporal[rng.Intn(len(s.atemporal))]
	}
	u := rng.Float64() * s.offsetSum
	o := 0
	for ; o < len(s.offsetW)-1; o++ {
		if s.offsetW[o] == 0 {
			continue
		}
		if u < s.offsetW[o] {
			break
		}
		u -= s.offsetW[o]
	}
	for s.offsetW[o] == 0 {
		o--
	}
	b := s.buckets[o]
	return b[rng.Intn(len(b))]
}

// ProposeNextState implements Proposer.
func (p *DecayedProposer) ProposeNextState(d *world.PartialWorldDiff) (float64, error) {
	if p.ev == nil {
		return 0, ErrNotInitialized
	}
	sel := p.selection(d)
	if sel.empty() {
		return 0, nil
	}
	v := sel.draw(p.rng)
	if _, ok := v.(*model.NumberVar); ok {
		return 0, nil
	}
	return p.move(d, v, sel.logProb(v), func(w world.PartialWorld, v model.BasicVar) float64 {
		return p.selection(w).logProb(v)
	})
}
