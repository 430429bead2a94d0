// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sample

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/openworld/services/inference/evalctx"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
)

// LikelihoodAndWeight is the contribution of a weighter to a sample:
// the likelihood of the evidence it fixed and the importance weight of
// the values it proposed from something other than the prior.
type LikelihoodAndWeight struct {
	Likelihood float64
	Weight     float64
}

// One is the neutral contribution.
var One = LikelihoodAndWeight{Likelihood: 1, Weight: 1}

// Zero is the contribution of evidence that cannot hold.
var Zero = LikelihoodAndWeight{Likelihood: 0, Weight: 1}

// WeightedLikelihood returns Likelihood * Weight, the sample's unbiased
// estimator contribution.
func (lw LikelihoodAndWeight) WeightedLikelihood() float64 {
	return lw.Likelihood * lw.Weight
}

// Times composes two contributions.
func (lw LikelihoodAndWeight) Times(o LikelihoodAndWeight) LikelihoodAndWeight {
	return LikelihoodAndWeight{Likelihood: lw.Likelihood * o.Likelihood, Weight: lw.Weight * o.Weight}
}

// EvidenceLikelihoodWeighter fixes evidence in the world behind an
// Instantiator and reports how likely it is.
//
// Description:
//
//	On return every observed variable the weighter handled is
//	instantiated with its observed value and supported. A zero
//	likelihood means the world cannot satisfy the evidence; the weighter
//	may stop early in that case.
type EvidenceLikelihoodWeighter interface {
	LikelihoodAndWeight(ev *evidence.Evidence, inst *evalctx.Instantiator) (LikelihoodAndWeight, error)
}

// LikelihoodSample returns the weighted likelihood of ev under wt.
func LikelihoodSample(wt EvidenceLikelihoodWeighter, ev *evidence.Evidence, inst *evalctx.Instantiator) (float64, error) {
	lw, err := wt.LikelihoodAndWeight(ev, inst)
	if err != nil {
		return 0, err
	}
	return lw.WeightedLikelihood(), nil
}

func checkRatio(what string, x float64) error {
	if math.IsNaN(x) {
		return fmt.Errorf("%w: %s is NaN", model.ErrNumericDegeneracy, what)
	}
	return nil
}

// chooseProportional draws an index with probability proportional to
// weights, which must have a positive sum.
func chooseProportional(rng *rand.Rand, weights []float64) int {
	return int(distuv.NewCategorical(weights, rng).Rand())
}

// statementLikelihood is the probability that s holds given everything
// but its observed variable, without setting anything. Parents of the
// observed variable are instantiated as needed.
func statementLikelihood(s *evidence.ValueStatement, inst *evalctx.Instantiator) (float64, error) {
	w := inst.World()
	v, ok := s.ObservedVar(inst)
	if err := inst.Err(); err != nil {
		return 0, err
	}
	if ok && v != nil && w.Value(v) == nil {
		d, ok := v.Distrib(inst)
		if err := inst.Err(); err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: distribution of %s is not determined", model.ErrIllegalState, v)
		}
		return d.Prob(s.ObservedValue()), nil
	}
	holds, ok := s.IsTrue(inst)
	if err := inst.Err(); err != nil {
		return 0, err
	}
	if !ok || !holds {
		return 0, nil
	}
	return 1, nil
}

// fixStatement sets the observed variable of s, if it has an
// uninstantiated one, and makes it supported.
func fixStatement(s *evidence.ValueStatement, inst *evalctx.Instantiator) error {
	v, ok := s.ObservedVar(inst)
	if !ok || v == nil {
		return inst.Err()
	}
	w := inst.World()
	if w.Value(v) != nil {
		return nil
	}
	w.SetValue(v, s.ObservedValue())
	return inst.EnsureDetAndSupported(v)
}

// -----------------------------------------------------------------------------
// DefaultWeighter
// -----------------------------------------------------------------------------

// DefaultWeighter handles every kind of statement by plain likelihood
// weighting.
//
// Description:
//
//	Decisions are set with probability 1. Each value statement whose left
//	side denotes a basic variable has that variable set to the observed
//	value, its parents are then instantiated from the prior, and the
//	likelihood is the product of P(observed | parents). A variable that
//	was already sampled before its statement was reached contributes an
//	indicator instead. Statements about derived terms, such as the
//	cardinality statements of symbol evidence, contribute an indicator.
type DefaultWeighter struct{}

// LikelihoodAndWeight implements EvidenceLikelihoodWeighter.
func (DefaultWeighter) LikelihoodAndWeight(ev *evidence.Evidence, inst *evalctx.Instantiator) (LikelihoodAndWeight, error) {
	w := inst.World()

	for _, d := range ev.DecisionStatements() {
		if cur := w.Value(d.Var()); cur != nil {
			if !model.ValuesEqual(cur, d.Value()) {
				return Zero, nil
			}
			continue
		}
		w.SetValue(d.Var(), d.Value())
	}

	var (
		observed []model.Var
		ours     []model.BasicVar
		derived  []*evidence.ValueStatement
	)
	for _, s := range ev.AllValueStatements() {
		v, ok := s.ObservedVar(inst)
		if err := inst.Err(); err != nil {
			return Zero, err
		}
		if !ok || v == nil {
			derived = append(derived, s)
			continue
		}
		if cur := w.Value(v); cur != nil {
			if !model.ValuesEqual(cur, s.ObservedValue()) {
				return Zero, nil
			}
			continue
		}
		w.SetValue(v, s.ObservedValue())
		observed = append(observed, v)
		ours = append(ours, v)
	}

	if err := inst.EnsureDetAndSupported(observed...); err != nil {
		return Zero, err
	}

	lik := 1.0
	for _, v := range ours {
		p, ok := w.ProbOfValue(v)
		if !ok {
			return Zero, fmt.Errorf("%w: observed %s is not supported", model.ErrIllegalState, v)
		}
		lik *= p
		if lik == 0 {
			return Zero, nil
		}
	}

	for _, s := range derived {
		holds, ok := s.IsTrue(inst)
		if err := inst.Err(); err != nil {
			return Zero, err
		}
		if !ok || !holds {
			return Zero, nil
		}
	}
	if err := checkRatio("evidence likelihood", lik); err != nil {
		return Zero, err
	}
	return LikelihoodAndWeight{Likelihood: lik, Weight: 1}, nil
}
