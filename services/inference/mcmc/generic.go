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

// GenericProposer resamples one uniformly chosen non-evidence variable
// from its distribution given its parents.
//
// Number variables are never resampled: choosing one yields a no-op
// proposal, so population sizes stay at their initial values.
//
// Thread Safety: Not safe for concurrent use.
type GenericProposer struct {
	base
}

// NewGenericProposer creates a generic proposer for m.
func NewGenericProposer(m *model.Model, rng *rand.Rand, opts ...Option) *GenericProposer {
	return &GenericProposer{base: newBase(m, rng, opts)}
}

// ProposeNextState implements Proposer.
//
// Description:
//
//	With no eligible variable, or when a number variable is drawn, d is
//	left unchanged and the ratio is 0 (a ratio of 1 in probability
//	space), so the caller never rejects spuriously.
func (p *GenericProposer) ProposeNextState(d *world.PartialWorldDiff) (float64, error) {
	if p.ev == nil {
		return 0, ErrNotInitialized
	}
	eligible := p.eligibleVars(d)
	if len(eligible) == 0 {
		return 0, nil
	}
	v := eligible[p.rng.Intn(len(eligible))]
	if _, ok := v.(*model.NumberVar); ok {
		return 0, nil
	}
	return p.move(d, v, -math.Log(float64(len(eligible))), p.selectionLogProb)
}

func (p *GenericProposer) selectionLogProb(w world.PartialWorld, _ model.BasicVar) float64 {
	n := len(p.eligibleVars(w))
	if n == 0 {
		return math.Inf(-1)
	}
	return -math.Log(float64(n))
}
