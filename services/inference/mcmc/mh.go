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
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/sample"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// MHSampler is a Metropolis-Hastings sampler driven by a Proposer.
//
// Description:
//
//	Each NextSample asks the proposer for a move on the current diff,
//	computes the world probability ratio from the diff's change views,
//	and either saves or reverts the diff. Every state of the chain has
//	weight 1.
//
// Thread Safety: Not safe for concurrent use.
type MHSampler struct {
	proposer Proposer
	rng      *rand.Rand
	logger   *slog.Logger

	ev    *evidence.Evidence
	diff  *world.PartialWorldDiff
	stats sample.Stats
}

var _ sample.Sampler = (*MHSampler)(nil)

// NewMHSampler creates a sampler over proposer. rng drives the accept
// decisions and may be shared with the proposer.
func NewMHSampler(proposer Proposer, rng *rand.Rand, logger *slog.Logger) *MHSampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MHSampler{proposer: proposer, rng: rng, logger: logger}
}

// Initialize implements sample.Sampler.
func (s *MHSampler) Initialize(ctx context.Context, ev *evidence.Evidence, queries []evidence.Query) error {
	d, err := s.proposer.Initialize(ctx, ev, queries)
	if err != nil {
		return err
	}
	s.ev = ev
	s.diff = d
	s.stats = sample.Stats{InitAttempts: s.proposer.Stats().InitAttempts}
	return nil
}

// StartTrial implements sample.Sampler.
func (s *MHSampler) StartTrial() {
	s.stats.StartTrial()
	s.proposer.StartTrial()
}

// NextSample implements sample.Sampler.
func (s *MHSampler) NextSample() error {
	if s.diff == nil {
		return ErrNotInitialized
	}
	logProposal, err := s.proposer.ProposeNextState(s.diff)
	if err != nil {
		s.diff.Revert()
		return err
	}

	accept := false
	logWorld, err := s.logWorldRatio()
	if err != nil {
		s.diff.Revert()
		return err
	}
	if !math.IsInf(logWorld, -1) {
		logA := logProposal + logWorld
		if math.IsNaN(logA) {
			s.diff.Revert()
			return fmt.Errorf("%w: acceptance ratio", model.ErrNumericDegeneracy)
		}
		accept = logA >= 0 || s.rng.Float64() < math.Exp(logA)
	}

	if accept {
		s.diff.Save()
	} else {
		s.diff.Revert()
	}
	s.proposer.UpdateStats(accept)
	s.stats.TotalProposals++
	s.stats.TrialProposals++
	if accept {
		s.stats.TotalAccepted++
		s.stats.TrialAccepted++
	}
	s.stats.Record(1)
	return nil
}

// logWorldRatio is log p(proposed) - log p(saved).
func (s *MHSampler) logWorldRatio() (float64, error) {
	d := s.diff
	if len(d.NewlyOverloadedNumberVars()) > 0 {
		return math.Inf(-1), nil
	}
	holds, ok := s.ev.IsTrue(d)
	if !ok || !holds {
		return math.Inf(-1), nil
	}

	saved := d.Saved()
	total := 0.0
	for _, v := range d.VarsWithChangedProbs() {
		now, err := logProbIfInstantiated(d, v)
		if err != nil {
			return 0, err
		}
		before, err := logProbIfInstantiated(saved, v)
		if err != nil {
			return 0, err
		}
		total += now - before
	}
	for _, nv := range d.NumberVarsWithChangedMultipliers() {
		total += d.LogMultiplier(nv) - saved.LogMultiplier(nv)
	}
	return total, nil
}

func logProbIfInstantiated(w world.PartialWorld, v model.BasicVar) (float64, error) {
	if !w.IsInstantiated(v) {
		return 0, nil
	}
	lp, ok := w.LogProbOfValue(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s is instantiated but not supported", model.ErrIllegalState, v)
	}
	return lp, nil
}

// LatestWorld implements sample.Sampler. It is the current state of the
// chain.
func (s *MHSampler) LatestWorld() world.PartialWorld { return s.diff }

// LatestWeight implements sample.Sampler.
func (s *MHSampler) LatestWeight() float64 { return 1 }

// Stats implements sample.Sampler.
func (s *MHSampler) Stats() sample.Stats { return s.stats }

// AcceptanceRate returns the fraction of accepted proposals.
func (s *MHSampler) AcceptanceRate() float64 {
	if s.stats.TotalProposals == 0 {
		return 0
	}
	return float64(s.stats.TotalAccepted) / float64(s.stats.TotalProposals)
}

// LogStats implements sample.Sampler.
func (s *MHSampler) LogStats(logger *slog.Logger) {
	if logger == nil {
		logger = s.logger
	}
	logger.Info("metropolis-hastings statistics",
		append(s.stats.Attrs(), slog.Float64("acceptance_rate", s.AcceptanceRate()))...)
	s.proposer.LogStats(logger)
}
