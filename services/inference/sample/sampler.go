// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sample provides likelihood-weighting samplers.
//
// An LWSampler draws each sample into a fresh partial world: a pluggable
// EvidenceLikelihoodWeighter fixes the evidence and returns its likelihood
// and importance weight, then the query variables are lazily instantiated
// so the world can answer the queries. Weighters compose in a chain, each
// claiming the statements it handles well and forwarding the rest.
package sample

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// Sampler produces a sequence of weighted partial worlds.
type Sampler interface {
	// Initialize prepares the sampler for evidence and queries.
	Initialize(ctx context.Context, ev *evidence.Evidence, queries []evidence.Query) error

	// StartTrial resets the per-trial statistics.
	StartTrial()

	// NextSample generates the next world.
	NextSample() error

	// LatestWorld returns the world generated by the last NextSample.
	LatestWorld() world.PartialWorld

	// LatestWeight returns the weight of LatestWorld. Zero means the world
	// is inconsistent with the evidence.
	LatestWeight() float64

	// Stats returns a snapshot of the running counters.
	Stats() Stats

	// LogStats logs the running counters.
	LogStats(logger *slog.Logger)
}

// Stats holds sampler diagnostics.
type Stats struct {
	TotalSamples    int
	TotalConsistent int
	TrialSamples    int
	TrialConsistent int
	TrialWeightSum  float64

	// MCMC only.
	InitAttempts   int
	TotalProposals int
	TotalAccepted  int
	TrialProposals int
	TrialAccepted  int
}

// StartTrial zeroes the per-trial counters.
func (s *Stats) StartTrial() {
	s.TrialSamples = 0
	s.TrialConsistent = 0
	s.TrialWeightSum = 0
	s.TrialProposals = 0
	s.TrialAccepted = 0
}

// Record counts one sample of the given weight.
func (s *Stats) Record(weight float64) {
	s.TotalSamples++
	s.TrialSamples++
	s.TrialWeightSum += weight
	if weight > 0 {
		s.TotalConsistent++
		s.TrialConsistent++
	}
}

// Attrs returns the counters as slog attributes.
func (s Stats) Attrs() []any {
	attrs := []any{
		slog.Int("total_samples", s.TotalSamples),
		slog.Int("total_consistent", s.TotalConsistent),
		slog.Int("trial_samples", s.TrialSamples),
		slog.Int("trial_consistent", s.TrialConsistent),
		slog.Float64("trial_weight_sum", s.TrialWeightSum),
	}
	if s.TotalProposals > 0 || s.InitAttempts > 0 {
		attrs = append(attrs, s.ProposalAttrs()...)
	}
	return attrs
}

// ProposalAttrs returns only the MCMC counters as slog attributes.
func (s Stats) ProposalAttrs() []any {
	return []any{
		slog.Int("init_attempts", s.InitAttempts),
		slog.Int("total_proposals", s.TotalProposals),
		slog.Int("total_accepted", s.TotalAccepted),
		slog.Int("trial_proposals", s.TrialProposals),
		slog.Int("trial_accepted", s.TrialAccepted),
	}
}
