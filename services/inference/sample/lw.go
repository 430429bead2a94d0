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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/evalctx"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// Errors
var (
	// ErrNotInitialized is returned by NextSample before Initialize.
	ErrNotInitialized = errors.New("sampler not initialized")
)

// LWOption configures an LWSampler.
type LWOption func(*LWSampler)

// WithWeighter replaces the default weighter.
func WithWeighter(wt EvidenceLikelihoodWeighter) LWOption {
	return func(s *LWSampler) { s.weighter = wt }
}

// WithBaseWorld makes every sample a diff over base instead of a fresh
// world. base is never modified.
func WithBaseWorld(base world.PartialWorld) LWOption {
	return func(s *LWSampler) { s.base = base }
}

// WithIdentifierTypes makes fresh worlds represent objects of these
// types with identifiers.
func WithIdentifierTypes(types ...*model.Type) LWOption {
	return func(s *LWSampler) { s.idTypes = append(s.idTypes, types...) }
}

// WithMaxEvalDepth bounds the instantiation recursion per sample.
func WithMaxEvalDepth(n int) LWOption {
	return func(s *LWSampler) { s.maxDepth = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LWOption {
	return func(s *LWSampler) { s.logger = l }
}

// LWSampler is a likelihood-weighting sampler.
//
// Description:
//
//	Each NextSample starts from an empty world (or an empty diff over the
//	base world), lets the weighter fix the evidence, and then instantiates
//	what the queries need. The result is available through LatestWorld
//	and LatestWeight until the next call.
//
// Thread Safety: Not safe for concurrent use. Run one sampler per
// goroutine, each with its own random source.
type LWSampler struct {
	model    *model.Model
	rng      *rand.Rand
	weighter EvidenceLikelihoodWeighter
	base     world.PartialWorld
	idTypes  []*model.Type
	maxDepth int
	logger   *slog.Logger

	ev        *evidence.Evidence
	queryVars []model.Var

	latest       world.PartialWorld
	latestWeight float64
	stats        Stats
}

// NewLWSampler creates a likelihood-weighting sampler for m.
func NewLWSampler(m *model.Model, rng *rand.Rand, opts ...LWOption) *LWSampler {
	s := &LWSampler{
		model:    m,
		rng:      rng,
		weighter: DefaultWeighter{},
		maxDepth: evalctx.DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewLWImportanceSampler creates a likelihood-weighting sampler whose
// weighter chain is TupleSetWeighter, then SymbolWeighter, then
// DefaultWeighter. Options applied after the chain is installed may
// replace it.
func NewLWImportanceSampler(m *model.Model, rng *rand.Rand, opts ...LWOption) *LWSampler {
	chain := NewTupleSetWeighter(NewSymbolWeighter(DefaultWeighter{}))
	return NewLWSampler(m, rng, append([]LWOption{WithWeighter(chain)}, opts...)...)
}

// Initialize implements Sampler.
func (s *LWSampler) Initialize(_ context.Context, ev *evidence.Evidence, queries []evidence.Query) error {
	if ev == nil {
		ev = evidence.New()
	}
	if !ev.IsCompiled() {
		if err := ev.Compile(s.model); err != nil {
			return fmt.Errorf("compiling evidence: %w", err)
		}
	}
	s.ev = ev
	s.queryVars = s.queryVars[:0]
	for _, q := range queries {
		s.queryVars = append(s.queryVars, q.Variables()...)
	}
	s.latest = nil
	s.latestWeight = 0
	s.stats = Stats{}
	return nil
}

// Evidence returns the evidence the sampler was initialized with.
func (s *LWSampler) Evidence() *evidence.Evidence { return s.ev }

// StartTrial implements Sampler.
func (s *LWSampler) StartTrial() { s.stats.StartTrial() }

func (s *LWSampler) newWorld() world.PartialWorld {
	if s.base != nil {
		return world.NewDiff(s.base)
	}
	return world.NewDefaultPartialWorld(s.model, s.idTypes...)
}

// NextSample implements Sampler.
//
// Description:
//
//	Evidence that cannot hold gives weight 0; such samples are still
//	counted and the query variables are still instantiated so the world
//	is complete.
func (s *LWSampler) NextSample() error {
	if s.ev == nil {
		return ErrNotInitialized
	}
	w := s.newWorld()
	for _, dv := range s.ev.DerivedVars() {
		w.AddDerivedVar(dv)
	}
	inst := evalctx.New(w, s.rng, evalctx.WithMaxDepth(s.maxDepth))

	weight, err := LikelihoodSample(s.weighter, s.ev, inst)
	if err != nil {
		return fmt.Errorf("weighting evidence: %w", err)
	}
	if err := inst.EnsureDetAndSupported(s.queryVars...); err != nil {
		return fmt.Errorf("instantiating queries: %w", err)
	}

	s.latest = w
	s.latestWeight = weight
	s.stats.Record(weight)
	return nil
}

// LatestWorld implements Sampler.
func (s *LWSampler) LatestWorld() world.PartialWorld { return s.latest }

// LatestWeight implements Sampler.
func (s *LWSampler) LatestWeight() float64 { return s.latestWeight }

// Stats implements Sampler.
func (s *LWSampler) Stats() Stats { return s.stats }

// LogStats implements Sampler.
func (s *LWSampler) LogStats(logger *slog.Logger) {
	if logger == nil {
		logger = s.logger
	}
	logger.Info("likelihood weighting statistics", s.stats.Attrs()...)
}
