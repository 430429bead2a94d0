// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcmc provides Metropolis-Hastings inference over partial worlds.
//
// A Proposer mutates a PartialWorldDiff by resampling one variable,
// repairs self-support, prunes variables that no longer matter, and
// reports the log proposal ratio. MHSampler turns proposals into a chain
// by accepting (Save) or rejecting (Revert) each diff.
package mcmc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/hashicorp/go-set/v3"
	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/evalctx"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/sample"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// Errors
var (
	// ErrInitExhausted is returned when no initial world consistent with
	// the evidence was found within the attempt budget.
	ErrInitExhausted = errors.New("no consistent initial world found")

	// ErrNotInitialized is returned by proposals before Initialize.
	ErrNotInitialized = errors.New("proposer not initialized")
)

// Proposer is a Metropolis-Hastings proposal distribution.
type Proposer interface {
	// Initialize builds an initial world consistent with ev and returns a
	// diff over it.
	Initialize(ctx context.Context, ev *evidence.Evidence, queries []evidence.Query) (*world.PartialWorldDiff, error)

	// ProposeNextState mutates d and returns log q(backward) - log
	// q(forward).
	ProposeNextState(d *world.PartialWorldDiff) (float64, error)

	// UpdateStats records the fate of the last proposal.
	UpdateStats(accepted bool)

	// StartTrial resets the per-trial statistics.
	StartTrial()

	Stats() sample.Stats
	LogStats(logger *slog.Logger)
}

// Option configures a proposer.
type Option func(*base)

// WithIdentifierTypes makes the initial world represent objects of these
// types with identifiers.
func WithIdentifierTypes(types ...*model.Type) Option {
	return func(b *base) { b.idTypes = append(b.idTypes, types...) }
}

// WithMaxInitAttempts bounds the rejection search for an initial world.
// Zero means unbounded.
func WithMaxInitAttempts(n int) Option {
	return func(b *base) { b.maxInitAttempts = n }
}

// WithMaxEvalDepth bounds the instantiation recursion.
func WithMaxEvalDepth(n int) Option {
	return func(b *base) { b.maxDepth = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// base holds what every proposer shares: evidence, queries, statistics
// and the resample-repair-prune move.
type base struct {
	model           *model.Model
	rng             *rand.Rand
	idTypes         []*model.Type
	maxInitAttempts int
	maxDepth        int
	logger          *slog.Logger

	ev      *evidence.Evidence
	queries []evidence.Query
	stats   sample.Stats
}

func newBase(m *model.Model, rng *rand.Rand, opts []Option) base {
	b := base{
		model:    m,
		rng:      rng,
		maxDepth: evalctx.DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Initialize implements Proposer by rejection sampling against
// likelihood weighting.
//
// Description:
//
//	Every attempt is counted. The search stops at the first world of
//	positive weight, when the attempt budget runs out, or when ctx is
//	done. The evidence and query derived variables are registered in the
//	returned world so that their parents are never pruned.
func (b *base) Initialize(ctx context.Context, ev *evidence.Evidence, queries []evidence.Query) (*world.PartialWorldDiff, error) {
	lw := sample.NewLWSampler(b.model, b.rng,
		sample.WithIdentifierTypes(b.idTypes...),
		sample.WithMaxEvalDepth(b.maxDepth),
		sample.WithLogger(b.logger),
	)
	if err := lw.Initialize(ctx, ev, queries); err != nil {
		return nil, err
	}
	b.ev = lw.Evidence()
	b.queries = queries

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.maxInitAttempts > 0 && attempt > b.maxInitAttempts {
			return nil, fmt.Errorf("%w after %d attempts", ErrInitExhausted, b.maxInitAttempts)
		}
		if err := lw.NextSample(); err != nil {
			return nil, fmt.Errorf("initial world: %w", err)
		}
		b.stats.InitAttempts++
		if lw.LatestWeight() > 0 {
			break
		}
	}

	w := lw.LatestWorld()
	for _, q := range queries {
		for _, v := range q.Variables() {
			if dv, ok := v.(*model.DerivedVar); ok {
				w.AddDerivedVar(dv)
			}
		}
	}
	b.logger.Debug("initial world found",
		slog.Int("attempts", b.stats.InitAttempts),
		slog.Int("instantiated", w.NumInstantiatedVars()),
	)
	return world.NewDiff(w), nil
}

// UpdateStats implements Proposer.
func (b *base) UpdateStats(accepted bool) {
	b.stats.TotalProposals++
	b.stats.TrialProposals++
	if accepted {
		b.stats.TotalAccepted++
		b.stats.TrialAccepted++
	}
}

// StartTrial implements Proposer.
func (b *base) StartTrial() { b.stats.StartTrial() }

// Stats implements Proposer.
func (b *base) Stats() sample.Stats { return b.stats }

// LogStats implements Proposer.
func (b *base) LogStats(logger *slog.Logger) {
	if logger == nil {
		logger = b.logger
	}
	logger.Info("proposer statistics", b.stats.ProposalAttrs()...)
}

// evidenceKeys returns the keys of the basic variables the evidence fixes
// in w.
func (b *base) evidenceKeys(w world.PartialWorld) *set.Set[string] {
	if b.ev == nil {
		return set.New[string](0)
	}
	return b.ev.BasicVars(w)
}

// eligibleVars returns the instantiated variables a move may resample,
// in variable order.
func (b *base) eligibleVars(w world.PartialWorld) []model.BasicVar {
	fixed := b.evidenceKeys(w)
	var out []model.BasicVar
	for _, v := range w.InstantiatedVars() {
		if !fixed.Contains(v.Key()) {
			out = append(out, v)
		}
	}
	return out
}

// protectedKeys returns the variables pruning must keep: the evidence
// variables and everything a query reads directly.
func (b *base) protectedKeys(w world.PartialWorld) *set.Set[string] {
	keep := b.evidenceKeys(w)
	for _, q := range b.queries {
		for _, v := range q.Variables() {
			switch v := v.(type) {
			case model.BasicVar:
				keep.Insert(v.Key())
			case *model.DerivedVar:
				for _, p := range w.Parents(v) {
					keep.Insert(p.Key())
				}
			}
		}
	}
	return keep
}

// selectionLogProb is the log-probability that a proposer picks v in w.
type selectionLogProb func(w world.PartialWorld, v model.BasicVar) float64

// move resamples v in d and returns the log proposal ratio.
//
// Description:
//
//	logForward starts as the log-probability of having selected v. The
//	new value's probability and everything sampled while repairing v's
//	children go to the forward direction. The old value's probability,
//	the pre-move probabilities of every pruned barren variable, and the
//	probability of selecting v again in the post-move world go to the
//	backward direction.
func (b *base) move(d *world.PartialWorldDiff, v model.BasicVar, logForward float64, backwardSel selectionLogProb) (float64, error) {
	children := d.Children(v)
	oldLP, ok := d.LogProbOfValue(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not supported", model.ErrIllegalState, v)
	}

	inst := evalctx.New(d, b.rng, evalctx.WithMaxDepth(b.maxDepth))
	dist, ok := v.Distrib(inst)
	if err := inst.Err(); err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: distribution of %s is not determined", model.ErrIllegalState, v)
	}
	newVal := dist.Sample(v.Type(), b.rng)
	if newVal == nil {
		return 0, fmt.Errorf("%w: %s sampled no value", model.ErrIllegalState, v)
	}
	logForward += dist.LogProb(newVal)
	logBackward := oldLP
	d.SetValue(v, newVal)

	var repair []model.Var
	for _, c := range children {
		if bv, isBasic := c.(model.BasicVar); isBasic && !d.IsInstantiated(bv) {
			continue
		}
		repair = append(repair, c)
	}
	for _, dv := range d.DerivedVars() {
		repair = append(repair, dv)
	}
	if err := inst.EnsureDetAndSupported(repair...); err != nil {
		return 0, err
	}
	logForward += inst.LogProbability()

	pruned, err := b.pruneBarren(d)
	if err != nil {
		return 0, err
	}
	logBackward += pruned
	logBackward += backwardSel(d, v)

	ratio := logBackward - logForward
	if math.IsNaN(ratio) {
		return 0, fmt.Errorf("%w: proposal ratio for %s", model.ErrNumericDegeneracy, v)
	}
	return ratio, nil
}

// pruneBarren uninstantiates newly barren variables, transitively, and
// returns the summed log-probability their values had before the move.
// Evidence and query variables and number variables with asserted
// identifiers are kept.
func (b *base) pruneBarren(d *world.PartialWorldDiff) (float64, error) {
	keep := b.protectedKeys(d)
	saved := d.Saved()
	total := 0.0
	queue := d.NewlyBarrenVars()
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		if keep.Contains(x.Key()) || !d.IsInstantiated(x) || !d.IsBarren(x) {
			continue
		}
		if nv, ok := x.(*model.NumberVar); ok && len(d.AssertedIdentifiers(nv)) > 0 {
			continue
		}
		lp, ok := saved.LogProbOfValue(x)
		if !ok {
			if lp, ok = d.LogProbOfValue(x); !ok {
				return 0, fmt.Errorf("%w: barren %s is not supported", model.ErrIllegalState, x)
			}
		}
		parents := d.Parents(x)
		d.SetValue(x, nil)
		total += lp
		queue = append(queue, parents...)
	}
	return total, nil
}
