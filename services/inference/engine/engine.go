// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine answers queries by running configured samplers.
//
// An Engine builds one sampler per chain from its configuration, runs
// numTrials trials of numSamples samples on every chain and merges the
// per-chain query histograms. Chains run concurrently and share only the
// model and the compiled evidence; each owns its worlds, random stream and
// query copies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/openworld/services/inference/config"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/mcmc"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/results"
	"github.com/AleutianAI/openworld/services/inference/sample"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// Errors
var (
	// ErrNoQueries is returned by Answer when there is nothing to estimate.
	ErrNoQueries = errors.New("no queries")
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStore persists every successful run to s.
func WithStore(s *results.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithModelName names the model in logs and stored runs.
func WithModelName(name string) Option {
	return func(e *Engine) { e.modelName = name }
}

// WithIdentifierTypes adds types whose objects MH chains represent by
// object identifiers, on top of those named by the configuration.
// Likelihood weighting always samples them as generated objects.
func WithIdentifierTypes(types ...*model.Type) Option {
	return func(e *Engine) { e.idTypes = append(e.idTypes, types...) }
}

// Engine runs inference for one model.
//
// Thread Safety: Answer may be called concurrently with distinct query
// slices.
type Engine struct {
	model     *model.Model
	cfg       config.Config
	idTypes   []*model.Type
	logger    *slog.Logger
	store     *results.Store
	modelName string
	tracer    *engineTracer
}

// New creates an engine for m.
//
// Outputs:
//
//	*Engine - The engine.
//	error - config.ErrConfig if cfg is invalid or names an unknown type.
func New(m *model.Model, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		model:     m,
		cfg:       cfg,
		logger:    slog.Default(),
		modelName: "model",
		tracer:    newEngineTracer(cfg.Tracing),
	}
	for _, name := range cfg.IDTypes {
		t, ok := m.Type(name)
		if !ok {
			return nil, fmt.Errorf("%w: idTypes: unknown type %q", config.ErrConfig, name)
		}
		e.idTypes = append(e.idTypes, t)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() config.Config { return e.cfg }

// TrialResult holds the estimates of one trial, merged over chains.
type TrialResult struct {
	Trial      int
	Histograms []*evidence.Histogram
}

// Result is the outcome of Answer.
type Result struct {
	RunID uuid.UUID
	Seed  uint64

	// Histograms are the estimates over all trials and chains, aligned
	// with the queries passed to Answer.
	Histograms []*evidence.Histogram
	Trials     []TrialResult

	// Chains holds the final statistics of every chain.
	Chains  []sample.Stats
	Elapsed time.Duration
}

// Stats sums the statistics of all chains.
func (r *Result) Stats() sample.Stats {
	var s sample.Stats
	for _, c := range r.Chains {
		s.TotalSamples += c.TotalSamples
		s.TotalConsistent += c.TotalConsistent
		s.InitAttempts += c.InitAttempts
		s.TotalProposals += c.TotalProposals
		s.TotalAccepted += c.TotalAccepted
	}
	return s
}

type chainResult struct {
	trials [][]*evidence.Histogram
	stats  sample.Stats
}

// Answer estimates the posterior of every query given ev.
//
// Description:
//
//	Compiles ev if needed, runs NumChains chains concurrently and merges
//	their histograms. On success each query's statistics are replaced by
//	the merged estimate, and the run is saved when a store is configured.
//	The first chain error cancels the other chains.
//
// Inputs:
//
//	ctx - Cancels sampling between samples and initialization attempts.
//	ev - Evidence; nil means none.
//	queries - Compiled queries. At least one is required.
//
// Outputs:
//
//	*Result - Merged estimates and statistics.
//	error - Non-nil if a chain failed or ctx was cancelled.
func (e *Engine) Answer(ctx context.Context, ev *evidence.Evidence, queries []evidence.Query) (res *Result, err error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	if ev == nil {
		ev = evidence.New()
	}
	if !ev.IsCompiled() {
		if err := ev.Compile(e.model); err != nil {
			return nil, fmt.Errorf("compiling evidence: %w", err)
		}
	}

	runID := uuid.New()
	seed := e.cfg.Seed()
	start := time.Now()
	ctx, span := e.tracer.startRun(ctx, runID.String(), e.cfg)
	logger := loggerWithTrace(ctx, e.logger).With(slog.String("run_id", runID.String()))
	defer func() {
		if e.cfg.Metrics {
			recordRun(e.cfg.SamplerClass, time.Since(start), err)
		}
		var stats *sample.Stats
		if res != nil {
			s := res.Stats()
			stats = &s
		}
		end(span, stats, err)
	}()

	logger.Info("inference run started",
		slog.String("model", e.modelName),
		slog.String("sampler", e.cfg.SamplerClass),
		slog.Int("chains", e.cfg.NumChains),
		slog.Int("trials", e.cfg.NumTrials),
		slog.Int("samples", e.cfg.NumSamples),
		slog.Uint64("seed", seed),
	)

	chains := make([]chainResult, e.cfg.NumChains)
	g, gctx := errgroup.WithContext(ctx)
	for i := range chains {
		g.Go(func() error {
			r, err := e.runChain(gctx, logger.With(slog.Int("chain", i)), i, seed, ev, queries)
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			chains[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("inference run failed", slog.String("error", err.Error()))
		return nil, err
	}

	res = merge(chains, len(queries))
	res.RunID = runID
	res.Seed = seed
	res.Elapsed = time.Since(start)
	for i, q := range queries {
		q.SetPosterior(res.Histograms[i])
		q.LogResults(logger)
	}
	stats := res.Stats()
	logger.Info("inference run finished",
		slog.Duration("elapsed", res.Elapsed),
		slog.Int("samples", stats.TotalSamples),
		slog.Int("consistent", stats.TotalConsistent),
	)

	if e.store != nil {
		if err := e.store.Save(ctx, e.record(res, queries, start)); err != nil {
			return nil, fmt.Errorf("saving run %s: %w", runID, err)
		}
	}
	return res, nil
}

func merge(chains []chainResult, nq int) *Result {
	res := &Result{Histograms: make([]*evidence.Histogram, nq)}
	for i := range res.Histograms {
		res.Histograms[i] = evidence.NewHistogram()
	}
	if len(chains) == 0 {
		return res
	}
	for t := range chains[0].trials {
		tr := TrialResult{Trial: t, Histograms: make([]*evidence.Histogram, nq)}
		for qi := range tr.Histograms {
			h := evidence.NewHistogram()
			for _, c := range chains {
				h.Merge(c.trials[t][qi])
			}
			tr.Histograms[qi] = h
			res.Histograms[qi].Merge(h)
		}
		res.Trials = append(res.Trials, tr)
	}
	for _, c := range chains {
		res.Chains = append(res.Chains, c.stats)
	}
	return res
}

func (e *Engine) record(res *Result, queries []evidence.Query, start time.Time) *results.Run {
	stats := res.Stats()
	run := &results.Run{
		ID:         res.RunID,
		Model:      e.modelName,
		Sampler:    e.cfg.SamplerClass,
		Seed:       res.Seed,
		Chains:     e.cfg.NumChains,
		StartedAt:  start.UTC(),
		Duration:   res.Elapsed,
		Samples:    stats.TotalSamples,
		Consistent: stats.TotalConsistent,
	}
	for _, q := range queries {
		run.Queries = append(run.Queries, results.NewQueryResult(q))
	}
	return run
}

// newSampler builds the configured sampler over rng.
func (e *Engine) newSampler(rng *rand.Rand, logger *slog.Logger) (sample.Sampler, error) {
	switch e.cfg.SamplerClass {
	case config.SamplerLW, config.SamplerLWImportance:
		opts := []sample.LWOption{
			sample.WithMaxEvalDepth(e.cfg.MaxEvalDepth),
			sample.WithLogger(logger),
		}
		if e.cfg.SamplerClass == config.SamplerLWImportance {
			return sample.NewLWImportanceSampler(e.model, rng, opts...), nil
		}
		return sample.NewLWSampler(e.model, rng, opts...), nil

	case config.SamplerMH:
		opts := []mcmc.Option{
			mcmc.WithIdentifierTypes(e.idTypes...),
			mcmc.WithMaxInitAttempts(e.cfg.MaxInitAttempts),
			mcmc.WithMaxEvalDepth(e.cfg.MaxEvalDepth),
			mcmc.WithLogger(logger),
		}
		var p mcmc.Proposer
		switch e.cfg.ProposerClass {
		case config.ProposerGeneric:
			p = mcmc.NewGenericProposer(e.model, rng, opts...)
		case config.ProposerDecayed:
			p = mcmc.NewDecayedProposer(e.model, rng, e.cfg.Decay, opts...)
		default:
			return nil, fmt.Errorf("%w: proposer class %q", config.ErrConfig, e.cfg.ProposerClass)
		}
		return mcmc.NewMHSampler(p, rng, logger), nil
	}
	return nil, fmt.Errorf("%w: sampler class %q", config.ErrConfig, e.cfg.SamplerClass)
}

// runChain runs every trial on one chain with its own sampler and query
// copies.
func (e *Engine) runChain(ctx context.Context, logger *slog.Logger, chain int, seed uint64, ev *evidence.Evidence, queries []evidence.Query) (chainResult, error) {
	var res chainResult
	qs := make([]evidence.Query, len(queries))
	for i, q := range queries {
		qs[i] = q.Clone()
		if err := qs[i].Compile(e.model); err != nil {
			return res, err
		}
	}

	rng := rand.New(rand.NewSource(seed + uint64(chain)))
	s, err := e.newSampler(rng, logger)
	if err != nil {
		return res, err
	}

	initCtx, span := e.tracer.startInit(ctx, chain)
	err = s.Initialize(initCtx, ev, qs)
	st := s.Stats()
	end(span, &st, err)
	if err != nil {
		return res, fmt.Errorf("initialize: %w", err)
	}

	burnIn := 0
	if e.cfg.SamplerClass == config.SamplerMH {
		burnIn = e.cfg.BurnIn
		if chain == 0 {
			warnFixedPopulations(logger, s.LatestWorld(), qs)
		}
	}
	progress := &rate.Sometimes{Interval: e.cfg.ReportInterval}

	for trial := 0; trial < e.cfg.NumTrials; trial++ {
		tctx, tspan := e.tracer.startTrial(ctx, chain, trial)
		before := s.Stats()
		hists, err := e.runTrial(tctx, s, qs, burnIn, progress, logger.With(slog.Int("trial", trial)))
		after := s.Stats()
		end(tspan, &after, err)
		if err != nil {
			return res, fmt.Errorf("trial %d: %w", trial, err)
		}
		if e.cfg.Metrics {
			recordTrial(e.cfg.SamplerClass, before, after)
		}
		s.LogStats(logger.With(slog.Int("trial", trial)))
		res.trials = append(res.trials, hists)
	}
	res.stats = s.Stats()
	return res, nil
}

// fixedPopulations returns the number variables that are active parents of
// a query variable in w, ordered by key.
func fixedPopulations(w world.PartialWorld, qs []evidence.Query) []*model.NumberVar {
	seen := make(map[string]bool)
	var out []*model.NumberVar
	for _, q := range qs {
		for _, v := range q.Variables() {
			for _, p := range w.Parents(v) {
				nv, ok := p.(*model.NumberVar)
				if !ok || seen[nv.Key()] {
					continue
				}
				seen[nv.Key()] = true
				out = append(out, nv)
			}
		}
	}
	slices.SortFunc(out, func(a, b *model.NumberVar) int { return strings.Compare(a.Key(), b.Key()) })
	return out
}

// warnFixedPopulations logs once per run when a query reads a population
// count. The MH proposers never resample number variables, so such a query
// reports the count of the initial world with certainty.
func warnFixedPopulations(logger *slog.Logger, w world.PartialWorld, qs []evidence.Query) {
	nvs := fixedPopulations(w, qs)
	if len(nvs) == 0 {
		return
	}
	names := make([]string, len(nvs))
	for i, nv := range nvs {
		names[i] = nv.String()
	}
	logger.Warn("queries depend on population counts that mh keeps fixed at their initial values",
		slog.Any("number_vars", names),
	)
}

// runTrial zeroes the queries, draws burnIn+NumSamples samples and returns
// copies of the query histograms. A trial whose kept samples all have zero
// weight fails with model.ErrNumericDegeneracy instead of producing an
// empty estimate.
func (e *Engine) runTrial(ctx context.Context, s sample.Sampler, qs []evidence.Query, burnIn int, progress *rate.Sometimes, logger *slog.Logger) ([]*evidence.Histogram, error) {
	s.StartTrial()
	for _, q := range qs {
		q.ZeroOut()
	}
	total := burnIn + e.cfg.NumSamples
	kept := 0.0
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.NextSample(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if i >= burnIn {
			if w := s.LatestWeight(); w > 0 {
				kept += w
				latest := s.LatestWorld()
				for _, q := range qs {
					if err := q.UpdateStats(latest, w); err != nil {
						return nil, fmt.Errorf("sample %d: %w", i, err)
					}
				}
			}
		}
		if e.cfg.ReportInterval > 0 {
			progress.Do(func() {
				st := s.Stats()
				logger.Info("sampling progress",
					slog.Int("sample", i+1),
					slog.Int("of", total),
					slog.Int("trial_consistent", st.TrialConsistent),
				)
			})
		}
	}

	if kept == 0 {
		return nil, fmt.Errorf("%w: all %d samples have zero weight", model.ErrNumericDegeneracy, e.cfg.NumSamples)
	}

	out := make([]*evidence.Histogram, len(qs))
	for i, q := range qs {
		out[i] = q.Histogram().Clone()
	}
	return out, nil
}
