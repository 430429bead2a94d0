// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/openworld/services/inference/catalog"
	"github.com/AleutianAI/openworld/services/inference/config"
	"github.com/AleutianAI/openworld/services/inference/distrib"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/mcmc"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/results"
	"github.com/AleutianAI/openworld/services/inference/storage/badger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(props map[string]string) config.Config {
	cfg := config.Default()
	cfg.RandomSeed = 17
	cfg.ReportInterval = 0
	if err := cfg.Apply(props); err != nil {
		panic(err)
	}
	return cfg
}

func newEngine(t *testing.T, inst *catalog.Instance, cfg config.Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithIdentifierTypes(inst.IDTypes...)}, opts...)
	e, err := New(inst.Model, cfg, opts...)
	require.NoError(t, err)
	return e
}

func assertExact(t *testing.T, inst *catalog.Instance, h *evidence.Histogram, tol float64) {
	t.Helper()
	require.NotZero(t, h.Total())
	for v, want := range inst.Exact {
		got := 0.0
		for _, e := range h.Entries() {
			if model.ValueString(e.Value) == v {
				got = h.Prob(e.Value)
			}
		}
		assert.InDelta(t, want, got, tol, "P(%s)", v)
	}
}

func TestAnswer_Samplers(t *testing.T) {
	tests := []struct {
		scenario string
		props    map[string]string
		tol      float64
	}{
		{scenario: "bayesnet", props: map[string]string{"numSamples": "6000", "numChains": "2"}, tol: 0.03},
		{scenario: "sensor", props: map[string]string{"numSamples": "6000", "numChains": "2"}, tol: 0.03},
		{scenario: "urn", props: map[string]string{"numSamples": "6000", "numChains": "2", "samplerClass": "lwimportance"}, tol: 0.04},
		{scenario: "aircraft", props: map[string]string{"numSamples": "6000", "numChains": "2", "samplerClass": "lwimportance"}, tol: 0.04},
		{scenario: "switch", props: map[string]string{"numSamples": "30000", "burnIn": "2000", "samplerClass": "mh"}, tol: 0.06},
		{scenario: "weather", props: map[string]string{"numSamples": "30000", "burnIn": "2000", "samplerClass": "mh", "proposerClass": "decayed"}, tol: 0.08},
	}
	for _, tt := range tests {
		t.Run(tt.scenario+"/"+tt.props["samplerClass"], func(t *testing.T) {
			inst, err := catalog.Build(tt.scenario)
			require.NoError(t, err)
			e := newEngine(t, inst, testConfig(tt.props), WithModelName(tt.scenario))

			res, err := e.Answer(context.Background(), inst.Evidence, inst.Queries)
			require.NoError(t, err)
			require.Len(t, res.Histograms, len(inst.Queries))
			assertExact(t, inst, res.Histograms[0], tt.tol)

			// The caller's query now carries the merged estimate.
			assert.InDelta(t, res.Histograms[0].Total(), inst.Queries[0].Histogram().Total(), 1e-9)

			cfg := e.Config()
			stats := res.Stats()
			assert.Equal(t, cfg.NumChains*cfg.NumTrials*(cfg.NumSamples), stats.TotalSamples-burnInSamples(cfg))
			assert.Len(t, res.Chains, cfg.NumChains)
		})
	}
}

// burnInSamples is the number of discarded samples over all chains and
// trials.
func burnInSamples(cfg config.Config) int {
	if cfg.SamplerClass != config.SamplerMH {
		return 0
	}
	return cfg.NumChains * cfg.NumTrials * cfg.BurnIn
}

func TestAnswer_Trials(t *testing.T) {
	inst, err := catalog.Build("coin")
	require.NoError(t, err)
	e := newEngine(t, inst, testConfig(map[string]string{"numSamples": "500", "numTrials": "3"}))

	res, err := e.Answer(context.Background(), inst.Evidence, inst.Queries)
	require.NoError(t, err)
	require.Len(t, res.Trials, 3)
	for i, tr := range res.Trials {
		assert.Equal(t, i, tr.Trial)
		assert.InDelta(t, 500.0, tr.Histograms[0].Total(), 1e-9, "queries are zeroed between trials")
	}
	assert.InDelta(t, 1500.0, res.Histograms[0].Total(), 1e-9)
}

func TestAnswer_ReproducibleWithSeed(t *testing.T) {
	run := func() float64 {
		inst, err := catalog.Build("weather")
		require.NoError(t, err)
		e := newEngine(t, inst, testConfig(map[string]string{"numSamples": "800", "numChains": "3", "samplerClass": "mh"}))
		res, err := e.Answer(context.Background(), inst.Evidence, inst.Queries)
		require.NoError(t, err)
		h := res.Histograms[0]
		return h.Prob(h.Entries()[0].Value)
	}
	assert.Equal(t, run(), run())
}

func TestAnswer_Cancelled(t *testing.T) {
	inst, err := catalog.Build("bayesnet")
	require.NoError(t, err)
	e := newEngine(t, inst, testConfig(map[string]string{"numChains": "4"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Answer(ctx, inst.Evidence, inst.Queries)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnswer_NoQueries(t *testing.T) {
	inst, err := catalog.Build("coin")
	require.NoError(t, err)
	e := newEngine(t, inst, testConfig(nil))
	_, err = e.Answer(context.Background(), inst.Evidence, nil)
	assert.ErrorIs(t, err, ErrNoQueries)
}

func TestAnswer_InitExhausted(t *testing.T) {
	m := model.New()
	x := m.NewRandomFunction("X", model.BooleanType)
	x.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0})))
	require.NoError(t, m.Compile())
	ev := evidence.New()
	ev.AddValue(model.App(x), model.Const(true))
	q := evidence.NewTermQuery(model.App(x))
	require.NoError(t, q.Compile(m))

	e, err := New(m, testConfig(map[string]string{"samplerClass": "mh", "maxInitAttempts": "20", "numChains": "2"}))
	require.NoError(t, err)
	_, err = e.Answer(context.Background(), ev, []evidence.Query{q})
	assert.ErrorIs(t, err, mcmc.ErrInitExhausted)
}

func TestAnswer_AllSamplesZeroWeight(t *testing.T) {
	m := model.New()
	x := m.NewRandomFunction("X", model.BooleanType)
	x.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0})))
	y := m.NewRandomFunction("Y", model.BooleanType)
	y.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0.5})))
	require.NoError(t, m.Compile())
	ev := evidence.New()
	ev.AddValue(model.App(x), model.Const(true))
	q := evidence.NewTermQuery(model.App(y))
	require.NoError(t, q.Compile(m))

	e, err := New(m, testConfig(map[string]string{"numSamples": "200"}))
	require.NoError(t, err)
	res, err := e.Answer(context.Background(), ev, []evidence.Query{q})
	assert.ErrorIs(t, err, model.ErrNumericDegeneracy)
	assert.Nil(t, res)
	assert.Zero(t, q.Histogram().Total(), "no estimate is published")
}

func TestAnswer_MHWarnsOnFixedPopulation(t *testing.T) {
	tests := []struct {
		scenario string
		warns    bool
	}{
		{scenario: "aircraft", warns: true},
		{scenario: "urn", warns: true},
		{scenario: "bayesnet", warns: false},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			inst, err := catalog.Build(tt.scenario)
			require.NoError(t, err)
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
			e := newEngine(t, inst, testConfig(map[string]string{"numSamples": "300", "samplerClass": "mh"}),
				WithLogger(logger))

			res, err := e.Answer(context.Background(), inst.Evidence, inst.Queries)
			require.NoError(t, err)
			if !tt.warns {
				assert.NotContains(t, logs.String(), "population counts")
				return
			}
			assert.Equal(t, 1, bytes.Count(logs.Bytes(), []byte("population counts")))
			// The count never moves away from the initial world.
			assert.Len(t, res.Histograms[0].Entries(), 1)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	inst, err := catalog.Build("aircraft")
	require.NoError(t, err)

	_, err = New(inst.Model, testConfig(map[string]string{"idTypes": "Spaceship"}))
	assert.ErrorIs(t, err, config.ErrConfig)

	bad := testConfig(nil)
	bad.NumSamples = 0
	_, err = New(inst.Model, bad)
	assert.ErrorIs(t, err, config.ErrConfig)

	_, err = New(inst.Model, testConfig(map[string]string{"idTypes": "Aircraft"}))
	assert.NoError(t, err)
}

func TestAnswer_SavesRun(t *testing.T) {
	store, err := results.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	inst, err := catalog.Build("bayesnet")
	require.NoError(t, err)
	e := newEngine(t, inst, testConfig(map[string]string{"numSamples": "1000"}),
		WithStore(store), WithModelName("bayesnet"))

	res, err := e.Answer(context.Background(), inst.Evidence, inst.Queries)
	require.NoError(t, err)

	run, err := store.Load(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "bayesnet", run.Model)
	assert.Equal(t, config.SamplerLW, run.Sampler)
	assert.Equal(t, uint64(17), run.Seed)
	assert.Equal(t, 1000, run.Samples)
	require.Len(t, run.Queries, 1)
	assert.InDelta(t, res.Histograms[0].Prob(true), run.Queries[0].Prob("true"), 1e-12)
}

func TestSanitizeSampler(t *testing.T) {
	assert.Equal(t, "mh", sanitizeSampler("mh"))
	assert.Equal(t, "unknown", sanitizeSampler("gibbs"))
	assert.Equal(t, "unknown", sanitizeSampler(""))
}
