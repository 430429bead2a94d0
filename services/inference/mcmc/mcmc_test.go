// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcmc_test

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/catalog"
	"github.com/AleutianAI/openworld/services/inference/distrib"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/mcmc"
	"github.com/AleutianAI/openworld/services/inference/model"
)

func build(t *testing.T, name string) *catalog.Instance {
	t.Helper()
	inst, err := catalog.Build(name)
	require.NoError(t, err)
	return inst
}

func TestGenericProposer_RatioIsReplayable(t *testing.T) {
	ratios := func() []float64 {
		inst := build(t, "weather")
		p := mcmc.NewGenericProposer(inst.Model, rand.New(rand.NewSource(11)))
		d, err := p.Initialize(context.Background(), inst.Evidence, inst.Queries)
		require.NoError(t, err)
		var out []float64
		for i := 0; i < 25; i++ {
			r, err := p.ProposeNextState(d)
			require.NoError(t, err)
			out = append(out, r)
			if i%2 == 0 {
				d.Save()
			} else {
				d.Revert()
			}
		}
		return out
	}
	first, second := ratios(), ratios()
	assert.Equal(t, first, second)
}

func TestGenericProposer_SingleVariableRatio(t *testing.T) {
	inst := build(t, "bayesnet")
	x := inst.Model.FuncAppVar(inst.Model.MustFunction("X"))
	p := mcmc.NewGenericProposer(inst.Model, rand.New(rand.NewSource(2)))
	d, err := p.Initialize(context.Background(), inst.Evidence, inst.Queries)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		before, ok := d.LogProbOfValue(x)
		require.True(t, ok)
		r, err := p.ProposeNextState(d)
		require.NoError(t, err)
		after, ok := d.LogProbOfValue(x)
		require.True(t, ok)
		// X is the only eligible variable, so selection cancels out.
		assert.InDelta(t, before-after, r, 1e-12)
		d.Revert()
	}
}

func TestGenericProposer_NoEligibleVariables(t *testing.T) {
	m := model.New()
	heads := m.NewRandomFunction("Heads", model.BooleanType)
	heads.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0.3})))
	require.NoError(t, m.Compile())
	ev := evidence.New()
	ev.AddValue(model.App(heads), model.Const(true))

	p := mcmc.NewGenericProposer(m, rand.New(rand.NewSource(1)))
	d, err := p.Initialize(context.Background(), ev, nil)
	require.NoError(t, err)
	r, err := p.ProposeNextState(d)
	require.NoError(t, err)
	assert.Zero(t, r)
	assert.Empty(t, d.ChangedVars())
}

func TestGenericProposer_NumberVarIsNoOp(t *testing.T) {
	m := model.New()
	ball := m.NewType("Ball")
	m.NewPOP(ball).SetNumberStatement(model.NewDependencyModel(model.Otherwise(distrib.UniformInt{Lo: 1, Hi: 3})))
	require.NoError(t, m.Compile())
	q := evidence.NewTermQuery(model.Card(model.SetOf(model.NewLogicalVar("b", ball), nil)))
	require.NoError(t, q.Compile(m))

	p := mcmc.NewGenericProposer(m, rand.New(rand.NewSource(4)))
	d, err := p.Initialize(context.Background(), evidence.New(), []evidence.Query{q})
	require.NoError(t, err)
	require.Equal(t, 1, d.NumInstantiatedVars())

	for i := 0; i < 5; i++ {
		r, err := p.ProposeNextState(d)
		require.NoError(t, err)
		assert.Zero(t, r)
		assert.Empty(t, d.ChangedVars())
	}
}

func TestGenericProposer_PrunesBarrenParents(t *testing.T) {
	inst := build(t, "switch")
	m := inst.Model
	sw := m.FuncAppVar(m.MustFunction("Switch"))
	a := m.FuncAppVar(m.MustFunction("A"))
	b := m.FuncAppVar(m.MustFunction("B"))

	p := mcmc.NewGenericProposer(m, rand.New(rand.NewSource(8)))
	d, err := p.Initialize(context.Background(), inst.Evidence, inst.Queries)
	require.NoError(t, err)

	flips := 0
	for i := 0; i < 200 && flips < 3; i++ {
		before := d.Value(sw)
		r, err := p.ProposeNextState(d)
		require.NoError(t, err)
		after := d.Value(sw)
		if before != after {
			flips++
			on := after.(bool)
			assert.Equal(t, on, d.IsInstantiated(a), "A is a parent of Out only while Switch holds")
			assert.Equal(t, !on, d.IsInstantiated(b))
			assert.False(t, math.IsNaN(r))
		}
		d.Revert()
	}
	assert.Positive(t, flips)
}

func TestProposer_InitExhausted(t *testing.T) {
	m := model.New()
	x := m.NewRandomFunction("X", model.BooleanType)
	x.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0})))
	require.NoError(t, m.Compile())
	ev := evidence.New()
	ev.AddValue(model.App(x), model.Const(true))

	p := mcmc.NewGenericProposer(m, rand.New(rand.NewSource(1)), mcmc.WithMaxInitAttempts(5))
	_, err := p.Initialize(context.Background(), ev, nil)
	assert.ErrorIs(t, err, mcmc.ErrInitExhausted)
	assert.Equal(t, 5, p.Stats().InitAttempts)

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := mcmc.NewGenericProposer(m, rand.New(rand.NewSource(1)))
		_, err := p.Initialize(ctx, ev, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMHSampler_RequiresInitialize(t *testing.T) {
	inst := build(t, "coin")
	s := mcmc.NewMHSampler(mcmc.NewGenericProposer(inst.Model, rand.New(rand.NewSource(1))), rand.New(rand.NewSource(2)), nil)
	assert.ErrorIs(t, s.NextSample(), mcmc.ErrNotInitialized)
}

func TestMHSampler_Scenarios(t *testing.T) {
	tests := []struct {
		scenario string
		decayed  bool
	}{
		{scenario: "coin"},
		{scenario: "bayesnet"},
		{scenario: "switch"},
		{scenario: "sensor"},
		{scenario: "weather"},
		{scenario: "weather", decayed: true},
	}
	for _, tt := range tests {
		name := tt.scenario
		if tt.decayed {
			name += "/decayed"
		}
		t.Run(name, func(t *testing.T) {
			inst := build(t, tt.scenario)
			rng := rand.New(rand.NewSource(21))
			var p mcmc.Proposer = mcmc.NewGenericProposer(inst.Model, rng)
			if tt.decayed {
				p = mcmc.NewDecayedProposer(inst.Model, rng, mcmc.DefaultDecayParams())
			}
			s := mcmc.NewMHSampler(p, rng, nil)
			require.NoError(t, s.Initialize(context.Background(), inst.Evidence, inst.Queries))

			const burnIn, n = 2000, 30000
			q := inst.Queries[0]
			for i := 0; i < burnIn+n; i++ {
				require.NoError(t, s.NextSample())
				if i >= burnIn {
					require.NoError(t, q.UpdateStats(s.LatestWorld(), s.LatestWeight()))
				}
			}
			h := q.Histogram()
			for _, e := range h.Entries() {
				want := inst.Exact[model.ValueString(e.Value)]
				assert.InDelta(t, want, h.Prob(e.Value), 0.08, "P(%s)", model.ValueString(e.Value))
			}

			stats := s.Stats()
			assert.Equal(t, burnIn+n, stats.TotalProposals)
			assert.Positive(t, stats.TotalAccepted)
			assert.GreaterOrEqual(t, stats.InitAttempts, 1)
		})
	}
}

func TestMHSampler_LogStatsSeparatesProposerCounters(t *testing.T) {
	inst := build(t, "bayesnet")
	rng := rand.New(rand.NewSource(5))
	s := mcmc.NewMHSampler(mcmc.NewGenericProposer(inst.Model, rng), rng, nil)
	require.NoError(t, s.Initialize(context.Background(), inst.Evidence, inst.Queries))
	for range 50 {
		require.NoError(t, s.NextSample())
	}

	var buf bytes.Buffer
	s.LogStats(slog.New(slog.NewTextHandler(&buf, nil)))

	var proposerLine string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "proposer statistics") {
			proposerLine = line
		} else {
			assert.Contains(t, line, "total_samples=50")
		}
	}
	require.NotEmpty(t, proposerLine)
	assert.Contains(t, proposerLine, "init_attempts=")
	assert.Contains(t, proposerLine, "total_proposals=")
	assert.NotContains(t, proposerLine, "total_samples")
	assert.NotContains(t, proposerLine, "trial_weight_sum")
}
