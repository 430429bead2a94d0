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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/catalog"
	"github.com/AleutianAI/openworld/services/inference/distrib"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
)

func TestDecayedSelection(t *testing.T) {
	inst, err := catalog.Build("weather")
	require.NoError(t, err)
	p := NewDecayedProposer(inst.Model, rand.New(rand.NewSource(5)),
		DecayParams{MaxRecall: 3, AtemporalVarFactor: 1, DecayExponent: 2})
	d, err := p.Initialize(context.Background(), inst.Evidence, inst.Queries)
	require.NoError(t, err)

	sel := p.selection(d)
	assert.Equal(t, 6, sel.latest)
	assert.Empty(t, sel.atemporal)
	assert.Zero(t, sel.pAtemp, "no atemporal variables")
	require.Len(t, sel.buckets, 3)

	total := 0.0
	for _, v := range p.eligibleVars(d) {
		lp := sel.logProb(v)
		ts, _ := model.VarTimestep(v)
		if int(ts) <= 3 {
			assert.True(t, math.IsInf(lp, -1), "%s is beyond recall", v)
			continue
		}
		total += math.Exp(lp)
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	// Offsets 0, 1, 2 are weighted 1, 1/4, 1/9.
	w6 := inst.Model.FuncAppVar(inst.Model.MustFunction("Weather"), model.Timestep(6))
	assert.InDelta(t, math.Log(1/(1+0.25+1.0/9)), sel.logProb(w6), 1e-9)

	counts := make(map[string]int)
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 4000; i++ {
		counts[sel.draw(rng).Key()]++
	}
	assert.InDelta(t, 1/(1+0.25+1.0/9), float64(counts[w6.Key()])/4000, 0.03)
}

func TestDecayedSelection_WindowFollowsObservedTimestep(t *testing.T) {
	m := model.New()
	x := m.NewRandomFunction("X", model.BooleanType, model.NewLogicalVar("t", model.TimestepType))
	x.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0.5})))
	require.NoError(t, m.Compile())
	ev := evidence.New()
	ev.AddValue(model.App(x, model.Const(model.Timestep(5))), model.Const(true))
	q := evidence.NewTermQuery(model.App(x, model.Const(model.Timestep(2))))
	require.NoError(t, q.Compile(m))
	x2 := m.FuncAppVar(x, model.Timestep(2))

	tests := []struct {
		name      string
		maxRecall int
		visible   bool
	}{
		{name: "within recall", maxRecall: 5, visible: true},
		{name: "beyond recall", maxRecall: 3, visible: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDecayedProposer(m, rand.New(rand.NewSource(3)),
				DecayParams{MaxRecall: tt.maxRecall, AtemporalVarFactor: 1, DecayExponent: 2})
			d, err := p.Initialize(context.Background(), ev, []evidence.Query{q})
			require.NoError(t, err)

			sel := p.selection(d)
			assert.Equal(t, 5, sel.latest, "the observed @5 anchors the window")
			if tt.visible {
				assert.InDelta(t, 0.0, sel.logProb(x2), 1e-12)
				return
			}
			assert.True(t, sel.empty())
			assert.True(t, math.IsInf(sel.logProb(x2), -1))
		})
	}
}
