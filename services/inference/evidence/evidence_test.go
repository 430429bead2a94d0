// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/openworld/services/inference/distrib"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/world"
)

type aircraftFixture struct {
	m        *model.Model
	aircraft *model.Type
	blip     *model.Type
	bright   *model.Function
	act      *model.Function
	decideFn *model.Function
}

func newAircraftFixture(t *testing.T) *aircraftFixture {
	t.Helper()
	m := model.New()
	aircraft := m.NewType("Aircraft")
	blip := m.NewType("Blip")
	source := m.NewOriginFunction("Source", blip, aircraft)

	ap := m.NewPOP(aircraft)
	ap.SetNumberStatement(model.NewDependencyModel(model.Otherwise(distrib.UniformInt{Lo: 1, Hi: 2})))
	bp := m.NewPOP(blip, source)
	bp.SetNumberStatement(model.NewDependencyModel(model.Otherwise(distrib.UniformInt{Lo: 0, Hi: 2})))

	b := model.NewLogicalVar("b", blip)
	bright := m.NewRandomFunction("Bright", model.BooleanType, b)
	bright.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0.5})))

	act := m.NewRandomFunction("Act", model.BooleanType)
	act.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0.5})))
	decideFn := m.NewDecisionFunction("Launch", model.BooleanType)

	require.NoError(t, m.Compile())
	return &aircraftFixture{m: m, aircraft: aircraft, blip: blip, bright: bright, act: act, decideFn: decideFn}
}

func TestCompile_SymbolStatement(t *testing.T) {
	fx := newAircraftFixture(t)
	b := model.NewLogicalVar("b", fx.blip)
	ss := NewSymbolStatement(model.SetOf(b, nil), "B1", "B2")

	ev := New()
	ev.AddSymbol(ss)
	require.NoError(t, ev.Compile(fx.m))

	skolems := ss.Skolems()
	require.Len(t, skolems, 2)
	assert.Equal(t, "B1", skolems[0].Name())
	assert.Equal(t, fx.blip, skolems[1].RetType())
	_, ok := fx.m.Function("B2")
	assert.True(t, ok)

	card := ss.Cardinality()
	require.NotNil(t, card)
	assert.Equal(t, 2, card.ObservedValue())
	assert.Len(t, ev.AllValueStatements(), 1)
	assert.Len(t, ev.DerivedVars(), 1)

	t.Run("value statements may mention symbols after compilation", func(t *testing.T) {
		ev.AddValue(model.App(fx.bright, model.App(skolems[0])), model.Const(true))
		require.NoError(t, ev.Compile(fx.m))
		assert.Len(t, ev.AllValueStatements(), 2)
	})

	t.Run("redeclaring a symbol fails", func(t *testing.T) {
		again := New()
		again.AddSymbol(NewSymbolStatement(model.SetOf(b, nil), "B1"))
		assert.ErrorIs(t, again.Compile(fx.m), model.ErrModel)
	})
}

func TestCompile_Errors(t *testing.T) {
	fx := newAircraftFixture(t)
	tests := []struct {
		name  string
		build func(ev *Evidence)
	}{
		{
			name: "observed value not constant",
			build: func(ev *Evidence) {
				ev.AddValue(model.App(fx.act), model.App(fx.act))
			},
		},
		{
			name: "decision on a random function",
			build: func(ev *Evidence) {
				ev.AddDecision(NewDecisionStatement(model.App(fx.act), model.Const(true)))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := New()
			tt.build(ev)
			err := ev.Compile(fx.m)
			assert.ErrorIs(t, err, model.ErrModel)
			assert.False(t, ev.IsCompiled())
		})
	}
}

func TestEvidence_IsTrueAndBasicVars(t *testing.T) {
	fx := newAircraftFixture(t)
	ev := New()
	ev.AddValue(model.App(fx.act), model.Const(true))
	ev.AddDecision(NewDecisionStatement(model.App(fx.decideFn), model.Const(false)))
	require.NoError(t, ev.Compile(fx.m))

	w := world.NewDefaultPartialWorld(fx.m)
	for _, dv := range ev.DerivedVars() {
		w.AddDerivedVar(dv)
	}
	_, ok := ev.IsTrue(w)
	assert.False(t, ok, "nothing instantiated")

	act := fx.m.FuncAppVar(fx.act)
	launch := fx.m.FuncAppVar(fx.decideFn)
	w.SetValue(act, true)
	w.SetValue(launch, false)
	holds, ok := ev.IsTrue(w)
	require.True(t, ok)
	assert.True(t, holds)

	w.SetValue(act, false)
	holds, ok = ev.IsTrue(w)
	require.True(t, ok)
	assert.False(t, holds)

	vars := ev.BasicVars(w)
	assert.True(t, vars.Contains(act.Key()))
	assert.True(t, vars.Contains(launch.Key()))
	assert.Equal(t, 2, vars.Size())
}

func TestHistogram(t *testing.T) {
	h := NewHistogram()
	h.Add(true, 0.25)
	h.Add(false, 0.5)
	h.Add(true, 0.25)

	assert.InDelta(t, 0.5, h.Prob(true), 1e-12)
	assert.Equal(t, 1.0, h.Total())
	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, false, entries[0].Value, "entries are ordered by value")

	o := NewHistogram()
	o.Add(true, 1)
	h.Merge(o)
	assert.InDelta(t, 1.5/2, h.Prob(true), 1e-12)

	c := h.Clone()
	h.Clear()
	assert.Zero(t, h.Total())
	assert.Zero(t, h.Prob(true))
	assert.InDelta(t, 2.0, c.Total(), 1e-12)
}

func TestTermQuery(t *testing.T) {
	fx := newAircraftFixture(t)
	q := NewFormulaQuery(model.Atom(model.App(fx.act)))
	require.NoError(t, q.Compile(fx.m))

	w := world.NewDefaultPartialWorld(fx.m)
	assert.ErrorIs(t, q.UpdateStats(w, 1), model.ErrIllegalState)

	w.SetValue(fx.m.FuncAppVar(fx.act), true)
	require.NoError(t, q.UpdateStats(w, 3))
	w.SetValue(fx.m.FuncAppVar(fx.act), false)
	require.NoError(t, q.UpdateStats(w, 1))
	assert.InDelta(t, 0.75, q.ProbTrue(), 1e-12)

	clone := q.Clone()
	assert.Zero(t, clone.Histogram().Total())
	assert.Equal(t, q.String(), clone.String())

	post := NewHistogram()
	post.Add(true, 0.1)
	post.Add(false, 0.9)
	q.SetPosterior(post)
	assert.InDelta(t, 0.1, q.ProbTrue(), 1e-12)

	q.ZeroOut()
	assert.Zero(t, q.Histogram().Total())
	assert.InDelta(t, 1.0, post.Total(), 1e-12, "the posterior passed in is not modified")
}
