// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package world

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/openworld/services/inference/distrib"
	"github.com/AleutianAI/openworld/services/inference/model"
)

// fixture holds a small model:
//
//	X ~ Bernoulli(0.7)
//	Y ~ if X then Bernoulli(0.3) else Bernoulli(0.9)
//	Switch, A, B ~ Bernoulli(0.5)
//	Out ~ if Switch then =A else =B
//	#Ball ~ UniformInt(1, 3)
//	Color(b) ~ {Blue: 0.5, Green: 0.5}
type fixture struct {
	m             *model.Model
	x, y          *model.RandFuncAppVar
	sw, a, b, out *model.RandFuncAppVar
	ball          *model.Type
	numBall       *model.NumberVar
	colorFn       *model.Function
	blue, green   *model.GuaranteedObject
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := model.New()

	x := m.NewRandomFunction("X", model.BooleanType)
	x.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0.7})))
	y := m.NewRandomFunction("Y", model.BooleanType)
	y.SetDependency(model.NewDependencyModel(
		model.If(model.Atom(model.App(x)), distrib.Bernoulli{P: 0.3}),
		model.Otherwise(distrib.Bernoulli{P: 0.9}),
	))

	sw := m.NewRandomFunction("Switch", model.BooleanType)
	a := m.NewRandomFunction("A", model.BooleanType)
	b := m.NewRandomFunction("B", model.BooleanType)
	for _, f := range []*model.Function{sw, a, b} {
		f.SetDependency(model.NewDependencyModel(model.Otherwise(distrib.Bernoulli{P: 0.5})))
	}
	out := m.NewRandomFunction("Out", model.BooleanType)
	out.SetDependency(model.NewDependencyModel(
		model.If(model.Atom(model.App(sw)), distrib.EqualsCPD{}, model.App(a)),
		model.Otherwise(distrib.EqualsCPD{}, model.App(b)),
	))

	ball := m.NewType("Ball")
	color := m.NewType("Color")
	cs := m.AddGuaranteedObjects(color, "Blue", "Green")
	pop := m.NewPOP(ball)
	pop.SetNumberStatement(model.NewDependencyModel(model.Otherwise(distrib.UniformInt{Lo: 1, Hi: 3})))
	bv := model.NewLogicalVar("b", ball)
	colorFn := m.NewRandomFunction("Color", color, bv)
	colorFn.SetDependency(model.NewDependencyModel(model.Otherwise(
		distrib.MustCategorical([]any{cs[0], cs[1]}, []float64{0.5, 0.5}))))

	require.NoError(t, m.Compile())
	return &fixture{
		m:       m,
		x:       m.FuncAppVar(x),
		y:       m.FuncAppVar(y),
		sw:      m.FuncAppVar(sw),
		a:       m.FuncAppVar(a),
		b:       m.FuncAppVar(b),
		out:     m.FuncAppVar(out),
		ball:    ball,
		numBall: m.NumberVar(pop),
		colorFn: colorFn,
		blue:    cs[0],
		green:   cs[1],
	}
}

func keysOf[V model.Var](vs []V) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func TestSetValue_MaintainsBayesNet(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)

	w.SetValue(fx.x, true)
	w.SetValue(fx.y, true)

	lp, ok := w.LogProbOfValue(fx.y)
	require.True(t, ok)
	assert.InDelta(t, math.Log(0.3), lp, 1e-12)
	assert.Equal(t, []string{"X"}, keysOf(w.Parents(fx.y)))
	assert.Equal(t, []string{"Y"}, keysOf(w.Children(fx.x)))
	assert.True(t, w.IsBarren(fx.y))
	assert.False(t, w.IsBarren(fx.x))

	t.Run("parent change recomputes child probability", func(t *testing.T) {
		w.SetValue(fx.x, false)
		p, ok := w.ProbOfValue(fx.y)
		require.True(t, ok)
		assert.InDelta(t, 0.9, p, 1e-12)
		assert.InDelta(t, math.Log(0.3)+math.Log(0.9), w.LogProb(), 1e-12)
	})

	t.Run("uninstantiating clears edges", func(t *testing.T) {
		w.SetValue(fx.y, nil)
		assert.Nil(t, w.Value(fx.y))
		assert.Empty(t, w.Children(fx.x))
		_, ok := w.LogProbOfValue(fx.y)
		assert.False(t, ok)
		assert.Equal(t, 1, w.NumInstantiatedVars())
	})
}

func TestSetValue_UnsupportedUntilParentInstantiated(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)

	w.SetValue(fx.y, true)
	assert.False(t, w.IsSupported(fx.y))
	assert.Equal(t, fx.x.Key(), w.MissingParent(fx.y).Key())
	_, ok := w.LogProbOfValue(fx.y)
	assert.False(t, ok)

	w.SetValue(fx.x, false)
	assert.True(t, w.IsSupported(fx.y))
	assert.Nil(t, w.MissingParent(fx.y))
	p, ok := w.ProbOfValue(fx.y)
	require.True(t, ok)
	assert.InDelta(t, 0.9, p, 1e-12)
}

func TestSetValue_ContextSpecificParents(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)
	w.SetValue(fx.sw, true)
	w.SetValue(fx.a, true)
	w.SetValue(fx.b, false)
	w.SetValue(fx.out, true)

	assert.Equal(t, []string{"Switch", "A"}, keysOf(w.Parents(fx.out)))
	assert.True(t, w.IsBarren(fx.b), "B is not an active parent while Switch is true")

	w.SetValue(fx.sw, false)
	assert.Equal(t, []string{"Switch", "B"}, keysOf(w.Parents(fx.out)))
	assert.True(t, w.IsBarren(fx.a))
	lp, ok := w.LogProbOfValue(fx.out)
	require.True(t, ok)
	assert.True(t, math.IsInf(lp, -1), "Out=true is impossible when it copies B=false")
}

func TestInstantiatedVars_Ordered(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)
	w.SetValue(fx.out, true)
	w.SetValue(fx.y, true)
	w.SetValue(fx.x, true)
	assert.Equal(t, []string{"X", "Y", "Out"}, keysOf(w.InstantiatedVars()))
}

func TestDerivedVar_TracksParents(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)
	dv := model.NewDerivedVar(model.Not(model.Atom(model.App(fx.y.Func()))))
	w.AddDerivedVar(dv)

	_, ok := w.DerivedValue(dv)
	assert.False(t, ok, "Y is not instantiated")

	w.SetValue(fx.y, true)
	v, ok := w.DerivedValue(dv)
	require.True(t, ok)
	assert.Equal(t, false, v)
	assert.False(t, w.IsBarren(fx.y), "a registered derived var is a child")

	w.SetValue(fx.y, false)
	v, _ = w.DerivedValue(dv)
	assert.Equal(t, true, v)

	w.RemoveDerivedVar(dv)
	assert.True(t, w.IsBarren(fx.y))
	assert.Empty(t, w.DerivedVars())
}

func TestIdentifiers(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m, fx.ball)
	require.True(t, w.UsesIdentifiers(fx.ball))

	w.SetValue(fx.numBall, 3)
	id1 := w.NewIdentifier(fx.ball)
	id2 := w.NewIdentifier(fx.ball)
	w.AssertIdentifier(id1, fx.numBall)
	w.AssertIdentifier(id2, fx.numBall)

	_, ok := w.Satisfiers(fx.numBall)
	assert.False(t, ok, "only two of three identifiers asserted")
	assert.InDelta(t, math.Log(6), w.LogMultiplier(fx.numBall), 1e-12)
	assert.False(t, w.IsOverloaded(fx.numBall))

	w.SetValue(fx.numBall, 1)
	assert.True(t, w.IsOverloaded(fx.numBall))
	assert.True(t, math.IsInf(w.LogMultiplier(fx.numBall), -1))

	w.RemoveIdentifier(id2)
	assert.False(t, w.IsOverloaded(fx.numBall))
	s, ok := w.Satisfiers(fx.numBall)
	require.True(t, ok)
	assert.Equal(t, []any{id1}, s.Elements())
	assert.Nil(t, w.POPAppOf(id2))
}

func TestSatisfiers_NonIdentifierType(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)
	_, ok := w.Satisfiers(fx.numBall)
	assert.False(t, ok)

	w.SetValue(fx.numBall, 2)
	s, ok := w.Satisfiers(fx.numBall)
	require.True(t, ok)
	assert.Equal(t, 2, s.Size())
	assert.Same(t, fx.m.NonGuaranteed(fx.numBall.POP(), nil, 2), s.At(1))
}

func TestFloatingIdentifier(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m, fx.ball)
	id := w.NewIdentifier(fx.ball)
	assert.False(t, w.IsFloating(id))

	w.SetValue(fx.m.FuncAppVar(fx.colorFn, id), fx.blue)
	assert.True(t, w.IsFloating(id))
}

func TestDefaultEvalContext_ErrorIfUndetermined(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)

	ctx := NewEvalContext(w, true)
	_, ok := ctx.Value(fx.x)
	assert.False(t, ok)
	assert.ErrorIs(t, ctx.Err(), model.ErrIllegalState)

	lenient := NewEvalContext(w, false)
	_, ok = lenient.Value(fx.x)
	assert.False(t, ok)
	assert.NoError(t, lenient.Err())
}

func TestParentRecEvalContext_RecordsReads(t *testing.T) {
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m)
	w.SetValue(fx.sw, false)

	ctx := NewParentRecEvalContext(w)
	_, ok := fx.out.Distrib(ctx)
	assert.False(t, ok, "B is not instantiated")
	assert.Equal(t, []string{"Switch", "B"}, keysOf(ctx.Parents()))
	assert.Equal(t, fx.b.Key(), ctx.Missing().Key())
}
