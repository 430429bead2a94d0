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

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/openworld/services/inference/model"
)

type countingListener struct {
	saves, reverts int
}

func (l *countingListener) OnSave(*PartialWorldDiff)   { l.saves++ }
func (l *countingListener) OnRevert(*PartialWorldDiff) { l.reverts++ }

func baseWorld(t *testing.T) (*fixture, *DefaultPartialWorld) {
	t.Helper()
	fx := newFixture(t)
	w := NewDefaultPartialWorld(fx.m, fx.ball)
	w.SetValue(fx.x, true)
	w.SetValue(fx.y, true)
	return fx, w
}

func TestDiff_WritesStayInOverlay(t *testing.T) {
	fx, w := baseWorld(t)
	d := NewDiff(w)

	d.SetValue(fx.x, false)
	d.SetValue(fx.sw, true)

	assert.Equal(t, false, d.Value(fx.x))
	assert.Equal(t, true, w.Value(fx.x))
	assert.Nil(t, w.Value(fx.sw))
	p, _ := w.ProbOfValue(fx.y)
	assert.InDelta(t, 0.3, p, 1e-12, "saved world keeps its probabilities")
	p, _ = d.ProbOfValue(fx.y)
	assert.InDelta(t, 0.9, p, 1e-12)
}

func TestDiff_RevertRestoresSavedState(t *testing.T) {
	fx, w := baseWorld(t)
	before := w.LogProb()
	l := &countingListener{}
	d := NewDiff(w)
	d.AddListener(l)

	d.SetValue(fx.x, false)
	d.SetValue(fx.y, nil)
	d.SetValue(fx.a, true)
	d.Revert()

	for _, v := range []model.BasicVar{fx.x, fx.y, fx.a} {
		assert.Equal(t, w.Value(v), d.Value(v), v.String())
	}
	assert.InDelta(t, before, d.LogProb(), 1e-12)
	assert.Equal(t, []string{"Y"}, keysOf(d.Children(fx.x)))
	assert.Empty(t, d.ChangedVars())
	assert.Equal(t, 1, l.reverts)
}

func TestDiff_SaveFoldsIntoSavedWorld(t *testing.T) {
	fx, w := baseWorld(t)
	l := &countingListener{}
	d := NewDiff(w)
	d.AddListener(l)

	d.SetValue(fx.x, false)
	d.Save()
	assert.Equal(t, false, w.Value(fx.x))
	p, _ := w.ProbOfValue(fx.y)
	assert.InDelta(t, 0.9, p, 1e-12)
	assert.Equal(t, 1, l.saves)

	d2 := NewDiff(w)
	d2.Revert()
	assert.Equal(t, false, w.Value(fx.x), "save then revert on a fresh diff is a no-op")
}

func TestDiff_ChangeViews(t *testing.T) {
	fx, w := baseWorld(t)
	d := NewDiff(w)

	d.SetValue(fx.x, false)
	if diff := cmp.Diff([]string{"X"}, keysOf(d.ChangedVars())); diff != "" {
		t.Errorf("ChangedVars mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"X", "Y"}, keysOf(d.VarsWithChangedProbs())); diff != "" {
		t.Errorf("VarsWithChangedProbs mismatch (-want +got):\n%s", diff)
	}

	t.Run("setting the saved value back clears the change", func(t *testing.T) {
		d.SetValue(fx.x, true)
		assert.Empty(t, d.ChangedVars())
		assert.Empty(t, d.VarsWithChangedProbs())
	})
}

func TestDiff_NewlyBarrenVars(t *testing.T) {
	fx, w := baseWorld(t)
	require.False(t, w.IsBarren(fx.x))
	d := NewDiff(w)

	d.SetValue(fx.y, nil)
	assert.Equal(t, []string{"X"}, keysOf(d.NewlyBarrenVars()))

	t.Run("already barren in the saved world is not new", func(t *testing.T) {
		d.Revert()
		d.SetValue(fx.x, false)
		assert.Empty(t, d.NewlyBarrenVars())
	})
}

func TestDiff_OverloadAndMultipliers(t *testing.T) {
	fx, w := baseWorld(t)
	w.SetValue(fx.numBall, 2)
	d := NewDiff(w)

	ids := []*model.ObjectIdentifier{d.NewIdentifier(fx.ball), d.NewIdentifier(fx.ball), d.NewIdentifier(fx.ball)}
	d.AssertIdentifier(ids[0], fx.numBall)
	assert.Empty(t, d.NewlyOverloadedNumberVars())
	changed := d.NumberVarsWithChangedMultipliers()
	require.Len(t, changed, 1)
	assert.InDelta(t, math.Log(2), d.LogMultiplier(changed[0]), 1e-12)

	d.AssertIdentifier(ids[1], fx.numBall)
	assert.Empty(t, d.NewlyOverloadedNumberVars())
	d.AssertIdentifier(ids[2], fx.numBall)
	over := d.NewlyOverloadedNumberVars()
	require.Len(t, over, 1)
	assert.Equal(t, fx.numBall.Key(), over[0].Key())
	assert.False(t, w.IsOverloaded(fx.numBall))
	assert.Len(t, d.CreatedIdentifiers(), 3)

	d.Revert()
	assert.Empty(t, d.CreatedIdentifiers())
	assert.Empty(t, d.AssertedIdentifiers(fx.numBall))
}

func TestDiff_NewlyFloatingIdentifiers(t *testing.T) {
	fx, w := baseWorld(t)
	d := NewDiff(w)
	id := d.NewIdentifier(fx.ball)

	d.SetValue(fx.m.FuncAppVar(fx.colorFn, id), fx.green)
	got := d.NewlyFloatingIdentifiers()
	require.Len(t, got, 1)
	assert.Same(t, id, got[0])

	d.Save()
	d.SetValue(fx.m.FuncAppVar(fx.colorFn, id), fx.blue)
	assert.Empty(t, d.NewlyFloatingIdentifiers(), "already floating in the saved world")
}

func TestDiff_Nested(t *testing.T) {
	fx, w := baseWorld(t)
	outer := NewDiff(w)
	outer.SetValue(fx.a, true)

	inner := NewDiff(outer)
	inner.SetValue(fx.x, false)
	inner.SetValue(fx.a, nil)
	inner.Save()

	assert.Equal(t, false, outer.Value(fx.x))
	assert.Nil(t, outer.Value(fx.a))
	assert.Equal(t, true, w.Value(fx.x), "inner save stops at the outer diff")

	outer.Revert()
	assert.Equal(t, true, outer.Value(fx.x))
	assert.Nil(t, outer.Value(fx.a))
	lp, ok := outer.LogProbOfValue(fx.y)
	require.True(t, ok)
	assert.InDelta(t, math.Log(0.3), lp, 1e-12)
}
