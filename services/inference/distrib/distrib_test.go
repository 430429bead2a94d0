// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package distrib

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/AleutianAI/openworld/services/inference/model"
)

func frequency(t *testing.T, cpd model.CondProbDistrib, args []any, target any, n int) float64 {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	hits := 0
	for range n {
		if model.ValuesEqual(cpd.SampleVal(args, nil, rng), target) {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

func TestBernoulli(t *testing.T) {
	b := Bernoulli{P: 0.3}
	assert.InDelta(t, 0.3, b.Prob(nil, true), 1e-12)
	assert.InDelta(t, 0.7, b.Prob(nil, false), 1e-12)
	assert.Equal(t, 0.0, b.Prob(nil, 1))
	assert.InDelta(t, math.Log(0.3), b.LogProb(nil, true), 1e-12)
	assert.InDelta(t, 0.9, b.Prob([]any{0.9}, true), 1e-12, "numeric argument overrides P")

	assert.InDelta(t, 0.3, frequency(t, b, nil, true, 20000), 0.02)
}

func TestCategorical(t *testing.T) {
	c, err := NewCategorical([]any{"a", "b", "c"}, []float64{0.2, 0.5, 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.5, c.Prob(nil, "b"))
	assert.Equal(t, 0.0, c.Prob(nil, "z"))
	assert.True(t, math.IsInf(c.LogProb(nil, "z"), -1))
	assert.InDelta(t, 0.5, frequency(t, c, nil, "b", 20000), 0.02)

	_, err = NewCategorical([]any{"a"}, []float64{0.5})
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = NewCategorical([]any{"a", "a"}, []float64{0.5, 0.5})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewCategorical([]any{"a", "b"}, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestTabular(t *testing.T) {
	rain := MustCategorical([]any{true, false}, []float64{0.9, 0.1})
	sun := MustCategorical([]any{true, false}, []float64{0.2, 0.8})
	tab := NewTabular(nil, Row{Parents: []any{"Rainy"}, Dist: rain}, Row{Parents: []any{"Sunny"}, Dist: sun})

	assert.Equal(t, 0.9, tab.Prob([]any{"Rainy"}, true))
	assert.Equal(t, 0.8, tab.Prob([]any{"Sunny"}, false))
	assert.Equal(t, 0.0, tab.Prob([]any{"Foggy"}, true))
	assert.True(t, model.IsNull(tab.SampleVal([]any{"Foggy"}, nil, rand.New(rand.NewSource(1)))))
}

func TestPoisson(t *testing.T) {
	p := Poisson{Lambda: 2}
	assert.InDelta(t, math.Exp(-2)*2, p.Prob(nil, 1), 1e-12)
	assert.Equal(t, 0.0, p.Prob(nil, -1))
	assert.InDelta(t, math.Log(math.Exp(-2)*2), p.LogProb(nil, 1), 1e-9)

	v := p.SampleVal(nil, nil, rand.New(rand.NewSource(3)))
	n, ok := v.(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, n, 0)
}

func TestUniformChoice(t *testing.T) {
	set := model.NewExplicitSet([]any{"x", "y", "z", "w"})
	u := UniformChoice{}
	assert.Equal(t, 0.25, u.Prob([]any{set}, "x"))
	assert.Equal(t, 0.0, u.Prob([]any{set}, "q"))
	assert.Equal(t, 1.0, u.Prob([]any{model.EmptySet}, model.Null))
	assert.True(t, model.IsNull(u.SampleVal([]any{model.EmptySet}, nil, rand.New(rand.NewSource(1)))))
	assert.InDelta(t, 0.25, frequency(t, u, []any{set}, "z", 20000), 0.02)
}

func TestUniformIntAndGaussian(t *testing.T) {
	u := UniformInt{Lo: 1, Hi: 4}
	assert.Equal(t, 0.25, u.Prob(nil, 3))
	assert.Equal(t, 0.0, u.Prob(nil, 5))

	g := Gaussian{Mean: 0, Variance: 1}
	assert.InDelta(t, 1/math.Sqrt(2*math.Pi), g.Prob(nil, 0.0), 1e-12)
	assert.InDelta(t, 1/math.Sqrt(2*math.Pi), g.Prob([]any{2.0}, 2.0), 1e-12, "argument shifts the mean")
}

func TestEqualsCPD(t *testing.T) {
	e := EqualsCPD{}
	assert.Equal(t, 1.0, e.Prob([]any{7}, 7))
	assert.Equal(t, 0.0, e.Prob([]any{7}, 8))
	assert.Equal(t, 7, e.SampleVal([]any{7}, nil, nil))
}
