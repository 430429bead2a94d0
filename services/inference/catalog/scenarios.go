// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"github.com/AleutianAI/openworld/services/inference/distrib"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
)

func dep(clauses ...model.Clause) *model.DependencyModel {
	return model.NewDependencyModel(clauses...)
}

// coin: Heads ~ Bernoulli(0.3).
func coin() (*Instance, error) {
	m := model.New()
	heads := m.NewRandomFunction("Heads", model.BooleanType)
	heads.SetDependency(dep(model.Otherwise(distrib.Bernoulli{P: 0.3})))
	if err := m.Compile(); err != nil {
		return nil, err
	}
	return &Instance{
		Model:    m,
		Evidence: evidence.New(),
		Queries:  []evidence.Query{evidence.NewTermQuery(model.App(heads))},
		Exact:    map[string]float64{"true": 0.3, "false": 0.7},
	}, nil
}

// bayesNet: X ~ Bernoulli(0.7); Y ~ Bernoulli(0.3) if X else
// Bernoulli(0.9). Observe Y, query X.
func bayesNet() (*Instance, error) {
	m := model.New()
	x := m.NewRandomFunction("X", model.BooleanType)
	x.SetDependency(dep(model.Otherwise(distrib.Bernoulli{P: 0.7})))
	y := m.NewRandomFunction("Y", model.BooleanType)
	y.SetDependency(dep(
		model.If(model.Atom(model.App(x)), distrib.Bernoulli{P: 0.3}),
		model.Otherwise(distrib.Bernoulli{P: 0.9}),
	))
	if err := m.Compile(); err != nil {
		return nil, err
	}
	ev := evidence.New()
	ev.AddValue(model.App(y), model.Const(true))
	return &Instance{
		Model:    m,
		Evidence: ev,
		Queries:  []evidence.Query{evidence.NewTermQuery(model.App(x))},
		Exact:    map[string]float64{"true": 0.4375, "false": 0.5625},
	}, nil
}

// switchModel: Out copies A when Switch holds and B otherwise, so which
// of A and B is a parent of Out depends on the world.
func switchModel() (*Instance, error) {
	m := model.New()
	sw := m.NewRandomFunction("Switch", model.BooleanType)
	sw.SetDependency(dep(model.Otherwise(distrib.Bernoulli{P: 0.5})))
	a := m.NewRandomFunction("A", model.BooleanType)
	a.SetDependency(dep(model.Otherwise(distrib.Bernoulli{P: 0.9})))
	b := m.NewRandomFunction("B", model.BooleanType)
	b.SetDependency(dep(model.Otherwise(distrib.Bernoulli{P: 0.2})))
	out := m.NewRandomFunction("Out", model.BooleanType)
	out.SetDependency(dep(
		model.If(model.Atom(model.App(sw)), distrib.EqualsCPD{}, model.App(a)),
		model.Otherwise(distrib.EqualsCPD{}, model.App(b)),
	))
	if err := m.Compile(); err != nil {
		return nil, err
	}
	ev := evidence.New()
	ev.AddValue(model.App(out), model.Const(true))
	// P(Switch | Out) = 0.5*0.9 / (0.5*0.9 + 0.5*0.2).
	return &Instance{
		Model:    m,
		Evidence: ev,
		Queries:  []evidence.Query{evidence.NewTermQuery(model.App(sw))},
		Exact:    map[string]float64{"true": 0.45 / 0.55, "false": 0.1 / 0.55},
	}, nil
}

// sensor: Hot ~ Bernoulli(0.5); Reading ~ N(30, 25) if Hot else
// N(20, 25). Observe Reading = 28.
func sensor() (*Instance, error) {
	m := model.New()
	hot := m.NewRandomFunction("Hot", model.BooleanType)
	hot.SetDependency(dep(model.Otherwise(distrib.Bernoulli{P: 0.5})))
	reading := m.NewRandomFunction("Reading", model.RealType)
	reading.SetDependency(dep(
		model.If(model.Atom(model.App(hot)), distrib.Gaussian{Mean: 30, Variance: 25}),
		model.Otherwise(distrib.Gaussian{Mean: 20, Variance: 25}),
	))
	if err := m.Compile(); err != nil {
		return nil, err
	}
	ev := evidence.New()
	ev.AddValue(model.App(reading), model.Const(28.0))
	// Likelihood ratio exp(-4/50) : exp(-64/50), i.e. 1 : exp(-1.2).
	const pHot = 0.7685247834990175
	return &Instance{
		Model:    m,
		Evidence: ev,
		Queries:  []evidence.Query{evidence.NewTermQuery(model.App(hot))},
		Exact:    map[string]float64{"true": pHot, "false": 1 - pHot},
	}, nil
}

// weather: a two-state chain that stays put with probability 0.9, with
// an umbrella seen with probability 0.9 on rainy days and 0.2 otherwise.
// Observe the umbrella at @2, query the weather at @6.
func weather() (*Instance, error) {
	m := model.New()
	wt := m.NewType("Weather")
	states := m.AddGuaranteedObjects(wt, "Rainy", "Sunny")
	rainy, sunny := states[0], states[1]
	prev := m.MustFunction(model.BuiltinPrev)

	t := model.NewLogicalVar("t", model.TimestepType)
	w := m.NewRandomFunction("Weather", wt, t)
	stay, err := distrib.NewCategorical([]any{rainy, sunny}, []float64{0.9, 0.1})
	if err != nil {
		return nil, err
	}
	leave, err := distrib.NewCategorical([]any{rainy, sunny}, []float64{0.1, 0.9})
	if err != nil {
		return nil, err
	}
	even, err := distrib.NewCategorical([]any{rainy, sunny}, []float64{0.5, 0.5})
	if err != nil {
		return nil, err
	}
	w.SetDependency(dep(
		model.If(model.Equals(model.VarTerm(t), model.Const(model.Timestep(0))), even),
		model.Otherwise(distrib.NewTabular(nil,
			distrib.Row{Parents: []any{rainy}, Dist: stay},
			distrib.Row{Parents: []any{sunny}, Dist: leave},
		), model.App(w, model.App(prev, model.VarTerm(t)))),
	))

	u := model.NewLogicalVar("t", model.TimestepType)
	umbrella := m.NewRandomFunction("Umbrella", model.BooleanType, u)
	umbrella.SetDependency(dep(
		model.If(model.Equals(model.App(w, model.VarTerm(u)), model.Const(rainy)), distrib.Bernoulli{P: 0.9}),
		model.Otherwise(distrib.Bernoulli{P: 0.2}),
	))
	if err := m.Compile(); err != nil {
		return nil, err
	}

	ev := evidence.New()
	ev.AddValue(model.App(umbrella, model.Const(model.Timestep(2))), model.Const(true))
	// P(Rainy@2 | umbrella) = 0.45/0.55; the deviation from 1/2 shrinks by
	// 0.8 per step.
	pRainy := 0.5 + (0.45/0.55-0.5)*0.4096
	return &Instance{
		Model:    m,
		Evidence: ev,
		Queries:  []evidence.Query{evidence.NewTermQuery(model.App(w, model.Const(model.Timestep(6))))},
		Exact:    map[string]float64{"Rainy": pRainy, "Sunny": 1 - pRainy},
	}, nil
}

// aircraft: one to three aircraft, each big with probability 1/2 and
// producing zero to two blips; a blip is bright with probability 0.9 if
// its source is big and 0.2 otherwise. Two blips are seen, both bright.
func aircraft() (*Instance, error) {
	m := model.New()
	aircraftT := m.NewType("Aircraft")
	blipT := m.NewType("Blip")
	source := m.NewOriginFunction("Source", blipT, aircraftT)

	m.NewPOP(aircraftT).SetNumberStatement(dep(model.Otherwise(distrib.UniformInt{Lo: 1, Hi: 3})))
	m.NewPOP(blipT, source).SetNumberStatement(dep(model.Otherwise(distrib.UniformInt{Lo: 0, Hi: 2})))

	a := model.NewLogicalVar("a", aircraftT)
	big := m.NewRandomFunction("Big", model.BooleanType, a)
	big.SetDependency(dep(model.Otherwise(distrib.Bernoulli{P: 0.5})))

	b := model.NewLogicalVar("b", blipT)
	bright := m.NewRandomFunction("Bright", model.BooleanType, b)
	bright.SetDependency(dep(
		model.If(model.Atom(model.App(big, model.App(source, model.VarTerm(b)))), distrib.Bernoulli{P: 0.9}),
		model.Otherwise(distrib.Bernoulli{P: 0.2}),
	))
	if err := m.Compile(); err != nil {
		return nil, err
	}

	ev := evidence.New()
	symbols := evidence.NewSymbolStatement(model.SetOf(model.NewLogicalVar("b", blipT), nil), "B1", "B2")
	ev.AddSymbol(symbols)
	if err := ev.Compile(m); err != nil {
		return nil, err
	}
	for _, f := range symbols.Skolems() {
		ev.AddValue(model.App(bright, model.App(f)), model.Const(true))
	}

	// Per aircraft the chance of k blips, all bright, is
	// (1/3)(0.5*0.9^k + 0.5*0.2^k); the posterior over the count follows
	// from the coefficient of z^2 in its generating function.
	l1 := 0.425 / 3
	l2 := (2*0.425 + 0.55*0.55) / 9
	l3 := (3*0.425 + 3*0.55*0.55) / 27
	z := l1 + l2 + l3
	return &Instance{
		Model:    m,
		Evidence: ev,
		Queries: []evidence.Query{
			evidence.NewTermQuery(model.Card(model.SetOf(model.NewLogicalVar("a", aircraftT), nil))),
		},
		IDTypes: []*model.Type{aircraftT, blipT},
		Exact:   map[string]float64{"1": l1 / z, "2": l2 / z, "3": l3 / z},
	}, nil
}

// urn: one to three balls, each blue or green with equal probability.
// The set of colors drawn is {Blue, Green}.
func urn() (*Instance, error) {
	m := model.New()
	ballT := m.NewType("Ball")
	colorT := m.NewType("Color")
	colors := m.AddGuaranteedObjects(colorT, "Blue", "Green")
	m.NewPOP(ballT).SetNumberStatement(dep(model.Otherwise(distrib.UniformInt{Lo: 1, Hi: 3})))

	b := model.NewLogicalVar("b", ballT)
	color := m.NewRandomFunction("Color", colorT, b)
	half, err := distrib.NewCategorical([]any{colors[0], colors[1]}, []float64{0.5, 0.5})
	if err != nil {
		return nil, err
	}
	color.SetDependency(dep(model.Otherwise(half)))
	if err := m.Compile(); err != nil {
		return nil, err
	}

	ev := evidence.New()
	lv := model.NewLogicalVar("b", ballT)
	ev.AddValue(
		model.TupleSet([]model.Term{model.App(color, model.VarTerm(lv))}, []*model.LogicalVar{lv}, nil),
		model.SetOfTerms(model.Const(colors[0]), model.Const(colors[1])),
	)
	// P(both colors | n) is 0, 1/2, 3/4 for n = 1, 2, 3.
	return &Instance{
		Model:    m,
		Evidence: ev,
		Queries: []evidence.Query{
			evidence.NewTermQuery(model.Card(model.SetOf(model.NewLogicalVar("b", ballT), nil))),
		},
		IDTypes: []*model.Type{ballT},
		Exact:   map[string]float64{"1": 0, "2": 0.4, "3": 0.6},
	}, nil
}
