// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sample

import (
	"fmt"

	"github.com/AleutianAI/openworld/services/inference/evalctx"
	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
)

// TupleSetWeighter proposes values for the variables of tuple-set
// evidence so that the observed set is reached.
//
// Description:
//
//	It claims statements of the form {f(x) for T x : cond} = {v1, ..., vk}
//	where f is a random function; everything else goes to the fallback
//	first, so that variables fixed by other evidence are already
//	instantiated. The variables f(x) over all bindings are then resolved
//	in order, instantiated ones first. Each uninstantiated variable draws
//	its value from its distribution restricted to the required values, or
//	to the values not yet claimed once there are exactly as many of those
//	as variables left. The importance weight of each draw is the mass of
//	the allowed values.
//
// Thread Safety: Not safe for concurrent use; owned by one sampler.
type TupleSetWeighter struct {
	fallback EvidenceLikelihoodWeighter
}

// NewTupleSetWeighter creates a weighter forwarding unclaimed evidence to
// fallback.
func NewTupleSetWeighter(fallback EvidenceLikelihoodWeighter) *TupleSetWeighter {
	return &TupleSetWeighter{fallback: fallback}
}

// tupleSetApp returns the function application a claimable statement's
// tuple set ranges over.
func tupleSetApp(s *evidence.ValueStatement) (*model.TupleSetSpec, *model.FuncAppTerm, bool) {
	spec, ok := s.LeftSide().(*model.TupleSetSpec)
	if !ok {
		return nil, nil, false
	}
	terms := spec.Terms()
	if len(terms) != 1 {
		return nil, nil, false
	}
	app, ok := terms[0].(*model.FuncAppTerm)
	if !ok || !app.Func().IsRandom() {
		return nil, nil, false
	}
	if _, ok := s.ObservedValue().(model.ObjectSet); !ok {
		return nil, nil, false
	}
	return spec, app, true
}

// LikelihoodAndWeight implements EvidenceLikelihoodWeighter.
func (tw *TupleSetWeighter) LikelihoodAndWeight(ev *evidence.Evidence, inst *evalctx.Instantiator) (LikelihoodAndWeight, error) {
	var claimed, residual []*evidence.ValueStatement
	for _, s := range ev.ValueStatements() {
		if _, _, ok := tupleSetApp(s); ok {
			claimed = append(claimed, s)
		} else {
			residual = append(residual, s)
		}
	}
	if len(claimed) == 0 {
		return tw.fallback.LikelihoodAndWeight(ev, inst)
	}

	result, err := tw.fallback.LikelihoodAndWeight(
		evidence.Subset(residual, ev.SymbolStatements(), ev.DecisionStatements()), inst)
	if err != nil || result.Likelihood == 0 {
		return result, err
	}

	for _, s := range claimed {
		step, err := tw.resolve(s, inst)
		if err != nil {
			return Zero, err
		}
		result = result.Times(step)
		if result.Likelihood == 0 {
			return Zero, nil
		}
	}
	if err := checkRatio("tuple set weight", result.WeightedLikelihood()); err != nil {
		return Zero, err
	}
	return result, nil
}

// resolve makes the variables of one tuple-set statement produce the
// required set.
func (tw *TupleSetWeighter) resolve(s *evidence.ValueStatement, inst *evalctx.Instantiator) (LikelihoodAndWeight, error) {
	spec, app, _ := tupleSetApp(s)
	required := s.ObservedValue().(model.ObjectSet)
	w := inst.World()

	var vars []model.BasicVar
	seen := make(map[string]bool)
	ok := spec.ForEachBinding(inst, func() bool {
		v, ok := app.BasicVar(inst)
		if !ok {
			return false
		}
		if v != nil && !seen[v.Key()] {
			seen[v.Key()] = true
			vars = append(vars, v)
		}
		return true
	})
	if err := inst.Err(); err != nil {
		return Zero, err
	}
	if !ok {
		return Zero, fmt.Errorf("%w: bindings of %s are not determined", model.ErrIllegalState, spec)
	}
	if required.Size() > len(vars) {
		return Zero, nil
	}

	claimed := make(map[string]bool)
	var open []model.BasicVar
	for _, v := range vars {
		val := w.Value(v)
		if val == nil {
			open = append(open, v)
			continue
		}
		if !required.Contains(val) {
			return Zero, nil
		}
		claimed[model.ValueKey(val)] = true
	}

	result := One
	for i, v := range open {
		remaining := len(open) - i
		var unclaimed []any
		for _, r := range required.Elements() {
			if !claimed[model.ValueKey(r)] {
				unclaimed = append(unclaimed, r)
			}
		}
		if len(unclaimed) > remaining {
			return Zero, nil
		}
		allowed := required.Elements()
		if len(unclaimed) == remaining {
			allowed = unclaimed
		}

		d, ok := v.Distrib(inst)
		if err := inst.Err(); err != nil {
			return Zero, err
		}
		if !ok {
			return Zero, fmt.Errorf("%w: distribution of %s is not determined", model.ErrIllegalState, v)
		}
		probs := make([]float64, len(allowed))
		mass := 0.0
		for j, a := range allowed {
			probs[j] = d.Prob(a)
			mass += probs[j]
		}
		if err := checkRatio("tuple set proposal mass", mass); err != nil {
			return Zero, err
		}
		if mass == 0 {
			return Zero, nil
		}
		choice := allowed[chooseProportional(inst.Rand(), probs)]
		w.SetValue(v, choice)
		claimed[model.ValueKey(choice)] = true
		result.Weight *= mass
	}

	final, ok := spec.Evaluate(inst)
	if err := inst.Err(); err != nil {
		return Zero, err
	}
	got, isSet := final.(model.ObjectSet)
	if !ok || !isSet || !model.ValuesEqual(got, required) {
		return Zero, nil
	}
	return result, nil
}
