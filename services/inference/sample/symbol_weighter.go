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

// SymbolWeighter binds the skolem constants of symbol evidence to
// objects in proportion to how well each object explains the value
// evidence about that symbol.
//
// Description:
//
//	It claims every symbol statement and every value statement that
//	mentions one of their skolem constants; everything else goes to the
//	fallback first. For each symbol statement the cardinality is checked
//	(a mismatch short-circuits to likelihood 0), then the skolems are
//	bound in order. Binding skolem i tries each object still available to
//	it (objects taken by skolems 1..i-1 of the same statement are
//	excluded by the skolem's own distribution), scores it by the
//	likelihood of the claimed statements that become fully determined,
//	and draws one in proportion to that score. The importance weight
//	prior/proposal of the choice is folded into the result.
//
// Thread Safety: Not safe for concurrent use; owned by one sampler.
type SymbolWeighter struct {
	fallback EvidenceLikelihoodWeighter
}

// NewSymbolWeighter creates a weighter forwarding unclaimed evidence to
// fallback.
func NewSymbolWeighter(fallback EvidenceLikelihoodWeighter) *SymbolWeighter {
	return &SymbolWeighter{fallback: fallback}
}

// LikelihoodAndWeight implements EvidenceLikelihoodWeighter.
func (sw *SymbolWeighter) LikelihoodAndWeight(ev *evidence.Evidence, inst *evalctx.Instantiator) (LikelihoodAndWeight, error) {
	symbols := ev.SymbolStatements()
	if len(symbols) == 0 {
		return sw.fallback.LikelihoodAndWeight(ev, inst)
	}

	skolems := make(map[*model.Function]bool)
	for _, ss := range symbols {
		for _, f := range ss.Skolems() {
			skolems[f] = true
		}
	}
	var (
		claimed  []*evidence.ValueStatement
		mentions = make(map[*evidence.ValueStatement][]*model.Function)
		residual []*evidence.ValueStatement
	)
	for _, s := range ev.ValueStatements() {
		fs := skolemsIn(s.LeftSide(), skolems)
		if len(fs) == 0 {
			residual = append(residual, s)
			continue
		}
		claimed = append(claimed, s)
		mentions[s] = fs
	}

	result, err := sw.fallback.LikelihoodAndWeight(
		evidence.Subset(residual, nil, ev.DecisionStatements()), inst)
	if err != nil || result.Likelihood == 0 {
		return result, err
	}

	w := inst.World()
	bound := make(map[*model.Function]bool)
	done := make(map[*evidence.ValueStatement]bool)
	due := func() []*evidence.ValueStatement {
		var out []*evidence.ValueStatement
		for _, s := range claimed {
			if done[s] {
				continue
			}
			ready := true
			for _, f := range mentions[s] {
				if !bound[f] {
					ready = false
					break
				}
			}
			if ready {
				out = append(out, s)
			}
		}
		return out
	}

	for _, ss := range symbols {
		holds, ok := ss.Cardinality().IsTrue(inst)
		if err := inst.Err(); err != nil {
			return Zero, err
		}
		if !ok || !holds {
			return Zero, nil
		}

		for _, sv := range ss.SkolemVars() {
			bound[sv.Func()] = true
			pending := due()
			if w.Value(sv) != nil || len(pending) == 0 {
				// Nothing to steer by: sample from the prior.
				if err := inst.EnsureDetAndSupported(sv); err != nil {
					return Zero, err
				}
				continue
			}

			step, err := sw.bind(inst, sv, pending)
			if err != nil {
				return Zero, err
			}
			result = result.Times(step)
			if result.Likelihood == 0 {
				return Zero, nil
			}
			for _, s := range pending {
				if err := fixStatement(s, inst); err != nil {
					return Zero, err
				}
				done[s] = true
			}
		}
	}

	// Statements mentioning skolems of symbol statements outside ev.
	for _, s := range claimed {
		if done[s] {
			continue
		}
		p, err := statementLikelihood(s, inst)
		if err != nil {
			return Zero, err
		}
		if p == 0 {
			return Zero, nil
		}
		if err := fixStatement(s, inst); err != nil {
			return Zero, err
		}
		result.Likelihood *= p
	}

	if err := checkRatio("symbol evidence weight", result.WeightedLikelihood()); err != nil {
		return Zero, err
	}
	return result, nil
}

// bind chooses the object for skolem variable sv, scoring each candidate
// by the likelihood of pending.
func (sw *SymbolWeighter) bind(inst *evalctx.Instantiator, sv *model.RandFuncAppVar, pending []*evidence.ValueStatement) (LikelihoodAndWeight, error) {
	w := inst.World()
	d, ok := sv.Distrib(inst)
	if err := inst.Err(); err != nil {
		return Zero, err
	}
	if !ok {
		return Zero, fmt.Errorf("%w: distribution of %s is not determined", model.ErrIllegalState, sv)
	}
	candidates, _ := d.Args[0].(model.ObjectSet)
	if candidates == nil || candidates.Size() == 0 {
		return Zero, nil
	}

	objs := candidates.Elements()
	scores := make([]float64, len(objs))
	total := 0.0
	for i, o := range objs {
		w.SetValue(sv, o)
		score := 1.0
		for _, s := range pending {
			p, err := statementLikelihood(s, inst)
			if err != nil {
				w.SetValue(sv, nil)
				return Zero, err
			}
			score *= p
			if score == 0 {
				break
			}
		}
		w.SetValue(sv, nil)
		scores[i] = score
		total += score
	}
	if err := checkRatio("symbol binding score", total); err != nil {
		return Zero, err
	}
	if total == 0 {
		return Zero, nil
	}

	i := chooseProportional(inst.Rand(), scores)
	w.SetValue(sv, objs[i])
	prior := d.Prob(objs[i])
	proposal := scores[i] / total
	ratio := prior / proposal
	if err := checkRatio("symbol binding ratio", ratio); err != nil {
		return Zero, err
	}
	return LikelihoodAndWeight{Likelihood: scores[i], Weight: ratio}, nil
}

// skolemsIn lists the skolem functions applied anywhere in t.
func skolemsIn(t model.Term, skolems map[*model.Function]bool) []*model.Function {
	var out []*model.Function
	seen := make(map[*model.Function]bool)
	model.Walk(t, func(st model.Term) bool {
		if app, ok := st.(*model.FuncAppTerm); ok {
			if f := app.Func(); skolems[f] && !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
		return true
	})
	return out
}
