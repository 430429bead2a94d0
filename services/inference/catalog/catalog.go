// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog provides ready-made inference problems.
//
// Each scenario builds a fresh model, evidence and query set, so callers
// may run them concurrently. Scenarios whose posterior is known in closed
// form carry it for comparison.
package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
)

// Errors
var (
	// ErrUnknownScenario is returned for names not in the catalog.
	ErrUnknownScenario = errors.New("unknown scenario")
)

// Instance is a built scenario.
type Instance struct {
	Model    *model.Model
	Evidence *evidence.Evidence
	Queries  []evidence.Query

	// IDTypes are the types best represented with object identifiers
	// when sampling by MCMC.
	IDTypes []*model.Type

	// Exact is the posterior of the first query keyed by
	// model.ValueString of each value, when known.
	Exact map[string]float64
}

// Scenario is a named problem.
type Scenario struct {
	Name        string
	Description string
	build       func() (*Instance, error)
}

// Build creates a fresh instance with compiled model and evidence.
func (s Scenario) Build() (*Instance, error) {
	inst, err := s.build()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if err := inst.Evidence.Compile(inst.Model); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	for _, q := range inst.Queries {
		if err := q.Compile(inst.Model); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	return inst, nil
}

var scenarios = []Scenario{
	{Name: "coin", Description: "a biased coin with no evidence", build: coin},
	{Name: "bayesnet", Description: "two-node Bayes net, query the parent given the child", build: bayesNet},
	{Name: "switch", Description: "context-specific dependency through a multiplexer", build: switchModel},
	{Name: "sensor", Description: "Gaussian reading of a binary state", build: sensor},
	{Name: "weather", Description: "hidden Markov model over timesteps", build: weather},
	{Name: "aircraft", Description: "unknown number of aircraft from symbol evidence on blips", build: aircraft},
	{Name: "urn", Description: "unknown number of balls from the set of observed colors", build: urn},
}

// Names returns the scenario names in catalog order.
func Names() []string {
	out := make([]string, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.Name
	}
	return out
}

// All returns every scenario.
func All() []Scenario { return slices.Clone(scenarios) }

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, error) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

// Build looks up and builds a scenario.
func Build(name string) (*Instance, error) {
	s, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.Build()
}
