// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"math"

	"golang.org/x/exp/rand"
)

// CondProbDistrib is a conditional probability distribution over a value
// given the evaluated argument terms of a dependency clause.
type CondProbDistrib interface {
	// Prob returns P(value | args); a density for continuous values.
	Prob(args []any, value any) float64

	// LogProb returns log P(value | args).
	LogProb(args []any, value any) float64

	// SampleVal draws a value of type t.
	SampleVal(args []any, t *Type, rng *rand.Rand) any
}

// Distrib is a CPD together with the argument values it was selected with.
type Distrib struct {
	CPD  CondProbDistrib
	Args []any
}

// Prob returns the probability of value under d.
func (d Distrib) Prob(value any) float64 { return d.CPD.Prob(d.Args, value) }

// LogProb returns the log-probability of value under d.
func (d Distrib) LogProb(value any) float64 { return d.CPD.LogProb(d.Args, value) }

// Sample draws a value of type t.
func (d Distrib) Sample(t *Type, rng *rand.Rand) any { return d.CPD.SampleVal(d.Args, t, rng) }

// PointMass puts all probability on one value.
type PointMass struct {
	Value any
}

// Prob implements CondProbDistrib.
func (p PointMass) Prob(_ []any, value any) float64 {
	if ValuesEqual(p.Value, value) {
		return 1
	}
	return 0
}

// LogProb implements CondProbDistrib.
func (p PointMass) LogProb(args []any, value any) float64 {
	return math.Log(p.Prob(args, value))
}

// SampleVal implements CondProbDistrib.
func (p PointMass) SampleVal(_ []any, _ *Type, _ *rand.Rand) any { return p.Value }

// decisionCPD governs decision variables: any value set by decision
// evidence has probability 1, and an unset variable takes the default.
type decisionCPD struct {
	def any
}

func (decisionCPD) Prob(_ []any, _ any) float64    { return 1 }
func (decisionCPD) LogProb(_ []any, _ any) float64 { return 0 }
func (d decisionCPD) SampleVal(_ []any, _ *Type, _ *rand.Rand) any {
	return d.def
}
