// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package distrib provides conditional probability distributions for
// dependency models.
//
// Each type implements model.CondProbDistrib. Sampling and densities are
// delegated to gonum's distuv package, driven by the caller's
// golang.org/x/exp/rand generator so that a chain's random stream is fully
// determined by its seed.
//
// Values follow the model package conventions: Boolean values are bool,
// integer and number-variable values are int, real values are float64.
package distrib

import (
	"errors"
	"fmt"
	"math"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidParams indicates distribution parameters that do not
	// describe a probability distribution.
	ErrInvalidParams = errors.New("invalid distribution parameters")
)

// probTolerance bounds how far categorical weights may sum from 1.
const probTolerance = 1e-6

func logOf(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}

func asInt(v any) (int, bool) {
	n, ok := v.(int)
	return n, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func validateProbs(probs []float64) error {
	sum := 0.0
	for i, p := range probs {
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("%w: probability %d is %v", ErrInvalidParams, i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > probTolerance {
		return fmt.Errorf("%w: probabilities sum to %v", ErrInvalidParams, sum)
	}
	return nil
}
