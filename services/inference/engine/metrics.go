// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/openworld/services/inference/config"
	"github.com/AleutianAI/openworld/services/inference/sample"
)

// knownSamplers guards the sampler label against cardinality growth.
var knownSamplers = map[string]bool{
	config.SamplerLW:           true,
	config.SamplerLWImportance: true,
	config.SamplerMH:           true,
}

// sanitizeSampler returns name if it is a known sampler class, else
// "unknown".
func sanitizeSampler(name string) string {
	if knownSamplers[name] {
		return name
	}
	return "unknown"
}

// -----------------------------------------------------------------------------
// Engine Metrics
// -----------------------------------------------------------------------------

var (
	// samplesTotal counts generated samples.
	//
	// Labels:
	//   - sampler: sampler class
	//   - consistent: "true" for samples of positive weight, else "false"
	samplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openworld",
			Subsystem: "engine",
			Name:      "samples_total",
			Help:      "Total samples generated by sampler and consistency",
		},
		[]string{"sampler", "consistent"},
	)

	// proposalsTotal counts Metropolis-Hastings proposals.
	//
	// Labels:
	//   - outcome: "accepted" or "rejected"
	proposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openworld",
			Subsystem: "engine",
			Name:      "proposals_total",
			Help:      "Total MH proposals by outcome",
		},
		[]string{"outcome"},
	)

	// runsTotal counts finished runs.
	//
	// Labels:
	//   - sampler: sampler class
	//   - status: "success" or "failure"
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openworld",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total inference runs by sampler and status",
		},
		[]string{"sampler", "status"},
	)

	// runDurationSeconds measures wall time per run.
	runDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "openworld",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Inference run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"sampler"},
	)
)

// recordTrial adds the counters accumulated during one trial.
func recordTrial(samplerClass string, before, after sample.Stats) {
	s := sanitizeSampler(samplerClass)
	consistent := after.TotalConsistent - before.TotalConsistent
	samples := after.TotalSamples - before.TotalSamples
	samplesTotal.WithLabelValues(s, "true").Add(float64(consistent))
	samplesTotal.WithLabelValues(s, "false").Add(float64(samples - consistent))

	proposals := after.TotalProposals - before.TotalProposals
	if proposals > 0 {
		accepted := after.TotalAccepted - before.TotalAccepted
		proposalsTotal.WithLabelValues("accepted").Add(float64(accepted))
		proposalsTotal.WithLabelValues("rejected").Add(float64(proposals - accepted))
	}
}

// recordRun records a finished run.
func recordRun(samplerClass string, elapsed time.Duration, err error) {
	s := sanitizeSampler(samplerClass)
	status := "success"
	if err != nil {
		status = "failure"
	}
	runsTotal.WithLabelValues(s, status).Inc()
	runDurationSeconds.WithLabelValues(s).Observe(elapsed.Seconds())
}
