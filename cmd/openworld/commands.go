// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/openworld/services/inference/config"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// runFlags are the flags of the run command.
type runFlags struct {
	model      string
	configPath string
	sets       []string
	jsonLogs   bool
	logDir     string
}

// runsFlags are the flags of the runs command.
type runsFlags struct {
	resultsDir string
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "openworld",
		Short: "Approximate inference for open-universe probability models",
		Long: `openworld estimates posterior distributions in models with an unknown
number of objects, using likelihood weighting or Metropolis-Hastings.

Configuration comes from defaults, an optional YAML file, OPENWORLD_*
environment variables and --set key=value properties, later sources
winning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newModelsCmd(), newRunCmd(), newRunsCmd())
	return root
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the bundled models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listModels(cmd.OutOrStdout())
		},
	}
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer the queries of a bundled model",
		Long: `Run inference on a bundled model and print the posterior of each query.

Properties (--set) use the BLOG names: numSamples, numTrials, burnIn,
reportInterval, randomSeed, samplerClass (lw, lwimportance, mh),
proposerClass (generic, decayed), idTypes, maxRecall, atemporalVarFactor,
decayExponent, numChains, maxInitAttempts, maxEvalDepth, resultsDir,
logLevel, tracing, metrics.

Examples:
  openworld run --model bayesnet
  openworld run --model aircraft --set samplerClass=lwimportance
  openworld run --model weather --set samplerClass=mh --set proposerClass=decayed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			props, err := parseSets(f.sets)
			if err != nil {
				return err
			}
			return runModel(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), f, props)
		},
	}
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Bundled model to run (see 'openworld models')")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringArrayVarP(&f.sets, "set", "s", nil, "Property override as key=value (repeatable)")
	cmd.Flags().BoolVar(&f.jsonLogs, "json-logs", false, "Write logs as JSON")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "Also append JSON logs to a file in this directory")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var f runsFlags
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs saved in a results directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listRuns(cmd.Context(), cmd.OutOrStdout(), f.resultsDir)
		},
	}
	cmd.Flags().StringVarP(&f.resultsDir, "results-dir", "d", "", "Results directory written by 'run --set resultsDir=...'")
	_ = cmd.MarkFlagRequired("results-dir")
	return cmd
}

// parseSets turns key=value flags into a property set.
func parseSets(sets []string) (map[string]string, error) {
	props := make(map[string]string, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: --set %q is not key=value", config.ErrConfig, s)
		}
		props[k] = v
	}
	return props, nil
}
