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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/openworld/services/inference/catalog"
	"github.com/AleutianAI/openworld/services/inference/config"
	"github.com/AleutianAI/openworld/services/inference/results"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestModelsCommand(t *testing.T) {
	out, _, err := execute(t, "models")
	require.NoError(t, err)
	for _, name := range catalog.Names() {
		assert.Contains(t, out, name)
	}
}

func TestRunCommand(t *testing.T) {
	out, logs, err := execute(t, "run", "--model", "bayesnet",
		"--set", "numSamples=2000", "--set", "randomSeed=3", "--set", "reportInterval=0s")
	require.NoError(t, err)
	assert.Contains(t, out, "QUERY")
	assert.Contains(t, out, "EXACT")
	assert.Contains(t, out, "samples 2000")
	assert.Contains(t, logs, "inference run finished")
}

func TestRunCommand_SavesAndListsRuns(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "run", "-m", "coin",
		"-s", "numSamples=300", "-s", "resultsDir="+dir, "-s", "logLevel=warn")
	require.NoError(t, err)

	out, _, err := execute(t, "runs", "--results-dir", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "coin")
	assert.Contains(t, lines[1], "300")
}

func TestRunCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		is   error
	}{
		{name: "bad set", args: []string{"run", "-m", "coin", "--set", "numSamples"}, is: config.ErrConfig},
		{name: "unknown property", args: []string{"run", "-m", "coin", "--set", "samples=3"}, is: config.ErrConfig},
		{name: "bad value", args: []string{"run", "-m", "coin", "--set", "samplerClass=gibbs"}, is: config.ErrConfig},
		{name: "unknown model", args: []string{"run", "-m", "zoo"}, is: catalog.ErrUnknownScenario},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.ErrorIs(t, err, tt.is)
		})
	}

	_, _, err := execute(t, "run")
	assert.Error(t, err, "--model is required")
}

func TestParseSets(t *testing.T) {
	props, err := parseSets([]string{"numSamples=10", " idTypes = Ball,Color", "resultsDir="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"numSamples": "10", "idTypes": " Ball,Color", "resultsDir": ""}, props)

	_, err = parseSets([]string{"=3"})
	assert.ErrorIs(t, err, config.ErrConfig)
}

func TestTopAnswer(t *testing.T) {
	assert.Equal(t, "-", topAnswer(&results.Run{}))
	r := &results.Run{Queries: []results.QueryResult{{Values: []results.ValueWeight{
		{Value: "1", Prob: 0.2}, {Value: "2", Prob: 0.5}, {Value: "3", Prob: 0.3},
	}}}}
	assert.Equal(t, "2=0.500", topAnswer(r))
}
