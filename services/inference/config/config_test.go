// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10000, cfg.NumSamples)
	assert.Equal(t, SamplerLW, cfg.SamplerClass)
	assert.Equal(t, 10, cfg.Decay.MaxRecall)
	assert.Equal(t, 5*time.Second, cfg.ReportInterval)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "OPENWORLD_NUM_SAMPLES", EnvName("numSamples"))
	assert.Equal(t, "OPENWORLD_ATEMPORAL_VAR_FACTOR", EnvName("atemporalVarFactor"))
	assert.Equal(t, "OPENWORLD_METRICS", EnvName("metrics"))
}

func TestFromProperties(t *testing.T) {
	cfg, err := FromProperties(map[string]string{
		"numSamples":     "500",
		"samplerClass":   "mh",
		"proposerClass":  "decayed",
		"burnIn":         "100",
		"idTypes":        "Aircraft, Blip,",
		"decayExponent":  "1.5",
		"reportInterval": "250ms",
		"randomSeed":     "42",
		"tracing":        "false",
	})
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.NumSamples)
	assert.Equal(t, SamplerMH, cfg.SamplerClass)
	assert.Equal(t, ProposerDecayed, cfg.ProposerClass)
	assert.Equal(t, 100, cfg.BurnIn)
	assert.Equal(t, []string{"Aircraft", "Blip"}, cfg.IDTypes)
	assert.Equal(t, 1.5, cfg.Decay.DecayExponent)
	assert.Equal(t, 250*time.Millisecond, cfg.ReportInterval)
	assert.Equal(t, uint64(42), cfg.Seed())
	assert.False(t, cfg.Tracing)
	assert.Equal(t, 1, cfg.NumTrials, "missing keys keep their defaults")
}

func TestFromProperties_Errors(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		want  string
	}{
		{name: "unknown key", props: map[string]string{"numSample": "3"}, want: "numSample"},
		{name: "bad int", props: map[string]string{"numSamples": "many"}, want: "numSamples"},
		{name: "bad float", props: map[string]string{"decayExponent": "x"}, want: "decayExponent"},
		{name: "bad bool", props: map[string]string{"metrics": "perhaps"}, want: "metrics"},
		{name: "bad duration", props: map[string]string{"reportInterval": "5"}, want: "reportInterval"},
		{name: "unknown sampler", props: map[string]string{"samplerClass": "gibbs"}, want: "sampler_class"},
		{name: "zero samples", props: map[string]string{"numSamples": "0"}, want: "num_samples"},
		{name: "bad recall", props: map[string]string{"maxRecall": "0"}, want: "max_recall"},
		{name: "bad level", props: map[string]string{"logLevel": "loud"}, want: "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromProperties(tt.props)
			require.ErrorIs(t, err, ErrConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openworld.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, `
num_samples: 2000
num_trials: 3
sampler_class: lwimportance
decay:
  max_recall: 4
  atemporal_var_factor: 2
  decay_exponent: 2
report_interval: 1s
`)
	t.Setenv("OPENWORLD_NUM_TRIALS", "4")
	t.Setenv("OPENWORLD_BURN_IN", "7")

	cfg, err := Load(path, map[string]string{"burnIn": "9"})
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.NumSamples, "file over defaults")
	assert.Equal(t, 4, cfg.NumTrials, "env over file")
	assert.Equal(t, 9, cfg.BurnIn, "properties over env")
	assert.Equal(t, SamplerLWImportance, cfg.SamplerClass)
	assert.Equal(t, 4, cfg.Decay.MaxRecall)
	assert.Equal(t, time.Second, cfg.ReportInterval)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, ""), nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownFileField(t *testing.T) {
	_, err := Load(writeFile(t, "num_sample: 3\n"), nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("OPENWORLD_NUM_CHAINS", "two")
	_, err := Load("", nil)
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "OPENWORLD_NUM_CHAINS")
}

func TestKeys_AllSettable(t *testing.T) {
	for _, k := range Keys() {
		cfg := Default()
		err := cfg.Set(k, "1")
		if err != nil {
			assert.ErrorIs(t, err, ErrConfig, k)
		}
	}
	assert.Len(t, Keys(), 18)
}
