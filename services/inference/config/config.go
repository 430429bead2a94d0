// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the inference run configuration.
//
// A configuration is assembled from four layers, later layers winning:
// built-in defaults, an optional YAML file, OPENWORLD_* environment
// variables, and an explicit property set using the BLOG property names
// (numSamples, samplerClass, ...).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/openworld/services/inference/mcmc"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrConfig is returned for unknown keys, unparsable values and values that
// fail validation.
var ErrConfig = errors.New("invalid configuration")

// EnvPrefix prefixes the environment variable of every property.
const EnvPrefix = "OPENWORLD_"

// Sampler classes.
const (
	SamplerLW           = "lw"
	SamplerLWImportance = "lwimportance"
	SamplerMH           = "mh"
)

// Proposer classes.
const (
	ProposerGeneric = "generic"
	ProposerDecayed = "decayed"
)

// InMemoryResults selects an in-memory results store.
const InMemoryResults = ":memory:"

// Config is the configuration of one inference run.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	NumSamples     int           `yaml:"num_samples" validate:"gte=1"`
	NumTrials      int           `yaml:"num_trials" validate:"gte=1"`
	BurnIn         int           `yaml:"burn_in" validate:"gte=0"`
	ReportInterval time.Duration `yaml:"report_interval" validate:"gte=0"`

	// RandomSeed seeds every random stream of the run. Zero derives a
	// seed from the clock.
	RandomSeed uint64 `yaml:"random_seed"`

	SamplerClass  string           `yaml:"sampler_class" validate:"oneof=lw lwimportance mh"`
	ProposerClass string           `yaml:"proposer_class" validate:"oneof=generic decayed"`
	IDTypes       []string         `yaml:"id_types" validate:"dive,required"`
	Decay         mcmc.DecayParams `yaml:"decay"`

	NumChains       int `yaml:"num_chains" validate:"gte=1,lte=256"`
	MaxInitAttempts int `yaml:"max_init_attempts" validate:"gte=0"`
	MaxEvalDepth    int `yaml:"max_eval_depth" validate:"gte=1"`

	// ResultsDir is the results store directory. Empty disables the
	// store; InMemoryResults keeps results in memory.
	ResultsDir string `yaml:"results_dir"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	Tracing  bool   `yaml:"tracing"`
	Metrics  bool   `yaml:"metrics"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		NumSamples:      10000,
		NumTrials:       1,
		BurnIn:          0,
		ReportInterval:  5 * time.Second,
		SamplerClass:    SamplerLW,
		ProposerClass:   ProposerGeneric,
		Decay:           mcmc.DefaultDecayParams(),
		NumChains:       1,
		MaxInitAttempts: 100000,
		MaxEvalDepth:    10000,
		LogLevel:        "info",
		Tracing:         true,
		Metrics:         true,
	}
}

// Seed returns RandomSeed, or a clock-derived seed when it is zero.
func (c Config) Seed() uint64 {
	if c.RandomSeed != 0 {
		return c.RandomSeed
	}
	return uint64(time.Now().UnixNano())
}

// -----------------------------------------------------------------------------
// Properties
// -----------------------------------------------------------------------------

type setter func(c *Config, key, v string) error

var properties = map[string]setter{
	"numSamples":     intProp(func(c *Config) *int { return &c.NumSamples }),
	"numTrials":      intProp(func(c *Config) *int { return &c.NumTrials }),
	"burnIn":         intProp(func(c *Config) *int { return &c.BurnIn }),
	"reportInterval": durationProp(func(c *Config) *time.Duration { return &c.ReportInterval }),
	"randomSeed": func(c *Config, key, v string) error {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return badValue(key, v, err)
		}
		c.RandomSeed = n
		return nil
	},
	"samplerClass":  stringProp(func(c *Config) *string { return &c.SamplerClass }),
	"proposerClass": stringProp(func(c *Config) *string { return &c.ProposerClass }),
	"idTypes": func(c *Config, _, v string) error {
		c.IDTypes = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.IDTypes = append(c.IDTypes, name)
			}
		}
		return nil
	},
	"maxRecall":          intProp(func(c *Config) *int { return &c.Decay.MaxRecall }),
	"atemporalVarFactor": floatProp(func(c *Config) *float64 { return &c.Decay.AtemporalVarFactor }),
	"decayExponent":      floatProp(func(c *Config) *float64 { return &c.Decay.DecayExponent }),
	"numChains":          intProp(func(c *Config) *int { return &c.NumChains }),
	"maxInitAttempts":    intProp(func(c *Config) *int { return &c.MaxInitAttempts }),
	"maxEvalDepth":       intProp(func(c *Config) *int { return &c.MaxEvalDepth }),
	"resultsDir":         stringProp(func(c *Config) *string { return &c.ResultsDir }),
	"logLevel":           stringProp(func(c *Config) *string { return &c.LogLevel }),
	"tracing":            boolProp(func(c *Config) *bool { return &c.Tracing }),
	"metrics":            boolProp(func(c *Config) *bool { return &c.Metrics }),
}

func intProp(field func(*Config) *int) setter {
	return func(c *Config, key, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return badValue(key, v, err)
		}
		*field(c) = n
		return nil
	}
}

func floatProp(field func(*Config) *float64) setter {
	return func(c *Config, key, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return badValue(key, v, err)
		}
		*field(c) = f
		return nil
	}
}

func boolProp(field func(*Config) *bool) setter {
	return func(c *Config, key, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return badValue(key, v, err)
		}
		*field(c) = b
		return nil
	}
}

func durationProp(field func(*Config) *time.Duration) setter {
	return func(c *Config, key, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return badValue(key, v, err)
		}
		*field(c) = d
		return nil
	}
}

func stringProp(field func(*Config) *string) setter {
	return func(c *Config, _, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}
}

func badValue(key, v string, err error) error {
	return fmt.Errorf("%w: %s=%q: %v", ErrConfig, key, v, err)
}

// Keys returns the recognised property names in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable read for property key, for
// example OPENWORLD_NUM_SAMPLES for numSamples.
func EnvName(key string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			continue
		}
		b.WriteString(strings.ToUpper(string(r)))
	}
	return b.String()
}

// Set applies a single property to c.
//
// Outputs:
//   - error: ErrConfig if key is unknown or v does not parse.
func (c *Config) Set(key, v string) error {
	set, ok := properties[key]
	if !ok {
		return fmt.Errorf("%w: unknown property %q", ErrConfig, key)
	}
	return set(c, key, v)
}

// Apply applies every property of props to c.
func (c *Config) Apply(props map[string]string) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.Set(k, props[k]); err != nil {
			return err
		}
	}
	return nil
}

// FromProperties builds a validated configuration from defaults and props.
func FromProperties(props map[string]string) (Config, error) {
	cfg := Default()
	if err := cfg.Apply(props); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load builds the configuration with priority: props > env > file > defaults.
//
// Inputs:
//   - path: YAML config file (optional). A missing file means defaults.
//   - props: Explicit properties, typically from the command line.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Wraps ErrConfig if any layer is invalid.
func Load(path string, props map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadConfigFromEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Apply(props); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return nil
}

func loadConfigFromEnv(cfg *Config) error {
	for _, key := range Keys() {
		if v, ok := os.LookupEnv(EnvName(key)); ok && v != "" {
			if err := cfg.Set(key, v); err != nil {
				return fmt.Errorf("%s: %w", EnvName(key), err)
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and enumerations.
//
// Outputs:
//   - error: Wraps ErrConfig and names the offending field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrConfig, fe.Namespace(), fe.ActualTag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}
