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
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/AleutianAI/openworld/pkg/logging"
	"github.com/AleutianAI/openworld/services/inference/catalog"
	"github.com/AleutianAI/openworld/services/inference/config"
	"github.com/AleutianAI/openworld/services/inference/engine"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/results"
	"github.com/AleutianAI/openworld/services/inference/storage/badger"
	"github.com/AleutianAI/openworld/services/inference/world"
)

func listModels(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tDESCRIPTION")
	for _, s := range catalog.All() {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Description)
	}
	return tw.Flush()
}

// runModel loads the configuration, runs the engine on the named model and
// prints every query's posterior to out. Logs go to errOut.
func runModel(ctx context.Context, out, errOut io.Writer, f runFlags, props map[string]string) error {
	cfg, err := config.Load(f.configPath, props)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  f.logDir,
		Service: "openworld",
		JSON:    f.jsonLogs,
		Output:  errOut,
	})
	defer logger.Close()
	log := logger.Slog()
	world.SetMetricsEnabled(cfg.Metrics)

	inst, err := catalog.Build(f.model)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithModelName(f.model),
		engine.WithIdentifierTypes(inst.IDTypes...),
	}
	if cfg.ResultsDir != "" {
		store, err := results.Open(badger.ConfigFor(cfg.ResultsDir, log))
		if err != nil {
			return fmt.Errorf("open results store: %w", err)
		}
		defer store.Close()
		opts = append(opts, engine.WithStore(store))
	}

	eng, err := engine.New(inst.Model, cfg, opts...)
	if err != nil {
		return err
	}
	res, err := eng.Answer(ctx, inst.Evidence, inst.Queries)
	if err != nil {
		return err
	}
	log.Debug("results printed", slog.String("run_id", res.RunID.String()))
	return printResult(out, inst, res)
}

func printResult(out io.Writer, inst *catalog.Instance, res *engine.Result) error {
	stats := res.Stats()
	fmt.Fprintf(out, "run %s  seed %d  samples %d  consistent %d  elapsed %s\n",
		res.RunID, res.Seed, stats.TotalSamples, stats.TotalConsistent, res.Elapsed.Round(time.Millisecond))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, q := range inst.Queries {
		fmt.Fprintf(tw, "\nQUERY %s\tPROB", q)
		if i == 0 && inst.Exact != nil {
			fmt.Fprint(tw, "\tEXACT")
		}
		fmt.Fprintln(tw)
		h := res.Histograms[i]
		for _, e := range h.Entries() {
			v := model.ValueString(e.Value)
			fmt.Fprintf(tw, "%s\t%.4f", v, h.Prob(e.Value))
			if i == 0 && inst.Exact != nil {
				fmt.Fprintf(tw, "\t%.4f", inst.Exact[v])
			}
			fmt.Fprintln(tw)
		}
	}
	return tw.Flush()
}

func listRuns(ctx context.Context, out io.Writer, dir string) error {
	store, err := results.Open(badger.ConfigFor(dir, nil))
	if err != nil {
		return fmt.Errorf("open results store: %w", err)
	}
	defer store.Close()

	runs, err := store.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODEL\tSAMPLER\tSTARTED\tSAMPLES\tTOP ANSWER")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Model, r.Sampler, r.StartedAt.Format(time.RFC3339), r.Samples, topAnswer(r))
	}
	return tw.Flush()
}

// topAnswer is the most probable value of the first query.
func topAnswer(r *results.Run) string {
	if len(r.Queries) == 0 || len(r.Queries[0].Values) == 0 {
		return "-"
	}
	best := r.Queries[0].Values[0]
	for _, vw := range r.Queries[0].Values[1:] {
		if vw.Prob > best.Prob {
			best = vw
		}
	}
	return fmt.Sprintf("%s=%.3f", best.Value, best.Prob)
}
