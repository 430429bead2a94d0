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
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AleutianAI/openworld/services/inference/config"
	"github.com/AleutianAI/openworld/services/inference/sample"
)

const tracerName = "openworld.engine"

// engineTracer wraps OpenTelemetry spans for runs, chain initialization
// and trials. When tracing is disabled every span is a noop.
//
// Thread Safety: Safe for concurrent use.
type engineTracer struct {
	tracer  trace.Tracer
	enabled bool
}

func newEngineTracer(enabled bool) *engineTracer {
	return &engineTracer{tracer: otel.Tracer(tracerName), enabled: enabled}
}

func (t *engineTracer) startRun(ctx context.Context, runID string, cfg config.Config) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "engine.run",
		trace.WithAttributes(
			attribute.String("engine.run_id", runID),
			attribute.String("engine.sampler", cfg.SamplerClass),
			attribute.Int("engine.num_samples", cfg.NumSamples),
			attribute.Int("engine.num_trials", cfg.NumTrials),
			attribute.Int("engine.num_chains", cfg.NumChains),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *engineTracer) startInit(ctx context.Context, chain int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "engine.init", trace.WithAttributes(attribute.Int("engine.chain", chain)))
}

func (t *engineTracer) startTrial(ctx context.Context, chain, trial int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "engine.trial",
		trace.WithAttributes(
			attribute.Int("engine.chain", chain),
			attribute.Int("engine.trial", trial),
		),
	)
}

// end closes span with the outcome of the traced step.
func end(span trace.Span, stats *sample.Stats, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if stats != nil {
		span.SetAttributes(
			attribute.Int("engine.samples", stats.TotalSamples),
			attribute.Int("engine.consistent", stats.TotalConsistent),
			attribute.Int("engine.proposals", stats.TotalProposals),
			attribute.Int("engine.accepted", stats.TotalAccepted),
		)
	}
	span.End()
}

// loggerWithTrace adds trace and span ids to logger when ctx carries a
// valid span.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
