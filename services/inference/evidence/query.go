// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/world"
)

// Query accumulates the posterior distribution of something observable in
// sampled worlds.
type Query interface {
	// Compile checks the query against m.
	Compile(m *model.Model) error

	// Variables returns the variables a world must determine to update
	// the query.
	Variables() []model.Var

	// UpdateStats adds weight to the value the query takes in w.
	UpdateStats(w world.PartialWorld, weight float64) error

	// SetPosterior replaces the accumulated statistics with a posterior
	// computed elsewhere.
	SetPosterior(h *Histogram)

	// ZeroOut discards the accumulated statistics.
	ZeroOut()

	// Histogram returns the accumulated statistics.
	Histogram() *Histogram

	// Clone returns a query over the same term with empty statistics.
	Clone() Query

	// LogResults logs the normalized histogram.
	LogResults(logger *slog.Logger)

	String() string
}

// -----------------------------------------------------------------------------
// TermQuery
// -----------------------------------------------------------------------------

// TermQuery is the posterior over the values of a closed term.
type TermQuery struct {
	term model.Term
	dv   *model.DerivedVar
	hist *Histogram
}

// NewTermQuery creates a query for term.
func NewTermQuery(term model.Term) *TermQuery {
	return &TermQuery{term: term, dv: model.NewDerivedVar(term), hist: NewHistogram()}
}

// Term returns the queried term.
func (q *TermQuery) Term() model.Term { return q.term }

// DerivedVar returns the derived variable wrapping the term.
func (q *TermQuery) DerivedVar() *model.DerivedVar { return q.dv }

// Compile implements Query.
func (q *TermQuery) Compile(*model.Model) error {
	if err := model.CheckTerm(q.term); err != nil {
		return fmt.Errorf("query %s: %w", q.term, err)
	}
	return nil
}

// Variables implements Query.
func (q *TermQuery) Variables() []model.Var { return []model.Var{q.dv} }

// UpdateStats implements Query.
func (q *TermQuery) UpdateStats(w world.PartialWorld, weight float64) error {
	v, ok := w.DerivedValue(q.dv)
	if !ok {
		return fmt.Errorf("%w: query %s is not determined by the sampled world", model.ErrIllegalState, q.term)
	}
	q.hist.Add(v, weight)
	return nil
}

// SetPosterior implements Query.
func (q *TermQuery) SetPosterior(h *Histogram) { q.hist = h.Clone() }

// ZeroOut implements Query.
func (q *TermQuery) ZeroOut() { q.hist.Clear() }

// Histogram implements Query.
func (q *TermQuery) Histogram() *Histogram { return q.hist }

// Clone implements Query.
func (q *TermQuery) Clone() Query { return NewTermQuery(q.term) }

// LogResults implements Query.
func (q *TermQuery) LogResults(logger *slog.Logger) {
	logResults(logger, q.String(), q.hist)
}

// String implements fmt.Stringer.
func (q *TermQuery) String() string { return q.term.String() }

// -----------------------------------------------------------------------------
// FormulaQuery
// -----------------------------------------------------------------------------

// FormulaQuery is the posterior probability that a closed formula holds.
type FormulaQuery struct {
	TermQuery
	formula model.Formula
}

// NewFormulaQuery creates a query for f.
func NewFormulaQuery(f model.Formula) *FormulaQuery {
	return &FormulaQuery{TermQuery: *NewTermQuery(f), formula: f}
}

// Formula returns the queried formula.
func (q *FormulaQuery) Formula() model.Formula { return q.formula }

// ProbTrue returns the estimated probability that the formula holds.
func (q *FormulaQuery) ProbTrue() float64 { return q.hist.Prob(true) }

// Clone implements Query.
func (q *FormulaQuery) Clone() Query { return NewFormulaQuery(q.formula) }

func logResults(logger *slog.Logger, name string, h *Histogram) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, e := range h.Entries() {
		logger.Info("query result",
			slog.String("query", name),
			slog.String("value", model.ValueString(e.Value)),
			slog.Float64("prob", h.Prob(e.Value)),
		)
	}
}
