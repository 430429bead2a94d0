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

// EvalContext supplies the values terms and formulas are evaluated against.
//
// Description:
//
//	Every lookup returns a second "ok" result. A context that cannot
//	determine an answer returns false and the evaluation that asked
//	propagates false to its caller. Instantiating contexts never return
//	false for lack of a value: they sample it.
//
// Thread Safety:
//
//	Contexts are single-goroutine objects.
type EvalContext interface {
	// Model returns the model being evaluated.
	Model() *Model

	// Value returns the value of a basic variable.
	Value(v BasicVar) (any, bool)

	// Satisfiers returns the objects satisfying a POP application.
	Satisfiers(nv *NumberVar) (ObjectSet, bool)

	// POPAppOf returns the POP application an identifier satisfies.
	POPAppOf(id *ObjectIdentifier) (*NumberVar, bool)

	// LogicalVarValue returns the innermost binding of lv.
	LogicalVarValue(lv *LogicalVar) (any, bool)

	// Assign pushes a binding for lv.
	Assign(lv *LogicalVar, v any)

	// Unassign pops the innermost binding for lv.
	Unassign(lv *LogicalVar)
}

// Bindings is a stack of logical variable bindings. Contexts embed it to
// implement LogicalVarValue, Assign and Unassign.
type Bindings struct {
	stack map[*LogicalVar][]any
}

// LogicalVarValue implements EvalContext.
func (b *Bindings) LogicalVarValue(lv *LogicalVar) (any, bool) {
	vs := b.stack[lv]
	if len(vs) == 0 {
		return nil, false
	}
	return vs[len(vs)-1], true
}

// Assign implements EvalContext.
func (b *Bindings) Assign(lv *LogicalVar, v any) {
	if b.stack == nil {
		b.stack = make(map[*LogicalVar][]any)
	}
	b.stack[lv] = append(b.stack[lv], v)
}

// Unassign implements EvalContext.
func (b *Bindings) Unassign(lv *LogicalVar) {
	vs := b.stack[lv]
	if len(vs) == 0 {
		return
	}
	if len(vs) == 1 {
		delete(b.stack, lv)
		return
	}
	b.stack[lv] = vs[:len(vs)-1]
}

// StaticContext evaluates terms that involve no random variables, such as
// the constant side of an evidence statement.
type StaticContext struct {
	Bindings
	model *Model
}

// NewStaticContext creates a context that can determine no random values.
func NewStaticContext(m *Model) *StaticContext {
	return &StaticContext{model: m}
}

// Model implements EvalContext.
func (c *StaticContext) Model() *Model { return c.model }

// Value implements EvalContext.
func (c *StaticContext) Value(BasicVar) (any, bool) { return nil, false }

// Satisfiers implements EvalContext.
func (c *StaticContext) Satisfiers(*NumberVar) (ObjectSet, bool) { return nil, false }

// POPAppOf implements EvalContext.
func (c *StaticContext) POPAppOf(*ObjectIdentifier) (*NumberVar, bool) { return nil, false }

// ObjectsOfType lists the members of an enumerable type in ctx: guaranteed
// objects followed by the satisfiers of every POP application, including
// those of subtypes.
//
// Description:
//
//	Enumerating POP applications requires the members of every generating
//	type, so this recurses through the generating types. Model.Compile
//	rejects cyclic generation, which keeps the recursion finite.
//
// Outputs:
//
//	[]any - The members, or nil.
//	bool  - False if ctx could not determine some satisfier set, or if the
//	        type is not enumerable.
func ObjectsOfType(ctx EvalContext, t *Type) ([]any, bool) {
	if t == BooleanType {
		return []any{false, true}, true
	}
	if !t.enumerable {
		return nil, false
	}
	var out []any
	for _, o := range t.guaranteed {
		out = append(out, o)
	}
	for _, pop := range t.pops {
		tuples, ok := genTuples(ctx, pop)
		if !ok {
			return nil, false
		}
		for _, tup := range tuples {
			s, ok := ctx.Satisfiers(ctx.Model().NumberVar(pop, tup...))
			if !ok {
				return nil, false
			}
			out = append(out, s.Elements()...)
		}
	}
	for _, sub := range t.subtypes {
		objs, ok := ObjectsOfType(ctx, sub)
		if !ok {
			return nil, false
		}
		out = append(out, objs...)
	}
	return out, true
}

// genTuples enumerates the generating-object tuples of a POP.
func genTuples(ctx EvalContext, pop *POP) ([][]any, bool) {
	tuples := [][]any{{}}
	for _, f := range pop.originFuncs {
		objs, ok := ObjectsOfType(ctx, f.ret)
		if !ok {
			return nil, false
		}
		next := make([][]any, 0, len(tuples)*len(objs))
		for _, tup := range tuples {
			for _, o := range objs {
				ext := make([]any, len(tup), len(tup)+1)
				copy(ext, tup)
				next = append(next, append(ext, o))
			}
		}
		tuples = next
	}
	return tuples, true
}
