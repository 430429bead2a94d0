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

import (
	"strconv"
	"strings"
	"sync"
	"weak"
)

// nullObject is the type of Null.
type nullObject struct{}

func (nullObject) String() string { return "null" }

// Null is the value of a function application with no referent.
var Null any = nullObject{}

// IsNull reports whether v is Null.
func IsNull(v any) bool {
	_, ok := v.(nullObject)
	return ok
}

// Timestep is a value of the built-in Timestep type.
type Timestep int

// String implements fmt.Stringer.
func (t Timestep) String() string { return "@" + strconv.Itoa(int(t)) }

// -----------------------------------------------------------------------------
// Guaranteed objects
// -----------------------------------------------------------------------------

// GuaranteedObject exists in every possible world.
type GuaranteedObject struct {
	typ   *Type
	name  string
	index int
	key   string
}

// Type returns the object's type.
func (o *GuaranteedObject) Type() *Type { return o.typ }

// Name returns the declared name.
func (o *GuaranteedObject) Name() string { return o.name }

// Index returns the declaration index within the type.
func (o *GuaranteedObject) Index() int { return o.index }

// String implements fmt.Stringer.
func (o *GuaranteedObject) String() string { return o.name }

// -----------------------------------------------------------------------------
// Non-guaranteed objects
// -----------------------------------------------------------------------------

// NonGuaranteedObject is the index-th object generated by applying a POP to
// a tuple of generating objects.
//
// Description:
//
//	Obtain instances only through Model.NonGuaranteed, which returns the
//	same pointer for equal (POP, generating objects, index) triples while
//	any reference to it is live. Pointer comparison is therefore identity.
type NonGuaranteedObject struct {
	pop     *POP
	genObjs []any
	index   int
	depth   int
	key     string
}

// POP returns the generating pattern.
func (o *NonGuaranteedObject) POP() *POP { return o.pop }

// Type returns the generated type.
func (o *NonGuaranteedObject) Type() *Type { return o.pop.typ }

// GenObjs returns a copy of the generating objects.
func (o *NonGuaranteedObject) GenObjs() []any {
	return append([]any(nil), o.genObjs...)
}

// Index returns the 1-based index among the POP application's satisfiers.
func (o *NonGuaranteedObject) Index() int { return o.index }

// Depth is 0 for objects with no non-guaranteed generating objects and
// otherwise one more than the deepest generating object.
func (o *NonGuaranteedObject) Depth() int { return o.depth }

// OriginFuncValue returns the generating object bound to origin function f,
// or Null if f is not one of the POP's origin functions.
func (o *NonGuaranteedObject) OriginFuncValue(f *Function) any {
	i := o.pop.OriginFuncIndex(f)
	if i < 0 {
		return Null
	}
	return o.genObjs[i]
}

// String implements fmt.Stringer.
func (o *NonGuaranteedObject) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(o.pop.typ.name)
	for i, f := range o.pop.originFuncs {
		b.WriteString(", ")
		b.WriteString(f.name)
		b.WriteString("=")
		b.WriteString(ValueString(o.genObjs[i]))
	}
	b.WriteString(", ")
	b.WriteString(strconv.Itoa(o.index))
	b.WriteString(")")
	return b.String()
}

// objectDepth returns the depth contribution of a generating object.
func objectDepth(v any) int {
	if ngo, ok := v.(*NonGuaranteedObject); ok {
		return ngo.depth + 1
	}
	return 0
}

// ngoCacheMinSweep is the cache size below which no sweep happens.
const ngoCacheMinSweep = 1024

// ngoCache canonicalizes non-guaranteed objects through weak references.
type ngoCache struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[NonGuaranteedObject]
	sweepAt int
}

func newNGOCache() *ngoCache {
	return &ngoCache{
		entries: make(map[string]weak.Pointer[NonGuaranteedObject]),
		sweepAt: ngoCacheMinSweep,
	}
}

// lookup returns the live object for key, creating it if needed.
func (c *ngoCache) lookup(key string, create func() *NonGuaranteedObject) *NonGuaranteedObject {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wp, ok := c.entries[key]; ok {
		if o := wp.Value(); o != nil {
			return o
		}
	}
	o := create()
	c.entries[key] = weak.Make(o)
	if len(c.entries) >= c.sweepAt {
		c.sweepLocked()
	}
	return o
}

// sweepLocked drops entries whose objects were collected. Caller holds mu.
func (c *ngoCache) sweepLocked() {
	for k, wp := range c.entries {
		if wp.Value() == nil {
			delete(c.entries, k)
		}
	}
	c.sweepAt = max(ngoCacheMinSweep, 2*len(c.entries))
}

func (c *ngoCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ngoCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

// ngoKey is the canonical key of a (POP, generating objects, index) triple.
func ngoKey(pop *POP, genObjs []any, index int) string {
	var b strings.Builder
	b.WriteString("n")
	b.WriteString(strconv.Itoa(pop.index))
	b.WriteString("(")
	writeTupleKey(&b, genObjs)
	b.WriteString(")#")
	b.WriteString(strconv.Itoa(index))
	return b.String()
}

// -----------------------------------------------------------------------------
// Object identifiers
// -----------------------------------------------------------------------------

// ObjectIdentifier is an anonymous handle for a member of a type whose
// objects are exchangeable. It satisfies a POP application in a world
// once asserted.
type ObjectIdentifier struct {
	typ *Type
	id  int64
}

// Type returns the identified object's type.
func (id *ObjectIdentifier) Type() *Type { return id.typ }

// ID returns the model-scoped serial number.
func (id *ObjectIdentifier) ID() int64 { return id.id }

// String implements fmt.Stringer.
func (id *ObjectIdentifier) String() string {
	return id.typ.name + "#" + strconv.FormatInt(id.id, 10)
}

// -----------------------------------------------------------------------------
// Tuples
// -----------------------------------------------------------------------------

// Tuple is an immutable ordered tuple of values, produced by tuple set
// specifications with more than one term.
type Tuple struct {
	elems []any
	key   string
}

// NewTuple creates a tuple over a copy of elems.
func NewTuple(elems ...any) *Tuple {
	cp := append([]any(nil), elems...)
	var b strings.Builder
	b.WriteString("<")
	writeTupleKey(&b, cp)
	b.WriteString(">")
	return &Tuple{elems: cp, key: b.String()}
}

// Len returns the tuple's arity.
func (t *Tuple) Len() int { return len(t.elems) }

// At returns the i-th element.
func (t *Tuple) At(i int) any { return t.elems[i] }

// String implements fmt.Stringer.
func (t *Tuple) String() string {
	parts := make([]string, len(t.elems))
	for i, e := range t.elems {
		parts[i] = ValueString(e)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
